package frappe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSite routes /api/method/<name> to handlers keyed by method name.
func fakeSite(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/api/method/")
		h, ok := handlers[method]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeMessage(w http.ResponseWriter, msg any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"message": msg})
}

func TestValidateImportPreview(t *testing.T) {
	var gotAuth string
	srv := fakeSite(t, map[string]http.HandlerFunc{
		MethodValidateImportPreview: func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "Customer", r.PostForm.Get("doctype_name"))
			assert.Equal(t, "/private/files/customers.xlsx", r.PostForm.Get("file_url"))
			writeMessage(w, map[string]any{
				"status":              "success",
				"total_excel_columns": 3,
				"mapped_fields":       []string{"Name", "Email"},
				"missing_fields":      []string{"Notes"},
				"missing_in_excel":    []string{"Phone"},
				"has_missing":         true,
			})
		},
	})

	c := NewClient(srv.URL+"/", &Auth{APIKey: "k", APISecret: "s"})
	resp, err := c.ValidateImportPreview(context.Background(), "Customer", "/private/files/customers.xlsx")
	require.NoError(t, err)

	assert.Equal(t, "token k:s", gotAuth)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, []string{"Name", "Email"}, resp.MappedFields)
	assert.Equal(t, []string{"Notes"}, resp.MissingFields)
	assert.Equal(t, []string{"Phone"}, resp.MissingInExcel)
	assert.Equal(t, 3, resp.TotalExcelColumns)
	assert.True(t, resp.HasMissing)
}

func TestStartExcelImportSendsFlags(t *testing.T) {
	srv := fakeSite(t, map[string]http.HandlerFunc{
		MethodStartExcelImport: func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "1", r.PostForm.Get("allow_create"))
			assert.Equal(t, "0", r.PostForm.Get("allow_update"))
			writeMessage(w, map[string]any{"status": "success", "message": "Import started successfully"})
		},
	})

	c := NewClient(srv.URL, nil)
	resp, err := c.StartExcelImport(context.Background(), "Customer", "/files/a.xlsx", true, false)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Import started successfully", resp.Message)
}

func TestCallDecodesServerMessages(t *testing.T) {
	srv := fakeSite(t, map[string]http.HandlerFunc{
		MethodStartExcelImport: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusExpectationFailed)
			inner, _ := json.Marshal(map[string]string{"message": "Please map fields first for this doctype"})
			outer, _ := json.Marshal([]string{string(inner)})
			_ = json.NewEncoder(w).Encode(map[string]any{
				"exc_type":         "ValidationError",
				"_server_messages": string(outer),
			})
		},
	})

	c := NewClient(srv.URL, nil)
	_, err := c.StartExcelImport(context.Background(), "Customer", "/files/a.xlsx", true, true)
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusExpectationFailed, apiErr.StatusCode)
	assert.Equal(t, "ValidationError", apiErr.ExcType)
	assert.Equal(t, "Please map fields first for this doctype", apiErr.Message())
	assert.Contains(t, err.Error(), "start_excel_import")
}

func TestSearchDoctypes(t *testing.T) {
	srv := fakeSite(t, map[string]http.HandlerFunc{
		MethodSearchDoctypes: func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "cust", r.PostForm.Get("txt"))
			assert.Equal(t, "20", r.PostForm.Get("page_len"))
			writeMessage(w, [][]string{{"Customer"}, {"Customer Group"}})
		},
	})

	names, err := NewClient(srv.URL, nil).SearchDoctypes(context.Background(), "cust", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer", "Customer Group"}, names)
}

func TestGetDoctypeFields(t *testing.T) {
	srv := fakeSite(t, map[string]http.HandlerFunc{
		MethodGetDoctype: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"docs": []map[string]any{
					{"name": "Customer", "fields": []map[string]any{
						{"fieldname": "customer_name", "label": "Customer Name", "fieldtype": "Data", "reqd": 1},
						{"fieldname": "sb1", "fieldtype": "Section Break"},
					}},
					{"name": "Customer Contact", "fields": []map[string]any{}},
				},
			})
		},
	})

	fields, err := NewClient(srv.URL, nil).GetDoctypeFields(context.Background(), "Customer")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "customer_name", fields[0].Fieldname)
	assert.Equal(t, 1, fields[0].Reqd)

	_, err = NewClient(srv.URL, nil).GetDoctypeFields(context.Background(), "Supplier")
	assert.Error(t, err)
}

func TestUploadFile(t *testing.T) {
	srv := fakeSite(t, map[string]http.HandlerFunc{
		MethodUploadFile: func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "1", r.FormValue("is_private"))
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			body, _ := io.ReadAll(f)
			assert.Equal(t, "rows.xlsx", hdr.Filename)
			assert.Equal(t, "PK-data", string(body))
			writeMessage(w, map[string]any{"name": "abc123", "file_name": "rows.xlsx", "file_url": "/private/files/rows.xlsx", "is_private": 1})
		},
	})

	up, err := NewClient(srv.URL, nil).UploadFile(context.Background(), "rows.xlsx", strings.NewReader("PK-data"), true)
	require.NoError(t, err)
	assert.Equal(t, "/private/files/rows.xlsx", up.FileURL)
}

func TestCurrentMode(t *testing.T) {
	tests := []struct {
		name     string
		auth     *Auth
		user     string
		userCode int
		pingCode int
		want     Mode
	}{
		{name: "site down", pingCode: http.StatusBadGateway, want: Offline},
		{name: "no credentials", pingCode: http.StatusOK, want: Online},
		{name: "rejected credentials", auth: &Auth{APIKey: "k", APISecret: "bad"}, pingCode: http.StatusOK, userCode: http.StatusForbidden, want: Online},
		{name: "connected", auth: &Auth{APIKey: "k", APISecret: "s"}, pingCode: http.StatusOK, userCode: http.StatusOK, user: "ops@example.com", want: Connected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeSite(t, map[string]http.HandlerFunc{
				MethodPing: func(w http.ResponseWriter, r *http.Request) {
					if tt.pingCode != http.StatusOK {
						w.WriteHeader(tt.pingCode)
						return
					}
					writeMessage(w, "pong")
				},
				MethodLoggedUser: func(w http.ResponseWriter, r *http.Request) {
					if tt.userCode != http.StatusOK {
						w.WriteHeader(tt.userCode)
						_ = json.NewEncoder(w).Encode(map[string]any{"exc_type": "PermissionError"})
						return
					}
					writeMessage(w, tt.user)
				},
			})

			mode, user := NewClient(srv.URL, tt.auth).CurrentMode(context.Background())
			assert.Equal(t, tt.want, mode)
			assert.Equal(t, tt.user, user)
		})
	}
}

func TestParseServerMessages(t *testing.T) {
	assert.Nil(t, parseServerMessages(""))
	assert.Equal(t, []string{"not json"}, parseServerMessages("not json"))
	assert.Equal(t,
		[]string{"File not found: x.xlsx"},
		parseServerMessages(`["{\"message\": \"File not found: <b>x.xlsx</b>\"}"]`),
	)
}

// Package frappe provides the connection library for a Frappe site.
// All remote method calls made by xlimport go through Client.
package frappe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is the central connection manager for a Frappe site.
type Client struct {
	siteURL    string
	httpClient *http.Client
	auth       *Auth
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for siteURL (e.g. https://erp.example.com).
func NewClient(siteURL string, auth *Auth, opts ...Option) *Client {
	if auth == nil {
		auth = &Auth{}
	}
	c := &Client{
		siteURL: trimSlash(siteURL),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		auth: auth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SiteURL returns the base URL of the site.
func (c *Client) SiteURL() string {
	return c.siteURL
}

// Auth returns the credentials in use.
func (c *Client) Auth() *Auth {
	return c.auth
}

// envelope is the body shape of every /api/method response.
type envelope struct {
	Message        json.RawMessage `json:"message"`
	Docs           json.RawMessage `json:"docs"`
	ExcType        string          `json:"exc_type"`
	Exception      string          `json:"exception"`
	ServerMessages string          `json:"_server_messages"`
}

// Call invokes a whitelisted method with form-encoded arguments and decodes
// the "message" member of the response into out (which may be nil).
func (c *Client) Call(ctx context.Context, method string, args url.Values, out any) error {
	env, err := c.post(ctx, method, strings.NewReader(args.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	return decodeMember(method, env.Message, out)
}

func (c *Client) post(ctx context.Context, method string, body io.Reader, contentType string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, MethodURL(c.siteURL, method), body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if h := c.auth.Header(); h != "" {
		req.Header.Set("Authorization", h)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var env envelope
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode %s response: %w", method, err)
		}
	}

	if resp.StatusCode >= 300 {
		return nil, &APIError{
			Method:     method,
			StatusCode: resp.StatusCode,
			ExcType:    env.ExcType,
			Exception:  env.Exception,
			Messages:   parseServerMessages(env.ServerMessages),
		}
	}
	return &env, nil
}

func decodeMember(method string, raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s message: %w", method, err)
	}
	return nil
}

// PreviewResponse is the reply of validate_import_preview.
type PreviewResponse struct {
	Status            string   `json:"status"`
	TotalExcelColumns int      `json:"total_excel_columns,omitempty"`
	MappedFields      []string `json:"mapped_fields,omitempty"`
	MissingFields     []string `json:"missing_fields,omitempty"`
	MissingInExcel    []string `json:"missing_in_excel,omitempty"`
	HasMissing        bool     `json:"has_missing,omitempty"`
	Message           string   `json:"message,omitempty"`
}

// ValidateImportPreview asks the server which columns of fileURL map onto doctype.
func (c *Client) ValidateImportPreview(ctx context.Context, doctype, fileURL string) (*PreviewResponse, error) {
	args := url.Values{}
	args.Set("doctype_name", doctype)
	args.Set("file_url", fileURL)

	var out PreviewResponse
	if err := c.Call(ctx, MethodValidateImportPreview, args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartResponse is the reply of start_excel_import.
type StartResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StartExcelImport enqueues the server-side import job.
func (c *Client) StartExcelImport(ctx context.Context, doctype, fileURL string, allowCreate, allowUpdate bool) (*StartResponse, error) {
	args := url.Values{}
	args.Set("doctype_name", doctype)
	args.Set("file_url", fileURL)
	args.Set("allow_create", boolFlag(allowCreate))
	args.Set("allow_update", boolFlag(allowUpdate))

	var out StartResponse
	if err := c.Call(ctx, MethodStartExcelImport, args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchDoctypes returns importable doctype names matching txt.
func (c *Client) SearchDoctypes(ctx context.Context, txt string, start, pageLen int) ([]string, error) {
	if pageLen <= 0 {
		pageLen = 20
	}
	args := url.Values{}
	args.Set("doctype", "DocType")
	args.Set("txt", txt)
	args.Set("searchfield", "name")
	args.Set("start", strconv.Itoa(start))
	args.Set("page_len", strconv.Itoa(pageLen))
	args.Set("filters", "{}")

	var rows [][]string
	if err := c.Call(ctx, MethodSearchDoctypes, args, &rows); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if len(r) > 0 && r[0] != "" {
			names = append(names, r[0])
		}
	}
	return names, nil
}

// DocField is one field of a doctype definition.
type DocField struct {
	Fieldname string `json:"fieldname"`
	Label     string `json:"label"`
	Fieldtype string `json:"fieldtype"`
	Reqd      int    `json:"reqd"`
	Unique    int    `json:"unique"`
}

type docMeta struct {
	Name   string     `json:"name"`
	Fields []DocField `json:"fields"`
}

// GetDoctypeFields returns the fields of doctype in form order.
func (c *Client) GetDoctypeFields(ctx context.Context, doctype string) ([]DocField, error) {
	args := url.Values{}
	args.Set("doctype", doctype)

	env, err := c.post(ctx, MethodGetDoctype, strings.NewReader(args.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	var docs []docMeta
	if err := decodeMember(MethodGetDoctype, env.Docs, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		if d.Name == doctype {
			return d.Fields, nil
		}
	}
	return nil, fmt.Errorf("doctype %s: no metadata returned", doctype)
}

// GetCount returns the number of records of doctype.
func (c *Client) GetCount(ctx context.Context, doctype string) (int, error) {
	args := url.Values{}
	args.Set("doctype", doctype)

	var n int
	if err := c.Call(ctx, MethodGetCount, args, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// UploadedFile is the File record created by upload_file.
type UploadedFile struct {
	Name     string `json:"name"`
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	Private  int    `json:"is_private"`
}

// UploadFile stores r as a File attachment and returns the created record.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader, private bool) (*UploadedFile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	_ = mw.WriteField("is_private", boolFlag(private))
	_ = mw.WriteField("folder", "Home")
	if err := mw.Close(); err != nil {
		return nil, err
	}

	env, err := c.post(ctx, MethodUploadFile, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	var out UploadedFile
	if err := decodeMember(MethodUploadFile, env.Message, &out); err != nil {
		return nil, err
	}
	if out.FileURL == "" {
		return nil, fmt.Errorf("upload %s: server returned no file_url", filename)
	}
	return &out, nil
}

// LoggedUser returns the user the credentials belong to.
func (c *Client) LoggedUser(ctx context.Context) (string, error) {
	var user string
	if err := c.Call(ctx, MethodLoggedUser, url.Values{}, &user); err != nil {
		return "", err
	}
	return user, nil
}

// Ping checks that the site answers at all.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	if err := c.Call(ctx, MethodPing, url.Values{}, &pong); err != nil {
		return err
	}
	if pong != "pong" {
		return fmt.Errorf("unexpected ping reply %q", pong)
	}
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

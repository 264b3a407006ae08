package attach

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cipl-app/xlimport/pkg/frappe"
)

type fakeUploader struct {
	name    string
	body    []byte
	private bool
	calls   int
	err     error
}

func (u *fakeUploader) UploadFile(_ context.Context, filename string, r io.Reader, private bool) (*frappe.UploadedFile, error) {
	u.calls++
	if u.err != nil {
		return nil, u.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	u.name, u.body, u.private = filename, b, private
	return &frappe.UploadedFile{FileName: filename, FileURL: "/private/files/" + filename}, nil
}

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "customers.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestValidateExtension(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"customers.xlsx", true},
		{"LEGACY.XLS", true},
		{"/private/files/a.xlsx", true},
		{"customers.csv", false},
		{"customers", false},
		{"archive.xlsx.zip", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExtension(tt.name)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
			}
		})
	}
}

func TestAttachPassesServerPathsThrough(t *testing.T) {
	up := &fakeUploader{}
	a := New(up)

	for _, ref := range []string{"/files/a.xlsx", "/private/files/b.xls", "https://erp.example.com/files/c.xlsx"} {
		got, err := a.Attach(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, ref, got)
	}
	assert.Zero(t, up.calls)
}

func TestAttachUploadsLocalFile(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"Name", "Email"}, {"Acme", "ops@acme.test"}})
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	up := &fakeUploader{}
	got, err := New(up).Attach(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "/private/files/customers.xlsx", got)
	assert.Equal(t, "customers.xlsx", up.name)
	assert.Equal(t, raw, up.body)
	assert.True(t, up.private)
}

func TestAttachPublicOption(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"Name"}})
	up := &fakeUploader{}
	_, err := New(up, Public()).Attach(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, up.private)
}

func TestAttachRejectsBeforeUpload(t *testing.T) {
	up := &fakeUploader{}
	a := New(up)

	_, err := a.Attach(context.Background(), "notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = a.Attach(context.Background(), "")
	assert.Error(t, err)

	_, err = a.Attach(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Zero(t, up.calls)
}

func TestAttachWrapsUploadError(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"Name"}})
	up := &fakeUploader{err: errors.New("403 forbidden")}
	_, err := New(up).Attach(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload customers.xlsx")
}

func TestInspectXLSX(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{" Name ", "Email", "Phone"},
		{"Acme", "ops@acme.test", "555"},
		{"Globex", "", ""},
	})

	p, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", p.Format)
	assert.Equal(t, []string{"Sheet1", "Notes"}, p.Sheets)
	assert.Equal(t, "Sheet1", p.Sheet)
	assert.Equal(t, []string{"Name", "Email", "Phone"}, p.Headers)
	assert.Equal(t, 2, p.Rows)
}

func TestInspectRejectsCorruptWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a workbook"), 0o644))
	_, err := Inspect(path)
	assert.Error(t, err)

	_, err = Inspect("customers.csv")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTrimHeaders(t *testing.T) {
	assert.Equal(t, []string{"A", "", "C"}, trimHeaders([]string{" A", "", "C ", " ", ""}))
	assert.Empty(t, trimHeaders([]string{"", " "}))
}

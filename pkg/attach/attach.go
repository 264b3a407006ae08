// Package attach turns a user's file choice into a file reference the
// Frappe server can read: local workbooks are checked and uploaded, paths
// already on the site are passed through.
package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cipl-app/xlimport/pkg/frappe"
)

// ErrUnsupportedFormat is returned for files that are not Excel workbooks.
var ErrUnsupportedFormat = errors.New("invalid file format, please upload an Excel file (.xlsx or .xls)")

var extensions = []string{".xlsx", ".xls"}

// ValidateExtension reports whether name looks like an Excel workbook.
func ValidateExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", filepath.Base(name), ErrUnsupportedFormat)
}

// IsServerRef reports whether ref already points at a file on the site.
func IsServerRef(ref string) bool {
	return strings.HasPrefix(ref, "/files/") ||
		strings.HasPrefix(ref, "/private/files/") ||
		strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://")
}

// Uploader stores a file on the site.
type Uploader interface {
	UploadFile(ctx context.Context, filename string, r io.Reader, private bool) (*frappe.UploadedFile, error)
}

// Attacher resolves file choices to server references.
type Attacher struct {
	up      Uploader
	private bool
	log     logrus.FieldLogger
}

// Option configures an Attacher.
type Option func(*Attacher)

// Public uploads files as public attachments. Files are private by default.
func Public() Option {
	return func(a *Attacher) { a.private = false }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Attacher) { a.log = log }
}

// New returns an Attacher that uploads through up.
func New(up Uploader, opts ...Option) *Attacher {
	a := &Attacher{up: up, private: true, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Attach returns the server reference for choice. A server path is returned
// as is; a local path is validated and uploaded.
func (a *Attacher) Attach(ctx context.Context, choice string) (string, error) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return "", errors.New("no file selected")
	}
	if err := ValidateExtension(choice); err != nil {
		return "", err
	}
	if IsServerRef(choice) {
		return choice, nil
	}

	f, err := os.Open(choice)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", choice, err)
	}
	defer f.Close()

	uploaded, err := a.up.UploadFile(ctx, filepath.Base(choice), f, a.private)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filepath.Base(choice), err)
	}
	if uploaded.FileURL == "" {
		return "", fmt.Errorf("upload %s: server returned no file url", filepath.Base(choice))
	}
	a.log.WithFields(logrus.Fields{"file": choice, "file_url": uploaded.FileURL}).Info("file uploaded")
	return uploaded.FileURL, nil
}

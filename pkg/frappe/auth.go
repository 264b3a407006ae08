package frappe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Auth holds token credentials for a Frappe site.
type Auth struct {
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`
	User      string `json:"user,omitempty"` // informational, filled after login check
}

// IsAuthenticated returns true if both halves of the token are present.
func (a *Auth) IsAuthenticated() bool {
	return a != nil && a.APIKey != "" && a.APISecret != ""
}

// Header returns the Authorization header value, or "" when unauthenticated.
func (a *Auth) Header() string {
	if !a.IsAuthenticated() {
		return ""
	}
	return fmt.Sprintf("token %s:%s", a.APIKey, a.APISecret)
}

// LoadAuth loads credentials from the given file.
// A missing file yields empty credentials, not an error.
func LoadAuth(path string) (*Auth, error) {
	if path == "" {
		path = AuthConfigPath()
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Auth{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read auth file: %w", err)
	}

	var auth Auth
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("parse auth file %s: %w", path, err)
	}
	return &auth, nil
}

// SaveAuth writes credentials with owner-only permissions.
func SaveAuth(path string, auth *Auth) error {
	if path == "" {
		path = AuthConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create auth dir: %w", err)
	}
	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ClearAuth removes stored credentials (logout).
func ClearAuth(path string) error {
	if path == "" {
		path = AuthConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(path)
}

// AuthConfigPath returns the default path of the auth file.
func AuthConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".xlimport", "auth.json")
}

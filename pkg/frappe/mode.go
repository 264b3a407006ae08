package frappe

import "context"

// Mode represents how far xlimport can get with the configured site.
type Mode int

const (
	// Offline means the site did not answer.
	Offline Mode = iota

	// Online means the site answers but the credentials are missing or rejected.
	// Preview and import calls will fail with a permission error.
	Online

	// Connected means the site accepted the credentials.
	Connected
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Offline:
		return "offline"
	case Online:
		return "online"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// CurrentMode queries the site and returns the operating mode and, when
// connected, the logged-in user.
func (c *Client) CurrentMode(ctx context.Context) (Mode, string) {
	if err := c.Ping(ctx); err != nil {
		return Offline, ""
	}
	if !c.auth.IsAuthenticated() {
		return Online, ""
	}
	user, err := c.LoggedUser(ctx)
	if err != nil || user == "" || user == "Guest" {
		return Online, ""
	}
	return Connected, user
}

// RequireConnected returns a user-friendly error unless the site accepted the credentials.
func (c *Client) RequireConnected(ctx context.Context) error {
	mode, _ := c.CurrentMode(ctx)
	if mode != Connected {
		return &ModeError{Mode: mode, SiteURL: c.siteURL}
	}
	return nil
}

// ModeError explains why a command cannot run against the site.
type ModeError struct {
	Mode    Mode
	SiteURL string
}

func (e *ModeError) Error() string {
	if e.Mode == Offline {
		return "cannot reach " + e.SiteURL
	}
	return "not authenticated with " + e.SiteURL + ": set FRAPPE_API_KEY and FRAPPE_API_SECRET"
}

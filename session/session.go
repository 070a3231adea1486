package session

import (
	"strings"
	"time"

	apperrors "github.com/hotspotlabs/go-portal-session/internal/errors"
)

// Teardown reasons recorded for diagnostics. Explicit logout, absolute
// expiry, and idle expiry all converge on the same teardown path.
const (
	ReasonManual        = "logout"
	ReasonExpired       = "session expired"
	ReasonInactivity    = "inactivity"
	ReasonRefreshFailed = "refresh failed"
)

// LoginType discriminates the two mutually exclusive credential shapes.
type LoginType string

const (
	LoginTypeAdmin LoginType = "admin" // requires a phone number
	LoginTypeStaff LoginType = "staff" // requires a staff identifier
)

// Credentials is the login request shape. The discriminator selects which
// secondary identifier is required; submitting the wrong shape fails fast
// with a local validation error before any network call.
type Credentials struct {
	Type        LoginType `json:"type"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	StaffID     string    `json:"staff_id,omitempty"`
}

// Validate checks the credential shape locally.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return apperrors.ErrMissingUsername
	}
	if c.Password == "" {
		return apperrors.ErrMissingPassword
	}
	switch c.Type {
	case LoginTypeAdmin:
		if strings.TrimSpace(c.PhoneNumber) == "" {
			return apperrors.ErrMissingPhoneNumber
		}
	case LoginTypeStaff:
		if strings.TrimSpace(c.StaffID) == "" {
			return apperrors.ErrMissingStaffID
		}
	default:
		return apperrors.ErrUnknownLoginType
	}
	return nil
}

// Identity is the authenticated user/account record, replaced wholesale on
// every login and refresh.
type Identity struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Session is the authenticated client state owned by the Store. It is
// either fully populated (identity, token, both deadlines armed) or fully
// zero; no partial state survives teardown.
type Session struct {
	Identity      *Identity
	AccessToken   string
	RefreshToken  string // empty when the backend issues none (admin portal)
	ExpiresAt     time.Time
	LastActivity  time.Time
	Authenticated bool
	Preferences   map[string]string
}

// Snapshot is the whitelisted subset of Session fields serialized to
// durable client-side storage on every mutation. Absence of a snapshot
// means "logged out" on next load.
type Snapshot struct {
	Identity      *Identity         `json:"identity,omitempty"`
	AccessToken   string            `json:"access_token,omitempty"`
	RefreshToken  string            `json:"refresh_token,omitempty"`
	Authenticated bool              `json:"authenticated"`
	ExpiresAt     time.Time         `json:"expires_at,omitempty"`
	LastActivity  time.Time         `json:"last_activity,omitempty"`
	Permissions   []string          `json:"permissions,omitempty"`
	Preferences   map[string]string `json:"preferences,omitempty"`
}

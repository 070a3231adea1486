package session

import (
	"context"

	"github.com/hotspotlabs/go-portal-session/token"
)

// SnapshotRepo defines the interface for durable snapshot storage.
// The Store saves a whitelisted snapshot on every mutation and restores it
// on process start.
type SnapshotRepo interface {
	// Save persists the snapshot, replacing any previous one
	Save(snap *Snapshot) error

	// Load retrieves the stored snapshot, or (nil, nil) when none exists
	Load() (*Snapshot, error)

	// Clear removes the stored snapshot
	Clear() error
}

// LoginResult is what the backend returns on a successful login or OTP
// verification.
type LoginResult struct {
	Identity *Identity
	Tokens   token.Pair
}

// AuthClient is the slice of the REST transport the Store depends on.
type AuthClient interface {
	// Login posts the appropriate login variant for the credential shape
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)

	// RequestOTP asks the backend to send a one-time code to the phone,
	// bound to this device fingerprint
	RequestOTP(ctx context.Context, phoneNumber, fingerprint string) error

	// VerifyOTP exchanges a delivered one-time code for a token pair
	VerifyOTP(ctx context.Context, phoneNumber, code, fingerprint string) (*LoginResult, error)

	// Refresh exchanges the stored refresh token for a new token pair
	Refresh(ctx context.Context, refreshToken, fingerprint string) (*token.Pair, error)

	// Logout notifies the backend with the pre-teardown bearer credential;
	// best-effort, the caller ignores failures
	Logout(ctx context.Context, accessToken string) error
}

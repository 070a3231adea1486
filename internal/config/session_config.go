package config

import "time"

type SessionConfig interface {
	GetIdleWindow() time.Duration
	GetFallbackTokenLifetime() time.Duration
	GetSnapshotName() string
	GetSuperAdminRole() string
}

type Session struct{}

var _ SessionConfig = Session{}

// GetIdleWindow is the maximum allowed gap between observed user activity
// events before the session is considered abandoned.
func (Session) GetIdleWindow() time.Duration {
	return 30 * time.Minute
}

// GetFallbackTokenLifetime is used when the access token carries no
// parseable expiry claim.
func (Session) GetFallbackTokenLifetime() time.Duration {
	return 8 * time.Hour
}

func (Session) GetSnapshotName() string {
	return "portal-session.json"
}

func (Session) GetSuperAdminRole() string {
	return "SUPER_ADMIN"
}

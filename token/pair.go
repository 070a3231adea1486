package token

// Pair is what the login and refresh endpoints return: the short-lived
// access token (JWT) plus an optional opaque refresh token. The admin portal
// backend does not issue refresh tokens; the customer portal does.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"` // typically "bearer"
	ExpiresIn    int64  `json:"expires_in,omitempty"` // seconds until expiry
}

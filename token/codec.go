package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hotspotlabs/go-portal-session/internal/utils"
)

// DecodeClaims extracts the claims of a bearer token without verifying its
// signature. The server remains the sole authority on token validity; these
// claims only drive client-side scheduling and display.
//
// Any parse failure (malformed base64, invalid JSON, wrong part count)
// yields empty claims rather than an error, so callers always take the
// fallback path silently.
func DecodeClaims(rawToken string) jwt.MapClaims {
	if strings.TrimSpace(rawToken) == "" {
		return jwt.MapClaims{}
	}

	unverifiedToken, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return jwt.MapClaims{}
	}

	claims, ok := unverifiedToken.Claims.(jwt.MapClaims)
	if !ok {
		return jwt.MapClaims{}
	}
	return claims
}

// ExpiryAt returns the absolute expiry encoded in the token's "exp" claim.
// When the claim is absent or unparseable it returns now plus the fallback
// lifetime instead.
func ExpiryAt(rawToken string, now time.Time, fallback time.Duration) time.Time {
	claims := DecodeClaims(rawToken)

	exp, ok := claims["exp"].(float64)
	if !ok || exp <= 0 {
		return now.Add(fallback)
	}
	return time.Unix(int64(exp), 0)
}

// Permissions extracts the "permissions" claim list, if present.
func Permissions(rawToken string) []string {
	claims := DecodeClaims(rawToken)

	claimPerms, ok := claims["permissions"].([]any)
	if !ok {
		return nil
	}
	return utils.ToStringSlice(claimPerms)
}

// Subject extracts the "sub" claim, if present.
func Subject(rawToken string) string {
	sub, _ := DecodeClaims(rawToken)["sub"].(string)
	return sub
}

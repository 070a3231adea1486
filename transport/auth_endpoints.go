package transport

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/hotspotlabs/go-portal-session/session"
	"github.com/hotspotlabs/go-portal-session/token"
)

// Route constants for the auth surface of the backend.
const (
	loginRoute      = "/api/v1/auth/login"
	otpRequestRoute = "/api/v1/auth/otp/request"
	otpVerifyRoute  = "/api/v1/auth/otp/verify"
	refreshRoute    = "/api/v1/auth/refresh"
	logoutRoute     = "/api/v1/auth/logout"
)

var _ session.AuthClient = (*Client)(nil)

type loginResponse struct {
	User         *session.Identity `json:"user"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int64             `json:"expires_in"`
}

func (r *loginResponse) result() *session.LoginResult {
	return &session.LoginResult{
		Identity: r.User,
		Tokens: token.Pair{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			TokenType:    r.TokenType,
			ExpiresIn:    r.ExpiresIn,
		},
	}
}

// Login posts the credential shape selected by the discriminator. The
// store validates the shape before this is ever called.
func (c *Client) Login(ctx context.Context, creds session.Credentials) (*session.LoginResult, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, loginRoute, creds, &resp, requestOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Login]")
	}
	return resp.result(), nil
}

type otpRequest struct {
	PhoneNumber       string `json:"phone_number"`
	Code              string `json:"code,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

// RequestOTP asks the backend to deliver a one-time code, bound to this
// device fingerprint.
func (c *Client) RequestOTP(ctx context.Context, phoneNumber, fingerprint string) error {
	body := otpRequest{PhoneNumber: phoneNumber, DeviceFingerprint: fingerprint}
	return errors.Wrap(c.do(ctx, http.MethodPost, otpRequestRoute, body, nil, requestOptions{}), "[Client.RequestOTP]")
}

// VerifyOTP exchanges a delivered code for a token pair.
func (c *Client) VerifyOTP(ctx context.Context, phoneNumber, code, fingerprint string) (*session.LoginResult, error) {
	body := otpRequest{PhoneNumber: phoneNumber, Code: code, DeviceFingerprint: fingerprint}
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, otpVerifyRoute, body, &resp, requestOptions{}); err != nil {
		return nil, errors.Wrap(err, "[Client.VerifyOTP]")
	}
	return resp.result(), nil
}

type refreshRequest struct {
	RefreshToken      string `json:"refresh_token"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
}

// Refresh exchanges the refresh token for a new pair. Never retried on
// 401: a rejected refresh token is final.
func (c *Client) Refresh(ctx context.Context, refreshToken, fingerprint string) (*token.Pair, error) {
	body := refreshRequest{RefreshToken: refreshToken, DeviceFingerprint: fingerprint}
	var pair token.Pair
	if err := c.do(ctx, http.MethodPost, refreshRoute, body, &pair, requestOptions{}); err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh]")
	}
	return &pair, nil
}

// Logout notifies the backend that the session ended, carrying the bearer
// credential captured before local teardown cleared it. Best-effort: the
// store tears down locally regardless of the outcome.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return errors.Wrap(c.do(ctx, http.MethodPost, logoutRoute, nil, nil, requestOptions{authorized: true, bearer: accessToken}), "[Client.Logout]")
}

// Get performs an authorized GET against the backend, refreshing and
// retrying once on 401.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return errors.Wrapf(c.do(ctx, http.MethodGet, path, nil, out, requestOptions{authorized: true, retryOn401: true}), "[Client.Get] %s", path)
}

// Post performs an authorized POST against the backend, refreshing and
// retrying once on 401.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return errors.Wrapf(c.do(ctx, http.MethodPost, path, body, out, requestOptions{authorized: true, retryOn401: true}), "[Client.Post] %s", path)
}

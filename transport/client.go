// Package transport is the REST client for the billing platform backend.
// It attaches the bearer credential supplied by the session store and
// retries a request once after an automatic refresh when the server
// answers 401.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	apperrors "github.com/hotspotlabs/go-portal-session/internal/errors"
)

const defaultRequestTimeout = 15 * time.Second

// SessionState is the read-only slice of the session store the transport
// consumes. It never reaches into mutable session fields directly.
type SessionState interface {
	AccessToken() string
	RefreshAuth(ctx context.Context) error
}

// Client performs authorized calls against the portal backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	state      SessionState
	log        zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (primarily for
// testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClientLogger sets the transport logger.
func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a transport client for the given base URL.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[NewClient] base URL is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// BindSession attaches the session state after store construction. The
// store needs the client to exist first, so wiring is two-phase.
func (c *Client) BindSession(state SessionState) {
	c.state = state
}

// APIError carries the HTTP status and the human-readable message
// extracted from the server's error payload, when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

type requestOptions struct {
	authorized bool   // attach the bearer header when a token is present
	retryOn401 bool   // one automatic refresh-and-retry per request
	bearer     string // explicit credential overriding the session state
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, opts requestOptions) error {
	alreadyRetried := false

	for {
		resp, err := c.send(ctx, method, path, body, opts)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && opts.retryOn401 && !alreadyRetried && c.state != nil {
			_ = resp.Body.Close()
			alreadyRetried = true
			c.log.Debug().Str("path", path).Msg("401 received, attempting token refresh")
			if err := c.state.RefreshAuth(ctx); err != nil {
				return errors.Wrap(apperrors.ErrUnauthorized, "[Client.do] refresh after 401")
			}
			continue
		}

		return c.decode(resp, path, out)
	}
}

func (c *Client) send(ctx context.Context, method, path string, body any, opts requestOptions) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.send] Marshal")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.send] NewRequest")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.authorized {
		accessToken := opts.bearer
		if accessToken == "" && c.state != nil {
			accessToken = c.state.AccessToken()
		}
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrUnavailable, err.Error())
	}
	return resp, nil
}

func (c *Client) decode(resp *http.Response, path string, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "[Client.decode] %s", path)
	}
	return nil
}

// errorFromResponse extracts the server's human-readable message when the
// payload carries one; otherwise the caller sees a generic fallback.
func (c *Client) errorFromResponse(resp *http.Response, path string) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil {
		if payload.Message != "" {
			apiErr.Message = payload.Message
		} else if payload.Error != "" {
			apiErr.Message = payload.Error
		}
	}

	c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Str("message", apiErr.Message).Msg("request failed")

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return errors.Wrap(apperrors.ErrUnauthorized, apiErr.Error())
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return errors.Wrap(apperrors.ErrUnavailable, apiErr.Error())
	}
	return apiErr
}

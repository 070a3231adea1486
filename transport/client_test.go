package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/hotspotlabs/go-portal-session/internal/errors"
	"github.com/hotspotlabs/go-portal-session/session"
	"github.com/hotspotlabs/go-portal-session/transport"
)

type fakeSessionState struct {
	lock         sync.Mutex
	accessToken  string
	refreshErr   error
	refreshCalls int
	nextToken    string
}

func (f *fakeSessionState) AccessToken() string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.accessToken
}

func (f *fakeSessionState) RefreshAuth(_ context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.accessToken = f.nextToken
	return nil
}

func (f *fakeSessionState) RefreshCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.refreshCalls
}

func newClient(t *testing.T, srv *httptest.Server, state transport.SessionState) *transport.Client {
	t.Helper()
	c, err := transport.NewClient(srv.URL)
	require.NoError(t, err)
	if state != nil {
		c.BindSession(state)
	}
	return c
}

func TestBearerHeaderAttached(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := newClient(t, srv, &fakeSessionState{accessToken: "token-1"})

	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "/api/v1/customers", &out))
	require.Equal(t, "Bearer token-1", gotAuth)
}

func TestUnauthorizedTriggersSingleRefreshAndRetry(t *testing.T) {
	var calls int
	var lastAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		lastAuth = r.Header.Get("Authorization")
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	state := &fakeSessionState{accessToken: "stale", nextToken: "fresh"}
	c := newClient(t, srv, state)

	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "/api/v1/routers", &out))
	require.Equal(t, 2, calls)
	require.Equal(t, 1, state.RefreshCalls())
	require.Equal(t, "Bearer fresh", lastAuth)
}

func TestUnauthorizedRetriedAtMostOnce(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	state := &fakeSessionState{accessToken: "stale", nextToken: "still-stale"}
	c := newClient(t, srv, state)

	err := c.Get(context.Background(), "/api/v1/routers", nil)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, state.RefreshCalls())
}

func TestFailedRefreshSurfacesUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	state := &fakeSessionState{accessToken: "stale", refreshErr: apperrors.ErrRefreshRejected}
	c := newClient(t, srv, state)

	err := c.Get(context.Background(), "/api/v1/packages", nil)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.Equal(t, 1, state.RefreshCalls())
}

func TestServerErrorMessageExtracted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "phone number not registered"})
	}))
	defer srv.Close()

	c := newClient(t, srv, nil)
	_, err := c.Login(context.Background(), session.Credentials{
		Type:        session.LoginTypeAdmin,
		Username:    "ops.admin",
		Password:    "secret",
		PhoneNumber: "+254700000001",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "phone number not registered")
}

func TestLoginPostsCredentialShape(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/login", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":          map[string]any{"id": "user-1", "username": "reception"},
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
		})
	}))
	defer srv.Close()

	c := newClient(t, srv, nil)
	result, err := c.Login(context.Background(), session.Credentials{
		Type:     session.LoginTypeStaff,
		Username: "reception",
		Password: "secret",
		StaffID:  "STF-042",
	})
	require.NoError(t, err)
	require.Equal(t, "staff", body["type"])
	require.Equal(t, "STF-042", body["staff_id"])
	require.NotContains(t, body, "phone_number")
	require.Equal(t, "user-1", result.Identity.ID)
	require.Equal(t, "access-1", result.Tokens.AccessToken)
}

func TestRefreshPostsFingerprint(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "access-2", "refresh_token": "refresh-2"})
	}))
	defer srv.Close()

	c := newClient(t, srv, nil)
	pair, err := c.Refresh(context.Background(), "refresh-1", "device-abc")
	require.NoError(t, err)
	require.Equal(t, "refresh-1", body["refresh_token"])
	require.Equal(t, "device-abc", body["device_fingerprint"])
	require.Equal(t, "access-2", pair.AccessToken)
}

func TestLogoutCarriesExplicitBearer(t *testing.T) {
	// The session state is already cleared when logout goes out; the header
	// must come from the token handed to Logout, not from the state.
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/logout", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newClient(t, srv, &fakeSessionState{accessToken: ""})
	require.NoError(t, c.Logout(context.Background(), "token-before-teardown"))
	require.Equal(t, "Bearer token-before-teardown", gotAuth)
}

func TestLoginEndpointNotAuthorized(t *testing.T) {
	// Login must not carry a stale bearer header or trigger 401 retries.
	var calls int
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid credentials"})
	}))
	defer srv.Close()

	state := &fakeSessionState{accessToken: "stale"}
	c := newClient(t, srv, state)

	_, err := c.Login(context.Background(), session.Credentials{
		Type:        session.LoginTypeAdmin,
		Username:    "ops.admin",
		Password:    "wrong",
		PhoneNumber: "+254700000001",
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, gotAuth)
	require.Equal(t, 0, state.RefreshCalls())
}

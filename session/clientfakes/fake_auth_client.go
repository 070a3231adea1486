package clientfakes

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/hotspotlabs/go-portal-session/session"
	"github.com/hotspotlabs/go-portal-session/token"
)

var _ session.AuthClient = (*FakeAuthClient)(nil)

// FakeAuthClient records calls and serves canned results for store and
// coordinator tests.
type FakeAuthClient struct {
	lock sync.Mutex

	LoginResult  *session.LoginResult
	LoginErr     error
	RefreshPair  *token.Pair
	RefreshErr   error
	VerifyResult *session.LoginResult
	VerifyErr    error
	LogoutErr    error

	// RefreshGate, when set, blocks Refresh until the gate is closed,
	// simulating an in-flight renewal racing other session events.
	RefreshGate chan struct{}

	LoginCalls   int
	RefreshCalls int
	OTPCalls     int
	VerifyCalls  int
	LogoutCalls  int

	LastRefreshToken string
	LastFingerprint  string
	LastLogoutToken  string
}

func NewFakeAuthClient() *FakeAuthClient {
	return &FakeAuthClient{}
}

func (c *FakeAuthClient) Login(_ context.Context, _ session.Credentials) (*session.LoginResult, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.LoginCalls++
	if c.LoginErr != nil {
		return nil, c.LoginErr
	}
	if c.LoginResult == nil {
		return nil, errors.New("no login result configured")
	}
	return c.LoginResult, nil
}

func (c *FakeAuthClient) RequestOTP(_ context.Context, _, fingerprint string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.OTPCalls++
	c.LastFingerprint = fingerprint
	return nil
}

func (c *FakeAuthClient) VerifyOTP(_ context.Context, _, _, fingerprint string) (*session.LoginResult, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.VerifyCalls++
	c.LastFingerprint = fingerprint
	if c.VerifyErr != nil {
		return nil, c.VerifyErr
	}
	if c.VerifyResult == nil {
		return nil, errors.New("no verify result configured")
	}
	return c.VerifyResult, nil
}

func (c *FakeAuthClient) Refresh(_ context.Context, refreshToken, fingerprint string) (*token.Pair, error) {
	c.lock.Lock()
	gate := c.RefreshGate
	c.lock.Unlock()
	if gate != nil {
		<-gate
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.RefreshCalls++
	c.LastRefreshToken = refreshToken
	c.LastFingerprint = fingerprint
	if c.RefreshErr != nil {
		return nil, c.RefreshErr
	}
	if c.RefreshPair == nil {
		return nil, errors.New("no refresh pair configured")
	}
	return c.RefreshPair, nil
}

func (c *FakeAuthClient) Logout(_ context.Context, accessToken string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.LogoutCalls++
	c.LastLogoutToken = accessToken
	return c.LogoutErr
}

// Calls returns a snapshot of call counts for race-free assertions.
func (c *FakeAuthClient) Calls() (login, refresh, logout int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.LoginCalls, c.RefreshCalls, c.LogoutCalls
}

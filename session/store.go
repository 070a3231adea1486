package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	apperrors "github.com/hotspotlabs/go-portal-session/internal/errors"
	"github.com/hotspotlabs/go-portal-session/metrics"
	"github.com/hotspotlabs/go-portal-session/token"
)

const (
	// DefaultIdleWindow is the idle budget between observed activity events.
	DefaultIdleWindow = 30 * time.Minute

	// DefaultFallbackLifetime bounds the session when the access token
	// carries no parseable expiry claim.
	DefaultFallbackLifetime = 8 * time.Hour

	// DefaultSuperAdminRole is the role sentinel that overrides permission
	// membership checks.
	DefaultSuperAdminRole = "SUPER_ADMIN"

	logoutTimeout = 5 * time.Second
)

// Store owns the single mutable Session and the bearer credential consumed
// by the transport layer. All mutation is serialized through its mutex;
// timer fires, activity events, and network responses captured under an
// older generation are discarded, so teardown runs exactly once per
// session episode.
type Store struct {
	client AuthClient
	repo   SnapshotRepo

	idleWindow       time.Duration
	fallbackLifetime time.Duration
	superAdminRole   string
	fingerprint      string
	nowFunc          func() time.Time
	log              zerolog.Logger

	mu               sync.Mutex
	sess             Session
	generation       uint64
	lastLogoutReason string
	watcherCancel    context.CancelFunc
	subscribers      []chan Snapshot

	activity <-chan struct{}

	absolute Deadline
	idle     Deadline
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithIdleWindow overrides the idle budget.
func WithIdleWindow(d time.Duration) StoreOption {
	return func(s *Store) {
		s.idleWindow = d
	}
}

// WithFallbackLifetime overrides the expiry used for tokens without a
// parseable exp claim.
func WithFallbackLifetime(d time.Duration) StoreOption {
	return func(s *Store) {
		s.fallbackLifetime = d
	}
}

// WithSuperAdminRole overrides the universal-override role sentinel.
func WithSuperAdminRole(role string) StoreOption {
	return func(s *Store) {
		s.superAdminRole = role
	}
}

// WithFingerprint binds the device fingerprint sent on OTP and refresh
// calls.
func WithFingerprint(fp string) StoreOption {
	return func(s *Store) {
		s.fingerprint = fp
	}
}

// WithActivitySource attaches the coarse-grained activity feed drained by
// the watcher while a session is live.
func WithActivitySource(events <-chan struct{}) StoreOption {
	return func(s *Store) {
		s.activity = events
	}
}

// WithLogger sets the store logger.
func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore initializes a Store with required dependencies and restores any
// persisted snapshot. A restored authenticated snapshot re-arms both
// deadlines and the activity watcher, so a reload never yields a partially
// authenticated state.
func NewStore(client AuthClient, repo SnapshotRepo, options ...StoreOption) (*Store, error) {
	if client == nil {
		return nil, errors.New("[NewStore] auth client is required")
	}
	if repo == nil {
		return nil, errors.New("[NewStore] snapshot repo is required")
	}

	s := &Store{
		client:           client,
		repo:             repo,
		idleWindow:       DefaultIdleWindow,
		fallbackLifetime: DefaultFallbackLifetime,
		superAdminRole:   DefaultSuperAdminRole,
		nowFunc:          time.Now,
		log:              zerolog.Nop(),
	}

	for _, opt := range options {
		opt(s)
	}

	if err := s.restore(); err != nil {
		return nil, errors.Wrap(err, "[NewStore] restore")
	}

	return s, nil
}

// Login dispatches the login variant selected by the credential
// discriminator. The wrong shape fails fast with a validation error before
// any network call. On failure no partial identity is retained.
func (s *Store) Login(ctx context.Context, creds Credentials) (*Identity, error) {
	if err := creds.Validate(); err != nil {
		metrics.Logins.WithLabelValues("validation").Inc()
		return nil, err
	}

	result, err := s.client.Login(ctx, creds)
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		s.mu.Lock()
		s.clearLocked()
		s.mu.Unlock()
		return nil, errors.Wrap(err, "[Store.Login] client.Login")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLoginLocked(result)
	metrics.Logins.WithLabelValues("success").Inc()
	s.log.Info().Str("username", result.Identity.Username).Msg("session established")
	return result.Identity, nil
}

// RequestOTP asks the backend to deliver a one-time code bound to this
// device fingerprint.
func (s *Store) RequestOTP(ctx context.Context, phoneNumber string) error {
	if strings.TrimSpace(phoneNumber) == "" {
		return apperrors.ErrMissingPhoneNumber
	}
	return errors.Wrap(s.client.RequestOTP(ctx, phoneNumber, s.fingerprint), "[Store.RequestOTP] client.RequestOTP")
}

// LoginWithOTP exchanges a delivered one-time code for a session.
func (s *Store) LoginWithOTP(ctx context.Context, phoneNumber, code string) (*Identity, error) {
	if strings.TrimSpace(phoneNumber) == "" {
		metrics.Logins.WithLabelValues("validation").Inc()
		return nil, apperrors.ErrMissingPhoneNumber
	}
	if strings.TrimSpace(code) == "" {
		metrics.Logins.WithLabelValues("validation").Inc()
		return nil, apperrors.ErrOTPRejected
	}

	result, err := s.client.VerifyOTP(ctx, phoneNumber, code, s.fingerprint)
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		s.mu.Lock()
		s.clearLocked()
		s.mu.Unlock()
		return nil, errors.Wrap(err, "[Store.LoginWithOTP] client.VerifyOTP")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLoginLocked(result)
	metrics.Logins.WithLabelValues("success").Inc()
	return result.Identity, nil
}

// Logout tears the session down and records the reason. Teardown is local
// and durable regardless of server reachability; the backend notification
// is best-effort. Calling Logout on an already-cleared session is a no-op.
func (s *Store) Logout(ctx context.Context, reason string) {
	s.mu.Lock()
	if !s.sess.Authenticated {
		s.mu.Unlock()
		return
	}
	// Captured before teardown wipes it; the backend still needs the bearer
	// credential to identify which session to end.
	accessToken := s.sess.AccessToken
	s.teardownLocked(reason)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()
	if err := s.client.Logout(ctx, accessToken); err != nil {
		s.log.Debug().Err(err).Msg("best-effort logout call failed")
	}
}

// RefreshAuth posts the stored refresh token for a new token pair. Any
// failure, including a missing refresh token, immediately tears the
// session down. A response captured before a logout or newer refresh is
// discarded.
func (s *Store) RefreshAuth(ctx context.Context) error {
	err := s.refresh(ctx, true)
	return errors.Wrap(err, "[Store.RefreshAuth]")
}

// TryRefresh is the non-fatal variant used by the proactive refresh
// coordinator: a failed attempt leaves the session intact so the
// coordinator can apply its own retry budget.
func (s *Store) TryRefresh(ctx context.Context) error {
	err := s.refresh(ctx, false)
	return errors.Wrap(err, "[Store.TryRefresh]")
}

func (s *Store) refresh(ctx context.Context, fatal bool) error {
	s.mu.Lock()
	if !s.sess.Authenticated {
		s.mu.Unlock()
		return apperrors.ErrNotAuthenticated
	}
	refreshToken := s.sess.RefreshToken
	if refreshToken == "" {
		if fatal {
			s.teardownLocked(ReasonRefreshFailed)
		}
		s.mu.Unlock()
		metrics.Refreshes.WithLabelValues("failure").Inc()
		return apperrors.ErrNoRefreshToken
	}
	gen := s.generation
	fingerprint := s.fingerprint
	s.mu.Unlock()

	pair, err := s.client.Refresh(ctx, refreshToken, fingerprint)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		// A logout or newer refresh advanced the session while this
		// request was in flight; its outcome no longer applies.
		s.log.Debug().Msg("stale refresh response discarded")
		metrics.Refreshes.WithLabelValues("stale").Inc()
		return nil
	}

	if err != nil {
		metrics.Refreshes.WithLabelValues("failure").Inc()
		if fatal {
			s.teardownLocked(ReasonRefreshFailed)
		}
		return errors.Wrap(err, "client.Refresh")
	}

	now := s.nowFunc()
	s.generation++
	s.sess.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		s.sess.RefreshToken = pair.RefreshToken
	}
	s.sess.ExpiresAt = token.ExpiryAt(pair.AccessToken, now, s.fallbackLifetime)
	s.armDeadlinesLocked()
	s.persistLocked()
	s.notifyLocked()
	metrics.Refreshes.WithLabelValues("success").Inc()
	s.log.Debug().Time("expires_at", s.sess.ExpiresAt).Msg("token refreshed")
	return nil
}

// RecordActivity stamps now as the last observed user activity and rearms
// the idle deadline. No-op without a live session.
func (s *Store) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sess.Authenticated {
		return
	}
	s.sess.LastActivity = s.nowFunc()
	s.armIdleLocked(s.generation)
	s.persistLocked()
}

// IsSessionValid reports whether the session is authenticated, within its
// idle window, and before its absolute expiry. Pure read, no side effects.
func (s *Store) IsSessionValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sess.Authenticated {
		return false
	}
	now := s.nowFunc()
	if now.Sub(s.sess.LastActivity) >= s.idleWindow {
		return false
	}
	if !s.sess.ExpiresAt.IsZero() && !now.Before(s.sess.ExpiresAt) {
		return false
	}
	return true
}

// HasPermission checks membership against the stored permission list. The
// super-admin role overrides the check.
func (s *Store) HasPermission(permission string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPermissionLocked(permission)
}

// HasAnyPermission reports whether any of the given permissions is held.
func (s *Store) HasAnyPermission(permissions ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range permissions {
		if s.hasPermissionLocked(p) {
			return true
		}
	}
	return false
}

// AccessToken returns the current bearer credential, or "" when logged
// out. The transport layer consumes this instead of reaching into session
// fields.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.AccessToken
}

// Identity returns the current identity, or nil when logged out.
func (s *Store) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Identity
}

// LastLogoutReason returns the reason recorded by the most recent
// teardown.
func (s *Store) LastLogoutReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLogoutReason
}

// Snapshot returns a read-only copy of the persisted session fields.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every session
// mutation. Slow subscribers miss intermediate states, never block the
// store.
func (s *Store) Subscribe() <-chan Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 8)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe detaches a channel returned by Subscribe and closes it.
// Unknown channels are ignored.
func (s *Store) Unsubscribe(ch <-chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

func (s *Store) hasPermissionLocked(permission string) bool {
	if !s.sess.Authenticated || s.sess.Identity == nil {
		return false
	}
	if s.sess.Identity.Role == s.superAdminRole {
		return true
	}
	for _, p := range s.sess.Identity.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// applyLoginLocked populates the session from a login result, arms both
// deadlines, starts the activity watcher, and persists the snapshot.
func (s *Store) applyLoginLocked(result *LoginResult) {
	now := s.nowFunc()

	identity := result.Identity
	if identity == nil {
		identity = &Identity{ID: token.Subject(result.Tokens.AccessToken)}
	}
	if len(identity.Permissions) == 0 {
		identity.Permissions = token.Permissions(result.Tokens.AccessToken)
	}

	s.generation++
	s.sess = Session{
		Identity:      identity,
		AccessToken:   result.Tokens.AccessToken,
		RefreshToken:  result.Tokens.RefreshToken,
		ExpiresAt:     token.ExpiryAt(result.Tokens.AccessToken, now, s.fallbackLifetime),
		LastActivity:  now,
		Authenticated: true,
		Preferences:   map[string]string{},
	}
	s.armDeadlinesLocked()
	s.startWatcherLocked()
	s.persistLocked()
	s.notifyLocked()
}

// teardownLocked is the single teardown path shared by explicit logout,
// absolute expiry, and idle expiry. Advancing the generation invalidates
// every pending timer callback and in-flight network response.
func (s *Store) teardownLocked(reason string) {
	s.generation++
	s.absolute.Cancel()
	s.idle.Cancel()
	s.stopWatcherLocked()
	s.sess = Session{}
	s.lastLogoutReason = reason
	if err := s.repo.Clear(); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear session snapshot")
	}
	s.notifyLocked()
	metrics.Teardowns.WithLabelValues(reason).Inc()
	s.log.Info().Str("reason", reason).Msg("session torn down")
}

// clearLocked wipes session state after a failed login without recording a
// teardown reason; there was never a live session to tear down.
func (s *Store) clearLocked() {
	s.generation++
	s.absolute.Cancel()
	s.idle.Cancel()
	s.stopWatcherLocked()
	s.sess = Session{}
	if err := s.repo.Clear(); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear session snapshot")
	}
	s.notifyLocked()
}

func (s *Store) armDeadlinesLocked() {
	gen := s.generation
	s.armAbsoluteLocked(gen)
	// The idle slot gets the remaining budget, not a fresh window. Only
	// RecordActivity moves lastActivity, so rearming here (login, restore,
	// refresh) never pushes the idle deadline past lastActivity+window.
	s.idle.Arm(s.idleWindow-s.nowFunc().Sub(s.sess.LastActivity), func() { s.onIdleDeadline(gen) })
}

func (s *Store) armAbsoluteLocked(gen uint64) {
	delay := s.sess.ExpiresAt.Sub(s.nowFunc())
	if delay < 0 {
		delay = 0
	}
	s.absolute.Arm(delay, func() { s.onAbsoluteDeadline(gen) })
}

func (s *Store) armIdleLocked(gen uint64) {
	s.idle.Arm(s.idleWindow, func() { s.onIdleDeadline(gen) })
}

func (s *Store) onAbsoluteDeadline(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || !s.sess.Authenticated {
		return
	}
	if s.nowFunc().Before(s.sess.ExpiresAt) {
		// Clock adjustment; rearm for the remainder.
		s.armAbsoluteLocked(gen)
		return
	}
	s.teardownLocked(ReasonExpired)
}

func (s *Store) onIdleDeadline(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || !s.sess.Authenticated {
		return
	}
	idleFor := s.nowFunc().Sub(s.sess.LastActivity)
	if idleFor < s.idleWindow {
		// Activity raced the fire; rearm for the remaining budget.
		s.idle.Arm(s.idleWindow-idleFor, func() { s.onIdleDeadline(gen) })
		return
	}
	s.teardownLocked(ReasonInactivity)
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Identity:      s.sess.Identity,
		AccessToken:   s.sess.AccessToken,
		RefreshToken:  s.sess.RefreshToken,
		Authenticated: s.sess.Authenticated,
		ExpiresAt:     s.sess.ExpiresAt,
		LastActivity:  s.sess.LastActivity,
		Preferences:   s.sess.Preferences,
	}
	if s.sess.Identity != nil {
		snap.Permissions = s.sess.Identity.Permissions
	}
	return snap
}

func (s *Store) persistLocked() {
	snap := s.snapshotLocked()
	if err := s.repo.Save(&snap); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist session snapshot")
	}
}

func (s *Store) notifyLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// restore repopulates the session from a persisted snapshot. A snapshot
// indicating a prior authenticated state reinstates the bearer credential
// and re-arms deadlines and the watcher.
func (s *Store) restore() error {
	snap, err := s.repo.Load()
	if err != nil {
		return errors.Wrap(err, "repo.Load")
	}
	if snap == nil || !snap.Authenticated {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identity := snap.Identity
	if identity != nil && len(identity.Permissions) == 0 {
		identity.Permissions = snap.Permissions
	}

	preferences := snap.Preferences
	if preferences == nil {
		preferences = map[string]string{}
	}

	s.generation++
	s.sess = Session{
		Identity:      identity,
		AccessToken:   snap.AccessToken,
		RefreshToken:  snap.RefreshToken,
		ExpiresAt:     snap.ExpiresAt,
		LastActivity:  snap.LastActivity,
		Authenticated: true,
		Preferences:   preferences,
	}
	s.armDeadlinesLocked()
	s.startWatcherLocked()
	s.log.Info().Msg("session restored from snapshot")
	return nil
}

// SetPreference stores a UI preference in the persisted snapshot.
func (s *Store) SetPreference(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sess.Authenticated {
		return
	}
	if s.sess.Preferences == nil {
		s.sess.Preferences = map[string]string{}
	}
	s.sess.Preferences[key] = value
	s.persistLocked()
	s.notifyLocked()
}

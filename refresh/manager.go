// Package refresh proactively renews the access token ahead of its nominal
// lifetime, rather than waiting for the session store's absolute deadline.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hotspotlabs/go-portal-session/session"
)

// State is the coordinator's scheduling state.
type State string

const (
	StateIdle       State = "idle"       // no session, nothing scheduled
	StateScheduled  State = "scheduled"  // renewal tick armed
	StateRefreshing State = "refreshing" // renewal request in flight
)

const (
	// DefaultInterval is the nominal renewal cadence.
	DefaultInterval = 15 * time.Minute

	// DefaultSafetyBuffer is subtracted from the interval so renewal lands
	// before the nominal token lifetime.
	DefaultSafetyBuffer = 5 * time.Minute

	// DefaultRetryBudget is the number of consecutive failures tolerated
	// before escalating to a forced logout.
	DefaultRetryBudget = 3

	defaultRequestTimeout = 30 * time.Second
)

// Refresher is the slice of the session store the coordinator drives. The
// non-fatal variant is required: individual failures are swallowed until
// the retry budget is exhausted.
type Refresher interface {
	TryRefresh(ctx context.Context) error
}

// Manager schedules token renewal and applies the bounded retry policy.
// Each schedule tick clears the previous pending timer before arming the
// new one, so at most one tick is ever pending.
type Manager struct {
	session        Refresher
	logout         func(reason string)
	interval       time.Duration
	buffer         time.Duration
	budget         int
	requestTimeout time.Duration
	log            zerolog.Logger

	mu       sync.Mutex
	state    State
	failures int
	deadline session.Deadline
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithCadence overrides the renewal interval and safety buffer.
func WithCadence(interval, buffer time.Duration) ManagerOption {
	return func(m *Manager) {
		m.interval = interval
		m.buffer = buffer
	}
}

// WithRetryBudget overrides the consecutive-failure budget.
func WithRetryBudget(budget int) ManagerOption {
	return func(m *Manager) {
		m.budget = budget
	}
}

// WithRequestTimeout bounds each renewal request.
func WithRequestTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.requestTimeout = d
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a refresh coordinator. logout is invoked exactly once
// when the retry budget is exhausted.
func NewManager(refresher Refresher, logout func(reason string), options ...ManagerOption) (*Manager, error) {
	if refresher == nil {
		return nil, errors.New("[NewManager] refresher is required")
	}
	if logout == nil {
		return nil, errors.New("[NewManager] logout callback is required")
	}

	m := &Manager{
		session:        refresher,
		logout:         logout,
		interval:       DefaultInterval,
		buffer:         DefaultSafetyBuffer,
		budget:         DefaultRetryBudget,
		requestTimeout: defaultRequestTimeout,
		state:          StateIdle,
		log:            zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Start arms the first renewal tick. No-op while already running.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return
	}
	m.failures = 0
	m.scheduleLocked()
}

// Stop cancels any pending tick and resets the failure counter.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.failures = 0
	m.deadline.Cancel()
}

// State returns the current scheduling state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Failures returns the consecutive-failure count.
func (m *Manager) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

func (m *Manager) scheduleLocked() {
	m.state = StateScheduled
	delay := m.interval - m.buffer
	if delay <= 0 {
		delay = m.interval
	}
	m.deadline.Arm(delay, m.tick)
}

func (m *Manager) tick() {
	m.mu.Lock()
	if m.state != StateScheduled {
		m.mu.Unlock()
		return
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.requestTimeout)
	err := m.session.TryRefresh(ctx)
	cancel()

	var exhausted bool
	m.mu.Lock()
	if m.state != StateRefreshing {
		// Stopped while the request was in flight.
		m.mu.Unlock()
		return
	}
	if err == nil {
		m.failures = 0
		m.scheduleLocked()
	} else {
		m.failures++
		m.log.Warn().Err(err).Int("failures", m.failures).Msg("token renewal failed")
		if m.failures >= m.budget {
			m.state = StateIdle
			m.deadline.Cancel()
			exhausted = true
		} else {
			m.scheduleLocked()
		}
	}
	m.mu.Unlock()

	if exhausted {
		m.log.Error().Int("failures", m.budget).Msg("renewal retry budget exhausted, forcing logout")
		m.logout(session.ReasonRefreshFailed)
	}
}

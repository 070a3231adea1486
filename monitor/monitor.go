// Package monitor binds the admin portal's live session feed: it
// subscribes to the session-update topic and publishes terminate-session
// commands over a WebSocket channel.
package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	apperrors "github.com/hotspotlabs/go-portal-session/internal/errors"
	"github.com/hotspotlabs/go-portal-session/metrics"
)

const (
	sessionTopic = "sessions.updates"

	defaultDialAttempts  = 5
	defaultDialDelay     = 500 * time.Millisecond
	defaultUpdateBacklog = 64
	writeTimeout         = 5 * time.Second
)

// TokenSource supplies the bearer credential for the WebSocket handshake.
type TokenSource interface {
	AccessToken() string
}

// SessionUpdate is one live hotspot session event from the feed.
type SessionUpdate struct {
	SessionID     string    `json:"session_id"`
	Username      string    `json:"username,omitempty"`
	RouterID      string    `json:"router_id,omitempty"`
	Status        string    `json:"status"`
	UploadBytes   int64     `json:"upload_bytes,omitempty"`
	DownloadBytes int64     `json:"download_bytes,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

type command struct {
	Type      string `json:"type"`
	Topic     string `json:"topic,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	CommandID string `json:"command_id,omitempty"`
}

// Monitor maintains the feed connection, reconnecting with bounded
// backoff when the link drops.
type Monitor struct {
	url          string
	tokens       TokenSource
	log          zerolog.Logger
	dialAttempts uint
	dialDelay    time.Duration

	updates chan SessionUpdate

	mu   sync.Mutex
	conn *websocket.Conn
}

// MonitorOption defines a function type to modify the Monitor instance.
type MonitorOption func(*Monitor)

// WithDialPolicy overrides the per-connect retry attempts and base delay.
func WithDialPolicy(attempts uint, delay time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.dialAttempts = attempts
		m.dialDelay = delay
	}
}

// WithLogger sets the monitor logger.
func WithLogger(log zerolog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.log = log
	}
}

// New creates a live session monitor for the given WebSocket endpoint.
func New(url string, tokens TokenSource, options ...MonitorOption) (*Monitor, error) {
	if url == "" {
		return nil, errors.New("[monitor.New] url is required")
	}

	m := &Monitor{
		url:          url,
		tokens:       tokens,
		log:          zerolog.Nop(),
		dialAttempts: defaultDialAttempts,
		dialDelay:    defaultDialDelay,
		updates:      make(chan SessionUpdate, defaultUpdateBacklog),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Updates returns the live feed. Events overflowing the backlog are
// dropped rather than blocking the read loop.
func (m *Monitor) Updates() <-chan SessionUpdate {
	return m.updates
}

// Run connects, subscribes, and pumps the feed until ctx is cancelled,
// reconnecting whenever the link drops. Returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "[Monitor.Run] dial")
		}

		m.setConn(conn)
		err = m.readLoop(ctx, conn)
		m.setConn(nil)
		_ = conn.CloseNow()

		if ctx.Err() != nil {
			return nil
		}
		metrics.MonitorReconnects.Inc()
		m.log.Warn().Err(err).Msg("session feed dropped, reconnecting")
	}
}

// Terminate publishes a terminate-session command for the given hotspot
// session.
func (m *Monitor) Terminate(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return apperrors.ErrMonitorClosed
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	cmd := command{Type: "terminate", SessionID: sessionID, CommandID: uuid.New().String()}
	return errors.Wrap(wsjson.Write(ctx, conn, cmd), "[Monitor.Terminate] Write")
}

// dial connects with bounded backoff. Reconnection policy beyond the
// backoff schedule is delegated to retry-go.
func (m *Monitor) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn

	err := retry.Do(
		func() error {
			header := http.Header{}
			if m.tokens != nil {
				if accessToken := m.tokens.AccessToken(); accessToken != "" {
					header.Set("Authorization", "Bearer "+accessToken)
				}
			}
			c, _, err := websocket.Dial(ctx, m.url, &websocket.DialOptions{HTTPHeader: header})
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(m.dialAttempts),
		retry.Delay(m.dialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(subCtx, conn, command{Type: "subscribe", Topic: sessionTopic}); err != nil {
		_ = conn.CloseNow()
		return nil, errors.Wrap(err, "subscribe")
	}
	return conn, nil
}

func (m *Monitor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var update SessionUpdate
		if err := wsjson.Read(ctx, conn, &update); err != nil {
			return err
		}
		select {
		case m.updates <- update:
		default:
			m.log.Warn().Str("session_id", update.SessionID).Msg("update backlog full, dropping event")
		}
	}
}

func (m *Monitor) setConn(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = conn
}

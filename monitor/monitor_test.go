package monitor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hotspotlabs/go-portal-session/internal/errors"
	"github.com/hotspotlabs/go-portal-session/monitor"
)

type staticTokens struct {
	token string
}

func (s staticTokens) AccessToken() string { return s.token }

type feedCommand struct {
	Type      string `json:"type"`
	Topic     string `json:"topic,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	CommandID string `json:"command_id,omitempty"`
}

func runMonitor(t *testing.T, m *monitor.Monitor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("monitor did not shut down")
		}
	})
	return cancel
}

func TestReceivesUpdatesAndPublishesTerminate(t *testing.T) {
	commands := make(chan feedCommand, 4)
	var authHeader atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.CloseNow()

		ctx := r.Context()

		var sub feedCommand
		require.NoError(t, wsjson.Read(ctx, conn, &sub))
		commands <- sub

		update := monitor.SessionUpdate{
			SessionID:     "hs-101",
			Username:      "254700000001",
			RouterID:      "router-7",
			Status:        "active",
			DownloadBytes: 2048,
		}
		require.NoError(t, wsjson.Write(ctx, conn, update))

		var cmd feedCommand
		require.NoError(t, wsjson.Read(ctx, conn, &cmd))
		commands <- cmd

		// Blocks until the monitor closes its end of the connection.
		_ = wsjson.Read(ctx, conn, &cmd)
	}))
	t.Cleanup(server.Close)

	m, err := monitor.New(server.URL, staticTokens{token: "monitor-token"},
		monitor.WithDialPolicy(1, time.Millisecond))
	require.NoError(t, err)
	runMonitor(t, m)

	select {
	case sub := <-commands:
		require.Equal(t, "subscribe", sub.Type)
		require.Equal(t, "sessions.updates", sub.Topic)
	case <-time.After(time.Second):
		t.Fatal("no subscribe command received")
	}

	select {
	case update := <-m.Updates():
		require.Equal(t, "hs-101", update.SessionID)
		require.Equal(t, "active", update.Status)
		require.Equal(t, int64(2048), update.DownloadBytes)
	case <-time.After(time.Second):
		t.Fatal("no session update received")
	}

	require.NoError(t, m.Terminate(context.Background(), "hs-101"))

	select {
	case cmd := <-commands:
		require.Equal(t, "terminate", cmd.Type)
		require.Equal(t, "hs-101", cmd.SessionID)
		_, err := uuid.Parse(cmd.CommandID)
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("no terminate command received")
	}

	require.Equal(t, "Bearer monitor-token", authHeader.Load())
}

func TestTerminateWithoutConnection(t *testing.T) {
	m, err := monitor.New("ws://127.0.0.1:1/feed", staticTokens{})
	require.NoError(t, err)

	err = m.Terminate(context.Background(), "hs-101")
	require.ErrorIs(t, err, apperrors.ErrMonitorClosed)
}

func TestReconnectsAfterDrop(t *testing.T) {
	var accepts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := accepts.Add(1)

		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.CloseNow()

		ctx := r.Context()

		var sub feedCommand
		require.NoError(t, wsjson.Read(ctx, conn, &sub))
		require.NoError(t, wsjson.Write(ctx, conn, monitor.SessionUpdate{SessionID: "hs-1", Status: "active"}))

		// First connection drops immediately after the update, the
		// second stays up so the test can observe the reconnect.
		if n > 1 {
			_ = wsjson.Read(ctx, conn, &sub)
		}
	}))
	t.Cleanup(server.Close)

	m, err := monitor.New(server.URL, staticTokens{},
		monitor.WithDialPolicy(3, time.Millisecond))
	require.NoError(t, err)
	runMonitor(t, m)

	for i := 0; i < 2; i++ {
		select {
		case update := <-m.Updates():
			require.Equal(t, "hs-1", update.SessionID)
		case <-time.After(2 * time.Second):
			t.Fatalf("update %d never arrived", i+1)
		}
	}
	require.GreaterOrEqual(t, accepts.Load(), int32(2))
}

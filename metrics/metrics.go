// Package metrics exposes Prometheus counters for session lifecycle events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Logins counts login attempts by result ("success", "failure",
	// "validation").
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_session_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	// Refreshes counts token renewal attempts by result.
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_session_refreshes_total",
		Help: "Token refresh attempts by result.",
	}, []string{"result"})

	// Teardowns counts session teardowns by recorded reason.
	Teardowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_session_teardowns_total",
		Help: "Session teardowns by reason.",
	}, []string{"reason"})

	// MonitorReconnects counts live-monitor reconnect attempts.
	MonitorReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_session_monitor_reconnects_total",
		Help: "Live session monitor reconnect attempts.",
	})
)

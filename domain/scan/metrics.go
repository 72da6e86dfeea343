package scan

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tickOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codescan_scan_ticks_total",
		Help: "Total number of scan ticks, by outcome (success/retry/fatal).",
	}, []string{"outcome"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codescan_active_sessions",
		Help: "Current number of running scan sessions.",
	})
)

// sessionStats holds per-session counters, updated from the tick goroutine
// and snapshotted from anywhere.
type sessionStats struct {
	ticks     atomic.Uint64
	successes atomic.Uint64
	retries   atomic.Uint64
	fatal     atomic.Uint64
	started   atomic.Int64 // unix nanos of Start
}

// Stats is a point-in-time snapshot of a session's counters.
type Stats struct {
	Ticks     uint64
	Successes uint64
	Retries   uint64
	Fatal     uint64
	Uptime    time.Duration
}

// Stats snapshots the session counters.
func (s *Session) Stats() Stats {
	st := Stats{
		Ticks:     s.stats.ticks.Load(),
		Successes: s.stats.successes.Load(),
		Retries:   s.stats.retries.Load(),
		Fatal:     s.stats.fatal.Load(),
	}
	if n := s.stats.started.Load(); n > 0 {
		st.Uptime = time.Since(time.Unix(0, n))
	}
	return st
}

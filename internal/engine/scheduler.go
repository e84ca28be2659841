package engine

import (
	"time"

	"go.uber.org/zap"

	"lims-forms/internal/form"
)

// SessionSweeper periodically closes edit sessions that have been idle for
// longer than maxIdle.
type SessionSweeper struct {
	sessions *form.Manager
	maxIdle  time.Duration
	interval time.Duration
	logger   *zap.Logger
	ticker   *time.Ticker
	done     chan struct{}
}

func NewSessionSweeper(m *form.Manager, maxIdle, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionSweeper{sessions: m, maxIdle: maxIdle, interval: interval, logger: logger}
}

// Start begins the background ticker.
func (ss *SessionSweeper) Start() {
	ss.ticker = time.NewTicker(ss.interval)
	ss.done = make(chan struct{})
	go ss.run()
	ss.logger.Info("session sweeper started",
		zap.Duration("interval", ss.interval),
		zap.Duration("max_idle", ss.maxIdle))
}

// Stop halts the background ticker.
func (ss *SessionSweeper) Stop() {
	if ss.ticker != nil {
		ss.ticker.Stop()
	}
	if ss.done != nil {
		close(ss.done)
	}
}

func (ss *SessionSweeper) run() {
	for {
		select {
		case <-ss.done:
			return
		case <-ss.ticker.C:
			ss.Sweep()
		}
	}
}

// Sweep closes idle sessions once and returns how many were closed.
func (ss *SessionSweeper) Sweep() int {
	if ss.maxIdle <= 0 {
		return 0
	}
	n := ss.sessions.Expire(ss.maxIdle)
	if n > 0 {
		ss.logger.Info("idle sessions closed", zap.Int("count", n))
	}
	return n
}

package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SupervisorConfig bounds the crash loop of the worker supervisor.
type SupervisorConfig struct {
	// CrashWindow resets the crash counter when the previous crash is older.
	CrashWindow time.Duration
	// MaxCrashes inside one window before the supervisor gives up.
	MaxCrashes int
	// RestartBaseDelay is doubled per crash, capped at RestartMaxDelay.
	RestartBaseDelay time.Duration
	RestartMaxDelay  time.Duration
	// ShutdownDrain bounds the wait for active jobs on signal shutdown.
	ShutdownDrain time.Duration

	// Disabled and TestMode both refuse bootstrap.
	Disabled bool
	TestMode bool

	Run RunOptions
}

// DefaultSupervisorConfig returns the production crash-loop policy.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		CrashWindow:      5 * time.Minute,
		MaxCrashes:       5,
		RestartBaseDelay: 2 * time.Second,
		RestartMaxDelay:  60 * time.Second,
		ShutdownDrain:    15 * time.Second,
	}
}

// WorkerHealth is the observable supervisor state behind getWorkerHealth.
type WorkerHealth struct {
	Started            bool
	HandlersRegistered bool
	ShuttingDown       bool
	GaveUp             bool
	CrashCount         int
	ActiveJobs         int64
	StartedAt          *time.Time
	LastHeartbeat      *time.Time
	LastCrashAt        *time.Time
}

// Supervisor owns the process-wide worker runtime state and restarts the
// loop after crashes with bounded exponential backoff. Tests inject a fresh
// supervisor instead of sharing a global.
type Supervisor struct {
	runner   *Runner
	executor *Executor
	cfg      SupervisorConfig

	mu            sync.Mutex
	started       bool
	shuttingDown  bool
	gaveUp        bool
	crashCount    int
	startedAt     *time.Time
	lastHeartbeat *time.Time
	lastCrashAt   *time.Time

	done chan struct{}
}

// NewSupervisor wires a supervisor over a runner and its executor.
func NewSupervisor(runner *Runner, executor *Executor, cfg SupervisorConfig) *Supervisor {
	if cfg.CrashWindow <= 0 {
		cfg.CrashWindow = 5 * time.Minute
	}
	if cfg.MaxCrashes <= 0 {
		cfg.MaxCrashes = 5
	}
	if cfg.RestartBaseDelay <= 0 {
		cfg.RestartBaseDelay = 2 * time.Second
	}
	if cfg.RestartMaxDelay <= 0 {
		cfg.RestartMaxDelay = 60 * time.Second
	}
	if cfg.ShutdownDrain <= 0 {
		cfg.ShutdownDrain = 15 * time.Second
	}
	return &Supervisor{
		runner:   runner,
		executor: executor,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
}

// Start launches the supervised loop. Refuses to start in test mode or when
// the worker is disabled, returning ErrWorkerDisabled.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.TestMode || s.cfg.Disabled {
		slog.InfoContext(ctx, "queue worker bootstrap skipped",
			"test_mode", s.cfg.TestMode, "disabled", s.cfg.Disabled)
		return ErrWorkerDisabled
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	now := time.Now().UTC()
	s.started = true
	s.startedAt = &now
	s.mu.Unlock()

	go s.supervise(ctx)
	return nil
}

// supervise runs the loop, restarting after crashes until the crash budget
// for the window is spent.
func (s *Supervisor) supervise(ctx context.Context) {
	defer close(s.done)

	for {
		s.heartbeat()

		err := s.runner.RunContinuously(ctx, s.cfg.Run)

		if s.isShuttingDown() || ctx.Err() != nil {
			slog.InfoContext(ctx, "worker supervisor exiting after shutdown")
			return
		}
		if err == nil {
			// Clean stop without a shutdown request: loop was stopped
			// externally, nothing to restart.
			return
		}

		delay, giveUp := s.recordCrash()
		if giveUp {
			slog.ErrorContext(ctx, "worker crash loop limit reached, giving up",
				"crashes", s.cfg.MaxCrashes, "window", s.cfg.CrashWindow, "error", err)
			return
		}

		slog.ErrorContext(ctx, "worker loop crashed, restarting",
			"error", err, "restart_delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) heartbeat() {
	s.mu.Lock()
	now := time.Now().UTC()
	s.lastHeartbeat = &now
	s.mu.Unlock()
}

// recordCrash updates crash accounting and returns the restart delay, or
// giveUp=true once the window budget is exhausted.
func (s *Supervisor) recordCrash() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if s.lastCrashAt != nil && now.Sub(*s.lastCrashAt) > s.cfg.CrashWindow {
		s.crashCount = 0
	}
	s.crashCount++
	s.lastCrashAt = &now

	if s.crashCount >= s.cfg.MaxCrashes {
		s.gaveUp = true
		return 0, true
	}

	delay := s.cfg.RestartBaseDelay
	for i := 1; i < s.crashCount; i++ {
		delay *= 2
		if delay >= s.cfg.RestartMaxDelay {
			return s.cfg.RestartMaxDelay, false
		}
	}
	return delay, false
}

func (s *Supervisor) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// Shutdown requests a graceful stop and waits for active jobs to drain, up
// to the configured bound. Called from signal handling.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.shuttingDown = true
	s.mu.Unlock()

	slog.InfoContext(ctx, "worker shutdown requested")
	s.runner.RequestStop()

	select {
	case <-s.done:
	case <-time.After(s.cfg.ShutdownDrain):
		slog.WarnContext(ctx, "worker shutdown drain timed out",
			"active", s.executor.ActiveJobs())
	}
}

// RestartIfDead resets the crash counter and relaunches the supervisor if it
// previously gave up. Externally callable probe; no-op while healthy.
func (s *Supervisor) RestartIfDead(ctx context.Context) bool {
	s.mu.Lock()
	if !s.gaveUp || s.shuttingDown {
		s.mu.Unlock()
		return false
	}
	s.gaveUp = false
	s.crashCount = 0
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.InfoContext(ctx, "relaunching worker supervisor after give-up")
	go s.supervise(ctx)
	return true
}

// Health snapshots the supervisor state.
func (s *Supervisor) Health() WorkerHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return WorkerHealth{
		Started:            s.started,
		HandlersRegistered: s.executor.HandlerCount() > 0,
		ShuttingDown:       s.shuttingDown,
		GaveUp:             s.gaveUp,
		CrashCount:         s.crashCount,
		ActiveJobs:         s.executor.ActiveJobs(),
		StartedAt:          s.startedAt,
		LastHeartbeat:      s.lastHeartbeat,
		LastCrashAt:        s.lastCrashAt,
	}
}

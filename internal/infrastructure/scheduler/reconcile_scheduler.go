package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	domain "github.com/photocatalog/backend/internal/domain/reconcile"
)

// Skip reasons reported when a trigger does not produce a run
const (
	SkipInProgress = "in_progress"
	SkipLockHeld   = "lock_held"
	SkipShutdown   = "shutting_down"
)

// MinLockTTL is the floor for the cross-process lock lifetime
const MinLockTTL = 5 * time.Minute

// RunExecutor performs one reconciliation run
type RunExecutor interface {
	Run(ctx context.Context, mode domain.Mode, window domain.Window) *domain.RunReport
	LastReport() *domain.RunReport
}

// RunLock is a cross-process mutex held for the duration of a run
type RunLock interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (release func(context.Context), ok bool, err error)
}

// SkipRecorder counts triggers that did not produce a run
type SkipRecorder interface {
	RecordSkippedRun(ctx context.Context, reason string)
}

// ReconcileSchedulerConfig holds configuration for the reconcile scheduler
type ReconcileSchedulerConfig struct {
	// Mode is the initial run mode
	Mode domain.Mode
	// Interval is the default tick interval
	Interval time.Duration
	// InitialLookback sizes the window when there is no usable checkpoint
	InitialLookback time.Duration
	// StaleAfter is the checkpoint age after which the initial lookback is used again
	StaleAfter time.Duration
	// WarmUpDelay is the wait between Start and the first run
	WarmUpDelay time.Duration
	// LockTTL bounds the cross-process lock; zero derives it from the interval
	LockTTL time.Duration
}

// DefaultReconcileSchedulerConfig returns default configuration
func DefaultReconcileSchedulerConfig() ReconcileSchedulerConfig {
	return ReconcileSchedulerConfig{
		Mode:            domain.ModeObserve,
		Interval:        domain.DefaultInterval,
		InitialLookback: domain.DefaultInitialLookback,
		StaleAfter:      domain.DefaultStaleAfter,
		WarmUpDelay:     30 * time.Second,
	}
}

// Validate validates the configuration
func (c *ReconcileSchedulerConfig) Validate() error {
	if _, err := domain.ParseMode(string(c.Mode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Interval <= 0 || c.InitialLookback <= 0 || c.StaleAfter <= 0 {
		return ErrInvalidConfig
	}
	if c.WarmUpDelay < 0 || c.LockTTL < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// SchedulerStats is a point-in-time view of the scheduler
type SchedulerStats struct {
	Started         bool              `json:"started"`
	Running         bool              `json:"running"`
	Mode            domain.Mode       `json:"mode"`
	IntervalSeconds int64             `json:"interval_seconds"`
	LastRunAt       *time.Time        `json:"last_run_at,omitempty"`
	RunsStarted     int64             `json:"runs_started"`
	RunsSkipped     int64             `json:"runs_skipped"`
	LastRun         *domain.RunReport `json:"last_run,omitempty"`
}

// ReconcileScheduler triggers reconciliation runs on an interval.
// At most one run is in flight per process; an optional RunLock extends
// that across processes.
type ReconcileScheduler struct {
	config   ReconcileSchedulerConfig
	executor RunExecutor
	logger   *zap.Logger
	lock     RunLock
	skips    SkipRecorder
	now      func() time.Time

	// guards started, closed, cancel, mode, interval, lastRunAt and runWG.Add
	mu        sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	mode      domain.Mode
	interval  time.Duration
	lastRunAt *time.Time

	loopWG  sync.WaitGroup
	runWG   sync.WaitGroup
	running atomic.Bool

	runsStarted atomic.Int64
	runsSkipped atomic.Int64
}

// NewReconcileScheduler creates a new reconcile scheduler
func NewReconcileScheduler(config ReconcileSchedulerConfig, executor RunExecutor, logger *zap.Logger) (*ReconcileScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mode, _ := domain.ParseMode(string(config.Mode))

	return &ReconcileScheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		now:      time.Now,
		mode:     mode,
		interval: config.Interval,
	}, nil
}

// SetRunLock installs the cross-process lock. Nil disables it.
func (s *ReconcileScheduler) SetRunLock(lock RunLock) {
	s.lock = lock
}

// SetSkipRecorder installs the recorder for skipped triggers
func (s *ReconcileScheduler) SetSkipRecorder(r SkipRecorder) {
	s.skips = r
}

// Start begins ticking. A zero interval keeps the configured one.
// Calling Start on a started scheduler is a no-op.
func (s *ReconcileScheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval < 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrShutdown
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if interval > 0 {
		s.interval = interval
	}
	interval = s.interval
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.loopWG.Add(1)
	go s.loop(loopCtx, interval)

	s.logger.Info("Reconcile scheduler started",
		zap.Duration("interval", interval),
		zap.Duration("warm_up", s.config.WarmUpDelay),
		zap.String("mode", s.Mode().String()),
	)
	return nil
}

// Stop halts ticking. A run already in flight is not cancelled.
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := waitGroup(ctx, &s.loopWG); err != nil {
		s.logger.Warn("Reconcile scheduler stop timed out")
		return err
	}
	s.logger.Info("Reconcile scheduler stopped")
	return nil
}

// Shutdown stops ticking and waits for any in-flight run until ctx expires.
// Runs requested after Shutdown begins are skipped with SkipShutdown, and the
// scheduler cannot be started again.
func (s *ReconcileScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.Stop(ctx); err != nil {
		return err
	}
	if err := waitGroup(ctx, &s.runWG); err != nil {
		s.logger.Warn("In-flight reconcile run did not finish before shutdown deadline")
		return err
	}
	return nil
}

// SetMode changes the mode used by subsequent runs
func (s *ReconcileScheduler) SetMode(mode domain.Mode) error {
	parsed, err := domain.ParseMode(string(mode))
	if err != nil {
		return err
	}

	s.mu.Lock()
	previous := s.mode
	s.mode = parsed
	s.mu.Unlock()

	s.logger.Info("Reconcile mode changed",
		zap.String("from", previous.String()),
		zap.String("to", parsed.String()),
	)
	return nil
}

// Mode returns the current run mode
func (s *ReconcileScheduler) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// IsRunning reports whether a run is in flight
func (s *ReconcileScheduler) IsRunning() bool {
	return s.running.Load()
}

// RunOnce runs synchronously. It returns false when the run was skipped
// because another run holds the in-process flag or the cross-process lock,
// or because the scheduler is shutting down.
func (s *ReconcileScheduler) RunOnce(ctx context.Context) (*domain.RunReport, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.skip(ctx, SkipInProgress)
		return nil, false
	}
	defer s.running.Store(false)

	if !s.beginRun() {
		s.skip(ctx, SkipShutdown)
		return nil, false
	}
	defer s.runWG.Done()

	return s.execute(context.WithoutCancel(ctx))
}

// Trigger starts a run in the background. It returns false when a run is
// already in flight in this process or the scheduler is shutting down.
func (s *ReconcileScheduler) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.skip(ctx, SkipInProgress)
		return false
	}
	if !s.beginRun() {
		s.running.Store(false)
		s.skip(ctx, SkipShutdown)
		return false
	}

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.runWG.Done()
		defer s.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Reconcile run panicked", zap.Any("panic", r))
			}
		}()
		s.execute(runCtx)
	}()
	return true
}

// LastRunReport returns the most recent published report, or nil
func (s *ReconcileScheduler) LastRunReport() *domain.RunReport {
	return s.executor.LastReport()
}

// Stats returns a snapshot of the scheduler state
func (s *ReconcileScheduler) Stats() SchedulerStats {
	s.mu.Lock()
	stats := SchedulerStats{
		Started:         s.started,
		Mode:            s.mode,
		IntervalSeconds: int64(s.interval / time.Second),
	}
	if s.lastRunAt != nil {
		t := *s.lastRunAt
		stats.LastRunAt = &t
	}
	s.mu.Unlock()

	stats.Running = s.running.Load()
	stats.RunsStarted = s.runsStarted.Load()
	stats.RunsSkipped = s.runsSkipped.Load()
	if last := s.executor.LastReport(); last != nil {
		summary := last.Summary()
		stats.LastRun = &summary
	}
	return stats
}

func (s *ReconcileScheduler) loop(ctx context.Context, interval time.Duration) {
	defer s.loopWG.Done()

	warmUp := time.NewTimer(s.config.WarmUpDelay)
	defer warmUp.Stop()

	select {
	case <-ctx.Done():
		return
	case <-warmUp.C:
		s.Trigger(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// beginRun registers a run with runWG unless Shutdown has begun. No
// runWG.Add happens after closed is set.
func (s *ReconcileScheduler) beginRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.runWG.Add(1)
	return true
}

// execute assumes the in-process flag is held
func (s *ReconcileScheduler) execute(ctx context.Context) (*domain.RunReport, bool) {
	s.mu.Lock()
	mode := s.mode
	interval := s.interval
	var lastRunAt *time.Time
	if s.lastRunAt != nil {
		t := *s.lastRunAt
		lastRunAt = &t
	}
	s.mu.Unlock()

	if s.lock != nil {
		release, ok, err := s.lock.TryAcquire(ctx, s.lockTTL(interval))
		switch {
		case err != nil:
			s.logger.Warn("Run lock unavailable, continuing with in-process guard only", zap.Error(err))
		case !ok:
			s.skip(ctx, SkipLockHeld)
			return nil, false
		default:
			defer release(ctx)
		}
	}

	now := s.now()
	window := domain.CalculateWindow(lastRunAt, now, domain.WindowConfig{
		Interval:        interval,
		InitialLookback: s.config.InitialLookback,
		StaleAfter:      s.config.StaleAfter,
	})

	s.runsStarted.Add(1)
	report := s.executor.Run(ctx, mode, window)

	if report.Succeeded() {
		s.mu.Lock()
		s.lastRunAt = &now
		s.mu.Unlock()
	}
	return report, true
}

func (s *ReconcileScheduler) lockTTL(interval time.Duration) time.Duration {
	if s.config.LockTTL > 0 {
		return s.config.LockTTL
	}
	return max(interval*domain.OverlapFactor, MinLockTTL)
}

func (s *ReconcileScheduler) skip(ctx context.Context, reason string) {
	s.runsSkipped.Add(1)
	s.logger.Info("Reconcile run skipped", zap.String("reason", reason))
	if s.skips != nil {
		s.skips.RecordSkippedRun(ctx, reason)
	}
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

/*
scheduler.go - Background sweep scheduler

PURPOSE:
  Periodically runs the ledger sweeps that are driven by the passage of time
  rather than by an event: low-stock re-checks, payment-due alerts, overdue
  invoices and catch-up collections.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Sweeps once immediately on Start, then on every tick
  - Each sweep is its own set of units of work; a failed sweep is logged
    and retried on the next tick
  - Alerts raised by a sweep go through the deduplicator, so ticking more
    often than the alert cooldown does not repeat them

CONFIGURATION:
  - Interval: How often to sweep (config: sweeper.interval, default 1h)
  - Enabled:  Whether the sweeper runs at all (config: sweeper.enabled)

USAGE:
  sweeper := NewSweeper(dispatcher, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: POST /api/admin/sweep (manual sweep)
  - ledger/sweep.go: the sweeps themselves
*/
package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp/pos-ledger/ledger"
)

// SweepRunner is the part of the dispatcher the sweeper drives.
type SweepRunner interface {
	Sweep(ctx context.Context, actor ledger.Actor) (ledger.SweepReport, error)
}

// Sweeper runs SweepRunner.Sweep on an interval.
type Sweeper struct {
	Runner   SweepRunner
	Interval time.Duration
	Enabled  bool
	Timeout  time.Duration

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runs   atomic.Int64
}

// NewSweeper creates an enabled sweeper with a one hour interval.
func NewSweeper(runner SweepRunner, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		Runner:   runner,
		Interval: time.Hour,
		Enabled:  true,
		Timeout:  5 * time.Minute,
		log:      log.Named("sweeper"),
	}
}

// Start begins the sweeper. Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.log.Info("started", zap.Duration("interval", s.Interval))
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("stopped")
}

// Runs reports how many sweeps have completed, successful or not.
func (s *Sweeper) Runs() int64 {
	return s.runs.Load()
}

func (s *Sweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow sweeps once and returns the report.
func (s *Sweeper) RunNow(ctx context.Context) (ledger.SweepReport, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := s.Runner.Sweep(ctx, ledger.SweeperActor)

	s.runs.Add(1)

	if err != nil {
		s.log.Error("sweep failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return report, err
	}
	s.log.Debug("sweep completed", zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

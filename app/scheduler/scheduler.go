package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"regscanner/app/scan"
)

// Runner executes one scan. Satisfied by the scan orchestrator.
type Runner interface {
	Run(ctx context.Context, opts scan.Options) (*scan.Report, error)
}

// Scheduler triggers full scans on a fixed interval. Overlapping runs are
// skipped: if a scan is still going when the ticker fires, that tick is
// dropped rather than queued.
type Scheduler struct {
	runner        Runner
	interval      time.Duration
	scanTimeout   time.Duration
	dateRangeDays int

	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(runner Runner, interval time.Duration, dateRangeDays int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:        runner,
		interval:      interval,
		scanTimeout:   10 * time.Minute,
		dateRangeDays: dateRangeDays,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the ticker loop, running one scan immediately.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.spawnScan()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.spawnScan()
			}
		}
	}()
}

// Stop cancels any in-flight scan and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) spawnScan() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runScan()
	}()
}

func (s *Scheduler) runScan() {
	if !s.running.TryLock() {
		slog.Warn("Previous scan still running, skipping this interval")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.scanTimeout)
	defer cancel()

	report, err := s.runner.Run(ctx, scan.Options{DateRangeDays: s.dateRangeDays})
	if err != nil {
		slog.Error("Scheduled scan failed", "error", err)
		return
	}

	slog.Debug("Scheduled scan completed",
		"persisted", report.Persisted,
		"elapsed_ms", report.ElapsedMS)
}

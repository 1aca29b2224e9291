package runner

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/clock"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/schedule"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// Dispatcher polls the scheduling index and hands due jobs to the runner.
type Dispatcher struct {
	runner   *Runner
	index    *schedule.Index
	clk      clock.Clock
	logger   logging.Logger
	interval time.Duration
	depth    prometheus.Gauge
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// DispatcherConfig holds configuration for the dispatch loop
type DispatcherConfig struct {
	Runner   *Runner
	Index    *schedule.Index
	Clock    clock.Clock
	Logger   logging.Logger
	Interval time.Duration // How often to poll for due jobs (default: 1 second)

	// QueueDepth tracks the number of indexed jobs. Optional.
	QueueDepth prometheus.Gauge
}

// NewDispatcher creates the dispatch loop.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	interval := cfg.Interval
	if interval == 0 {
		interval = time.Second
	}
	return &Dispatcher{
		runner:   cfg.Runner,
		index:    cfg.Index,
		clk:      cfg.Clock,
		logger:   cfg.Logger,
		interval: interval,
		depth:    cfg.QueueDepth,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background dispatch loop
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
	d.logger.Info("Publishing dispatcher started")
}

// Stop gracefully stops the loop and waits for in-flight dispatches.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info("Publishing dispatcher stopped")
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Tick(context.Background())
		case <-d.stopCh:
			return
		}
	}
}

// Tick drains the jobs due at the current clock time and dispatches each in
// its own goroutine. Exported so tests and the publish-now path can force a
// cycle without waiting for the ticker.
func (d *Dispatcher) Tick(ctx context.Context) {
	due := d.index.DueJobs(d.clk.Now())
	if d.depth != nil {
		d.depth.Set(float64(d.index.Len()))
	}
	if len(due) == 0 {
		return
	}

	d.logger.WithField("due_jobs", len(due)).Debug("Dispatching due publishing jobs")
	for _, jobID := range due {
		id := jobID
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.runner.Dispatch(ctx, id); err != nil {
				d.logger.WithError(err).WithField("job_id", id).Error("Publishing job dispatch failed")
			}
		}()
	}
}

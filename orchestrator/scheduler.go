// Package orchestrator runs the enrichment cycles on cron schedules and on
// demand, one at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"hnenricher/common"
	"hnenricher/enrichment"
)

// Cycle names a runnable cycle.
type Cycle string

const (
	CycleIngest    Cycle = "ingest"
	CycleReconcile Cycle = "reconcile"
	CycleRetention Cycle = "retention"
)

// CycleFunc runs one cycle and returns its report.
type CycleFunc func(ctx context.Context) (any, error)

var (
	// ErrBusy is returned when another cycle holds the run lock.
	ErrBusy = errors.New("orchestrator: busy")
	// ErrUnknownCycle is returned for a cycle name with no registered func.
	ErrUnknownCycle = errors.New("orchestrator: unknown cycle")
)

// Scheduler serializes every cycle behind one lock. A trigger that arrives
// while any cycle runs is skipped, whether it came from cron, the API or a
// message.
type Scheduler struct {
	run    sync.Mutex
	cycles map[Cycle]CycleFunc
	state  *manager
	cron   *cron.Cron
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler for the given cycles.
func New(cycles map[Cycle]CycleFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cycles: cycles,
		state:  newManager(),
		cron:   cron.New(),
		logger: logger.With("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Known reports whether name is a registered cycle.
func (s *Scheduler) Known(name Cycle) bool {
	_, ok := s.cycles[name]
	return ok
}

// Cycles returns the registered cycle names in order.
func (s *Scheduler) Cycles() []Cycle {
	out := make([]Cycle, 0, len(s.cycles))
	for c := range s.cycles {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Run executes one cycle synchronously. It returns ErrBusy without waiting
// when another cycle is running.
func (s *Scheduler) Run(ctx context.Context, name Cycle) (CycleStatus, error) {
	fn, ok := s.cycles[name]
	if !ok {
		return CycleStatus{}, fmt.Errorf("%w: %s", ErrUnknownCycle, name)
	}
	if !s.run.TryLock() {
		busyWith := s.state.current()
		s.state.skip(name, busyWith)
		s.logger.Warn("cycle skipped, busy", "cycle", name, "running", busyWith)
		return CycleStatus{}, ErrBusy
	}
	defer s.run.Unlock()

	st := CycleStatus{Cycle: name, RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	s.state.begin(name)
	logger := s.logger.With("cycle", name, "run_id", st.RunID)
	logger.Info("cycle started")

	report, err := fn(ctx)
	st.FinishedAt = time.Now().UTC()
	st.Report = report
	if err != nil {
		st.Error = err.Error()
		st.Code = enrichment.CodeOf(err)
		logger.Error("cycle failed", "code", st.Code, "err", err, "duration", st.FinishedAt.Sub(st.StartedAt))
	} else {
		logger.Info("cycle finished", "duration", st.FinishedAt.Sub(st.StartedAt))
	}
	s.state.finish(st)
	return st, err
}

// Trigger runs a cycle in the background. It fails fast for unknown cycles
// and when the scheduler is already busy.
func (s *Scheduler) Trigger(name Cycle) error {
	if !s.Known(name) {
		return fmt.Errorf("%w: %s", ErrUnknownCycle, name)
	}
	if running := s.state.current(); running != "" {
		s.state.skip(name, running)
		s.logger.Warn("trigger skipped, busy", "cycle", name, "running", running)
		return ErrBusy
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.Run(s.ctx, name)
	}()
	return nil
}

// Schedule registers a cron spec per cycle. Empty specs are left unscheduled.
func (s *Scheduler) Schedule(specs map[Cycle]string) error {
	for name, spec := range specs {
		if spec == "" {
			continue
		}
		if !s.Known(name) {
			return fmt.Errorf("%w: %s", ErrUnknownCycle, name)
		}
		if _, err := s.cron.AddFunc(spec, func() {
			s.logger.Debug("cron tick", "cycle", name)
			_, _ = s.Run(s.ctx, name)
		}); err != nil {
			return fmt.Errorf("orchestrator: schedule %s %q: %w", name, spec, err)
		}
		s.state.addLog(fmt.Sprintf("scheduled %s %s", name, spec))
		s.logger.Info("cycle scheduled", "cycle", name, "spec", spec)
	}
	return nil
}

// Start starts the cron runner.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops cron, cancels running cycles and waits for background runs.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	return s.state.snapshot()
}

// Package scheduler fires the periodic engine passes.
//
// Every job runs once as soon as the scheduler starts and then on its own
// fixed interval. A job never overlaps with itself: a firing that arrives
// while the previous run is still going is skipped. Stopping the scheduler
// cancels the job contexts and waits for in-flight runs to return.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/roach88/govpoll/internal/engine"
	"github.com/roach88/govpoll/internal/logging"
)

// Job is one periodic trigger.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (any, error)
}

// Result records the outcome of one completed firing.
type Result struct {
	Job        string    `json:"job"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Report     any       `json:"report,omitempty"`
	Err        string    `json:"error,omitempty"`
}

// Scheduler owns the cron instance and the last result of every job.
type Scheduler struct {
	logger *zap.Logger
	jobs   []Job
	clock  engine.Clock
	runIDs engine.RunIDGenerator

	cron    *cron.Cron
	results *xsync.Map[string, Result]
	busy    map[string]*sync.Mutex

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for result timestamps.
func WithClock(c engine.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRunIDs sets the run identifier source.
func WithRunIDs(g engine.RunIDGenerator) Option {
	return func(s *Scheduler) { s.runIDs = g }
}

// New creates a scheduler for jobs. Nothing fires until Start.
func New(logger *zap.Logger, jobs []Job, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:  logger.Named("scheduler"),
		jobs:    jobs,
		clock:   engine.WallClock{},
		runIDs:  engine.UUIDv7Generator{},
		results: xsync.NewMap[string, Result](),
		busy:    make(map[string]*sync.Mutex, len(jobs)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, j := range jobs {
		s.busy[j.Name] = &sync.Mutex{}
	}
	return s
}

// Start registers every job, fires each once immediately and starts the
// cron loop. The scheduler stops firing when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started.Load() {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	cl := logging.NewCronLogger(s.logger)
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))

	for _, j := range s.jobs {
		if j.Interval <= 0 {
			cancel()
			return fmt.Errorf("job %s: interval must be positive", j.Name)
		}
		if _, err := c.AddFunc("@every "+j.Interval.String(), func() { s.fire(ctx, j) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s: %w", j.Name, err)
		}
	}

	s.cron = c
	s.cancel = cancel

	for _, j := range s.jobs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire(ctx, j)
		}()
	}

	c.Start()
	s.started.Store(true)
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))

	go func() {
		<-ctx.Done()
		s.halt()
	}()
	return nil
}

// Started reports whether Start completed.
func (s *Scheduler) Started() bool {
	return s.started.Load()
}

// Stop cancels scheduling and waits for running jobs to return.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.halt()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) halt() {
	<-s.cron.Stop().Done()
}

// LastResults returns the most recent result of every job that has
// completed at least once, keyed by job name.
func (s *Scheduler) LastResults() map[string]Result {
	out := make(map[string]Result)
	s.results.Range(func(name string, r Result) bool {
		out[name] = r
		return true
	})
	return out
}

func (s *Scheduler) fire(ctx context.Context, j Job) {
	if ctx.Err() != nil {
		return
	}
	mu := s.busy[j.Name]
	if !mu.TryLock() {
		s.logger.Warn("previous run still in progress, skipping", zap.String("job", j.Name))
		return
	}
	defer mu.Unlock()

	res := Result{Job: j.Name, RunID: s.runIDs.Generate(), StartedAt: s.clock.Now()}
	log := s.logger.With(zap.String("job", j.Name), zap.String("run_id", res.RunID))
	log.Debug("job started")

	report, err := run(ctx, j)
	res.FinishedAt = s.clock.Now()
	res.Report = report
	if err != nil {
		res.Err = err.Error()
		log.Error("job failed", zap.Error(err), zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)))
	} else {
		log.Info("job finished", zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)))
	}
	s.results.Store(j.Name, res)
}

// run invokes the job, turning a panic into an error so the immediate
// firing gets the same protection cron.Recover gives scheduled ones.
func run(ctx context.Context, j Job) (report any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
		}
	}()
	return j.Run(ctx)
}

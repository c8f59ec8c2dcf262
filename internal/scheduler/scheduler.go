// Package scheduler runs Mnemosyne's evolution jobs (internal/evolution) on
// an idle-detection tick loop: once the system has been quiet for a few
// minutes, the highest-priority job whose cooldown has elapsed gets to run,
// one job at a time, with every run recorded for the "status" command.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rand/mnemosyne/internal/evolution"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// tickInterval is how often the scheduler checks whether it's time to run a
// job.
const tickInterval = 60 * time.Second

// idleThreshold is how long the system must have been quiet (no captures or
// recalls) before any evolution job is eligible to run.
const idleThreshold = 5 * time.Minute

// jobTimeout bounds a single job's wall-clock run time; a job exceeding it
// is marked JobTimeout and abandoned (the job itself is expected to check
// ctx.Done() between candidates, per its own cooperative-cancel contract).
const jobTimeout = 15 * time.Minute

// entry pairs a Job with the token bucket enforcing its cooldown. Priority
// is the entries slice order: Consolidation > Importance > LinkDecay >
// Archival, matching §4.6.
type entry struct {
	job     evolution.Job
	limiter *rate.Limiter
}

// Scheduler owns the tick loop and per-job cooldowns. Construct via New,
// call RecordActivity on every capture/recall to reset the idle clock, and
// Start/Stop to run the loop.
type Scheduler struct {
	entries []entry
	runs    storage.JobRunStore
	now     func() time.Time

	mu              sync.Mutex
	lastOperationAt time.Time
	runningJob      types.JobName
	cancel          context.CancelFunc
	done            chan struct{}
}

// cooldown is the minimum interval between successive runs of one job
// category, per §4.6.
var cooldown = map[types.JobName]time.Duration{
	types.JobConsolidation: time.Hour,
	types.JobImportance:    24 * time.Hour,
	types.JobLinkDecay:     6 * time.Hour,
	types.JobArchival:      24 * time.Hour,
}

// New constructs a Scheduler over the given jobs, ordered highest-priority
// first, backed by runs for JobRun bookkeeping.
func New(jobs []evolution.Job, runs storage.JobRunStore) *Scheduler {
	entries := make([]entry, len(jobs))
	for i, j := range jobs {
		cd := cooldown[j.Name()]
		if cd <= 0 {
			cd = time.Hour
		}
		// One token refilled per cooldown interval, burst 1: the bucket
		// holds at most one pending "permission to run" at a time, and a
		// run consumes it immediately, enforcing the cooldown without a
		// hand-rolled timestamp comparison.
		limiter := rate.NewLimiter(rate.Every(cd), 1)
		entries[i] = entry{job: j, limiter: limiter}
	}
	return &Scheduler{
		entries:         entries,
		runs:            runs,
		now:             func() time.Time { return time.Now().UTC() },
		lastOperationAt: time.Now().UTC(),
	}
}

// RecordActivity resets the idle clock; call on every capture/recall.
func (s *Scheduler) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOperationAt = s.now()
}

// Start launches the tick loop as a goroutine. Cancel ctx or call Stop to
// end it.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(runCtx)
}

// Stop cancels the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	idle := s.now().Sub(s.lastOperationAt)
	busy := s.runningJob != ""
	s.mu.Unlock()

	if busy || idle < idleThreshold {
		return
	}

	// At most one evolution job runs at a time: pick the first (highest
	// priority) whose token bucket allows it right now, run it to
	// completion, then return to ticking.
	for _, e := range s.entries {
		if !e.limiter.Allow() {
			continue
		}
		s.runJob(ctx, e.job)
		return
	}
}

func (s *Scheduler) runJob(ctx context.Context, job evolution.Job) {
	s.mu.Lock()
	s.runningJob = job.Name()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.runningJob = ""
		s.mu.Unlock()
	}()

	started := s.now()
	runID, err := s.runs.StartJobRun(ctx, job.Name(), started)
	if err != nil {
		log.Printf("scheduler: failed to record job start for %s: %v", job.Name(), err)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	type result struct {
		outcome evolution.Outcome
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		outcome, err := job.Run(jobCtx)
		resultCh <- result{outcome, err}
	}()

	select {
	case r := <-resultCh:
		status := types.JobSuccess
		errMsg := ""
		if r.err != nil {
			status = types.JobFailed
			errMsg = r.err.Error()
		}
		if err := s.runs.FinishJobRun(ctx, runID, status, r.outcome.Processed, r.outcome.Changed, errMsg, s.now()); err != nil {
			log.Printf("scheduler: failed to record job completion for %s: %v", job.Name(), err)
		}
	case <-jobCtx.Done():
		if err := s.runs.FinishJobRun(ctx, runID, types.JobTimeout, 0, 0, "job exceeded wall-clock timeout", s.now()); err != nil {
			log.Printf("scheduler: failed to record job timeout for %s: %v", job.Name(), err)
		}
	}
}

// Package crawler coordinates the crawl → clone → scan → cleanup
// pipeline. It is the only point of cross-repository concurrency: a
// fixed pool of admission slots caps simultaneous clone+scan tasks so a
// run stays well under OS resource ceilings.
package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/codetrawl/internal/logging"
	"github.com/fyrsmithlabs/codetrawl/internal/metrics"
	"github.com/fyrsmithlabs/codetrawl/internal/scanner"
	"github.com/fyrsmithlabs/codetrawl/internal/search"
	"github.com/fyrsmithlabs/codetrawl/internal/workspace"
)

// Summary reports the outcome of one run.
type Summary struct {
	Repos       int64
	Succeeded   int64
	Failed      int64
	Matches     int64
	RateLimited bool
	Elapsed     time.Duration
}

// Planner produces the descriptor stream the crawler admits tasks
// from. *search.Planner satisfies it.
type Planner interface {
	Run(ctx context.Context, out chan<- search.Descriptor) error
}

// Sink is where the crawler commits match records. *sink.CSVSink
// satisfies it; tests substitute an in-memory recorder.
type Sink interface {
	Write(rec scanner.Record) error
	Flush() error
}

// Crawler runs repository tasks against a bounded slot pool. Each task
// is internally sequential; failures are isolated per task and never
// abort siblings.
type Crawler struct {
	planner    Planner
	workspaces *workspace.Manager
	scanner    *scanner.Scanner
	sink       Sink
	log        *logging.Logger

	workers int
	remove  bool

	repos     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	matches   atomic.Int64
}

// New wires a crawler from its collaborators.
func New(planner Planner, workspaces *workspace.Manager, sc *scanner.Scanner, out Sink, workers int, remove bool, log *logging.Logger) *Crawler {
	return &Crawler{
		planner:    planner,
		workspaces: workspaces,
		scanner:    sc,
		sink:       out,
		log:        log.Named("crawler"),
		workers:    workers,
		remove:     remove,
	}
}

// Run consumes the planner's descriptor stream, admitting one task per
// descriptor as slots free up, and blocks until every admitted task has
// reached a terminal state. Rate-limit exhaustion stops admission of
// new descriptors but lets admitted tasks run to completion. Zero
// matching repositories is a valid, non-error outcome.
//
// The returned error is non-nil only when the run context was canceled;
// per-repository failures are reflected in the Summary and logs.
func (c *Crawler) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	descCh := make(chan search.Descriptor)
	plannerErrCh := make(chan error, 1)
	go func() {
		defer close(descCh)
		plannerErrCh <- c.planner.Run(ctx, descCh)
	}()

	sem := semaphore.NewWeighted(int64(c.workers))
	var wg sync.WaitGroup

	for desc := range descCh {
		// Blocks until a slot frees; a fatal cancel stops admission.
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		c.repos.Add(1)
		metrics.TasksInFlight.Inc()
		wg.Add(1)
		go func(d search.Descriptor) {
			defer wg.Done()
			defer func() {
				sem.Release(1)
				metrics.TasksInFlight.Dec()
			}()
			c.process(ctx, d)
		}(desc)
	}

	wg.Wait()

	// The planner unblocks on context cancellation even when admission
	// stopped early, so this receive always completes and is the sole
	// synchronization point for its error.
	plannerErr := <-plannerErrCh

	summary := &Summary{
		Repos:     c.repos.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
		Matches:   c.matches.Load(),
		Elapsed:   time.Since(start),
	}

	switch {
	case plannerErr == nil:
	case errors.Is(plannerErr, search.ErrRateLimited):
		summary.RateLimited = true
	case errors.Is(plannerErr, context.Canceled), errors.Is(plannerErr, context.DeadlineExceeded):
		// Reported below through ctx.Err.
	default:
		// A mid-stream search failure is not fatal: the tasks already
		// admitted have run to completion and the output artifact is
		// complete as far as possible.
		c.log.Error("repository search stopped early", zap.Error(plannerErr))
	}

	c.log.Info("run complete",
		zap.Int64("repos", summary.Repos),
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
		zap.Int64("matches", summary.Matches),
		zap.Bool("rate_limited", summary.RateLimited),
		zap.Duration("elapsed", summary.Elapsed))

	return summary, ctx.Err()
}

// process drives one repository task through its lifecycle. All
// per-repository failures are absorbed here: they are counted and
// logged, never propagated to sibling tasks.
func (c *Crawler) process(ctx context.Context, desc search.Descriptor) {
	log := c.log.With(zap.String("repo", desc.ID()))
	state := Queued

	setState := func(next State) {
		state = next
		log.Debug("task state", zap.Stringer("state", state))
	}

	setState(Cloning)
	path, err := c.workspaces.Clone(ctx, desc)
	if err != nil {
		setState(CloneFailed)
		if errors.Is(err, workspace.ErrWorkspaceExists) {
			// The directory predates this run; leave it untouched so
			// stale and fresh results never mix.
			metrics.ReposTotal.WithLabelValues("collision").Inc()
			c.failed.Add(1)
			log.Error("workspace collision", zap.Error(err))
			setState(Done)
			return
		}
		metrics.ReposTotal.WithLabelValues("clone_failed").Inc()
		c.failed.Add(1)
		log.Error("clone failed", zap.Error(err))
		c.cleanup(desc, setState)
		return
	}
	setState(Cloned)

	setState(Scanning)
	var repoMatches int64
	err = c.scanner.Scan(ctx, desc, path, func(rec scanner.Record) error {
		if err := c.sink.Write(rec); err != nil {
			return err
		}
		repoMatches++
		metrics.MatchesTotal.Inc()
		return nil
	})
	if err != nil {
		metrics.ReposTotal.WithLabelValues("scan_failed").Inc()
		c.failed.Add(1)
		log.Error("scan failed", zap.Error(err))
		c.cleanup(desc, setState)
		return
	}
	setState(Scanned)

	// Commit this repository's records before its workspace may be
	// removed.
	if err := c.sink.Flush(); err != nil {
		metrics.ReposTotal.WithLabelValues("scan_failed").Inc()
		c.failed.Add(1)
		log.Error("failed to commit match records", zap.Error(err))
		c.cleanup(desc, setState)
		return
	}

	metrics.ReposTotal.WithLabelValues("scanned").Inc()
	c.succeeded.Add(1)
	c.matches.Add(repoMatches)
	log.Info("scanned repository", zap.Int64("matches", repoMatches))

	c.cleanup(desc, setState)
}

// cleanup reclaims the workspace when removal is enabled. Failures
// inside Remove are logged there and never fail the task.
func (c *Crawler) cleanup(desc search.Descriptor, setState func(State)) {
	if c.remove {
		setState(CleaningUp)
		c.workspaces.Remove(desc)
	}
	setState(Done)
}

// package tasks runs the periodic background jobs of the push subsystem.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/push"
	"github.com/linage/linapush/internal/shared"
)

// Result is the outcome of one job run.
type Result struct {
	Job      string
	Summary  string
	Err      error
	Finished time.Time
}

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Phase    Phase
	Interval time.Duration
	Run      func(ctx context.Context) (string, error)
}

// Syncer re-registers the current token. [push.Manager] implements it.
type Syncer interface {
	SyncToBackend(ctx context.Context, token string) models.SyncOutcome
}

// Pruner trims notification history. [notify.Dispatcher] implements it.
type Pruner interface {
	Prune() int
}

// SegmentSource is the account state segments are derived from. [push.Manager] implements it.
type SegmentSource interface {
	User() models.UserAttributes
	SubscribeToSegments(ctx context.Context, segments models.SegmentSet) error
}

// ResyncJob re-registers the persisted token every interval.
func ResyncJob(s Syncer, interval time.Duration) Job {
	return Job{
		Name:     "token resync",
		Phase:    Resync,
		Interval: interval,
		Run: func(ctx context.Context) (string, error) {
			outcome := s.SyncToBackend(ctx, "")
			if outcome == models.SyncFailed {
				return outcome.String(), fmt.Errorf("%w: token sync failed", shared.ErrServiceUnavailable)
			}
			return outcome.String(), nil
		},
	}
}

// PruneJob drops notification history older than the rate window every interval.
func PruneJob(p Pruner, interval time.Duration) Job {
	return Job{
		Name:     "history prune",
		Phase:    PruneHistory,
		Interval: interval,
		Run: func(context.Context) (string, error) {
			return fmt.Sprintf("%d records removed", p.Prune()), nil
		},
	}
}

// SegmentsJob derives segments from the current user and reconciles subscriptions every interval.
// It does nothing while no user is set.
func SegmentsJob(src SegmentSource, interval time.Duration, now func() time.Time) Job {
	if now == nil {
		now = time.Now
	}
	return Job{
		Name:     "segment refresh",
		Phase:    RefreshSegments,
		Interval: interval,
		Run: func(ctx context.Context) (string, error) {
			user := src.User()
			if user.UserID == "" {
				return "no user", nil
			}
			segments := push.DeriveSegments(user, now())
			if err := src.SubscribeToSegments(ctx, segments); err != nil {
				return "", err
			}
			return fmt.Sprintf("%d segments", len(segments)), nil
		},
	}
}

// Scheduler runs jobs on their intervals.
//
// Job failures are logged and reported as progress; they never stop the scheduler.
type Scheduler struct {
	jobs   []Job
	logger *log.Logger

	mu   sync.Mutex
	runs int
}

// NewScheduler creates an empty [Scheduler].
func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Scheduler{logger: logger}
}

// Add registers job. Jobs without a positive interval only run through [Scheduler.RunOnce].
func (s *Scheduler) Add(job Job) { s.jobs = append(s.jobs, job) }

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []Job { return s.jobs }

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (s *Scheduler) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// RunOnce runs every job once in registration order.
func (s *Scheduler) RunOnce(ctx context.Context, progress chan<- ProgressUpdate) []Result {
	results := make([]Result, 0, len(s.jobs))
	for i, job := range s.jobs {
		results = append(results, s.run(ctx, job, i+1, progress))
	}
	return results
}

// Run ticks every job on its interval until ctx is done. Each job runs once at start.
func (s *Scheduler) Run(ctx context.Context, progress chan<- ProgressUpdate) error {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job, progress)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job, progress chan<- ProgressUpdate) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for step := 1; ; step++ {
		s.run(ctx, job, step, progress)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job, step int, progress chan<- ProgressUpdate) Result {
	s.mu.Lock()
	s.runs++
	total := s.runs
	s.mu.Unlock()

	s.sendProgress(progress, startedUpdate(job, step, total))
	summary, err := job.Run(ctx)
	result := Result{Job: job.Name, Summary: summary, Err: err, Finished: time.Now()}

	if err != nil {
		s.logger.Warn("job failed", "job", job.Name, "err", err)
		s.sendProgress(progress, failedUpdate(job, step, total, err))
		return result
	}
	s.logger.Debug("job finished", "job", job.Name, "summary", summary)
	s.sendProgress(progress, finishedUpdate(job, step, total, result))
	return result
}

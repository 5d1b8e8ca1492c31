package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/whispers/whispers/internal/platform/cache"
	"github.com/whispers/whispers/internal/platform/telemetry"
)

// Daily job task types.
const (
	TaskStandard = "notify.standard"
	TaskCustom   = "notify.custom"
	TaskStale    = "notify.stale"
)

// TaskTypes lists the daily jobs in the order they are scheduled.
var TaskTypes = []string{TaskStandard, TaskCustom, TaskStale}

// jobLockTTL keeps a job claimed for the rest of its day.
const jobLockTTL = 23 * time.Hour

// Locker is a cross-process mutex; cache.Client satisfies it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, bool, error)
}

// Jobs runs the daily rules so that each job runs once per day across
// every worker.
type Jobs struct {
	rules  *Rules
	locker Locker
	logger zerolog.Logger
	now    func() time.Time
}

func NewJobs(rules *Rules, locker Locker, logger zerolog.Logger) *Jobs {
	return &Jobs{rules: rules, locker: locker, logger: logger, now: time.Now}
}

// Run executes the named job for the current day. It returns the number of
// notifications generated; a job already claimed for the day is skipped.
// A failed job keeps its claim: notifications sent before the failure are
// not sent again by a rerun, and the next day's job picks up the slack.
func (j *Jobs) Run(ctx context.Context, task string) (int, error) {
	ctx, span := telemetry.Tracer("notification").Start(ctx, task)
	defer span.End()

	now := j.now()
	today := Day(now)
	run, err := j.job(task)
	if err != nil {
		return 0, err
	}

	key := fmt.Sprintf("whispers:job:%s:%s", task, today.Format("2006-01-02"))
	_, ok, err := j.locker.Acquire(ctx, key, jobLockTTL)
	if err != nil {
		return 0, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		j.logger.Info().Str("task", task).Msg("daily job already claimed, skipping")
		return 0, nil
	}

	n, err := run(ctx, now)
	span.SetAttributes(attribute.Int("notifications", n))
	if err != nil {
		span.RecordError(err)
		j.logger.Error().Err(err).Str("task", task).Int("notifications", n).
			Str("claim", key).Msg("daily job failed, claim kept for the day")
		return n, err
	}
	j.logger.Info().Str("task", task).Int("notifications", n).Msg("daily job finished")
	return n, nil
}

func (j *Jobs) job(task string) (func(context.Context, time.Time) (int, error), error) {
	switch task {
	case TaskStandard:
		return func(ctx context.Context, now time.Time) (int, error) { return j.rules.Standard(ctx, Yesterday(now)) }, nil
	case TaskCustom:
		return func(ctx context.Context, now time.Time) (int, error) { return j.rules.Custom(ctx, Yesterday(now)) }, nil
	case TaskStale:
		return j.rules.Stale, nil
	}
	return nil, fmt.Errorf("unknown notification job %q", task)
}

// Register installs a handler for every daily job on mux.
func (j *Jobs) Register(mux *asynq.ServeMux) {
	for _, task := range TaskTypes {
		mux.HandleFunc(task, j.ProcessTask)
	}
}

// ProcessTask runs the job named by the task type. Failures are not retried
// since the day's claim would skip the retry anyway.
func (j *Jobs) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if _, err := j.Run(ctx, t.Type()); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return nil
}

// Schedule registers every daily job on the cron spec.
func Schedule(s *asynq.Scheduler, cronspec, queue string) error {
	for _, task := range TaskTypes {
		if _, err := s.Register(cronspec, asynq.NewTask(task, nil, asynq.Queue(queue))); err != nil {
			return fmt.Errorf("schedule %s: %w", task, err)
		}
	}
	return nil
}

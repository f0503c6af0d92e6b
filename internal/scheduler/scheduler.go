// Package scheduler provides the Redis-backed job queue, the standing daily
// trigger and the single-concurrency worker that drains snapshot jobs.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitcastor/snapshotter/internal/chart"
	"github.com/hitcastor/snapshotter/internal/pipeline"
)

const (
	queueKey       = "snapshots:queue"
	schedulePrefix = "snapshots:schedule:"
	scheduleKey    = schedulePrefix + "daily"
	pendingPrefix  = "snapshots:pending:"

	// pendingTTL bounds how long a dedupe marker can outlive a lost job.
	pendingTTL = 24 * time.Hour
)

// DailySchedule is the single standing trigger definition.
type DailySchedule struct {
	Region string
	At     string // "15:04" UTC
}

// Queue wraps the Redis list and schedule registry.
type Queue struct {
	rdb *redis.Client
}

// NewQueue connects to Redis using a redis:// URL.
func NewQueue(redisURL string) (*Queue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}
	return &Queue{rdb: redis.NewClient(opt)}, nil
}

// NewQueueWithClient wraps an existing client. Used by tests.
func NewQueueWithClient(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Ping verifies connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Enqueue pushes a job without dedupe. Used for manual/forced invocations.
func (q *Queue) Enqueue(ctx context.Context, job pipeline.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("error marshalling job: %w", err)
	}
	if err := q.rdb.LPush(ctx, queueKey, payload).Err(); err != nil {
		return fmt.Errorf("error enqueueing job: %w", err)
	}
	return nil
}

// EnqueueUnique pushes a job unless one for the same (date, region) is
// already pending. Returns whether the job was actually enqueued. Pending
// trigger events for the same key collapse into one.
func (q *Queue) EnqueueUnique(ctx context.Context, job pipeline.Job) (bool, error) {
	ok, err := q.rdb.SetNX(ctx, pendingKey(job), "1", pendingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("error setting dedupe marker: %w", err)
	}
	if !ok {
		log.Printf("job %s already pending, skipping enqueue", job)
		return false, nil
	}
	if err := q.Enqueue(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}

// Dequeue blocks up to timeout for the next job. Returns (nil, nil) when the
// queue stayed empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*pipeline.Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error dequeueing job: %w", err)
	}

	var job pipeline.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("error unmarshalling job: %w", err)
	}
	// The job is no longer pending once handed to the worker.
	q.rdb.Del(ctx, pendingKey(job))
	return &job, nil
}

// RegisterDaily installs the standing daily schedule. Any prior schedule
// definitions are removed first so duplicates never coexist.
func (q *Queue) RegisterDaily(ctx context.Context, sched DailySchedule) error {
	if _, err := time.Parse("15:04", sched.At); err != nil {
		return fmt.Errorf("invalid schedule time %q: %w", sched.At, err)
	}

	var cursor uint64
	for {
		keys, next, err := q.rdb.Scan(ctx, cursor, schedulePrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("error scanning schedule keys: %w", err)
		}
		if len(keys) > 0 {
			if err := q.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("error clearing prior schedules: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := q.rdb.HSet(ctx, scheduleKey, "region", sched.Region, "at", sched.At).Err(); err != nil {
		return fmt.Errorf("error registering schedule: %w", err)
	}
	log.Printf("daily snapshot schedule configured for %s UTC (region %s)", sched.At, sched.Region)
	return nil
}

// DailyScheduleDefinition returns the standing schedule, or (nil, nil) when
// none is registered.
func (q *Queue) DailyScheduleDefinition(ctx context.Context) (*DailySchedule, error) {
	vals, err := q.rdb.HGetAll(ctx, scheduleKey).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading schedule: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return &DailySchedule{Region: vals["region"], At: vals["at"]}, nil
}

func (q *Queue) Close() error { return q.rdb.Close() }

func pendingKey(job pipeline.Job) string {
	return pendingPrefix + job.DateUTC + ":" + job.Region
}

// Worker drains the queue with concurrency exactly 1: no two pipeline runs
// execute simultaneously even when multiple trigger events are pending.
type Worker struct {
	queue *Queue
	run   func(context.Context, pipeline.Job) error
}

func NewWorker(queue *Queue, run func(context.Context, pipeline.Job) error) *Worker {
	return &Worker{queue: queue, run: run}
}

// Run processes jobs until ctx is cancelled. The in-flight job shares ctx,
// so shutdown reaches its blocking operations (retry sleeps end instead of
// running out their budget); Run returns once that job has returned.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("snapshot worker started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("snapshot worker stopped")
			return nil
		default:
		}

		job, err := w.queue.Dequeue(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("snapshot worker stopped")
				return nil
			}
			log.Printf("worker dequeue error: %v", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}
		if job == nil {
			continue
		}

		if err := w.run(ctx, *job); err != nil {
			log.Printf("job %s failed: %v", job, err)
		} else {
			log.Printf("job %s completed", job)
		}
	}
}

// Trigger fires the standing daily schedule, enqueueing a snapshot job for
// the previous UTC date each time the scheduled wall-clock time passes.
type Trigger struct {
	queue *Queue
	now   func() time.Time
}

func NewTrigger(queue *Queue) *Trigger {
	return &Trigger{queue: queue, now: time.Now}
}

// Run sleeps until the next scheduled fire time, enqueues, and repeats until
// ctx is cancelled.
func (t *Trigger) Run(ctx context.Context) error {
	for {
		sched, err := t.queue.DailyScheduleDefinition(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if sched == nil {
			return fmt.Errorf("no daily schedule registered")
		}

		next := nextFire(t.now().UTC(), sched.At)
		log.Printf("next daily snapshot trigger at %s", next.Format(time.RFC3339))

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			return nil
		}

		job := pipeline.Job{DateUTC: chart.YesterdayUTC(), Region: sched.Region}
		if _, err := t.queue.EnqueueUnique(ctx, job); err != nil {
			log.Printf("error enqueueing scheduled job: %v", err)
		}
	}
}

// nextFire returns the next occurrence of the "15:04" UTC wall-clock time
// strictly after now.
func nextFire(now time.Time, at string) time.Time {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		parsed = time.Time{} // fall back to midnight
	}
	candidate := time.Date(now.Year(), now.Month(), now.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate
}

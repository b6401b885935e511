package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobQueue is a FIFO job queue on a Redis list. Producers push to the head;
// workers block-pop from the tail.
type JobQueue struct {
	rdb *redis.Client
	key string
}

// NewJobQueue creates a job queue on the given list key.
func NewJobQueue(rdb *redis.Client, key string) *JobQueue {
	return &JobQueue{rdb: rdb, key: key}
}

// Enqueue pushes a job to the queue.
func (q *JobQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueuing job: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next job. Returns ErrQueueEmpty when the
// timeout elapses with no job available.
func (q *JobQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	vals, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("popping job: %w", err)
	}
	// BRPOP returns [key, value].
	if len(vals) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(vals))
	}
	var job Job
	if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
		return nil, fmt.Errorf("malformed job payload: %w", err)
	}
	return &job, nil
}

// Depth returns the number of pending jobs.
func (q *JobQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("reading queue depth: %w", err)
	}
	return n, nil
}

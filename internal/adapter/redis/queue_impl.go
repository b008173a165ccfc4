package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobsKey      = "catalog:jobs"
	jobKeyPrefix = "catalog:job:"
)

// QueueRepoImpl implements repository.JobQueue on a Redis list. A job key per
// item, set with SETNX and a TTL, keeps an item from being enqueued twice
// while a job for it is outstanding.
type QueueRepoImpl struct {
	client *redis.Client
	jobTTL time.Duration
}

// NewQueueRepo creates a new instance of QueueRepoImpl. jobTTL bounds how long
// a lost job blocks re-enqueueing its item.
func NewQueueRepo(client *redis.Client, jobTTL time.Duration) *QueueRepoImpl {
	if jobTTL <= 0 {
		jobTTL = 30 * time.Minute
	}
	return &QueueRepoImpl{client: client, jobTTL: jobTTL}
}

func jobKey(itemID string) string {
	return jobKeyPrefix + itemID
}

// AddBulk claims job keys for all ids in one pipeline, then pushes the ids
// whose key was free.
func (r *QueueRepoImpl) AddBulk(ctx context.Context, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	claims := make([]*redis.BoolCmd, len(itemIDs))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range itemIDs {
			claims[i] = pipe.SetNX(ctx, jobKey(id), "1", r.jobTTL)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var fresh []string
	for i, cmd := range claims {
		if cmd.Val() {
			fresh = append(fresh, itemIDs[i])
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	values := make([]any, len(fresh))
	for i, id := range fresh {
		values[i] = id
	}
	if err := r.client.LPush(ctx, jobsKey, values...).Err(); err != nil {
		// Free the claims so the next drain can retry these items.
		keys := make([]string, len(fresh))
		for i, id := range fresh {
			keys[i] = jobKey(id)
		}
		r.client.Del(ctx, keys...)
		return nil, err
	}
	return fresh, nil
}

// Pop blocks with BRPOP and returns "" when the timeout passes without a job.
func (r *QueueRepoImpl) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := r.client.BRPop(ctx, timeout, jobsKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BRPOP replies with [key, value].
	return res[1], nil
}

func (r *QueueRepoImpl) Release(ctx context.Context, itemID string) error {
	return r.client.Del(ctx, jobKey(itemID)).Err()
}

// Size returns the current number of items in the queue.
func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, jobsKey).Result()
}

func (r *QueueRepoImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

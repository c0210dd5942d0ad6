package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultName is the list render ids are pushed to.
const DefaultName = "framecast:renders"

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	if queueName == "" {
		queueName = DefaultName
	}
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

// Push enqueues a render id (LPUSH; Pop takes from the other end).
func (q *RedisQueue) Push(ctx context.Context, renderID string) error {
	return q.rdb.LPush(ctx, q.queueName, renderID).Err()
}

// Pop blocks up to timeout for a render id (BRPOP). It returns "" when the
// timeout passes without one.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Len is the number of waiting renders.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a FIFO list of activation payloads consumed by the agent side.
type RedisQueue struct {
	client    *redis.Client
	queueName string
}

func NewRedisQueue(client *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{
		client:    client,
		queueName: queueName,
	}
}

// Push adds a payload to the end of the list
func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	return q.client.RPush(ctx, q.queueName, payload).Err()
}

// Pop waits up to timeout for a payload and removes it from the front of the
// list. A zero timeout waits forever.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := q.client.BLPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		return nil, err
	}
	// BLPop returns a slice: [QueueName, Element]
	return []byte(result[1]), nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

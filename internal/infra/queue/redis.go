package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"member-portal/internal/domain"
	"member-portal/internal/infra/metrics"
)

// RedisEmailQueue реализует очередь писем на базе Redis lists.
// Взятая задача перекладывается в список обработки до подтверждения.
type RedisEmailQueue struct {
	client        *redis.Client
	key           string
	processingKey string
}

var _ domain.EmailQueue = (*RedisEmailQueue)(nil)

// NewRedisEmailQueue создаёт очередь по указанному ключу.
func NewRedisEmailQueue(client *redis.Client, key string) *RedisEmailQueue {
	return &RedisEmailQueue{client: client, key: key, processingKey: key + ":processing"}
}

// Enqueue публикует задачу в очередь.
func (q *RedisEmailQueue) Enqueue(ctx context.Context, job domain.EmailJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisEmailQueue) Receive(ctx context.Context) (domain.EmailJob, domain.EmailAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.EmailJob{}, nil, err
		}

		raw, err := q.client.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.EmailJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.EmailJob{}, nil, err
		}
		var job domain.EmailJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			_ = q.client.LRem(context.Background(), q.processingKey, 1, raw).Err()
			return domain.EmailJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, q.ackFunc(raw), nil
	}
}

func (q *RedisEmailQueue) ackFunc(raw string) domain.EmailAckFunc {
	return func(success bool) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processingKey, 1, raw)
			if !success {
				pipe.LPush(ctx, q.key, raw)
			}
			return nil
		})
		metrics.ObserveNetworkRequest("redis", "ack", q.key, start, err)
		return err
	}
}

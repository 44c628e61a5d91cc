package queue

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"member-portal/internal/domain"
)

// Backend очереди писем.
const (
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
)

// Settings описывает выбор очереди писем.
type Settings struct {
	Backend             string
	Key                 string
	RabbitURL           string
	RabbitManagementURL string
}

// OpenEmailQueue создаёт очередь писем для выбранного backend. redisClient нужен только для redis.
func OpenEmailQueue(s Settings, redisClient *redis.Client) (domain.EmailQueue, error) {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case "", BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("очередь %s: не настроен Redis (REDIS_ADDR)", BackendRedis)
		}
		return NewRedisEmailQueue(redisClient, s.Key), nil
	case BackendRabbitMQ:
		q, err := NewRabbitEmailQueue(s.RabbitURL, s.RabbitManagementURL, s.Key)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("неизвестный backend очереди: %q", s.Backend)
	}
}

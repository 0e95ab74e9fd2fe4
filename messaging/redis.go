package messaging

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/skiff-works/skiff"
	"github.com/skiff-works/skiff/pkg/wirejson"
)

// RedisProducerProvider forwards produced events over redis pub/sub, one
// channel per client name. Pub/sub does not buffer, so consumers that are
// offline miss events.
type RedisProducerProvider struct {
	Address  string
	Password string
	DB       int
}

func (p *RedisProducerProvider) GetProducer(ctx context.Context, clientName string) (skiff.Producer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     p.Address,
		Password: p.Password,
		DB:       p.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisProducer{
		client:  client,
		channel: clientName,
	}, nil
}

type redisProducer struct {
	client *redis.Client

	channel string
}

func (r *redisProducer) Publish(ctx context.Context, payload *skiff.ProducedPayload) error {
	data, err := wirejson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis marshal: %w", err)
	}

	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *redisProducer) Close() error {
	return r.client.Close()
}

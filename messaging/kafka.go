package messaging

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/skiff-works/skiff"
	"github.com/skiff-works/skiff/pkg/wirejson"
)

// KafkaProducerProvider forwards produced events onto a Kafka topic named
// after the client.
type KafkaProducerProvider struct {
	Address string

	// Balancer is one of crc32, hash, murmur2, roundrobin or leastbytes.
	// Empty leaves the writer's default.
	Balancer string

	Async bool
}

func parseKafkaBalancer(balancer string) (kafka.Balancer, error) {
	switch balancer {
	case "crc32":
		return &kafka.CRC32Balancer{}, nil
	case "hash":
		return &kafka.Hash{}, nil
	case "murmur2":
		return &kafka.Murmur2Balancer{}, nil
	case "roundrobin":
		return &kafka.RoundRobin{}, nil
	case "leastbytes":
		return &kafka.LeastBytes{}, nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown kafka balancer %q", balancer)
	}
}

func (p *KafkaProducerProvider) GetProducer(_ context.Context, clientName string) (skiff.Producer, error) {
	balancer, err := parseKafkaBalancer(p.Balancer)
	if err != nil {
		return nil, err
	}

	return &kafkaProducer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(p.Address),
			Balancer: balancer,
			Async:    p.Async,
		},

		topic: clientName,
	}, nil
}

type kafkaProducer struct {
	writer *kafka.Writer

	topic string
}

func (k *kafkaProducer) Publish(ctx context.Context, payload *skiff.ProducedPayload) error {
	data, err := wirejson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("kafka marshal: %w", err)
	}

	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Value: data,
	})
}

func (k *kafkaProducer) Close() error {
	return k.writer.Close()
}

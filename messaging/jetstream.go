package messaging

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/skiff-works/skiff"
	"github.com/skiff-works/skiff/pkg/wirejson"
)

// JetStreamProducerProvider forwards produced events onto a NATS JetStream
// stream. One subject per client name, under the configured channel.
type JetStreamProducerProvider struct {
	Address string
	Channel string

	// UseInterestPolicy retains messages while consumers exist instead of
	// the default work-queue semantics.
	UseInterestPolicy bool
}

func (p *JetStreamProducerProvider) GetProducer(ctx context.Context, clientName string) (skiff.Producer, error) {
	nc, err := nats.Connect(p.Address)
	if err != nil {
		return nil, fmt.Errorf("jetstream connect: %w", err)
	}

	client, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream new: %w", err)
	}

	retention := jetstream.WorkQueuePolicy
	if p.UseInterestPolicy {
		retention = jetstream.InterestPolicy
	}

	stream, err := client.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              p.Channel,
		Subjects:          []string{p.Channel + ".*"},
		Retention:         retention,
		Discard:           jetstream.DiscardOld,
		MaxAge:            5 * time.Minute,
		Storage:           jetstream.MemoryStorage,
		MaxMsgsPerSubject: 1_000_000,
		MaxMsgSize:        math.MaxInt32,
		NoAck:             false,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream create stream: %w", err)
	}

	return &jetStreamProducer{
		conn:   nc,
		client: client,
		stream: stream,

		subject: p.Channel + "." + clientName,
	}, nil
}

type jetStreamProducer struct {
	conn   *nats.Conn
	client jetstream.JetStream
	stream jetstream.Stream

	subject string
}

func (j *jetStreamProducer) Publish(ctx context.Context, payload *skiff.ProducedPayload) error {
	data, err := wirejson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("jetstream marshal: %w", err)
	}

	_, err = j.client.Publish(ctx, j.subject, data)

	return err
}

func (j *jetStreamProducer) Close() error {
	j.conn.Close()

	return nil
}

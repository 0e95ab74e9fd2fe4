package skiff

import (
	"context"

	"github.com/skiff-works/skiff/discord"
)

// ProducerProvider hands out a Producer for a given client name.
type ProducerProvider interface {
	GetProducer(ctx context.Context, clientName string) (Producer, error)
}

// Producer receives every produced event, after cache application and
// before the typed handler runs. Implementations live in the messaging
// package; the zero default is no producer at all.
type Producer interface {
	Publish(ctx context.Context, payload *ProducedPayload) error
	Close() error
}

// ProducedPayload is the envelope forwarded to producers.
type ProducedPayload struct {
	discord.GatewayPayload

	Extra    map[string]any   `json:"__extra,omitempty"`
	Metadata ProducedMetadata `json:"__metadata"`
	Trace    Trace            `json:"__trace,omitempty"`
}

// ProducedMetadata identifies the session that produced a payload.
type ProducedMetadata struct {
	ClientName string            `json:"c"`
	UserID     discord.Snowflake `json:"id"`
	Shard      [2]int32          `json:"s"`
}

// noopProducerProvider is the default: events are handled in-process and
// never forwarded anywhere.
type noopProducerProvider struct{}

func NewNoopProducerProvider() *noopProducerProvider {
	return &noopProducerProvider{}
}

func (n *noopProducerProvider) GetProducer(_ context.Context, _ string) (Producer, error) {
	return nil, nil
}

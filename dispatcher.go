package skiff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/skiff-works/skiff/discord"
	"github.com/skiff-works/skiff/pkg/wirejson"
)

// DispatchHandler decodes one dispatch event, applies it to the cache and
// returns the typed event with its pre-image. The bool reports whether
// the event should continue to user handlers and producers.
type DispatchHandler func(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, trace *Trace) (result DispatchResult, ok bool, err error)

var dispatchHandlers = make(map[string]DispatchHandler)

func RegisterDispatchHandler(eventType string, handler DispatchHandler) {
	dispatchHandlers[eventType] = handler
}

func NewTrace() *Trace {
	t := make(Trace)

	return &t
}

// Trace accumulates nanosecond timestamps as an event moves through the
// pipeline. It rides along on produced payloads.
type Trace map[string]any

func (t *Trace) Set(key string, value any) *Trace {
	(*t)[key] = value

	return t
}

func NewExtra() *Extra {
	e := make(Extra)

	return &e
}

// Extra carries per-event side products, such as the messages evicted by
// a channel delete, keyed by name and already marshalled.
type Extra map[string]jsoniter.RawMessage

func (e *Extra) Set(key string, value any) *Extra {
	data, err := wirejson.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("extra.Set(%s, %v): %v", key, value, err))
	}

	(*e)[key] = data

	return e
}

// DispatchResult is what a dispatch handler produces: the decoded event,
// the cache pre-image of whatever the event displaced, and any extras.
type DispatchResult struct {
	Event    any
	PreImage any
	Extra    *Extra
}

// FullEvent is the unit delivered to user handlers and collectors.
type FullEvent struct {
	Type     string
	ShardID  int32
	Sequence int64

	Event    any
	PreImage any
	Extra    *Extra

	Raw jsoniter.RawMessage
}

// EventContext gives handlers access to the client surfaces without
// importing the world.
type EventContext struct {
	Logger *slog.Logger

	Skiff *Skiff
	Cache *Cache

	ShardID   int32
	Messenger *ShardMessenger
}

// EventHandler receives every decoded event after cache application.
type EventHandler interface {
	OnEvent(ctx context.Context, eventCtx *EventContext, event *FullEvent)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, eventCtx *EventContext, event *FullEvent)

func (f EventHandlerFunc) OnEvent(ctx context.Context, eventCtx *EventContext, event *FullEvent) {
	f(ctx, eventCtx, event)
}

// RawEventHandler sees every dispatch payload before decoding. Returning
// false swallows the event entirely.
type RawEventHandler interface {
	OnRawEvent(ctx context.Context, eventCtx *EventContext, payload *discord.GatewayPayload) bool
}

// VoiceHandler is the optional voice collaborator: it receives the two
// events a voice implementation needs to negotiate a voice connection.
type VoiceHandler interface {
	OnVoiceStateUpdate(ctx context.Context, eventCtx *EventContext, voiceState *discord.VoiceState)
	OnVoiceServerUpdate(ctx context.Context, eventCtx *EventContext, voiceServer *discord.VoiceServerUpdate)
}

func (s *Skiff) newEventContext(shard *Shard) *EventContext {
	eventCtx := &EventContext{
		Logger: s.logger,

		Skiff: s,
		Cache: s.cache,
	}

	if shard != nil {
		eventCtx.Logger = shard.logger
		eventCtx.ShardID = shard.shardID
		eventCtx.Messenger = shard.Messenger()
	}

	return eventCtx
}

// dispatch is the single entry point for every dispatch payload a shard
// reads. Decoding and cache application run serially on the shard's read
// loop so cache order matches wire order; handler delivery and producing
// are handed off to a goroutine.
func (s *Skiff) dispatch(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, trace *Trace) error {
	configuration := shard.manager.configuration.Load()

	for _, blacklistedEvent := range configuration.EventBlacklist {
		if blacklistedEvent == msg.Type {
			return nil
		}
	}

	eventCtx := s.newEventContext(shard)

	if s.rawHandler != nil {
		if !s.rawHandler.OnRawEvent(ctx, eventCtx, msg) {
			return nil
		}
	}

	var result DispatchResult

	var continuable bool

	if handler, ok := dispatchHandlers[msg.Type]; ok {
		var err error

		result, continuable, err = handler(ctx, shard, msg, trace)
		if err != nil && !errors.Is(err, ErrNoDispatchHandler) {
			return fmt.Errorf("failed to dispatch event: %w", err)
		}
	} else {
		// Unregistered event names still reach handlers, wrapped so the
		// consumer can tell them apart from decoded events.
		result = DispatchResult{
			Event: UnknownEvent{
				Type: msg.Type,
				Raw:  msg.Data,
			},
		}
		continuable = true
	}

	// Applying this event may have drained the unavailable set or
	// completed the topology. Both signals fire exactly once and are
	// delivered before the event that triggered them.
	if s.cache.takePendingCacheReady() {
		s.broadcast(EventCacheReady, CacheReady{
			Guilds: s.cache.GuildIDs(),
		})
	}

	if shard.manager.takePendingShardsReady() {
		s.broadcast(EventShardsReady, ShardsReady{
			ShardCount: shard.manager.shardCount.Load(),
		})
	}

	if !continuable {
		return nil
	}

	event := &FullEvent{
		Type:     msg.Type,
		ShardID:  shard.shardID,
		Sequence: msg.Sequence,

		Event:    result.Event,
		PreImage: result.PreImage,
		Extra:    result.Extra,

		Raw: msg.Data,
	}

	producedPayload := discord.GatewayPayload{
		Type:     msg.Type,
		Data:     msg.Data,
		Sequence: msg.Sequence,
		Op:       msg.Op,
	}

	go s.deliver(ctx, shard, eventCtx, event, producedPayload, trace)

	return nil
}

// deliver fans one event out to collectors, the voice collaborator, the
// producer and the user handler. Runs off the read loop.
func (s *Skiff) deliver(ctx context.Context, shard *Shard, eventCtx *EventContext, event *FullEvent, producedPayload discord.GatewayPayload, trace *Trace) {
	defer func() {
		if r := recover(); r != nil {
			if s.panicHandler != nil {
				s.panicHandler(s, r)
			}
		}
	}()

	s.collectors.Offer(event)

	if s.voiceHandler != nil {
		switch typed := event.Event.(type) {
		case *discord.VoiceState:
			s.voiceHandler.OnVoiceStateUpdate(ctx, eventCtx, typed)
		case *discord.VoiceServerUpdate:
			s.voiceHandler.OnVoiceServerUpdate(ctx, eventCtx, typed)
		}
	}

	s.produce(ctx, shard, event, producedPayload, trace)

	if s.eventHandler != nil {
		s.eventHandler.OnEvent(ctx, eventCtx, event)
	}

	s.cache.updateMetrics()
}

func (s *Skiff) produce(ctx context.Context, shard *Shard, event *FullEvent, producedPayload discord.GatewayPayload, trace *Trace) {
	producer := shard.manager.producer
	if producer == nil {
		return
	}

	configuration := shard.manager.configuration.Load()

	for _, blacklistedEvent := range configuration.ProduceBlacklist {
		if blacklistedEvent == event.Type {
			return
		}
	}

	packet := &ProducedPayload{
		GatewayPayload: producedPayload,
	}

	if event.Extra != nil {
		packet.Extra = make(map[string]any, len(*event.Extra))

		for key, value := range *event.Extra {
			packet.Extra[key] = value
		}
	}

	if metadata := shard.metadata.Load(); metadata != nil {
		packet.Metadata = *metadata
	}

	if trace != nil {
		packet.Trace = *trace
		packet.Trace.Set("publish", time.Now().UnixNano())
	}

	if err := producer.Publish(ctx, packet); err != nil {
		shard.logger.Error("Failed to publish event", "error", err)
	}
}

// broadcast delivers a synthesised event, one that has no gateway payload
// behind it, to collectors and the user handler.
func (s *Skiff) broadcast(eventType string, data any) {
	event := &FullEvent{
		Type:  eventType,
		Event: data,
	}

	s.collectors.Offer(event)

	if s.eventHandler == nil {
		return
	}

	eventCtx := s.newEventContext(nil)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				if s.panicHandler != nil {
					s.panicHandler(s, r)
				}
			}
		}()

		s.eventHandler.OnEvent(context.Background(), eventCtx, event)
	}()
}

// diagnose pushes a shard failure onto the diagnostics channel without
// blocking the shard.
func (s *Skiff) diagnose(shardID int32, err error) {
	select {
	case s.diagnostics <- Diagnostic{
		ShardID: shardID,
		Err:     err,
		At:      time.Now(),
	}:
	default:
	}
}

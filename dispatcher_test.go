package skiff

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/skiff-works/skiff/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawVetoHandler struct {
	allow bool
	seen  int
}

func (h *rawVetoHandler) OnRawEvent(_ context.Context, _ *EventContext, _ *discord.GatewayPayload) bool {
	h.seen++

	return h.allow
}

func awaitDelivered(t *testing.T, collector *Collector) *FullEvent {
	t.Helper()

	select {
	case event := <-collector.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("no event delivered")

		return nil
	}
}

func TestDispatchBlacklistedEventDropped(t *testing.T) {
	shard := newTestShard()
	shard.manager.configuration.Store(&Configuration{
		EventBlacklist: []string{discord.EventTypingStart},
	})

	collector, err := shard.skiff.collectors.Add(nil, CollectorOptions{})
	require.NoError(t, err)

	defer collector.Close()

	msg := &discord.GatewayPayload{
		Op:   discord.GatewayOpDispatch,
		Type: discord.EventTypingStart,
		Data: []byte(`{}`),
	}

	require.NoError(t, shard.skiff.dispatch(context.Background(), shard, msg, NewTrace()))

	select {
	case event := <-collector.Events():
		t.Fatalf("blacklisted event %s was delivered", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchRawHandlerVeto(t *testing.T) {
	shard := newTestShard()

	veto := &rawVetoHandler{allow: false}
	shard.skiff.rawHandler = veto

	collector, err := shard.skiff.collectors.Add(nil, CollectorOptions{})
	require.NoError(t, err)

	defer collector.Close()

	msg := &discord.GatewayPayload{
		Op:   discord.GatewayOpDispatch,
		Type: discord.EventTypingStart,
		Data: []byte(`{}`),
	}

	require.NoError(t, shard.skiff.dispatch(context.Background(), shard, msg, NewTrace()))

	assert.Equal(t, 1, veto.seen)

	select {
	case <-collector.Events():
		t.Fatal("vetoed event was delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchUnknownEventPassthrough(t *testing.T) {
	shard := newTestShard()

	collector, err := shard.skiff.collectors.Add(nil, CollectorOptions{})
	require.NoError(t, err)

	defer collector.Close()

	msg := &discord.GatewayPayload{
		Op:       discord.GatewayOpDispatch,
		Type:     "SOME_FUTURE_EVENT",
		Sequence: 7,
		Data:     []byte(`{"hello":"world"}`),
	}

	require.NoError(t, shard.skiff.dispatch(context.Background(), shard, msg, NewTrace()))

	event := awaitDelivered(t, collector)

	assert.Equal(t, "SOME_FUTURE_EVENT", event.Type)
	assert.Equal(t, int64(7), event.Sequence)

	unknown, ok := event.Event.(UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "SOME_FUTURE_EVENT", unknown.Type)
	assert.JSONEq(t, `{"hello":"world"}`, string(unknown.Raw))
}

func TestDispatchMessageCreateCachesAndDelivers(t *testing.T) {
	shard := newTestShard()

	collector, err := shard.skiff.collectors.Add(nil, CollectorOptions{})
	require.NoError(t, err)

	defer collector.Close()

	msg := &discord.GatewayPayload{
		Op:       discord.GatewayOpDispatch,
		Type:     discord.EventMessageCreate,
		Sequence: 1,
		Data:     []byte(`{"id":"10","channel_id":"100","author":{"id":"500","username":"someone"},"content":"hi"}`),
	}

	require.NoError(t, shard.skiff.dispatch(context.Background(), shard, msg, NewTrace()))

	event := awaitDelivered(t, collector)

	message, ok := event.Event.(*discord.Message)
	require.True(t, ok)
	assert.Equal(t, "hi", message.Content)

	cached, ok := shard.skiff.cache.Message(100, 10)
	require.True(t, ok)
	assert.Equal(t, "hi", cached.Content)

	user, ok := shard.skiff.cache.User(500)
	require.True(t, ok)
	assert.Equal(t, "someone", user.Username)
}

func TestDispatchEmitsCacheReadyBeforeTriggeringEvent(t *testing.T) {
	shard := newTestShard()

	collector, err := shard.skiff.collectors.Add(nil, CollectorOptions{Buffer: 8})
	require.NoError(t, err)

	defer collector.Close()

	shard.skiff.cache.pendingCacheReady.Store(true)

	msg := &discord.GatewayPayload{
		Op:       discord.GatewayOpDispatch,
		Type:     discord.EventGuildCreate,
		Sequence: 2,
		Data:     []byte(`{"id":"4194304","name":"last guild"}`),
	}

	require.NoError(t, shard.skiff.dispatch(context.Background(), shard, msg, NewTrace()))

	first := awaitDelivered(t, collector)
	assert.Equal(t, EventCacheReady, first.Type)

	second := awaitDelivered(t, collector)
	assert.Equal(t, discord.EventGuildCreate, second.Type)

	// One shot: the next dispatch does not replay it.
	require.NoError(t, shard.skiff.dispatch(context.Background(), shard, &discord.GatewayPayload{
		Op:       discord.GatewayOpDispatch,
		Type:     "SOME_FUTURE_EVENT",
		Sequence: 3,
		Data:     []byte(`{}`),
	}, NewTrace()))

	third := awaitDelivered(t, collector)
	assert.Equal(t, "SOME_FUTURE_EVENT", third.Type)
}

func TestDispatchEmitsShardsReadyOnce(t *testing.T) {
	shard := newTestShard()

	collector, err := shard.skiff.collectors.Add(func(event *FullEvent) bool {
		return event.Type == EventShardsReady
	}, CollectorOptions{})
	require.NoError(t, err)

	defer collector.Close()

	shard.manager.pendingShardsReady.Store(true)
	shard.manager.shardCount.Store(2)

	require.NoError(t, shard.skiff.dispatch(context.Background(), shard, &discord.GatewayPayload{
		Op:       discord.GatewayOpDispatch,
		Type:     "SOME_FUTURE_EVENT",
		Sequence: 4,
		Data:     []byte(`{}`),
	}, NewTrace()))

	event := awaitDelivered(t, collector)

	shardsReady, ok := event.Event.(ShardsReady)
	require.True(t, ok)
	assert.Equal(t, int32(2), shardsReady.ShardCount)
}

// Collectors observe a pseudo-event before the event that triggered it
// (pinned above). The typed handler is invoked on a fresh goroutine per
// event, so it only gets spawn order: both events arrive, in no
// guaranteed sequence.
func TestPseudoEventHandlerDeliveryIsUnordered(t *testing.T) {
	shard := newTestShard()

	var mu sync.Mutex

	var seen []string

	done := make(chan struct{})

	shard.skiff.eventHandler = EventHandlerFunc(func(_ context.Context, _ *EventContext, event *FullEvent) {
		mu.Lock()
		seen = append(seen, event.Type)
		count := len(seen)
		mu.Unlock()

		if count == 2 {
			close(done)
		}
	})

	shard.skiff.cache.pendingCacheReady.Store(true)

	require.NoError(t, shard.skiff.dispatch(context.Background(), shard, &discord.GatewayPayload{
		Op:       discord.GatewayOpDispatch,
		Type:     discord.EventGuildCreate,
		Sequence: 6,
		Data:     []byte(`{"id":"4194304","name":"last guild"}`),
	}, NewTrace()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not receive both events")
	}

	mu.Lock()
	defer mu.Unlock()

	assert.ElementsMatch(t, []string{EventCacheReady, discord.EventGuildCreate}, seen)
}

func TestDeliverRecoversFromHandlerPanic(t *testing.T) {
	shard := newTestShard()

	recovered := make(chan any, 1)

	shard.skiff.panicHandler = func(_ *Skiff, r any) {
		recovered <- r
	}

	shard.skiff.eventHandler = EventHandlerFunc(func(context.Context, *EventContext, *FullEvent) {
		panic("handler exploded")
	})

	require.NoError(t, shard.skiff.dispatch(context.Background(), shard, &discord.GatewayPayload{
		Op:       discord.GatewayOpDispatch,
		Type:     "SOME_FUTURE_EVENT",
		Sequence: 5,
		Data:     []byte(`{}`),
	}, NewTrace()))

	select {
	case r := <-recovered:
		assert.Equal(t, "handler exploded", r)
	case <-time.After(time.Second):
		t.Fatal("panic was not recovered")
	}
}

func TestGatewayOpDispatchDeduplicatesResumedReplay(t *testing.T) {
	shard := newTestShard()
	shard.skiff.dedupeProvider = NewInMemoryDedupeProvider()

	sessionID := "session-1"
	shard.sessionID.Store(&sessionID)

	collector, err := shard.skiff.collectors.Add(nil, CollectorOptions{Buffer: 8})
	require.NoError(t, err)

	defer collector.Close()

	msg := &discord.GatewayPayload{
		Op:       discord.GatewayOpDispatch,
		Type:     "SOME_FUTURE_EVENT",
		Sequence: 41,
		Data:     []byte(`{}`),
	}

	require.NoError(t, shard.OnEvent(context.Background(), msg, NewTrace()))

	awaitDelivered(t, collector)

	// The same (session, sequence) replayed after a resume is dropped.
	require.NoError(t, shard.OnEvent(context.Background(), msg, NewTrace()))

	select {
	case event := <-collector.Events():
		t.Fatalf("duplicate dispatch %s was delivered", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExtraRoundTrips(t *testing.T) {
	extra := NewExtra().Set("count", 3).Set("name", "general")

	assert.JSONEq(t, `3`, string((*extra)["count"]))
	assert.JSONEq(t, `"general"`, string((*extra)["name"]))
}

func TestTraceAccumulates(t *testing.T) {
	trace := NewTrace().Set("receive", int64(1)).Set("dispatch", int64(2))

	assert.Equal(t, int64(1), (*trace)["receive"])
	assert.Equal(t, int64(2), (*trace)["dispatch"])
}

package skiff

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/coder/websocket"
	"github.com/skiff-works/skiff/discord"
	"github.com/skiff-works/skiff/pkg/wirejson"
)

const (
	WebsocketReconnectCloseCode = 4000

	// How long a (session, sequence) pair is remembered for resumed-event
	// deduplication. Replays never reach further back than the resume
	// window, so this only needs to outlive a reconnect cycle.
	dispatchDedupeTTL = 5 * time.Minute
)

type GatewayHandler func(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, trace *Trace) error

var gatewayEvents = make(map[discord.GatewayOp]GatewayHandler)

func RegisterGatewayEvent(eventType discord.GatewayOp, handler GatewayHandler) {
	gatewayEvents[eventType] = handler
}

func gatewayOpDispatch(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, trace *Trace) error {
	shard.advanceSequence(msg.Sequence)

	// A resume replays the window after the acked sequence. Events that
	// were already delivered before the disconnect are dropped here so
	// handlers see each (session, sequence) at most once.
	if sessionID := shard.sessionID.Load(); sessionID != nil && *sessionID != "" && msg.Sequence > 0 {
		key := fmt.Sprintf("dispatch:%s:%d", *sessionID, msg.Sequence)

		if !shard.skiff.dedupeProvider.Deduplicate(ctx, key, dispatchDedupeTTL) {
			shard.logger.Debug("Dropping duplicate dispatch", "sequence", msg.Sequence, "type", msg.Type)

			return nil
		}
	}

	trace.Set("dispatch", time.Now().UnixNano())

	return shard.OnDispatch(ctx, msg, trace)
}

func gatewayOpHeartbeat(ctx context.Context, shard *Shard, _ *discord.GatewayPayload, _ *Trace) error {
	err := shard.SendEvent(ctx, discord.GatewayOpHeartbeat, shard.sequence.Load())
	if err != nil {
		err = shard.reconnect(ctx, websocket.StatusNormalClosure)
		if err != nil {
			return fmt.Errorf("failed to reconnect due to heartbeat failure: %w", err)
		}
	}

	return nil
}

func gatewayOpReconnect(ctx context.Context, shard *Shard, _ *discord.GatewayPayload, _ *Trace) error {
	shard.logger.Debug("Shard has been requested to reconnect")

	err := shard.reconnect(ctx, WebsocketReconnectCloseCode)
	if err != nil {
		return fmt.Errorf("failed to reconnect due to reconnect event: %w", err)
	}

	return nil
}

func gatewayOpInvalidSession(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) error {
	var resumable bool

	err := wirejson.Unmarshal(msg.Data, &resumable)
	if err != nil {
		return fmt.Errorf("failed to unmarshal invalid session: %w", err)
	}

	shard.logger.Warn("Shard has received an invalid session", "resumable", resumable)

	if !resumable {
		shard.clearSession()
	}

	// The gateway asks clients to wait a random 1-5s before the next
	// identify so a mass invalidation does not thundering-herd it.
	wait := time.Second + time.Duration(rand.Int64N(int64(4*time.Second)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	err = shard.reconnect(ctx, WebsocketReconnectCloseCode)
	if err != nil {
		return fmt.Errorf("failed to reconnect due to invalid session: %w", err)
	}

	return nil
}

func gatewayOpHello(_ context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) error {
	var hello discord.Hello

	err := wirejson.Unmarshal(msg.Data, &hello)
	if err != nil {
		return fmt.Errorf("failed to unmarshal hello: %w", err)
	}

	now := time.Now()
	shard.lastHeartbeatSent.Store(&now)
	shard.lastHeartbeatAck.Store(&now)

	if hello.HeartbeatInterval <= 0 {
		return ErrShardInvalidHeartbeatInterval
	}

	heartbeatInterval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	shard.heartbeatInterval.Store(&heartbeatInterval)

	heartbeatFailureInterval := heartbeatInterval * time.Duration(ShardMaxHeartbeatFailures)
	shard.heartbeatFailureInterval.Store(&heartbeatFailureInterval)

	if shard.heartbeater != nil {
		shard.heartbeater.Reset(heartbeatInterval)
	}

	return nil
}

func gatewayOpHeartbeatAck(_ context.Context, shard *Shard, _ *discord.GatewayPayload, _ *Trace) error {
	now := time.Now()
	shard.lastHeartbeatAck.Store(&now)

	if lastHeartbeatSent := shard.lastHeartbeatSent.Load(); lastHeartbeatSent != nil {
		latency := now.Sub(*lastHeartbeatSent)

		shard.gatewayLatency.Store(int64(latency))

		UpdateGatewayLatency(shard.shardID, float64(latency.Milliseconds()))
	}

	return nil
}

func init() {
	RegisterGatewayEvent(discord.GatewayOpDispatch, gatewayOpDispatch)
	RegisterGatewayEvent(discord.GatewayOpHeartbeat, gatewayOpHeartbeat)
	RegisterGatewayEvent(discord.GatewayOpReconnect, gatewayOpReconnect)
	RegisterGatewayEvent(discord.GatewayOpInvalidSession, gatewayOpInvalidSession)
	RegisterGatewayEvent(discord.GatewayOpHello, gatewayOpHello)
	RegisterGatewayEvent(discord.GatewayOpHeartbeatACK, gatewayOpHeartbeatAck)
}

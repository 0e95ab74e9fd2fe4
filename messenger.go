package skiff

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/skiff-works/skiff/discord"
)

// shardCommand is one outbound gateway command queued on a shard's
// mailbox. The result channel receives exactly one error (possibly nil)
// once the command has been written or dropped.
type shardCommand struct {
	op     discord.GatewayOp
	data   any
	result chan error
}

func newShardCommand(op discord.GatewayOp, data any) *shardCommand {
	return &shardCommand{
		op:     op,
		data:   data,
		result: make(chan error, 1),
	}
}

func (cmd *shardCommand) complete(err error) {
	select {
	case cmd.result <- err:
	default:
	}
}

func (cmd *shardCommand) fail(err error) {
	cmd.complete(err)
}

// ShardMessenger is the user-facing handle for sending commands on a
// shard. Commands queued while the shard is still connecting are held
// and flushed once the session is ready; commands queued during shutdown
// fail with ErrMailboxDropped.
type ShardMessenger struct {
	shard *Shard
}

func (shard *Shard) Messenger() *ShardMessenger {
	return &ShardMessenger{shard: shard}
}

// WebsocketMessage queues an arbitrary gateway command and waits for it
// to be written.
func (m *ShardMessenger) WebsocketMessage(ctx context.Context, op discord.GatewayOp, data any) error {
	cmd := newShardCommand(op, data)

	if err := m.shard.enqueue(cmd); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-cmd.result:
		return err
	}
}

// UpdatePresence replaces the shard's presence wholesale.
func (m *ShardMessenger) UpdatePresence(ctx context.Context, presence *discord.UpdateStatus) error {
	return m.WebsocketMessage(ctx, discord.GatewayOpPresenceUpdate, presence)
}

// SetStatus updates the presence status, keeping no activities.
func (m *ShardMessenger) SetStatus(ctx context.Context, status string) error {
	return m.UpdatePresence(ctx, &discord.UpdateStatus{
		Status: status,
	})
}

// SetActivity sets a single activity alongside an online status.
func (m *ShardMessenger) SetActivity(ctx context.Context, activity *discord.Activity) error {
	return m.UpdatePresence(ctx, &discord.UpdateStatus{
		Status:     discord.StatusOnline,
		Activities: []*discord.Activity{activity},
		Since:      time.Now().UnixMilli(),
	})
}

// UpdateVoiceState joins, moves or leaves a voice channel. A nil channel
// id leaves the current channel.
func (m *ShardMessenger) UpdateVoiceState(ctx context.Context, voiceState *discord.UpdateVoiceState) error {
	return m.WebsocketMessage(ctx, discord.GatewayOpVoiceStateUpdate, voiceState)
}

// RequestGuildMembers queues a raw member request without chunk tracking.
func (m *ShardMessenger) RequestGuildMembers(ctx context.Context, request *discord.RequestGuildMembers) error {
	return m.WebsocketMessage(ctx, discord.GatewayOpRequestGuildMembers, request)
}

// ChunkGuild requests member chunks for a guild and blocks until all
// chunks have been cached or the chunk timeout lapses.
func (m *ShardMessenger) ChunkGuild(ctx context.Context, guildID discord.Snowflake) error {
	return m.shard.chunkGuild(ctx, guildID, true)
}

// AddCollector registers an event collector scoped to this shard's
// sessions. See CollectorRegistry.Add.
func (m *ShardMessenger) AddCollector(filter CollectorFilter, options CollectorOptions) (*Collector, error) {
	return m.shard.skiff.collectors.Add(filter, options)
}

// ShutdownClean stops the shard with a normal closure and forgets the
// session, so a later connect identifies fresh instead of resuming.
func (m *ShardMessenger) ShutdownClean(ctx context.Context) {
	m.shard.Stop(ctx, websocket.StatusNormalClosure)
	m.shard.clearSession()
}

package skiff

import (
	"testing"

	csmap "github.com/mhmtszr/concurrent-swiss-map"
	"github.com/skiff-works/skiff/discord"
	"github.com/skiff-works/skiff/pkg/syncmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *ShardManager {
	return &ShardManager{
		shards:    &syncmap.Map[int32, *Shard]{},
		connected: csmap.Create[int32, bool](),
	}
}

func TestGetInitialShardCountCustom(t *testing.T) {
	manager := newTestManager()

	shardIDs, shardCount := manager.getInitialShardCount(4, "", false)

	assert.Equal(t, int32(4), shardCount)
	assert.Equal(t, []int32{0, 1, 2, 3}, shardIDs)
}

func TestGetInitialShardCountAutoSharded(t *testing.T) {
	manager := newTestManager()
	manager.gateway.Store(&discord.GatewayBotResponse{Shards: 8})

	shardIDs, shardCount := manager.getInitialShardCount(2, "", true)

	assert.Equal(t, int32(8), shardCount)
	assert.Len(t, shardIDs, 8)
}

func TestGetInitialShardCountWithShardIDRange(t *testing.T) {
	manager := newTestManager()

	shardIDs, shardCount := manager.getInitialShardCount(8, "0-2,6", false)

	assert.Equal(t, int32(8), shardCount)
	assert.Equal(t, []int32{0, 1, 2, 6}, shardIDs)
}

func TestShardForGuildRouting(t *testing.T) {
	manager := newTestManager()
	manager.shardCount.Store(4)

	for i := int32(0); i < 4; i++ {
		manager.shards.Store(i, &Shard{shardID: i})
	}

	// (guild_id >> 22) % shard_count
	guildID := discord.Snowflake(6 << 22)

	shard, err := manager.ShardForGuild(guildID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), shard.shardID)
}

func TestShardForGuildWithoutTopology(t *testing.T) {
	manager := newTestManager()

	_, err := manager.ShardForGuild(discord.Snowflake(1 << 22))
	assert.ErrorIs(t, err, ErrMissingShards)
}

func TestShardLookupMiss(t *testing.T) {
	manager := newTestManager()

	_, err := manager.Shard(3)
	assert.ErrorIs(t, err, ErrShardNotFound)
}

func TestShardsReadyFiresOncePerTopology(t *testing.T) {
	manager := newTestManager()

	manager.shards.Store(0, &Shard{shardID: 0})
	manager.shards.Store(1, &Shard{shardID: 1})

	manager.markShardReady(0)
	assert.False(t, manager.takePendingShardsReady(), "one shard still pending")

	manager.markShardReady(1)
	assert.True(t, manager.takePendingShardsReady())

	// Consumed; repeat readiness never re-arms it.
	assert.False(t, manager.takePendingShardsReady())

	manager.markShardReady(0)
	assert.False(t, manager.takePendingShardsReady())
}

func TestSnowflakeShardRouting(t *testing.T) {
	assert.Equal(t, int32(0), discord.Snowflake(0).ShardID(1))
	assert.Equal(t, int32(1), discord.Snowflake(1<<22).ShardID(2))
	assert.Equal(t, int32(0), discord.Snowflake(2<<22).ShardID(2))
	assert.Equal(t, int32(0), discord.Snowflake(123).ShardID(0), "non-positive shard count routes to shard 0")
}

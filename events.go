package skiff

import (
	"github.com/skiff-works/skiff/discord"
)

// Pseudo-events synthesised by the core. They never appear on the wire.
const (
	EventCacheReady        = "SKIFF_CACHE_READY"
	EventShardsReady       = "SKIFF_SHARDS_READY"
	EventShardStatusUpdate = "SKIFF_SHARD_STATUS_UPDATE"
)

// CacheReady is emitted exactly once per process, when the last
// unavailable guild from the initial READY payloads has been received.
type CacheReady struct {
	Guilds []discord.Snowflake `json:"guilds"`
}

// ShardsReady is emitted exactly once per topology, when every shard has
// connected.
type ShardsReady struct {
	ShardCount int32 `json:"shard_count"`
}

// ShardStatusUpdate is emitted whenever a shard changes lifecycle status.
type ShardStatusUpdate struct {
	ShardID int32       `json:"shard_id"`
	Status  ShardStatus `json:"status"`
}

// UnknownEvent carries a dispatch event the decoder has no mapping for.
// Unknown names are forwarded, never rejected.
type UnknownEvent struct {
	Type string `json:"type"`
	Raw  []byte `json:"raw"`
}

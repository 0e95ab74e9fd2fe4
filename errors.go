package skiff

import "errors"

var (
	ErrMissingBotToken = errors.New("configuration missing bot token")
	ErrMissingIntents  = errors.New("configuration missing intents")
	ErrMissingShards   = errors.New("no shards to start")

	ErrInvalidLargeThreshold = errors.New("large threshold must be within 50 and 250")

	ErrShardConnectFailed            = errors.New("shard connect failed")
	ErrShardInvalidHeartbeatInterval = errors.New("shard invalid heartbeat interval")
	ErrShardStopping                 = errors.New("shard stopping")
	ErrShardNotFound                 = errors.New("shard not found")

	ErrNoGatewayHandler  = errors.New("no gateway handler found")
	ErrNoDispatchHandler = errors.New("no dispatch handler found")

	ErrMailboxDropped = errors.New("command dropped on shutdown")
	ErrMailboxFull    = errors.New("shard mailbox full")

	ErrCollectorClosed = errors.New("collector closed")
	ErrAwaitTimeout    = errors.New("await timed out")
)

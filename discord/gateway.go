package discord

import (
	jsoniter "github.com/json-iterator/go"
)

// gateway.go contains the structures used on the gateway websocket: opcodes,
// close codes, the payload envelope and every command we send.

// GatewayOp represents the operation code of a gateway message.
// Wire values are preserved bit-exact.
type GatewayOp uint8

const (
	GatewayOpDispatch GatewayOp = iota
	GatewayOpHeartbeat
	GatewayOpIdentify
	GatewayOpPresenceUpdate
	GatewayOpVoiceStateUpdate
	_
	GatewayOpResume
	GatewayOpReconnect
	GatewayOpRequestGuildMembers
	GatewayOpInvalidSession
	GatewayOpHello
	GatewayOpHeartbeatACK
)

// GatewayIntent is a bitflag declared at identify time that gates which
// event categories are delivered on the session.
type GatewayIntent int32

const (
	IntentGuilds GatewayIntent = 1 << iota
	IntentGuildMembers
	IntentGuildBans
	IntentGuildEmojis
	IntentGuildIntegrations
	IntentGuildWebhooks
	IntentGuildInvites
	IntentGuildVoiceStates
	IntentGuildPresences
	IntentGuildMessages
	IntentGuildMessageReactions
	IntentGuildMessageTyping
	IntentDirectMessages
	IntentDirectMessageReactions
	IntentDirectMessageTyping
	IntentMessageContent
)

// Gateway close codes.
const (
	CloseUnknownError = 4000 + iota
	CloseUnknownOpCode
	CloseDecodeError
	CloseNotAuthenticated
	CloseAuthenticationFailed
	CloseAlreadyAuthenticated
	_
	CloseInvalidSeq
	CloseRateLimited
	CloseSessionTimeout
	CloseInvalidShard
	CloseShardingRequired
	CloseInvalidAPIVersion
	CloseInvalidIntents
	CloseDisallowedIntents
)

// GatewayPayload is the envelope of every inbound gateway message.
// Sequence and Type are only set for GatewayOpDispatch.
type GatewayPayload struct {
	Type     string              `json:"t"`
	Data     jsoniter.RawMessage `json:"d"`
	Sequence int64               `json:"s"`
	Op       GatewayOp           `json:"op"`
}

// SentPayload is the envelope of every outbound gateway message.
type SentPayload struct {
	Data any       `json:"d"`
	Op   GatewayOp `json:"op"`
}

// Gateway commands.

// Identify starts a fresh session.
type Identify struct {
	Properties     *IdentifyProperties `json:"properties"`
	Presence       *UpdateStatus       `json:"presence,omitempty"`
	Token          string              `json:"token"`
	Shard          [2]int32            `json:"shard,omitempty"`
	LargeThreshold int32               `json:"large_threshold"`
	Intents        GatewayIntent       `json:"intents"`
	Compress       bool                `json:"compress"`
}

// IdentifyProperties are the connection properties sent in the identify packet.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Resume requests a replay of all events with a sequence greater than the
// one given, on an existing session.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// RequestGuildMembers queries the gateway for member chunks.
type RequestGuildMembers struct {
	Query     string      `json:"query"`
	Nonce     string      `json:"nonce"`
	UserIDs   []Snowflake `json:"user_ids,omitempty"`
	GuildID   Snowflake   `json:"guild_id"`
	Limit     int32       `json:"limit"`
	Presences bool        `json:"presences"`
}

// UpdateStatus updates the current user's presence.
type UpdateStatus struct {
	Status     string      `json:"status"`
	Activities []*Activity `json:"activities,omitempty"`
	Since      int64       `json:"since,omitempty"`
	AFK        bool        `json:"afk"`
}

// UpdateVoiceState joins, moves or leaves a voice channel.
type UpdateVoiceState struct {
	GuildID   Snowflake  `json:"guild_id"`
	ChannelID *Snowflake `json:"channel_id"`
	SelfMute  bool       `json:"self_mute"`
	SelfDeaf  bool       `json:"self_deaf"`
}

// Gateway bootstrap (REST collaborator).

// EndpointGatewayBot is the only REST endpoint the gateway client calls.
const EndpointGatewayBot = "https://discord.com/api/v10/gateway/bot"

// GatewayBotResponse is the /gateway/bot payload: the websocket URL, the
// recommended shard count and the identify budget.
type GatewayBotResponse struct {
	URL               string            `json:"url"`
	Shards            int32             `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

type SessionStartLimit struct {
	Total          int32 `json:"total"`
	Remaining      int32 `json:"remaining"`
	ResetAfter     int32 `json:"reset_after"`
	MaxConcurrency int32 `json:"max_concurrency"`
}

package discord

// events.go contains the structures of all received dispatch events along
// with their wire names.

// Dispatch event names.
const (
	EventReady                 = "READY"
	EventResumed               = "RESUMED"
	EventChannelCreate         = "CHANNEL_CREATE"
	EventChannelUpdate         = "CHANNEL_UPDATE"
	EventChannelDelete         = "CHANNEL_DELETE"
	EventChannelPinsUpdate     = "CHANNEL_PINS_UPDATE"
	EventThreadCreate          = "THREAD_CREATE"
	EventThreadUpdate          = "THREAD_UPDATE"
	EventThreadDelete          = "THREAD_DELETE"
	EventGuildCreate           = "GUILD_CREATE"
	EventGuildUpdate           = "GUILD_UPDATE"
	EventGuildDelete           = "GUILD_DELETE"
	EventGuildBanAdd           = "GUILD_BAN_ADD"
	EventGuildBanRemove        = "GUILD_BAN_REMOVE"
	EventGuildEmojisUpdate     = "GUILD_EMOJIS_UPDATE"
	EventGuildMemberAdd        = "GUILD_MEMBER_ADD"
	EventGuildMemberRemove     = "GUILD_MEMBER_REMOVE"
	EventGuildMemberUpdate     = "GUILD_MEMBER_UPDATE"
	EventGuildMembersChunk     = "GUILD_MEMBERS_CHUNK"
	EventGuildRoleCreate       = "GUILD_ROLE_CREATE"
	EventGuildRoleUpdate       = "GUILD_ROLE_UPDATE"
	EventGuildRoleDelete       = "GUILD_ROLE_DELETE"
	EventInteractionCreate     = "INTERACTION_CREATE"
	EventMessageCreate         = "MESSAGE_CREATE"
	EventMessageUpdate         = "MESSAGE_UPDATE"
	EventMessageDelete         = "MESSAGE_DELETE"
	EventMessageDeleteBulk     = "MESSAGE_DELETE_BULK"
	EventMessageReactionAdd    = "MESSAGE_REACTION_ADD"
	EventMessageReactionRemove = "MESSAGE_REACTION_REMOVE"
	EventPresenceUpdate        = "PRESENCE_UPDATE"
	EventPresencesReplace      = "PRESENCES_REPLACE"
	EventTypingStart           = "TYPING_START"
	EventUserUpdate            = "USER_UPDATE"
	EventVoiceStateUpdate      = "VOICE_STATE_UPDATE"
	EventVoiceServerUpdate     = "VOICE_SERVER_UPDATE"
	EventWebhooksUpdate        = "WEBHOOKS_UPDATE"
)

// Hello is sent immediately on connecting and carries the heartbeat interval.
type Hello struct {
	HeartbeatInterval int32 `json:"heartbeat_interval"`
}

// Ready is the initial handshake completion for a session.
type Ready struct {
	Version          int32              `json:"v"`
	User             User               `json:"user"`
	Guilds           []UnavailableGuild `json:"guilds"`
	SessionID        string             `json:"session_id"`
	ResumeGatewayURL string             `json:"resume_gateway_url,omitempty"`
	Shard            []int32            `json:"shard,omitempty"`
}

// ChannelCreate represents a channel create event.
type ChannelCreate Channel

// ChannelUpdate represents a channel update event.
type ChannelUpdate Channel

// ChannelDelete represents a channel delete event.
type ChannelDelete Channel

// ChannelPinsUpdate represents a channel pins update event.
type ChannelPinsUpdate struct {
	GuildID          Snowflake `json:"guild_id,omitempty"`
	ChannelID        Snowflake `json:"channel_id"`
	LastPinTimestamp Timestamp `json:"last_pin_timestamp,omitempty"`
}

// ThreadCreate represents a thread create event.
type ThreadCreate Channel

// ThreadUpdate represents a thread update event.
type ThreadUpdate Channel

// ThreadDelete represents a thread delete event.
type ThreadDelete Channel

// GuildCreate represents a guild create event.
type GuildCreate Guild

// GuildUpdate represents a guild update event.
type GuildUpdate Guild

// GuildDelete represents a guild delete event. Unavailable means the guild
// went down, not that the bot was removed.
type GuildDelete UnavailableGuild

// GuildBanAdd represents a guild ban add event.
type GuildBanAdd GuildBan

// GuildBanRemove represents a guild ban remove event.
type GuildBanRemove GuildBan

// GuildEmojisUpdate represents a guild emojis update event.
type GuildEmojisUpdate struct {
	GuildID Snowflake `json:"guild_id"`
	Emojis  []Emoji   `json:"emojis"`
}

// GuildMemberAdd represents a guild member add event.
type GuildMemberAdd GuildMember

// GuildMemberRemove represents a guild member remove event.
type GuildMemberRemove struct {
	GuildID Snowflake `json:"guild_id"`
	User    User      `json:"user"`
}

// GuildMemberUpdate represents a guild member update event.
type GuildMemberUpdate GuildMember

// GuildMembersChunk represents a chunk of members in response to
// RequestGuildMembers.
type GuildMembersChunk struct {
	GuildID    Snowflake        `json:"guild_id"`
	Members    []GuildMember    `json:"members"`
	ChunkIndex int32            `json:"chunk_index"`
	ChunkCount int32            `json:"chunk_count"`
	NotFound   []Snowflake      `json:"not_found,omitempty"`
	Presences  []PresenceUpdate `json:"presences,omitempty"`
	Nonce      string           `json:"nonce,omitempty"`
}

// GuildRoleCreate represents a guild role create event.
type GuildRoleCreate struct {
	GuildID Snowflake `json:"guild_id"`
	Role    Role      `json:"role"`
}

// GuildRoleUpdate represents a guild role update event.
type GuildRoleUpdate struct {
	GuildID Snowflake `json:"guild_id"`
	Role    Role      `json:"role"`
}

// GuildRoleDelete represents a guild role delete event.
type GuildRoleDelete struct {
	GuildID Snowflake `json:"guild_id"`
	RoleID  Snowflake `json:"role_id"`
}

// MessageCreate represents a message create event.
type MessageCreate Message

// MessageDelete represents a message delete event.
type MessageDelete struct {
	ID        Snowflake `json:"id"`
	ChannelID Snowflake `json:"channel_id"`
	GuildID   Snowflake `json:"guild_id,omitempty"`
}

// MessageDeleteBulk represents a bulk message delete event.
type MessageDeleteBulk struct {
	IDs       []Snowflake `json:"ids"`
	ChannelID Snowflake   `json:"channel_id"`
	GuildID   Snowflake   `json:"guild_id,omitempty"`
}

// MessageReactionAdd represents a reaction add event.
type MessageReactionAdd struct {
	UserID    Snowflake    `json:"user_id"`
	ChannelID Snowflake    `json:"channel_id"`
	MessageID Snowflake    `json:"message_id"`
	GuildID   Snowflake    `json:"guild_id,omitempty"`
	Member    *GuildMember `json:"member,omitempty"`
	Emoji     Emoji        `json:"emoji"`
}

// MessageReactionRemove represents a reaction remove event.
type MessageReactionRemove struct {
	UserID    Snowflake `json:"user_id"`
	ChannelID Snowflake `json:"channel_id"`
	MessageID Snowflake `json:"message_id"`
	GuildID   Snowflake `json:"guild_id,omitempty"`
	Emoji     Emoji     `json:"emoji"`
}

// PresencesReplace replaces every presence in a guild at once.
type PresencesReplace []PresenceUpdate

// TypingStart represents a typing start event.
type TypingStart struct {
	ChannelID Snowflake    `json:"channel_id"`
	GuildID   Snowflake    `json:"guild_id,omitempty"`
	UserID    Snowflake    `json:"user_id"`
	Timestamp int64        `json:"timestamp"`
	Member    *GuildMember `json:"member,omitempty"`
}

// UserUpdate represents a current user update event.
type UserUpdate User

// WebhooksUpdate represents a webhooks update event.
type WebhooksUpdate struct {
	GuildID   Snowflake `json:"guild_id"`
	ChannelID Snowflake `json:"channel_id"`
}

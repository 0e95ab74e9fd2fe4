package discord

// ChannelType represents the type of a channel.
type ChannelType int32

const (
	ChannelTypeGuildText ChannelType = iota
	ChannelTypeDM
	ChannelTypeGuildVoice
	ChannelTypeGroupDM
	ChannelTypeGuildCategory
	ChannelTypeGuildNews
	_
	_
	_
	_
	ChannelTypeGuildNewsThread
	ChannelTypeGuildPublicThread
	ChannelTypeGuildPrivateThread
	ChannelTypeGuildStageVoice
	ChannelTypeGuildDirectory
	ChannelTypeGuildForum
)

// Channel represents a guild channel, thread or DM channel.
type Channel struct {
	ID               Snowflake       `json:"id"`
	Type             ChannelType     `json:"type"`
	GuildID          Snowflake       `json:"guild_id,omitempty"`
	Position         int32           `json:"position,omitempty"`
	Name             string          `json:"name,omitempty"`
	Topic            string          `json:"topic,omitempty"`
	NSFW             bool            `json:"nsfw,omitempty"`
	LastMessageID    Snowflake       `json:"last_message_id,omitempty"`
	Bitrate          int32           `json:"bitrate,omitempty"`
	UserLimit        int32           `json:"user_limit,omitempty"`
	RateLimitPerUser int32           `json:"rate_limit_per_user,omitempty"`
	Recipients       []User          `json:"recipients,omitempty"`
	ParentID         Snowflake       `json:"parent_id,omitempty"`
	OwnerID          Snowflake       `json:"owner_id,omitempty"`
	ThreadMetadata   *ThreadMetadata `json:"thread_metadata,omitempty"`
	MemberCount      int32           `json:"member_count,omitempty"`
}

// IsThread reports whether the channel is a thread.
func (c *Channel) IsThread() bool {
	switch c.Type {
	case ChannelTypeGuildNewsThread, ChannelTypeGuildPublicThread, ChannelTypeGuildPrivateThread:
		return true
	default:
		return false
	}
}

// ThreadMetadata contains thread-specific channel fields.
type ThreadMetadata struct {
	Archived            bool      `json:"archived"`
	AutoArchiveDuration int32     `json:"auto_archive_duration"`
	ArchiveTimestamp    Timestamp `json:"archive_timestamp"`
	Locked              bool      `json:"locked"`
}

// ThreadMember represents a member of a thread.
type ThreadMember struct {
	ID            Snowflake `json:"id,omitempty"`
	UserID        Snowflake `json:"user_id,omitempty"`
	GuildID       Snowflake `json:"guild_id,omitempty"`
	JoinTimestamp Timestamp `json:"join_timestamp"`
	Flags         int32     `json:"flags"`
}

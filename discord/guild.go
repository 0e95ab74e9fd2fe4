package discord

// Guild represents a guild on discord. Inner collections (channels, members,
// roles, voice states, presences, threads) arrive inline on GUILD_CREATE and
// are owned by the cache afterwards.
type Guild struct {
	ID                Snowflake `json:"id"`
	Name              string    `json:"name"`
	Icon              string    `json:"icon,omitempty"`
	Splash            string    `json:"splash,omitempty"`
	OwnerID           Snowflake `json:"owner_id"`
	AFKChannelID      Snowflake `json:"afk_channel_id,omitempty"`
	AFKTimeout        int32     `json:"afk_timeout,omitempty"`
	VerificationLevel int32     `json:"verification_level,omitempty"`
	Large             bool      `json:"large,omitempty"`
	Unavailable       bool      `json:"unavailable,omitempty"`
	MemberCount       int32     `json:"member_count,omitempty"`
	MaxMembers        int32     `json:"max_members,omitempty"`
	PremiumTier       int32     `json:"premium_tier,omitempty"`
	JoinedAt          Timestamp `json:"joined_at,omitempty"`
	Description       string    `json:"description,omitempty"`

	Roles       []Role           `json:"roles,omitempty"`
	Emojis      []Emoji          `json:"emojis,omitempty"`
	Members     []GuildMember    `json:"members,omitempty"`
	Channels    []Channel        `json:"channels,omitempty"`
	Threads     []Channel        `json:"threads,omitempty"`
	Presences   []PresenceUpdate `json:"presences,omitempty"`
	VoiceStates []VoiceState     `json:"voice_states,omitempty"`
}

// UnavailableGuild is the guild stub sent in READY and GUILD_DELETE.
type UnavailableGuild struct {
	ID          Snowflake `json:"id"`
	Unavailable bool      `json:"unavailable"`
}

// Role represents a role in a guild.
type Role struct {
	ID          Snowflake `json:"id"`
	GuildID     Snowflake `json:"guild_id,omitempty"`
	Name        string    `json:"name"`
	Color       int32     `json:"color,omitempty"`
	Hoist       bool      `json:"hoist,omitempty"`
	Position    int32     `json:"position"`
	Permissions Int64     `json:"permissions,omitempty"`
	Managed     bool      `json:"managed,omitempty"`
	Mentionable bool      `json:"mentionable,omitempty"`
}

// Emoji represents a custom guild emoji.
type Emoji struct {
	ID        Snowflake   `json:"id"`
	GuildID   Snowflake   `json:"guild_id,omitempty"`
	Name      string      `json:"name"`
	Roles     []Snowflake `json:"roles,omitempty"`
	User      *User       `json:"user,omitempty"`
	Animated  bool        `json:"animated,omitempty"`
	Available bool        `json:"available,omitempty"`
}

// GuildMember represents the (guild, user) composite member record.
type GuildMember struct {
	User         *User       `json:"user,omitempty"`
	GuildID      Snowflake   `json:"guild_id,omitempty"`
	Nick         string      `json:"nick,omitempty"`
	Avatar       string      `json:"avatar,omitempty"`
	Roles        []Snowflake `json:"roles"`
	JoinedAt     Timestamp   `json:"joined_at"`
	PremiumSince Timestamp   `json:"premium_since,omitempty"`
	Deaf         bool        `json:"deaf"`
	Mute         bool        `json:"mute"`
	Pending      bool        `json:"pending,omitempty"`
}

// GuildBan represents a ban entry.
type GuildBan struct {
	GuildID Snowflake `json:"guild_id"`
	User    User      `json:"user"`
}

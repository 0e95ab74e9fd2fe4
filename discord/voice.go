package discord

// VoiceState represents a user's connection to a voice channel.
// A nil ChannelID means the user has left voice.
type VoiceState struct {
	GuildID   Snowflake    `json:"guild_id,omitempty"`
	ChannelID *Snowflake   `json:"channel_id"`
	UserID    Snowflake    `json:"user_id"`
	Member    *GuildMember `json:"member,omitempty"`
	SessionID string       `json:"session_id"`
	Deaf      bool         `json:"deaf"`
	Mute      bool         `json:"mute"`
	SelfDeaf  bool         `json:"self_deaf"`
	SelfMute  bool         `json:"self_mute"`
	SelfVideo bool         `json:"self_video,omitempty"`
	Suppress  bool         `json:"suppress,omitempty"`
}

// VoiceServerUpdate carries the token and endpoint the voice collaborator
// needs to connect. The core forwards it without interpretation.
type VoiceServerUpdate struct {
	Token    string    `json:"token"`
	GuildID  Snowflake `json:"guild_id"`
	Endpoint string    `json:"endpoint"`
}

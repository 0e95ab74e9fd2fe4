package discord

// Online statuses sent on PRESENCE_UPDATE.
const (
	StatusOnline       = "online"
	StatusIdle         = "idle"
	StatusDoNotDisturb = "dnd"
	StatusInvisible    = "invisible"
	StatusOffline      = "offline"
)

// ActivityType represents the type of an activity.
type ActivityType int32

const (
	ActivityTypePlaying ActivityType = iota
	ActivityTypeStreaming
	ActivityTypeListening
	ActivityTypeWatching
	ActivityTypeCustom
	ActivityTypeCompeting
)

// Activity represents an activity on a presence.
type Activity struct {
	Name    string       `json:"name"`
	Type    ActivityType `json:"type"`
	URL     string       `json:"url,omitempty"`
	State   string       `json:"state,omitempty"`
	Details string       `json:"details,omitempty"`
}

// PresenceUpdate represents a user's presence within a guild.
// A user with no presence entry is offline.
type PresenceUpdate struct {
	User         User         `json:"user"`
	GuildID      Snowflake    `json:"guild_id,omitempty"`
	Status       string       `json:"status"`
	Activities   []Activity   `json:"activities,omitempty"`
	ClientStatus ClientStatus `json:"client_status,omitempty"`
}

// ClientStatus is the per-platform status breakdown of a presence.
type ClientStatus struct {
	Desktop string `json:"desktop,omitempty"`
	Mobile  string `json:"mobile,omitempty"`
	Web     string `json:"web,omitempty"`
}

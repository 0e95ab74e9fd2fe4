package discord

// MessageType represents the type of a message.
type MessageType int32

const (
	MessageTypeDefault MessageType = iota
	MessageTypeRecipientAdd
	MessageTypeRecipientRemove
	MessageTypeCall
	MessageTypeChannelNameChange
	MessageTypeChannelIconChange
	MessageTypeChannelPinnedMessage
	MessageTypeGuildMemberJoin
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	MessageTypeReply
)

// Message represents a message sent in a channel.
type Message struct {
	ID                Snowflake         `json:"id"`
	ChannelID         Snowflake         `json:"channel_id"`
	GuildID           Snowflake         `json:"guild_id,omitempty"`
	Author            User              `json:"author"`
	Member            *GuildMember      `json:"member,omitempty"`
	Content           string            `json:"content"`
	Timestamp         Timestamp         `json:"timestamp"`
	EditedTimestamp   Timestamp         `json:"edited_timestamp,omitempty"`
	TTS               bool              `json:"tts,omitempty"`
	MentionEveryone   bool              `json:"mention_everyone,omitempty"`
	Mentions          []User            `json:"mentions,omitempty"`
	MentionRoles      []Snowflake       `json:"mention_roles,omitempty"`
	Attachments       []Attachment      `json:"attachments,omitempty"`
	Embeds            []Embed           `json:"embeds,omitempty"`
	Reactions         []Reaction        `json:"reactions,omitempty"`
	Pinned            bool              `json:"pinned,omitempty"`
	WebhookID         Snowflake         `json:"webhook_id,omitempty"`
	Type              MessageType       `json:"type"`
	Flags             int32             `json:"flags,omitempty"`
	MessageReference  *MessageReference `json:"message_reference,omitempty"`
	ReferencedMessage *Message          `json:"referenced_message,omitempty"`
}

// MessagePartialUpdate is the MESSAGE_UPDATE payload. The platform only
// sends fields that changed, so everything mergeable is a pointer and nil
// means untouched.
type MessagePartialUpdate struct {
	ID              Snowflake     `json:"id"`
	ChannelID       Snowflake     `json:"channel_id"`
	GuildID         Snowflake     `json:"guild_id,omitempty"`
	Author          *User         `json:"author,omitempty"`
	Content         *string       `json:"content,omitempty"`
	EditedTimestamp *Timestamp    `json:"edited_timestamp,omitempty"`
	Mentions        *[]User       `json:"mentions,omitempty"`
	MentionEveryone *bool         `json:"mention_everyone,omitempty"`
	MentionRoles    *[]Snowflake  `json:"mention_roles,omitempty"`
	Attachments     *[]Attachment `json:"attachments,omitempty"`
	Embeds          *[]Embed      `json:"embeds,omitempty"`
	Pinned          *bool         `json:"pinned,omitempty"`
	Flags           *int32        `json:"flags,omitempty"`
}

// Apply merges the partial update into a full message, field-wise.
func (m *MessagePartialUpdate) Apply(msg *Message) {
	if m.Author != nil {
		msg.Author = *m.Author
	}

	if m.Content != nil {
		msg.Content = *m.Content
	}

	if m.EditedTimestamp != nil {
		msg.EditedTimestamp = *m.EditedTimestamp
	}

	if m.Mentions != nil {
		msg.Mentions = *m.Mentions
	}

	if m.MentionEveryone != nil {
		msg.MentionEveryone = *m.MentionEveryone
	}

	if m.MentionRoles != nil {
		msg.MentionRoles = *m.MentionRoles
	}

	if m.Attachments != nil {
		msg.Attachments = *m.Attachments
	}

	if m.Embeds != nil {
		msg.Embeds = *m.Embeds
	}

	if m.Pinned != nil {
		msg.Pinned = *m.Pinned
	}

	if m.Flags != nil {
		msg.Flags = *m.Flags
	}
}

// MessageReference points to the message a reply refers to.
type MessageReference struct {
	MessageID Snowflake `json:"message_id,omitempty"`
	ChannelID Snowflake `json:"channel_id,omitempty"`
	GuildID   Snowflake `json:"guild_id,omitempty"`
}

// Attachment represents a file attached to a message.
type Attachment struct {
	ID          Snowflake `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int32     `json:"size"`
	URL         string    `json:"url"`
	ProxyURL    string    `json:"proxy_url"`
	Height      int32     `json:"height,omitempty"`
	Width       int32     `json:"width,omitempty"`
}

// Embed represents a rich embed on a message. Only the identity-bearing
// fields are modelled; the cache never mutates embed internals.
type Embed struct {
	Title       string    `json:"title,omitempty"`
	Type        string    `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	Timestamp   Timestamp `json:"timestamp,omitempty"`
	Color       int32     `json:"color,omitempty"`
}

// Reaction represents a reaction count on a message.
type Reaction struct {
	Count int32 `json:"count"`
	Me    bool  `json:"me"`
	Emoji Emoji `json:"emoji"`
}

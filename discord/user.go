package discord

// User represents a discord user.
type User struct {
	ID            Snowflake `json:"id"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator,omitempty"`
	GlobalName    string    `json:"global_name,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
	Bot           bool      `json:"bot"`
	System        bool      `json:"system,omitempty"`
	Banner        string    `json:"banner,omitempty"`
	AccentColour  int32     `json:"accent_color,omitempty"`
	Locale        string    `json:"locale,omitempty"`
	Flags         int64     `json:"flags,omitempty"`
	PublicFlags   int64     `json:"public_flags,omitempty"`
	PremiumType   int32     `json:"premium_type,omitempty"`
}

package skiff

import (
	"context"
	"fmt"
	"os"

	"github.com/skiff-works/skiff/discord"
	"github.com/skiff-works/skiff/pkg/wirejson"
)

const (
	DefaultLargeThreshold = int32(100)

	MinLargeThreshold = int32(50)
	MaxLargeThreshold = int32(250)
)

type Configuration struct {
	BotToken string                `json:"bot_token"`
	Intents  discord.GatewayIntent `json:"intents"`

	// AutoSharded uses the shard count recommended by /gateway/bot.
	// ShardCount is used otherwise; ShardIDs optionally narrows which of
	// those shards this process runs ("0-4,6").
	AutoSharded bool   `json:"auto_sharded"`
	ShardCount  int32  `json:"shard_count,omitempty"`
	ShardIDs    string `json:"shard_ids,omitempty"`

	// MaxMessages is the per-channel message cache capacity. 0 disables
	// message caching entirely.
	MaxMessages int32 `json:"max_messages"`

	// LargeThreshold is the member count above which a guild arrives
	// without its full member list. Clamped to 50..=250.
	LargeThreshold int32 `json:"large_threshold,omitempty"`

	DefaultPresence *discord.UpdateStatus `json:"default_presence,omitempty"`

	// Compression negotiates stream-level zlib on the websocket.
	// Frame-level compress is always declined in the identify payload.
	Compression bool `json:"compression"`

	ChunkGuildsOnStart bool `json:"chunk_guilds_on_start,omitempty"`

	// Events that should not be handled at all.
	EventBlacklist []string `json:"event_blacklist,omitempty"`
	// Events that are handled but not forwarded to the producer.
	ProduceBlacklist []string `json:"produce_blacklist,omitempty"`

	// ClientName is passed to producers for consumer-side routing.
	ClientName          string `json:"client_name,omitempty"`
	IncludeRandomSuffix bool   `json:"client_name_uses_random_suffix,omitempty"`
}

func (c *Configuration) validate() error {
	if c.BotToken == "" {
		return ErrMissingBotToken
	}

	if c.Intents == 0 {
		return ErrMissingIntents
	}

	if c.LargeThreshold == 0 {
		c.LargeThreshold = DefaultLargeThreshold
	}

	if c.LargeThreshold < MinLargeThreshold || c.LargeThreshold > MaxLargeThreshold {
		return ErrInvalidLargeThreshold
	}

	if c.MaxMessages < 0 {
		c.MaxMessages = 0
	}

	return nil
}

type ConfigProvider interface {
	GetConfig(ctx context.Context) (*Configuration, error)
	SaveConfig(ctx context.Context, config *Configuration) error
}

// ConfigProviderFromPath is a basic config provider that reads and writes
// a JSON file.

type ConfigProviderFromPath struct {
	path string
}

func NewConfigProviderFromPath(path string) ConfigProviderFromPath {
	return ConfigProviderFromPath{path}
}

func (c ConfigProviderFromPath) GetConfig(_ context.Context) (*Configuration, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Configuration
	if err := wirejson.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return &config, nil
}

func (c ConfigProviderFromPath) SaveConfig(_ context.Context, config *Configuration) error {
	data, err := wirejson.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(c.path, data, 0o600)
}

// ConfigProviderStatic serves a fixed configuration, for programmatic use.

type ConfigProviderStatic struct {
	config *Configuration
}

func NewConfigProviderStatic(config *Configuration) ConfigProviderStatic {
	return ConfigProviderStatic{config}
}

func (c ConfigProviderStatic) GetConfig(_ context.Context) (*Configuration, error) {
	return c.config, nil
}

func (c ConfigProviderStatic) SaveConfig(_ context.Context, config *Configuration) error {
	*c.config = *config

	return nil
}

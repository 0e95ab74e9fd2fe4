package skiff

import (
	"log/slog"
	"sync"
	"sync/atomic"

	csmap "github.com/mhmtszr/concurrent-swiss-map"
	"github.com/skiff-works/skiff/discord"
)

// Cache holds the in-memory state applied from dispatch events. Top-level
// maps are sharded concurrent maps; per-guild state sits behind one RWMutex
// with short critical sections. Writers that touch multiple top-level maps
// acquire them in a fixed order (guilds, then messages, then users) so two
// apply paths can never deadlock.
//
// Apply methods return the pre-image: whatever was cached for the touched
// entity just before the event was applied.
type Cache struct {
	logger *slog.Logger

	maxMessages int32

	guilds          *csmap.CsMap[discord.Snowflake, *GuildState]
	channelIndex    *csmap.CsMap[discord.Snowflake, discord.Snowflake]
	privateChannels *csmap.CsMap[discord.Snowflake, discord.Channel]
	messages        *csmap.CsMap[discord.Snowflake, *MessageBuffer]
	users           *csmap.CsMap[discord.Snowflake, discord.User]

	unavailableGuilds *csmap.CsMap[discord.Snowflake, bool]

	currentUser atomic.Pointer[discord.User]
	shardCount  atomic.Int32

	// CacheReady is emitted at most once per process lifetime, when the
	// unavailable set first drains after a READY populated it.
	readySeen         atomic.Bool
	cacheReadySent    atomic.Bool
	pendingCacheReady atomic.Bool
}

// GuildState is the cached representation of one guild. The guild struct
// itself is stored without its inner collections; those live in the maps
// beside it.
type GuildState struct {
	mu sync.RWMutex

	guild       discord.Guild
	channels    map[discord.Snowflake]discord.Channel
	threads     map[discord.Snowflake]discord.Channel
	members     map[discord.Snowflake]discord.GuildMember
	roles       map[discord.Snowflake]discord.Role
	emojis      map[discord.Snowflake]discord.Emoji
	presences   map[discord.Snowflake]discord.PresenceUpdate
	voiceStates map[discord.Snowflake]discord.VoiceState
}

func newGuildState() *GuildState {
	return &GuildState{
		channels:    make(map[discord.Snowflake]discord.Channel),
		threads:     make(map[discord.Snowflake]discord.Channel),
		members:     make(map[discord.Snowflake]discord.GuildMember),
		roles:       make(map[discord.Snowflake]discord.Role),
		emojis:      make(map[discord.Snowflake]discord.Emoji),
		presences:   make(map[discord.Snowflake]discord.PresenceUpdate),
		voiceStates: make(map[discord.Snowflake]discord.VoiceState),
	}
}

// MessageBuffer is a per-channel FIFO of cached messages bounded by
// capacity. Insertion order is wire order.
type MessageBuffer struct {
	mu       sync.Mutex
	capacity int32
	messages []discord.Message
}

func newMessageBuffer(capacity int32) *MessageBuffer {
	return &MessageBuffer{
		capacity: capacity,
		messages: make([]discord.Message, 0, capacity),
	}
}

// push appends a message and returns the evicted front when at capacity.
func (b *MessageBuffer) push(message discord.Message) *discord.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var evicted *discord.Message

	if int32(len(b.messages)) >= b.capacity {
		front := b.messages[0]
		evicted = &front

		copy(b.messages, b.messages[1:])
		b.messages = b.messages[:len(b.messages)-1]
	}

	b.messages = append(b.messages, message)

	return evicted
}

// find returns a copy of the message with the given id.
func (b *MessageBuffer) find(messageID discord.Snowflake) (discord.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, message := range b.messages {
		if message.ID == messageID {
			return message, true
		}
	}

	return discord.Message{}, false
}

// update merges a partial update into the stored message, returning the
// pre-update copy.
func (b *MessageBuffer) update(partial *discord.MessagePartialUpdate) (discord.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.messages {
		if b.messages[i].ID == partial.ID {
			pre := b.messages[i]
			partial.Apply(&b.messages[i])

			return pre, true
		}
	}

	return discord.Message{}, false
}

// remove deletes the message with the given id, returning it.
func (b *MessageBuffer) remove(messageID discord.Snowflake) (discord.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.messages {
		if b.messages[i].ID == messageID {
			removed := b.messages[i]
			b.messages = append(b.messages[:i], b.messages[i+1:]...)

			return removed, true
		}
	}

	return discord.Message{}, false
}

// snapshot copies the buffer contents in insertion order.
func (b *MessageBuffer) snapshot() []discord.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]discord.Message, len(b.messages))
	copy(out, b.messages)

	return out
}

func (b *MessageBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.messages)
}

func NewCache(logger *slog.Logger, maxMessages int32) *Cache {
	return &Cache{
		logger: logger.With("component", "cache"),

		maxMessages: maxMessages,

		guilds:          csmap.Create[discord.Snowflake, *GuildState](),
		channelIndex:    csmap.Create[discord.Snowflake, discord.Snowflake](),
		privateChannels: csmap.Create[discord.Snowflake, discord.Channel](),
		messages:        csmap.Create[discord.Snowflake, *MessageBuffer](),
		users:           csmap.Create[discord.Snowflake, discord.User](),

		unavailableGuilds: csmap.Create[discord.Snowflake, bool](),
	}
}

// Guild returns a snapshot of the guild, with its inner collections
// reassembled into the struct's slices.
func (c *Cache) Guild(guildID discord.Snowflake) (discord.Guild, bool) {
	state, ok := c.guilds.Load(guildID)
	if !ok {
		return discord.Guild{}, false
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	guild := state.guild

	guild.Channels = make([]discord.Channel, 0, len(state.channels))
	for _, channel := range state.channels {
		guild.Channels = append(guild.Channels, channel)
	}

	guild.Threads = make([]discord.Channel, 0, len(state.threads))
	for _, thread := range state.threads {
		guild.Threads = append(guild.Threads, thread)
	}

	guild.Members = make([]discord.GuildMember, 0, len(state.members))
	for _, member := range state.members {
		guild.Members = append(guild.Members, member)
	}

	guild.Roles = make([]discord.Role, 0, len(state.roles))
	for _, role := range state.roles {
		guild.Roles = append(guild.Roles, role)
	}

	guild.Emojis = make([]discord.Emoji, 0, len(state.emojis))
	for _, emoji := range state.emojis {
		guild.Emojis = append(guild.Emojis, emoji)
	}

	guild.Presences = make([]discord.PresenceUpdate, 0, len(state.presences))
	for _, presence := range state.presences {
		guild.Presences = append(guild.Presences, presence)
	}

	guild.VoiceStates = make([]discord.VoiceState, 0, len(state.voiceStates))
	for _, voiceState := range state.voiceStates {
		guild.VoiceStates = append(guild.VoiceStates, voiceState)
	}

	return guild, true
}

// Channel returns a guild channel, thread or private channel by id.
func (c *Cache) Channel(channelID discord.Snowflake) (discord.Channel, bool) {
	if guildID, ok := c.channelIndex.Load(channelID); ok {
		if state, ok := c.guilds.Load(guildID); ok {
			state.mu.RLock()
			defer state.mu.RUnlock()

			if channel, ok := state.channels[channelID]; ok {
				return channel, true
			}

			if thread, ok := state.threads[channelID]; ok {
				return thread, true
			}
		}

		return discord.Channel{}, false
	}

	return c.privateChannels.Load(channelID)
}

// Member returns the (guild, user) member record.
func (c *Cache) Member(guildID, userID discord.Snowflake) (discord.GuildMember, bool) {
	state, ok := c.guilds.Load(guildID)
	if !ok {
		return discord.GuildMember{}, false
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	member, ok := state.members[userID]

	return member, ok
}

// Role returns a role within a guild.
func (c *Cache) Role(guildID, roleID discord.Snowflake) (discord.Role, bool) {
	state, ok := c.guilds.Load(guildID)
	if !ok {
		return discord.Role{}, false
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	role, ok := state.roles[roleID]

	return role, ok
}

// Presence returns a user's presence within a guild. Absence means offline.
func (c *Cache) Presence(guildID, userID discord.Snowflake) (discord.PresenceUpdate, bool) {
	state, ok := c.guilds.Load(guildID)
	if !ok {
		return discord.PresenceUpdate{}, false
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	presence, ok := state.presences[userID]

	return presence, ok
}

// VoiceState returns a user's voice state within a guild.
func (c *Cache) VoiceState(guildID, userID discord.Snowflake) (discord.VoiceState, bool) {
	state, ok := c.guilds.Load(guildID)
	if !ok {
		return discord.VoiceState{}, false
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	voiceState, ok := state.voiceStates[userID]

	return voiceState, ok
}

// Message returns a cached message by channel and message id.
func (c *Cache) Message(channelID, messageID discord.Snowflake) (discord.Message, bool) {
	buffer, ok := c.messages.Load(channelID)
	if !ok {
		return discord.Message{}, false
	}

	return buffer.find(messageID)
}

// Messages returns the channel's cached messages in insertion order.
func (c *Cache) Messages(channelID discord.Snowflake) []discord.Message {
	buffer, ok := c.messages.Load(channelID)
	if !ok {
		return nil
	}

	return buffer.snapshot()
}

// User returns a cached user by id.
func (c *Cache) User(userID discord.Snowflake) (discord.User, bool) {
	return c.users.Load(userID)
}

// CurrentUser returns the authenticated bot user, once READY has been seen.
func (c *Cache) CurrentUser() (discord.User, bool) {
	user := c.currentUser.Load()
	if user == nil {
		return discord.User{}, false
	}

	return *user, true
}

// ShardCount returns the shard count of the running topology.
func (c *Cache) ShardCount() int32 {
	return c.shardCount.Load()
}

// GuildCount returns the number of available cached guilds.
func (c *Cache) GuildCount() int {
	return c.guilds.Count()
}

// GuildIDs returns the ids of every available cached guild.
func (c *Cache) GuildIDs() []discord.Snowflake {
	ids := make([]discord.Snowflake, 0, c.guilds.Count())

	c.guilds.Range(func(guildID discord.Snowflake, _ *GuildState) bool {
		ids = append(ids, guildID)

		return false
	})

	return ids
}

// UnavailableGuildIDs returns the ids of guilds currently marked
// unavailable.
func (c *Cache) UnavailableGuildIDs() []discord.Snowflake {
	ids := make([]discord.Snowflake, 0, c.unavailableGuilds.Count())

	c.unavailableGuilds.Range(func(guildID discord.Snowflake, _ bool) bool {
		ids = append(ids, guildID)

		return false
	})

	return ids
}

// takePendingCacheReady consumes the one-shot CacheReady signal.
func (c *Cache) takePendingCacheReady() bool {
	return c.pendingCacheReady.CompareAndSwap(true, false)
}

func (c *Cache) updateUserEntry(user *discord.User) {
	if user == nil || user.ID.IsNil() {
		return
	}

	c.users.Store(user.ID, *user)
}

func (c *Cache) updateMetrics() {
	CacheMetrics.Guilds.Set(float64(c.guilds.Count()))
	CacheMetrics.UnavailableGuilds.Set(float64(c.unavailableGuilds.Count()))
	CacheMetrics.Users.Set(float64(c.users.Count()))

	var channels, members, roles, presences, voiceStates int

	c.guilds.Range(func(_ discord.Snowflake, state *GuildState) bool {
		state.mu.RLock()
		channels += len(state.channels) + len(state.threads)
		members += len(state.members)
		roles += len(state.roles)
		presences += len(state.presences)
		voiceStates += len(state.voiceStates)
		state.mu.RUnlock()

		return false
	})

	CacheMetrics.Channels.Set(float64(channels))
	CacheMetrics.Members.Set(float64(members))
	CacheMetrics.Roles.Set(float64(roles))
	CacheMetrics.Presences.Set(float64(presences))
	CacheMetrics.VoiceStates.Set(float64(voiceStates))

	var messages int

	c.messages.Range(func(_ discord.Snowflake, buffer *MessageBuffer) bool {
		messages += buffer.len()

		return false
	})

	CacheMetrics.Messages.Set(float64(messages))
}

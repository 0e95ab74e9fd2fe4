package skiff

import (
	"io"
	"log/slog"
	"testing"

	"github.com/skiff-works/skiff/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(maxMessages int32) *Cache {
	return NewCache(testLogger(), maxMessages)
}

func TestMessageBufferEviction(t *testing.T) {
	cache := newTestCache(2)

	channelID := discord.Snowflake(100)

	m1 := discord.Message{ID: 1, ChannelID: channelID, Content: "first"}
	m2 := discord.Message{ID: 2, ChannelID: channelID, Content: "second"}
	m3 := discord.Message{ID: 3, ChannelID: channelID, Content: "third"}

	assert.Nil(t, cache.applyMessageCreate(m1))
	assert.Nil(t, cache.applyMessageCreate(m2))

	evicted := cache.applyMessageCreate(m3)
	require.NotNil(t, evicted)
	assert.Equal(t, m1.ID, evicted.ID)

	messages := cache.Messages(channelID)
	require.Len(t, messages, 2)
	assert.Equal(t, m2.ID, messages[0].ID)
	assert.Equal(t, m3.ID, messages[1].ID)
}

func TestMessageCachingDisabled(t *testing.T) {
	cache := newTestCache(0)

	channelID := discord.Snowflake(100)

	assert.Nil(t, cache.applyMessageCreate(discord.Message{ID: 1, ChannelID: channelID}))
	assert.Empty(t, cache.Messages(channelID))
}

func TestMessageUpdateReturnsPreImage(t *testing.T) {
	cache := newTestCache(10)

	channelID := discord.Snowflake(100)

	cache.applyMessageCreate(discord.Message{ID: 1, ChannelID: channelID, Content: "before"})

	after := "after"
	pre := cache.applyMessageUpdate(&discord.MessagePartialUpdate{
		ID:        1,
		ChannelID: channelID,
		Content:   &after,
	})

	require.NotNil(t, pre)
	assert.Equal(t, "before", pre.Content)

	stored, ok := cache.Message(channelID, 1)
	require.True(t, ok)
	assert.Equal(t, "after", stored.Content)
}

func TestMessageUpdateForUncachedMessage(t *testing.T) {
	cache := newTestCache(10)

	content := "edited"
	pre := cache.applyMessageUpdate(&discord.MessagePartialUpdate{
		ID:        42,
		ChannelID: 100,
		Content:   &content,
	})

	assert.Nil(t, pre)
}

func TestMessageDeleteBulk(t *testing.T) {
	cache := newTestCache(10)

	channelID := discord.Snowflake(100)

	cache.applyMessageCreate(discord.Message{ID: 1, ChannelID: channelID})
	cache.applyMessageCreate(discord.Message{ID: 2, ChannelID: channelID})
	cache.applyMessageCreate(discord.Message{ID: 3, ChannelID: channelID})

	pre := cache.applyMessageDeleteBulk(channelID, []discord.Snowflake{1, 3, 99})
	require.Len(t, pre, 2)
	assert.Equal(t, discord.Snowflake(1), pre[0].ID)
	assert.Equal(t, discord.Snowflake(3), pre[1].ID)

	assert.Len(t, cache.Messages(channelID), 1)
}

func TestChannelDeleteEvictsMessages(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)
	channelID := discord.Snowflake(100)

	cache.applyGuildCreate(discord.Guild{
		ID:       guildID,
		Channels: []discord.Channel{{ID: channelID}},
	})

	cache.applyMessageCreate(discord.Message{ID: 1, ChannelID: channelID, GuildID: guildID})
	cache.applyMessageCreate(discord.Message{ID: 2, ChannelID: channelID, GuildID: guildID})

	evictedMessages, pre := cache.applyChannelDelete(discord.Channel{
		ID:      channelID,
		GuildID: guildID,
	})

	require.NotNil(t, pre)
	assert.Equal(t, channelID, pre.ID)

	require.Len(t, evictedMessages, 2)
	assert.Equal(t, discord.Snowflake(1), evictedMessages[0].ID)

	assert.Empty(t, cache.Messages(channelID))

	_, ok := cache.Channel(channelID)
	assert.False(t, ok)
}

func TestGuildCreateStoresInnerCollections(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)
	userID := discord.Snowflake(500)

	pre := cache.applyGuildCreate(discord.Guild{
		ID:   guildID,
		Name: "test guild",
		Channels: []discord.Channel{
			{ID: 100, Name: "general"},
		},
		Roles: []discord.Role{
			{ID: 200, Name: "admin"},
		},
		Members: []discord.GuildMember{
			{User: &discord.User{ID: userID, Username: "someone"}, Roles: []discord.Snowflake{200}},
		},
	})

	assert.Nil(t, pre)

	guild, ok := cache.Guild(guildID)
	require.True(t, ok)
	assert.Equal(t, "test guild", guild.Name)
	assert.Len(t, guild.Channels, 1)
	assert.Len(t, guild.Roles, 1)
	assert.Len(t, guild.Members, 1)

	// Inline collections are enriched with the owning guild id.
	channel, ok := cache.Channel(100)
	require.True(t, ok)
	assert.Equal(t, guildID, channel.GuildID)

	member, ok := cache.Member(guildID, userID)
	require.True(t, ok)
	assert.Equal(t, guildID, member.GuildID)

	user, ok := cache.User(userID)
	require.True(t, ok)
	assert.Equal(t, "someone", user.Username)
}

func TestGuildCreateReturnsPreImageOnUpsert(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)

	cache.applyGuildCreate(discord.Guild{ID: guildID, Name: "old name"})

	pre := cache.applyGuildCreate(discord.Guild{ID: guildID, Name: "new name"})
	require.NotNil(t, pre)
	assert.Equal(t, "old name", pre.Name)
}

func TestGuildDeleteUnavailable(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)

	cache.applyGuildCreate(discord.Guild{ID: guildID, Name: "outage"})

	// Unavailable means an outage, not a removal: the guild stays cached.
	pre := cache.applyGuildDelete(discord.GuildDelete{ID: guildID, Unavailable: true})
	assert.Nil(t, pre)

	_, ok := cache.Guild(guildID)
	assert.True(t, ok)
	assert.Contains(t, cache.UnavailableGuildIDs(), guildID)
}

func TestGuildDeleteRemoval(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)
	channelID := discord.Snowflake(100)

	cache.applyGuildCreate(discord.Guild{
		ID:       guildID,
		Name:     "left guild",
		Channels: []discord.Channel{{ID: channelID}},
	})

	cache.applyMessageCreate(discord.Message{ID: 1, ChannelID: channelID, GuildID: guildID})

	pre := cache.applyGuildDelete(discord.GuildDelete{ID: guildID})
	require.NotNil(t, pre)
	assert.Equal(t, "left guild", pre.Name)

	_, ok := cache.Guild(guildID)
	assert.False(t, ok)

	_, ok = cache.Channel(channelID)
	assert.False(t, ok)

	assert.Empty(t, cache.Messages(channelID))
}

func TestCacheReadyFiresExactlyOnce(t *testing.T) {
	cache := newTestCache(10)

	g1 := discord.Snowflake(1 << 22)
	g2 := discord.Snowflake(5 << 22)

	cache.applyReady(0, 1, &discord.Ready{
		User: discord.User{ID: 1, Username: "bot"},
		Guilds: []discord.UnavailableGuild{
			{ID: g1, Unavailable: true},
			{ID: g2, Unavailable: true},
		},
	})

	cache.applyGuildCreate(discord.Guild{ID: g1})
	assert.False(t, cache.takePendingCacheReady(), "one unavailable guild still outstanding")

	cache.applyGuildCreate(discord.Guild{ID: g2})
	assert.True(t, cache.takePendingCacheReady())

	// Consumed; never fires again, even for later guild joins.
	assert.False(t, cache.takePendingCacheReady())

	cache.applyGuildCreate(discord.Guild{ID: discord.Snowflake(9 << 22)})
	assert.False(t, cache.takePendingCacheReady())
}

func TestReadyEvictsGuildsDroppedBetweenSessions(t *testing.T) {
	cache := newTestCache(10)

	shardCount := int32(2)

	ownedKept := discord.Snowflake(4 << 22)    // shard 0
	ownedDropped := discord.Snowflake(2 << 22) // shard 0
	otherShard := discord.Snowflake(1 << 22)   // shard 1

	cache.shardCount.Store(shardCount)
	cache.applyGuildCreate(discord.Guild{ID: ownedKept})
	cache.applyGuildCreate(discord.Guild{ID: ownedDropped})
	cache.applyGuildCreate(discord.Guild{ID: otherShard})

	evicted := cache.applyReady(0, shardCount, &discord.Ready{
		User: discord.User{ID: 1},
		Guilds: []discord.UnavailableGuild{
			{ID: ownedKept, Unavailable: true},
		},
	})

	require.Len(t, evicted, 1)
	assert.Equal(t, ownedDropped, evicted[0])

	_, ok := cache.Guild(ownedDropped)
	assert.False(t, ok)

	// Guilds routed to other shards are never touched.
	_, ok = cache.Guild(otherShard)
	assert.True(t, ok)

	_, ok = cache.Guild(ownedKept)
	assert.True(t, ok)
}

func TestRoleDeleteReturnsPreImage(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)

	cache.applyGuildCreate(discord.Guild{
		ID:    guildID,
		Roles: []discord.Role{{ID: 200, Name: "mods"}},
	})

	pre := cache.applyGuildRoleDelete(guildID, 200)
	require.NotNil(t, pre)
	assert.Equal(t, "mods", pre.Name)

	_, ok := cache.Role(guildID, 200)
	assert.False(t, ok)

	// Deleting again is a miss, not an error.
	assert.Nil(t, cache.applyGuildRoleDelete(guildID, 200))
}

func TestPresenceUpdateOfflineRemoves(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)
	userID := discord.Snowflake(500)

	cache.applyGuildCreate(discord.Guild{ID: guildID})

	cache.applyPresenceUpdate(discord.PresenceUpdate{
		User:    discord.User{ID: userID},
		GuildID: guildID,
		Status:  discord.StatusOnline,
	})

	_, ok := cache.Presence(guildID, userID)
	require.True(t, ok)

	pre := cache.applyPresenceUpdate(discord.PresenceUpdate{
		User:    discord.User{ID: userID},
		GuildID: guildID,
		Status:  discord.StatusOffline,
	})

	require.NotNil(t, pre)
	assert.Equal(t, discord.StatusOnline, pre.Status)

	_, ok = cache.Presence(guildID, userID)
	assert.False(t, ok)
}

func TestPresenceUpdateSynthesisesMember(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)
	userID := discord.Snowflake(500)

	cache.applyGuildCreate(discord.Guild{ID: guildID})

	cache.applyPresenceUpdate(discord.PresenceUpdate{
		User:    discord.User{ID: userID, Username: "ghost"},
		GuildID: guildID,
		Status:  discord.StatusIdle,
	})

	member, ok := cache.Member(guildID, userID)
	require.True(t, ok)
	require.NotNil(t, member.User)
	assert.Equal(t, "ghost", member.User.Username)
}

func TestVoiceStateNilChannelRemoves(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)
	userID := discord.Snowflake(500)
	channelID := discord.Snowflake(100)

	cache.applyGuildCreate(discord.Guild{ID: guildID})

	cache.applyVoiceStateUpdate(discord.VoiceState{
		GuildID:   guildID,
		ChannelID: &channelID,
		UserID:    userID,
	})

	_, ok := cache.VoiceState(guildID, userID)
	require.True(t, ok)

	pre := cache.applyVoiceStateUpdate(discord.VoiceState{
		GuildID: guildID,
		UserID:  userID,
	})

	require.NotNil(t, pre)
	require.NotNil(t, pre.ChannelID)
	assert.Equal(t, channelID, *pre.ChannelID)

	_, ok = cache.VoiceState(guildID, userID)
	assert.False(t, ok)
}

func TestMemberAddRemoveAdjustsMemberCount(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)
	user := discord.User{ID: 500, Username: "joiner"}

	cache.applyGuildCreate(discord.Guild{ID: guildID, MemberCount: 1})

	pre := cache.applyGuildMemberAdd(discord.GuildMember{
		User:    &user,
		GuildID: guildID,
	})
	assert.Nil(t, pre)

	guild, _ := cache.Guild(guildID)
	assert.Equal(t, int32(2), guild.MemberCount)

	removed := cache.applyGuildMemberRemove(guildID, user)
	require.NotNil(t, removed)
	require.NotNil(t, removed.User)
	assert.Equal(t, user.ID, removed.User.ID)

	guild, _ = cache.Guild(guildID)
	assert.Equal(t, int32(1), guild.MemberCount)

	// Removing an unknown member leaves the count alone.
	assert.Nil(t, cache.applyGuildMemberRemove(guildID, discord.User{ID: 999}))

	guild, _ = cache.Guild(guildID)
	assert.Equal(t, int32(1), guild.MemberCount)
}

func TestMemberRemoveClearsPresenceAndVoice(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)
	userID := discord.Snowflake(500)
	channelID := discord.Snowflake(100)

	cache.applyGuildCreate(discord.Guild{ID: guildID})
	cache.applyGuildMemberAdd(discord.GuildMember{User: &discord.User{ID: userID}, GuildID: guildID})
	cache.applyPresenceUpdate(discord.PresenceUpdate{User: discord.User{ID: userID}, GuildID: guildID, Status: discord.StatusOnline})
	cache.applyVoiceStateUpdate(discord.VoiceState{GuildID: guildID, ChannelID: &channelID, UserID: userID})

	cache.applyGuildMemberRemove(guildID, discord.User{ID: userID})

	_, ok := cache.Presence(guildID, userID)
	assert.False(t, ok)

	_, ok = cache.VoiceState(guildID, userID)
	assert.False(t, ok)
}

func TestGuildEmojisUpdateReplacesSet(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)

	cache.applyGuildCreate(discord.Guild{
		ID:     guildID,
		Emojis: []discord.Emoji{{ID: 300, Name: "old"}},
	})

	pre := cache.applyGuildEmojisUpdate(guildID, []discord.Emoji{
		{ID: 301, Name: "new"},
	})

	require.Len(t, pre, 1)
	assert.Equal(t, "old", pre[0].Name)

	guild, _ := cache.Guild(guildID)
	require.Len(t, guild.Emojis, 1)
	assert.Equal(t, "new", guild.Emojis[0].Name)
	assert.Equal(t, guildID, guild.Emojis[0].GuildID)
}

func TestUserUpdateSwapsCurrentUser(t *testing.T) {
	cache := newTestCache(10)

	cache.applyReady(0, 1, &discord.Ready{
		User: discord.User{ID: 1, Username: "before"},
	})

	pre := cache.applyUserUpdate(discord.User{ID: 1, Username: "after"})
	require.NotNil(t, pre)
	assert.Equal(t, "before", pre.Username)

	current, ok := cache.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "after", current.Username)
}

func TestPrivateChannelLifecycle(t *testing.T) {
	cache := newTestCache(10)

	channelID := discord.Snowflake(100)

	pre := cache.applyChannelCreate(discord.Channel{
		ID:   channelID,
		Type: discord.ChannelTypeDM,
		Recipients: []discord.User{
			{ID: 500, Username: "friend"},
		},
	})
	assert.Nil(t, pre)

	_, ok := cache.Channel(channelID)
	require.True(t, ok)

	user, ok := cache.User(500)
	require.True(t, ok)
	assert.Equal(t, "friend", user.Username)

	_, deleted := cache.applyChannelDelete(discord.Channel{ID: channelID})
	require.NotNil(t, deleted)

	_, ok = cache.Channel(channelID)
	assert.False(t, ok)
}

func TestMessageCreateAdvancesLastMessageID(t *testing.T) {
	cache := newTestCache(10)

	guildID := discord.Snowflake(1 << 22)
	channelID := discord.Snowflake(100)

	cache.applyGuildCreate(discord.Guild{
		ID:       guildID,
		Channels: []discord.Channel{{ID: channelID, LastMessageID: 5}},
	})

	cache.applyMessageCreate(discord.Message{ID: 10, ChannelID: channelID, GuildID: guildID})

	channel, _ := cache.Channel(channelID)
	assert.Equal(t, discord.Snowflake(10), channel.LastMessageID)

	// Out of order create never moves the pointer backwards.
	cache.applyMessageCreate(discord.Message{ID: 7, ChannelID: channelID, GuildID: guildID})

	channel, _ = cache.Channel(channelID)
	assert.Equal(t, discord.Snowflake(10), channel.LastMessageID)
}

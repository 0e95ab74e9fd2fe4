package skiff

import (
	"github.com/skiff-works/skiff/discord"
)

// cache_events.go contains one apply function per dispatch event the cache
// mutates on. Every apply is atomic with respect to other applies on the
// same shard and returns the pre-image of the touched entity.

// loadOrCreateGuildState fetches the guild's state, creating an empty one
// when the guild is not yet cached.
func (c *Cache) loadOrCreateGuildState(guildID discord.Snowflake) *GuildState {
	if state, ok := c.guilds.Load(guildID); ok {
		return state
	}

	state := newGuildState()
	state.guild.ID = guildID
	c.guilds.SetIfAbsent(guildID, state)

	state, _ = c.guilds.Load(guildID)

	return state
}

// checkMemberRoles warns when a member references roles the guild does not
// have. The member is cached regardless.
func (c *Cache) checkMemberRoles(state *GuildState, member *discord.GuildMember) {
	for _, roleID := range member.Roles {
		if _, ok := state.roles[roleID]; !ok {
			userID := discord.Snowflake(0)
			if member.User != nil {
				userID = member.User.ID
			}

			c.logger.Warn("Member references unknown role",
				"guild_id", state.guild.ID,
				"user_id", userID,
				"role_id", roleID,
			)
		}
	}
}

// applyReady registers the session's guild stubs as unavailable, then
// evicts any guild owned by this shard that the READY payload no longer
// mentions (the bot was removed between sessions). Guilds owned by other
// shards are never touched.
func (c *Cache) applyReady(shardID, shardCount int32, ready *discord.Ready) (evicted []discord.Snowflake) {
	c.currentUser.Store(&ready.User)
	c.shardCount.Store(shardCount)
	c.updateUserEntry(&ready.User)

	mentioned := make(map[discord.Snowflake]bool, len(ready.Guilds))

	for _, stub := range ready.Guilds {
		mentioned[stub.ID] = true
		c.unavailableGuilds.Store(stub.ID, true)
	}

	c.readySeen.Store(true)

	c.guilds.Range(func(guildID discord.Snowflake, _ *GuildState) bool {
		if guildID.ShardID(shardCount) != shardID {
			return false
		}

		if !mentioned[guildID] {
			evicted = append(evicted, guildID)
		}

		return false
	})

	for _, guildID := range evicted {
		c.evictGuild(guildID)
		c.unavailableGuilds.Delete(guildID)
	}

	return evicted
}

// applyGuildCreate upserts the guild and its inline collections. The
// pre-image is the previously cached guild, if any. When the last
// unavailable guild arrives, the one-shot CacheReady signal is armed.
func (c *Cache) applyGuildCreate(guild discord.Guild) (pre *discord.Guild) {
	if existing, ok := c.Guild(guild.ID); ok {
		pre = &existing
	}

	state := c.loadOrCreateGuildState(guild.ID)

	state.mu.Lock()

	for _, channel := range guild.Channels {
		channel.GuildID = guild.ID
		state.channels[channel.ID] = channel
		c.channelIndex.Store(channel.ID, guild.ID)
	}

	for _, thread := range guild.Threads {
		thread.GuildID = guild.ID
		state.threads[thread.ID] = thread
		c.channelIndex.Store(thread.ID, guild.ID)
	}

	for _, role := range guild.Roles {
		role.GuildID = guild.ID
		state.roles[role.ID] = role
	}

	for _, emoji := range guild.Emojis {
		emoji.GuildID = guild.ID
		state.emojis[emoji.ID] = emoji
	}

	for _, member := range guild.Members {
		member.GuildID = guild.ID
		if member.User != nil {
			state.members[member.User.ID] = member
		}

		c.checkMemberRoles(state, &member)
	}

	for _, presence := range guild.Presences {
		presence.GuildID = guild.ID

		if presence.Status == discord.StatusOffline {
			continue
		}

		state.presences[presence.User.ID] = presence
	}

	for _, voiceState := range guild.VoiceStates {
		voiceState.GuildID = guild.ID
		state.voiceStates[voiceState.UserID] = voiceState
	}

	stored := guild
	stored.Channels = nil
	stored.Threads = nil
	stored.Members = nil
	stored.Roles = nil
	stored.Emojis = nil
	stored.Presences = nil
	stored.VoiceStates = nil
	stored.Unavailable = false
	state.guild = stored

	state.mu.Unlock()

	for _, member := range guild.Members {
		c.updateUserEntry(member.User)
	}

	c.unavailableGuilds.Delete(guild.ID)

	if c.readySeen.Load() && c.unavailableGuilds.Count() == 0 {
		if c.cacheReadySent.CompareAndSwap(false, true) {
			c.pendingCacheReady.Store(true)
		}
	}

	return pre
}

// applyGuildUpdate replaces the guild's own fields, leaving the inner
// collections untouched.
func (c *Cache) applyGuildUpdate(guild discord.Guild) (pre *discord.Guild) {
	state, ok := c.guilds.Load(guild.ID)
	if !ok {
		return nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	previous := state.guild
	pre = &previous

	stored := guild
	stored.Channels = nil
	stored.Threads = nil
	stored.Members = nil
	stored.Roles = nil
	stored.Emojis = nil
	stored.Presences = nil
	stored.VoiceStates = nil
	state.guild = stored

	return pre
}

// applyGuildDelete moves the guild to the unavailable set when the
// platform says it will come back, and fully evicts it otherwise. The
// pre-image is the evicted guild.
func (c *Cache) applyGuildDelete(ev discord.GuildDelete) (pre *discord.Guild) {
	if ev.Unavailable {
		c.unavailableGuilds.Store(ev.ID, true)

		return nil
	}

	if existing, ok := c.Guild(ev.ID); ok {
		pre = &existing
	}

	c.evictGuild(ev.ID)
	c.unavailableGuilds.Delete(ev.ID)

	return pre
}

// evictGuild removes the guild, its channel index entries and every
// per-channel message buffer it owned.
func (c *Cache) evictGuild(guildID discord.Snowflake) {
	state, ok := c.guilds.Load(guildID)
	if !ok {
		return
	}

	state.mu.Lock()

	channelIDs := make([]discord.Snowflake, 0, len(state.channels)+len(state.threads))

	for channelID := range state.channels {
		channelIDs = append(channelIDs, channelID)
	}

	for threadID := range state.threads {
		channelIDs = append(channelIDs, threadID)
	}

	state.mu.Unlock()

	c.guilds.Delete(guildID)

	for _, channelID := range channelIDs {
		c.channelIndex.Delete(channelID)
		c.messages.Delete(channelID)
	}
}

// applyChannelCreate inserts the channel into its owning guild, or into
// the private channel map for DMs. The pre-image is the displaced channel.
func (c *Cache) applyChannelCreate(channel discord.Channel) (pre *discord.Channel) {
	if channel.GuildID.IsNil() {
		if existing, ok := c.privateChannels.Load(channel.ID); ok {
			pre = &existing
		}

		for i := range channel.Recipients {
			c.updateUserEntry(&channel.Recipients[i])
		}

		c.privateChannels.Store(channel.ID, channel)

		return pre
	}

	state := c.loadOrCreateGuildState(channel.GuildID)

	state.mu.Lock()

	if existing, ok := state.channels[channel.ID]; ok {
		pre = &existing
	}

	state.channels[channel.ID] = channel

	state.mu.Unlock()

	c.channelIndex.Store(channel.ID, channel.GuildID)

	return pre
}

// applyChannelUpdate is an upsert with the same shape as create.
func (c *Cache) applyChannelUpdate(channel discord.Channel) (pre *discord.Channel) {
	return c.applyChannelCreate(channel)
}

// applyChannelDelete removes the channel from its guild and evicts the
// channel's entire message buffer. The evicted messages are the pre-image.
func (c *Cache) applyChannelDelete(channel discord.Channel) (evictedMessages []discord.Message, pre *discord.Channel) {
	if channel.GuildID.IsNil() {
		if existing, ok := c.privateChannels.Load(channel.ID); ok {
			pre = &existing
		}

		c.privateChannels.Delete(channel.ID)
	} else if state, ok := c.guilds.Load(channel.GuildID); ok {
		state.mu.Lock()

		if existing, ok := state.channels[channel.ID]; ok {
			pre = &existing
		}

		delete(state.channels, channel.ID)

		state.mu.Unlock()

		c.channelIndex.Delete(channel.ID)
	}

	if buffer, ok := c.messages.Load(channel.ID); ok {
		evictedMessages = buffer.snapshot()
		c.messages.Delete(channel.ID)
	}

	return evictedMessages, pre
}

// applyChannelPinsUpdate has no cached fields to change beyond the
// channel's existence; kept so the event still reaches handlers with the
// channel pre-image.
func (c *Cache) applyChannelPinsUpdate(ev discord.ChannelPinsUpdate) (pre *discord.Channel) {
	if channel, ok := c.Channel(ev.ChannelID); ok {
		return &channel
	}

	return nil
}

// applyThreadCreate inserts the thread into its owning guild.
func (c *Cache) applyThreadCreate(thread discord.Channel) (pre *discord.Channel) {
	if thread.GuildID.IsNil() {
		return nil
	}

	state := c.loadOrCreateGuildState(thread.GuildID)

	state.mu.Lock()

	if existing, ok := state.threads[thread.ID]; ok {
		pre = &existing
	}

	state.threads[thread.ID] = thread

	state.mu.Unlock()

	c.channelIndex.Store(thread.ID, thread.GuildID)

	return pre
}

// applyThreadUpdate is an upsert with the same shape as create.
func (c *Cache) applyThreadUpdate(thread discord.Channel) (pre *discord.Channel) {
	return c.applyThreadCreate(thread)
}

// applyThreadDelete removes the thread and its message buffer.
func (c *Cache) applyThreadDelete(thread discord.Channel) (pre *discord.Channel) {
	if state, ok := c.guilds.Load(thread.GuildID); ok {
		state.mu.Lock()

		if existing, ok := state.threads[thread.ID]; ok {
			pre = &existing
		}

		delete(state.threads, thread.ID)

		state.mu.Unlock()
	}

	c.channelIndex.Delete(thread.ID)
	c.messages.Delete(thread.ID)

	return pre
}

// applyGuildMemberAdd inserts the member and bumps the guild member count.
func (c *Cache) applyGuildMemberAdd(member discord.GuildMember) (pre *discord.GuildMember) {
	if member.User == nil {
		return nil
	}

	state := c.loadOrCreateGuildState(member.GuildID)

	state.mu.Lock()

	if existing, ok := state.members[member.User.ID]; ok {
		pre = &existing
	} else {
		state.guild.MemberCount++
	}

	state.members[member.User.ID] = member
	c.checkMemberRoles(state, &member)

	state.mu.Unlock()

	c.updateUserEntry(member.User)

	return pre
}

// applyGuildMemberUpdate replaces the member in place. A MEMBER_UPDATE may
// arrive before its MEMBER_ADD on certain resume paths, in which case the
// member is synthesised from the update payload and there is no pre-image.
func (c *Cache) applyGuildMemberUpdate(member discord.GuildMember) (pre *discord.GuildMember) {
	if member.User == nil {
		return nil
	}

	state := c.loadOrCreateGuildState(member.GuildID)

	state.mu.Lock()

	if existing, ok := state.members[member.User.ID]; ok {
		pre = &existing
	}

	state.members[member.User.ID] = member
	c.checkMemberRoles(state, &member)

	state.mu.Unlock()

	c.updateUserEntry(member.User)

	return pre
}

// applyGuildMemberRemove removes the member along with their presence and
// voice state, returning the removed member.
func (c *Cache) applyGuildMemberRemove(guildID discord.Snowflake, user discord.User) (pre *discord.GuildMember) {
	state, ok := c.guilds.Load(guildID)
	if !ok {
		return nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if existing, ok := state.members[user.ID]; ok {
		pre = &existing

		delete(state.members, user.ID)
		state.guild.MemberCount--
	}

	delete(state.presences, user.ID)
	delete(state.voiceStates, user.ID)

	return pre
}

// applyGuildMembersChunk bulk-inserts a chunk of members and presences.
func (c *Cache) applyGuildMembersChunk(chunk discord.GuildMembersChunk) {
	state := c.loadOrCreateGuildState(chunk.GuildID)

	state.mu.Lock()

	for _, member := range chunk.Members {
		member.GuildID = chunk.GuildID
		if member.User != nil {
			state.members[member.User.ID] = member
		}
	}

	for _, presence := range chunk.Presences {
		presence.GuildID = chunk.GuildID

		if presence.Status == discord.StatusOffline {
			continue
		}

		state.presences[presence.User.ID] = presence
	}

	state.mu.Unlock()

	for _, member := range chunk.Members {
		c.updateUserEntry(member.User)
	}
}

// applyGuildRoleCreate inserts the role; pre-image is the displaced role.
func (c *Cache) applyGuildRoleCreate(guildID discord.Snowflake, role discord.Role) (pre *discord.Role) {
	role.GuildID = guildID

	state := c.loadOrCreateGuildState(guildID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if existing, ok := state.roles[role.ID]; ok {
		pre = &existing
	}

	state.roles[role.ID] = role

	return pre
}

// applyGuildRoleUpdate is an upsert with the same shape as create.
func (c *Cache) applyGuildRoleUpdate(guildID discord.Snowflake, role discord.Role) (pre *discord.Role) {
	return c.applyGuildRoleCreate(guildID, role)
}

// applyGuildRoleDelete removes and returns the role.
func (c *Cache) applyGuildRoleDelete(guildID, roleID discord.Snowflake) (pre *discord.Role) {
	state, ok := c.guilds.Load(guildID)
	if !ok {
		return nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if existing, ok := state.roles[roleID]; ok {
		pre = &existing

		delete(state.roles, roleID)
	}

	return pre
}

// applyGuildEmojisUpdate replaces the guild's emoji set wholesale,
// returning the previous set.
func (c *Cache) applyGuildEmojisUpdate(guildID discord.Snowflake, emojis []discord.Emoji) (pre []discord.Emoji) {
	state := c.loadOrCreateGuildState(guildID)

	state.mu.Lock()
	defer state.mu.Unlock()

	pre = make([]discord.Emoji, 0, len(state.emojis))
	for _, emoji := range state.emojis {
		pre = append(pre, emoji)
	}

	state.emojis = make(map[discord.Snowflake]discord.Emoji, len(emojis))

	for _, emoji := range emojis {
		emoji.GuildID = guildID
		state.emojis[emoji.ID] = emoji
	}

	return pre
}

// applyMessageCreate appends the message to the channel's bounded buffer.
// When the buffer is at capacity, the oldest message is popped and
// returned as the pre-image. With message caching disabled this is a
// no-op beyond the channel's last_message_id.
func (c *Cache) applyMessageCreate(message discord.Message) (evicted *discord.Message) {
	// guilds before messages; fixed lock order.
	if !message.GuildID.IsNil() {
		if state, ok := c.guilds.Load(message.GuildID); ok {
			state.mu.Lock()

			if channel, ok := state.channels[message.ChannelID]; ok {
				if message.ID > channel.LastMessageID {
					channel.LastMessageID = message.ID
					state.channels[message.ChannelID] = channel
				}
			} else if thread, ok := state.threads[message.ChannelID]; ok {
				if message.ID > thread.LastMessageID {
					thread.LastMessageID = message.ID
					state.threads[message.ChannelID] = thread
				}
			}

			state.mu.Unlock()
		}
	} else if channel, ok := c.privateChannels.Load(message.ChannelID); ok {
		if message.ID > channel.LastMessageID {
			channel.LastMessageID = message.ID
			c.privateChannels.Store(message.ChannelID, channel)
		}
	}

	c.updateUserEntry(&message.Author)

	if c.maxMessages <= 0 {
		return nil
	}

	buffer, ok := c.messages.Load(message.ChannelID)
	if !ok {
		c.messages.SetIfAbsent(message.ChannelID, newMessageBuffer(c.maxMessages))
		buffer, _ = c.messages.Load(message.ChannelID)
	}

	return buffer.push(message)
}

// applyMessageUpdate merges the partial update into the cached message and
// returns the pre-update clone. An evicted message is a plain miss.
func (c *Cache) applyMessageUpdate(partial *discord.MessagePartialUpdate) (pre *discord.Message) {
	buffer, ok := c.messages.Load(partial.ChannelID)
	if !ok {
		return nil
	}

	if previous, ok := buffer.update(partial); ok {
		return &previous
	}

	return nil
}

// applyMessageDelete removes the message from the channel buffer.
func (c *Cache) applyMessageDelete(channelID, messageID discord.Snowflake) (pre *discord.Message) {
	buffer, ok := c.messages.Load(channelID)
	if !ok {
		return nil
	}

	if removed, ok := buffer.remove(messageID); ok {
		return &removed
	}

	return nil
}

// applyMessageDeleteBulk removes each message, returning the ones that
// were still cached.
func (c *Cache) applyMessageDeleteBulk(channelID discord.Snowflake, messageIDs []discord.Snowflake) (pre []discord.Message) {
	buffer, ok := c.messages.Load(channelID)
	if !ok {
		return nil
	}

	for _, messageID := range messageIDs {
		if removed, ok := buffer.remove(messageID); ok {
			pre = append(pre, removed)
		}
	}

	return pre
}

// applyPresenceUpdate upserts the presence, or removes it when the new
// status is offline. A presence for an unknown member synthesises a
// minimal member record.
func (c *Cache) applyPresenceUpdate(presence discord.PresenceUpdate) (pre *discord.PresenceUpdate) {
	if presence.GuildID.IsNil() {
		return nil
	}

	state := c.loadOrCreateGuildState(presence.GuildID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if existing, ok := state.presences[presence.User.ID]; ok {
		pre = &existing
	}

	if presence.Status == discord.StatusOffline {
		delete(state.presences, presence.User.ID)

		return pre
	}

	if _, ok := state.members[presence.User.ID]; !ok {
		user := presence.User
		state.members[presence.User.ID] = discord.GuildMember{
			User:    &user,
			GuildID: presence.GuildID,
		}
	}

	state.presences[presence.User.ID] = presence

	return pre
}

// applyPresencesReplace swaps in a whole new presence set for the guilds
// it mentions.
func (c *Cache) applyPresencesReplace(presences []discord.PresenceUpdate) {
	for _, presence := range presences {
		c.applyPresenceUpdate(presence)
	}
}

// applyUserUpdate replaces the current user.
func (c *Cache) applyUserUpdate(user discord.User) (pre *discord.User) {
	pre = c.currentUser.Swap(&user)
	c.updateUserEntry(&user)

	return pre
}

// applyVoiceStateUpdate upserts the voice state, or removes it when the
// channel id is nil. The replaced state is the pre-image.
func (c *Cache) applyVoiceStateUpdate(voiceState discord.VoiceState) (pre *discord.VoiceState) {
	if voiceState.GuildID.IsNil() {
		return nil
	}

	state := c.loadOrCreateGuildState(voiceState.GuildID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if existing, ok := state.voiceStates[voiceState.UserID]; ok {
		pre = &existing
	}

	if voiceState.ChannelID == nil {
		delete(state.voiceStates, voiceState.UserID)

		return pre
	}

	state.voiceStates[voiceState.UserID] = voiceState

	return pre
}

package skiff

import (
	"context"
	"errors"
	"time"

	"github.com/skiff-works/skiff/discord"
)

const (
	// How long the READY lazy-load loop waits for another GUILD_CREATE
	// before declaring the initial burst over.
	ReadyTimeout = 1 * time.Second
)

func onDispatchEvent(shard *Shard, eventType string) {
	RecordEvent(shard.shardID, eventType)
}

// OnReady seeds the session: it stores the resume state, applies the
// guild stubs to the cache and drains the initial GUILD_CREATE burst
// before the shard is declared ready.
func OnReady(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, trace *Trace) (DispatchResult, bool, error) {
	onDispatchEvent(shard, msg.Type)

	var readyPayload discord.Ready

	err := unmarshalPayload(msg, &readyPayload)
	if err != nil {
		shard.logger.Error("Failed to unmarshal ready payload", "error", err)

		return DispatchResult{}, false, err
	}

	shard.logger.Debug("Received READY payload", "session_id", readyPayload.SessionID)

	shard.sessionID.Store(&readyPayload.SessionID)
	shard.resumeGatewayURL.Store(&readyPayload.ResumeGatewayURL)

	shard.manager.SetUser(&readyPayload.User)
	shard.setMetadata(shard.manager.configuration.Load())

	for _, guild := range readyPayload.Guilds {
		shard.lazyGuilds.Store(guild.ID, true)
		shard.guilds.Store(guild.ID, true)
	}

	evicted := shard.skiff.cache.applyReady(shard.shardID, shard.manager.shardCount.Load(), &readyPayload)
	if len(evicted) > 0 {
		shard.logger.Info("Evicted stale guilds on READY", "count", len(evicted))
	}

	guildCreateEvents := 0

	readyTimeout := time.NewTicker(ReadyTimeout)
	defer readyTimeout.Stop()

	shard.logger.Debug("Starting lazy loading guilds")

ready:
	for {
		select {
		case <-readyTimeout.C:
			break ready
		default:
		}

		msg, err := shard.read(ctx, shard.websocketConn.Load())
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				shard.logger.Error("Encountered error during READY", "error", err)
			}

			break ready
		}

		if msg.Type == discord.EventGuildCreate {
			guildCreateEvents++

			readyTimeout.Reset(ReadyTimeout)
		}

		err = shard.OnEvent(ctx, msg, trace)
		if err != nil && !errors.Is(err, ErrNoDispatchHandler) {
			shard.logger.Error("Failed to dispatch event", "error", err)
		}

		shard.gatewayPayloadPool.Put(msg)
	}

	shard.logger.Debug("Finished lazy loading guilds", "guilds", guildCreateEvents)

	shard.onSessionReady()
	shard.manager.markShardReady(shard.shardID)

	configuration := shard.manager.configuration.Load()

	if configuration.ChunkGuildsOnStart {
		shard.chunkAllGuilds(ctx)
	}

	return DispatchResult{Event: &readyPayload}, true, nil
}

func OnResumed(_ context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	onDispatchEvent(shard, msg.Type)

	shard.logger.Debug("Shard has resumed")

	shard.onSessionReady()

	return DispatchResult{}, true, nil
}

func OnChannelCreate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var channelCreatePayload discord.ChannelCreate

	err := unmarshalPayload(msg, &channelCreatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	channel := discord.Channel(channelCreatePayload)

	if !channel.GuildID.IsNil() {
		ctx = WithGuildID(ctx, channel.GuildID)
	}

	pre := shard.skiff.cache.applyChannelCreate(channel)

	return DispatchResult{Event: &channel, PreImage: pre}, true, nil
}

func OnChannelUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var channelUpdatePayload discord.ChannelUpdate

	err := unmarshalPayload(msg, &channelUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	channel := discord.Channel(channelUpdatePayload)

	if !channel.GuildID.IsNil() {
		ctx = WithGuildID(ctx, channel.GuildID)
	}

	pre := shard.skiff.cache.applyChannelUpdate(channel)
	if pre == nil {
		shard.logger.Warn("Received "+discord.EventChannelUpdate+" event, but previous channel not present in state",
			"guild_id", channel.GuildID, "channel_id", channel.ID)
	}

	return DispatchResult{Event: &channel, PreImage: pre}, true, nil
}

func OnChannelDelete(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var channelDeletePayload discord.ChannelDelete

	err := unmarshalPayload(msg, &channelDeletePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	channel := discord.Channel(channelDeletePayload)

	if !channel.GuildID.IsNil() {
		ctx = WithGuildID(ctx, channel.GuildID)
	}

	evictedMessages, pre := shard.skiff.cache.applyChannelDelete(channel)

	return DispatchResult{
		Event:    &channel,
		PreImage: pre,
		Extra:    NewExtra().Set("evicted_messages", evictedMessages),
	}, true, nil
}

func OnChannelPinsUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var channelPinsUpdatePayload discord.ChannelPinsUpdate

	err := unmarshalPayload(msg, &channelPinsUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !channelPinsUpdatePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, channelPinsUpdatePayload.GuildID)
	}

	pre := shard.skiff.cache.applyChannelPinsUpdate(channelPinsUpdatePayload)

	return DispatchResult{Event: &channelPinsUpdatePayload, PreImage: pre}, true, nil
}

func OnThreadCreate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var threadCreatePayload discord.ThreadCreate

	err := unmarshalPayload(msg, &threadCreatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	thread := discord.Channel(threadCreatePayload)

	pre := shard.skiff.cache.applyThreadCreate(thread)

	return DispatchResult{Event: &thread, PreImage: pre}, true, nil
}

func OnThreadUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var threadUpdatePayload discord.ThreadUpdate

	err := unmarshalPayload(msg, &threadUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	thread := discord.Channel(threadUpdatePayload)

	pre := shard.skiff.cache.applyThreadUpdate(thread)

	return DispatchResult{Event: &thread, PreImage: pre}, true, nil
}

func OnThreadDelete(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var threadDeletePayload discord.ThreadDelete

	err := unmarshalPayload(msg, &threadDeletePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	thread := discord.Channel(threadDeletePayload)

	pre := shard.skiff.cache.applyThreadDelete(thread)

	return DispatchResult{Event: &thread, PreImage: pre}, true, nil
}

func OnGuildCreate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildCreatePayload discord.GuildCreate

	err := unmarshalPayload(msg, &guildCreatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	guild := discord.Guild(guildCreatePayload)

	if !guild.ID.IsNil() {
		ctx = WithGuildID(ctx, guild.ID)
	}

	pre := shard.skiff.cache.applyGuildCreate(guild)

	lazy, exists := shard.lazyGuilds.Load(guild.ID)
	if exists {
		shard.lazyGuilds.Delete(guild.ID)
	}

	unavailable, exists := shard.unavailableGuilds.Load(guild.ID)
	if exists {
		shard.unavailableGuilds.Delete(guild.ID)
	}

	shard.guilds.Store(guild.ID, true)

	return DispatchResult{
		Event:    &guild,
		PreImage: pre,
		Extra:    NewExtra().Set("lazy", lazy).Set("unavailable", unavailable),
	}, true, nil
}

func OnGuildUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildUpdatePayload discord.GuildUpdate

	err := unmarshalPayload(msg, &guildUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	guild := discord.Guild(guildUpdatePayload)

	if !guild.ID.IsNil() {
		ctx = WithGuildID(ctx, guild.ID)
	}

	pre := shard.skiff.cache.applyGuildUpdate(guild)
	if pre == nil {
		shard.logger.Warn("Received "+discord.EventGuildUpdate+" event, but previous guild not present in state",
			"guild_id", guild.ID)
	} else {
		// GUILD_UPDATE omits values only present on GUILD_CREATE.
		if guild.MemberCount == 0 {
			guild.MemberCount = pre.MemberCount
		}
	}

	return DispatchResult{Event: &guild, PreImage: pre}, true, nil
}

func OnGuildDelete(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildDeletePayload discord.GuildDelete

	err := unmarshalPayload(msg, &guildDeletePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !guildDeletePayload.ID.IsNil() {
		ctx = WithGuildID(ctx, guildDeletePayload.ID)
	}

	pre := shard.skiff.cache.applyGuildDelete(guildDeletePayload)

	if guildDeletePayload.Unavailable {
		shard.unavailableGuilds.Store(guildDeletePayload.ID, true)
	} else {
		shard.guilds.Delete(guildDeletePayload.ID)
	}

	return DispatchResult{Event: &guildDeletePayload, PreImage: pre}, true, nil
}

func OnGuildBanAdd(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildBanAddPayload discord.GuildBanAdd

	err := unmarshalPayload(msg, &guildBanAddPayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !guildBanAddPayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, guildBanAddPayload.GuildID)
	}

	return DispatchResult{Event: &guildBanAddPayload}, true, nil
}

func OnGuildBanRemove(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildBanRemovePayload discord.GuildBanRemove

	err := unmarshalPayload(msg, &guildBanRemovePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !guildBanRemovePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, guildBanRemovePayload.GuildID)
	}

	return DispatchResult{Event: &guildBanRemovePayload}, true, nil
}

func OnGuildEmojisUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildEmojisUpdatePayload discord.GuildEmojisUpdate

	err := unmarshalPayload(msg, &guildEmojisUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !guildEmojisUpdatePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, guildEmojisUpdatePayload.GuildID)
	}

	pre := shard.skiff.cache.applyGuildEmojisUpdate(guildEmojisUpdatePayload.GuildID, guildEmojisUpdatePayload.Emojis)

	return DispatchResult{Event: &guildEmojisUpdatePayload, PreImage: pre}, true, nil
}

func OnGuildMemberAdd(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildMemberAddPayload discord.GuildMemberAdd

	err := unmarshalPayload(msg, &guildMemberAddPayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	member := discord.GuildMember(guildMemberAddPayload)

	if !member.GuildID.IsNil() {
		ctx = WithGuildID(ctx, member.GuildID)
	}

	pre := shard.skiff.cache.applyGuildMemberAdd(member)

	return DispatchResult{Event: &member, PreImage: pre}, true, nil
}

func OnGuildMemberRemove(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildMemberRemovePayload discord.GuildMemberRemove

	err := unmarshalPayload(msg, &guildMemberRemovePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !guildMemberRemovePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, guildMemberRemovePayload.GuildID)
	}

	pre := shard.skiff.cache.applyGuildMemberRemove(guildMemberRemovePayload.GuildID, guildMemberRemovePayload.User)
	if pre == nil {
		shard.logger.Warn("Received "+discord.EventGuildMemberRemove+" event, but previous guild member not present in state",
			"guild_id", guildMemberRemovePayload.GuildID, "user_id", guildMemberRemovePayload.User.ID)
	}

	return DispatchResult{Event: &guildMemberRemovePayload, PreImage: pre}, true, nil
}

func OnGuildMemberUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildMemberUpdatePayload discord.GuildMemberUpdate

	err := unmarshalPayload(msg, &guildMemberUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	member := discord.GuildMember(guildMemberUpdatePayload)

	if !member.GuildID.IsNil() {
		ctx = WithGuildID(ctx, member.GuildID)
	}

	pre := shard.skiff.cache.applyGuildMemberUpdate(member)

	return DispatchResult{Event: &member, PreImage: pre}, true, nil
}

func OnGuildMembersChunk(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	onDispatchEvent(shard, msg.Type)

	var guildMembersChunkPayload discord.GuildMembersChunk

	err := unmarshalPayload(msg, &guildMembersChunkPayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	shard.skiff.cache.applyGuildMembersChunk(guildMembersChunkPayload)

	shard.logger.Debug("Chunked guild members",
		"member_count", len(guildMembersChunkPayload.Members),
		"chunk_index", guildMembersChunkPayload.ChunkIndex,
		"chunk_count", guildMembersChunkPayload.ChunkCount,
		"guild_id", guildMembersChunkPayload.GuildID,
	)

	guildChunk, exists := shard.skiff.guildChunks.Load(guildMembersChunkPayload.GuildID)
	if exists {
		if guildChunk.complete.Load() {
			shard.logger.Warn("Received guild member chunk, but it is already complete", "guild_id", guildMembersChunkPayload.GuildID)
		}

		select {
		case guildChunk.chunkingChannel <- GuildChunkPartial{
			chunkIndex: guildMembersChunkPayload.ChunkIndex,
			chunkCount: guildMembersChunkPayload.ChunkCount,
			nonce:      guildMembersChunkPayload.Nonce,
		}:
		default:
		}
	}

	return DispatchResult{Event: &guildMembersChunkPayload}, true, nil
}

func OnGuildRoleCreate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildRoleCreatePayload discord.GuildRoleCreate

	err := unmarshalPayload(msg, &guildRoleCreatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !guildRoleCreatePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, guildRoleCreatePayload.GuildID)
	}

	pre := shard.skiff.cache.applyGuildRoleCreate(guildRoleCreatePayload.GuildID, guildRoleCreatePayload.Role)

	return DispatchResult{Event: &guildRoleCreatePayload, PreImage: pre}, true, nil
}

func OnGuildRoleUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildRoleUpdatePayload discord.GuildRoleUpdate

	err := unmarshalPayload(msg, &guildRoleUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !guildRoleUpdatePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, guildRoleUpdatePayload.GuildID)
	}

	pre := shard.skiff.cache.applyGuildRoleUpdate(guildRoleUpdatePayload.GuildID, guildRoleUpdatePayload.Role)
	if pre == nil {
		shard.logger.Warn("Received "+discord.EventGuildRoleUpdate+" event, but previous guild role not present in state",
			"guild_id", guildRoleUpdatePayload.GuildID, "role_id", guildRoleUpdatePayload.Role.ID)
	}

	return DispatchResult{Event: &guildRoleUpdatePayload, PreImage: pre}, true, nil
}

func OnGuildRoleDelete(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var guildRoleDeletePayload discord.GuildRoleDelete

	err := unmarshalPayload(msg, &guildRoleDeletePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !guildRoleDeletePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, guildRoleDeletePayload.GuildID)
	}

	pre := shard.skiff.cache.applyGuildRoleDelete(guildRoleDeletePayload.GuildID, guildRoleDeletePayload.RoleID)

	return DispatchResult{Event: &guildRoleDeletePayload, PreImage: pre}, true, nil
}

func OnInteractionCreate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	onDispatchEvent(shard, msg.Type)

	// Interactions are not cached; the raw payload is forwarded as-is.
	return DispatchResult{Event: msg.Data}, true, nil
}

func OnMessageCreate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var messageCreatePayload discord.MessageCreate

	err := unmarshalPayload(msg, &messageCreatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	message := discord.Message(messageCreatePayload)

	if !message.GuildID.IsNil() {
		ctx = WithGuildID(ctx, message.GuildID)
	}

	evicted := shard.skiff.cache.applyMessageCreate(message)

	return DispatchResult{
		Event:    &message,
		PreImage: evicted,
	}, true, nil
}

func OnMessageUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var messageUpdatePayload discord.MessagePartialUpdate

	err := unmarshalPayload(msg, &messageUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !messageUpdatePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, messageUpdatePayload.GuildID)
	}

	pre := shard.skiff.cache.applyMessageUpdate(&messageUpdatePayload)

	return DispatchResult{Event: &messageUpdatePayload, PreImage: pre}, true, nil
}

func OnMessageDelete(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var messageDeletePayload discord.MessageDelete

	err := unmarshalPayload(msg, &messageDeletePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !messageDeletePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, messageDeletePayload.GuildID)
	}

	pre := shard.skiff.cache.applyMessageDelete(messageDeletePayload.ChannelID, messageDeletePayload.ID)

	return DispatchResult{Event: &messageDeletePayload, PreImage: pre}, true, nil
}

func OnMessageDeleteBulk(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var messageDeleteBulkPayload discord.MessageDeleteBulk

	err := unmarshalPayload(msg, &messageDeleteBulkPayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !messageDeleteBulkPayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, messageDeleteBulkPayload.GuildID)
	}

	pre := shard.skiff.cache.applyMessageDeleteBulk(messageDeleteBulkPayload.ChannelID, messageDeleteBulkPayload.IDs)

	return DispatchResult{Event: &messageDeleteBulkPayload, PreImage: pre}, true, nil
}

func OnMessageReactionAdd(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var messageReactionAddPayload discord.MessageReactionAdd

	err := unmarshalPayload(msg, &messageReactionAddPayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !messageReactionAddPayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, messageReactionAddPayload.GuildID)
	}

	return DispatchResult{Event: &messageReactionAddPayload}, true, nil
}

func OnMessageReactionRemove(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var messageReactionRemovePayload discord.MessageReactionRemove

	err := unmarshalPayload(msg, &messageReactionRemovePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !messageReactionRemovePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, messageReactionRemovePayload.GuildID)
	}

	return DispatchResult{Event: &messageReactionRemovePayload}, true, nil
}

func OnPresenceUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var presenceUpdatePayload discord.PresenceUpdate

	err := unmarshalPayload(msg, &presenceUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !presenceUpdatePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, presenceUpdatePayload.GuildID)
	}

	pre := shard.skiff.cache.applyPresenceUpdate(presenceUpdatePayload)

	return DispatchResult{Event: &presenceUpdatePayload, PreImage: pre}, true, nil
}

func OnPresencesReplace(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	onDispatchEvent(shard, msg.Type)

	var presencesReplacePayload discord.PresencesReplace

	err := unmarshalPayload(msg, &presencesReplacePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	shard.skiff.cache.applyPresencesReplace(presencesReplacePayload)

	return DispatchResult{Event: &presencesReplacePayload}, true, nil
}

func OnTypingStart(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var typingStartPayload discord.TypingStart

	err := unmarshalPayload(msg, &typingStartPayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !typingStartPayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, typingStartPayload.GuildID)
	}

	return DispatchResult{Event: &typingStartPayload}, true, nil
}

func OnUserUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	onDispatchEvent(shard, msg.Type)

	var userUpdatePayload discord.UserUpdate

	err := unmarshalPayload(msg, &userUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	user := discord.User(userUpdatePayload)

	pre := shard.skiff.cache.applyUserUpdate(user)

	shard.manager.SetUser(&user)

	return DispatchResult{Event: &user, PreImage: pre}, true, nil
}

func OnVoiceStateUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var voiceStateUpdatePayload discord.VoiceState

	err := unmarshalPayload(msg, &voiceStateUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !voiceStateUpdatePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, voiceStateUpdatePayload.GuildID)
	}

	pre := shard.skiff.cache.applyVoiceStateUpdate(voiceStateUpdatePayload)

	return DispatchResult{Event: &voiceStateUpdatePayload, PreImage: pre}, true, nil
}

func OnVoiceServerUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	onDispatchEvent(shard, msg.Type)

	var voiceServerUpdatePayload discord.VoiceServerUpdate

	err := unmarshalPayload(msg, &voiceServerUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	return DispatchResult{Event: &voiceServerUpdatePayload}, true, nil
}

func OnWebhooksUpdate(ctx context.Context, shard *Shard, msg *discord.GatewayPayload, _ *Trace) (DispatchResult, bool, error) {
	var webhooksUpdatePayload discord.WebhooksUpdate

	err := unmarshalPayload(msg, &webhooksUpdatePayload)
	if err != nil {
		return DispatchResult{}, false, err
	}

	defer onDispatchEvent(shard, msg.Type)

	if !webhooksUpdatePayload.GuildID.IsNil() {
		ctx = WithGuildID(ctx, webhooksUpdatePayload.GuildID)
	}

	return DispatchResult{Event: &webhooksUpdatePayload}, true, nil
}

func init() {
	RegisterDispatchHandler(discord.EventReady, OnReady)
	RegisterDispatchHandler(discord.EventResumed, OnResumed)
	RegisterDispatchHandler(discord.EventChannelCreate, OnChannelCreate)
	RegisterDispatchHandler(discord.EventChannelUpdate, OnChannelUpdate)
	RegisterDispatchHandler(discord.EventChannelDelete, OnChannelDelete)
	RegisterDispatchHandler(discord.EventChannelPinsUpdate, OnChannelPinsUpdate)
	RegisterDispatchHandler(discord.EventThreadCreate, OnThreadCreate)
	RegisterDispatchHandler(discord.EventThreadUpdate, OnThreadUpdate)
	RegisterDispatchHandler(discord.EventThreadDelete, OnThreadDelete)
	RegisterDispatchHandler(discord.EventGuildCreate, OnGuildCreate)
	RegisterDispatchHandler(discord.EventGuildUpdate, OnGuildUpdate)
	RegisterDispatchHandler(discord.EventGuildDelete, OnGuildDelete)
	RegisterDispatchHandler(discord.EventGuildBanAdd, OnGuildBanAdd)
	RegisterDispatchHandler(discord.EventGuildBanRemove, OnGuildBanRemove)
	RegisterDispatchHandler(discord.EventGuildEmojisUpdate, OnGuildEmojisUpdate)
	RegisterDispatchHandler(discord.EventGuildMemberAdd, OnGuildMemberAdd)
	RegisterDispatchHandler(discord.EventGuildMemberRemove, OnGuildMemberRemove)
	RegisterDispatchHandler(discord.EventGuildMemberUpdate, OnGuildMemberUpdate)
	RegisterDispatchHandler(discord.EventGuildMembersChunk, OnGuildMembersChunk)
	RegisterDispatchHandler(discord.EventGuildRoleCreate, OnGuildRoleCreate)
	RegisterDispatchHandler(discord.EventGuildRoleUpdate, OnGuildRoleUpdate)
	RegisterDispatchHandler(discord.EventGuildRoleDelete, OnGuildRoleDelete)
	RegisterDispatchHandler(discord.EventInteractionCreate, OnInteractionCreate)
	RegisterDispatchHandler(discord.EventMessageCreate, OnMessageCreate)
	RegisterDispatchHandler(discord.EventMessageUpdate, OnMessageUpdate)
	RegisterDispatchHandler(discord.EventMessageDelete, OnMessageDelete)
	RegisterDispatchHandler(discord.EventMessageDeleteBulk, OnMessageDeleteBulk)
	RegisterDispatchHandler(discord.EventMessageReactionAdd, OnMessageReactionAdd)
	RegisterDispatchHandler(discord.EventMessageReactionRemove, OnMessageReactionRemove)
	RegisterDispatchHandler(discord.EventPresenceUpdate, OnPresenceUpdate)
	RegisterDispatchHandler(discord.EventPresencesReplace, OnPresencesReplace)
	RegisterDispatchHandler(discord.EventTypingStart, OnTypingStart)
	RegisterDispatchHandler(discord.EventUserUpdate, OnUserUpdate)
	RegisterDispatchHandler(discord.EventVoiceStateUpdate, OnVoiceStateUpdate)
	RegisterDispatchHandler(discord.EventVoiceServerUpdate, OnVoiceServerUpdate)
	RegisterDispatchHandler(discord.EventWebhooksUpdate, OnWebhooksUpdate)
}

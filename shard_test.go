package skiff

import (
	"bytes"
	"compress/zlib"
	"context"
	"testing"
	"time"

	"github.com/WelcomerTeam/czlib"
	"github.com/coder/websocket"
	"github.com/skiff-works/skiff/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShard() *Shard {
	manager := newTestManager()
	manager.logger = testLogger()
	manager.configuration.Store(&Configuration{})

	skiff := &Skiff{
		logger:     testLogger(),
		cache:      newTestCache(10),
		collectors: NewCollectorRegistry(),

		dedupeProvider: NewNoopDedupeProvider(),

		diagnostics: make(chan Diagnostic, 4),
	}

	manager.skiff = skiff

	return NewShard(skiff, manager, 0)
}

func TestAdvanceSequenceOnlyMovesForward(t *testing.T) {
	shard := newTestShard()

	shard.advanceSequence(5)
	assert.Equal(t, int64(5), shard.sequence.Load())

	shard.advanceSequence(3)
	assert.Equal(t, int64(5), shard.sequence.Load(), "sequence never moves backwards")

	shard.advanceSequence(9)
	assert.Equal(t, int64(9), shard.sequence.Load())
}

func TestIsStatusCodeRecoverable(t *testing.T) {
	recoverable := []int{
		discord.CloseUnknownError,
		discord.CloseUnknownOpCode,
		discord.CloseDecodeError,
		discord.CloseNotAuthenticated,
		discord.CloseAlreadyAuthenticated,
		discord.CloseInvalidSeq,
		discord.CloseRateLimited,
		discord.CloseSessionTimeout,
	}

	for _, code := range recoverable {
		assert.True(t, IsStatusCodeRecoverable(websocket.StatusCode(code)), "code %d", code)
	}

	fatal := []int{
		discord.CloseAuthenticationFailed,
		discord.CloseInvalidShard,
		discord.CloseShardingRequired,
		discord.CloseInvalidAPIVersion,
		discord.CloseInvalidIntents,
		discord.CloseDisallowedIntents,
	}

	for _, code := range fatal {
		assert.False(t, IsStatusCodeRecoverable(websocket.StatusCode(code)), "code %d", code)
	}
}

func TestClearSessionForcesIdentify(t *testing.T) {
	shard := newTestShard()

	sessionID := "abc123"
	resumeURL := "wss://resume.example"
	shard.sessionID.Store(&sessionID)
	shard.resumeGatewayURL.Store(&resumeURL)
	shard.sequence.Store(120)

	shard.clearSession()

	assert.Equal(t, int64(0), shard.sequence.Load())
	assert.Empty(t, *shard.sessionID.Load())
	assert.Empty(t, *shard.resumeGatewayURL.Load())
}

func TestEnqueueFullMailbox(t *testing.T) {
	shard := newTestShard()

	for i := 0; i < ShardMailboxSize; i++ {
		require.NoError(t, shard.enqueue(newShardCommand(discord.GatewayOpPresenceUpdate, nil)))
	}

	err := shard.enqueue(newShardCommand(discord.GatewayOpPresenceUpdate, nil))
	assert.ErrorIs(t, err, ErrMailboxFull)
}

func TestEnqueueAfterShutdown(t *testing.T) {
	shard := newTestShard()

	close(shard.stopSend)

	err := shard.enqueue(newShardCommand(discord.GatewayOpPresenceUpdate, nil))
	assert.ErrorIs(t, err, ErrMailboxDropped)
}

func TestSendLoopDropsPendingOnShutdown(t *testing.T) {
	shard := newTestShard()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go shard.sendLoop(ctx)

	// Not ready for send: the command parks in the pending queue.
	cmd := newShardCommand(discord.GatewayOpPresenceUpdate, nil)
	require.NoError(t, shard.enqueue(cmd))

	time.Sleep(20 * time.Millisecond)

	close(shard.stopSend)

	select {
	case err := <-cmd.result:
		assert.ErrorIs(t, err, ErrMailboxDropped)
	case <-time.After(time.Second):
		t.Fatal("pending command was never failed")
	}
}

func TestSendLoopDropsPendingOnContextCancel(t *testing.T) {
	shard := newTestShard()

	ctx, cancel := context.WithCancel(context.Background())

	go shard.sendLoop(ctx)

	cmd := newShardCommand(discord.GatewayOpPresenceUpdate, nil)
	require.NoError(t, shard.enqueue(cmd))

	time.Sleep(20 * time.Millisecond)

	cancel()

	select {
	case err := <-cmd.result:
		assert.ErrorIs(t, err, ErrMailboxDropped)
	case <-time.After(time.Second):
		t.Fatal("pending command was never failed")
	}
}

func TestOnSessionReadySignalsWaiters(t *testing.T) {
	shard := newTestShard()

	shard.retriesRemaining.Store(1)

	shard.onSessionReady()

	assert.True(t, shard.readyForSend.Load())
	assert.Equal(t, ShardConnectRetries, shard.retriesRemaining.Load())

	select {
	case <-shard.ready:
	default:
		t.Fatal("expected ready signal")
	}

	select {
	case <-shard.flushSignal:
	default:
		t.Fatal("expected flush signal")
	}

	// Signalling twice never blocks.
	shard.onSessionReady()
	shard.onSessionReady()
}

func TestGatewayOpHelloStoresIntervals(t *testing.T) {
	shard := newTestShard()

	msg := &discord.GatewayPayload{
		Op:   discord.GatewayOpHello,
		Data: []byte(`{"heartbeat_interval":45000}`),
	}

	require.NoError(t, shard.OnEvent(context.Background(), msg, NewTrace()))

	require.NotNil(t, shard.heartbeatInterval.Load())
	assert.Equal(t, 45*time.Second, *shard.heartbeatInterval.Load())
	assert.Equal(t, 45*time.Second, *shard.heartbeatFailureInterval.Load(), "zombie window is one heartbeat interval")
}

func TestGatewayOpHelloRejectsBadInterval(t *testing.T) {
	shard := newTestShard()

	msg := &discord.GatewayPayload{
		Op:   discord.GatewayOpHello,
		Data: []byte(`{"heartbeat_interval":0}`),
	}

	err := shard.OnEvent(context.Background(), msg, NewTrace())
	assert.ErrorIs(t, err, ErrShardInvalidHeartbeatInterval)
}

func TestOnEventUnknownOpcodeIgnored(t *testing.T) {
	shard := newTestShard()

	msg := &discord.GatewayPayload{Op: discord.GatewayOp(99)}

	assert.NoError(t, shard.OnEvent(context.Background(), msg, NewTrace()))
}

func TestShardStopIsIdempotent(t *testing.T) {
	shard := newTestShard()

	// Mimic the read loop consuming the stop token.
	go func() { <-shard.stop }()

	shard.Stop(context.Background(), websocket.StatusNormalClosure)

	// The manager's shutdown path and the pre-reshard topology sweep can
	// both reach the same shard.
	require.NotPanics(t, func() {
		shard.Stop(context.Background(), websocket.StatusNormalClosure)
	})

	assert.Equal(t, ShardStatusStopped, shard.Status())
	assert.ErrorIs(t, shard.enqueue(newShardCommand(discord.GatewayOpPresenceUpdate, nil)), ErrMailboxDropped)
}

func TestIdentifyPayloadDeclinesFrameCompression(t *testing.T) {
	shard := newTestShard()
	shard.manager.configuration.Store(&Configuration{
		BotToken:    "token",
		Intents:     discord.IntentGuilds,
		Compression: true,
	})
	shard.manager.shardCount.Store(4)

	payload := shard.identifyPayload()

	assert.False(t, payload.Compress, "frame-level zlib is always declined")
	assert.Equal(t, [2]int32{0, 4}, payload.Shard)
	assert.Equal(t, discord.IntentGuilds, payload.Intents)
}

func TestBuildGatewayURL(t *testing.T) {
	assert.Equal(t, "wss://gateway.discord.gg?v=10&encoding=json",
		buildGatewayURL("wss://gateway.discord.gg", false))
	assert.Equal(t, "wss://gateway.discord.gg?v=10&encoding=json&compress=zlib-stream",
		buildGatewayURL("wss://gateway.discord.gg", true))
}

func TestDecompressSharedZlibStream(t *testing.T) {
	shard := newTestShard()

	var err error

	shard.decompressor, err = czlib.NewReader(bytes.NewReader(nil))
	require.NoError(t, err)

	defer shard.decompressor.Close()

	// Two sync-flushed chunks of one zlib stream, the way the gateway
	// frames messages when compress=zlib-stream is negotiated.
	var buf bytes.Buffer

	zw := zlib.NewWriter(&buf)

	_, err = zw.Write([]byte(`{"op":10}`))
	require.NoError(t, err)
	require.NoError(t, zw.Flush())

	frame1 := append([]byte(nil), buf.Bytes()...)
	buf.Reset()

	_, err = zw.Write([]byte(`{"op":11}`))
	require.NoError(t, err)
	require.NoError(t, zw.Flush())

	frame2 := append([]byte(nil), buf.Bytes()...)

	data, err := shard.decompress(frame1)
	require.NoError(t, err)
	assert.Equal(t, `{"op":10}`, string(data))

	// The second frame only inflates if the first frame's context was
	// kept.
	data, err = shard.decompress(frame2)
	require.NoError(t, err)
	assert.Equal(t, `{"op":11}`, string(data))
}

func TestDecompressRejectsUnnegotiatedBinaryFrame(t *testing.T) {
	shard := newTestShard()

	_, err := shard.decompress([]byte{0x78, 0x9c})
	assert.Error(t, err)
}

func TestStartHeartbeatReplacesPreviousBeater(t *testing.T) {
	shard := newTestShard()

	interval := time.Hour
	shard.heartbeatInterval.Store(&interval)

	shard.startHeartbeat(context.Background())
	first := shard.heartbeatStop.Load()
	require.NotNil(t, first)

	shard.startHeartbeat(context.Background())
	second := shard.heartbeatStop.Load()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)

	select {
	case <-*first:
	default:
		t.Fatal("previous heartbeater was not signalled to stop")
	}

	assert.Eventually(t, func() bool {
		return shard.heartbeatActive.Load()
	}, time.Second, 10*time.Millisecond)

	go func() { <-shard.stop }()

	shard.Stop(context.Background(), websocket.StatusNormalClosure)

	assert.Eventually(t, func() bool {
		return !shard.heartbeatActive.Load()
	}, time.Second, 10*time.Millisecond)
}

func TestHeartbeatAckUpdatesLatency(t *testing.T) {
	shard := newTestShard()

	sent := time.Now().Add(-50 * time.Millisecond)
	shard.lastHeartbeatSent.Store(&sent)

	msg := &discord.GatewayPayload{Op: discord.GatewayOpHeartbeatACK}

	require.NoError(t, shard.OnEvent(context.Background(), msg, NewTrace()))

	assert.GreaterOrEqual(t, shard.Latency(), 50*time.Millisecond)
}

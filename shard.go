package skiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WelcomerTeam/czlib"
	"github.com/coder/websocket"
	"github.com/skiff-works/skiff/discord"
	"github.com/skiff-works/skiff/pkg/limiter"
	"github.com/skiff-works/skiff/pkg/syncmap"
	"github.com/skiff-works/skiff/pkg/wirejson"
)

var (
	// Number of retries to attempt before giving up on a shard
	ShardConnectRetries = int32(3)

	// Heartbeat intervals an outbound beat may go unacked before the
	// connection is treated as zombied. The gateway acks every beat, so
	// one missed window means the connection is dead.
	ShardMaxHeartbeatFailures = int32(1)

	MemberChunkTimeout = time.Second * 3

	// Mailbox capacity per shard. Senders get ErrMailboxFull beyond this.
	ShardMailboxSize = 64
)

var gatewayURL = url.URL{
	Scheme: "wss",
	Host:   "gateway.discord.gg",
}

// buildGatewayURL appends the connection parameters to a gateway URL.
// Stream compression is negotiated here; the identify payload always
// declines frame-level compression.
func buildGatewayURL(base string, compression bool) string {
	base += "?v=10&encoding=json"

	if compression {
		base += "&compress=zlib-stream"
	}

	return base
}

// Shard owns a single gateway connection: its websocket, heartbeat loop,
// session state and outbound mailbox. All session state is behind atomics
// so the heartbeater, the send loop and the read loop never contend.
type Shard struct {
	logger *slog.Logger

	skiff   *Skiff
	manager *ShardManager

	shardID int32

	retriesRemaining atomic.Int32
	startedAt        atomic.Pointer[time.Time]
	initializedAt    atomic.Pointer[time.Time]

	heartbeatActive   atomic.Bool
	heartbeatStop     atomic.Pointer[chan struct{}]
	lastHeartbeatAck  atomic.Pointer[time.Time]
	lastHeartbeatSent atomic.Pointer[time.Time]
	gatewayLatency    atomic.Int64

	heartbeater              *time.Ticker
	heartbeatInterval        atomic.Pointer[time.Duration]
	heartbeatFailureInterval atomic.Pointer[time.Duration]

	unavailableGuilds *syncmap.Map[discord.Snowflake, bool]
	lazyGuilds        *syncmap.Map[discord.Snowflake, bool]
	guilds            *syncmap.Map[discord.Snowflake, bool]

	sequence  atomic.Int64
	sessionID atomic.Pointer[string]

	websocketConn atomic.Pointer[websocket.Conn]

	// Shared inflate context for the connection's zlib stream. Only set
	// when stream compression was negotiated. Touched by the read loop
	// and Connect, which run on the same goroutine chain.
	decompressor io.ReadCloser

	websocketRatelimit *limiter.DurationLimiter

	resumeGatewayURL atomic.Pointer[string]

	mailbox      chan *shardCommand
	readyForSend atomic.Bool
	flushSignal  chan struct{}
	stopSend     chan struct{}

	ready chan struct{}
	stop  chan struct{}
	error chan error

	stopped atomic.Bool

	status atomic.Int32

	gatewayPayloadPool *sync.Pool

	metadata atomic.Pointer[ProducedMetadata]
}

func NewShard(skiff *Skiff, manager *ShardManager, shardID int32) *Shard {
	shard := &Shard{
		logger: manager.logger.With("shard_id", shardID),

		skiff:   skiff,
		manager: manager,

		shardID: shardID,

		unavailableGuilds: &syncmap.Map[discord.Snowflake, bool]{},
		lazyGuilds:        &syncmap.Map[discord.Snowflake, bool]{},
		guilds:            &syncmap.Map[discord.Snowflake, bool]{},

		// The gateway allows 120 messages per minute per connection. We
		// stay under that to leave room for heartbeats, which bypass the
		// limiter entirely.
		websocketRatelimit: limiter.NewDurationLimiter(110, time.Minute),

		mailbox:     make(chan *shardCommand, ShardMailboxSize),
		flushSignal: make(chan struct{}, 1),
		stopSend:    make(chan struct{}),

		ready: make(chan struct{}, 1),
		stop:  make(chan struct{}, 1),
		error: make(chan error, 1),

		gatewayPayloadPool: &sync.Pool{
			New: func() any {
				return &discord.GatewayPayload{}
			},
		},
	}

	shard.retriesRemaining.Store(ShardConnectRetries)

	now := time.Now()
	shard.initializedAt.Store(&now)

	return shard
}

func (shard *Shard) ShardID() int32 {
	return shard.shardID
}

// Latency returns the last measured heartbeat round trip.
func (shard *Shard) Latency() time.Duration {
	return time.Duration(shard.gatewayLatency.Load())
}

func (shard *Shard) Status() ShardStatus {
	return ShardStatus(shard.status.Load())
}

func (shard *Shard) setMetadata(configuration *Configuration) {
	var userID discord.Snowflake

	if user, ok := shard.skiff.cache.CurrentUser(); ok {
		userID = user.ID
	}

	shard.metadata.Store(&ProducedMetadata{
		ClientName: configuration.ClientName,
		UserID:     userID,
		Shard:      [2]int32{shard.shardID, shard.manager.shardCount.Load()},
	})
}

func (shard *Shard) setStatus(status ShardStatus) {
	UpdateShardStatus(shard.shardID, status)
	shard.status.Store(int32(status))
	shard.logger.Info("Shard status updated", "status", status.String())

	shard.skiff.broadcast(EventShardStatusUpdate, ShardStatusUpdate{
		ShardID: shard.shardID,
		Status:  status,
	})
}

// advanceSequence stores seq if it is greater than the current value.
// Dispatch payloads can arrive reordered relative to heartbeat reads, so
// the counter only ever moves forward.
func (shard *Shard) advanceSequence(seq int64) {
	for {
		current := shard.sequence.Load()
		if seq <= current {
			return
		}

		if shard.sequence.CompareAndSwap(current, seq) {
			return
		}
	}
}

func (shard *Shard) ConnectWithRetry(ctx context.Context) error {
	for {
		err := shard.Connect(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			newValue := shard.retriesRemaining.Add(-1)
			if newValue <= 0 {
				shard.setStatus(ShardStatusFailed)

				return fmt.Errorf("%w: %w", ErrShardConnectFailed, err)
			}

			shard.logger.Error("Failed to connect to shard", "error", err, "retries_remaining", newValue)
		} else if err == nil {
			break
		}
	}

	return nil
}

func (shard *Shard) Connect(ctx context.Context) error {
	shard.logger.Debug("Shard is connecting")

	shard.setStatus(ShardStatusConnecting)
	shard.readyForSend.Store(false)

	// Any beater from a previous connection is retired before the
	// handshake so reconnects never stack heartbeat loops.
	shard.stopHeartbeat()

	configuration := shard.manager.configuration.Load()

	// Empties the ready channel.
readyConsumer:
	for {
		select {
		case <-shard.ready:
		default:
			break readyConsumer
		}
	}

	var err error

	defer func() {
		if err != nil {
			shard.closeWS(ctx, websocket.StatusNormalClosure)
		}
	}()

	var websocketURL string

	resumeGatewayURL := shard.resumeGatewayURL.Load()
	if resumeGatewayURL == nil || *resumeGatewayURL == "" {
		websocketURL = shard.manager.gatewayURL()
	} else {
		websocketURL = *resumeGatewayURL
	}

	if shard.websocketConn.Load() != nil {
		err = shard.closeWS(ctx, websocket.StatusNormalClosure)
		if err != nil {
			shard.logger.Error("Failed to close websocket", "error", err)

			return fmt.Errorf("failed to close websocket: %w", err)
		}
	}

	websocketURL = buildGatewayURL(websocketURL, configuration.Compression)

	shard.logger.Debug("Dialing websocket", "url", websocketURL)

	conn, _, err := websocket.Dial(ctx, websocketURL, nil)
	if err != nil {
		shard.logger.Error("Failed to dial websocket", "error", err)

		return fmt.Errorf("failed to dial websocket: %w", err)
	}

	conn.SetReadLimit(-1)

	shard.websocketConn.Store(conn)

	if configuration.Compression {
		if shard.decompressor != nil {
			shard.decompressor.Close()
		}

		shard.decompressor, err = czlib.NewReader(bytes.NewReader(nil))
		if err != nil {
			return fmt.Errorf("failed to create decompressor: %w", err)
		}
	}

	// The first payload must be HELLO. Anything else is a protocol
	// violation and the connection is abandoned.
	payload, err := shard.read(ctx, conn)
	if err != nil {
		shard.logger.Error("Failed to read initial payload", "error", err)

		return fmt.Errorf("failed to read initial payload: %w", err)
	}

	if payload.Op != discord.GatewayOpHello {
		shard.gatewayPayloadPool.Put(payload)

		return fmt.Errorf("expected hello, received op %d", payload.Op)
	}

	var hello discord.Hello

	err = unmarshalPayload(payload, &hello)
	if err != nil {
		shard.logger.Error("Failed to unmarshal hello", "error", err)

		return fmt.Errorf("failed to unmarshal hello: %w", err)
	}

	shard.gatewayPayloadPool.Put(payload)

	if hello.HeartbeatInterval <= 0 {
		return ErrShardInvalidHeartbeatInterval
	}

	now := time.Now()
	shard.startedAt.Store(&now)
	shard.lastHeartbeatAck.Store(&now)
	shard.lastHeartbeatSent.Store(&now)

	heartbeatInterval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	shard.heartbeatInterval.Store(&heartbeatInterval)

	heartbeatFailureInterval := heartbeatInterval * time.Duration(ShardMaxHeartbeatFailures)
	shard.heartbeatFailureInterval.Store(&heartbeatFailureInterval)

	shard.logger.Debug("Shard received hello",
		"heartbeat_interval", heartbeatInterval.Milliseconds(),
		"heartbeat_failure_interval", heartbeatFailureInterval.Milliseconds(),
	)

	shard.startHeartbeat(ctx)

	sequence := shard.sequence.Load()
	sessionID := shard.sessionID.Load()

	if sequence == 0 || (sessionID == nil || *sessionID == "") {
		err = shard.identify(ctx)
		if err != nil {
			return fmt.Errorf("failed to identify: %w", err)
		}
	} else {
		err = shard.resume(ctx)
		if err != nil {
			return fmt.Errorf("failed to resume: %w", err)
		}
	}

	shard.setStatus(ShardStatusConnected)

	return nil
}

func (shard *Shard) Start(ctx context.Context) error {
	shard.logger.Debug("Shard is starting")

	go shard.sendLoop(ctx)

	for {
		err := shard.Listen(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrShardStopping) {
				return nil
			}

			shard.setStatus(ShardStatusFailed)
			shard.skiff.diagnose(shard.shardID, err)

			shard.error <- err

			var closeError websocket.CloseError

			if ok := errors.As(err, &closeError); ok {
				if !IsStatusCodeRecoverable(closeError.Code) {
					// A 4011 means the topology is too small. Restart
					// the whole fleet at the recommended count.
					if closeError.Code == discord.CloseShardingRequired {
						go shard.manager.Reshard(context.WithoutCancel(ctx))
					}

					return err
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// Stop is idempotent: the manager's shutdown path and the topology sweep
// before a reshard may both reach the same shard.
func (shard *Shard) Stop(ctx context.Context, code websocket.StatusCode) {
	if !shard.stopped.CompareAndSwap(false, true) {
		return
	}

	shard.logger.Debug("Shard is stopping")

	shard.setStatus(ShardStatusStopping)

	shard.stopHeartbeat()

	shard.stop <- struct{}{}
	close(shard.stopSend)

	shard.closeWS(ctx, code)

	shard.setStatus(ShardStatusStopped)
}

func (shard *Shard) Listen(ctx context.Context) error {
	shard.logger.Debug("Shard is listening")

	websocketConn := shard.websocketConn.Load()

	for {
		msg, err := shard.read(ctx, websocketConn)

		select {
		case <-shard.stop:
			return ErrShardStopping
		case <-ctx.Done():
			return nil
		default:
		}

		if err == nil {
			trace := Trace{}
			trace.Set("receive", time.Now().UnixNano())

			err = shard.OnEvent(ctx, msg, &trace)
			if err != nil {
				shard.logger.Error("Failed to handle event", "error", err)
			}

			shard.gatewayPayloadPool.Put(msg)

			continue
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}

		var closeError websocket.CloseError

		if ok := errors.As(err, &closeError); ok {
			// A 4009 session timeout invalidates the session but not
			// the token. Clearing it forces a fresh identify on the
			// next connect.
			if closeError.Code == discord.CloseSessionTimeout {
				shard.clearSession()
			}

			if !IsStatusCodeRecoverable(closeError.Code) {
				shard.logger.Error("Shard received close event", "error", closeError)

				return fmt.Errorf("shard %d received close event: %w", shard.shardID, closeError)
			}
		}

		shard.logger.Error("Shard received error", "error", err)

		// Another goroutine may have already swapped the connection.
		if websocketConn == shard.websocketConn.Load() {
			err = shard.reconnect(ctx, websocket.StatusNormalClosure)
			if err != nil {
				shard.logger.Error("Failed to reconnect", "error", err)

				return err
			}
		}

		return nil
	}
}

// IsStatusCodeRecoverable reports whether a close code permits another
// connection attempt with the same configuration.
func IsStatusCodeRecoverable(code websocket.StatusCode) bool {
	return code != discord.CloseAuthenticationFailed &&
		code != discord.CloseInvalidShard &&
		code != discord.CloseShardingRequired &&
		code != discord.CloseInvalidAPIVersion &&
		code != discord.CloseInvalidIntents &&
		code != discord.CloseDisallowedIntents
}

// clearSession drops the resume state so the next connect identifies.
func (shard *Shard) clearSession() {
	shard.sequence.Store(0)
	empty := ""
	shard.sessionID.Store(&empty)
	shard.resumeGatewayURL.Store(&empty)
}

func (shard *Shard) reconnect(ctx context.Context, code websocket.StatusCode) error {
	shard.logger.Debug("Shard is reconnecting")

	err := shard.closeWS(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to close websocket: %w", err)
	}

	wait := time.Second

	for {
		err := shard.Connect(ctx)
		if err == nil {
			shard.retriesRemaining.Store(ShardConnectRetries)

			return nil
		}

		retries := shard.retriesRemaining.Add(-1)
		if retries <= 0 {
			_ = shard.closeWS(ctx, code)

			err = shard.Connect(ctx)
			if err != nil {
				return fmt.Errorf("failed to reconnect: %w", err)
			}

			return nil
		}

		// Exponential backoff with jitter, capped at a minute.
		sleep := wait + time.Duration(rand.Int64N(int64(wait/2)+1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		wait *= 2
		if wait > time.Minute {
			wait = time.Minute
		}
	}
}

func (shard *Shard) closeWS(_ context.Context, code websocket.StatusCode) error {
	shard.logger.Debug("Shard is closing websocket", "code", code)

	websocketConn := shard.websocketConn.Load()
	if websocketConn == nil {
		return nil
	}

	err := websocketConn.Close(code, "")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		shard.logger.Error("Failed to close websocket", "error", err)
	}

	return nil
}

func (shard *Shard) WaitForReady() error {
	shard.logger.Debug("Shard is waiting for ready")

	since := time.Now()
	ticker := time.NewTicker(time.Second * 15)
	defer ticker.Stop()

	for {
		select {
		case <-shard.ready:
			shard.setStatus(ShardStatusReady)

			return nil
		case err := <-shard.error:
			return err
		case <-ticker.C:
			shard.logger.Error("Shard not ready", "duration", time.Since(since))
		}
	}
}

// onSessionReady is called when READY or RESUMED lands. It opens the send
// mailbox, resets reconnect budget and signals WaitForReady.
func (shard *Shard) onSessionReady() {
	shard.retriesRemaining.Store(ShardConnectRetries)
	shard.readyForSend.Store(true)

	select {
	case shard.flushSignal <- struct{}{}:
	default:
	}

	select {
	case shard.ready <- struct{}{}:
	default:
	}
}

// startHeartbeat retires any previous beater before spawning a new one,
// so a shard never has two loops sharing the ticker and the connection.
func (shard *Shard) startHeartbeat(ctx context.Context) {
	stop := make(chan struct{})

	if previous := shard.heartbeatStop.Swap(&stop); previous != nil {
		close(*previous)
	}

	go shard.heartbeat(ctx, stop)
}

func (shard *Shard) stopHeartbeat() {
	if previous := shard.heartbeatStop.Swap(nil); previous != nil {
		close(*previous)
	}
}

func (shard *Shard) heartbeat(ctx context.Context, stop chan struct{}) {
	shard.logger.Debug("Shard is heartbeating")

	shard.heartbeatActive.Store(true)

	defer func() {
		// A replaced beater must not clear the flag its replacement set.
		if current := shard.heartbeatStop.Load(); current == nil || *current == stop {
			shard.heartbeatActive.Store(false)
		}
	}()

	// The first heartbeat fires after interval*jitter so a fleet of
	// shards does not beat in lockstep.
	hasJitter := true
	heartbeatJitter := time.Millisecond * time.Duration(rand.Int64N(shard.heartbeatInterval.Load().Milliseconds()+1))

	if shard.heartbeater == nil {
		shard.heartbeater = time.NewTicker(heartbeatJitter)
	} else {
		shard.heartbeater.Reset(heartbeatJitter)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-shard.heartbeater.C:
			if hasJitter {
				hasJitter = false

				shard.heartbeater.Reset(*shard.heartbeatInterval.Load())
			}

			shard.logger.Debug("Sending heartbeat", "sequence", shard.sequence.Load())

			err := shard.SendEvent(ctx, discord.GatewayOpHeartbeat, shard.sequence.Load())

			now := time.Now()
			shard.lastHeartbeatSent.Store(&now)

			if err != nil || now.Sub(*shard.lastHeartbeatAck.Load()) > *shard.heartbeatFailureInterval.Load() {
				if err != nil {
					shard.logger.Error("Heartbeat failed", "error", err)
				} else {
					shard.logger.Error("Heartbeat failed", "error", "timeout")
				}

				// The connection is zombied. Tearing down the socket
				// unblocks the read loop, which resumes the session.
				shard.closeWS(ctx, websocket.StatusServiceRestart)

				return
			}
		}
	}
}

func (shard *Shard) identify(ctx context.Context) error {
	shard.logger.Debug("Shard is identifying", "shard_count", shard.manager.shardCount.Load())

	shard.manager.sessionStartLimitRemaining.Add(-1)

	err := shard.waitForIdentify(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for identify: %w", err)
	}

	return shard.SendEvent(ctx, discord.GatewayOpIdentify, shard.identifyPayload())
}

func (shard *Shard) identifyPayload() discord.Identify {
	configuration := shard.manager.configuration.Load()

	return discord.Identify{
		Properties: &discord.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: "Skiff " + Version,
			Device:  "Skiff " + Version,
		},
		Presence:       configuration.DefaultPresence,
		Token:          configuration.BotToken,
		Shard:          [2]int32{shard.shardID, shard.manager.shardCount.Load()},
		LargeThreshold: configuration.LargeThreshold,
		Intents:        configuration.Intents,

		// Frame-level zlib is always declined. Compression is negotiated
		// per connection with compress=zlib-stream instead.
		Compress: false,
	}
}

func (shard *Shard) waitForIdentify(ctx context.Context) error {
	shard.logger.Debug("Shard is waiting for identify")

	err := shard.skiff.identifyProvider.Identify(ctx, shard)
	if err != nil {
		return fmt.Errorf("failed to identify: %w", err)
	}

	return nil
}

func (shard *Shard) resume(ctx context.Context) error {
	shard.logger.Debug("Shard is resuming", "sequence", shard.sequence.Load())

	configuration := shard.manager.configuration.Load()

	return shard.SendEvent(ctx, discord.GatewayOpResume, discord.Resume{
		Token:     configuration.BotToken,
		SessionID: *shard.sessionID.Load(),
		Sequence:  shard.sequence.Load(),
	})
}

func (shard *Shard) SendEvent(ctx context.Context, gatewayOp discord.GatewayOp, data any) error {
	packet := discord.SentPayload{
		Op:   gatewayOp,
		Data: data,
	}

	return shard.send(ctx, gatewayOp, packet)
}

func (shard *Shard) send(ctx context.Context, gatewayOp discord.GatewayOp, data any) error {
	defer func() {
		if r := recover(); r != nil {
			if shard.skiff.panicHandler != nil {
				shard.skiff.panicHandler(shard.skiff, r)
			}
		}
	}()

	payload, err := wirejson.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Heartbeats bypass the ratelimit so a send burst can never starve
	// the keepalive.
	if gatewayOp != discord.GatewayOpHeartbeat {
		shard.websocketRatelimit.Lock()
	}

	shard.logger.Debug("Sending payload", "op", gatewayOp)

	websocketConn := shard.websocketConn.Load()
	if websocketConn == nil {
		return fmt.Errorf("shard %d has no websocket connection", shard.shardID)
	}

	err = websocketConn.Write(ctx, websocket.MessageText, payload)
	if err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	return nil
}

func (shard *Shard) read(ctx context.Context, websocketConn *websocket.Conn) (*discord.GatewayPayload, error) {
	messageType, data, err := websocketConn.Read(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}

		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	if messageType == websocket.MessageBinary {
		data, err = shard.decompress(data)
		if err != nil {
			return nil, err
		}
	}

	gatewayPayload := shard.gatewayPayloadPool.Get().(*discord.GatewayPayload)

	err = wirejson.Unmarshal(data, gatewayPayload)
	if err != nil {
		shard.gatewayPayloadPool.Put(gatewayPayload)

		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return gatewayPayload, nil
}

// decompress inflates one frame of the connection's zlib stream. The
// inflate context is shared across frames, so frames must be fed in wire
// order. Binary frames are only valid once compression was negotiated.
func (shard *Shard) decompress(frame []byte) ([]byte, error) {
	if shard.decompressor == nil {
		return nil, fmt.Errorf("received binary frame without negotiated compression")
	}

	shard.decompressor.(czlib.Resetter).Reset(bytes.NewReader(frame))

	data, err := io.ReadAll(shard.decompressor)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}

	return data, nil
}

// OnEvent routes a payload to its opcode handler. Unknown opcodes are
// ignored so future protocol additions do not break the shard.
func (shard *Shard) OnEvent(ctx context.Context, msg *discord.GatewayPayload, trace *Trace) error {
	if f, ok := gatewayEvents[msg.Op]; ok {
		return f(ctx, shard, msg, trace)
	}

	shard.logger.Debug("Received unknown opcode", "op", msg.Op)

	return nil
}

func (shard *Shard) OnDispatch(ctx context.Context, msg *discord.GatewayPayload, trace *Trace) error {
	defer func() {
		if r := recover(); r != nil {
			if shard.skiff.panicHandler != nil {
				shard.skiff.panicHandler(shard.skiff, r)
			}
		}
	}()

	err := shard.skiff.dispatch(ctx, shard, msg, trace)
	if err != nil {
		shard.logger.Error("Failed to dispatch event", "error", err)
	}

	return nil
}

// sendLoop consumes the shard's mailbox. Commands received before the
// session is ready wait in a pending queue and flush once READY or
// RESUMED lands. On shutdown, everything still queued is failed with
// ErrMailboxDropped.
func (shard *Shard) sendLoop(ctx context.Context) {
	pending := make([]*shardCommand, 0)

	drain := func() {
		for _, cmd := range pending {
			cmd.fail(ErrMailboxDropped)
		}

		pending = pending[:0]

		for {
			select {
			case cmd := <-shard.mailbox:
				cmd.fail(ErrMailboxDropped)
			default:
				return
			}
		}
	}

	deliver := func(cmd *shardCommand) {
		cmd.complete(shard.SendEvent(ctx, cmd.op, cmd.data))
	}

	for {
		select {
		case <-ctx.Done():
			drain()

			return
		case <-shard.stopSend:
			drain()

			return
		case <-shard.flushSignal:
			for _, cmd := range pending {
				deliver(cmd)
			}

			pending = pending[:0]
		case cmd := <-shard.mailbox:
			if shard.readyForSend.Load() {
				deliver(cmd)
			} else {
				pending = append(pending, cmd)
			}
		}
	}
}

// enqueue hands a command to the send loop without blocking the caller.
func (shard *Shard) enqueue(cmd *shardCommand) error {
	select {
	case <-shard.stopSend:
		return ErrMailboxDropped
	default:
	}

	select {
	case shard.mailbox <- cmd:
		return nil
	default:
		return ErrMailboxFull
	}
}

func (shard *Shard) chunkAllGuilds(ctx context.Context) chan struct{} {
	shard.logger.Debug("Chunking all guilds")

	done := make(chan struct{})

	go func() {
		guildIDs := make([]discord.Snowflake, 0)

		shard.guilds.Range(func(key discord.Snowflake, _ bool) bool {
			guildIDs = append(guildIDs, key)

			return true
		})

		shard.logger.Debug("Chunking all guilds", "count", len(guildIDs))

		for _, guildID := range guildIDs {
			err := shard.chunkGuild(ctx, guildID, false)
			if err != nil {
				shard.logger.Error("Failed to chunk guild", "error", err)
			}
		}

		shard.logger.Debug("Chunked all guilds")

		close(done)
	}()

	return done
}

func (shard *Shard) chunkGuild(ctx context.Context, guildID discord.Snowflake, always bool) error {
	shard.logger.Debug("Chunking guild", "guild_id", guildID)

	guildChunk, ok := shard.skiff.guildChunks.Load(guildID)
	if !ok {
		guildChunk = &GuildChunk{
			chunkingChannel: make(chan GuildChunkPartial),
		}

		shard.skiff.guildChunks.Store(guildID, guildChunk)
	}

	guildChunk.complete.Store(false)

	now := time.Now()
	guildChunk.startedAt.Store(&now)

	var cachedMembers int

	if guild, ok := shard.skiff.cache.Guild(guildID); ok {
		cachedMembers = len(guild.Members)

		if always || int(guild.MemberCount) > cachedMembers {
			nonce := randomHex(16)

			err := shard.SendEvent(ctx, discord.GatewayOpRequestGuildMembers, discord.RequestGuildMembers{
				GuildID: guildID,
				Nonce:   nonce,
			})
			if err != nil {
				return fmt.Errorf("failed to request guild members: %w", err)
			}

			var chunksReceived, totalChunks int32

			timeout := time.NewTimer(MemberChunkTimeout)

		guildChunkLoop:
			for {
				select {
				case guildChunkPartial := <-guildChunk.chunkingChannel:
					if guildChunkPartial.nonce != nonce {
						continue
					}

					chunksReceived++
					totalChunks = guildChunkPartial.chunkCount

					timeout.Reset(MemberChunkTimeout)

					if chunksReceived >= totalChunks {
						break guildChunkLoop
					}
				case <-timeout.C:
					shard.logger.Error("Timeout while waiting for guild members", "guild_id", guildID)

					break guildChunkLoop
				}
			}

			timeout.Stop()
		}
	}

	guildChunk.complete.Store(true)

	now = time.Now()
	guildChunk.completedAt.Store(&now)

	shard.logger.Debug("Chunked guild", "guild_id", guildID)

	return nil
}

package skiff

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	csmap "github.com/mhmtszr/concurrent-swiss-map"
	"github.com/skiff-works/skiff/discord"
	"github.com/skiff-works/skiff/pkg/syncmap"
	"github.com/skiff-works/skiff/pkg/wirejson"
)

// ShardManager owns the shard topology of one bot token: it resolves the
// gateway bootstrap, starts and stops shards, routes guilds to shards and
// tracks the one-shot ShardsReady signal.
type ShardManager struct {
	logger *slog.Logger

	skiff         *Skiff
	configuration atomic.Pointer[Configuration]

	gateway                    atomic.Pointer[discord.GatewayBotResponse]
	sessionStartLimitRemaining atomic.Int32

	user atomic.Pointer[discord.User]

	producer Producer

	shardCount atomic.Int32

	shards    *syncmap.Map[int32, *Shard]
	connected *csmap.CsMap[int32, bool]

	// ShardsReady fires at most once per topology. Resharding resets it.
	shardsReadySent    atomic.Bool
	pendingShardsReady atomic.Bool

	resharding atomic.Bool

	startedAt atomic.Pointer[time.Time]

	status atomic.Int32
}

func NewShardManager(skiff *Skiff, configuration *Configuration) *ShardManager {
	manager := &ShardManager{
		logger: skiff.logger.With("component", "shard_manager"),

		skiff: skiff,

		shards:    &syncmap.Map[int32, *Shard]{},
		connected: csmap.Create[int32, bool](),
	}

	manager.configuration.Store(configuration)

	manager.setStatus(ManagerStatusIdle)

	return manager
}

func (manager *ShardManager) setStatus(status ManagerStatus) {
	UpdateManagerStatus(status)
	manager.status.Store(int32(status))
	manager.logger.Info("Manager status updated", "status", status.String())
}

func (manager *ShardManager) Status() ManagerStatus {
	return ManagerStatus(manager.status.Load())
}

// SetUser stores the authenticated user and refreshes per-shard metadata
// when the identity changes.
func (manager *ShardManager) SetUser(user *discord.User) {
	existingUser := manager.user.Load()
	manager.user.Store(user)

	if existingUser != nil && existingUser.ID == user.ID {
		return
	}

	manager.logger.Debug("Manager user updated", "user", user.Username)

	configuration := manager.configuration.Load()

	manager.shards.Range(func(_ int32, shard *Shard) bool {
		shard.setMetadata(configuration)

		return true
	})
}

// Initialize fetches the gateway bootstrap and binds the producer. It must
// run before Start.
func (manager *ShardManager) Initialize(ctx context.Context) error {
	manager.logger.Debug("Initializing manager")

	manager.skiff.gatewayLimiter.Lock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discord.EndpointGatewayBot, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	configuration := manager.configuration.Load()

	req.Header.Set("Authorization", "Bot "+configuration.BotToken)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := manager.skiff.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to do request: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway bootstrap returned status %d", resp.StatusCode)
	}

	var gatewayBotResponse discord.GatewayBotResponse

	if err := wirejson.UnmarshalReader(resp.Body, &gatewayBotResponse); err != nil {
		return fmt.Errorf("failed to decode gateway bot response: %w", err)
	}

	manager.gateway.Store(&gatewayBotResponse)
	manager.sessionStartLimitRemaining.Store(gatewayBotResponse.SessionStartLimit.Remaining)

	clientName := configuration.ClientName

	if configuration.IncludeRandomSuffix {
		clientName = fmt.Sprintf("%s-%s", clientName, randomHex(8))
	}

	producer, err := manager.skiff.producerProvider.GetProducer(ctx, clientName)
	if err != nil {
		return fmt.Errorf("failed to get producer: %w", err)
	}

	manager.producer = producer

	manager.logger.Debug("Manager initialized",
		"recommended_shards", gatewayBotResponse.Shards,
		"session_start_limit_remaining", gatewayBotResponse.SessionStartLimit.Remaining,
	)

	return nil
}

// gatewayURL returns the websocket URL from the bootstrap, falling back to
// the well-known default.
func (manager *ShardManager) gatewayURL() string {
	if gateway := manager.gateway.Load(); gateway != nil && gateway.URL != "" {
		return gateway.URL
	}

	return gatewayURL.String()
}

func (manager *ShardManager) Start(ctx context.Context) error {
	manager.logger.Info("Starting manager")

	manager.setStatus(ManagerStatusStarting)

	configuration := manager.configuration.Load()

	shardIDs, shardCount := manager.getInitialShardCount(
		configuration.ShardCount,
		configuration.ShardIDs,
		configuration.AutoSharded,
	)

	manager.logger.Debug("Initializing shards", "shard_count", shardCount, "shard_ids", shardIDs)

	ready, err := manager.startShards(ctx, shardIDs, shardCount)
	if err != nil {
		manager.logger.Error("Failed to start shards", "error", err)

		manager.setStatus(ManagerStatusFailed)

		return fmt.Errorf("failed to start: %w", err)
	}

	<-ready

	manager.setStatus(ManagerStatusReady)

	return nil
}

func (manager *ShardManager) Stop(ctx context.Context) error {
	manager.setStatus(ManagerStatusStopping)

	manager.shards.Range(func(_ int32, shard *Shard) bool {
		shard.Stop(ctx, websocket.StatusNormalClosure)

		return true
	})

	if manager.producer != nil {
		manager.producer.Close()
	}

	manager.setStatus(ManagerStatusStopped)

	return nil
}

// getInitialShardCount resolves the shard ids and count from either the
// gateway's recommendation or the configured topology.
func (manager *ShardManager) getInitialShardCount(customShardCount int32, customShardIDs string, autoSharded bool) ([]int32, int32) {
	var shardCount int32

	if autoSharded {
		shardCount = manager.gateway.Load().Shards
	} else {
		shardCount = customShardCount
	}

	var shardIDs []int32

	if customShardIDs == "" {
		for i := range shardCount {
			shardIDs = append(shardIDs, i)
		}
	} else {
		shardIDs = returnRangeInt32(customShardIDs, shardCount)
	}

	return shardIDs, shardCount
}

func (manager *ShardManager) startShards(ctx context.Context, shardIDs []int32, shardCount int32) (ready chan struct{}, err error) {
	manager.logger.Info("Starting shards", "shard_count", shardCount, "shard_ids", shardIDs)

	ready = make(chan struct{})

	now := time.Now()
	manager.startedAt.Store(&now)

	manager.shardCount.Store(shardCount)
	manager.skiff.cache.shardCount.Store(shardCount)

	if len(shardIDs) == 0 {
		manager.logger.Error("No shards to start")

		return ready, ErrMissingShards
	}

	// Kill any shards from a previous topology.
	manager.shards.Range(func(shardID int32, shard *Shard) bool {
		shard.Stop(ctx, websocket.StatusNormalClosure)
		manager.shards.Delete(shardID)

		return true
	})

	manager.connected = csmap.Create[int32, bool]()
	manager.shardsReadySent.Store(false)
	manager.pendingShardsReady.Store(false)

	for _, shardID := range shardIDs {
		shard := NewShard(manager.skiff, manager, shardID)

		manager.shards.Store(shardID, shard)
	}

	manager.setStatus(ManagerStatusConnecting)

	// The first shard connects alone so identify failures (bad token,
	// disallowed intents) surface before the rest of the fleet dials.
	initialShard, _ := manager.shards.Load(shardIDs[0])

	if err := initialShard.ConnectWithRetry(ctx); err != nil {
		manager.logger.Error("Failed to connect to initial shard", "error", err)

		return ready, fmt.Errorf("failed to connect to initial shard: %w", err)
	}

	go initialShard.Start(ctx)

	if err := initialShard.WaitForReady(); err != nil {
		manager.logger.Error("Failed to wait for initial shard", "error", err)

		return ready, fmt.Errorf("failed to wait for initial shard: %w", err)
	}

	manager.logger.Debug("Initial shard connected", "shard_id", shardIDs[0])

	manager.setStatus(ManagerStatusConnected)

	openWg := sync.WaitGroup{}

	for _, shardID := range shardIDs[1:] {
		shard, ok := manager.shards.Load(shardID)
		if !ok {
			continue
		}

		openWg.Add(1)

		go func(shard *Shard) {
			defer openWg.Done()

			if err := shard.ConnectWithRetry(ctx); err != nil {
				return
			}

			go shard.Start(ctx)
		}(shard)
	}

	openWg.Wait()

	manager.logger.Debug("All shards connected")

	initialShardID := shardIDs[0]

	go func() {
		manager.shards.Range(func(shardID int32, shard *Shard) bool {
			if shardID == initialShardID {
				return true
			}

			shard.WaitForReady()

			return true
		})

		close(ready)
	}()

	return ready, nil
}

// Shard returns a shard by id.
func (manager *ShardManager) Shard(shardID int32) (*Shard, error) {
	shard, ok := manager.shards.Load(shardID)
	if !ok {
		return nil, ErrShardNotFound
	}

	return shard, nil
}

// ShardForGuild returns the shard a guild's events arrive on, using the
// gateway routing formula.
func (manager *ShardManager) ShardForGuild(guildID discord.Snowflake) (*Shard, error) {
	shardCount := manager.shardCount.Load()
	if shardCount <= 0 {
		return nil, ErrMissingShards
	}

	return manager.Shard(guildID.ShardID(shardCount))
}

// ShardCount returns the total shard count of the running topology.
func (manager *ShardManager) ShardCount() int32 {
	return manager.shardCount.Load()
}

// markShardReady records a shard reaching ready. When every managed shard
// has been ready at least once, the one-shot ShardsReady signal is armed.
func (manager *ShardManager) markShardReady(shardID int32) {
	manager.connected.Store(shardID, true)

	if manager.connected.Count() >= manager.shards.Count() {
		if manager.shardsReadySent.CompareAndSwap(false, true) {
			manager.pendingShardsReady.Store(true)
		}
	}
}

// takePendingShardsReady consumes the one-shot ShardsReady signal.
func (manager *ShardManager) takePendingShardsReady() bool {
	return manager.pendingShardsReady.CompareAndSwap(true, false)
}

// Reshard tears the topology down and restarts it against the gateway's
// current shard recommendation. Triggered by a 4011 close.
func (manager *ShardManager) Reshard(ctx context.Context) error {
	if !manager.resharding.CompareAndSwap(false, true) {
		return nil
	}
	defer manager.resharding.Store(false)

	manager.logger.Warn("Resharding; fetching new topology")

	if err := manager.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop for reshard: %w", err)
	}

	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize for reshard: %w", err)
	}

	configuration := manager.configuration.Load()

	shardIDs, shardCount := manager.getInitialShardCount(
		configuration.ShardCount,
		configuration.ShardIDs,
		true,
	)

	ready, err := manager.startShards(ctx, shardIDs, shardCount)
	if err != nil {
		manager.setStatus(ManagerStatusFailed)

		return fmt.Errorf("failed to restart shards: %w", err)
	}

	<-ready

	manager.setStatus(ManagerStatusReady)

	return nil
}

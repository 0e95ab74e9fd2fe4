package skiff

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	csmap "github.com/mhmtszr/concurrent-swiss-map"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skiff-works/skiff/discord"
	"github.com/skiff-works/skiff/pkg/limiter"
)

var Version = "0.1.0"

// Skiff is the top-level gateway client: one bot token, one shard
// topology, one cache.
type Skiff struct {
	logger *slog.Logger

	configProvider ConfigProvider
	config         atomic.Pointer[Configuration]

	eventHandler EventHandler
	rawHandler   RawEventHandler
	voiceHandler VoiceHandler

	identifyProvider IdentifyProvider
	producerProvider ProducerProvider
	dedupeProvider   DedupeProvider

	client *http.Client

	gatewayLimiter *limiter.DurationLimiter

	cache      *Cache
	collectors *CollectorRegistry
	manager    *ShardManager

	guildChunks *csmap.CsMap[discord.Snowflake, *GuildChunk]

	diagnostics chan Diagnostic

	panicHandler PanicHandler
}

type PanicHandler func(skiff *Skiff, r any)

// Diagnostic is a shard failure surfaced to the embedding application.
type Diagnostic struct {
	ShardID int32
	Err     error
	At      time.Time
}

// GuildChunk tracks an in-flight member chunking request for one guild.
type GuildChunk struct {
	complete        atomic.Bool
	chunkingChannel chan GuildChunkPartial
	startedAt       atomic.Pointer[time.Time]
	completedAt     atomic.Pointer[time.Time]
}

type GuildChunkPartial struct {
	chunkIndex int32
	chunkCount int32
	nonce      string
}

func NewSkiff(logger *slog.Logger, configProvider ConfigProvider, client *http.Client, eventHandler EventHandler) *Skiff {
	return &Skiff{
		logger: logger,

		configProvider: configProvider,

		eventHandler: eventHandler,

		identifyProvider: NewIdentifyViaBuckets(),
		producerProvider: NewNoopProducerProvider(),
		dedupeProvider:   NewInMemoryDedupeProvider(),

		client: client,

		// One /gateway/bot call per second across the process.
		gatewayLimiter: limiter.NewDurationLimiter(1, time.Second),

		collectors: NewCollectorRegistry(),

		guildChunks: csmap.Create[discord.Snowflake, *GuildChunk](),

		diagnostics: make(chan Diagnostic, 64),
	}
}

func (s *Skiff) WithRawEventHandler(rawHandler RawEventHandler) *Skiff {
	s.rawHandler = rawHandler

	return s
}

func (s *Skiff) WithVoiceHandler(voiceHandler VoiceHandler) *Skiff {
	s.voiceHandler = voiceHandler

	return s
}

func (s *Skiff) WithIdentifyProvider(identifyProvider IdentifyProvider) *Skiff {
	s.identifyProvider = identifyProvider

	return s
}

func (s *Skiff) WithProducerProvider(producerProvider ProducerProvider) *Skiff {
	s.producerProvider = producerProvider

	return s
}

func (s *Skiff) WithDedupeProvider(dedupeProvider DedupeProvider) *Skiff {
	s.dedupeProvider = dedupeProvider

	return s
}

func (s *Skiff) WithPanicHandler(panicHandler PanicHandler) *Skiff {
	s.panicHandler = panicHandler

	return s
}

func (s *Skiff) WithPrometheusAnalytics(
	server *http.Server,
	registry *prometheus.Registry,
	opts promhttp.HandlerOpts,
) *Skiff {
	if registry == nil {
		registry = prometheus.NewPedanticRegistry()
	}

	registry.MustRegister(
		EventMetrics.EventsTotal,
		EventMetrics.GatewayLatency,

		ShardMetrics.ManagerStatus,
		ShardMetrics.ShardStatus,

		CacheMetrics.Guilds,
		CacheMetrics.UnavailableGuilds,
		CacheMetrics.Channels,
		CacheMetrics.Members,
		CacheMetrics.Roles,
		CacheMetrics.Users,
		CacheMetrics.Messages,
		CacheMetrics.VoiceStates,
		CacheMetrics.Presences,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, opts))

	server.Handler = mux

	go func() {
		s.logger.Info("Starting Prometheus HTTP server", "host", server.Addr)

		var err error

		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			panic(fmt.Errorf("failed to start Prometheus HTTP server: %w", err))
		}
	}()

	return s
}

// Cache exposes the decoded state snapshot view.
func (s *Skiff) Cache() *Cache {
	return s.cache
}

// Collectors exposes the collector registry for AwaitEvent-style waits.
func (s *Skiff) Collectors() *CollectorRegistry {
	return s.collectors
}

// Manager exposes the shard manager. Nil before Start.
func (s *Skiff) Manager() *ShardManager {
	return s.manager
}

// Diagnostics is a bounded feed of shard failures. Slow consumers lose
// entries rather than blocking shards.
func (s *Skiff) Diagnostics() <-chan Diagnostic {
	return s.diagnostics
}

// Start resolves configuration, builds the cache and topology and blocks
// until every shard is ready or startup fails.
func (s *Skiff) Start(ctx context.Context) error {
	s.logger.Info("Starting skiff")

	if err := s.getConfig(ctx); err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	if s.client == nil {
		s.client = http.DefaultClient
	}

	configuration := s.config.Load()

	s.cache = NewCache(s.logger, configuration.MaxMessages)

	s.manager = NewShardManager(s, configuration)

	if err := s.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize shard manager: %w", err)
	}

	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start shard manager: %w", err)
	}

	return nil
}

func (s *Skiff) Stop(ctx context.Context) error {
	s.logger.Info("Stopping skiff")

	s.collectors.Close()

	if s.manager != nil {
		if err := s.manager.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop shard manager: %w", err)
		}
	}

	return nil
}

func (s *Skiff) getConfig(ctx context.Context) error {
	configuration, err := s.configProvider.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to get configuration: %w", err)
	}

	if err := configuration.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.config.Store(configuration)

	return nil
}

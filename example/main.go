package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skiff-works/skiff"
	"github.com/skiff-works/skiff/discord"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	go func() {
		http.ListenAndServe(":6060", nil)
	}()

	intents, _ := strconv.ParseInt(os.Getenv("DISCORD_INTENTS"), 10, 64)
	if intents == 0 {
		intents = int64(discord.IntentGuilds | discord.IntentGuildMessages | discord.IntentGuildMembers)
	}

	maxMessages, _ := strconv.ParseInt(os.Getenv("SKIFF_MAX_MESSAGES"), 10, 32)

	configProvider := skiff.NewConfigProviderStatic(&skiff.Configuration{
		BotToken: os.Getenv("DISCORD_TOKEN"),
		Intents:  discord.GatewayIntent(intents),

		AutoSharded: true,

		MaxMessages: int32(maxMessages),

		ClientName: "skiff-example",
	})

	client := skiff.NewProxyClient(*http.DefaultClient, url.URL{
		Scheme: "https",
		Host:   "discord.com",
	})

	handler := skiff.EventHandlerFunc(func(_ context.Context, eventCtx *skiff.EventContext, event *skiff.FullEvent) {
		switch event.Type {
		case skiff.EventCacheReady:
			cacheReady := event.Event.(skiff.CacheReady)

			eventCtx.Logger.Info("Cache ready", "guilds", len(cacheReady.Guilds))
		case skiff.EventShardsReady:
			shardsReady := event.Event.(skiff.ShardsReady)

			eventCtx.Logger.Info("All shards ready", "shard_count", shardsReady.ShardCount)
		case discord.EventMessageCreate:
			message := event.Event.(*discord.Message)

			eventCtx.Logger.Debug("Message received",
				"channel_id", message.ChannelID,
				"author", message.Author.Username,
			)
		case discord.EventGuildDelete:
			// PreImage carries the last cached snapshot of the guild.
			if guild, ok := event.PreImage.(*discord.Guild); ok && guild != nil {
				eventCtx.Logger.Info("Left guild", "guild", guild.Name)
			}
		}
	})

	client.Timeout = 20 * time.Second

	app := skiff.NewSkiff(
		logger,
		configProvider,
		client,
		handler,
	).WithPanicHandler(func(_ *skiff.Skiff, r any) {
		slog.Error("Panic occurred", "error", r)

		println(string(debug.Stack()))
	}).WithPrometheusAnalytics(
		&http.Server{
			Addr:              ":10000",
			WriteTimeout:      time.Second * 10,
			ReadTimeout:       time.Second * 10,
			ReadHeaderTimeout: time.Second * 10,
			IdleTimeout:       time.Second * 10,
			ErrorLog:          slog.NewLogLogger(slog.With("service", "prometheus").Handler(), slog.LevelError),
		},
		prometheus.NewPedanticRegistry(),
		promhttp.HandlerOpts{},
	)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		for diagnostic := range app.Diagnostics() {
			logger.Warn("Shard diagnostic",
				"shard_id", diagnostic.ShardID,
				"error", diagnostic.Err,
				"at", diagnostic.At,
			)
		}
	}()

	if err := app.Start(ctx); err != nil {
		panic(fmt.Errorf("failed to start skiff: %w", err))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	app.Stop(ctx)

	cancel()
}

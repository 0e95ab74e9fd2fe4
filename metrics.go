package skiff

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventMetrics tracks event-related metrics.
var EventMetrics = struct {
	EventsTotal    *prometheus.CounterVec
	GatewayLatency *prometheus.GaugeVec
}{
	EventsTotal: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skiff_events_total",
			Help: "Total number of events processed, split by shard and event type",
		},
		[]string{"shard_id", "event_type"},
	),
	GatewayLatency: promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skiff_gateway_latency_seconds",
			Help: "Gateway latency in seconds, measured by heartbeat",
		},
		[]string{"shard_id"},
	),
}

func RecordEvent(shardID int32, eventType string) {
	EventMetrics.EventsTotal.WithLabelValues(strconv.Itoa(int(shardID)), eventType).Inc()
}

func UpdateGatewayLatency(shardID int32, latency float64) {
	EventMetrics.GatewayLatency.WithLabelValues(strconv.Itoa(int(shardID))).Set(latency)
}

// ShardMetrics tracks shard-related metrics.
var ShardMetrics = struct {
	ManagerStatus *prometheus.GaugeVec
	ShardStatus   *prometheus.GaugeVec
}{
	ManagerStatus: promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skiff_manager_status",
			Help: "Status of the shard manager",
		},
		[]string{},
	),
	ShardStatus: promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skiff_shard_status",
			Help: "Status of the shard",
		},
		[]string{"shard_id"},
	),
}

func UpdateManagerStatus(status ManagerStatus) {
	ShardMetrics.ManagerStatus.WithLabelValues().Set(float64(status))
}

func UpdateShardStatus(shardID int32, status ShardStatus) {
	ShardMetrics.ShardStatus.WithLabelValues(strconv.Itoa(int(shardID))).Set(float64(status))
}

// CacheMetrics tracks cache population.
var CacheMetrics = struct {
	Guilds            prometheus.Gauge
	UnavailableGuilds prometheus.Gauge
	Channels          prometheus.Gauge
	Members           prometheus.Gauge
	Roles             prometheus.Gauge
	Users             prometheus.Gauge
	Messages          prometheus.Gauge
	VoiceStates       prometheus.Gauge
	Presences         prometheus.Gauge
}{
	Guilds: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skiff_cache_guilds",
			Help: "Total number of guilds in cache",
		},
	),
	UnavailableGuilds: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skiff_cache_unavailable_guilds",
			Help: "Number of currently unavailable guilds",
		},
	),
	Channels: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skiff_cache_channels",
			Help: "Total number of channels in cache",
		},
	),
	Members: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skiff_cache_members",
			Help: "Total number of guild members in cache",
		},
	),
	Roles: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skiff_cache_roles",
			Help: "Total number of guild roles in cache",
		},
	),
	Users: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skiff_cache_users",
			Help: "Total number of users in cache",
		},
	),
	Messages: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skiff_cache_messages",
			Help: "Total number of cached messages",
		},
	),
	VoiceStates: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skiff_cache_voice_states",
			Help: "Total number of voice states in cache",
		},
	),
	Presences: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skiff_cache_presences",
			Help: "Total number of presences in cache",
		},
	),
}

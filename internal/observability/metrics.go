package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "accord",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	channelSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "channel",
			Name:      "sends_total",
			Help:      "Frames handed to a channel, by outcome.",
		},
		[]string{"channel", "result"},
	)
	channelConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "channel",
			Name:      "connects_total",
			Help:      "Connections installed on a channel.",
		},
		[]string{"channel"},
	)
	channelDisconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "channel",
			Name:      "disconnects_total",
			Help:      "Connections torn down on a channel.",
		},
		[]string{"channel"},
	)
	relayFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "relay",
			Name:      "frames_total",
			Help:      "Frames read from the upstream producer, by forward outcome.",
		},
		[]string{"result"},
	)
	relaySessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "relay",
			Name:      "upstream_sessions_total",
			Help:      "Upstream producer connections served.",
		},
	)
	producerTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "producer",
			Name:      "ticks_total",
			Help:      "Producer ticks, by outcome.",
		},
		[]string{"result"},
	)
	viewerFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "viewer",
			Name:      "frames_total",
			Help:      "Frames decoded and stored by the viewer.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			channelSends,
			channelConnects,
			channelDisconnects,
			relayFrames,
			relaySessions,
			producerTicks,
			viewerFrames,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordChannelSend(channel, result string) {
	channelSends.WithLabelValues(channel, result).Inc()
}

func RecordChannelConnect(channel string) {
	channelConnects.WithLabelValues(channel).Inc()
}

func RecordChannelDisconnect(channel string) {
	channelDisconnects.WithLabelValues(channel).Inc()
}

func RecordRelayFrame(result string) {
	relayFrames.WithLabelValues(result).Inc()
}

func RecordRelaySession() {
	relaySessions.Inc()
}

func RecordProducerTick(result string) {
	producerTicks.WithLabelValues(result).Inc()
}

func RecordViewerFrame() {
	viewerFrames.Inc()
}

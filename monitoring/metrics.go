package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	credentialsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credentials_issued_total",
			Help: "Total ticket credentials issued per event",
		},
		[]string{"event_id"},
	)

	scanResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_results_total",
			Help: "Total scan attempts by outcome",
		},
		[]string{"event_id", "result"},
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Duration of scan verification",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"result"},
	)

	escrowReleases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_releases_total",
			Help: "Escrow release attempts by outcome",
		},
		[]string{"status"},
	)

	acceptedScans = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "accepted_scans_current",
			Help: "Accepted scans per event, sampled from Redis counters",
		},
		[]string{"event_id"},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectScanMetrics(context.Background())
	}
}

func (m *Monitor) collectScanMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "scans:accepted:*").Result()
	for _, key := range keys {
		eventID := key[len("scans:accepted:"):]
		count, _ := m.redis.Get(ctx, key).Int64()
		acceptedScans.WithLabelValues(eventID).Set(float64(count))
	}
}

// TrackIssued counts an issued credential.
func TrackIssued(eventID string) {
	credentialsIssued.WithLabelValues(eventID).Inc()
}

// TrackScan counts a scan outcome and observes its duration.
func TrackScan(eventID, result string, duration time.Duration) {
	scanResults.WithLabelValues(eventID, result).Inc()
	scanDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// TrackEscrowRelease counts a release attempt outcome.
func TrackEscrowRelease(status string) {
	escrowReleases.WithLabelValues(status).Inc()
}

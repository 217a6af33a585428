package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"playrelay/internal/logging"
)

const namespace = "playrelay"

var (
	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "polls_total",
		Help:      "Session API polls by result.",
	}, []string{"result"})

	Published = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "published_total",
		Help:      "Track events acknowledged by the partition leader.",
	})
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_failures_total",
		Help:      "Track events dropped because the publish failed.",
	})

	Consumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumed_total",
		Help:      "Messages pulled from the broker.",
	})
	Skipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skipped_total",
		Help:      "Messages skipped because the payload was malformed.",
	})
	SinkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_failures_total",
		Help:      "Store writes that failed; their offsets were not committed.",
	})
	Commits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_total",
		Help:      "Records whose offsets were committed after the store acknowledged them.",
	})
	CommitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commit_failures_total",
		Help:      "Offset commits rejected by the broker.",
	})
	CommitsHeld = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_held_total",
		Help:      "Stored records left uncommitted because an earlier write in their partition failed.",
	})
	PullErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pull_errors_total",
		Help:      "Per-partition fetch errors returned by a pull.",
	})
	AssignedPartitions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "assigned_partitions",
		Help:      "Partitions currently owned by this group member.",
	})
)

// Expose serves /metrics on addr until ctx is done. An empty addr disables it.
func Expose(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics listener stopped", "addr", addr, "err", err)
		}
	}()
}

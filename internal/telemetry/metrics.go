package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flume/internal/logging"
)

var (
	ChunksIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flume",
		Name:      "stage_chunks_in_total",
		Help:      "Chunks handed to a transform stage.",
	}, []string{"stage"})

	ChunksOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flume",
		Name:      "stage_chunks_out_total",
		Help:      "Chunks emitted by a transform stage, pushed or returned.",
	}, []string{"stage"})

	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flume",
		Name:      "stage_failures_total",
		Help:      "Transform or flush calls that failed the stage.",
	}, []string{"stage", "phase"})

	Flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flume",
		Name:      "stage_flushes_total",
		Help:      "Completed flush calls.",
	}, []string{"stage"})

	Latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flume",
		Name:      "stage_call_seconds",
		Help:      "Duration of one transform call.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"stage"})

	SinkFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flume",
		Name:      "sink_frames_total",
		Help:      "Frames pushed to a sink.",
	}, []string{"sink"})
)

// ObserveCall records one transform call for stage.
func ObserveCall(stage string, started time.Time, emitted int, err error) {
	ChunksIn.WithLabelValues(stage).Inc()
	Latency.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	if err != nil {
		Failures.WithLabelValues(stage, "transform").Inc()
		return
	}
	ChunksOut.WithLabelValues(stage).Add(float64(emitted))
}

// ObserveFlush records one flush call for stage.
func ObserveFlush(stage string, emitted int, err error) {
	if err != nil {
		Failures.WithLabelValues(stage, "flush").Inc()
		return
	}
	Flushes.WithLabelValues(stage).Inc()
	ChunksOut.WithLabelValues(stage).Add(float64(emitted))
}

// Expose serves /metrics on port in the background. A port <= 0 disables it.
func Expose(port int) *http.Server {
	if port <= 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics server stopped", "err", err)
		}
	}()
	return srv
}

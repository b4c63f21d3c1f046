package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-historian/internal/pointvalue"
)

const (
	// statsInterval is how often store statistics are published over MQTT.
	statsInterval = 30 * time.Second

	// metricsShutdownTimeout bounds the metrics listener shutdown.
	metricsShutdownTimeout = 5 * time.Second
)

// metricsRouter serves Prometheus metrics and a liveness probe.
func metricsRouter(health func(context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// serveMetrics runs the metrics listener until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, health func(context.Context) error, log *logging.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening for metrics on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           metricsRouter(health),
		ReadHeaderTimeout: metricsShutdownTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("error closing metrics listener", "error", err)
		}
	}()

	log.Info("metrics listener started", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}

// statsPublisher is the MQTT surface used to publish store statistics.
type statsPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// publishStats publishes store statistics as retained JSON every interval
// until ctx is cancelled. Failures are logged and the loop continues.
func publishStats(ctx context.Context, pub statsPublisher, topic string, stats func() pointvalue.Stats, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(stats())
			if err != nil {
				log.Error("marshalling store stats", "error", err)
				continue
			}
			if err := pub.PublishRetained(topic, payload); err != nil {
				log.Warn("publishing store stats", "topic", topic, "error", err)
			}
		}
	}
}

package main

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircat_connections_accepted_total",
		Help: "TCP connections accepted.",
	})

	metricMessagesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircat_messages_dispatched_total",
		Help: "Protocol messages dispatched to command handlers.",
	})

	metricUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ircat_users",
		Help: "Registered users currently connected.",
	})

	metricChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ircat_channels",
		Help: "Channels currently in existence.",
	})
)

// serveMetrics exposes Prometheus metrics on the given address. Metrics
// are best effort; a broken metrics listener must not take the server
// down.
func (s *Server) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("Metrics listener failed: %s", err)
		}
	}()

	go func() {
		<-s.ShutdownChan
		_ = srv.Close()
	}()

	log.Printf("Serving metrics on %s", addr)
}

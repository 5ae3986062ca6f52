package app

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"peerchat/internal/domain"
	"peerchat/internal/metrics"
	"peerchat/internal/netinfo"
	"peerchat/internal/services/session"
	"peerchat/internal/store"
)

// Wire bundles the long-lived dependencies for the CLI.
type Wire struct {
	Config   Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Collector
	Files    *store.DownloadStore
	NetInfo  *netinfo.Client
}

// NewWire constructs the dependency graph from cfg. Logs go to logOut.
func NewWire(cfg Config, logOut io.Writer) (*Wire, error) {
	logger, err := NewLogger(cfg.LogLevel, logOut)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Wire{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
		Files:    store.NewDownloadStore(cfg.DownloadDir),
		NetInfo:  netinfo.New(cfg.IPEndpoint),
	}, nil
}

// NewSession builds a session for token reporting to host.
func (w *Wire) NewSession(host domain.Host, token string) (*session.Session, error) {
	return session.New(w.Config.SessionOptions(token), host, w.Files, w.Logger, w.Metrics)
}

// MetricsHandler serves the registry.
func (w *Wire) MetricsHandler() http.Handler {
	return metrics.Handler(w.Registry)
}

// Package warden supervises a PersonaPlex voice-server process on behalf
// of the RunPod serverless platform: it launches the server, waits for it
// to accept connections, streams connection info back to the dispatcher,
// monitors health for the rest of the job, and shuts the server down when
// the job ends.
package warden

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/personaplex/warden/internal/config"
	"github.com/personaplex/warden/internal/env"
	"github.com/personaplex/warden/internal/history"
	"github.com/personaplex/warden/internal/history/factory"
	"github.com/personaplex/warden/internal/metrics"
	"github.com/personaplex/warden/internal/runpod"
	"github.com/personaplex/warden/internal/server"
	"github.com/personaplex/warden/internal/supervisor"
	"github.com/personaplex/warden/internal/tlsmat"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = config.Config

type Session = supervisor.Session

type SessionOptions = supervisor.Options

type ConnectionInfo = supervisor.ConnectionInfo

type Result = supervisor.Result

type Job = runpod.Job

// LoadConfig reads configuration from the environment, optionally merged
// with a TOML file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Warden ties one configuration to the collaborators each supervised
// session needs. It handles one job at a time.
type Warden struct {
	cfg    *config.Config
	logger *slog.Logger
	sink   history.Sink
	base   *env.Env

	active atomic.Pointer[supervisor.Session]
}

// New builds a Warden from cfg. It prepares the TLS material directory,
// opens the history sink, and caches the launch environment.
func New(cfg *config.Config, logger *slog.Logger) (*Warden, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := tlsmat.Ensure(cfg.SSLDir, cfg.AutoGenTLS); err != nil {
		return nil, err
	}
	sink, err := factory.NewSinkFromDSN(cfg.HistoryDSN)
	if err != nil {
		return nil, err
	}
	base := env.New()
	base.FromOS()
	return &Warden{cfg: cfg, logger: logger, sink: sink, base: base}, nil
}

// ActiveSession returns the session currently being supervised, or nil.
func (w *Warden) ActiveSession() *supervisor.Session { return w.active.Load() }

// newSession builds a supervised session for sessionID. onReady receives
// the connection payload once the server accepts connections.
func (w *Warden) newSession(sessionID string, onReady supervisor.ReadyFunc) *supervisor.Session {
	return supervisor.New(supervisor.Options{
		SessionID:        sessionID,
		Spec:             w.cfg.ServerSpec(),
		Env:              w.base,
		Port:             w.cfg.Port,
		ReadinessTimeout: w.cfg.ReadinessTimeout,
		HealthInterval:   w.cfg.HealthInterval,
		LivenessTimeout:  w.cfg.LivenessTimeout,
		RestartTimeout:   w.cfg.RestartTimeout,
		StopGrace:        w.cfg.StopGrace,
		PublicHost:       w.cfg.PublicHost(),
		PublicPort:       w.cfg.PublicPort(),
		OnReady:          onReady,
		History:          w.sink,
		Logger:           w.logger,
	})
}

// RunOnce supervises a single session outside the platform loop, for
// local runs and smoke tests. The connection payload is logged.
func (w *Warden) RunOnce(ctx context.Context, sessionID string) Result {
	sess := w.newSession(sessionID, func(info supervisor.ConnectionInfo) {
		w.logger.Info("connection info", "url", info.Connection.URL, "server_port", info.ServerPort)
	})
	w.active.Store(sess)
	defer w.active.Store(nil)
	return sess.Run(ctx)
}

// Handler returns the RunPod job handler: one supervised session per job,
// connection info streamed as a progress update, the session's terminal
// result as the job output.
func (w *Warden) Handler() runpod.HandlerFunc {
	return func(ctx context.Context, job *runpod.Job, progress runpod.ProgressFunc) any {
		sessionID := job.SessionID()
		sess := w.newSession(sessionID, func(info supervisor.ConnectionInfo) {
			progress(info)
		})
		w.active.Store(sess)
		defer w.active.Store(nil)
		return sess.Run(ctx)
	}
}

// ServeWorker runs the RunPod polling loop until ctx is cancelled.
func (w *Warden) ServeWorker(ctx context.Context) error {
	client := runpod.NewClient(runpod.ClientConfig{
		APIKey:       w.cfg.APIKey,
		PodID:        w.cfg.PodID,
		JobTakeURL:   w.cfg.JobTakeURL,
		JobDoneURL:   w.cfg.JobDoneURL,
		JobStreamURL: w.cfg.JobStreamURL,
		Logger:       w.logger,
	})
	worker := runpod.NewWorker(client, w.Handler(), w.cfg.PollInterval, w.logger)
	w.logger.Info("worker started", "concurrency", worker.Concurrency(), "port", w.cfg.Port, "cpu_offload", w.cfg.CPUOffload)
	return worker.Run(ctx)
}

// StartStatusServer exposes /healthz, /status and /metrics on the
// configured listen address. Returns nil when no address is configured.
func (w *Warden) StartStatusServer() *http.Server {
	if w.cfg.ListenAddr == "" {
		return nil
	}
	return server.NewServer(w.cfg.ListenAddr, w.ActiveSession)
}

// Metrics helpers (public facade).

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

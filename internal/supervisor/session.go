// Package supervisor owns the lifecycle of one PersonaPlex server
// process: launch, readiness wait, health monitoring with restart on
// unhealthy, and guaranteed graceful shutdown on every exit path.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/personaplex/warden/internal/env"
	"github.com/personaplex/warden/internal/history"
	"github.com/personaplex/warden/internal/metrics"
	"github.com/personaplex/warden/internal/probe"
	"github.com/personaplex/warden/internal/process"
)

// State is the monitor loop's current phase.
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateUnhealthy State = "unhealthy"
	StateExited    State = "exited"
	StateStopped   State = "stopped"
)

// ReadyFunc receives the connection payload once readiness succeeds.
type ReadyFunc func(info ConnectionInfo)

// Options are the immutable inputs for one supervision session.
type Options struct {
	SessionID string
	Spec      process.Spec
	Env       *env.Env

	Port             int
	ReadinessTimeout time.Duration
	HealthInterval   time.Duration
	LivenessTimeout  time.Duration
	RestartTimeout   time.Duration
	StopGrace        time.Duration

	PublicHost string
	PublicPort string

	OnReady ReadyFunc
	History history.Sink
	Logger  *slog.Logger
}

// Session supervises a single server instance for one job's lifetime.
// All control flow is strictly sequential; the only shared mutable state
// is the snapshot window read by the status endpoint.
type Session struct {
	opts   Options
	prober *probe.Prober
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	proc     *process.Process
	restarts int
}

// New constructs a Session. Zero timing options fall back to sane values
// only in tests; production wiring always fills them from config.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.History == nil {
		opts.History = history.NopSink{}
	}
	return &Session{
		opts:   opts,
		prober: probe.New("localhost", opts.Port),
		logger: opts.Logger.With("session_id", opts.SessionID),
		state:  StateStarting,
	}
}

// Run executes the full session: launch, readiness wait, connection-info
// report, monitor loop, shutdown. It always returns exactly one terminal
// Result and never panics across this boundary.
func (s *Session) Run(ctx context.Context) Result {
	s.logger.Info("starting server", "command", s.opts.Spec.CommandLine())

	proc, err := process.Launch(s.opts.Spec, s.launchEnv())
	if err != nil {
		s.logger.Error("server launch failed", "error", err)
		return StartFailure{Error: fmt.Sprintf("failed to start PersonaPlex server: %v", err)}
	}
	s.setProc(proc)
	metrics.IncLaunch(s.opts.SessionID)
	metrics.SetServerUp(s.opts.SessionID, true)
	s.record(history.EventLaunch, proc.PID(), nil, "")

	// Shutdown runs exactly once on every exit path out of Run.
	defer s.shutdown()

	s.logger.Info("waiting for server", "port", s.opts.Port, "timeout", s.opts.ReadinessTimeout)
	launchedAt := time.Now()
	if !s.prober.WaitReady(ctx, s.opts.ReadinessTimeout) {
		if ctx.Err() != nil {
			return s.cancelled()
		}
		s.logger.Error("server did not become ready", "timeout", s.opts.ReadinessTimeout)
		return StartFailure{Error: "PersonaPlex server failed to start within timeout"}
	}
	metrics.ObserveReadinessWait(s.opts.SessionID, time.Since(launchedAt).Seconds())
	s.record(history.EventReady, proc.PID(), nil, "")
	s.logger.Info("server is ready", "elapsed", time.Since(launchedAt))

	info := newConnectionInfo(s.opts.SessionID, s.opts.PublicHost, s.opts.PublicPort, s.opts.Port)
	if s.opts.OnReady != nil {
		s.opts.OnReady(info)
	}
	s.logger.Info("server running", "url", info.Connection.URL)

	return s.monitor(ctx)
}

// monitor is the main loop: every interval it first polls the exit code,
// then probes liveness, restarting the server when the probe fails.
func (s *Session) monitor(ctx context.Context) Result {
	s.setState(StateRunning)
	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.cancelled()
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return s.cancelled()
		}

		proc := s.currentProc()

		// Self-exit is terminal; no restart is attempted.
		if code, exited := proc.ExitCode(); exited {
			s.setState(StateExited)
			metrics.SetServerUp(s.opts.SessionID, false)
			s.record(history.EventExit, proc.PID(), &code, "")
			s.logger.Warn("server exited", "return_code", code)
			return StoppedResult{
				Status:     "stopped",
				Reason:     "server_exited",
				ReturnCode: code,
				SessionID:  s.opts.SessionID,
			}
		}

		if s.prober.WaitReady(ctx, s.opts.LivenessTimeout) {
			continue
		}
		if ctx.Err() != nil {
			continue // cancellation is picked up at the top of the loop
		}

		s.setState(StateUnhealthy)
		metrics.IncHealthCheckFailure(s.opts.SessionID)
		s.logger.Warn("health check failed, restarting server", "pid", proc.PID())
		if err := s.restart(ctx, proc); err != nil {
			s.setState(StateStopped)
			s.logger.Error("restart failed", "error", err)
			return ErrorResult{Status: "error", Error: err.Error(), SessionID: s.opts.SessionID}
		}
		s.setState(StateRunning)
	}
}

// cancelled records the external-cancellation terminal transition; the
// deferred shutdown still runs before Run returns.
func (s *Session) cancelled() Result {
	s.logger.Info("session cancelled")
	s.setState(StateStopped)
	return StoppedResult{Status: "stopped", Reason: "cancelled", SessionID: s.opts.SessionID}
}

// restart tears the old process down completely, launches a replacement,
// and waits for readiness with the restart window. A slow replacement is
// tolerated: the next liveness probe will flag it again if it never
// recovers. A failed launch is not.
func (s *Session) restart(ctx context.Context, old *process.Process) error {
	if err := old.Stop(s.opts.StopGrace); err != nil {
		s.logger.Warn("stop of unhealthy server reported error", "error", err)
	}
	metrics.IncStop(s.opts.SessionID)
	s.record(history.EventRestart, old.PID(), nil, "health check failed")

	proc, err := process.Launch(s.opts.Spec, s.launchEnv())
	if err != nil {
		metrics.SetServerUp(s.opts.SessionID, false)
		s.clearProc()
		return fmt.Errorf("relaunch server: %w", err)
	}
	s.setProc(proc)
	s.bumpRestarts()
	metrics.IncLaunch(s.opts.SessionID)
	metrics.IncRestart(s.opts.SessionID)

	if !s.prober.WaitReady(ctx, s.opts.RestartTimeout) {
		s.logger.Warn("restarted server not ready within window", "timeout", s.opts.RestartTimeout)
	}
	return nil
}

// shutdown is the guaranteed-cleanup path. It is idempotent, tolerates an
// already-exited process, and never lets a cleanup failure escape: this
// runs during unwind and must not mask the primary result.
func (s *Session) shutdown() {
	proc := s.currentProc()
	if proc == nil {
		return
	}
	if _, exited := proc.ExitCode(); exited {
		metrics.SetServerUp(s.opts.SessionID, false)
		return
	}
	s.logger.Info("shutting down server", "pid", proc.PID(), "grace", s.opts.StopGrace)
	if err := proc.Stop(s.opts.StopGrace); err != nil {
		s.logger.Error("server shutdown reported error", "error", err)
	}
	metrics.IncStop(s.opts.SessionID)
	metrics.SetServerUp(s.opts.SessionID, false)
	s.record(history.EventStop, proc.PID(), nil, "")
}

func (s *Session) launchEnv() []string {
	if s.opts.Env == nil {
		s.opts.Env = env.New()
	}
	return s.opts.Env.Merge(s.opts.Spec.Env)
}

// record exports a history event best-effort; export failures are logged
// and never disturb supervision.
func (s *Session) record(t history.EventType, pid int, exitCode *int, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now(),
		SessionID:  s.opts.SessionID,
		PID:        pid,
		Port:       s.opts.Port,
		ExitCode:   exitCode,
		Detail:     detail,
	}
	if err := s.opts.History.Send(ctx, e); err != nil {
		s.logger.Warn("history export failed", "event", string(t), "error", err)
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		metrics.SetSessionState(s.opts.SessionID, string(prev), false)
	}
	metrics.SetSessionState(s.opts.SessionID, string(st), true)
}

func (s *Session) setProc(p *process.Process) {
	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()
}

func (s *Session) clearProc() {
	s.mu.Lock()
	s.proc = nil
	s.mu.Unlock()
}

func (s *Session) currentProc() *process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

func (s *Session) bumpRestarts() {
	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
}

// Snapshot is read by the status endpoint while the session runs.
type Snapshot struct {
	SessionID string          `json:"session_id"`
	State     State           `json:"state"`
	Restarts  int             `json:"restarts"`
	Server    *process.Status `json:"server,omitempty"`
}

// Status returns a point-in-time view of the session.
func (s *Session) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID: s.opts.SessionID,
		State:     s.state,
		Restarts:  s.restarts,
	}
	if s.proc != nil {
		st := s.proc.Snapshot()
		snap.Server = &st
	}
	return snap
}

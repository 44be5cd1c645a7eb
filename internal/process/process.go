package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// killWaitGrace bounds the post-SIGKILL reap wait inside Stop.
const killWaitGrace = 2 * time.Second

// LaunchError reports an OS-level spawn failure. It is fatal to the
// session; retry policy lives with the caller.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Process owns exactly one running server instance. It is created by
// Launch and released by Stop; at most one Process per session is alive
// at any time. The exit status is reaped by a single goroutine started
// in Launch, so exit polling never races with os/exec internals.
type Process struct {
	spec Spec
	cmd  *exec.Cmd
	out  io.WriteCloser

	mu        sync.Mutex
	startedAt time.Time
	stoppedAt time.Time
	exited    bool
	exitCode  int
	waitErr   error

	done chan struct{} // closed by the reaper when cmd.Wait returns
}

// Launch starts the process described by spec with the given merged
// environment. The child runs in its own process group so termination
// signals reach helpers it forks. Stdout and stderr are merged into one
// rotating log stream, or discarded when no log destination is set.
func Launch(spec Spec, mergedEnv []string) (*Process, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd)

	out, err := spec.Log.Writer(spec.Name)
	if err != nil {
		return nil, &LaunchError{Path: spec.Path, Err: err}
	}
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = out
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}

	if err := cmd.Start(); err != nil {
		if out != nil {
			_ = out.Close()
		}
		return nil, &LaunchError{Path: spec.Path, Err: err}
	}

	p := &Process{
		spec:      spec,
		cmd:       cmd,
		out:       out,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

// reap waits for the child exactly once and records the exit status.
func (p *Process) reap() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exited = true
	p.stoppedAt = time.Now()
	p.waitErr = err
	p.exitCode = exitCodeFromWait(p.cmd, err)
	p.mu.Unlock()

	if p.out != nil {
		_ = p.out.Close()
	}
	close(p.done)
}

func exitCodeFromWait(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// PID returns the child's process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Name returns the spec name the process was launched under.
func (p *Process) Name() string { return p.spec.Name }

// StartedAt returns the launch timestamp.
func (p *Process) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode is the non-blocking exit poll: it reports (code, true) after
// the child has exited and (0, false) while it is still running.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		return 0, false
	}
	return p.exitCode, true
}

// Alive reports whether the child is still running.
func (p *Process) Alive() bool {
	_, exited := p.ExitCode()
	return !exited
}

// Stop requests graceful termination and escalates to SIGKILL when the
// child has not exited within grace. Calling Stop on an already-exited
// process is a no-op; the returned error never masks the exit status
// observed by the monitor.
func (p *Process) Stop(grace time.Duration) error {
	if _, exited := p.ExitCode(); exited {
		return nil
	}
	pid := p.PID()
	if err := killGroup(pid, syscall.SIGTERM); err != nil {
		// Process may have exited between the poll and the signal.
		if _, exited := p.ExitCode(); exited {
			return nil
		}
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}
	_ = killGroup(pid, syscall.SIGKILL)
	select {
	case <-p.done:
	case <-time.After(killWaitGrace):
		return fmt.Errorf("pid %d not reaped after kill", pid)
	}
	return nil
}

// Kill forcibly terminates the child without a graceful window.
func (p *Process) Kill() error {
	if _, exited := p.ExitCode(); exited {
		return nil
	}
	_ = killGroup(p.PID(), syscall.SIGKILL)
	select {
	case <-p.done:
	case <-time.After(killWaitGrace):
		return fmt.Errorf("pid %d not reaped after kill", p.PID())
	}
	return nil
}

// Snapshot returns a copy of the current status for reporting surfaces.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Name:      p.spec.Name,
		PID:       p.cmd.Process.Pid,
		Running:   !p.exited,
		StartedAt: p.startedAt,
		StoppedAt: p.stoppedAt,
	}
	if p.exited {
		st.ExitCode = &p.exitCode
	}
	return st
}

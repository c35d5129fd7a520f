package service

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// State is the lifecycle of a spawned service process.
type State int

const (
	Starting State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Spec describes how to spawn the service.
type Spec struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string
	// Stdout and Stderr default to the current process streams.
	Stdout io.Writer
	Stderr io.Writer
}

func (s Spec) String() string {
	return strings.TrimSpace(s.Name + " " + strings.Join(s.Args, " "))
}

// ProcessError reports a service process that could not start or exited
// on its own.
type ProcessError struct {
	ExitCode int
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil && e.ExitCode <= 0 {
		return fmt.Sprintf("service process: %v", e.Err)
	}
	return fmt.Sprintf("service process exited with code %d", e.ExitCode)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Process is a running child. It is owned by whoever started it.
type Process struct {
	cmd       *exec.Cmd
	StartTime time.Time

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

// Start spawns spec. The returned process is in the Starting state.
func Start(spec Spec) (*Process, error) {
	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = spec.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = spec.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	configure(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{ExitCode: -1, Err: err}
	}
	p := &Process{
		cmd:       cmd,
		StartTime: time.Now(),
		state:     Starting,
		done:      make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.state = Stopped
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

func (p *Process) PID() int { return p.cmd.Process.Pid }

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// MarkRunning records that the service answered its readiness probe.
func (p *Process) MarkRunning() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Starting {
		p.state = Running
	}
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit as a *ProcessError, or nil for a clean exit. It is
// only meaningful after Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		return nil
	}
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	return &ProcessError{ExitCode: code, Err: p.err}
}

// Stop asks the process to terminate, waits up to grace, then kills it.
// It returns once the process has exited.
func (p *Process) Stop(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := terminate(p.cmd); err != nil {
		_ = kill(p.cmd)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	if err := kill(p.cmd); err != nil {
		select {
		case <-p.done:
			return nil
		default:
			return fmt.Errorf("kill service process %d: %w", p.PID(), err)
		}
	}
	<-p.done
	return nil
}

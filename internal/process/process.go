package process

import (
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process tracks one running compiler until it is reaped.
type Process struct {
	cmd       *exec.Cmd
	sourceDir string

	mu        sync.Mutex
	pid       int
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error
	exited    bool
	outCloser io.WriteCloser
	errCloser io.WriteCloser

	waitDone chan struct{} // closed once cmd.Wait returns
}

func newProcess(cmd *exec.Cmd, sourceDir string, stdout, stderr io.WriteCloser) *Process {
	p := &Process{
		cmd:       cmd,
		sourceDir: sourceDir,
		outCloser: stdout,
		errCloser: stderr,
		waitDone:  make(chan struct{}),
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if stderr != nil {
		cmd.Stderr = stderr
	}
	return p
}

// TryStart starts the command and records its pid.
func (p *Process) TryStart() error {
	if err := p.cmd.Start(); err != nil {
		p.CloseWriters()
		return err
	}
	p.mu.Lock()
	p.pid = p.cmd.Process.Pid
	p.startedAt = time.Now()
	p.mu.Unlock()
	return nil
}

func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *Process) Done() <-chan struct{} { return p.waitDone }

// wait blocks until the process exits; must be called exactly once.
func (p *Process) wait() error {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exited = true
	p.stoppedAt = time.Now()
	p.exitErr = err
	p.mu.Unlock()
	p.CloseWriters()
	close(p.waitDone)
	return err
}

func (p *Process) CloseWriters() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outCloser != nil {
		_ = p.outCloser.Close()
		p.outCloser = nil
	}
	if p.errCloser != nil {
		_ = p.errCloser.Close()
		p.errCloser = nil
	}
}

// exitResult maps an early exit to a launch result.
func (p *Process) exitResult() Result {
	ps := p.cmd.ProcessState
	if ps == nil {
		return Result{}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Result{PID: p.PID(), ExitCode: -1, Killed: true}
	}
	return Result{ExitCode: ps.ExitCode()}
}

func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		PID:       p.pid,
		SourceDir: p.sourceDir,
		Command:   append([]string(nil), p.cmd.Args...),
		Running:   !p.exited && p.pid > 0,
		StartedAt: p.startedAt,
		StoppedAt: p.stoppedAt,
	}
	if p.exitErr != nil {
		st.ExitErr = p.exitErr.Error()
	}
	return st
}

// Package proc runs collaborator programs as detached background jobs.
//
// A [Handle] is started once, never waited on by its owner and may be
// terminated at teardown. Output goes to a per-program log file, which is
// also where a failed start is reported.
package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/shirou/gopsutil/process"
	"golang.org/x/sys/unix"

	"github.com/cs244-team/sidekick/pkg/util"
)

type Status int

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusExited
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not-started"
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

var ErrAlreadyStarted = errors.New("proc: already started")

// TerminateGrace is how long Terminate waits after SIGTERM before SIGKILL.
var TerminateGrace = 2 * time.Second

// enterNetNs runs fn inside a network namespace; the forked child
// inherits the namespace of the forking thread.
var enterNetNs = util.InNetNs

type Handle struct {
	Name    string
	Node    string
	Argv    *Argv
	LogPath string
	NetNs   string // empty runs in the current namespace

	mu     sync.Mutex
	cmd    *exec.Cmd
	status Status
	err    error
	done   chan struct{}
}

func NewHandle(name string, argv *Argv, logPath, netns string) *Handle {
	return &Handle{
		Name:    name,
		Argv:    argv,
		LogPath: logPath,
		NetNs:   netns,
		done:    make(chan struct{}),
	}
}

// Start launches the program with stdout and stderr truncated into the
// log file and returns without waiting for it. On failure the error is
// also written to the log file.
func (h *Handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != StatusNotStarted {
		return ErrAlreadyStarted
	}

	if err := os.MkdirAll(filepath.Dir(h.LogPath), 0o755); err != nil {
		return h.fail(nil, fmt.Errorf("failed to create log dir: %w", err))
	}
	logFile, err := os.OpenFile(h.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return h.fail(nil, fmt.Errorf("failed to open log file: %w", err))
	}
	defer logFile.Close()

	cmd := exec.Command(h.Argv.P, h.Argv.V...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// own process group: signals aimed at the harness do not reach it
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err = enterNetNs(h.NetNs, cmd.Start); err != nil {
		return h.fail(logFile, err)
	}

	h.cmd = cmd
	h.status = StatusRunning
	go h.reap()

	log.WithFields(log.Fields{
		"name": h.Name,
		"pid":  cmd.Process.Pid,
		"log":  h.LogPath,
	}).Infof("+ %s", h.Argv)
	return nil
}

func (h *Handle) fail(logFile *os.File, err error) error {
	if logFile != nil {
		fmt.Fprintf(logFile, "%s: %v\n", h.Argv, err)
	}
	h.status = StatusFailed
	h.err = err
	close(h.done)
	return err
}

// reap collects the exit status so that no zombie is left behind.
func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.status = StatusExited
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Status reports the lifecycle state, cross-checking a running process
// against the process table.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == StatusRunning {
		alive, err := process.PidExists(int32(h.cmd.Process.Pid))
		if err == nil && !alive {
			return StatusExited
		}
	}
	return h.status
}

// Pid returns the process id, or 0 if the process never started.
func (h *Handle) Pid() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Done is closed once the process has exited or failed to start.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the start error or the exit error, once known.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Terminate sends SIGTERM to the process group and escalates to SIGKILL
// after TerminateGrace. It is a no-op unless the process is running.
func (h *Handle) Terminate() error {
	pid := h.Pid()
	if pid == 0 || h.Status() != StatusRunning {
		return nil
	}
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to terminate %s: %w", h.Name, err)
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(TerminateGrace):
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to kill %s: %w", h.Name, err)
	}
	<-h.done
	return nil
}

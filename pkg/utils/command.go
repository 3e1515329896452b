package utils

import (
	"io"
	"os/exec"
	"strings"
	"syscall"

	"github.com/nestor-run/nestor/pkg/log"
	"golang.org/x/sys/unix"
)

// Wait status of a supervised process.
type ProcessStatus struct {
	// Exit code of the process, or -1 if terminated by a signal.
	ExitCode int

	// Terminating signal, or zero if the process exited normally.
	Signal syscall.Signal
}

type Process struct {
	Pid  int
	done chan ProcessStatus
}

// Channel receiving the wait status exactly once.
func (p *Process) Done() <-chan ProcessStatus {
	return p.done
}

// Send a signal to the entire process group.
func (p *Process) SignalGroup(sig syscall.Signal) error {
	return unix.Kill(-p.Pid, sig)
}

// Start a command in its own process group.
// The wait status is delivered on the returned process's Done channel.
func StartProcess(cwd string, stdout, stderr io.Writer, args ...string) (*Process, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}
	if cwd != "" {
		cmd.Dir = cwd
	}

	log.Debug("Running", strings.Join(cmd.Args, " "))

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	proc := &Process{
		Pid:  cmd.Process.Pid,
		done: make(chan ProcessStatus, 1),
	}

	go func() {
		err := cmd.Wait()

		status := ProcessStatus{ExitCode: 0}
		if exitErr, ok := err.(*exec.ExitError); ok {
			ws := exitErr.Sys().(syscall.WaitStatus)
			if ws.Signaled() {
				status.ExitCode = -1
				status.Signal = ws.Signal()
			} else {
				status.ExitCode = ws.ExitStatus()
			}
		} else if err != nil {
			// Wait failed for reasons other than a non-zero exit.
			log.Error("Wait failed:", err)
			status.ExitCode = -1
		}

		proc.done <- status
		close(proc.done)
	}()

	return proc, nil
}

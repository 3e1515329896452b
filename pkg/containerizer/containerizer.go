package containerizer

import (
	"fmt"
	"syscall"
)

var (
	ErrContainerExists   = fmt.Errorf("Container already exists")
	ErrContainerNotFound = fmt.Errorf("Container not found")
	ErrBadSpec           = fmt.Errorf("Invalid container spec")
)

// Termination of a nested container as observed by the containerizer.
type Termination struct {
	// Exit code of the container's init process, or -1 if it was
	// terminated by a signal.
	ExitCode int

	// Terminating signal, or zero if the process exited normally.
	Signal syscall.Signal
}

// Launch spec for one nested container.
type Spec struct {
	// Identifier of the container. Assigned by the caller.
	ContainerID string

	// Task the container belongs to, used for bookkeeping only.
	TaskID string

	// Command handed to the container, run with `sh -c`.
	Command string

	// Sandbox directory of the container, relative to the
	// containerizer's filesystem root. Created on launch.
	SandboxDir string
}

// Interface to the agent's containerizer.
//
// The executor only ever launches nested containers whose parent is
// its own container. Resource accounting is not part of this
// interface; resources are pre-reserved at admission.
type Containerizer interface {
	// Launch a nested container under the given parent.
	// Success guarantees the container exists and that a termination
	// will be delivered exactly once via WaitNested.
	LaunchNested(parentID string, spec Spec) error

	// Send a signal to a nested container's process group. Idempotent;
	// signalling an unknown or exited container is not an error.
	KillNested(containerID string, sig syscall.Signal) error

	// Channel on which the container's termination is delivered
	// exactly once.
	WaitNested(containerID string) (<-chan Termination, error)
}

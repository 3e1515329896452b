package executor

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nestor-run/nestor/pkg/containerizer"
	"github.com/nestor-run/nestor/pkg/log"
	"github.com/nestor-run/nestor/pkg/utils"
)

// A container exit, delivered to the supervisor exactly once per
// launched container.
type Completion struct {
	ContainerID string
	TaskID      string
	Termination containerizer.Termination

	// True if a kill was requested for this container before it
	// terminated.
	Killed bool
}

// Classify the exit into a terminal task state.
func (c Completion) Outcome() TaskState {
	switch {
	case c.Termination.ExitCode == 0:
		return TaskFinished
	case c.Termination.ExitCode > 0:
		return TaskFailed
	case c.Termination.Signal != 0 && c.Killed:
		return TaskKilled
	default:
		// OOM, isolator errors and other abnormal deaths.
		return TaskLost
	}
}

// Thin adapter over the containerizer. Launches one nested container
// per task under the executor's own container and funnels exits into
// a single ordered completion queue.
type ContainerDriver struct {
	containerizer containerizer.Containerizer
	parentID      string
	grace         time.Duration

	completions chan Completion

	mu     sync.Mutex
	killed map[string]bool
	timers map[string]*time.Timer
}

func NewContainerDriver(c containerizer.Containerizer, parentID string, grace time.Duration) *ContainerDriver {
	return &ContainerDriver{
		containerizer: c,
		parentID:      parentID,
		grace:         grace,
		completions:   make(chan Completion, 64),
		killed:        map[string]bool{},
		timers:        map[string]*time.Timer{},
	}
}

// Queue of container exits, consumed by the supervisor.
func (d *ContainerDriver) Completions() <-chan Completion {
	return d.completions
}

// Launch a nested container for the task. Success guarantees the
// container exists and that exactly one completion is delivered later.
func (d *ContainerDriver) Launch(task *Task, sandboxDir string) (string, error) {
	containerID := uuid.NewString()

	spec := containerizer.Spec{
		ContainerID: containerID,
		TaskID:      task.ID(),
		Command:     task.Info().Command,
		SandboxDir:  sandboxDir,
	}

	if err := d.containerizer.LaunchNested(d.parentID, spec); err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrLaunchRejected, err)
	}

	wait, err := d.containerizer.WaitNested(containerID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrLaunchRejected, err)
	}

	log.Infof("new - container - id: %s, task: %s", containerID, task.ID())

	taskID := task.ID()
	go func() {
		termination := <-wait

		d.mu.Lock()
		killed := d.killed[containerID]
		if timer := d.timers[containerID]; timer != nil {
			timer.Stop()
			delete(d.timers, containerID)
		}
		delete(d.killed, containerID)
		d.mu.Unlock()

		d.completions <- Completion{
			ContainerID: containerID,
			TaskID:      taskID,
			Termination: termination,
			Killed:      killed,
		}
	}()

	return containerID, nil
}

// Kill sends a graceful stop to the container and escalates to forced
// termination after the grace period. Idempotent.
func (d *ContainerDriver) Kill(containerID string) {
	d.mu.Lock()
	if d.killed[containerID] {
		d.mu.Unlock()
		return
	}
	d.killed[containerID] = true
	d.timers[containerID] = time.AfterFunc(d.grace, func() {
		log.Debugf("sig - container - id: %s, escalating to SIGKILL", containerID)
		d.containerizer.KillNested(containerID, syscall.SIGKILL)
	})
	d.mu.Unlock()

	log.Infof("int - container - id: %s", containerID)
	d.containerizer.KillNested(containerID, syscall.SIGTERM)
}

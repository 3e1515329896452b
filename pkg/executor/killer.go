package executor

import (
	"fmt"

	"github.com/nestor-run/nestor/pkg/log"
)

// Killer terminates tasks on request or in response to a sibling's
// abnormal exit, enforcing the all-or-nothing group kill policy.
type Killer struct {
	registry *Registry
	driver   *ContainerDriver
	stream   *StatusStream
}

func NewKiller(registry *Registry, driver *ContainerDriver, stream *StatusStream) *Killer {
	return &Killer{
		registry: registry,
		driver:   driver,
		stream:   stream,
	}
}

// Kill one task. Killing any member terminates its whole group.
func (k *Killer) KillTask(taskID string) error {
	task, err := k.registry.Get(taskID)
	if err != nil {
		return err
	}

	group, err := k.registry.GroupOf(taskID)
	if err != nil {
		return err
	}

	if group.State() != GroupActive {
		// The pending group kill already guarantees a terminal update
		// for the task; a second kill has nothing left to do.
		log.Debugf("int - task - id: %s, group %s already %s",
			taskID, group.ID(), group.State())
		return nil
	}

	log.Infof("int - task - id: %s", task.ID())
	k.TerminateGroup(group)
	return nil
}

// Terminate every member of the group. Running members are stopped
// through the container driver; members that never started report
// KILLED immediately.
func (k *Killer) TerminateGroup(group *Group) {
	if group.State() != GroupActive {
		return
	}
	group.setState(GroupTerminating)

	log.Infof("int - group - id: %s", group.ID())

	for _, task := range k.registry.TasksOf(group.ID()) {
		switch task.State() {
		case TaskStarting, TaskRunning:
			if err := k.registry.SetState(task.ID(), TaskKilling, StateMeta{}); err != nil {
				log.Error(err)
				continue
			}
			k.driver.Kill(task.ContainerID())

		case TaskPending:
			meta := StateMeta{Message: "Task group terminated before launch"}
			if err := k.registry.SetState(task.ID(), TaskKilled, meta); err != nil {
				log.Error(err)
				continue
			}
			k.stream.PostTaskUpdate(task, nil)
		}
	}
}

// Handle a container exit: translate it into a terminal task state,
// emit the status update, and kill the group if the exit was a
// failure while the group was still active.
func (k *Killer) OnCompletion(c Completion) error {
	task, err := k.registry.Get(c.TaskID)
	if err != nil {
		return err
	}

	outcome := c.Outcome()

	// A task being force-stopped reports KILLED regardless of how its
	// container actually exited. The task that triggered a group kill
	// keeps its natural terminal state.
	if task.State() == TaskKilling {
		outcome = TaskKilled
	}

	meta := StateMeta{}
	if c.Termination.Signal != 0 {
		meta.Message = fmt.Sprintf("Container terminated by signal %v", c.Termination.Signal)
	} else {
		exitCode := c.Termination.ExitCode
		meta.ExitCode = &exitCode
		meta.Message = fmt.Sprintf("Container exited with status %d", exitCode)
	}

	if err := k.registry.SetState(task.ID(), outcome, meta); err != nil {
		return err
	}
	k.stream.PostTaskUpdate(task, nil)

	group, err := k.registry.GroupOf(task.ID())
	if err != nil {
		return err
	}

	if outcome.WireState().IsFailure() && group.State() == GroupActive {
		k.TerminateGroup(group)
	}

	return nil
}

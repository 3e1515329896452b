package executor

import (
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/nestor-run/nestor/pkg/log"
	"github.com/nestor-run/nestor/pkg/protocol"
	"github.com/nestor-run/nestor/pkg/utils"
)

// Launcher validates launch operations, admits task records and
// starts a container per task in declared order.
type Launcher struct {
	config   *ExecutorConfig
	registry *Registry
	driver   *ContainerDriver
	stream   *StatusStream
	killer   *Killer
}

func NewLauncher(config *ExecutorConfig, registry *Registry, driver *ContainerDriver, stream *StatusStream, killer *Killer) *Launcher {
	return &Launcher{
		config:   config,
		registry: registry,
		driver:   driver,
		stream:   stream,
		killer:   killer,
	}
}

// Launch a task group. Validation failures reject the whole group
// before any task record is created; they are reported to the
// scheduler as immediate TASK_ERROR updates.
func (l *Launcher) Launch(op *protocol.LaunchGroup) error {
	if err := l.validate(op); err != nil {
		return l.reject(op, err)
	}

	groupID := op.TaskGroup.GroupID
	if groupID == "" {
		groupID = uuid.NewString()
	}

	group, err := l.registry.Insert(groupID, op.TaskGroup.Tasks)
	if err != nil {
		return l.reject(op, err)
	}

	log.Infof("new - group - id: %s, tasks: %d", groupID, len(op.TaskGroup.Tasks))

	runDir := l.runDir(op.Executor.FrameworkID)

	for _, taskID := range group.TaskIDs() {
		task, err := l.registry.Get(taskID)
		if err != nil {
			return err
		}

		// The group may have been terminated by an earlier launch
		// failure or a concurrent kill.
		if task.State() != TaskPending {
			continue
		}

		if err := l.registry.SetState(taskID, TaskStarting, StateMeta{}); err != nil {
			return err
		}
		l.stream.PostTaskUpdate(task, nil)

		sandboxDir := path.Join(runDir, "tasks", taskID)
		containerID, err := l.driver.Launch(task, sandboxDir)
		if err != nil {
			log.Errorf("nok - task - id: %s, launch failed: %v", taskID, err)

			meta := StateMeta{Message: fmt.Sprintf("Failed to launch container: %v", err)}
			if err := l.registry.SetState(taskID, TaskFailed, meta); err != nil {
				return err
			}
			l.stream.PostTaskUpdate(task, nil)

			l.killer.TerminateGroup(group)
			return nil
		}

		if err := l.registry.BindContainer(taskID, containerID); err != nil {
			return err
		}
		if err := l.registry.SetState(taskID, TaskRunning, StateMeta{}); err != nil {
			return err
		}

		l.stream.PostTaskUpdate(task, &protocol.ContainerStatus{
			ContainerID: containerID,
			ParentID:    l.config.ParentContainerID,
		})
	}

	return nil
}

func (l *Launcher) validate(op *protocol.LaunchGroup) error {
	if len(op.TaskGroup.Tasks) == 0 {
		return fmt.Errorf("%w: empty task group", utils.ErrInvalidLaunch)
	}

	var total protocol.Resources
	for _, info := range op.TaskGroup.Tasks {
		if info.TaskID == "" {
			return fmt.Errorf("%w: task without identifier", utils.ErrInvalidLaunch)
		}

		if !info.Resources.IsValid() {
			return fmt.Errorf("%w: negative resources for task %s",
				utils.ErrInvalidLaunch, info.TaskID)
		}

		if info.Executor != nil && *info.Executor != op.Executor {
			return fmt.Errorf("%w: executor mismatch for task %s",
				utils.ErrInvalidLaunch, info.TaskID)
		}

		total = total.Plus(info.Resources)
	}

	// The group must fit within the allotment next to everything
	// already running. Reserved resources are part of the allotment.
	available := l.config.Resources()
	consumed := l.registry.ConsumedResources()
	if !total.Plus(consumed).FitsIn(available) {
		return fmt.Errorf("%w: task group exceeds resource allotment", utils.ErrInvalidLaunch)
	}

	return nil
}

// Report a rejected launch. No task records exist; each task in the
// operation gets an immediate TASK_ERROR update.
func (l *Launcher) reject(op *protocol.LaunchGroup, err error) error {
	log.Errorf("nok - group - launch rejected: %v", err)

	for _, info := range op.TaskGroup.Tasks {
		l.stream.Post(protocol.TaskStatus{
			TaskID:  info.TaskID,
			State:   protocol.TaskError,
			Message: err.Error(),
		})
	}

	return err
}

// Sandbox run directory for this executor, relative to the work dir.
func (l *Launcher) runDir(frameworkID string) string {
	return path.Join(l.config.AgentID, frameworkID, l.config.ExecutorID, "latest")
}

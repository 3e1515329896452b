package protocol

// Task states visible on the wire.
type TaskState string

const (
	TaskStaging  TaskState = "TASK_STAGING"
	TaskStarting TaskState = "TASK_STARTING"
	TaskRunning  TaskState = "TASK_RUNNING"
	TaskFinished TaskState = "TASK_FINISHED"
	TaskFailed   TaskState = "TASK_FAILED"
	TaskKilled   TaskState = "TASK_KILLED"
	TaskLost     TaskState = "TASK_LOST"
	TaskError    TaskState = "TASK_ERROR"
)

// Should return true if the task is no longer in progress.
func (state TaskState) IsTerminal() bool {
	switch state {
	case TaskStaging, TaskStarting, TaskRunning:
		return false
	default:
		return true
	}
}

// Should return true if the terminal state counts as a failure
// for the purposes of the group kill policy.
func (state TaskState) IsFailure() bool {
	switch state {
	case TaskFailed, TaskLost, TaskError:
		return true
	default:
		return false
	}
}

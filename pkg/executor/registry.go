package executor

import (
	"fmt"
	"sync"

	"github.com/nestor-run/nestor/pkg/log"
	"github.com/nestor-run/nestor/pkg/protocol"
	"github.com/nestor-run/nestor/pkg/utils"
)

// Internal task states. These form a DAG rooted at PENDING; terminal
// states are absorbing.
type TaskState string

const (
	TaskPending  TaskState = "PENDING"
	TaskStarting TaskState = "STARTING"
	TaskRunning  TaskState = "RUNNING"
	TaskFinished TaskState = "FINISHED"
	TaskFailed   TaskState = "FAILED"
	TaskKilling  TaskState = "KILLING"
	TaskKilled   TaskState = "KILLED"
	TaskLost     TaskState = "LOST"
)

func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskFinished, TaskFailed, TaskKilled, TaskLost:
		return true
	default:
		return false
	}
}

// Maps the internal state to the nearest wire state.
func (s TaskState) WireState() protocol.TaskState {
	switch s {
	case TaskPending:
		return protocol.TaskStaging
	case TaskStarting:
		return protocol.TaskStarting
	case TaskRunning, TaskKilling:
		return protocol.TaskRunning
	case TaskFinished:
		return protocol.TaskFinished
	case TaskFailed:
		return protocol.TaskFailed
	case TaskKilled:
		return protocol.TaskKilled
	default:
		return protocol.TaskLost
	}
}

var legalTransitions = map[TaskState][]TaskState{
	TaskPending:  {TaskStarting, TaskFailed, TaskKilled, TaskLost},
	TaskStarting: {TaskRunning, TaskKilling, TaskFinished, TaskFailed, TaskKilled, TaskLost},
	TaskRunning:  {TaskKilling, TaskFinished, TaskFailed, TaskKilled, TaskLost},
	TaskKilling:  {TaskFinished, TaskFailed, TaskKilled, TaskLost},
}

func legalTransition(from, to TaskState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Metadata attached to a state transition.
type StateMeta struct {
	Message  string
	ExitCode *int
}

// A task supervised by the executor.
type Task struct {
	sync.RWMutex

	// The original task info from the launch operation.
	info protocol.TaskInfo

	// The group that the task belongs to.
	groupID string

	// The current state of the task.
	state TaskState

	// Container assigned at launch. Empty until then, and
	// meaningless once the task is terminal.
	containerID string

	// Metadata from the most recent transition.
	meta StateMeta
}

func (t *Task) ID() string {
	return t.info.TaskID
}

func (t *Task) GroupID() string {
	return t.groupID
}

func (t *Task) Info() protocol.TaskInfo {
	t.RLock()
	defer t.RUnlock()
	return t.info
}

func (t *Task) State() TaskState {
	t.RLock()
	defer t.RUnlock()
	return t.state
}

func (t *Task) IsTerminal() bool {
	return t.State().IsTerminal()
}

func (t *Task) ContainerID() string {
	t.RLock()
	defer t.RUnlock()
	return t.containerID
}

func (t *Task) Meta() StateMeta {
	t.RLock()
	defer t.RUnlock()
	return t.meta
}

// Task group states.
type GroupState string

const (
	GroupActive      GroupState = "ACTIVE"
	GroupTerminating GroupState = "TERMINATING"
	GroupTerminal    GroupState = "TERMINAL"
)

// A task group. The task order defines the launch sequence.
type Group struct {
	sync.RWMutex

	id      string
	taskIDs []string
	state   GroupState
}

func (g *Group) ID() string {
	return g.id
}

func (g *Group) TaskIDs() []string {
	return g.taskIDs
}

func (g *Group) State() GroupState {
	g.RLock()
	defer g.RUnlock()
	return g.state
}

func (g *Group) setState(state GroupState) {
	g.Lock()
	defer g.Unlock()
	g.state = state
}

// In-memory mapping from task identifier to task record.
//
// All mutations are serialized by the supervisor's execution context;
// the locks only guard concurrent reads from the introspection
// endpoint.
type Registry struct {
	sync.RWMutex

	tasks      map[string]*Task
	groups     map[string]*Group
	containers map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		tasks:      map[string]*Task{},
		groups:     map[string]*Group{},
		containers: map[string]string{},
	}
}

// Insert a new group and its member tasks, all in PENDING.
// Duplicate task identifiers, within the group or against any known
// task, are rejected.
func (r *Registry) Insert(groupID string, tasks []protocol.TaskInfo) (*Group, error) {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.groups[groupID]; ok {
		return nil, fmt.Errorf("%w: duplicate group %s", utils.ErrInvalidLaunch, groupID)
	}

	seen := map[string]bool{}
	for _, info := range tasks {
		if _, ok := r.tasks[info.TaskID]; ok || seen[info.TaskID] {
			return nil, fmt.Errorf("%w: duplicate task %s", utils.ErrInvalidLaunch, info.TaskID)
		}
		seen[info.TaskID] = true
	}

	group := &Group{
		id:    groupID,
		state: GroupActive,
	}

	for _, info := range tasks {
		task := &Task{
			info:    info,
			groupID: groupID,
			state:   TaskPending,
		}
		r.tasks[info.TaskID] = task
		group.taskIDs = append(group.taskIDs, info.TaskID)

		log.Infof("new - task - id: %s, group: %s", info.TaskID, groupID)
	}

	r.groups[groupID] = group
	return group, nil
}

func (r *Registry) Get(taskID string) (*Task, error) {
	r.RLock()
	defer r.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return task, nil
}

// Transition a task to a new state. Illegal transitions are an
// internal invariant violation and reported as ErrIllegalTransition.
func (r *Registry) SetState(taskID string, state TaskState, meta StateMeta) error {
	task, err := r.Get(taskID)
	if err != nil {
		return err
	}

	task.Lock()
	if task.state == state {
		task.Unlock()
		return nil
	}
	if !legalTransition(task.state, state) {
		from := task.state
		task.Unlock()
		return fmt.Errorf("%w: %s: %s -> %s", utils.ErrIllegalTransition, taskID, from, state)
	}
	task.state = state
	task.meta = meta
	task.Unlock()

	log.Infof("sta - task - id: %s, state: %s", taskID, state)

	if state.IsTerminal() {
		r.unbindContainer(task)
		r.refreshGroup(task.groupID)
	}

	return nil
}

// Record the container assigned to a task.
func (r *Registry) BindContainer(taskID, containerID string) error {
	task, err := r.Get(taskID)
	if err != nil {
		return err
	}

	task.Lock()
	task.containerID = containerID
	task.Unlock()

	r.Lock()
	r.containers[containerID] = taskID
	r.Unlock()
	return nil
}

func (r *Registry) TaskByContainer(containerID string) (*Task, error) {
	r.RLock()
	taskID, ok := r.containers[containerID]
	r.RUnlock()

	if !ok {
		return nil, utils.ErrNotFound
	}
	return r.Get(taskID)
}

func (r *Registry) TasksOf(groupID string) []*Task {
	r.RLock()
	defer r.RUnlock()

	group, ok := r.groups[groupID]
	if !ok {
		return nil
	}

	tasks := []*Task{}
	for _, taskID := range group.taskIDs {
		tasks = append(tasks, r.tasks[taskID])
	}
	return tasks
}

func (r *Registry) GroupOf(taskID string) (*Group, error) {
	task, err := r.Get(taskID)
	if err != nil {
		return nil, err
	}

	r.RLock()
	defer r.RUnlock()
	return r.groups[task.groupID], nil
}

func (r *Registry) Groups() []*Group {
	r.RLock()
	defer r.RUnlock()

	groups := []*Group{}
	for _, group := range r.groups {
		groups = append(groups, group)
	}
	return groups
}

func (r *Registry) Tasks() []*Task {
	r.RLock()
	defer r.RUnlock()

	tasks := []*Task{}
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}

func (r *Registry) IsGroupTerminal(groupID string) bool {
	r.RLock()
	group, ok := r.groups[groupID]
	r.RUnlock()

	return ok && group.State() == GroupTerminal
}

// Returns true if at least one task has been admitted and every
// group is terminal.
func (r *Registry) AllGroupsTerminal() bool {
	r.RLock()
	defer r.RUnlock()

	if len(r.groups) == 0 {
		return false
	}

	for _, group := range r.groups {
		if group.State() != GroupTerminal {
			return false
		}
	}
	return true
}

// Resources currently consumed by non-terminal tasks.
func (r *Registry) ConsumedResources() protocol.Resources {
	r.RLock()
	defer r.RUnlock()

	var total protocol.Resources
	for _, task := range r.tasks {
		if !task.IsTerminal() {
			total = total.Plus(task.Info().Resources)
		}
	}
	return total
}

func (r *Registry) unbindContainer(task *Task) {
	containerID := task.ContainerID()
	if containerID == "" {
		return
	}

	r.Lock()
	delete(r.containers, containerID)
	r.Unlock()
}

// Mark the group terminal once every member task is.
func (r *Registry) refreshGroup(groupID string) {
	r.RLock()
	group, ok := r.groups[groupID]
	r.RUnlock()

	if !ok || group.State() == GroupTerminal {
		return
	}

	for _, task := range r.TasksOf(groupID) {
		if !task.IsTerminal() {
			return
		}
	}

	group.setState(GroupTerminal)
	log.Infof("end - group - id: %s", groupID)
}

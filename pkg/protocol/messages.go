package protocol

import "time"

// Scheduler call types.
type CallType string

const (
	CallSubscribe   CallType = "SUBSCRIBE"
	CallAccept      CallType = "ACCEPT"
	CallKill        CallType = "KILL"
	CallAcknowledge CallType = "ACKNOWLEDGE"
)

// Executor event types.
type EventType string

const (
	EventSubscribed EventType = "SUBSCRIBED"
	EventOffers     EventType = "OFFERS"
	EventUpdate     EventType = "UPDATE"
	EventFailure    EventType = "FAILURE"
	EventHeartbeat  EventType = "HEARTBEAT"
)

// Offer operation types.
type OperationType string

const (
	OperationReserve     OperationType = "RESERVE"
	OperationLaunchGroup OperationType = "LAUNCH_GROUP"
)

// Declared resources of a task, executor or offer.
// All quantities are non-negative.
type Resources struct {
	CPUs   float64 `json:"cpus"`
	MemMB  float64 `json:"mem_mb"`
	DiskMB float64 `json:"disk_mb"`
}

// Returns the sum of two resource quantities.
func (r Resources) Plus(o Resources) Resources {
	return Resources{
		CPUs:   r.CPUs + o.CPUs,
		MemMB:  r.MemMB + o.MemMB,
		DiskMB: r.DiskMB + o.DiskMB,
	}
}

// Returns true if all quantities fit within the other.
func (r Resources) FitsIn(o Resources) bool {
	return r.CPUs <= o.CPUs && r.MemMB <= o.MemMB && r.DiskMB <= o.DiskMB
}

// Returns true if all quantities are non-negative.
func (r Resources) IsValid() bool {
	return r.CPUs >= 0 && r.MemMB >= 0 && r.DiskMB >= 0
}

// The scheduler identity that owns tasks.
type FrameworkInfo struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	User string `json:"user,omitempty"`
}

// Executor types understood by the agent.
const ExecutorTypeDefault = "DEFAULT"

type ExecutorInfo struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	FrameworkID string    `json:"framework_id,omitempty"`
	Resources   Resources `json:"resources"`
}

// A unit of execution with a command and a resource allotment.
// The command is opaque to the executor and handed to the container.
type TaskInfo struct {
	TaskID    string    `json:"task_id"`
	Name      string    `json:"name,omitempty"`
	Command   string    `json:"command"`
	Resources Resources `json:"resources"`

	// Optional embedded executor info. If present, it must equal the
	// executor info of the enclosing launch operation.
	Executor *ExecutorInfo `json:"executor,omitempty"`
}

// A set of tasks launched together, sharing the group kill policy.
// Task order defines the launch sequence.
type TaskGroupInfo struct {
	GroupID string     `json:"group_id,omitempty"`
	Tasks   []TaskInfo `json:"tasks"`
}

type Subscribe struct {
	FrameworkInfo FrameworkInfo `json:"framework_info"`
}

type Reserve struct {
	Role      string    `json:"role,omitempty"`
	Resources Resources `json:"resources"`
}

type LaunchGroup struct {
	Executor  ExecutorInfo  `json:"executor"`
	TaskGroup TaskGroupInfo `json:"task_group"`
}

type Operation struct {
	Type        OperationType `json:"type"`
	Reserve     *Reserve      `json:"reserve,omitempty"`
	LaunchGroup *LaunchGroup  `json:"launch_group,omitempty"`
}

type Accept struct {
	OfferIDs   []string    `json:"offer_ids"`
	Operations []Operation `json:"operations"`
}

type Kill struct {
	TaskID string `json:"task_id"`
}

type Acknowledge struct {
	TaskID   string `json:"task_id"`
	AgentID  string `json:"agent_id,omitempty"`
	UpdateID string `json:"update_id"`
}

// An inbound scheduler call. The type tag selects which member is set.
type Call struct {
	Type        CallType     `json:"type"`
	FrameworkID string       `json:"framework_id,omitempty"`
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Accept      *Accept      `json:"accept,omitempty"`
	Kill        *Kill        `json:"kill,omitempty"`
	Acknowledge *Acknowledge `json:"acknowledge,omitempty"`
}

type Subscribed struct {
	FrameworkID string `json:"framework_id"`
}

// A capability grant to place tasks on an agent.
type Offer struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	FrameworkID string    `json:"framework_id"`
	Resources   Resources `json:"resources"`
	Reserved    Resources `json:"reserved"`
}

type Offers struct {
	Offers []Offer `json:"offers"`
}

// Status of a task's container, included on running updates.
type ContainerStatus struct {
	ContainerID string `json:"container_id"`
	ParentID    string `json:"parent_id"`
}

// A status update for one task. Updates persist until acknowledged
// by their update identifier.
type TaskStatus struct {
	TaskID          string           `json:"task_id"`
	State           TaskState        `json:"state"`
	Message         string           `json:"message,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
	UpdateID        string           `json:"update_id"`
	AgentID         string           `json:"agent_id,omitempty"`
	ContainerStatus *ContainerStatus `json:"container_status,omitempty"`
	ExitCode        *int             `json:"exit_code,omitempty"`
}

type Update struct {
	Status TaskStatus `json:"status"`
}

// Emitted when the executor exits. Status equals the executor's
// process exit code, zero on graceful exit.
type Failure struct {
	ExecutorID string `json:"executor_id"`
	Status     int    `json:"status"`
}

// An outbound executor event. The type tag selects which member is set.
type Event struct {
	Type       EventType   `json:"type"`
	Subscribed *Subscribed `json:"subscribed,omitempty"`
	Offers     *Offers     `json:"offers,omitempty"`
	Update     *Update     `json:"update,omitempty"`
	Failure    *Failure    `json:"failure,omitempty"`
}

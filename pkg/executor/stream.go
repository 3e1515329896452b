package executor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nestor-run/nestor/pkg/log"
	"github.com/nestor-run/nestor/pkg/protocol"
	"github.com/nestor-run/nestor/pkg/utils"
)

// Outbound channel of status updates to the scheduler.
//
// Updates are delivered at least once: each update is buffered until
// an acknowledgement carrying its update identifier arrives, and
// unacknowledged updates are redelivered with the same identifiers
// when the scheduler reconnects.
type StatusStream struct {
	sync.RWMutex

	agentID  string
	outbound *utils.Broadcast[*protocol.Event]

	// Unacknowledged updates in emission order.
	pending []*protocol.TaskStatus

	// Unacknowledged updates indexed by update identifier.
	byID map[string]*protocol.TaskStatus
}

func NewStatusStream(agentID string, outbound *utils.Broadcast[*protocol.Event]) *StatusStream {
	return &StatusStream{
		agentID:  agentID,
		outbound: outbound,
		byID:     map[string]*protocol.TaskStatus{},
	}
}

// Post emits a status update with a freshly minted update identifier
// and an emission timestamp, and buffers it until acknowledged.
func (s *StatusStream) Post(status protocol.TaskStatus) string {
	status.UpdateID = uuid.NewString()
	status.Timestamp = time.Now()
	status.AgentID = s.agentID

	s.Lock()
	s.pending = append(s.pending, &status)
	s.byID[status.UpdateID] = &status
	s.Unlock()

	log.Infof("upd - task - id: %s, state: %s, update: %s",
		status.TaskID, status.State, status.UpdateID)

	s.outbound.Send(&protocol.Event{
		Type:   protocol.EventUpdate,
		Update: &protocol.Update{Status: status},
	})

	return status.UpdateID
}

// Emit an update reflecting the task's current state.
func (s *StatusStream) PostTaskUpdate(task *Task, container *protocol.ContainerStatus) string {
	meta := task.Meta()
	return s.Post(protocol.TaskStatus{
		TaskID:          task.ID(),
		State:           task.State().WireState(),
		Message:         meta.Message,
		ExitCode:        meta.ExitCode,
		ContainerStatus: container,
	})
}

// Acknowledge removes the update with the given identifier from the
// buffer. Unknown identifiers are not ours and are rejected.
func (s *StatusStream) Acknowledge(updateID string) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.byID[updateID]; !ok {
		return utils.ErrNotFound
	}
	delete(s.byID, updateID)

	for i, status := range s.pending {
		if status.UpdateID == updateID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}

	log.Debugf("ack - update - id: %s", updateID)
	return nil
}

// Replay redelivers every unacknowledged update, preserving both the
// emission order and the original update identifiers.
func (s *StatusStream) Replay() {
	s.RLock()
	pending := make([]*protocol.TaskStatus, len(s.pending))
	copy(pending, s.pending)
	s.RUnlock()

	if len(pending) > 0 {
		log.Infof("rep - stream - updates: %d", len(pending))
	}

	for _, status := range pending {
		s.outbound.Send(&protocol.Event{
			Type:   protocol.EventUpdate,
			Update: &protocol.Update{Status: *status},
		})
	}
}

func (s *StatusStream) HasUnacked() bool {
	s.RLock()
	defer s.RUnlock()
	return len(s.pending) > 0
}

func (s *StatusStream) NumUnacked() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.pending)
}

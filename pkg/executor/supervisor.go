package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/nestor-run/nestor/pkg/log"
	"github.com/nestor-run/nestor/pkg/protocol"
	"github.com/nestor-run/nestor/pkg/utils"
)

// States of the executor itself.
type ExecutorState string

const (
	// Registered with the agent, supervising task groups.
	StateSubscribed ExecutorState = "SUBSCRIBED"

	// All groups terminal, waiting for the final acknowledgements.
	StateDraining ExecutorState = "DRAINING"

	// No remaining work; the executor is about to exit.
	StateExiting ExecutorState = "EXITING"
)

// Inputs to the supervision state machine. Finite tagged variants,
// pattern matched by the run loop. Container completions arrive on
// the driver's queue instead.
type input interface {
	isInput()
}

type launchInput struct {
	op *protocol.LaunchGroup
}

type killInput struct {
	taskID string
}

type ackInput struct {
	updateID string
}

type disconnectedInput struct{}

type reconnectedInput struct{}

func (launchInput) isInput()       {}
func (killInput) isInput()         {}
func (ackInput) isInput()          {}
func (disconnectedInput) isInput() {}
func (reconnectedInput) isInput()  {}

// The central state machine. All task and buffer mutations happen on
// its single execution context; inputs are serialized in arrival
// order and handlers run to completion.
type Supervisor struct {
	config   *ExecutorConfig
	registry *Registry
	launcher *Launcher
	killer   *Killer
	stream   *StatusStream
	driver   *ContainerDriver
	outbound *utils.Broadcast[*protocol.Event]

	inputs chan input
	done   chan struct{}

	mu         sync.RWMutex
	state      ExecutorState
	exitStatus int
}

func NewSupervisor(
	config *ExecutorConfig,
	registry *Registry,
	launcher *Launcher,
	killer *Killer,
	stream *StatusStream,
	driver *ContainerDriver,
	outbound *utils.Broadcast[*protocol.Event],
) *Supervisor {
	return &Supervisor{
		config:   config,
		registry: registry,
		launcher: launcher,
		killer:   killer,
		stream:   stream,
		driver:   driver,
		outbound: outbound,
		inputs:   make(chan input, 256),
		done:     make(chan struct{}),
		state:    StateSubscribed,
	}
}

func (s *Supervisor) Launch(op *protocol.LaunchGroup) {
	s.inputs <- launchInput{op: op}
}

func (s *Supervisor) Kill(taskID string) {
	s.inputs <- killInput{taskID: taskID}
}

func (s *Supervisor) Acknowledge(updateID string) {
	s.inputs <- ackInput{updateID: updateID}
}

func (s *Supervisor) SchedulerDisconnected() {
	s.inputs <- disconnectedInput{}
}

func (s *Supervisor) SchedulerReconnected() {
	s.inputs <- reconnectedInput{}
}

func (s *Supervisor) State() ExecutorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(state ExecutorState) {
	s.mu.Lock()
	if s.state != state {
		log.Infof("sta - executor - state: %s", state)
	}
	s.state = state
	s.mu.Unlock()
}

// Channel closed when the supervisor has terminated.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Process exit status the executor should terminate with.
func (s *Supervisor) ExitStatus() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitStatus
}

// Run the state machine until the executor has no remaining work or
// an internal invariant is violated.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case in := <-s.inputs:
			if err := s.handle(in); err != nil {
				return s.fatal(err)
			}

		case c := <-s.driver.Completions():
			if err := s.killer.OnCompletion(c); err != nil {
				return s.fatal(err)
			}
		}

		if s.maybeExit() {
			return nil
		}
	}
}

func (s *Supervisor) handle(in input) error {
	switch v := in.(type) {
	case launchInput:
		if err := s.launcher.Launch(v.op); err != nil {
			// Rejected launches have already been reported to the
			// scheduler; only bookkeeping corruption is fatal.
			if errors.Is(err, utils.ErrIllegalTransition) {
				return err
			}
			log.Debug(err)
		}

	case killInput:
		if err := s.killer.KillTask(v.taskID); err != nil {
			if errors.Is(err, utils.ErrIllegalTransition) {
				return err
			}
			log.Warnf("nok - kill - id: %s: %v", v.taskID, err)
		}

	case ackInput:
		if err := s.stream.Acknowledge(v.updateID); err != nil {
			log.Warnf("nok - ack - id: %s: %v", v.updateID, err)
		}

	case reconnectedInput:
		s.stream.Replay()

	case disconnectedInput:
		// Transient; keep supervising, updates replay on reconnect.
		log.Info("Scheduler disconnected")
	}

	return nil
}

// The executor terminates precisely when every known task is terminal
// and the outbound buffer is empty.
func (s *Supervisor) maybeExit() bool {
	if !s.registry.AllGroupsTerminal() {
		return false
	}

	if s.stream.HasUnacked() {
		s.setState(StateDraining)
		return false
	}

	s.setState(StateExiting)

	log.Info("Committing suicide, no remaining work")
	s.outbound.Send(&protocol.Event{
		Type: protocol.EventFailure,
		Failure: &protocol.Failure{
			ExecutorID: s.config.ExecutorID,
			Status:     0,
		},
	})

	return true
}

// Invariant violation. Emit best-effort LOST updates for remaining
// tasks and terminate with a non-zero status.
func (s *Supervisor) fatal(err error) error {
	log.Error("Internal error:", err)

	for _, task := range s.registry.Tasks() {
		if task.IsTerminal() {
			continue
		}
		s.stream.Post(protocol.TaskStatus{
			TaskID:  task.ID(),
			State:   protocol.TaskLost,
			Message: "Executor terminated due to an internal error",
		})
	}

	s.mu.Lock()
	s.state = StateExiting
	s.exitStatus = 1
	s.mu.Unlock()

	s.outbound.Send(&protocol.Event{
		Type: protocol.EventFailure,
		Failure: &protocol.Failure{
			ExecutorID: s.config.ExecutorID,
			Status:     1,
		},
	})

	return err
}

package executor

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/nestor-run/nestor/pkg/containerizer"
	"github.com/nestor-run/nestor/pkg/protocol"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// In-memory containerizer scripted through the task command:
//
//	"exit N"     terminate immediately with exit code N
//	"sleep ..."  run until signalled
//	"#fail"      reject the launch
type fakeContainerizer struct {
	mu         sync.Mutex
	fs         afero.Fs
	containers map[string]*fakeContainer
}

type fakeContainer struct {
	spec containerizer.Spec
	wait chan containerizer.Termination
	once sync.Once
}

func (c *fakeContainer) terminate(t containerizer.Termination) {
	c.once.Do(func() { c.wait <- t })
}

func newFakeContainerizer(fs afero.Fs) *fakeContainerizer {
	return &fakeContainerizer{
		fs:         fs,
		containers: map[string]*fakeContainer{},
	}
}

func (f *fakeContainerizer) LaunchNested(parentID string, spec containerizer.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.containers[spec.ContainerID]; ok {
		return containerizer.ErrContainerExists
	}

	if spec.Command == "#fail" {
		return containerizer.ErrBadSpec
	}

	if err := f.fs.MkdirAll(spec.SandboxDir, 0777); err != nil {
		return err
	}

	container := &fakeContainer{
		spec: spec,
		wait: make(chan containerizer.Termination, 1),
	}
	f.containers[spec.ContainerID] = container

	fields := strings.Fields(spec.Command)
	if len(fields) == 2 && fields[0] == "exit" {
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return containerizer.ErrBadSpec
		}
		container.terminate(containerizer.Termination{ExitCode: code})
	}

	return nil
}

func (f *fakeContainerizer) KillNested(containerID string, sig syscall.Signal) error {
	f.mu.Lock()
	container := f.containers[containerID]
	f.mu.Unlock()

	if container != nil {
		container.terminate(containerizer.Termination{ExitCode: -1, Signal: sig})
	}
	return nil
}

func (f *fakeContainerizer) WaitNested(containerID string) (<-chan containerizer.Termination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	container, ok := f.containers[containerID]
	if !ok {
		return nil, containerizer.ErrContainerNotFound
	}
	return container.wait, nil
}

// Scheduler side of the link, driving the executor over a real
// connection.
type schedulerClient struct {
	t      *testing.T
	conn   net.Conn
	codec  *protocol.Codec
	events chan *protocol.Event

	frameworkID string
	offers      []protocol.Offer
}

func dialScheduler(t *testing.T, addr string) *schedulerClient {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)

	client := &schedulerClient{
		t:      t,
		conn:   conn,
		codec:  protocol.NewCodec(conn),
		events: make(chan *protocol.Event, 64),
	}

	go func() {
		defer close(client.events)
		for {
			event, err := client.codec.ReadEvent()
			if err != nil {
				return
			}
			client.events <- event
		}
	}()

	return client
}

func (c *schedulerClient) close() {
	c.conn.Close()
}

func (c *schedulerClient) write(call *protocol.Call) {
	require.NoError(c.t, c.codec.WriteCall(call))
}

// Perform the subscription handshake and consume the offer.
func (c *schedulerClient) subscribe(frameworkID string) {
	c.write(&protocol.Call{
		Type: protocol.CallSubscribe,
		Subscribe: &protocol.Subscribe{
			FrameworkInfo: protocol.FrameworkInfo{ID: frameworkID, Name: "test-framework"},
		},
	})

	event := c.nextEvent()
	require.Equal(c.t, protocol.EventSubscribed, event.Type)
	c.frameworkID = event.Subscribed.FrameworkID

	event = c.nextEvent()
	require.Equal(c.t, protocol.EventOffers, event.Type)
	require.NotEmpty(c.t, event.Offers.Offers)
	c.offers = event.Offers.Offers
}

func (c *schedulerClient) executorInfo() protocol.ExecutorInfo {
	return protocol.ExecutorInfo{
		Type:        protocol.ExecutorTypeDefault,
		ID:          "executor-1",
		FrameworkID: c.frameworkID,
	}
}

func (c *schedulerClient) accept(operations ...protocol.Operation) {
	c.write(&protocol.Call{
		Type:        protocol.CallAccept,
		FrameworkID: c.frameworkID,
		Accept: &protocol.Accept{
			OfferIDs:   []string{c.offers[0].ID},
			Operations: operations,
		},
	})
}

func (c *schedulerClient) launchGroup(groupID string, tasks ...protocol.TaskInfo) {
	c.accept(protocol.Operation{
		Type: protocol.OperationLaunchGroup,
		LaunchGroup: &protocol.LaunchGroup{
			Executor:  c.executorInfo(),
			TaskGroup: protocol.TaskGroupInfo{GroupID: groupID, Tasks: tasks},
		},
	})
}

func (c *schedulerClient) kill(taskID string) {
	c.write(&protocol.Call{
		Type:        protocol.CallKill,
		FrameworkID: c.frameworkID,
		Kill:        &protocol.Kill{TaskID: taskID},
	})
}

func (c *schedulerClient) acknowledge(status *protocol.TaskStatus) {
	c.write(&protocol.Call{
		Type:        protocol.CallAcknowledge,
		FrameworkID: c.frameworkID,
		Acknowledge: &protocol.Acknowledge{
			TaskID:   status.TaskID,
			AgentID:  status.AgentID,
			UpdateID: status.UpdateID,
		},
	})
}

func (c *schedulerClient) nextEvent() *protocol.Event {
	for {
		select {
		case event, ok := <-c.events:
			require.True(c.t, ok, "connection closed")
			if event.Type == protocol.EventHeartbeat {
				continue
			}
			return event
		case <-time.After(2 * time.Second):
			require.Fail(c.t, "no event received")
			return nil
		}
	}
}

func (c *schedulerClient) awaitUpdate() *protocol.TaskStatus {
	event := c.nextEvent()
	require.Equal(c.t, protocol.EventUpdate, event.Type)
	require.NotNil(c.t, event.Update)
	return &event.Update.Status
}

// Consume and acknowledge one update, asserting task and state.
func (c *schedulerClient) expectUpdate(taskID string, state protocol.TaskState) *protocol.TaskStatus {
	status := c.awaitUpdate()
	require.Equal(c.t, taskID, status.TaskID)
	require.Equal(c.t, state, status.State)
	c.acknowledge(status)
	return status
}

// Consume and acknowledge one terminal update per task, in any order.
func (c *schedulerClient) expectTerminal(states map[string]protocol.TaskState) {
	for len(states) > 0 {
		status := c.awaitUpdate()
		want, ok := states[status.TaskID]
		require.True(c.t, ok, "unexpected update for task %s", status.TaskID)
		require.Equal(c.t, want, status.State, "task %s", status.TaskID)
		c.acknowledge(status)
		delete(states, status.TaskID)
	}
}

// Consume and acknowledge the STARTING and RUNNING updates of the
// given tasks, launched in declared order.
func (c *schedulerClient) expectRunning(taskIDs ...string) map[string]*protocol.TaskStatus {
	running := map[string]*protocol.TaskStatus{}
	for _, taskID := range taskIDs {
		c.expectUpdate(taskID, protocol.TaskStarting)
		running[taskID] = c.expectUpdate(taskID, protocol.TaskRunning)
	}
	return running
}

func (c *schedulerClient) awaitFailure() *protocol.Failure {
	event := c.nextEvent()
	require.Equal(c.t, protocol.EventFailure, event.Type)
	require.NotNil(c.t, event.Failure)
	return event.Failure
}

// Assert that nothing but heartbeats arrives for a short while.
func (c *schedulerClient) expectSilence() {
	select {
	case event, ok := <-c.events:
		if ok {
			require.Equal(c.t, protocol.EventHeartbeat, event.Type)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func testConfig() *ExecutorConfig {
	return &ExecutorConfig{
		AgentID:           "agent-1",
		ExecutorID:        "executor-1",
		ParentContainerID: "parent-1",
		WorkDir:           "/",
		ListenUri:         "tcp://127.0.0.1:0",
		GracePeriod:       time.Second,
		HeartbeatInterval: time.Minute,
		CPUs:              2,
		MemMB:             1024,
		DiskMB:            1024,
	}
}

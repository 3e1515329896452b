package executor

import (
	"context"
	"net"

	"github.com/nestor-run/nestor/pkg/containerizer"
	"github.com/nestor-run/nestor/pkg/protocol"
	"github.com/nestor-run/nestor/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// Executor supervises the task groups of one framework on one node.
//
// All state is confined to this record; multiple executors can run in
// a single process.
type Executor struct {
	config     *ExecutorConfig
	outbound   *utils.Broadcast[*protocol.Event]
	registry   *Registry
	stream     *StatusStream
	driver     *ContainerDriver
	killer     *Killer
	launcher   *Launcher
	supervisor *Supervisor
	link       *SchedulerLink
}

func New(config *ExecutorConfig, czer containerizer.Containerizer) *Executor {
	outbound := utils.NewBroadcast[*protocol.Event]()
	registry := NewRegistry()
	stream := NewStatusStream(config.AgentID, outbound)
	driver := NewContainerDriver(czer, config.ParentContainerID, config.GracePeriod)
	killer := NewKiller(registry, driver, stream)
	launcher := NewLauncher(config, registry, driver, stream, killer)
	supervisor := NewSupervisor(config, registry, launcher, killer, stream, driver, outbound)
	link := NewSchedulerLink(config, supervisor, outbound)

	return &Executor{
		config:     config,
		outbound:   outbound,
		registry:   registry,
		stream:     stream,
		driver:     driver,
		killer:     killer,
		launcher:   launcher,
		supervisor: supervisor,
		link:       link,
	}
}

// Bind the scheduler link ahead of Run. Optional; Run listens on its
// own when it has not been called.
func (e *Executor) Listen() error {
	return e.link.Listen()
}

// Run the executor until it commits suicide or the context is
// cancelled.
func (e *Executor) Run(ctx context.Context) error {
	if err := e.link.Listen(); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return e.supervisor.Run(ctx)
	})
	eg.Go(func() error {
		return e.link.Serve(ctx)
	})

	err := eg.Wait()
	e.outbound.Close()
	return err
}

// Address of the scheduler link. Valid once Run has started
// listening.
func (e *Executor) Addr() net.Addr {
	return e.link.Addr()
}

func (e *Executor) State() ExecutorState {
	return e.supervisor.State()
}

// Process exit status, zero on graceful shutdown.
func (e *Executor) ExitStatus() int {
	return e.supervisor.ExitStatus()
}

// Channel closed when the executor has terminated.
func (e *Executor) Done() <-chan struct{} {
	return e.supervisor.Done()
}

package executor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nestor-run/nestor/pkg/log"
	"github.com/nestor-run/nestor/pkg/protocol"
	"github.com/nestor-run/nestor/pkg/utils"
)

// SchedulerLink accepts the scheduler connection and bridges it to
// the supervisor: inbound calls are demultiplexed into supervisor
// inputs, outbound events are carried onto the wire, and heartbeats
// are emitted periodically.
//
// One scheduler session is active at a time. A new session must start
// with SUBSCRIBE; on resubscription all unacknowledged updates are
// replayed with their original identifiers.
type SchedulerLink struct {
	config     *ExecutorConfig
	supervisor *Supervisor
	outbound   *utils.Broadcast[*protocol.Event]
	listener   net.Listener

	mu             sync.Mutex
	frameworkID    string
	reserved       protocol.Resources
	subscribedOnce bool
}

func NewSchedulerLink(config *ExecutorConfig, supervisor *Supervisor, outbound *utils.Broadcast[*protocol.Event]) *SchedulerLink {
	return &SchedulerLink{
		config:     config,
		supervisor: supervisor,
		outbound:   outbound,
	}
}

func (l *SchedulerLink) Listen() error {
	if l.listener != nil {
		return nil
	}

	host, err := utils.ParseLinkUrl(l.config.ListenUri)
	if err != nil {
		return err
	}

	l.listener, err = net.Listen("tcp", host)
	if err != nil {
		return err
	}

	log.Info("Listening on tcp", l.listener.Addr().String())
	return nil
}

// Address the link is listening on. Valid after Listen.
func (l *SchedulerLink) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *SchedulerLink) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
		case <-l.supervisor.Done():
		}
		l.listener.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-l.supervisor.Done():
				return nil
			default:
				return err
			}
		}

		if l.session(ctx, conn) {
			return nil
		}
	}
}

// Handle one scheduler session. Returns true when the link is done
// for good, i.e. the executor is exiting.
func (l *SchedulerLink) session(ctx context.Context, conn net.Conn) bool {
	defer conn.Close()

	codec := protocol.NewCodec(conn)

	call, err := codec.ReadCall()
	if err != nil || call.Type != protocol.CallSubscribe || call.Subscribe == nil {
		log.Warn("Session dropped, expected SUBSCRIBE")
		return false
	}

	l.mu.Lock()
	if l.frameworkID == "" {
		l.frameworkID = call.Subscribe.FrameworkInfo.ID
		if l.frameworkID == "" {
			l.frameworkID = uuid.NewString()
		}
	}
	frameworkID := l.frameworkID
	resubscribe := l.subscribedOnce
	l.subscribedOnce = true
	reserved := l.reserved
	l.mu.Unlock()

	log.Infof("new - session - framework: %s", frameworkID)

	// Register for outbound events before triggering any replay so
	// that no update can slip past this session.
	consumer := l.outbound.NewConsumer()
	defer consumer.Close()

	err = codec.WriteEvent(&protocol.Event{
		Type:       protocol.EventSubscribed,
		Subscribed: &protocol.Subscribed{FrameworkID: frameworkID},
	})
	if err != nil {
		return false
	}

	// Offers are produced by the agent and passed through.
	err = codec.WriteEvent(&protocol.Event{
		Type: protocol.EventOffers,
		Offers: &protocol.Offers{
			Offers: []protocol.Offer{{
				ID:          uuid.NewString(),
				AgentID:     l.config.AgentID,
				FrameworkID: frameworkID,
				Resources:   l.config.Resources(),
				Reserved:    reserved,
			}},
		},
	})
	if err != nil {
		return false
	}

	if resubscribe {
		l.supervisor.SchedulerReconnected()
	}

	ended := make(chan struct{})
	defer close(ended)

	calls := make(chan *protocol.Call)
	go func() {
		defer close(calls)
		for {
			call, err := codec.ReadCall()
			if err != nil {
				log.Trace("Scheduler read error:", err)
				return
			}
			select {
			case calls <- call:
			case <-ended:
				return
			}
		}
	}()

	ticker := time.NewTicker(l.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.flush(codec, consumer)
			return true

		case call, ok := <-calls:
			if !ok {
				l.supervisor.SchedulerDisconnected()
				return false
			}
			l.dispatch(call, frameworkID)

		case event := <-consumer.Chan:
			if err := codec.WriteEvent(event); err != nil {
				log.Trace("Scheduler write error:", err)
				l.supervisor.SchedulerDisconnected()
				return false
			}
			if event.Type == protocol.EventFailure {
				return true
			}

		case <-ticker.C:
			if err := codec.WriteEvent(&protocol.Event{Type: protocol.EventHeartbeat}); err != nil {
				log.Trace("Scheduler write error:", err)
				l.supervisor.SchedulerDisconnected()
				return false
			}
		}
	}
}

func (l *SchedulerLink) dispatch(call *protocol.Call, frameworkID string) {
	switch call.Type {
	case protocol.CallAccept:
		if call.Accept == nil {
			log.Warn("Bad ACCEPT call")
			return
		}
		for _, op := range call.Accept.Operations {
			switch op.Type {
			case protocol.OperationReserve:
				if op.Reserve != nil {
					l.reserve(op.Reserve)
				}

			case protocol.OperationLaunchGroup:
				if op.LaunchGroup == nil {
					log.Warn("Bad LAUNCH_GROUP operation")
					continue
				}
				launch := *op.LaunchGroup
				if launch.Executor.FrameworkID == "" {
					launch.Executor.FrameworkID = frameworkID
				}
				l.supervisor.Launch(&launch)

			default:
				log.Warnf("Ignoring operation: %s", op.Type)
			}
		}

	case protocol.CallKill:
		if call.Kill == nil {
			log.Warn("Bad KILL call")
			return
		}
		l.supervisor.Kill(call.Kill.TaskID)

	case protocol.CallAcknowledge:
		if call.Acknowledge == nil {
			log.Warn("Bad ACKNOWLEDGE call")
			return
		}
		l.supervisor.Acknowledge(call.Acknowledge.UpdateID)

	default:
		log.Warnf("Ignoring call: %s", call.Type)
	}
}

// Framework the scheduler subscribed as. Empty until the first
// session.
func (l *SchedulerLink) FrameworkID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frameworkID
}

// Move resources into the reserved pool. Reservation bookkeeping is
// a collaborator concern; the allotment already covers reservations.
func (l *SchedulerLink) reserve(r *protocol.Reserve) {
	l.mu.Lock()
	l.reserved = l.reserved.Plus(r.Resources)
	reserved := l.reserved
	l.mu.Unlock()

	log.Infof("res - resources - cpus: %v, mem: %v, disk: %v",
		reserved.CPUs, reserved.MemMB, reserved.DiskMB)
}

// Write out any already queued events before closing the session.
// The final Failure event must not be lost to a shutdown race.
func (l *SchedulerLink) flush(codec *protocol.Codec, consumer *utils.BroadcastConsumer[*protocol.Event]) {
	for {
		select {
		case event := <-consumer.Chan:
			if err := codec.WriteEvent(event); err != nil {
				return
			}
		default:
			return
		}
	}
}

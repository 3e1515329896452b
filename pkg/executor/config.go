package executor

import (
	"errors"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	"github.com/nestor-run/nestor/pkg/log"
	"github.com/nestor-run/nestor/pkg/protocol"
)

type ExecutorConfig struct {
	// Identifier of the agent the executor runs on.
	// Derived from the machine id if not configured.
	AgentID string `mapstructure:"agent_id"`

	// Identifier of the executor.
	ExecutorID string `mapstructure:"executor_id"`

	// Identifier of the executor's own container. Nested task
	// containers are created under it.
	ParentContainerID string `mapstructure:"parent_container_id"`

	// Directory holding task sandboxes.
	WorkDir string `mapstructure:"work_dir"`

	// Address to accept the scheduler connection on.
	ListenUri string `mapstructure:"listen"`

	// Address of the introspection HTTP endpoint. Disabled if empty.
	HttpUri string `mapstructure:"listen_http"`

	// Grace period between a graceful container stop and forced
	// termination.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// Interval between heartbeat events on the scheduler link.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	// Resource allotment of the executor, reservations included.
	CPUs   float64 `mapstructure:"cpus"`
	MemMB  float64 `mapstructure:"mem_mb"`
	DiskMB float64 `mapstructure:"disk_mb"`
}

func (c *ExecutorConfig) SetDefaults() {
	if c.AgentID == "" {
		if id, err := machineid.ProtectedID("nestor-executor"); err == nil {
			c.AgentID = id
		} else {
			c.AgentID = uuid.NewString()
		}
	}
	if c.ExecutorID == "" {
		c.ExecutorID = uuid.NewString()
	}
	if c.ParentContainerID == "" {
		c.ParentContainerID = uuid.NewString()
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 3 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
}

// Checks if the executor configuration is valid.
func (c *ExecutorConfig) Validate() error {
	if c.WorkDir == "" {
		return errors.New("A work directory is required")
	}

	if c.ListenUri == "" {
		return errors.New("A listen address is required")
	}

	if c.GracePeriod <= 0 {
		return errors.New("The grace period must be greater than zero")
	}

	if c.HeartbeatInterval <= 0 {
		return errors.New("The heartbeat interval must be greater than zero")
	}

	if !c.Resources().IsValid() {
		return errors.New("Resource quantities must be non-negative")
	}

	return nil
}

func (c *ExecutorConfig) Resources() protocol.Resources {
	return protocol.Resources{
		CPUs:   c.CPUs,
		MemMB:  c.MemMB,
		DiskMB: c.DiskMB,
	}
}

func (c *ExecutorConfig) Log() {
	log.Info("Executor configuration:")
	log.Infof("  agent_id = %s", c.AgentID)
	log.Infof("  executor_id = %s", c.ExecutorID)
	log.Infof("  parent_container_id = %s", c.ParentContainerID)
	log.Infof("  work_dir = %s", c.WorkDir)
	log.Infof("  listen = %s", c.ListenUri)
	log.Infof("  listen_http = %s", c.HttpUri)
	log.Infof("  grace_period = %v", c.GracePeriod)
	log.Infof("  heartbeat_interval = %v", c.HeartbeatInterval)
	log.Infof("  cpus = %v", c.CPUs)
	log.Infof("  mem_mb = %v", c.MemMB)
	log.Infof("  disk_mb = %v", c.DiskMB)
}

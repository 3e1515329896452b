package containerizer

import (
	"fmt"
	"io"
	"path"
	"sync"
	"syscall"

	"github.com/klauspost/compress/gzip"
	"github.com/nestor-run/nestor/pkg/log"
	"github.com/nestor-run/nestor/pkg/utils"
	"github.com/spf13/afero"
)

type container struct {
	spec   Spec
	proc   *utils.Process
	done   chan Termination
	stdout afero.File
	stderr afero.File
}

// A containerizer that realizes nested containers as local process
// groups. The container command runs under `sh -c` in its own process
// group, with console output captured in the sandbox.
type processContainerizer struct {
	sync.Mutex

	// Filesystem holding the sandboxes, rooted at the executor's
	// run directory.
	fs afero.Fs

	// Live and exited containers, indexed by container id.
	containers map[string]*container
}

func NewProcessContainerizer(fs afero.Fs) Containerizer {
	return &processContainerizer{
		fs:         fs,
		containers: map[string]*container{},
	}
}

func (p *processContainerizer) LaunchNested(parentID string, spec Spec) error {
	if spec.ContainerID == "" || spec.Command == "" {
		return ErrBadSpec
	}

	p.Lock()
	defer p.Unlock()

	if _, ok := p.containers[spec.ContainerID]; ok {
		return ErrContainerExists
	}

	if err := p.fs.MkdirAll(spec.SandboxDir, 0777); err != nil {
		return err
	}

	stdout, err := p.fs.Create(path.Join(spec.SandboxDir, "stdout"))
	if err != nil {
		return err
	}

	stderr, err := p.fs.Create(path.Join(spec.SandboxDir, "stderr"))
	if err != nil {
		stdout.Close()
		return err
	}

	proc, err := utils.StartProcess("", stdout, stderr, "/bin/sh", "-c", spec.Command)
	if err != nil {
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("%w: %v", ErrBadSpec, err)
	}

	c := &container{
		spec:   spec,
		proc:   proc,
		done:   make(chan Termination, 1),
		stdout: stdout,
		stderr: stderr,
	}
	p.containers[spec.ContainerID] = c

	log.Debugf("new - container - id: %s, parent: %s, pid: %d",
		spec.ContainerID, parentID, proc.Pid)

	go p.reap(c)
	return nil
}

func (p *processContainerizer) KillNested(containerID string, sig syscall.Signal) error {
	p.Lock()
	c, ok := p.containers[containerID]
	p.Unlock()

	if !ok {
		return nil
	}

	log.Debugf("sig - container - id: %s, signal: %v", containerID, sig)

	if err := c.proc.SignalGroup(sig); err != nil {
		// The process group may already be gone.
		log.Trace("Signal failed:", err)
	}

	return nil
}

func (p *processContainerizer) WaitNested(containerID string) (<-chan Termination, error) {
	p.Lock()
	defer p.Unlock()

	c, ok := p.containers[containerID]
	if !ok {
		return nil, ErrContainerNotFound
	}

	return c.done, nil
}

func (p *processContainerizer) reap(c *container) {
	status := <-c.proc.Done()

	c.stdout.Close()
	c.stderr.Close()

	p.compressConsoleLog(path.Join(c.spec.SandboxDir, "stdout"))
	p.compressConsoleLog(path.Join(c.spec.SandboxDir, "stderr"))

	log.Debugf("del - container - id: %s, exit: %d, signal: %v",
		c.spec.ContainerID, status.ExitCode, status.Signal)

	c.done <- Termination{
		ExitCode: status.ExitCode,
		Signal:   status.Signal,
	}
	close(c.done)
}

// Replace a console log with its gzipped form once the container
// has terminated.
func (p *processContainerizer) compressConsoleLog(logPath string) {
	src, err := p.fs.Open(logPath)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := p.fs.Create(logPath + ".gz")
	if err != nil {
		return
	}
	defer dst.Close()

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		log.Warn("Failed to compress console log:", err)
		return
	}

	if err := zw.Close(); err != nil {
		log.Warn("Failed to compress console log:", err)
		return
	}

	p.fs.Remove(logPath)
}

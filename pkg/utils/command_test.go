package utils

import (
	"bytes"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitStatus(t *testing.T, proc *Process) ProcessStatus {
	select {
	case status := <-proc.Done():
		return status
	case <-time.After(5 * time.Second):
		t.Fatal("process did not terminate")
		return ProcessStatus{}
	}
}

func TestStartProcessExit(t *testing.T) {
	var stdout bytes.Buffer
	proc, err := StartProcess("", &stdout, nil, "/bin/sh", "-c", "echo out; exit 3")
	require.NoError(t, err)

	status := awaitStatus(t, proc)
	assert.Equal(t, 3, status.ExitCode)
	assert.Equal(t, syscall.Signal(0), status.Signal)
	assert.Equal(t, "out\n", stdout.String())
}

func TestStartProcessSignalGroup(t *testing.T) {
	proc, err := StartProcess("", nil, nil, "/bin/sh", "-c", "sleep 1000")
	require.NoError(t, err)

	require.NoError(t, proc.SignalGroup(syscall.SIGTERM))

	status := awaitStatus(t, proc)
	assert.Equal(t, -1, status.ExitCode)
	assert.Equal(t, syscall.SIGTERM, status.Signal)
}

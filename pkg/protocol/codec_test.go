package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf)

	call := &Call{
		Type:        CallAccept,
		FrameworkID: "f1",
		Accept: &Accept{
			OfferIDs: []string{"o1"},
			Operations: []Operation{{
				Type: OperationLaunchGroup,
				LaunchGroup: &LaunchGroup{
					Executor: ExecutorInfo{Type: ExecutorTypeDefault, ID: "e1"},
					TaskGroup: TaskGroupInfo{
						GroupID: "g1",
						Tasks: []TaskInfo{{
							TaskID:    "t1",
							Command:   "sleep 1000",
							Resources: Resources{CPUs: 0.5, MemMB: 64, DiskMB: 32},
						}},
					},
				},
			}},
		},
	}
	require.NoError(t, codec.WriteCall(call))

	read, err := codec.ReadCall()
	require.NoError(t, err)
	assert.Equal(t, call, read)
}

func TestCodecTypeTags(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf)

	// Only the member selected by the type tag is carried.
	require.NoError(t, codec.WriteEvent(&Event{
		Type:   EventUpdate,
		Update: &Update{Status: TaskStatus{TaskID: "t1", State: TaskRunning, UpdateID: "u1"}},
	}))

	event, err := codec.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, EventUpdate, event.Type)
	require.NotNil(t, event.Update)
	assert.Equal(t, "t1", event.Update.Status.TaskID)
	assert.Nil(t, event.Subscribed)
	assert.Nil(t, event.Offers)
	assert.Nil(t, event.Failure)
}

func TestCodecFrameTooLarge(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)

	codec := NewCodec(bytes.NewBuffer(header[:]))
	_, err := codec.ReadCall()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestCodecShortRead(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 10)

	// Header promises more payload than the stream carries.
	buf := bytes.NewBuffer(append(header[:], []byte("{}")...))
	codec := NewCodec(buf)
	_, err := codec.ReadCall()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCodecOverWire(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		codec := NewCodec(client)
		codec.WriteCall(&Call{Type: CallSubscribe, Subscribe: &Subscribe{
			FrameworkInfo: FrameworkInfo{ID: "f1", Name: "test"},
		}})
		codec.WriteCall(&Call{Type: CallKill, Kill: &Kill{TaskID: "t1"}})
	}()

	codec := NewCodec(server)

	call, err := codec.ReadCall()
	require.NoError(t, err)
	assert.Equal(t, CallSubscribe, call.Type)
	assert.Equal(t, "f1", call.Subscribe.FrameworkInfo.ID)

	call, err = codec.ReadCall()
	require.NoError(t, err)
	assert.Equal(t, CallKill, call.Type)
	assert.Equal(t, "t1", call.Kill.TaskID)
}

package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Maximum accepted frame size. Frames larger than this indicate a
// corrupt stream or a misbehaving peer.
const MaxFrameSize = 4 << 20

var ErrFrameTooLarge = fmt.Errorf("Frame exceeds maximum size")

// Codec reads and writes length-prefixed, type-tagged messages on a
// single bidirectional stream. Frames are a big-endian uint32 length
// followed by the JSON encoding of a Call or Event.
//
// Reads are only safe from one goroutine. Writes are serialized and
// may be issued from multiple goroutines.
type Codec struct {
	r  *bufio.Reader
	w  io.Writer
	mu sync.Mutex
}

func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{
		r: bufio.NewReader(rw),
		w: rw,
	}
}

func (c *Codec) writeFrame(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.w.Write(header[:]); err != nil {
		return err
	}
	_, err = c.w.Write(data)
	return err
}

func (c *Codec) readFrame(msg any) error {
	var header [4]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		return err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return ErrFrameTooLarge
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return err
	}

	return json.Unmarshal(data, msg)
}

func (c *Codec) WriteCall(call *Call) error {
	return c.writeFrame(call)
}

func (c *Codec) ReadCall() (*Call, error) {
	call := &Call{}
	if err := c.readFrame(call); err != nil {
		return nil, err
	}
	return call, nil
}

func (c *Codec) WriteEvent(event *Event) error {
	return c.writeFrame(event)
}

func (c *Codec) ReadEvent() (*Event, error) {
	event := &Event{}
	if err := c.readFrame(event); err != nil {
		return nil, err
	}
	return event, nil
}

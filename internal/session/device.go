package session

import (
	"context"
	"errors"
	"io"
	"sync"
)

// UploadDevice adapts browser-side chunk uploads to the Device contract.
// The frontend holds the real microphone; each uploaded chunk is pushed
// here and consumed by the recorder's collector.
type UploadDevice struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func NewUploadDevice() *UploadDevice {
	return &UploadDevice{}
}

// Open starts a fresh capture stream. Unlike a physical microphone it
// cannot be refused; permission prompts happen in the browser.
func (d *UploadDevice) Open(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ch = make(chan []byte, 64)
	d.closed = false
	return &uploadStream{device: d}, nil
}

// Push hands an uploaded chunk to the active stream.
func (d *UploadDevice) Push(chunk []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch == nil || d.closed {
		return ErrNotRecording
	}
	select {
	case d.ch <- chunk:
		return nil
	default:
		return errors.New("capture buffer full")
	}
}

func (d *UploadDevice) closeStream() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch != nil && !d.closed {
		d.closed = true
		close(d.ch)
	}
}

type uploadStream struct {
	device *UploadDevice
}

func (s *uploadStream) Next() ([]byte, error) {
	s.device.mu.Lock()
	ch := s.device.ch
	s.device.mu.Unlock()
	chunk, ok := <-ch
	if !ok {
		return nil, io.EOF
	}
	return chunk, nil
}

func (s *uploadStream) Close() error {
	s.device.closeStream()
	return nil
}

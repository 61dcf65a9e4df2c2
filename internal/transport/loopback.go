package transport

import (
	"github.com/kenneth/c2c-secure-channel/internal/crypto"
)

// defaultQueueSize is generous enough to hold several wire chunks so the
// reference harness doesn't deadlock feeding itself one chunk at a time.
const defaultQueueSize = 64 * 1024

// Endpoint is one side of an in-memory, full-duplex pipe: writes on one
// Endpoint become readable on its peer. It is backed by the teacher's
// BoundedQueue (internal/crypto/boundedqueue.go), repurposed here as the
// pipe's byte buffer with built-in backpressure and cancellation instead
// of its original buffer-pool role.
type Endpoint struct {
	readQ  *crypto.BoundedQueue
	writeQ *crypto.BoundedQueue
}

// NewPipe returns two connected Endpoints: bytes written to a are read
// from b, and vice versa.
func NewPipe() (a, b *Endpoint) {
	ab := crypto.NewBoundedQueue(defaultQueueSize)
	ba := crypto.NewBoundedQueue(defaultQueueSize)
	a = &Endpoint{readQ: ba, writeQ: ab}
	b = &Endpoint{readQ: ab, writeQ: ba}
	return a, b
}

// Write blocks only while its peer's read queue is full.
func (e *Endpoint) Write(p []byte) (int, error) {
	return e.writeQ.Write(p)
}

// Read returns as soon as at least one byte is available, per ordinary
// io.Reader semantics — it never blocks waiting to fill all of p, unlike
// BoundedQueue.Read called directly.
func (e *Endpoint) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if e.readQ.Size() == 0 {
		return e.readQ.Read(p[:1])
	}
	n := e.readQ.Size()
	if n > len(p) {
		n = len(p)
	}
	return e.readQ.Read(p[:n])
}

// Close unblocks any pending Read/Write on this endpoint's queues.
func (e *Endpoint) Close() error {
	e.readQ.Close()
	e.writeQ.Close()
	return nil
}

package channel

import (
	"fmt"
	"time"

	"github.com/kenneth/c2c-secure-channel/internal/crypto"
)

// Feed appends plaintext to the egress accumulator and, once the
// accumulator holds a full chunk's worth of plaintext, emits exactly one
// wire chunk. Per §4.4, Feed never emits more than one chunk per call; a
// caller with more plaintext than fits must split it into pieces no larger
// than the room left in the accumulator, feed them one at a time, then
// Flush for the remainder.
//
// Feed returns ErrResourceExhausted, without touching the accumulator, if
// plaintext is longer than the room currently left in it — it never
// silently truncates. The caller must feed at most chunkPlainMax bytes
// per call, draining (observing a non-nil chunk) before feeding more.
func (c *SecurityContext) Feed(plaintext []byte) ([]byte, error) {
	c.egressMu.Lock()
	defer c.egressMu.Unlock()

	room := c.chunkPlainMax - len(c.egressAccum)
	if len(plaintext) > room {
		return nil, fmt.Errorf("%w: fed %d bytes, only %d bytes of room left in the accumulator", ErrResourceExhausted, len(plaintext), room)
	}
	c.egressAccum = append(c.egressAccum, plaintext...)

	if len(c.egressAccum) < c.chunkPlainMax {
		return nil, nil
	}
	return c.cutChunkLocked()
}

// Flush emits whatever plaintext remains in the accumulator as one
// final, possibly short, chunk. It returns a nil chunk if the accumulator
// is empty. Flush is idempotent: calling it again with nothing fed in
// between returns (nil, nil).
func (c *SecurityContext) Flush() ([]byte, error) {
	c.egressMu.Lock()
	defer c.egressMu.Unlock()

	if len(c.egressAccum) == 0 {
		return nil, nil
	}
	return c.cutChunkLocked()
}

// cutChunkLocked encrypts and frames the accumulator's current contents
// and resets it to empty. Caller must hold egressMu.
func (c *SecurityContext) cutChunkLocked() ([]byte, error) {
	start := time.Now()
	plainLen := len(c.egressAccum)

	padCap := plainLen + crypto.BlockPad
	buf := make([]byte, plainLen, padCap)
	copy(buf, c.egressAccum)
	c.egressAccum = c.egressAccum[:0]

	padded, err := crypto.Pad(buf, plainLen)
	if err != nil {
		return nil, fmt.Errorf("channel: egress pad: %w", err)
	}

	pool := crypto.GetGlobalBufferPool()
	iv, ivHit := pool.GetIV()
	defer pool.PutIV(iv)
	c.recordBufferPoolEvent("iv", ivHit)
	if err := crypto.FillRandom(iv); err != nil {
		return nil, fmt.Errorf("channel: egress iv: %w", err)
	}

	ciphertext, err := crypto.EncryptCBC(c.encKey, iv, padded)
	if err != nil {
		return nil, fmt.Errorf("channel: egress encrypt: %w", err)
	}

	tagBuf, tagHit := pool.GetTag()
	defer pool.PutTag(tagBuf)
	c.recordBufferPoolEvent("tag", tagHit)
	computed := computeTag(c.scheme, c.teSecret, c.hmacKey, iv, ciphertext)
	tag := tagBuf[:copy(tagBuf, computed)]
	wire := EncodeFrame(iv, ciphertext, tag)
	c.traceFrame("tx", iv, ciphertext, tag)

	c.egressIndex++
	if c.metrics != nil {
		c.metrics.RecordChunkSent(c.scheme.String(), plainLen)
		c.metrics.ObserveChunkLatency("tx", time.Since(start).Seconds())
	}
	if c.audit != nil {
		c.audit.LogChunkSent(c.id, c.scheme.String(), c.egressIndex, len(ciphertext), time.Since(start), nil)
	}

	return wire, nil
}

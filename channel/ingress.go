package channel

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/kenneth/c2c-secure-channel/internal/crypto"
)

// Consume feeds buf[:n] of newly-arrived transport bytes into the ingress
// side and returns however much plaintext the call was able to recover.
// A single call may coalesce plaintext from several complete wire chunks
// if buf[:n] happens to contain more than one.
//
// Before Arm has been called, Consume is a transparent pass-through: bytes
// are returned unprocessed, on the assumption that the link is still
// carrying ordinary (unframed) traffic. After Arm, the first byte Consume
// sees must be a START marker; anything else is ErrMalformed (§9).
//
// When no partial frame carried over from a previous call, Consume decrypts
// directly over buf's ciphertext regions and shifts the recovered plaintext
// down to overwrite the framing/IV/tag bytes in place, so the returned
// slice aliases buf and begins at buf's own start (§4.5/§4.7's zero-copy
// contract). The one exception is a frame split across two separate
// Consume calls: the undecoded tail from the previous call lives in an
// internally-owned carry-over buffer, so the frame that completes it is
// necessarily assembled by copying rather than decrypted in place. Once
// that carried-over frame (and any others queued behind it) drains, later
// calls resume the in-place fast path.
//
// If a chunk fails its tag check, Consume records the failure (metrics,
// audit) and moves on to the next chunk in the buffer rather than
// returning early — per the channel's recovery policy a failed chunk does
// not invalidate plaintext already recovered from earlier chunks, including
// earlier chunks within the same call. The first error encountered, if
// any, is returned alongside whatever plaintext was recovered.
func (c *SecurityContext) Consume(buf []byte, n int) ([]byte, int, error) {
	if !c.Armed() {
		return buf[:n], n, nil
	}

	c.ingressMu.Lock()
	defer c.ingressMu.Unlock()

	if len(c.ingressBuf) == 0 {
		return c.consumeInPlaceLocked(buf, n)
	}
	return c.consumeBufferedLocked(buf, n)
}

// consumeInPlaceLocked is the fast path: no frame carried over from a
// previous call, so buf[:n] is decoded, decrypted, and compacted entirely
// within its own backing array. Caller must hold ingressMu.
func (c *SecurityContext) consumeInPlaceLocked(buf []byte, n int) ([]byte, int, error) {
	in := buf[:n]
	writeOff := 0
	readOff := 0
	var firstErr error

	for readOff < len(in) {
		outcome, err := TryDecodeFrame(in[readOff:], c.scheme, c.maxWireLen)
		switch err {
		case ErrNeedMore:
			tail := in[readOff:]
			if len(tail) > c.maxWireLen*2 {
				return in[:writeOff], n, fmt.Errorf("%w: ingress working buffer would exceed %d bytes", ErrResourceExhausted, c.maxWireLen*2)
			}
			c.ingressBuf = append(c.ingressBuf[:0], tail...)
			return in[:writeOff], n, firstErr
		case ErrMalformed:
			if c.metrics != nil {
				c.metrics.RecordMalformedFrame("framing")
			}
			if c.audit != nil {
				c.audit.LogMalformedFrame(c.id, "framing", ErrMalformed)
			}
			if firstErr == nil {
				firstErr = ErrMalformed
			}
			next := bytes.IndexByte(in[readOff+1:], startMarker)
			if next < 0 {
				return in[:writeOff], n, firstErr
			}
			readOff = readOff + 1 + next
			continue
		case nil:
			// fall through below
		default:
			return in[:writeOff], n, err
		}

		frame := outcome.Frame
		pool := crypto.GetGlobalBufferPool()
		tagBuf, tagHit := pool.GetTag()
		c.recordBufferPoolEvent("tag", tagHit)
		expected := computeTagInto(tagBuf, c.scheme, c.teSecret, c.hmacKey, frame.IV, frame.Ciphertext)
		match := subtle.ConstantTimeCompare(expected, frame.Tag) == 1
		pool.PutTag(tagBuf)
		if !match {
			c.ingressIndex++
			if c.metrics != nil {
				c.metrics.RecordAuthFailure(c.scheme.String())
			}
			if c.audit != nil {
				c.audit.LogAuthFailure(c.id, c.scheme.String(), c.ingressIndex, ErrAuthFailed)
			}
			if firstErr == nil {
				firstErr = ErrAuthFailed
			}
			readOff += outcome.Consumed
			continue
		}

		start := time.Now()
		padded, err := crypto.DecryptCBC(c.encKey, frame.IV, frame.Ciphertext)
		if err != nil {
			return in[:writeOff], n, fmt.Errorf("channel: ingress decrypt: %w", err)
		}
		plainLen, err := crypto.Unpad(padded, len(padded))
		if err != nil {
			c.ingressIndex++
			if c.metrics != nil {
				c.metrics.RecordAuthFailure(c.scheme.String())
			}
			if c.audit != nil {
				c.audit.LogAuthFailure(c.id, c.scheme.String(), c.ingressIndex, ErrAuthFailed)
			}
			if firstErr == nil {
				firstErr = ErrAuthFailed
			}
			readOff += outcome.Consumed
			continue
		}

		c.traceFrame("rx", frame.IV, frame.Ciphertext, frame.Tag)
		// writeOff <= readOff always (it only ever grows by the plaintext
		// carved out of a frame that started at or after readOff), so this
		// shift is always a copy toward the front of in, safe regardless
		// of overlap.
		copy(in[writeOff:], padded[:plainLen])
		writeOff += plainLen

		c.ingressIndex++
		if c.metrics != nil {
			c.metrics.RecordChunkReceived(c.scheme.String(), plainLen)
			c.metrics.ObserveChunkLatency("rx", time.Since(start).Seconds())
		}
		if c.audit != nil {
			c.audit.LogChunkReceived(c.id, c.scheme.String(), c.ingressIndex, plainLen, time.Since(start), nil)
		}

		readOff += outcome.Consumed
	}

	return in[:writeOff], n, firstErr
}

// consumeBufferedLocked is the slow path: a frame carried over incomplete
// from a previous call, so buf[:n] is appended to the internally-owned
// ingressBuf and processed there. Recovered plaintext is necessarily a
// fresh copy, since it may be assembled from bytes spanning two distinct
// backing arrays. Caller must hold ingressMu.
func (c *SecurityContext) consumeBufferedLocked(buf []byte, n int) ([]byte, int, error) {
	in := buf[:n]
	if len(c.ingressBuf)+len(in) > c.maxWireLen*2 {
		return nil, 0, fmt.Errorf("%w: ingress working buffer would exceed %d bytes", ErrResourceExhausted, c.maxWireLen*2)
	}
	c.ingressBuf = append(c.ingressBuf, in...)

	var plaintext []byte
	var firstErr error

	for {
		outcome, err := TryDecodeFrame(c.ingressBuf, c.scheme, c.maxWireLen)
		switch err {
		case ErrNeedMore:
			return plaintext, n, firstErr
		case ErrMalformed:
			if c.metrics != nil {
				c.metrics.RecordMalformedFrame("framing")
			}
			if c.audit != nil {
				c.audit.LogMalformedFrame(c.id, "framing", ErrMalformed)
			}
			c.resyncLocked()
			if firstErr == nil {
				firstErr = ErrMalformed
			}
			if len(c.ingressBuf) == 0 {
				return plaintext, n, firstErr
			}
			continue
		case nil:
			// fall through below
		default:
			return plaintext, n, err
		}

		frame := outcome.Frame
		pool := crypto.GetGlobalBufferPool()
		tagBuf, tagHit := pool.GetTag()
		c.recordBufferPoolEvent("tag", tagHit)
		expected := computeTagInto(tagBuf, c.scheme, c.teSecret, c.hmacKey, frame.IV, frame.Ciphertext)
		match := subtle.ConstantTimeCompare(expected, frame.Tag) == 1
		pool.PutTag(tagBuf)
		if !match {
			c.ingressIndex++
			if c.metrics != nil {
				c.metrics.RecordAuthFailure(c.scheme.String())
			}
			if c.audit != nil {
				c.audit.LogAuthFailure(c.id, c.scheme.String(), c.ingressIndex, ErrAuthFailed)
			}
			if firstErr == nil {
				firstErr = ErrAuthFailed
			}
			c.consumeLocked(outcome.Consumed)
			continue
		}

		start := time.Now()
		padded, err := crypto.DecryptCBC(c.encKey, frame.IV, frame.Ciphertext)
		if err != nil {
			return plaintext, n, fmt.Errorf("channel: ingress decrypt: %w", err)
		}
		plainLen, err := crypto.Unpad(padded, len(padded))
		if err != nil {
			c.ingressIndex++
			if c.metrics != nil {
				c.metrics.RecordAuthFailure(c.scheme.String())
			}
			if c.audit != nil {
				c.audit.LogAuthFailure(c.id, c.scheme.String(), c.ingressIndex, ErrAuthFailed)
			}
			if firstErr == nil {
				firstErr = ErrAuthFailed
			}
			c.consumeLocked(outcome.Consumed)
			continue
		}

		c.traceFrame("rx", frame.IV, frame.Ciphertext, frame.Tag)
		plaintext = append(plaintext, padded[:plainLen]...)
		c.ingressIndex++
		if c.metrics != nil {
			c.metrics.RecordChunkReceived(c.scheme.String(), plainLen)
			c.metrics.ObserveChunkLatency("rx", time.Since(start).Seconds())
		}
		if c.audit != nil {
			c.audit.LogChunkReceived(c.id, c.scheme.String(), c.ingressIndex, plainLen, time.Since(start), nil)
		}

		c.consumeLocked(outcome.Consumed)
	}
}

// consumeLocked removes the first k bytes of the working buffer. Caller
// must hold ingressMu.
func (c *SecurityContext) consumeLocked(k int) {
	copy(c.ingressBuf, c.ingressBuf[k:])
	c.ingressBuf = c.ingressBuf[:len(c.ingressBuf)-k]
}

// resyncLocked recovers from a malformed frame by discarding bytes up to
// (but not including) the next candidate START marker, or the entire
// buffer if none remains. Caller must hold ingressMu.
func (c *SecurityContext) resyncLocked() {
	if len(c.ingressBuf) == 0 {
		return
	}
	next := bytes.IndexByte(c.ingressBuf[1:], startMarker)
	if next < 0 {
		c.ingressBuf = c.ingressBuf[:0]
		return
	}
	c.consumeLocked(next + 1)
}

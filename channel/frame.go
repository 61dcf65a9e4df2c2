package channel

import (
	"encoding/binary"
)

const (
	startMarker byte = 0xF8
	endMarker   byte = 0xF9

	ivLen = 16
	// headerLen is the start marker plus the two-byte length field; the
	// minimum number of bytes needed before the length can even be read.
	headerLen = 3
)

// Frame is a fully decoded wire chunk: the fields needed to verify its tag
// and decrypt its ciphertext. IV, Ciphertext, and Tag all alias the input
// buffer passed to TryDecodeFrame — callers must not mutate the source
// buffer while a Frame derived from it is still in use.
type Frame struct {
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// DecodeOutcome is the result of one TryDecodeFrame call.
type DecodeOutcome struct {
	// Frame is non-nil only when Err is nil.
	Frame *Frame
	// Consumed is the number of leading bytes of the input buffer that
	// make up this frame; meaningful only when Err is nil.
	Consumed int
	// NeedMore is a lower bound on how many additional bytes must arrive
	// before decoding can make progress; meaningful only when
	// Err == ErrNeedMore.
	NeedMore int
}

// EncodeFrame builds the wire bytes for one chunk: START | u16(len) | IV |
// ciphertext | tag | END, per §6.1. Ciphertext must already be a multiple
// of 16 bytes; tag must already be the scheme's tag length.
func EncodeFrame(iv, ciphertext, tag []byte) []byte {
	length := len(iv) + len(ciphertext) + len(tag)
	out := make([]byte, 0, headerLen+length+1)
	out = append(out, startMarker)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(length))
	out = append(out, lenBuf[:]...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	out = append(out, endMarker)
	return out
}

// TryDecodeFrame is the restartable parser of §4.3: given a byte prefix
// that may or may not hold a complete chunk, it returns one of NeedMore,
// a decoded Frame, or ErrMalformed. It never allocates on the Malformed or
// NeedMore paths, and never reads past the bytes a complete frame needs.
func TryDecodeFrame(buf []byte, scheme Scheme, maxWireLen int) (DecodeOutcome, error) {
	if len(buf) < 1 {
		return DecodeOutcome{NeedMore: 1}, ErrNeedMore
	}
	if buf[0] != startMarker {
		return DecodeOutcome{}, ErrMalformed
	}
	if len(buf) < headerLen {
		return DecodeOutcome{NeedMore: headerLen - len(buf)}, ErrNeedMore
	}

	length := int(binary.BigEndian.Uint16(buf[1:headerLen]))
	tagLen := scheme.TagLen()
	minLength := ivLen + 16 + tagLen // ciphertext is at least one 16-byte block
	if length < minLength {
		return DecodeOutcome{}, ErrMalformed
	}
	cipherLen := length - ivLen - tagLen
	if cipherLen%16 != 0 {
		return DecodeOutcome{}, ErrMalformed
	}

	total := headerLen + length + 1 // + END marker
	if maxWireLen > 0 && total > maxWireLen {
		return DecodeOutcome{}, ErrMalformed
	}
	if len(buf) < total {
		return DecodeOutcome{NeedMore: total - len(buf)}, ErrNeedMore
	}
	if buf[total-1] != endMarker {
		return DecodeOutcome{}, ErrMalformed
	}

	ivStart := headerLen
	cipherStart := ivStart + ivLen
	tagStart := cipherStart + cipherLen

	return DecodeOutcome{
		Frame: &Frame{
			IV:         buf[ivStart:cipherStart],
			Ciphertext: buf[cipherStart:tagStart],
			Tag:        buf[tagStart : tagStart+tagLen],
		},
		Consumed: total,
	}, nil
}

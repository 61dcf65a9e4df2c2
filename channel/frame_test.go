package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i)
	}
	ciphertext := make([]byte, 32)
	for i := range ciphertext {
		ciphertext[i] = byte(i * 3)
	}
	tag := make([]byte, 32)
	for i := range tag {
		tag[i] = byte(255 - i)
	}

	wire := EncodeFrame(iv, ciphertext, tag)
	assert.Equal(t, byte(0xF8), wire[0])
	assert.Equal(t, byte(0xF9), wire[len(wire)-1])
	assert.Len(t, wire, 1+2+16+32+32+1)

	outcome, err := TryDecodeFrame(wire, SchemeV1, 0)
	require.NoError(t, err)
	assert.Equal(t, len(wire), outcome.Consumed)
	assert.Equal(t, iv, outcome.Frame.IV)
	assert.Equal(t, ciphertext, outcome.Frame.Ciphertext)
	assert.Equal(t, tag, outcome.Frame.Tag)
}

func TestTryDecodeFrameNeedMore(t *testing.T) {
	iv := make([]byte, 16)
	ciphertext := make([]byte, 16)
	tag := make([]byte, 16)
	wire := EncodeFrame(iv, ciphertext, tag)

	for n := 0; n < len(wire); n++ {
		outcome, err := TryDecodeFrame(wire[:n], SchemeV2, 0)
		require.ErrorIs(t, err, ErrNeedMore)
		assert.Greater(t, outcome.NeedMore, 0)
	}

	outcome, err := TryDecodeFrame(wire, SchemeV2, 0)
	require.NoError(t, err)
	assert.Equal(t, len(wire), outcome.Consumed)
}

func TestTryDecodeFrameMalformedBadStart(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x10}
	_, err := TryDecodeFrame(buf, SchemeV1, 0)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestTryDecodeFrameMalformedBadEnd(t *testing.T) {
	iv := make([]byte, 16)
	ciphertext := make([]byte, 16)
	tag := make([]byte, 32)
	wire := EncodeFrame(iv, ciphertext, tag)
	wire[len(wire)-1] = 0x00

	_, err := TryDecodeFrame(wire, SchemeV1, 0)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestTryDecodeFrameMalformedShortLength(t *testing.T) {
	// LENGTH too small to even hold IV + one cipher block + tag.
	buf := []byte{0xF8, 0x00, 0x05}
	_, err := TryDecodeFrame(buf, SchemeV1, 0)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestTryDecodeFrameMalformedUnalignedCiphertext(t *testing.T) {
	// length = 16 (iv) + 17 (not a multiple of 16) + 32 (tag)
	var buf [3]byte
	buf[0] = 0xF8
	length := uint16(16 + 17 + 32)
	buf[1] = byte(length >> 8)
	buf[2] = byte(length)
	_, err := TryDecodeFrame(buf[:], SchemeV1, 0)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestTryDecodeFrameMalformedExceedsMaxWireLen(t *testing.T) {
	iv := make([]byte, 16)
	ciphertext := make([]byte, 32)
	tag := make([]byte, 32)
	wire := EncodeFrame(iv, ciphertext, tag)

	_, err := TryDecodeFrame(wire, SchemeV1, len(wire)-1)
	require.ErrorIs(t, err, ErrMalformed)

	outcome, err := TryDecodeFrame(wire, SchemeV1, len(wire))
	require.NoError(t, err)
	assert.Equal(t, len(wire), outcome.Consumed)
}

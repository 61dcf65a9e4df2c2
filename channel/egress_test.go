package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedEmitsOnlyWhenFull(t *testing.T) {
	ctx := newTestContext(SchemeV1, 16)

	chunk, err := ctx.Feed([]byte("short")) // 5 bytes
	require.NoError(t, err)
	assert.Nil(t, chunk)

	chunk, err = ctx.Feed([]byte("11 bytes!!!")) // 11 bytes, fills to 16
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, byte(0xF8), chunk[0])
	assert.Equal(t, byte(0xF9), chunk[len(chunk)-1])
}

func TestFlushEmitsRemainderAndIsIdempotent(t *testing.T) {
	ctx := newTestContext(SchemeV1, 48)

	chunk, err := ctx.Flush()
	require.NoError(t, err)
	assert.Nil(t, chunk)

	_, err = ctx.Feed([]byte("partial"))
	require.NoError(t, err)

	chunk, err = ctx.Flush()
	require.NoError(t, err)
	require.NotNil(t, chunk)

	chunk, err = ctx.Flush()
	require.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestFeedOversizedSingleCallIsResourceExhausted(t *testing.T) {
	ctx := newTestContext(SchemeV1, 16)
	_, err := ctx.Feed(make([]byte, 17))
	require.ErrorIs(t, err, ErrResourceExhausted)
}

func TestEgressIVUniqueness(t *testing.T) {
	ctx := newTestContext(SchemeV1, 16)

	chunk1, err := ctx.Feed(make([]byte, 16))
	require.NoError(t, err)
	require.NotNil(t, chunk1)

	chunk2, err := ctx.Feed(make([]byte, 16))
	require.NoError(t, err)
	require.NotNil(t, chunk2)

	iv1 := chunk1[3:19]
	iv2 := chunk2[3:19]
	assert.NotEqual(t, iv1, iv2)
	assert.NotEqual(t, chunk1, chunk2)
}

func TestEgressV2WireShape(t *testing.T) {
	ctx := newTestContext(SchemeV2, 48)
	_, err := ctx.Feed(make([]byte, 16))
	require.NoError(t, err)
	chunk, err := ctx.Flush()
	require.NoError(t, err)
	require.NotNil(t, chunk)

	// start(1) + len(2) + iv(16) + cipher(32, full block pad) + tag(16) + end(1)
	assert.Len(t, chunk, 1+2+16+32+16+1)
}

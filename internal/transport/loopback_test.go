package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeRoundTrip(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	msg := []byte("AT+BLAH0=thing-thing\r")
	n, err := a.Write(msg)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)

	got := make([]byte, len(msg))
	total := 0
	for total < len(msg) {
		n, err := b.Read(got[total:])
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, msg, got)
}

func TestPipeIsFullDuplex(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	_, err := a.Write([]byte("to-b"))
	require.NoError(t, err)
	_, err = b.Write([]byte("to-a"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "to-b", string(buf))

	_, err = a.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "to-a", string(buf))
}

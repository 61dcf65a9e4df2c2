package channel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// sendAll drives plaintext through tx's egress engine, feeding it in
// pieces no larger than the accumulator's remaining room (Feed's
// contract), and returns the concatenated wire bytes of every chunk it
// emits plus the chunk count.
func sendAll(t *testing.T, tx *SecurityContext, plaintext []byte) ([]byte, int) {
	t.Helper()
	var wire []byte
	chunks := 0

	off := 0
	for off < len(plaintext) {
		room := tx.ChunkPlainMax() - tx.AccumulatorFill()
		end := off + room
		if end > len(plaintext) {
			end = len(plaintext)
		}
		chunk, err := tx.Feed(plaintext[off:end])
		require.NoError(t, err)
		if chunk != nil {
			wire = append(wire, chunk...)
			chunks++
		}
		off = end
	}

	last, err := tx.Flush()
	require.NoError(t, err)
	if last != nil {
		wire = append(wire, last...)
		chunks++
	}
	return wire, chunks
}

// --- Property 1: round-trip ---

func TestPropertyRoundTrip(t *testing.T) {
	for _, scheme := range []Scheme{SchemeV1, SchemeV2} {
		for _, n := range []int{0, 1, 15, 16, 17, 100, 1008, 2500} {
			t.Run(fmt.Sprintf("%s/%d", scheme, n), func(t *testing.T) {
				tx := newTestContext(scheme, 48)
				rx := newTestContext(scheme, 48)
				rx.Arm()

				plaintext := fixtureBytes(n)
				wire, _ := sendAll(t, tx, plaintext)

				out, consumed, err := rx.Consume(wire, len(wire))
				require.NoError(t, err)
				assert.Equal(t, len(wire), consumed)
				// Compared as strings: for n == 0 Consume returns a nil
				// slice, which testify treats as unequal to an empty one.
				assert.Equal(t, string(plaintext), string(out))
			})
		}
	}
}

// --- Property 2: chunking determinism ---

func TestPropertyChunkingDeterminism(t *testing.T) {
	cases := []struct {
		n, cap, want int
	}{
		{47, 48, 1},
		{48, 48, 1},
		{49, 48, 2},
		{58, 48, 2},
		{200, 48, 5},
		{96, 48, 2},
	}
	for _, c := range cases {
		tx := newTestContext(SchemeV1, c.cap)
		_, chunks := sendAll(t, tx, fixtureBytes(c.n))
		assert.Equal(t, c.want, chunks, "n=%d cap=%d", c.n, c.cap)
	}
}

// --- Property 3: fragmentation resilience ---

func TestPropertyFragmentationResilience(t *testing.T) {
	tx := newTestContext(SchemeV1, 48)
	plaintext := fixtureBytes(300)
	wire, _ := sendAll(t, tx, plaintext)

	splitSets := [][]int{
		{1},
		{7, 3, 50},
		{len(wire)},
	}
	for _, splits := range splitSets {
		rx := newTestContext(SchemeV1, 48)
		rx.Arm()

		var out []byte
		off := 0
		si := 0
		for off < len(wire) {
			step := 1
			if si < len(splits) {
				step = splits[si]
				si++
			}
			if off+step > len(wire) {
				step = len(wire) - off
			}
			if step == 0 {
				step = 1
			}
			got, consumed, err := rx.Consume(wire[off:off+step], step)
			require.NoError(t, err)
			assert.Equal(t, step, consumed)
			out = append(out, got...)
			off += step
		}
		assert.Equal(t, plaintext, out)
	}
}

// --- Property 5: tag sensitivity ---

func TestPropertyTagSensitivity(t *testing.T) {
	tx := newTestContext(SchemeV1, 16)
	chunk, err := tx.Feed(make([]byte, 16))
	require.NoError(t, err)
	require.NotNil(t, chunk)

	// Flip one bit at a time across IV, ciphertext, and tag regions.
	positions := []int{3, 10, 22, len(chunk) - 3}
	for _, pos := range positions {
		tampered := append([]byte(nil), chunk...)
		tampered[pos] ^= 0x01

		rx := newTestContext(SchemeV1, 16)
		rx.Arm()
		_, _, err := rx.Consume(tampered, len(tampered))
		require.ErrorIs(t, err, ErrAuthFailed)
	}
}

// --- Property 7: direction independence ---

func TestPropertyDirectionIndependence(t *testing.T) {
	txOut := newTestContext(SchemeV1, 32)
	rxOut := newTestContext(SchemeV1, 32)
	rxOut.Arm()
	txIn := newTestContext(SchemeV2, 32)
	rxIn := newTestContext(SchemeV2, 32)
	rxIn.Arm()

	outPlain := fixtureBytes(70)
	inPlain := fixtureBytes(55)

	outWire, _ := sendAll(t, txOut, outPlain)
	inWire, _ := sendAll(t, txIn, inPlain)

	done := make(chan []byte, 2)
	go func() {
		out, _, err := rxOut.Consume(outWire, len(outWire))
		require.NoError(t, err)
		done <- out
	}()
	go func() {
		in, _, err := rxIn.Consume(inWire, len(inWire))
		require.NoError(t, err)
		done <- in
	}()
	got1 := <-done
	got2 := <-done

	results := [][]byte{got1, got2}
	assert.Contains(t, results, outPlain)
	assert.Contains(t, results, inPlain)
}

// --- §8 concrete scenario table (S1-S6) ---

func TestScenarioTable(t *testing.T) {
	cases := []struct {
		name       string
		scheme     Scheme
		plaintext  []byte
		cap        int
		wantChunks int
	}{
		{"S1", SchemeV1, []byte("Hello world!"), 1008, 1},
		{"S2", SchemeV2, []byte("Hello world!"), 1008, 1},
		{"S3", SchemeV1, []byte("0123456789abcdef"), 1008, 1},
		{"S4", SchemeV1, fixtureBytes(47), 48, 1},
		{"S5", SchemeV1, fixtureBytes(58), 48, 2},
		{"S6", SchemeV2, fixtureBytes(200), 48, 5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tx := newTestContext(c.scheme, c.cap)
			rx := newTestContext(c.scheme, c.cap)
			rx.Arm()

			wire, chunks := sendAll(t, tx, c.plaintext)
			assert.Equal(t, c.wantChunks, chunks)

			out, _, err := rx.Consume(wire, len(wire))
			require.NoError(t, err)
			assert.Equal(t, c.plaintext, out)
		})
	}
}

// cellSecC2cAtClient mirrors §8's end-to-end AT-client loopback scenario: a
// command is framed by one context, decrypted by a peer, which replies with
// an encrypted "\r\nOK\r\n" that the first context decodes.
func TestCellSecC2cAtClient(t *testing.T) {
	client := newTestContext(SchemeV1, 1008)
	modem := newTestContext(SchemeV1, 1008)
	modem.Arm()
	client.Arm()

	command := []byte("AT+BLAH0=thing-thing\r")
	wire, _ := sendAll(t, client, command)

	gotCommand, _, err := modem.Consume(wire, len(wire))
	require.NoError(t, err)
	assert.Equal(t, command, gotCommand)

	response := []byte("\r\nOK\r\n")
	respWire, _ := sendAll(t, modem, response)

	gotResponse, _, err := client.Consume(respWire, len(respWire))
	require.NoError(t, err)
	assert.Equal(t, response, gotResponse)
}

package channel

// Intercept is the glue a transport driver calls into on every outbound
// and inbound buffer, replacing the callback-plus-opaque-state shape of
// the original AT-command intercept hook with a small Go interface bound
// to one SecurityContext (§9's redesign flag).
type Intercept interface {
	// Tx appends all of in to the accumulator, returning wire bytes ready
	// for the transport once a chunk is complete. A nil return with a nil
	// error means in was absorbed into the accumulator without yet
	// producing a chunk. If in is longer than the room left in the
	// accumulator, nothing is absorbed and ErrResourceExhausted is
	// returned. A nil in flushes the accumulator instead (see Flush).
	Tx(in []byte) ([]byte, error)

	// Rx decrypts and verifies as many complete chunks as buf[:n]
	// contains, returning the recovered plaintext.
	Rx(buf []byte, n int) ([]byte, int, error)
}

// intercept binds Tx/Rx to a single SecurityContext.
type intercept struct {
	ctx *SecurityContext
}

// NewIntercept returns an Intercept backed by ctx.
func NewIntercept(ctx *SecurityContext) Intercept {
	return &intercept{ctx: ctx}
}

func (i *intercept) Tx(in []byte) ([]byte, error) {
	if in == nil {
		return i.ctx.Flush()
	}
	return i.ctx.Feed(in)
}

func (i *intercept) Rx(buf []byte, n int) ([]byte, int, error) {
	return i.ctx.Consume(buf, n)
}

package channel

import "errors"

// ErrNeedMore is not a failure: the ingress engine has not yet seen a
// complete frame and is waiting for more transport bytes.
var ErrNeedMore = errors.New("channel: need more bytes")

// ErrMalformed signals a framing violation: a missing start/end marker or a
// length field that exceeds the maximum wire chunk size. The offending
// bytes are discarded; the caller should report a protocol error upward.
var ErrMalformed = errors.New("channel: malformed frame")

// ErrAuthFailed signals a tag mismatch, or an invalid padding byte found
// after a successful tag check. It is a transport integrity failure: the
// higher layer should discard the in-flight response and retry at its own
// level. Per the channel's recovery policy, a chunk rejected this way does
// not invalidate plaintext already delivered from earlier chunks in the
// same higher-layer message.
var ErrAuthFailed = errors.New("channel: authentication failed")

// ErrConfigInvalid signals a scheme mismatch or missing key material. It is
// fatal: the context must not be placed into service.
var ErrConfigInvalid = errors.New("channel: invalid configuration")

// ErrResourceExhausted signals a caller contract violation: more plaintext
// was fed to the egress accumulator than chunkPlainMax allows, or the
// ingress working buffer would have to grow past twice the configured
// maximum wire chunk size. It indicates a bug in the caller, not an
// attacker.
var ErrResourceExhausted = errors.New("channel: resource exhausted")

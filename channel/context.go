package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/c2c-secure-channel/internal/audit"
	"github.com/kenneth/c2c-secure-channel/internal/config"
	"github.com/kenneth/c2c-secure-channel/internal/crypto"
	"github.com/kenneth/c2c-secure-channel/internal/debug"
	"github.com/kenneth/c2c-secure-channel/internal/metrics"
)

const defaultChunkPlainMax = 1008

// Config constructs a SecurityContext directly from key material. Tests use
// this; production code goes through NewSecurityContextFromProvisioner so
// that plaintext keys are never passed as literals outside of tests (§4.6).
type Config struct {
	ID            string
	Scheme        Scheme
	TESecret      []byte // required for SchemeV1, ignored for SchemeV2
	EncryptionKey []byte // required, 16 bytes (AES-128)
	HMACKey       []byte // required for SchemeV2, ignored for SchemeV1

	// ChunkPlainMax bounds the egress accumulator. Zero selects the
	// default of 1008 bytes.
	ChunkPlainMax int
	// MaxWireLen bounds the largest frame the ingress parser will accept
	// before declaring it Malformed. Zero derives it from ChunkPlainMax.
	MaxWireLen int

	Metrics *metrics.Metrics
	Audit   audit.Logger

	// Logger, if set, receives debug-only hex dumps of frame bytes
	// (IV/ciphertext/tag) on encode and decode. It only ever fires when
	// internal/debug.Enabled() is true, so hex-dumping ciphertext never
	// happens in a production build unless explicitly toggled on.
	Logger *logrus.Logger
}

// SecurityContext is the per-logical-channel aggregate of §3/§4.6: scheme,
// keys, and the two independent directions' sub-state. Scheme and keys are
// immutable once constructed; rotating keys means discarding the context
// and building a new one.
type SecurityContext struct {
	id       string
	scheme   Scheme
	teSecret []byte
	encKey   []byte
	hmacKey  []byte

	chunkPlainMax int
	maxWireLen    int

	metrics *metrics.Metrics
	audit   audit.Logger
	logger  *logrus.Logger

	egressMu    sync.Mutex
	egressAccum []byte
	egressIndex int64

	ingressMu    sync.Mutex
	ingressBuf   []byte
	ingressIndex int64
	armed        atomic.Bool

	closed atomic.Bool
}

// NewSecurityContext validates cfg and builds a SecurityContext from
// caller-supplied key material.
func NewSecurityContext(cfg Config) (*SecurityContext, error) {
	if cfg.Scheme != SchemeV1 && cfg.Scheme != SchemeV2 {
		return nil, fmt.Errorf("%w: unknown scheme %v", ErrConfigInvalid, cfg.Scheme)
	}
	if len(cfg.EncryptionKey) != crypto.KeySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes", ErrConfigInvalid, crypto.KeySize)
	}
	if cfg.Scheme == SchemeV1 && len(cfg.TESecret) != crypto.KeySize {
		return nil, fmt.Errorf("%w: scheme v1 requires a %d-byte TE secret", ErrConfigInvalid, crypto.KeySize)
	}
	if cfg.Scheme == SchemeV2 && len(cfg.HMACKey) != crypto.KeySize {
		return nil, fmt.Errorf("%w: scheme v2 requires a %d-byte HMAC key", ErrConfigInvalid, crypto.KeySize)
	}

	chunkPlainMax := cfg.ChunkPlainMax
	if chunkPlainMax == 0 {
		chunkPlainMax = defaultChunkPlainMax
	}
	if chunkPlainMax <= 0 || chunkPlainMax%16 != 0 {
		return nil, fmt.Errorf("%w: chunkPlainMax must be a positive multiple of 16", ErrConfigInvalid)
	}

	maxWireLen := cfg.MaxWireLen
	if maxWireLen == 0 {
		maxWireLen = DeriveMaxWireLen(chunkPlainMax, cfg.Scheme)
	}

	return &SecurityContext{
		id:            cfg.ID,
		scheme:        cfg.Scheme,
		teSecret:      cfg.TESecret,
		encKey:        cfg.EncryptionKey,
		hmacKey:       cfg.HMACKey,
		chunkPlainMax: chunkPlainMax,
		maxWireLen:    maxWireLen,
		metrics:       cfg.Metrics,
		audit:         cfg.Audit,
		logger:        cfg.Logger,
		egressAccum:   make([]byte, 0, chunkPlainMax),
	}, nil
}

// NewSecurityContextFromProvisioner resolves rec's wrapped key envelopes
// through provisioner and builds a SecurityContext from the result. This is
// the only path production code should use to obtain key material.
func NewSecurityContextFromProvisioner(ctx context.Context, provisioner *crypto.KeyProvisioner, rec config.ProvisioningRecord, m *metrics.Metrics, a audit.Logger) (*SecurityContext, error) {
	material, err := provisioner.Provision(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	scheme := SchemeV1
	if rec.Scheme == config.SchemeV2 {
		scheme = SchemeV2
	}

	return NewSecurityContext(Config{
		ID:            rec.ID,
		Scheme:        scheme,
		TESecret:      material.TESecret,
		EncryptionKey: material.EncryptionKey,
		HMACKey:       material.HMACKey,
		ChunkPlainMax: deriveChunkPlainMaxFromRecord(rec, scheme),
		MaxWireLen:    rec.MaxWireLen,
		Metrics:       m,
		Audit:         a,
	})
}

func deriveChunkPlainMaxFromRecord(rec config.ProvisioningRecord, scheme Scheme) int {
	if rec.MaxWireLen == 0 {
		return 0
	}
	return DeriveChunkPlainMax(rec.MaxWireLen, scheme)
}

// DeriveMaxWireLen computes the maximum wire chunk size that can hold
// chunkPlainMax bytes of plaintext once padded, encrypted, and framed,
// per §6.1: maxWire = chunkPlainMax + (1+2+16+T+1) + 16.
func DeriveMaxWireLen(chunkPlainMax int, scheme Scheme) int {
	return chunkPlainMax + 1 + 2 + ivLen + scheme.TagLen() + 1 + 16
}

// DeriveChunkPlainMax computes chunkPlainMax from a configured maxWireLen,
// per §6.1: chunkPlainMax = maxWire − (1+2+16+T+1) − 16, floored to a
// multiple of 16.
func DeriveChunkPlainMax(maxWireLen int, scheme Scheme) int {
	raw := maxWireLen - (1 + 2 + ivLen + scheme.TagLen() + 1) - 16
	if raw <= 0 {
		return 0
	}
	return raw - raw%16
}

// ID returns the context's logical channel identifier.
func (c *SecurityContext) ID() string { return c.id }

// Scheme returns the context's fixed authentication scheme.
func (c *SecurityContext) Scheme() Scheme { return c.scheme }

// SchemeString returns the context's scheme as its wire-name string ("v1"
// or "v2"), satisfying internal/diagnostics.ChannelInspector without that
// package needing to import channel for the Scheme type itself.
func (c *SecurityContext) SchemeString() string { return c.scheme.String() }

// ChunkPlainMax returns the accumulator's configured capacity.
func (c *SecurityContext) ChunkPlainMax() int { return c.chunkPlainMax }

// MaxWireLen returns the configured maximum wire chunk size.
func (c *SecurityContext) MaxWireLen() int { return c.maxWireLen }

// Arm transitions the context's ingress side into the armed state: the
// first byte Consume sees thereafter must be a START marker, rather than
// being passed through as opaque pre-roll (§9's decided Open Question).
func (c *SecurityContext) Arm() {
	c.armed.Store(true)
	if c.audit != nil {
		c.audit.LogRearm(c.id, true, nil)
	}
}

// Armed reports whether the context's ingress side has been armed.
func (c *SecurityContext) Armed() bool {
	return c.armed.Load()
}

// AccumulatorFill reports the egress accumulator's current fill level, for
// the diagnostics surface (§4.8).
func (c *SecurityContext) AccumulatorFill() int {
	c.egressMu.Lock()
	defer c.egressMu.Unlock()
	return len(c.egressAccum)
}

// Close zeroizes the context's key material. The context must not be used
// for any further I/O afterward.
func (c *SecurityContext) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	zeroBytes(c.teSecret)
	zeroBytes(c.encKey)
	zeroBytes(c.hmacKey)
	return nil
}

// recordBufferPoolEvent reports a scratch-buffer pool hit or miss for the
// given size class ("iv" or "tag") to metrics, if configured.
func (c *SecurityContext) recordBufferPoolEvent(sizeClass string, hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.RecordBufferPoolHit(sizeClass)
	} else {
		c.metrics.RecordBufferPoolMiss(sizeClass)
	}
}

// traceFrame hex-dumps a frame's IV/ciphertext/tag at debug level. It is a
// no-op unless both a Logger was configured and internal/debug.Enabled()
// has been toggled on (normally via internal/diagnostics's debug-trace
// route), so hex-dumping ciphertext never happens in a production build by
// default.
func (c *SecurityContext) traceFrame(direction string, iv, ciphertext, tag []byte) {
	if c.logger == nil || !debug.Enabled() {
		return
	}
	c.logger.WithFields(logrus.Fields{
		"context":    c.id,
		"direction":  direction,
		"scheme":     c.scheme.String(),
		"iv":         fmt.Sprintf("%x", iv),
		"ciphertext": fmt.Sprintf("%x", ciphertext),
		"tag":        fmt.Sprintf("%x", tag),
	}).Debug("frame trace")
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

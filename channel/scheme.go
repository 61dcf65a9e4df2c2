package channel

import (
	"github.com/kenneth/c2c-secure-channel/internal/crypto"
)

// Scheme selects one of the two interoperable authentication modes a
// security context uses to tag a chunk.
type Scheme int

const (
	// SchemeV1 computes the tag as SHA256(TE_secret || IV || ciphertext),
	// 32 bytes.
	SchemeV1 Scheme = iota
	// SchemeV2 computes the tag as the first 16 bytes of
	// HMAC_SHA256(HMAC_key, IV || ciphertext).
	SchemeV2
)

func (s Scheme) String() string {
	switch s {
	case SchemeV1:
		return "v1"
	case SchemeV2:
		return "v2"
	default:
		return "unknown"
	}
}

// TagLen returns the on-wire tag length for the scheme.
func (s Scheme) TagLen() int {
	switch s {
	case SchemeV1:
		return 32
	case SchemeV2:
		return 16
	default:
		return 0
	}
}

// computeTag computes the authentication tag for the given scheme over a
// chunk's IV and ciphertext.
func computeTag(scheme Scheme, teSecret, hmacKey, iv, ciphertext []byte) []byte {
	switch scheme {
	case SchemeV1:
		buf := make([]byte, 0, len(teSecret)+len(iv)+len(ciphertext))
		buf = append(buf, teSecret...)
		buf = append(buf, iv...)
		buf = append(buf, ciphertext...)
		return crypto.SHA256(buf)
	case SchemeV2:
		buf := make([]byte, 0, len(iv)+len(ciphertext))
		buf = append(buf, iv...)
		buf = append(buf, ciphertext...)
		full := crypto.HMACSHA256(hmacKey, buf)
		return full[:16]
	default:
		return nil
	}
}

// computeTagInto computes the authentication tag like computeTag, but
// copies the result into dst (which must have length >= scheme.TagLen())
// and returns dst sliced to the tag length, rather than handing back a
// freshly allocated slice. Used on the ingress decode path so the
// scratch buffer backing the expected tag can come from the pooled
// buffer pool instead of a fresh allocation.
func computeTagInto(dst []byte, scheme Scheme, teSecret, hmacKey, iv, ciphertext []byte) []byte {
	computed := computeTag(scheme, teSecret, hmacKey, iv, ciphertext)
	return dst[:copy(dst, computed)]
}

// Package crypto provides thin, synchronous wrappers over the cryptographic
// primitives the secure channel is built from: AES-128-CBC, SHA-256,
// HMAC-SHA-256, and a CSPRNG, plus the supporting key-provisioning and
// hardware-detection machinery around them.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// KeySize is the AES-128 key length in bytes, shared by the encryption key,
// the TE secret, and the HMAC key.
const KeySize = 16

// BlockSize is the AES block size; IVs and padding are sized to it.
const BlockSize = aes.BlockSize

// EncryptCBC encrypts plaintext (whose length must already be a multiple of
// BlockSize) with AES-128-CBC under key and iv. Encryption happens in place:
// the returned slice aliases plaintext.
func EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("crypto: iv must be %d bytes, got %d", BlockSize, len(iv))
	}
	if len(plaintext)%BlockSize != 0 {
		return nil, fmt.Errorf("crypto: plaintext length %d is not a multiple of the block size", len(plaintext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aes cipher: %w", err)
	}
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(plaintext, plaintext)
	return plaintext, nil
}

// DecryptCBC decrypts ciphertext (whose length must be a multiple of
// BlockSize) with AES-128-CBC under key and iv, in place. The returned slice
// aliases ciphertext.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: decryption key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("crypto: iv must be %d bytes, got %d", BlockSize, len(iv))
	}
	if len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aes cipher: %w", err)
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(ciphertext, ciphertext)
	return ciphertext, nil
}

// SHA256 returns the 32-byte SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// HMACSHA256 returns the 32-byte HMAC-SHA-256 of data under key.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// RandomBytes returns n cryptographically random bytes, drawn from the
// process-wide CSPRNG (crypto/rand, thread-safe and reentrant).
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := FillRandom(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// FillRandom overwrites buf in place with random bytes from the same CSPRNG
// as RandomBytes. Used to draw an IV directly into a pooled scratch buffer
// without an extra allocation.
func FillRandom(buf []byte) error {
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("crypto: random bytes: %w", err)
	}
	return nil
}

package channel

// Literal key material from the spec's §8 scenario table, shared across
// tests so every scenario test runs against the same fixture.

func fixtureTESecret() []byte {
	return []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0xf8, 0xf9, 0xfa, 0xfb, 0xfc, 0xfd, 0xfe, 0xff}
}

func fixtureEncKey() []byte {
	b := make([]byte, 16)
	for i := range b {
		b[i] = byte(0x10 + i)
	}
	return b
}

func fixtureHMACKey() []byte {
	b := make([]byte, 16)
	for i := range b {
		b[i] = byte(0x20 + i)
	}
	return b
}

func newTestContext(scheme Scheme, chunkPlainMax int) *SecurityContext {
	ctx, err := NewSecurityContext(Config{
		ID:            "test",
		Scheme:        scheme,
		TESecret:      fixtureTESecret(),
		EncryptionKey: fixtureEncKey(),
		HMACKey:       fixtureHMACKey(),
		ChunkPlainMax: chunkPlainMax,
	})
	if err != nil {
		panic(err)
	}
	return ctx
}

package channel

import "testing"

func BenchmarkEgressFeed(b *testing.B) {
	ctx := newTestContext(SchemeV1, 1008)
	plaintext := fixtureBytes(1008)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := ctx.Feed(plaintext); err != nil {
			b.Fatalf("feed failed: %v", err)
		}
	}
}

func BenchmarkIngressConsume(b *testing.B) {
	tx := newTestContext(SchemeV1, 1008)
	chunk, err := tx.Feed(fixtureBytes(1008))
	if err != nil {
		b.Fatalf("feed failed: %v", err)
	}

	rx := newTestContext(SchemeV1, 1008)
	rx.Arm()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		wire := append([]byte(nil), chunk...)
		if _, _, err := rx.Consume(wire, len(wire)); err != nil {
			b.Fatalf("consume failed: %v", err)
		}
	}
}

func BenchmarkTryDecodeFrame(b *testing.B) {
	iv := make([]byte, 16)
	ciphertext := make([]byte, 1024)
	tag := make([]byte, 32)
	wire := EncodeFrame(iv, ciphertext, tag)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := TryDecodeFrame(wire, SchemeV1, 0); err != nil {
			b.Fatalf("decode failed: %v", err)
		}
	}
}

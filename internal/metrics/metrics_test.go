package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(Config{Namespace: "c2c_test"}, reg)
	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}
	if m.chunksSent == nil || m.chunksReceived == nil || m.authFailures == nil {
		t.Fatal("expected collectors to be initialized")
	}
}

func TestNewMetricsWithRegistry_DefaultsNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(Config{}, reg)

	m.RecordChunkSent("v1", 48)

	count := testutil.ToFloat64(m.chunksSent.WithLabelValues("v1"))
	if count != 1 {
		t.Errorf("expected 1 chunk sent, got %v", count)
	}
}

func TestRecordChunkSentAndReceived(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(Config{Namespace: "c2c"}, reg)

	m.RecordChunkSent("v2", 64)
	m.RecordChunkSent("v2", 32)
	m.RecordChunkReceived("v2", 50)

	if got := testutil.ToFloat64(m.chunksSent.WithLabelValues("v2")); got != 2 {
		t.Errorf("chunksSent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bytesSent.WithLabelValues("v2")); got != 96 {
		t.Errorf("bytesSent = %v, want 96", got)
	}
	if got := testutil.ToFloat64(m.chunksReceived.WithLabelValues("v2")); got != 1 {
		t.Errorf("chunksReceived = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bytesReceived.WithLabelValues("v2")); got != 50 {
		t.Errorf("bytesReceived = %v, want 50", got)
	}
}

func TestRecordAuthFailureAndMalformedFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(Config{Namespace: "c2c"}, reg)

	m.RecordAuthFailure("v1")
	m.RecordMalformedFrame("bad_start")
	m.RecordMalformedFrame("bad_start")
	m.RecordNeedMore("v1")

	if got := testutil.ToFloat64(m.authFailures.WithLabelValues("v1")); got != 1 {
		t.Errorf("authFailures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.malformedFrames.WithLabelValues("bad_start")); got != 2 {
		t.Errorf("malformedFrames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.needMoreEvents.WithLabelValues("v1")); got != 1 {
		t.Errorf("needMoreEvents = %v, want 1", got)
	}
}

func TestBufferPoolMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(Config{Namespace: "c2c"}, reg)

	m.RecordBufferPoolHit("iv")
	m.RecordBufferPoolMiss("tag")

	if got := testutil.ToFloat64(m.bufferPoolHits.WithLabelValues("iv")); got != 1 {
		t.Errorf("bufferPoolHits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bufferPoolMisses.WithLabelValues("tag")); got != 1 {
		t.Errorf("bufferPoolMisses = %v, want 1", got)
	}
}

func TestSetAccumulatorFillAndHardwareStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(Config{Namespace: "c2c"}, reg)

	m.SetAccumulatorFill("channel-1", 912)
	m.SetHardwareAccelerationStatus("aes-ni", true)

	if got := testutil.ToFloat64(m.accumulatorFill.WithLabelValues("channel-1")); got != 912 {
		t.Errorf("accumulatorFill = %v, want 912", got)
	}
	if got := testutil.ToFloat64(m.hardwareAccelerationEnabled.WithLabelValues("aes-ni")); got != 1 {
		t.Errorf("hardwareAccelerationEnabled = %v, want 1", got)
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(Config{Namespace: "c2c"}, reg)

	m.UpdateSystemMetrics()

	if got := testutil.ToFloat64(m.goroutines); got <= 0 {
		t.Errorf("goroutines = %v, want > 0", got)
	}
}

func TestMetricsHandlerServesExpositionFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(Config{Namespace: "c2c"}, reg)
	m.RecordChunkSent("v1", 48)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !contains(body, "c2c_chunks_sent_total") {
		t.Errorf("expected metrics output to contain c2c_chunks_sent_total, got:\n%s", body)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

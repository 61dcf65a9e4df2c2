package crypto

import (
	"sync"
	"sync/atomic"
)

// BufferPool pools the two fixed-size scratch buffer shapes the secure
// channel actually allocates transiently: a 16-byte IV buffer and a 32-byte
// tag buffer (sized for the larger of the two tag schemes; V2's 16-byte tag
// fits inside it with room to spare). Unlike the teacher's four-pool family
// (4/12/32/64K, sized for GCM nonces and whole-object chunk buffers), this
// channel never holds a per-context buffer larger than one chunk's frame
// overhead, so the 4-byte and 64KB pools have no analog here and are not
// carried over.
type BufferPool struct {
	poolIV  *sync.Pool // 16-byte IV buffers
	poolTag *sync.Pool // 32-byte tag buffers

	hitsIV, missesIV   int64
	hitsTag, missesTag int64
}

var globalBufferPool = &BufferPool{
	poolIV:  &sync.Pool{},
	poolTag: &sync.Pool{},
}

// GetGlobalBufferPool returns the process-wide buffer pool instance.
func GetGlobalBufferPool() *BufferPool {
	return globalBufferPool
}

// GetIV returns a zeroed 16-byte scratch buffer from the pool and reports
// whether it was recycled (hit) or freshly allocated (miss). Neither pool
// sets sync.Pool.New, since New masks every miss as a hit (Get never
// returns nil when New is set).
func (p *BufferPool) GetIV() (buf []byte, hit bool) {
	if v := p.poolIV.Get(); v != nil {
		atomic.AddInt64(&p.hitsIV, 1)
		return v.([]byte), true
	}
	atomic.AddInt64(&p.missesIV, 1)
	return make([]byte, 16), false
}

// PutIV returns a 16-byte buffer to the pool after zeroizing it.
func (p *BufferPool) PutIV(buf []byte) {
	if cap(buf) != 16 {
		return
	}
	for i := range buf {
		buf[i] = 0
	}
	p.poolIV.Put(buf[:16])
}

// GetTag returns a zeroed 32-byte scratch buffer from the pool and reports
// whether it was recycled (hit) or freshly allocated (miss).
func (p *BufferPool) GetTag() (buf []byte, hit bool) {
	if v := p.poolTag.Get(); v != nil {
		atomic.AddInt64(&p.hitsTag, 1)
		return v.([]byte), true
	}
	atomic.AddInt64(&p.missesTag, 1)
	return make([]byte, 32), false
}

// PutTag returns a 32-byte buffer to the pool after zeroizing it.
func (p *BufferPool) PutTag(buf []byte) {
	if cap(buf) != 32 {
		return
	}
	for i := range buf {
		buf[i] = 0
	}
	p.poolTag.Put(buf[:32])
}

// BufferPoolMetrics is a snapshot of the pool's hit/miss counters.
type BufferPoolMetrics struct {
	HitsIV, MissesIV   int64
	HitsTag, MissesTag int64
}

// Metrics returns a snapshot of the pool's hit/miss counters.
func (p *BufferPool) Metrics() BufferPoolMetrics {
	return BufferPoolMetrics{
		HitsIV:    atomic.LoadInt64(&p.hitsIV),
		MissesIV:  atomic.LoadInt64(&p.missesIV),
		HitsTag:   atomic.LoadInt64(&p.hitsTag),
		MissesTag: atomic.LoadInt64(&p.missesTag),
	}
}

// HitRateIV returns the IV pool's hit rate in [0,1].
func (m BufferPoolMetrics) HitRateIV() float64 {
	total := m.HitsIV + m.MissesIV
	if total == 0 {
		return 0
	}
	return float64(m.HitsIV) / float64(total)
}

// HitRateTag returns the tag pool's hit rate in [0,1].
func (m BufferPoolMetrics) HitRateTag() float64 {
	total := m.HitsTag + m.MissesTag
	if total == 0 {
		return 0
	}
	return float64(m.HitsTag) / float64(total)
}

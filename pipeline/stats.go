package pipeline

import "sync"

// Stats represents pipeline observability counters.
type Stats struct {
	// FramesIn is the number of frames read from the source.
	FramesIn int64
	// FramesOut is the number of frames emitted to the sink.
	FramesOut int64
	// BytesIn is the payload volume read from the source.
	BytesIn int64
	// BytesOut is the payload volume emitted to the sink.
	BytesOut int64
	// Passthrough counts empty frames forwarded unchanged by decode.
	Passthrough int64
	// Malformed counts frames reported to the sink as malformed.
	Malformed int64
	// ConfigUpdates counts accepted padding size updates.
	ConfigUpdates int64
	// ConfigRejected counts rejected control commands.
	ConfigRejected int64
	// CryptoKeys counts setCryptoKey commands received.
	CryptoKeys int64
}

// statsRecorder is an internal helper for thread-safe stats management.
// The frame loop and the control path record into the same recorder from
// different goroutines.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{}
}

func (r *statsRecorder) incFrameIn(n int) {
	r.mu.Lock()
	r.stats.FramesIn++
	r.stats.BytesIn += int64(n)
	r.mu.Unlock()
}

func (r *statsRecorder) incFrameOut(n int, passthrough bool) {
	r.mu.Lock()
	r.stats.FramesOut++
	r.stats.BytesOut += int64(n)
	if passthrough {
		r.stats.Passthrough++
	}
	r.mu.Unlock()
}

func (r *statsRecorder) incMalformed() {
	r.mu.Lock()
	r.stats.Malformed++
	r.mu.Unlock()
}

func (r *statsRecorder) incConfigUpdates() {
	r.mu.Lock()
	r.stats.ConfigUpdates++
	r.mu.Unlock()
}

func (r *statsRecorder) incConfigRejected() {
	r.mu.Lock()
	r.stats.ConfigRejected++
	r.mu.Unlock()
}

func (r *statsRecorder) incCryptoKeys() {
	r.mu.Lock()
	r.stats.CryptoKeys++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

package transport

import (
	"sync"
	"time"
)

// Stats is a point-in-time view of the client's request counters.
type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	AverageLatency  time.Duration
	Samples         int
}

// latencyWindow keeps the last N response latencies in a ring together
// with the lifetime attempt counters.
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool

	total   int64
	success int64
	failed  int64
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

// record counts one attempt. Latency is only sampled when the server
// actually answered; attempts without a response carry no useful timing.
func (w *latencyWindow) record(ok bool, latency time.Duration, answered bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.total++
	if ok {
		w.success++
	} else {
		w.failed++
	}
	if !answered {
		return
	}

	w.samples[w.next] = latency
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

func (w *latencyWindow) countLocked() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

func (w *latencyWindow) meanLocked() time.Duration {
	n := w.countLocked()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}
	return sum / time.Duration(n)
}

// mean returns the mean latency and the number of samples it was computed from.
func (w *latencyWindow) mean() (time.Duration, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.meanLocked(), w.countLocked()
}

func (w *latencyWindow) snapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		TotalRequests:   w.total,
		SuccessRequests: w.success,
		FailedRequests:  w.failed,
		AverageLatency:  w.meanLocked(),
		Samples:         w.countLocked(),
	}
}

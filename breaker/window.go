package breaker

// RollingWindow is a ring of the last N call outcomes with running counters.
// It is not safe for concurrent use; the owning breaker serializes access.
type RollingWindow struct {
	outcomes []bool // true marks a failure
	next     int
	total    int
	failures int
}

func NewRollingWindow(size int) *RollingWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &RollingWindow{outcomes: make([]bool, size)}
}

// Record adds one outcome, evicting the oldest once the ring is full.
func (w *RollingWindow) Record(failure bool) {
	if w.total == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.total++
	}
	w.outcomes[w.next] = failure
	if failure {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

func (w *RollingWindow) Total() int { return w.total }

func (w *RollingWindow) Failures() int { return w.failures }

func (w *RollingWindow) FailureRate() float64 {
	if w.total == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.total)
}

func (w *RollingWindow) Reset() {
	clear(w.outcomes)
	w.next, w.total, w.failures = 0, 0, 0
}

package prompt

import (
	"fmt"
	"time"
)

const (
	// rateWindow is the rolling window prompt arrivals are counted in.
	rateWindow = time.Second

	// rateLimit is the number of prompts admitted within rateWindow.
	rateLimit = 5

	// circuitThreshold is the arrival count within rateWindow that trips
	// the breaker.
	circuitThreshold = 10
)

// RejectReason says why a prompt was not admitted.
type RejectReason string

const (
	RejectRateLimited RejectReason = "rate_limited"
	RejectCircuitOpen RejectReason = "circuit_open"
	RejectInvalid     RejectReason = "invalid"
	RejectQueueFull   RejectReason = "queue_full"
	RejectDuplicate   RejectReason = "duplicate"
	RejectDetached    RejectReason = "detached"
)

// RejectError is returned for every dropped prompt.
type RejectError struct {
	ID     string
	Reason RejectReason
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("prompt %q rejected: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("prompt %q rejected: %s (%s)", e.ID, e.Reason, e.Detail)
}

// window holds two sliding windows plus the breaker latch. The soft limit
// counts admitted prompts only, so a burst of rejects does not starve later
// prompts. The breaker counts every arrival, so a flood still trips it.
type window struct {
	arrivals []time.Time
	admitted []time.Time
	tripped  bool
}

// admit records an arrival at now. It returns trippedNow when this arrival
// tripped the breaker, and a RejectReason when the arrival must be dropped.
func (w *window) admit(now time.Time) (trippedNow bool, reject RejectReason) {
	cutoff := now.Add(-rateWindow)
	w.arrivals = prune(w.arrivals, cutoff)
	w.admitted = prune(w.admitted, cutoff)

	if w.tripped {
		return false, RejectCircuitOpen
	}

	w.arrivals = append(w.arrivals, now)
	if len(w.arrivals) >= circuitThreshold {
		w.tripped = true
		w.arrivals = nil
		w.admitted = nil
		return true, RejectCircuitOpen
	}
	if len(w.admitted) >= rateLimit {
		return false, RejectRateLimited
	}
	w.admitted = append(w.admitted, now)
	return false, ""
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	recent := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (w *window) reset() {
	w.arrivals = nil
	w.admitted = nil
	w.tripped = false
}

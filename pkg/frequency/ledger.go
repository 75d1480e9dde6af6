package frequency

import "time"

// LedgerEntry records display history for one element with a persistent
// cap. Session-capped elements are tracked only in memory, never here.
type LedgerEntry struct {
	Shown     bool      `json:"shown"`
	LastShown time.Time `json:"lastShown"`
	ShowCount int       `json:"showCount"`
}

// Ledger maps element id to its display history. Marshaled as a whole into
// the durable bucket.
type Ledger map[string]LedgerEntry

// SweepHorizon is how long a ledger entry is kept after its last display.
const SweepHorizon = 30 * 24 * time.Hour

// Sweep removes entries whose last display is older than the horizon.
// Returns the number of entries removed.
func (l Ledger) Sweep(now time.Time) int {
	removed := 0
	for id, entry := range l {
		if now.Sub(entry.LastShown) > SweepHorizon {
			delete(l, id)
			removed++
		}
	}
	return removed
}

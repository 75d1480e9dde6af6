// Package frequency enforces per-visitor display caps over a persisted
// show-history ledger.
package frequency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/storage"
	"github.com/hatchboard/engage-runtime/pkg/widget"
)

// Decide is the pure cap decision over a ledger snapshot. inSession reports
// whether the element id is in the session-shown set.
func Decide(cap widget.FrequencyCap, entry *LedgerEntry, inSession bool, now time.Time) bool {
	switch cap {
	case widget.CapNone:
		return true
	case widget.CapSession:
		return !inSession
	case widget.CapOnce:
		return entry == nil || !entry.Shown
	case widget.CapDaily:
		return entry == nil || now.Sub(entry.LastShown) > 24*time.Hour
	case widget.CapWeekly:
		return entry == nil || now.Sub(entry.LastShown) > 7*24*time.Hour
	default:
		// Fail open: favor display over silently suppressing an element
		// whose cap type this build does not know.
		logrus.Warnf("unknown frequency cap %q, allowing display", cap)
		return true
	}
}

// Gate answers "may this element be shown now" and records displays. The
// persistent ledger is held in memory and written through to the durable
// bucket synchronously on every mark.
type Gate struct {
	mu           sync.Mutex
	durable      storage.Bucket
	ledger       Ledger
	sessionShown map[string]struct{}
}

// NewGate loads the ledger from the durable bucket and runs the 30-day
// sweep, writing the ledger back if the sweep removed anything.
func NewGate(ctx context.Context, durable storage.Bucket, now time.Time) (*Gate, error) {
	g := &Gate{
		durable:      durable,
		ledger:       make(Ledger),
		sessionShown: make(map[string]struct{}),
	}

	raw, ok, err := durable.Get(ctx, storage.KeyFrequencyLedger)
	if err != nil {
		return nil, fmt.Errorf("failed to load frequency ledger: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &g.ledger); err != nil {
			// A corrupt ledger must not block initialization; start fresh.
			logrus.Warnf("discarding unreadable frequency ledger: %v", err)
			g.ledger = make(Ledger)
		}
	}

	if removed := g.ledger.Sweep(now); removed > 0 {
		logrus.Debugf("swept %d stale ledger entries", removed)
		if err := g.persist(ctx); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// ShouldShow reports whether the element may be displayed at now.
func (g *Gate) ShouldShow(element widget.Element, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	var entry *LedgerEntry
	if e, ok := g.ledger[element.ID]; ok {
		entry = &e
	}
	_, inSession := g.sessionShown[element.ID]

	return Decide(element.FrequencyCap, entry, inSession, now)
}

// MarkShown records a display. Session caps are tracked only in the
// in-memory set; persistent caps upsert the ledger entry and write the
// ledger back synchronously.
func (g *Gate) MarkShown(ctx context.Context, element widget.Element, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch element.FrequencyCap {
	case widget.CapSession:
		g.sessionShown[element.ID] = struct{}{}
		return nil
	case widget.CapOnce, widget.CapDaily, widget.CapWeekly:
		entry := g.ledger[element.ID]
		entry.Shown = true
		entry.LastShown = now
		entry.ShowCount++
		g.ledger[element.ID] = entry
		return g.persist(ctx)
	default:
		// CapNone and unknown caps leave no history.
		return nil
	}
}

// ResetSession discards the session-shown set, simulating a new browser
// session.
func (g *Gate) ResetSession() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessionShown = make(map[string]struct{})
}

func (g *Gate) persist(ctx context.Context) error {
	data, err := json.Marshal(g.ledger)
	if err != nil {
		return fmt.Errorf("failed to marshal frequency ledger: %w", err)
	}
	if err := g.durable.Set(ctx, storage.KeyFrequencyLedger, string(data)); err != nil {
		return fmt.Errorf("failed to persist frequency ledger: %w", err)
	}
	return nil
}

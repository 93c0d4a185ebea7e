package proctor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Ledger owns the four warning counters. Counters only grow and are written
// through to the store on every increment.
type Ledger struct {
	store     SessionStore
	namespace string
	counts    Counts
}

func NewLedger(store SessionStore, namespace string) *Ledger {
	return &Ledger{store: store, namespace: namespace}
}

// Load restores persisted counters. Unparseable values count as zero.
func (l *Ledger) Load(ctx context.Context) error {
	for _, cat := range Categories {
		raw, ok, err := l.store.Get(ctx, l.namespace, config.WarningCountKey(string(cat)))
		if err != nil {
			return fmt.Errorf("load %s counter: %w", cat, err)
		}
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			n = 0
		}
		l.counts.set(cat, n)
	}
	return nil
}

// Record increments the counter for cat and persists it. The in-memory count
// is kept even when the write fails.
func (l *Ledger) Record(ctx context.Context, cat Category) (int, error) {
	n := l.counts.Get(cat) + 1
	l.counts.set(cat, n)

	if err := l.store.Set(ctx, l.namespace, config.WarningCountKey(string(cat)), strconv.Itoa(n)); err != nil {
		return n, fmt.Errorf("persist %s counter: %w", cat, err)
	}
	return n, nil
}

func (l *Ledger) Counts() Counts { return l.counts }

// BreachesAll is true only when every category has reached its limit.
func (l *Ledger) BreachesAll(limits model.WarningLimits) bool {
	for _, cat := range Categories {
		if l.counts.Get(cat) < limitFor(limits, cat) {
			return false
		}
	}
	return true
}

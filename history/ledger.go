// Package history maintains the bounded canonical transcript of a
// thread. Exactly one item is appended per event: the user's message
// when sent, the arbitration winner when a round concludes with one.
package history

import (
	"sync"

	"github.com/florean/agora/core"
)

// DefaultWindow is the number of transcript items retained. Older items
// are dropped first and become permanently unavailable to future rounds.
const DefaultWindow = 10

// Ledger is the single source of truth fed to the collector on every
// round. Only one round is ever in flight, so writes never race, but
// the ledger still locks so status displays can read it concurrently.
type Ledger struct {
	mu     sync.Mutex
	window int
	items  []core.HistoryItem
}

// NewLedger creates an empty ledger. A non-positive window means
// DefaultWindow.
func NewLedger(window int) *Ledger {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Ledger{window: window}
}

// Append adds one item, trims to the window, and returns the trimmed
// transcript.
func (l *Ledger) Append(item core.HistoryItem) []core.HistoryItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, item)
	l.trim()
	return l.snapshot()
}

// Replace loads a transcript wholesale (e.g. when switching threads),
// trimming it to the window.
func (l *Ledger) Replace(items []core.HistoryItem) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = make([]core.HistoryItem, len(items))
	copy(l.items, items)
	l.trim()
}

// Items returns a copy of the current transcript.
func (l *Ledger) Items() []core.HistoryItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// Len reports the current transcript length.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Window reports the configured window size.
func (l *Ledger) Window() int {
	return l.window
}

func (l *Ledger) trim() {
	if len(l.items) <= l.window {
		return
	}
	trimmed := make([]core.HistoryItem, l.window)
	copy(trimmed, l.items[len(l.items)-l.window:])
	l.items = trimmed
}

func (l *Ledger) snapshot() []core.HistoryItem {
	out := make([]core.HistoryItem, len(l.items))
	copy(out, l.items)
	return out
}

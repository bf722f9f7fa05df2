package impl

import (
	"github.com/encodeous/nowmesh/state"
)

// Ledger is a fixed-capacity, most-recent-first record of messages this node
// has seen. It serves two purposes: duplicate suppression, keyed on
// (originator, message id), and implicit route inference, since each entry
// remembers which neighbour the message last arrived from.
//
// Entries are stored in a ring buffer indexed by a monotonically advancing
// write cursor; when full, the oldest entry is evicted. Entries are never
// mutated in place.
type Ledger struct {
	entries []state.LedgerEntry
	head    int // index of the most recent entry
	size    int
}

func NewLedger(capacity int) *Ledger {
	return &Ledger{
		entries: make([]state.LedgerEntry, capacity),
		head:    -1,
	}
}

// at returns the i-th entry in most-recent-first order, 0 <= i < size.
func (l *Ledger) at(i int) state.LedgerEntry {
	n := len(l.entries)
	return l.entries[((l.head-i)%n+n)%n]
}

// RecordIfNew is the dedup gate. If an entry with the same
// (originator, id) key already exists it returns false and changes nothing,
// even when the duplicate arrived through a different neighbour. Otherwise it
// inserts a new most-recent entry, evicting the oldest when at capacity, and
// returns true. Self-originated sends are recorded too, with sender equal to
// the local address, so that an echo of our own broadcast is dropped here.
func (l *Ledger) RecordIfNew(originator, sender state.HWAddr, id uint16) bool {
	for i := 0; i < l.size; i++ {
		e := l.at(i)
		if e.Id == id && e.Originator == originator {
			return false
		}
	}
	l.head = (l.head + 1) % len(l.entries)
	l.entries[l.head] = state.LedgerEntry{Originator: originator, Sender: sender, Id: id}
	if l.size < len(l.entries) {
		l.size++
	}
	return true
}

// FindRouteTo looks for a neighbour we have heard the target from, or through.
// The scan runs most-recent-first, so of several matching entries the freshest
// wins. A match only becomes a route if its recorded sender is still an active
// peer; otherwise older entries are still considered.
func (l *Ledger) FindRouteTo(target state.HWAddr, isActivePeer func(state.HWAddr) bool) (state.HWAddr, bool) {
	for i := 0; i < l.size; i++ {
		e := l.at(i)
		if e.Originator == target || e.Sender == target {
			if isActivePeer(e.Sender) {
				return e.Sender, true
			}
		}
	}
	return state.HWAddr{}, false
}

// TrafficCount reports how many entries were originated by or relayed through
// addr. Peer admission uses it to prefer neighbours with traffic history.
func (l *Ledger) TrafficCount(addr state.HWAddr) int {
	count := 0
	for i := 0; i < l.size; i++ {
		e := l.at(i)
		if e.Originator == addr || e.Sender == addr {
			count++
		}
	}
	return count
}

func (l *Ledger) Len() int {
	return l.size
}

// Entries returns a most-recent-first snapshot.
func (l *Ledger) Entries() []state.LedgerEntry {
	out := make([]state.LedgerEntry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.at(i)
	}
	return out
}

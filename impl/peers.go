package impl

import (
	"slices"

	"github.com/encodeous/nowmesh/state"
)

// PeerTable decides which discovered neighbours become active radio links. It
// holds at most capacity records and is rebuilt from scratch on every
// discovery cycle; Admit diffs the rebuilt table against the radio's current
// peer set so the caller can apply the change.
type PeerTable struct {
	capacity int
	peers    []state.PeerRecord
}

func NewPeerTable(capacity int) *PeerTable {
	return &PeerTable{capacity: capacity}
}

// SignalScore converts a raw rssi into the admission score contribution.
// Stronger signal (smaller attenuation) scores higher.
func SignalScore(rssi int16) int16 {
	if rssi < 0 {
		rssi = -rssi
	}
	return state.SignalScoreBase - rssi
}

// Admit runs one admission pass over the scan results. Each candidate scores
// its signal strength plus a bonus per ledger entry from or through it, so
// neighbours we have actual traffic history with beat strangers with equally
// strong signal. Candidates fill free slots first; once the table is full a
// candidate displaces the current worst entry only if its score strictly
// exceeds it. Ties never replace.
//
// The returned sets are the difference against active: toAdd holds admitted
// neighbours that are not yet radio peers, toRemove holds radio peers that did
// not survive the pass.
func (t *PeerTable) Admit(found []state.Discovered, history func(state.HWAddr) int, active []state.HWAddr) (toAdd, toRemove []state.HWAddr) {
	next := make([]state.PeerRecord, 0, t.capacity)
	for _, cand := range found {
		score := SignalScore(cand.Rssi) + state.HistoryScoreBonus*int16(history(cand.Addr))
		if len(next) < t.capacity {
			next = append(next, state.PeerRecord{Addr: cand.Addr, Score: score})
			continue
		}
		worst := 0
		for i, p := range next {
			if p.Score < next[worst].Score {
				worst = i
			}
		}
		if next[worst].Score < score {
			next[worst] = state.PeerRecord{Addr: cand.Addr, Score: score}
		}
	}
	t.peers = next

	for _, p := range next {
		if !slices.Contains(active, p.Addr) {
			toAdd = append(toAdd, p.Addr)
		}
	}
	for _, addr := range active {
		if !slices.ContainsFunc(next, func(p state.PeerRecord) bool { return p.Addr == addr }) {
			toRemove = append(toRemove, addr)
		}
	}
	return toAdd, toRemove
}

// Peers returns the table as of the last admission pass.
func (t *PeerTable) Peers() []state.PeerRecord {
	return slices.Clone(t.peers)
}

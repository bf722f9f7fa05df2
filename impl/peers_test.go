package impl

import (
	"testing"

	"github.com/encodeous/nowmesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noHistory(state.HWAddr) int { return 0 }

func TestSignalScore(t *testing.T) {
	assert.Equal(t, int16(80), SignalScore(-48))
	assert.Equal(t, int16(80), SignalScore(48))
	assert.Equal(t, int16(128), SignalScore(0))
}

func TestAdmitScoresHistory(t *testing.T) {
	pt := NewPeerTable(10)
	history := func(a state.HWAddr) int {
		if a == addr(1) {
			return 3
		}
		return 0
	}
	pt.Admit([]state.Discovered{
		{Addr: addr(1), Rssi: -80},
		{Addr: addr(2), Rssi: -40},
	}, history, nil)

	peers := pt.Peers()
	require.Len(t, peers, 2)
	byAddr := map[state.HWAddr]int16{}
	for _, p := range peers {
		byAddr[p.Addr] = p.Score
	}
	// 128-80 + 3*20 = 108; traffic history beats raw signal
	assert.Equal(t, int16(108), byAddr[addr(1)])
	assert.Equal(t, int16(88), byAddr[addr(2)])
}

func TestAdmitRespectsCapacity(t *testing.T) {
	pt := NewPeerTable(3)
	var found []state.Discovered
	for i := byte(1); i <= 6; i++ {
		found = append(found, state.Discovered{Addr: addr(i), Rssi: -int16(i * 10)})
	}
	toAdd, toRemove := pt.Admit(found, noHistory, nil)
	assert.Len(t, pt.Peers(), 3)
	assert.Len(t, toAdd, 3)
	assert.Empty(t, toRemove)
}

func TestAdmitReplacesWorst(t *testing.T) {
	pt := NewPeerTable(2)
	pt.Admit([]state.Discovered{
		{Addr: addr(1), Rssi: -90}, // score 38
		{Addr: addr(2), Rssi: -20}, // score 108
		{Addr: addr(3), Rssi: -50}, // score 78, displaces addr(1)
	}, noHistory, nil)

	peers := pt.Peers()
	require.Len(t, peers, 2)
	addrs := []state.HWAddr{peers[0].Addr, peers[1].Addr}
	assert.Contains(t, addrs, addr(2))
	assert.Contains(t, addrs, addr(3))
}

func TestAdmitTiesDoNotReplace(t *testing.T) {
	pt := NewPeerTable(1)
	pt.Admit([]state.Discovered{
		{Addr: addr(1), Rssi: -50},
		{Addr: addr(2), Rssi: -50}, // equal score, keeps the incumbent
	}, noHistory, nil)

	peers := pt.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, addr(1), peers[0].Addr)
}

func TestAdmitDiffsActiveSet(t *testing.T) {
	pt := NewPeerTable(10)
	active := []state.HWAddr{addr(1), addr(4)}
	toAdd, toRemove := pt.Admit([]state.Discovered{
		{Addr: addr(1), Rssi: -40},
		{Addr: addr(2), Rssi: -40},
	}, noHistory, active)

	// addr(1) is already an active link, addr(2) is new, addr(4) vanished
	assert.Equal(t, []state.HWAddr{addr(2)}, toAdd)
	assert.Equal(t, []state.HWAddr{addr(4)}, toRemove)
}

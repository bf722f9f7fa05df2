package radio

import (
	"log/slog"
	"testing"

	"github.com/encodeous/nowmesh/state"
	"github.com/jellydator/ttlcache/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUdp(self state.HWAddr) *Udp {
	return &Udp{
		self:     self,
		log:      slog.New(slog.DiscardHandler),
		peers:    make(map[state.HWAddr]bool),
		presence: ttlcache.New[state.HWAddr, int16](),
	}
}

func frame(kind byte, sender, target state.HWAddr, payload string) []byte {
	pkt := []byte{udpMagic, udpVersion, kind}
	pkt = append(pkt, sender[:]...)
	pkt = append(pkt, target[:]...)
	return append(pkt, payload...)
}

func TestHandleDatagramBroadcast(t *testing.T) {
	self := state.HWAddr{1, 1, 1, 1, 1, 1}
	other := state.HWAddr{2, 2, 2, 2, 2, 2}
	u := testUdp(self)

	var gotRaw []byte
	var gotSender state.HWAddr
	u.ev.Receive = func(raw []byte, sender state.HWAddr) {
		gotRaw = raw
		gotSender = sender
	}

	u.handleDatagram(frame(udpTypeData, other, state.BroadcastAddr, "hello"))
	assert.Equal(t, []byte("hello"), gotRaw)
	assert.Equal(t, other, gotSender)
}

func TestHandleDatagramFiltersForeignUnicast(t *testing.T) {
	self := state.HWAddr{1, 1, 1, 1, 1, 1}
	other := state.HWAddr{2, 2, 2, 2, 2, 2}
	third := state.HWAddr{3, 3, 3, 3, 3, 3}
	u := testUdp(self)

	received := 0
	u.ev.Receive = func([]byte, state.HWAddr) { received++ }

	u.handleDatagram(frame(udpTypeData, other, third, "not for us"))
	assert.Zero(t, received)

	u.handleDatagram(frame(udpTypeData, other, self, "for us"))
	assert.Equal(t, 1, received)

	// our own multicast loopback is invisible
	u.handleDatagram(frame(udpTypeData, self, state.BroadcastAddr, "echo"))
	assert.Equal(t, 1, received)
}

func TestHandleDatagramRejectsGarbage(t *testing.T) {
	u := testUdp(state.HWAddr{1})
	u.ev.Receive = func([]byte, state.HWAddr) {
		t.Fatal("garbage must not be delivered")
	}
	u.handleDatagram(nil)
	u.handleDatagram([]byte{0xff, 0xff})
	u.handleDatagram([]byte("short"))
}

func TestBeaconFeedsPresence(t *testing.T) {
	self := state.HWAddr{1, 1, 1, 1, 1, 1}
	other := state.HWAddr{2, 2, 2, 2, 2, 2}
	u := testUdp(self)

	u.handleDatagram(frame(udpTypeBeacon, other, state.BroadcastAddr, ""))

	items := u.presence.Items()
	require.Len(t, items, 1)
	assert.Equal(t, udpNominalRssi, items[other].Value())
}

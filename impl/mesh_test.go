package impl

import (
	"context"
	"log/slog"
	"testing"

	"github.com/encodeous/nowmesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRadio is a synchronous recording radio for pipeline tests.
type fakeRadio struct {
	self  state.HWAddr
	peers map[state.HWAddr]bool
	sent  []sentFrame
}

type sentFrame struct {
	target state.HWAddr
	raw    []byte
}

func newFakeRadio(self state.HWAddr) *fakeRadio {
	return &fakeRadio{self: self, peers: make(map[state.HWAddr]bool)}
}

func (r *fakeRadio) Start(state.RadioEvents) error { return nil }
func (r *fakeRadio) Send(target state.HWAddr, raw []byte) error {
	r.sent = append(r.sent, sentFrame{target, raw})
	return nil
}
func (r *fakeRadio) Scan() error                      { return nil }
func (r *fakeRadio) AddPeer(a state.HWAddr) error     { r.peers[a] = true; return nil }
func (r *fakeRadio) RemovePeer(a state.HWAddr) error  { delete(r.peers, a); return nil }
func (r *fakeRadio) HasPeer(a state.HWAddr) bool      { return r.peers[a] }
func (r *fakeRadio) Self() state.HWAddr               { return r.self }
func (r *fakeRadio) Close() error                     { return nil }
func (r *fakeRadio) Peers() (out []state.HWAddr) {
	for p := range r.peers {
		out = append(out, p)
	}
	return out
}

type delivery struct {
	payload    []byte
	targeted   bool
	originator state.HWAddr
}

func newTestState(t *testing.T, r state.Radio) (*state.State, *Mesh, *[]delivery) {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() { cancel(context.Canceled) })

	deliveries := &[]delivery{}
	cfg := state.LocalCfg{Id: "test"}
	cfg.ApplyDefaults()
	s := &state.State{
		Modules: make(map[string]state.MeshModule),
		Env: &state.Env{
			Context:  ctx,
			Cancel:   cancel,
			LocalCfg: cfg,
			Radio:    r,
			Log:      slog.New(slog.DiscardHandler),
			Hooks: state.Hooks{
				Receive: func(payload []byte, targeted bool, origin state.HWAddr) {
					*deliveries = append(*deliveries, delivery{payload, targeted, origin})
				},
			},
		},
	}
	m := &Mesh{}
	m.attach(s)
	return s, m, deliveries
}

func TestReceiveBroadcastDeliversAndForwards(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, deliveries := newTestState(t, r)

	f := state.Frame{Kind: state.FrameBroadcast, Originator: addr(1), Id: 1, Payload: []byte("hi!")}
	require.NoError(t, m.handleReceive(s, EncodeFrame(f), addr(2)))

	require.Len(t, *deliveries, 1)
	assert.Equal(t, []byte("hi!"), (*deliveries)[0].payload)
	assert.False(t, (*deliveries)[0].targeted)
	assert.Equal(t, addr(1), (*deliveries)[0].originator)

	// the broadcast is re-flooded unchanged
	require.Len(t, r.sent, 1)
	assert.Equal(t, state.BroadcastAddr, r.sent[0].target)
	assert.Equal(t, EncodeFrame(f), r.sent[0].raw)

	// the last hop was recorded, not the originator
	entries := m.ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, addr(2), entries[0].Sender)
}

func TestReceiveOwnEchoDropped(t *testing.T) {
	self := addr(0xee)
	r := newFakeRadio(self)
	s, m, deliveries := newTestState(t, r)

	f := state.Frame{Kind: state.FrameBroadcast, Originator: self, Id: 1, Payload: []byte("echo")}
	require.NoError(t, m.handleReceive(s, EncodeFrame(f), addr(2)))

	assert.Empty(t, *deliveries)
	assert.Empty(t, r.sent)
	assert.Equal(t, 0, m.ledger.Len())
}

func TestReceiveDuplicateDropped(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, deliveries := newTestState(t, r)

	f := state.Frame{Kind: state.FrameBroadcast, Originator: addr(1), Id: 1, Payload: []byte("hi!")}
	require.NoError(t, m.handleReceive(s, EncodeFrame(f), addr(2)))
	// same message again through a different neighbour
	require.NoError(t, m.handleReceive(s, EncodeFrame(f), addr(3)))

	assert.Len(t, *deliveries, 1)
	assert.Len(t, r.sent, 1)
	assert.Equal(t, 1, m.ledger.Len())
}

func TestReceiveTargetedAtSelf(t *testing.T) {
	self := addr(0xee)
	r := newFakeRadio(self)
	s, m, deliveries := newTestState(t, r)

	f := state.Frame{Kind: state.FrameTargeted, Originator: addr(1), Target: self, Id: 5, Payload: []byte("for you")}
	require.NoError(t, m.handleReceive(s, EncodeFrame(f), addr(2)))

	require.Len(t, *deliveries, 1)
	assert.True(t, (*deliveries)[0].targeted)
	// final target, nothing to forward
	assert.Empty(t, r.sent)
}

func TestReceiveTargetedForOtherForwardsWithoutDelivery(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, deliveries := newTestState(t, r)

	// no route known for the target, so the forward degrades to a flood
	f := state.Frame{Kind: state.FrameTargeted, Originator: addr(1), Target: addr(9), Id: 5, Payload: []byte("relay")}
	require.NoError(t, m.handleReceive(s, EncodeFrame(f), addr(2)))

	assert.Empty(t, *deliveries)
	require.Len(t, r.sent, 1)
	assert.Equal(t, state.BroadcastAddr, r.sent[0].target)
}

func TestReceiveTargetedForOtherUsesRoute(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, _ := newTestState(t, r)
	r.AddPeer(addr(3))

	// learn a route: the target once relayed a message to us
	learn := state.Frame{Kind: state.FrameBroadcast, Originator: addr(9), Id: 1, Payload: []byte("x")}
	require.NoError(t, m.handleReceive(s, EncodeFrame(learn), addr(3)))
	r.sent = nil

	f := state.Frame{Kind: state.FrameTargeted, Originator: addr(1), Target: addr(9), Id: 5, Payload: []byte("relay")}
	require.NoError(t, m.handleReceive(s, EncodeFrame(f), addr(2)))

	require.Len(t, r.sent, 1)
	assert.Equal(t, addr(3), r.sent[0].target)
}

func TestReceiveMalformedNoMutation(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, deliveries := newTestState(t, r)

	require.NoError(t, m.handleReceive(s, []byte("1,2,3"), addr(2)))

	assert.Empty(t, *deliveries)
	assert.Empty(t, r.sent)
	assert.Equal(t, 0, m.ledger.Len())
}

func TestReceiveUnknownKindDropped(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, deliveries := newTestState(t, r)

	require.NoError(t, m.handleReceive(s, []byte("7,1,1,1,1,1,1,0,0,0,0,0,0,3,odd"), addr(2)))

	assert.Empty(t, *deliveries)
	assert.Empty(t, r.sent)
	// still recorded, so a rebroadcast of it cannot loop through us
	assert.Equal(t, 1, m.ledger.Len())
}

func TestSendAssignsIncreasingIds(t *testing.T) {
	self := addr(0xee)
	r := newFakeRadio(self)
	s, m, _ := newTestState(t, r)

	require.NoError(t, m.Send(s, []byte("one")))
	require.NoError(t, m.Send(s, []byte("two")))

	require.Len(t, r.sent, 2)
	f1, err := DecodeFrame(r.sent[0].raw, s.MaxFrameLen)
	require.NoError(t, err)
	f2, err := DecodeFrame(r.sent[1].raw, s.MaxFrameLen)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), f1.Id)
	assert.Equal(t, uint16(2), f2.Id)
	assert.Equal(t, self, f1.Originator)

	// an echo of our own broadcast is dropped without touching the ledger
	ledgerBefore := m.ledger.Len()
	require.NoError(t, m.handleReceive(s, r.sent[0].raw, addr(2)))
	assert.Equal(t, ledgerBefore, m.ledger.Len())
	assert.Len(t, r.sent, 2)
}

func TestSendToPreRoutes(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, _ := newTestState(t, r)
	r.AddPeer(addr(3))

	learn := state.Frame{Kind: state.FrameBroadcast, Originator: addr(9), Id: 1, Payload: []byte("x")}
	require.NoError(t, m.handleReceive(s, EncodeFrame(learn), addr(3)))
	r.sent = nil

	require.NoError(t, m.SendTo(s, []byte("direct"), addr(9)))
	require.Len(t, r.sent, 1)
	assert.Equal(t, addr(3), r.sent[0].target)
}

func TestSendOversizeRejected(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, _ := newTestState(t, r)

	payload := make([]byte, s.MaxFrameLen)
	err := m.Send(s, payload)
	assert.ErrorIs(t, err, ErrFrameTooLong)
	assert.Empty(t, r.sent)
}

func TestScanDoneAppliesPeerDiff(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, _ := newTestState(t, r)
	r.AddPeer(addr(4)) // stale link that the scan no longer sees

	err := m.scanDone(s, []state.Discovered{{Addr: addr(1), Rssi: -40}}, nil)
	require.NoError(t, err)

	assert.True(t, r.HasPeer(addr(1)))
	assert.False(t, r.HasPeer(addr(4)))
}

func TestScanDoneToleratesFailure(t *testing.T) {
	r := newFakeRadio(addr(0xee))
	s, m, _ := newTestState(t, r)
	r.AddPeer(addr(4))

	require.NoError(t, m.scanDone(s, nil, context.DeadlineExceeded))
	// a failed scan is abandoned without touching the peer set
	assert.True(t, r.HasPeer(addr(4)))

	// and the next cycle may start
	m.scanning = true
	require.NoError(t, m.scanDone(s, nil, context.DeadlineExceeded))
	assert.False(t, m.scanning)
}

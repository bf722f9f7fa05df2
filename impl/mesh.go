package impl

import (
	"errors"
	"fmt"
	"slices"

	"github.com/encodeous/nowmesh/state"
)

var ErrFrameTooLong = errors.New("encoded frame exceeds the maximum frame length")

// Mesh is the node orchestrator: it assigns outgoing message ids, drives the
// receive pipeline and feeds the peer table from periodic discovery cycles.
// All of its state is owned by the main loop; radio callbacks dispatch into it.
type Mesh struct {
	ledger   *Ledger
	peers    *PeerTable
	router   *Router
	lastId   uint16
	scanning bool
}

func (m *Mesh) Init(s *state.State) error {
	s.Log.Debug("init mesh")
	m.attach(s)

	err := s.Radio.Start(state.RadioEvents{
		Receive: func(raw []byte, sender state.HWAddr) {
			buf := slices.Clone(raw)
			s.Dispatch(func(s *state.State) error {
				return m.handleReceive(s, buf, sender)
			})
		},
		Sent: func(err error) {
			s.Dispatch(func(s *state.State) error {
				m.sendDone(s, err)
				return nil
			})
		},
		ScanDone: func(found []state.Discovered, err error) {
			snapshot := slices.Clone(found)
			s.Dispatch(func(s *state.State) error {
				return m.scanDone(s, snapshot, err)
			})
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start radio: %w", err)
	}

	s.RepeatTask(scanPeers, s.ScanInterval)
	return nil
}

// attach builds the tables; split out from Init so tests can exercise the
// pipeline without a running radio.
func (m *Mesh) attach(s *state.State) {
	m.ledger = NewLedger(s.StoredMessages)
	m.peers = NewPeerTable(s.MaxPeers)
	m.router = &Router{ledger: m.ledger}
}

func (m *Mesh) Cleanup(s *state.State) error {
	return s.Radio.Close()
}

// Send floods payload to the whole mesh.
func (m *Mesh) Send(s *state.State, payload []byte) error {
	return m.originate(s, state.FrameBroadcast, state.BroadcastAddr, payload)
}

// SendTo addresses payload to a single node, which need not be a direct
// neighbour. Delivery is best-effort.
func (m *Mesh) SendTo(s *state.State, payload []byte, target state.HWAddr) error {
	return m.originate(s, state.FrameTargeted, target, payload)
}

func (m *Mesh) originate(s *state.State, kind state.FrameKind, target state.HWAddr, payload []byte) error {
	m.lastId++
	self := s.Radio.Self()
	f := state.Frame{
		Kind:       kind,
		Originator: self,
		Target:     target,
		Id:         m.lastId,
		Payload:    payload,
	}
	if len(EncodeFrame(f)) > s.MaxFrameLen {
		return fmt.Errorf("%w: payload of %d bytes", ErrFrameTooLong, len(payload))
	}
	// Record our own message so its echo dies on arrival.
	m.ledger.RecordIfNew(self, self, f.Id)
	return m.transmit(s, f)
}

// handleReceive is the receive pipeline: decode, drop own echoes, dedup,
// deliver, forward. Nothing in here is fatal; bad input is logged and
// discarded.
func (m *Mesh) handleReceive(s *state.State, raw []byte, sender state.HWAddr) error {
	if state.DBG_log_frames {
		s.Log.Debug("received raw frame", "len", len(raw), "sender", sender)
	}
	f, err := DecodeFrame(raw, s.MaxFrameLen)
	if err != nil {
		s.Log.Debug("dropping frame", "reason", err, "sender", sender)
		return nil
	}
	self := s.Radio.Self()
	if f.Originator == self {
		s.Log.Debug("dropping own echo", "id", f.Id)
		return nil
	}
	if !m.ledger.RecordIfNew(f.Originator, sender, f.Id) {
		s.Log.Debug("dropping duplicate", "originator", f.Originator, "id", f.Id)
		return nil
	}

	switch f.Kind {
	case state.FrameTargeted:
		if f.Target == self {
			m.deliver(s, f.Payload, true, f.Originator)
			return nil
		}
		return m.transmit(s, f)
	case state.FrameBroadcast:
		// A broadcast is both delivered locally and re-flooded; the two are
		// independent at every non-originating node.
		m.deliver(s, f.Payload, false, f.Originator)
		return m.transmit(s, f)
	default:
		s.Log.Debug("dropping frame of unknown kind", "kind", f.Kind, "originator", f.Originator)
		return nil
	}
}

func (m *Mesh) deliver(s *state.State, payload []byte, targetedAtSelf bool, originator state.HWAddr) {
	if s.Hooks.Receive != nil {
		s.Hooks.Receive(payload, targetedAtSelf, originator)
	}
}

func (m *Mesh) transmit(s *state.State, f state.Frame) error {
	err := m.router.Transmit(s, f)
	if err != nil {
		// The radio rejected the frame outright. There is no retry; the mesh
		// carries on and the application hears about it through the send hook.
		s.Log.Warn("radio send failed", "err", err, "id", f.Id)
		m.sendDone(s, err)
	}
	return nil
}

func (m *Mesh) sendDone(s *state.State, err error) {
	if err != nil {
		s.Log.Debug("send completed with error", "err", err)
	}
	if s.Hooks.Sent != nil {
		s.Hooks.Sent(err)
	}
}

// scanPeers runs one discovery cycle. It is scheduled periodically from Init
// and can be invoked on demand through ScanNow.
func scanPeers(s *state.State) error {
	return Get[*Mesh](s).ScanNow(s)
}

func (m *Mesh) ScanNow(s *state.State) error {
	if m.scanning {
		s.Log.Debug("scan already in flight, skipping")
		return nil
	}
	m.scanning = true
	err := s.Radio.Scan()
	if err != nil {
		// Abandoned entirely; the next cycle will try again.
		m.scanning = false
		s.Log.Warn("peer scan failed to start", "err", err)
	}
	return nil
}

func (m *Mesh) scanDone(s *state.State, found []state.Discovered, err error) error {
	m.scanning = false
	if err != nil {
		s.Log.Warn("peer scan failed", "err", err)
		return nil
	}
	if state.DBG_log_scan {
		s.Log.Debug("scan complete", "found", len(found))
	}
	toAdd, toRemove := m.peers.Admit(found, m.ledger.TrafficCount, s.Radio.Peers())
	for _, addr := range toAdd {
		if err := s.Radio.AddPeer(addr); err != nil {
			s.Log.Warn("failed to add peer", "peer", addr, "err", err)
		} else {
			s.Log.Info("peer added", "peer", addr)
		}
	}
	for _, addr := range toRemove {
		if err := s.Radio.RemovePeer(addr); err != nil {
			s.Log.Warn("failed to remove peer", "peer", addr, "err", err)
		} else {
			s.Log.Info("peer removed", "peer", addr)
		}
	}
	return nil
}

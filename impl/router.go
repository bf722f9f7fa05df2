package impl

import (
	"github.com/encodeous/nowmesh/state"
)

// Router picks the transmission mode for outgoing frames. Targeted frames are
// unicast to the last hop we heard the target from, or through, when that hop
// is still an active peer; with no usable route they fall back to a broadcast
// flood. Broadcast frames always flood to every active peer.
type Router struct {
	ledger *Ledger
}

// NextHop resolves a forwarding hop for target from the ledger's traffic
// history. No route is not an error, merely a fall back to flooding.
func (r *Router) NextHop(s *state.State, target state.HWAddr) (state.HWAddr, bool) {
	return r.ledger.FindRouteTo(target, s.Radio.HasPeer)
}

// Transmit encodes and sends f. The returned error covers only synchronous
// radio rejection; asynchronous completion arrives via the send hook.
func (r *Router) Transmit(s *state.State, f state.Frame) error {
	raw := EncodeFrame(f)
	if f.Kind == state.FrameTargeted {
		if hop, ok := r.NextHop(s, f.Target); ok {
			if state.DBG_log_frames {
				s.Log.Debug("unicast via route", "target", f.Target, "hop", hop, "id", f.Id)
			}
			return s.Radio.Send(hop, raw)
		}
		if state.DBG_log_frames {
			s.Log.Debug("no route, falling back to broadcast", "target", f.Target, "id", f.Id)
		}
	}
	return s.Radio.Send(state.BroadcastAddr, raw)
}

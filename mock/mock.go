// Package mock provides an in-memory radio network for tests. Nodes are
// joined by explicit links carrying a simulated rssi; frames travel between
// linked radios only, mimicking short-range reachability.
package mock

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/encodeous/nowmesh/state"
)

type link [2]state.HWAddr

func mkLink(a, b state.HWAddr) link {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return link{a, b}
}

type Network struct {
	mu     sync.Mutex
	radios map[state.HWAddr]*Radio
	links  map[link]int16
}

func NewNetwork() *Network {
	return &Network{
		radios: make(map[state.HWAddr]*Radio),
		links:  make(map[link]int16),
	}
}

// NewRadio registers a radio with the given address on the network.
func (n *Network) NewRadio(addr state.HWAddr) *Radio {
	n.mu.Lock()
	defer n.mu.Unlock()
	r := &Radio{
		net:   n,
		addr:  addr,
		peers: make(map[state.HWAddr]bool),
	}
	n.radios[addr] = r
	return r
}

// Link puts a and b in radio range of each other with the given rssi.
func (n *Network) Link(a, b state.HWAddr, rssi int16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[mkLink(a, b)] = rssi
}

// Unlink takes a and b out of radio range.
func (n *Network) Unlink(a, b state.HWAddr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.links, mkLink(a, b))
}

func (n *Network) rssi(a, b state.HWAddr) (int16, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.links[mkLink(a, b)]
	return v, ok
}

func (n *Network) radio(addr state.HWAddr) *Radio {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.radios[addr]
}

// Radio implements state.Radio against a Network.
type Radio struct {
	net  *Network
	addr state.HWAddr

	mu     sync.Mutex
	ev     state.RadioEvents
	peers  map[state.HWAddr]bool
	closed bool
}

func (r *Radio) Start(ev state.RadioEvents) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev = ev
	return nil
}

func (r *Radio) Send(target state.HWAddr, raw []byte) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("radio %s is closed", r.addr)
	}
	ev := r.ev
	var recipients []state.HWAddr
	if target.IsBroadcast() {
		for p := range r.peers {
			recipients = append(recipients, p)
		}
	} else {
		if !r.peers[target] {
			r.mu.Unlock()
			return fmt.Errorf("%s is not a registered peer of %s", target, r.addr)
		}
		recipients = append(recipients, target)
	}
	r.mu.Unlock()

	frame := slices.Clone(raw)
	go func() {
		for _, to := range recipients {
			if _, inRange := r.net.rssi(r.addr, to); !inRange {
				continue
			}
			other := r.net.radio(to)
			if other == nil {
				continue
			}
			other.mu.Lock()
			recv := other.ev.Receive
			closed := other.closed
			other.mu.Unlock()
			if recv != nil && !closed {
				recv(frame, r.addr)
			}
		}
		if ev.Sent != nil {
			ev.Sent(nil)
		}
	}()
	return nil
}

func (r *Radio) Scan() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("radio %s is closed", r.addr)
	}
	ev := r.ev
	r.mu.Unlock()

	go func() {
		var found []state.Discovered
		r.net.mu.Lock()
		for addr := range r.net.radios {
			if addr == r.addr {
				continue
			}
			if rssi, ok := r.net.links[mkLink(r.addr, addr)]; ok {
				found = append(found, state.Discovered{Addr: addr, Rssi: rssi})
			}
		}
		r.net.mu.Unlock()
		if ev.ScanDone != nil {
			ev.ScanDone(found, nil)
		}
	}()
	return nil
}

func (r *Radio) AddPeer(addr state.HWAddr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[addr] = true
	return nil
}

func (r *Radio) RemovePeer(addr state.HWAddr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, addr)
	return nil
}

func (r *Radio) HasPeer(addr state.HWAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[addr]
}

func (r *Radio) Peers() []state.HWAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]state.HWAddr, 0, len(r.peers))
	for p := range r.peers {
		out = append(out, p)
	}
	return out
}

func (r *Radio) Self() state.HWAddr {
	return r.addr
}

func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

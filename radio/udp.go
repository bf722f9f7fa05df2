// Package radio provides drivers implementing state.Radio. The mesh core only
// talks to the interface; everything hardware- or transport-specific lives
// here.
package radio

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/encodeous/nowmesh/state"
	"github.com/jellydator/ttlcache/v3"
)

const (
	udpMagic   = 0x4e // 'N', first byte of every datagram
	udpVersion = 0x01

	udpTypeData   = 0x01
	udpTypeBeacon = 0x02

	udpHeaderLen = 15 // magic, version, type, sender[6], target[6]

	// The udp driver cannot measure signal strength, so every neighbour
	// reports the same nominal rssi and peer selection is driven by traffic
	// history alone.
	udpNominalRssi = int16(-42)

	beaconInterval = 5 * time.Second
	presenceTTL    = 3 * beaconInterval
)

// Udp emulates a broadcast radio over a LAN multicast group. Every node
// beacons its presence periodically; Scan reports the neighbours heard within
// the last few beacon intervals. Unicast frames are sent to the group with the
// target filled in, and filtered out at every other receiver, which mirrors
// how a shared radio channel behaves.
type Udp struct {
	self  state.HWAddr
	group *net.UDPAddr
	log   *slog.Logger

	conn     *net.UDPConn
	presence *ttlcache.Cache[state.HWAddr, int16]

	mu     sync.Mutex
	ev     state.RadioEvents
	peers  map[state.HWAddr]bool
	closed bool
}

func NewUdp(cfg *state.UdpRadioCfg, self state.HWAddr, log *slog.Logger) (*Udp, error) {
	group, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("invalid multicast group %q: %w", cfg.Group, err)
	}
	var iface *net.Interface
	if cfg.Interface != "" {
		iface, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("unknown interface %q: %w", cfg.Interface, err)
		}
	}
	conn, err := net.ListenMulticastUDP("udp4", iface, group)
	if err != nil {
		return nil, fmt.Errorf("failed to join multicast group: %w", err)
	}
	return &Udp{
		self:  self,
		group: group,
		log:   log,
		conn:  conn,
		peers: make(map[state.HWAddr]bool),
		presence: ttlcache.New[state.HWAddr, int16](
			ttlcache.WithTTL[state.HWAddr, int16](presenceTTL),
			ttlcache.WithDisableTouchOnHit[state.HWAddr, int16](),
		),
	}, nil
}

func (u *Udp) Start(ev state.RadioEvents) error {
	u.mu.Lock()
	u.ev = ev
	u.mu.Unlock()
	go u.presence.Start()
	go u.readLoop()
	go u.beaconLoop()
	return nil
}

func (u *Udp) Send(target state.HWAddr, raw []byte) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return fmt.Errorf("udp radio is closed")
	}
	ev := u.ev
	u.mu.Unlock()

	pkt := u.header(udpTypeData, target)
	pkt = append(pkt, raw...)
	go func() {
		_, err := u.conn.WriteToUDP(pkt, u.group)
		if ev.Sent != nil {
			ev.Sent(err)
		}
	}()
	return nil
}

func (u *Udp) Scan() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return fmt.Errorf("udp radio is closed")
	}
	ev := u.ev
	u.mu.Unlock()

	go func() {
		var found []state.Discovered
		for _, item := range u.presence.Items() {
			found = append(found, state.Discovered{Addr: item.Key(), Rssi: item.Value()})
		}
		if ev.ScanDone != nil {
			ev.ScanDone(found, nil)
		}
	}()
	return nil
}

func (u *Udp) header(kind byte, target state.HWAddr) []byte {
	pkt := make([]byte, 0, udpHeaderLen)
	pkt = append(pkt, udpMagic, udpVersion, kind)
	pkt = append(pkt, u.self[:]...)
	pkt = append(pkt, target[:]...)
	return pkt
}

func (u *Udp) readLoop() {
	buf := make([]byte, 2048)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			u.mu.Lock()
			closed := u.closed
			u.mu.Unlock()
			if !closed {
				u.log.Warn("udp read failed", "err", err)
			}
			return
		}
		u.handleDatagram(buf[:n])
	}
}

func (u *Udp) handleDatagram(pkt []byte) {
	if len(pkt) < udpHeaderLen || pkt[0] != udpMagic || pkt[1] != udpVersion {
		return
	}
	var sender, target state.HWAddr
	copy(sender[:], pkt[3:9])
	copy(target[:], pkt[9:15])
	if sender == u.self {
		// multicast loopback
		return
	}
	switch pkt[2] {
	case udpTypeBeacon:
		u.presence.Set(sender, udpNominalRssi, ttlcache.DefaultTTL)
	case udpTypeData:
		if !target.IsBroadcast() && target != u.self {
			return
		}
		u.mu.Lock()
		recv := u.ev.Receive
		u.mu.Unlock()
		if recv != nil {
			recv(pkt[udpHeaderLen:], sender)
		}
	}
}

func (u *Udp) beaconLoop() {
	ticker := time.NewTicker(beaconInterval)
	defer ticker.Stop()
	for {
		u.mu.Lock()
		closed := u.closed
		u.mu.Unlock()
		if closed {
			return
		}
		_, err := u.conn.WriteToUDP(u.header(udpTypeBeacon, state.BroadcastAddr), u.group)
		if err != nil && !closed {
			u.log.Debug("beacon send failed", "err", err)
		}
		<-ticker.C
	}
}

func (u *Udp) AddPeer(addr state.HWAddr) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.peers[addr] = true
	return nil
}

func (u *Udp) RemovePeer(addr state.HWAddr) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.peers, addr)
	return nil
}

func (u *Udp) HasPeer(addr state.HWAddr) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.peers[addr]
}

func (u *Udp) Peers() []state.HWAddr {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]state.HWAddr, 0, len(u.peers))
	for p := range u.peers {
		out = append(out, p)
	}
	return out
}

func (u *Udp) Self() state.HWAddr {
	return u.self
}

func (u *Udp) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()
	u.presence.Stop()
	return u.conn.Close()
}

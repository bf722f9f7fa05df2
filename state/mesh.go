package state

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HWAddr is a 6-byte hardware address identifying a node on the radio link.
type HWAddr [6]byte

// BroadcastAddr is the zero address, used as the target of broadcast frames.
var BroadcastAddr = HWAddr{}

func (a HWAddr) IsBroadcast() bool {
	return a == BroadcastAddr
}

func (a HWAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

func ParseHWAddr(s string) (HWAddr, error) {
	var a HWAddr
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 6 {
		return a, fmt.Errorf("invalid hardware address %q: expected 6 colon-separated octets", s)
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return a, fmt.Errorf("invalid hardware address %q: bad octet %q", s, p)
		}
		a[i] = b[0]
	}
	return a, nil
}

func (a HWAddr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *HWAddr) UnmarshalText(text []byte) error {
	parsed, err := ParseHWAddr(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

type FrameKind uint8

const (
	FrameBroadcast FrameKind = 1
	FrameTargeted  FrameKind = 2
)

// Frame is the wire-level message. Target is the zero address for broadcast
// frames. Id is assigned by the originator and increases per session.
type Frame struct {
	Kind       FrameKind
	Originator HWAddr
	Target     HWAddr
	Id         uint16
	Payload    []byte
}

// LedgerEntry records one received (or self-originated) message. Sender is the
// neighbour this copy arrived from, which doubles as an implicit route hint
// back towards Originator.
type LedgerEntry struct {
	Originator HWAddr
	Sender     HWAddr
	Id         uint16
}

type PeerRecord struct {
	Addr  HWAddr
	Score int16
}

// Discovered is a single neighbour found by a radio scan. Rssi is the signal
// strength in dBm as reported by the radio, typically negative.
type Discovered struct {
	Addr HWAddr
	Rssi int16
}

package radio

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/encodeous/nowmesh/state"
	"go.bug.st/serial"
)

const addrQueryTimeout = 5 * time.Second

// Serial drives a UART-attached radio coprocessor (typically an ESP-NOW
// module running companion firmware) over a line-based modem protocol.
//
// Commands sent to the modem:
//
//	ADDR?                  ask for the module's hardware address
//	SEND <addr>|* <hex>    transmit a frame, * for broadcast
//	SCAN                   start a neighbour scan
//	PEER+ <addr>           register an active peer
//	PEER- <addr>           unregister a peer
//
// Events received from the modem:
//
//	ADDR <addr>
//	RECV <addr> <hex>      frame heard on air, with its last-hop sender
//	SENT OK | SENT ERR <reason>
//	SCAN <addr> <rssi>     one scan result
//	SCAN END               scan complete
type Serial struct {
	port serial.Port
	log  *slog.Logger

	mu       sync.Mutex
	ev       state.RadioEvents
	self     state.HWAddr
	peers    map[state.HWAddr]bool
	scanning []state.Discovered
	inScan   bool
	closed   bool

	addrCh chan state.HWAddr
}

func NewSerial(cfg *state.SerialRadioCfg, log *slog.Logger) (*Serial, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	return &Serial{
		port:   port,
		log:    log,
		peers:  make(map[state.HWAddr]bool),
		addrCh: make(chan state.HWAddr, 1),
	}, nil
}

func (r *Serial) Start(ev state.RadioEvents) error {
	r.mu.Lock()
	r.ev = ev
	r.mu.Unlock()
	go r.readLoop()

	if err := r.command("ADDR?"); err != nil {
		return err
	}
	select {
	case addr := <-r.addrCh:
		r.mu.Lock()
		r.self = addr
		r.mu.Unlock()
		return nil
	case <-time.After(addrQueryTimeout):
		return fmt.Errorf("radio module did not report its address within %s", addrQueryTimeout)
	}
}

func (r *Serial) command(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("serial radio is closed")
	}
	_, err := r.port.Write([]byte(line + "\n"))
	return err
}

func (r *Serial) Send(target state.HWAddr, raw []byte) error {
	dst := "*"
	if !target.IsBroadcast() {
		dst = target.String()
	}
	return r.command(fmt.Sprintf("SEND %s %s", dst, hex.EncodeToString(raw)))
}

func (r *Serial) Scan() error {
	r.mu.Lock()
	if r.inScan {
		r.mu.Unlock()
		return fmt.Errorf("scan already in progress")
	}
	r.inScan = true
	r.scanning = nil
	r.mu.Unlock()
	err := r.command("SCAN")
	if err != nil {
		r.mu.Lock()
		r.inScan = false
		r.mu.Unlock()
	}
	return err
}

func (r *Serial) readLoop() {
	scanner := bufio.NewScanner(r.port)
	for scanner.Scan() {
		r.handleLine(strings.TrimSpace(scanner.Text()))
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if !closed {
		r.log.Warn("serial read loop ended", "err", scanner.Err())
	}
}

func (r *Serial) handleLine(line string) {
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	r.mu.Lock()
	ev := r.ev
	r.mu.Unlock()

	switch fields[0] {
	case "ADDR":
		if len(fields) != 2 {
			return
		}
		addr, err := state.ParseHWAddr(fields[1])
		if err != nil {
			return
		}
		select {
		case r.addrCh <- addr:
		default:
		}
	case "RECV":
		if len(fields) != 3 {
			return
		}
		sender, err := state.ParseHWAddr(fields[1])
		if err != nil {
			return
		}
		raw, err := hex.DecodeString(fields[2])
		if err != nil {
			return
		}
		if ev.Receive != nil {
			ev.Receive(raw, sender)
		}
	case "SENT":
		if ev.Sent == nil {
			return
		}
		if len(fields) >= 2 && fields[1] == "OK" {
			ev.Sent(nil)
		} else {
			ev.Sent(fmt.Errorf("radio module: %s", strings.Join(fields[1:], " ")))
		}
	case "SCAN":
		if len(fields) == 2 && fields[1] == "END" {
			r.mu.Lock()
			found := r.scanning
			r.scanning = nil
			r.inScan = false
			r.mu.Unlock()
			if ev.ScanDone != nil {
				ev.ScanDone(found, nil)
			}
			return
		}
		if len(fields) != 3 {
			return
		}
		addr, err := state.ParseHWAddr(fields[1])
		if err != nil {
			return
		}
		rssi, err := strconv.ParseInt(fields[2], 10, 16)
		if err != nil {
			return
		}
		r.mu.Lock()
		if r.inScan {
			r.scanning = append(r.scanning, state.Discovered{Addr: addr, Rssi: int16(rssi)})
		}
		r.mu.Unlock()
	default:
		r.log.Debug("unrecognized line from radio module", "line", line)
	}
}

func (r *Serial) AddPeer(addr state.HWAddr) error {
	if err := r.command("PEER+ " + addr.String()); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[addr] = true
	return nil
}

func (r *Serial) RemovePeer(addr state.HWAddr) error {
	if err := r.command("PEER- " + addr.String()); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, addr)
	return nil
}

func (r *Serial) HasPeer(addr state.HWAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[addr]
}

func (r *Serial) Peers() []state.HWAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]state.HWAddr, 0, len(r.peers))
	for p := range r.peers {
		out = append(out, p)
	}
	return out
}

func (r *Serial) Self() state.HWAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

func (r *Serial) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	return r.port.Close()
}

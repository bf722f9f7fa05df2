package radio

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/encodeous/nowmesh/state"
)

// The mqtt driver has no physical signal either; like udp it reports a fixed
// nominal rssi for every neighbour.
const mqttNominalRssi = int16(-42)

// Mqtt bridges the mesh over an MQTT broker, mainly for development and
// testing without radio hardware. Frames go to a shared frames topic with a
// 12-byte sender/target prefix; presence is a retained beacon per node,
// cleared by the broker via a will message when a node drops off.
type Mqtt struct {
	self state.HWAddr
	cfg  state.MqttRadioCfg
	log  *slog.Logger

	client mqtt.Client

	mu       sync.Mutex
	ev       state.RadioEvents
	presence map[state.HWAddr]bool
	peers    map[state.HWAddr]bool
	closed   bool
}

func NewMqtt(cfg *state.MqttRadioCfg, self state.HWAddr, log *slog.Logger) *Mqtt {
	return &Mqtt{
		self:     self,
		cfg:      *cfg,
		log:      log,
		presence: make(map[state.HWAddr]bool),
		peers:    make(map[state.HWAddr]bool),
	}
}

func (m *Mqtt) topic(sub string) string {
	return fmt.Sprintf("nowmesh/%s/%s", m.cfg.Network, sub)
}

func (m *Mqtt) Start(ev state.RadioEvents) error {
	m.mu.Lock()
	m.ev = ev
	m.mu.Unlock()

	randomId := make([]byte, 4)
	_, _ = rand.Read(randomId)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetUsername(m.cfg.Username)
	opts.SetPassword(m.cfg.Password)
	opts.SetClientID(fmt.Sprintf("nowmesh-%s-%x", m.self, randomId))
	opts.SetOrderMatters(false)
	opts.SetWill(m.topic("presence/"+m.self.String()), "", 0, true)

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	<-token.Done()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	token = m.client.Subscribe(m.topic("frames"), 0, m.handleFrame)
	<-token.Done()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to frames: %w", err)
	}
	token = m.client.Subscribe(m.topic("presence/+"), 0, m.handlePresence)
	<-token.Done()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to presence: %w", err)
	}

	// announce ourselves, retained so late joiners see us immediately
	m.client.Publish(m.topic("presence/"+m.self.String()), 0, true, []byte{1})
	return nil
}

func (m *Mqtt) handleFrame(_ mqtt.Client, msg mqtt.Message) {
	pkt := msg.Payload()
	if len(pkt) < 12 {
		return
	}
	var sender, target state.HWAddr
	copy(sender[:], pkt[:6])
	copy(target[:], pkt[6:12])
	if sender == m.self {
		return
	}
	if !target.IsBroadcast() && target != m.self {
		return
	}
	m.mu.Lock()
	recv := m.ev.Receive
	m.mu.Unlock()
	if recv != nil {
		recv(pkt[12:], sender)
	}
}

func (m *Mqtt) handlePresence(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	if len(topic) < 17 {
		return
	}
	addr, err := state.ParseHWAddr(topic[len(topic)-17:])
	if err != nil || addr == m.self {
		return
	}
	m.mu.Lock()
	if len(msg.Payload()) == 0 {
		delete(m.presence, addr)
	} else {
		m.presence[addr] = true
	}
	m.mu.Unlock()
}

func (m *Mqtt) Send(target state.HWAddr, raw []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("mqtt radio is closed")
	}
	ev := m.ev
	m.mu.Unlock()

	pkt := make([]byte, 0, 12+len(raw))
	pkt = append(pkt, m.self[:]...)
	pkt = append(pkt, target[:]...)
	pkt = append(pkt, raw...)
	token := m.client.Publish(m.topic("frames"), 0, false, pkt)
	go func() {
		<-token.Done()
		if ev.Sent != nil {
			ev.Sent(token.Error())
		}
	}()
	return nil
}

func (m *Mqtt) Scan() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("mqtt radio is closed")
	}
	ev := m.ev
	var found []state.Discovered
	for addr := range m.presence {
		found = append(found, state.Discovered{Addr: addr, Rssi: mqttNominalRssi})
	}
	m.mu.Unlock()

	go func() {
		if ev.ScanDone != nil {
			ev.ScanDone(found, nil)
		}
	}()
	return nil
}

func (m *Mqtt) AddPeer(addr state.HWAddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[addr] = true
	return nil
}

func (m *Mqtt) RemovePeer(addr state.HWAddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, addr)
	return nil
}

func (m *Mqtt) HasPeer(addr state.HWAddr) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peers[addr]
}

func (m *Mqtt) Peers() []state.HWAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.HWAddr, 0, len(m.peers))
	for p := range m.peers {
		out = append(out, p)
	}
	return out
}

func (m *Mqtt) Self() state.HWAddr {
	return m.self
}

func (m *Mqtt) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		// clear our retained presence before going away
		m.client.Publish(m.topic("presence/"+m.self.String()), 0, true, []byte{})
		m.client.Disconnect(250)
	}
	return nil
}

package state

import "time"

// LocalCfg is the node-level configuration, loaded from yaml.
type LocalCfg struct {
	Id      string  // unique human-readable name for this node
	Address HWAddr  // hardware address of this node on the radio link
	Radio   RadioCfg

	StoredMessages int           `yaml:"stored_messages,omitempty"` // message ledger capacity
	MaxPeers       int           `yaml:"max_peers,omitempty"`       // active peer table capacity
	MaxFrameLen    int           `yaml:"max_frame_len,omitempty"`   // maximum encoded frame length
	ScanInterval   time.Duration `yaml:"scan_interval,omitempty"`   // neighbour discovery period
	LogPath        string        `yaml:"log_path,omitempty"`        // if not empty, logs are also written to this file
}

// RadioCfg selects and configures the radio driver.
type RadioCfg struct {
	Driver string          // one of "udp", "serial", "mqtt"
	Udp    *UdpRadioCfg    `yaml:",omitempty"`
	Serial *SerialRadioCfg `yaml:",omitempty"`
	Mqtt   *MqttRadioCfg   `yaml:",omitempty"`
}

// UdpRadioCfg emulates a broadcast radio over a LAN multicast group.
type UdpRadioCfg struct {
	Group     string `yaml:",omitempty"`          // multicast group, host:port
	Interface string `yaml:"interface,omitempty"` // bind interface name, empty for default
}

// SerialRadioCfg drives a UART-attached radio coprocessor.
type SerialRadioCfg struct {
	Port string // serial device, e.g. /dev/ttyUSB0
	Baud int    `yaml:",omitempty"`
}

// MqttRadioCfg bridges the mesh over an MQTT broker, mainly for development.
type MqttRadioCfg struct {
	Broker   string // e.g. tcp://localhost:1883
	Network  string `yaml:",omitempty"` // topic namespace shared by the mesh
	Username string `yaml:",omitempty"`
	Password string `yaml:",omitempty"`
}

// ApplyDefaults fills in unset tunables.
func (c *LocalCfg) ApplyDefaults() {
	if c.StoredMessages == 0 {
		c.StoredMessages = DefaultStoredMessages
	}
	if c.MaxPeers == 0 {
		c.MaxPeers = DefaultMaxPeers
	}
	if c.MaxFrameLen == 0 {
		c.MaxFrameLen = DefaultMaxFrameLen
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.Radio.Driver == "udp" && c.Radio.Udp == nil {
		c.Radio.Udp = &UdpRadioCfg{}
	}
	if c.Radio.Udp != nil && c.Radio.Udp.Group == "" {
		c.Radio.Udp.Group = "239.77.71.17:17177"
	}
	if c.Radio.Serial != nil && c.Radio.Serial.Baud == 0 {
		c.Radio.Serial.Baud = 115200
	}
	if c.Radio.Mqtt != nil && c.Radio.Mqtt.Network == "" {
		c.Radio.Mqtt.Network = "default"
	}
}

package state

import (
	"fmt"
	"net/netip"
	"regexp"
	"slices"
)

var namePattern = regexp.MustCompile("^[0-9a-z._-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

// minFrameLen is the length of the smallest well-formed frame: a broadcast
// frame with every numeric field a single digit and an empty payload.
const minFrameLen = 28

func NodeConfigValidator(cfg *LocalCfg) error {
	err := NameValidator(cfg.Id)
	if err != nil {
		return err
	}
	if cfg.Address.IsBroadcast() {
		return fmt.Errorf("node address must not be the broadcast address")
	}
	if cfg.StoredMessages < 1 {
		return fmt.Errorf("stored_messages must be at least 1")
	}
	if cfg.MaxPeers < 1 {
		return fmt.Errorf("max_peers must be at least 1")
	}
	if cfg.MaxFrameLen < minFrameLen {
		return fmt.Errorf("max_frame_len must be at least %d", minFrameLen)
	}
	return RadioConfigValidator(&cfg.Radio)
}

func RadioConfigValidator(cfg *RadioCfg) error {
	drivers := []string{"udp", "serial", "mqtt"}
	if !slices.Contains(drivers, cfg.Driver) {
		return fmt.Errorf("unknown radio driver %q, must be one of %v", cfg.Driver, drivers)
	}
	switch cfg.Driver {
	case "udp":
		if cfg.Udp == nil {
			return fmt.Errorf("radio driver is udp but no udp config is present")
		}
		if _, err := netip.ParseAddrPort(cfg.Udp.Group); err != nil {
			return fmt.Errorf("invalid multicast group %q: %w", cfg.Udp.Group, err)
		}
	case "serial":
		if cfg.Serial == nil || cfg.Serial.Port == "" {
			return fmt.Errorf("radio driver is serial but no serial port is configured")
		}
	case "mqtt":
		if cfg.Mqtt == nil || cfg.Mqtt.Broker == "" {
			return fmt.Errorf("radio driver is mqtt but no broker is configured")
		}
	}
	return nil
}

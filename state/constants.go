package state

import "time"

var (
	// DefaultStoredMessages is the message ledger capacity. A very large mesh
	// or a high message rate may need more to keep duplicates from recirculating.
	DefaultStoredMessages = 10
	// DefaultMaxPeers bounds how many neighbours we actively peer with. Any
	// number of neighbours can peer with us.
	DefaultMaxPeers = 10
	// DefaultMaxFrameLen is the maximum encoded frame length, payload included.
	DefaultMaxFrameLen = 65
	// DefaultScanInterval paces the periodic neighbour discovery cycle. It must
	// comfortably exceed the radio's own scan round-trip.
	DefaultScanInterval = 30 * time.Second

	// HistoryScoreBonus is added to a discovery candidate's score for every
	// ledger entry originated by or relayed through it.
	HistoryScoreBonus = int16(20)
	// SignalScoreBase converts an rssi attenuation into a positive score.
	SignalScoreBase = int16(128)
)

var (
	DBG_log_frames = false
	DBG_log_scan   = false
)

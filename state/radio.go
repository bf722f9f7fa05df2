package state

// RadioEvents are the callbacks a radio driver delivers asynchronously. They
// may be invoked from any goroutine; implementations of the mesh core are
// expected to dispatch the work onto the main loop rather than act in place.
type RadioEvents struct {
	// Receive is invoked for every raw frame heard on the link. The buffer is
	// only valid for the duration of the call.
	Receive func(raw []byte, sender HWAddr)
	// Sent reports completion of an earlier Send. A nil error means the radio
	// accepted the frame; it says nothing about end-to-end delivery.
	Sent func(err error)
	// ScanDone reports the result of a Scan.
	ScanDone func(found []Discovered, err error)
}

// Radio abstracts the broadcast-capable transport the mesh runs over. All
// operations are fire-and-forget; results arrive through RadioEvents. The mesh
// core never references a concrete driver.
type Radio interface {
	// Start brings the driver up and registers the event callbacks.
	Start(ev RadioEvents) error
	// Send transmits raw to the given neighbour, or to every active peer when
	// target is BroadcastAddr. Completion is reported through RadioEvents.Sent.
	Send(target HWAddr, raw []byte) error
	// Scan starts one asynchronous neighbour discovery cycle.
	Scan() error

	AddPeer(addr HWAddr) error
	RemovePeer(addr HWAddr) error
	HasPeer(addr HWAddr) bool
	// Peers returns the current active peer set.
	Peers() []HWAddr

	// Self returns the hardware address of the local node.
	Self() HWAddr
	Close() error
}

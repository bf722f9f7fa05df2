package state

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type MeshModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on the main loop goroutine.
type State struct {
	*Env
	Modules map[string]MeshModule
}

// Hooks are the application-facing callbacks of the node.
type Hooks struct {
	// Receive is called once for every message delivered to this node.
	// targetedAtSelf is true only for a Targeted frame addressed to this node;
	// broadcast deliveries report false.
	Receive func(payload []byte, targetedAtSelf bool, originator HWAddr)
	// Sent is called with the completion status of every radio transmission,
	// including forwarded traffic. Retry policy is the application's concern.
	Sent func(err error)
}

// Env can be read from any goroutine.
type Env struct {
	DispatchChannel chan<- func(s *State) error
	LocalCfg
	Radio    Radio
	Hooks    Hooks
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	Started  atomic.Bool
	Stopping atomic.Bool
}

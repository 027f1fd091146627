// Package node defines the node trait the scheduler drives, the
// configuration object a node type produces at compile time, and the
// process-wide factory registry node types register themselves in.
package node

import (
	"context"

	"github.com/Kong/datakit/host"
	"github.com/Kong/datakit/payload"
	"github.com/Kong/datakit/store"
)

// Input is what a node sees when run or resumed: its connected inputs,
// indexed by input port (nil where that input is unlinked or its provider
// produced no payload), the lifecycle phase the scheduler is currently
// driving, and (only on a Resume call) the host call token that completed.
type Input struct {
	Data  []*payload.Payload
	Phase store.Phase
	Token uint32
}

// Node is the runtime contract every registered node type's instances
// satisfy. Run is called once all of a node's connected inputs are Done;
// Resume is called exactly once after the driver receives an external
// completion whose token matches a prior Waiting(token) this node
// returned from Run.
type Node interface {
	Run(ctx context.Context, h host.Host, in Input) store.NodeState
	Resume(ctx context.Context, h host.Host, in Input) store.NodeState
}

// DefaultLink describes a link a node config wants appended automatically
// into an implicit node when the user supplied zero inputs (or outputs) of
// their own.
type DefaultLink struct {
	ThisPort  string
	OtherNode string
	OtherPort string
}

// Config is the type-tagged configuration object a node type's factory
// produces at compile time from its resolved port lists and property bag.
// Implementations may additionally satisfy DefaultInputsProvider and/or
// DefaultOutputsProvider; a config that doesn't need default links need not
// implement either.
type Config interface{}

// DefaultInputsProvider is an optional Config capability: a node type whose
// config declares default links into an implicit node when the node has
// zero user-supplied inputs.
type DefaultInputsProvider interface {
	DefaultInputs() []DefaultLink
}

// DefaultOutputsProvider mirrors DefaultInputsProvider for output links.
type DefaultOutputsProvider interface {
	DefaultOutputs() []DefaultLink
}

// PortConfig describes the port set a node type presents at compile time:
// either a closed list of declared defaults, or an open set that also
// admits user-defined extra ports (or both).
type PortConfig struct {
	// Defaults are the port names a node type always has, in order.
	Defaults []string
	// UserDefinedPorts allows the compiler to add extra, configuration-
	// supplied port names beyond Defaults.
	UserDefinedPorts bool
}

// PortList returns the effective port list for a node instance: Defaults
// followed by any named ports not already present, when UserDefinedPorts
// allows it.
func (pc PortConfig) PortList(named []string) []string {
	out := append([]string(nil), pc.Defaults...)
	for _, n := range named {
		if !contains(out, n) && pc.UserDefinedPorts {
			out = append(out, n)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

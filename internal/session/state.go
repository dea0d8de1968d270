// Package session ties the beam components into one running beam: it owns
// the control channel, the media pipelines, and the teardown order.
package session

// State is the session lifecycle. Transitions are monotonic; a stopped
// session is dead.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Role is which side of the beam this session plays.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// Stats is a point-in-time snapshot of pipeline throughput.
type Stats struct {
	FramesCaptured uint64
	FramesRendered uint64
	AudioPackets   uint64
	AudioBuffers   uint64
}

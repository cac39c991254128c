package domain

import "fmt"

// SessionState is the explicit per-address lifecycle.
//
//	Unregistered --register--> Registered --disconnect|send-failure|expiry--> Unregistered
type SessionState int

const (
	StateUnregistered SessionState = iota
	StateRegistered
)

func (s SessionState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Event drives SessionState transitions.
type Event int

const (
	EventRegister Event = iota
	EventHeartbeat
	EventAudio
	EventDisconnect
	EventSendFailure
	EventExpired
)

func (e Event) String() string {
	switch e {
	case EventRegister:
		return "register"
	case EventHeartbeat:
		return "heartbeat"
	case EventAudio:
		return "audio"
	case EventDisconnect:
		return "disconnect"
	case EventSendFailure:
		return "send_failure"
	case EventExpired:
		return "expired"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Next returns the state after e is applied to s. Heartbeat and audio never
// register an unknown address and never leave Registered.
func (s SessionState) Next(e Event) SessionState {
	switch e {
	case EventRegister:
		return StateRegistered
	case EventDisconnect, EventSendFailure, EventExpired:
		return StateUnregistered
	default:
		return s
	}
}

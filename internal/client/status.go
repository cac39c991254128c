package client

import "time"

type StatusKind int

const (
	StatusInfo StatusKind = iota
	StatusConnected
	StatusError
	StatusClosed
)

func (k StatusKind) String() string {
	switch k {
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	case StatusClosed:
		return "closed"
	default:
		return "info"
	}
}

// Status is a user-facing notification from the runtime.
type Status struct {
	Kind    StatusKind
	Message string
	At      time.Time
}

// notify never blocks; stale notifications are dropped when nobody reads.
func (c *Client) notify(kind StatusKind, msg string) {
	select {
	case c.status <- Status{Kind: kind, Message: msg, At: time.Now()}:
	default:
	}
}

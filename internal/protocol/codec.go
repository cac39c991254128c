package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Prefix marks a control datagram. Compatibility is strict on it.
const Prefix = "CTRL:"

// MaxDatagramSize is the largest datagram either side reads.
const MaxDatagramSize = 4096

var prefix = []byte(Prefix)

var (
	ErrNotControl = errors.New("not a control datagram")
	ErrDecode     = errors.New("malformed control envelope")
)

type Kind int

const (
	KindAudio Kind = iota
	KindControl
)

func (k Kind) String() string {
	if k == KindControl {
		return "control"
	}
	return "audio"
}

type MessageType string

const (
	TypeRegister     MessageType = "register"
	TypeRegistered   MessageType = "registered"
	TypeHeartbeat    MessageType = "heartbeat"
	TypeHeartbeatAck MessageType = "heartbeat_ack"
	TypeDisconnect   MessageType = "disconnect"
	TypeError        MessageType = "error"
)

const (
	StatusOK         = "ok"
	MsgRegisterFirst = "Please register first"
)

// Envelope is the structured part of a control datagram. Timestamp is
// client-supplied seconds since the epoch; it is informational only.
type Envelope struct {
	Type      MessageType `json:"type"`
	Name      string      `json:"name,omitempty"`
	Status    string      `json:"status,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp float64     `json:"timestamp,omitempty"`
}

// Classify reports whether data is a control datagram or an audio chunk.
func Classify(data []byte) Kind {
	if bytes.HasPrefix(data, prefix) {
		return KindControl
	}
	return KindAudio
}

// Decode parses a control datagram. Errors wrap ErrNotControl or ErrDecode.
func Decode(data []byte) (*Envelope, error) {
	if Classify(data) != KindControl {
		return nil, ErrNotControl
	}
	body := data[len(prefix):]
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrDecode)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &env, nil
}

// Encode is the inverse of Decode: prefix plus the serialized envelope.
func Encode(env *Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}
	out := make([]byte, 0, len(prefix)+len(b))
	out = append(out, prefix...)
	return append(out, b...), nil
}

// MustEncode is Encode for envelopes built from the helpers below, which
// always marshal.
func MustEncode(env *Envelope) []byte {
	b, err := Encode(env)
	if err != nil {
		panic(err)
	}
	return b
}

// Timestamp converts t to the wire representation.
func Timestamp(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func Register(name string, at time.Time) *Envelope {
	return &Envelope{Type: TypeRegister, Name: name, Timestamp: Timestamp(at)}
}

func Registered() *Envelope {
	return &Envelope{Type: TypeRegistered, Status: StatusOK}
}

func Heartbeat(at time.Time) *Envelope {
	return &Envelope{Type: TypeHeartbeat, Timestamp: Timestamp(at)}
}

func HeartbeatAck() *Envelope {
	return &Envelope{Type: TypeHeartbeatAck}
}

func Disconnect(at time.Time) *Envelope {
	return &Envelope{Type: TypeDisconnect, Timestamp: Timestamp(at)}
}

func Error(message string) *Envelope {
	return &Envelope{Type: TypeError, Message: message}
}

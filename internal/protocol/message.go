// Package protocol implements the closed set of control messages exchanged
// between a controller and the master, and their wire encoding.
//
// The wire form is a printable, delimited string rather than a binary
// encoding: it is trivially human-loggable, and a mis-parse fails only the
// individual message with a DecodeError — it never tears down the
// request/reply loop around it.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Type identifies one of the closed set of messages.
type Type string

const (
	TaskRequest  Type = "TASK_REQUEST"
	TaskFinished Type = "TASK_FINISHED"
	Heartbeat    Type = "HEARTBEAT"
	TaskAssign   Type = "TASK_ASSIGN"
	Wait         Type = "WAIT"
	Acknowledge  Type = "ACKNOWLEDGE"
	Exit         Type = "EXIT"
)

// Sep is the reserved field separator. It may not appear inside any field
// value — task bodies are carried base64-encoded precisely so this holds.
const Sep = "\x1f"

// ErrDecode is returned (wrapped with detail) whenever a received frame
// cannot be parsed into a well-formed Message.
var ErrDecode = errors.New("protocol: decode error")

// Message is the decoded shape of any frame on the wire. Not every field
// applies to every Type; see the field comments.
type Message struct {
	Type   Type
	Sender string // controller→master messages; empty for master→controller

	Tid         string // TASK_FINISHED, TASK_ASSIGN
	TaskBody    []byte // TASK_ASSIGN — opaque, base64 on the wire
	WaitSeconds int    // WAIT
}

// Encode renders m as a single wire frame.
func Encode(m Message) (string, error) {
	switch m.Type {
	case TaskRequest, Heartbeat:
		return join(string(m.Type), m.Sender), nil
	case TaskFinished:
		return join(string(m.Type), m.Sender, m.Tid), nil
	case TaskAssign:
		return join(string(m.Type), m.Tid, encodeBody(m.TaskBody)), nil
	case Wait:
		return join(string(m.Type), strconv.Itoa(m.WaitSeconds)), nil
	case Acknowledge, Exit:
		return join(string(m.Type)), nil
	default:
		return "", fmt.Errorf("%w: unknown message type %q", ErrDecode, m.Type)
	}
}

// Decode parses a wire frame into a Message. Any structural problem is
// reported as ErrDecode; the caller logs it, counts it, and replies
// ACKNOWLEDGE to keep the socket balanced rather than propagating it.
func Decode(frame string) (Message, error) {
	parts := strings.Split(frame, Sep)
	if len(parts) == 0 || parts[0] == "" {
		return Message{}, fmt.Errorf("%w: empty frame", ErrDecode)
	}

	t := Type(parts[0])
	switch t {
	case TaskRequest, Heartbeat:
		if len(parts) != 2 || parts[1] == "" {
			return Message{}, fmt.Errorf("%w: %s requires a sender", ErrDecode, t)
		}
		return Message{Type: t, Sender: parts[1]}, nil

	case TaskFinished:
		if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
			return Message{}, fmt.Errorf("%w: TASK_FINISHED requires sender and tid", ErrDecode)
		}
		return Message{Type: t, Sender: parts[1], Tid: parts[2]}, nil

	case TaskAssign:
		if len(parts) != 3 || parts[1] == "" {
			return Message{}, fmt.Errorf("%w: TASK_ASSIGN requires tid and body", ErrDecode)
		}
		body, err := decodeBody(parts[2])
		if err != nil {
			return Message{}, fmt.Errorf("%w: TASK_ASSIGN body: %v", ErrDecode, err)
		}
		return Message{Type: t, Tid: parts[1], TaskBody: body}, nil

	case Wait:
		if len(parts) != 2 {
			return Message{}, fmt.Errorf("%w: WAIT requires a duration", ErrDecode)
		}
		secs, err := strconv.Atoi(parts[1])
		if err != nil {
			return Message{}, fmt.Errorf("%w: WAIT duration: %v", ErrDecode, err)
		}
		return Message{Type: t, WaitSeconds: secs}, nil

	case Acknowledge, Exit:
		if len(parts) != 1 {
			return Message{}, fmt.Errorf("%w: %s takes no fields", ErrDecode, t)
		}
		return Message{Type: t}, nil

	default:
		return Message{}, fmt.Errorf("%w: unknown message type %q", ErrDecode, t)
	}
}

func join(fields ...string) string {
	return strings.Join(fields, Sep)
}

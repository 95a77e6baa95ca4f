package core

import (
	"fmt"
)

// SentinelID marks an empty reply slot or a "not yet available" Receive
// result. It is never a valid sender id.
const SentinelID = -1

// MessageKind defines the type of message being sent.
type MessageKind uint8

// Request kinds travel from a Requester to the Responder through the request
// queue; reply kinds travel back through the reply slot.
const (
	// KindLogin opens a client's transaction
	KindLogin MessageKind = iota + 1

	// KindCredentials carries the user and password params
	KindCredentials

	// KindLogout closes a client's transaction
	KindLogout

	// KindLoginAck answers KindLogin
	KindLoginAck

	// KindCredentialsAck answers KindCredentials
	KindCredentialsAck

	// KindLogoutAck answers KindLogout
	KindLogoutAck
)

// String returns the string representation of MessageKind.
func (k MessageKind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindCredentials:
		return "credentials"
	case KindLogout:
		return "logout"
	case KindLoginAck:
		return "login_ack"
	case KindCredentialsAck:
		return "credentials_ack"
	case KindLogoutAck:
		return "logout_ack"
	default:
		return "invalid"
	}
}

// IsRequest reports whether k is routed through the request queue.
func (k MessageKind) IsRequest() bool {
	return k >= KindLogin && k <= KindLogout
}

// IsReply reports whether k is routed through the reply slot.
func (k MessageKind) IsReply() bool {
	return k >= KindLoginAck && k <= KindLogoutAck
}

// Ack returns the reply kind answering the request kind k.
func (k MessageKind) Ack() (MessageKind, error) {
	if !k.IsRequest() {
		return 0, fmt.Errorf("%w: %s has no ack", ErrUnknownKind, k)
	}
	return k + (KindLoginAck - KindLogin), nil
}

// Param is a single key/value pair attached to a message.
type Param struct {
	Key   string
	Value string
}

// Message represents communication data between a Requester and the
// Responder. Values are treated as immutable once sent.
type Message struct {
	// SenderID identifies the originating Requester
	SenderID int

	// Kind selects the mailbox component the message travels through
	Kind MessageKind

	// Params is the ordered auxiliary payload; keys need not be unique
	Params []Param
}

// Empty reports whether m carries the sentinel id.
func (m Message) Empty() bool {
	return m.SenderID == SentinelID
}

// Clone returns a copy of m that shares no storage with it.
func (m Message) Clone() Message {
	c := m
	if m.Params != nil {
		c.Params = make([]Param, len(m.Params))
		copy(c.Params, m.Params)
	}
	return c
}

// Param returns the first value stored under key.
func (m Message) Param(key string) (string, bool) {
	for _, p := range m.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// String renders m for log output.
func (m Message) String() string {
	return fmt.Sprintf("%s from %d", m.Kind, m.SenderID)
}

// emptyMessage is what an unoccupied reply slot holds.
func emptyMessage() Message {
	return Message{SenderID: SentinelID}
}

// MailboxStats contains runtime statistics for a Mailbox.
type MailboxStats struct {
	// Requests appended to the queue
	RequestsQueued uint64

	// Requests removed by Pop
	RequestsPopped uint64

	// Replies that claimed the reply slot
	RepliesPublished uint64

	// Replies consumed by their addressee
	RepliesDelivered uint64

	// Times a reply Send found the slot occupied and backed off
	SendRetries uint64

	// Receive calls that returned the sentinel
	ReceiveMisses uint64

	// Messages currently waiting in the request queue
	QueueLength int

	// Whether the reply slot currently holds an unclaimed reply
	SlotOccupied bool
}

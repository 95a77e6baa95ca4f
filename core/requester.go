package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/najoast/handshake/logging"
)

// RequesterState represents where a Requester is in its transaction.
type RequesterState int32

const (
	StateSendLogin RequesterState = iota
	StateAwaitLoginAck
	StateSendCredentials
	StateAwaitCredentialsAck
	StateSendLogout
	StateAwaitLogoutAck
	StateDone
)

// String returns the string representation of RequesterState.
func (s RequesterState) String() string {
	switch s {
	case StateSendLogin:
		return "send_login"
	case StateAwaitLoginAck:
		return "await_login_ack"
	case StateSendCredentials:
		return "send_credentials"
	case StateAwaitCredentialsAck:
		return "await_credentials_ack"
	case StateSendLogout:
		return "send_logout"
	case StateAwaitLogoutAck:
		return "await_logout_ack"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// transaction is the fixed request sequence every Requester walks through.
var transaction = []struct {
	send  RequesterState
	await RequesterState
	kind  MessageKind
}{
	{StateSendLogin, StateAwaitLoginAck, KindLogin},
	{StateSendCredentials, StateAwaitCredentialsAck, KindCredentials},
	{StateSendLogout, StateAwaitLogoutAck, KindLogout},
}

// Requester is one simulated client. Each request is sent only after the
// previous one has been acknowledged.
type Requester struct {
	id      int
	name    string
	mailbox *Mailbox

	state   int32 // RequesterState
	started atomic.Bool

	acksMu sync.Mutex
	acks   []Message

	logger *logging.Logger
}

// NewRequester creates a Requester with the given id and display name.
// The id must be positive and unique among the Requesters sharing mailbox.
func NewRequester(id int, name string, mailbox *Mailbox, opts ...Option) *Requester {
	o := buildOptions(opts)
	return &Requester{
		id:      id,
		name:    name,
		mailbox: mailbox,
		logger:  o.logger.WithComponent("requester").WithRequester(id, name),
	}
}

// ID returns the requester id.
func (r *Requester) ID() int {
	return r.id
}

// Name returns the display name.
func (r *Requester) Name() string {
	return r.name
}

// State returns the current state.
func (r *Requester) State() RequesterState {
	return RequesterState(atomic.LoadInt32(&r.state))
}

// Acks returns the replies observed so far, in the order they arrived.
func (r *Requester) Acks() []Message {
	r.acksMu.Lock()
	defer r.acksMu.Unlock()

	out := make([]Message, len(r.acks))
	copy(out, r.acks)
	return out
}

// Run performs the login, credentials and logout exchange. Waiting for each
// ack polls the reply slot every PollInterval with no upper bound.
func (r *Requester) Run() error {
	if r.id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, r.id)
	}
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("requester %d already started (state: %s)", r.id, r.State())
	}

	r.logger.Info("requester started")

	for _, step := range transaction {
		r.setState(step.send)
		r.logger.Debug("sending request", "kind", step.kind.String())
		if err := r.mailbox.Send(r.request(step.kind)); err != nil {
			return fmt.Errorf("requester %d: send %s: %w", r.id, step.kind, err)
		}

		r.setState(step.await)
		ack := r.await()
		if want, _ := step.kind.Ack(); ack.Kind != want {
			r.logger.Warn("unexpected ack kind", "want", want.String(), "got", ack.Kind.String())
		}
		r.logger.Debug("ack received", "kind", ack.Kind.String())

		r.acksMu.Lock()
		r.acks = append(r.acks, ack)
		r.acksMu.Unlock()
	}

	r.setState(StateDone)
	r.logger.Info("requester done")
	return nil
}

// request builds the message for kind. Only credentials carry params.
func (r *Requester) request(kind MessageKind) Message {
	msg := Message{SenderID: r.id, Kind: kind}
	if kind == KindCredentials {
		msg.Params = []Param{
			{Key: "user", Value: r.name},
			{Key: "password", Value: r.name + "_passwd"},
		}
	}
	return msg
}

// await polls the reply slot until a reply addressed to this requester shows up.
func (r *Requester) await() Message {
	for {
		if msg := r.mailbox.Receive(r.id); msg.SenderID == r.id {
			return msg
		}
		time.Sleep(r.mailbox.PollInterval())
	}
}

func (r *Requester) setState(s RequesterState) {
	atomic.StoreInt32(&r.state, int32(s))
}

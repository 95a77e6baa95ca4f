package core

import (
	"fmt"
	"sync/atomic"

	"github.com/najoast/handshake/logging"
)

// ResponderState represents the current state of a Responder.
type ResponderState int32

const (
	// ResponderIdle means Run has not been called yet
	ResponderIdle ResponderState = iota

	// ResponderRunning means the Responder is draining the request queue
	ResponderRunning

	// ResponderStopped means the logout threshold was reached
	ResponderStopped
)

// String returns the string representation of ResponderState.
func (s ResponderState) String() string {
	switch s {
	case ResponderIdle:
		return "idle"
	case ResponderRunning:
		return "running"
	case ResponderStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Responder is the single consumer of the request queue. It answers every
// request with the matching ack addressed to the same sender and stops after
// answering a fixed number of logouts. There is no other stop signal.
type Responder struct {
	mailbox   *Mailbox
	threshold int

	state            int32 // ResponderState
	logoutsRemaining int64
	handled          uint64

	logger *logging.Logger
}

// NewResponder creates a Responder that stops after logoutThreshold logout
// replies have been sent through mailbox.
func NewResponder(logoutThreshold int, mailbox *Mailbox, opts ...Option) *Responder {
	o := buildOptions(opts)
	return &Responder{
		mailbox:          mailbox,
		threshold:        logoutThreshold,
		logoutsRemaining: int64(logoutThreshold),
		logger:           o.logger.WithComponent("responder"),
	}
}

// Run drains the request queue until the logout threshold is reached. It
// blocks in Pop while the queue is empty and in Send while the reply slot is
// held by another requester's unclaimed reply.
func (r *Responder) Run() error {
	if r.threshold <= 0 {
		return fmt.Errorf("responder logout threshold must be positive, got %d", r.threshold)
	}
	if !atomic.CompareAndSwapInt32(&r.state, int32(ResponderIdle), int32(ResponderRunning)) {
		return fmt.Errorf("responder already started (state: %s)", r.State())
	}

	r.logger.Info("responder started", "logout_threshold", r.threshold)

	for atomic.LoadInt64(&r.logoutsRemaining) > 0 {
		req := r.mailbox.Pop()
		r.logger.Debug("request received", "kind", req.Kind.String(), "sender_id", req.SenderID)
		r.answer(req)
	}

	atomic.StoreInt32(&r.state, int32(ResponderStopped))
	r.logger.Info("responder stopped", "handled", r.Handled())
	return nil
}

// answer publishes the ack for req. Only request kinds ever reach the queue,
// so a kind without an ack is logged and skipped.
func (r *Responder) answer(req Message) {
	ack, err := req.Kind.Ack()
	if err != nil {
		r.logger.Error("cannot answer request", "sender_id", req.SenderID, "error", err)
		return
	}

	reply := Message{SenderID: req.SenderID, Kind: ack}
	if err := r.mailbox.Send(reply); err != nil {
		r.logger.Error("failed to send reply", "sender_id", req.SenderID, "error", err)
		return
	}
	atomic.AddUint64(&r.handled, 1)

	if req.Kind == KindLogout {
		remaining := atomic.AddInt64(&r.logoutsRemaining, -1)
		r.logger.Info("logout acknowledged", "sender_id", req.SenderID, "logouts_remaining", remaining)
	}
}

// State returns the current state.
func (r *Responder) State() ResponderState {
	return ResponderState(atomic.LoadInt32(&r.state))
}

// LogoutsRemaining returns how many logout replies are left before stopping.
func (r *Responder) LogoutsRemaining() int {
	return int(atomic.LoadInt64(&r.logoutsRemaining))
}

// Handled returns the number of replies sent so far.
func (r *Responder) Handled() uint64 {
	return atomic.LoadUint64(&r.handled)
}

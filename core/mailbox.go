package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/najoast/handshake/logging"
)

const (
	// DefaultSendBackoff is the pause between attempts to claim the reply slot.
	DefaultSendBackoff = 20 * time.Millisecond

	// DefaultPollInterval is the pause between a Requester's Receive attempts.
	DefaultPollInterval = 20 * time.Millisecond
)

// Mailbox is the only channel between the Responder and its Requesters: an
// unbounded FIFO request queue and a single reply slot addressed by sender id.
//
// The queue and the slot have independent locks and no operation holds both.
// A Mailbox must be created before any party starts and shared by pointer.
type Mailbox struct {
	// Request queue, guarded by queueMu; notEmpty is bound to queueMu.
	queueMu  sync.Mutex
	notEmpty *sync.Cond
	queue    []Message

	// Reply slot, occupied iff slot.SenderID != SentinelID.
	slotMu sync.RWMutex
	slot   Message

	sendBackoff  atomic.Int64
	pollInterval atomic.Int64

	requestsQueued   atomic.Uint64
	requestsPopped   atomic.Uint64
	repliesPublished atomic.Uint64
	repliesDelivered atomic.Uint64
	sendRetries      atomic.Uint64
	receiveMisses    atomic.Uint64

	logger *logging.Logger
}

// NewMailbox creates an empty Mailbox.
func NewMailbox(opts ...MailboxOption) *Mailbox {
	m := &Mailbox{
		slot:   emptyMessage(),
		logger: logging.NopLogger(),
	}
	m.notEmpty = sync.NewCond(&m.queueMu)
	m.sendBackoff.Store(int64(DefaultSendBackoff))
	m.pollInterval.Store(int64(DefaultPollInterval))

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetSendBackoff changes the reply-slot retry interval. It is safe to call
// while the simulation runs. Zero or negative values are ignored.
func (m *Mailbox) SetSendBackoff(d time.Duration) {
	if d > 0 {
		m.sendBackoff.Store(int64(d))
	}
}

// SendBackoff returns the current reply-slot retry interval.
func (m *Mailbox) SendBackoff() time.Duration {
	return time.Duration(m.sendBackoff.Load())
}

// SetPollInterval changes the interval Requesters wait between Receive
// attempts. Zero or negative values are ignored.
func (m *Mailbox) SetPollInterval(d time.Duration) {
	if d > 0 {
		m.pollInterval.Store(int64(d))
	}
}

// PollInterval returns the current Receive retry interval.
func (m *Mailbox) PollInterval() time.Duration {
	return time.Duration(m.pollInterval.Load())
}

// Send routes msg by kind. Requests are appended to the queue and never
// block beyond lock acquisition. Replies block, retrying every SendBackoff,
// until the reply slot is free; there is no timeout, so an addressee that
// never polls stalls the caller indefinitely.
//
// A sender id of zero or below (SentinelID included) is rejected with
// ErrInvalidID, and a kind outside the closed set with ErrUnknownKind. Both
// are caller defects: the message is dropped and logged.
func (m *Mailbox) Send(msg Message) error {
	if msg.SenderID <= 0 {
		m.logger.Error("invalid sender id, dropping",
			"kind", msg.Kind.String(),
			"sender_id", msg.SenderID)
		return fmt.Errorf("%w: %d", ErrInvalidID, msg.SenderID)
	}
	switch {
	case msg.Kind.IsRequest():
		m.enqueue(msg.Clone())
		return nil
	case msg.Kind.IsReply():
		reply := msg.Clone()
		for !m.tryPublish(reply) {
			m.sendRetries.Add(1)
			time.Sleep(m.SendBackoff())
		}
		return nil
	default:
		m.logger.Error("message kind unrecognized, dropping",
			"kind", uint8(msg.Kind),
			"sender_id", msg.SenderID)
		return fmt.Errorf("%w: %d from sender %d", ErrUnknownKind, msg.Kind, msg.SenderID)
	}
}

func (m *Mailbox) enqueue(msg Message) {
	m.queueMu.Lock()
	m.queue = append(m.queue, msg)
	m.requestsQueued.Add(1)
	m.queueMu.Unlock()

	m.notEmpty.Signal()
}

// tryPublish claims the reply slot if it is empty.
func (m *Mailbox) tryPublish(msg Message) bool {
	m.slotMu.Lock()
	defer m.slotMu.Unlock()

	if !m.slot.Empty() {
		return false
	}
	m.slot = msg
	m.repliesPublished.Add(1)
	return true
}

// Pop blocks until the request queue is non-empty, then removes and returns
// its front element. It never returns an empty message.
func (m *Mailbox) Pop() Message {
	m.queueMu.Lock()
	for len(m.queue) == 0 {
		m.notEmpty.Wait()
	}

	msg := m.queue[0]
	m.queue[0] = Message{}
	m.queue = m.queue[1:]
	m.requestsPopped.Add(1)
	m.queueMu.Unlock()

	return msg
}

// Receive is a non-blocking read of the reply addressed to destID. When the
// slot is empty or holds someone else's reply it returns a message carrying
// SentinelID and leaves the slot untouched; the caller is expected to retry.
//
// The address check runs under the shared lock so that the many Requesters
// polling for other ids never queue behind each other. Only the addressee
// takes the exclusive lock, after releasing the shared one, and re-checks
// the slot before clearing it.
func (m *Mailbox) Receive(destID int) Message {
	if destID == SentinelID || !m.addressedTo(destID) {
		m.receiveMisses.Add(1)
		return emptyMessage()
	}

	m.slotMu.Lock()
	if m.slot.SenderID != destID {
		m.slotMu.Unlock()
		m.receiveMisses.Add(1)
		return emptyMessage()
	}
	msg := m.slot
	m.slot = emptyMessage()
	m.repliesDelivered.Add(1)
	m.slotMu.Unlock()

	return msg
}

func (m *Mailbox) addressedTo(destID int) bool {
	m.slotMu.RLock()
	defer m.slotMu.RUnlock()
	return m.slot.SenderID == destID
}

// Len returns the number of requests waiting in the queue.
func (m *Mailbox) Len() int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return len(m.queue)
}

// Occupied reports whether the reply slot holds an unclaimed reply.
func (m *Mailbox) Occupied() bool {
	m.slotMu.RLock()
	defer m.slotMu.RUnlock()
	return !m.slot.Empty()
}

// Stats returns a snapshot of the Mailbox counters. The queue length and slot
// occupancy are sampled one after the other, never under both locks.
func (m *Mailbox) Stats() MailboxStats {
	return MailboxStats{
		RequestsQueued:   m.requestsQueued.Load(),
		RequestsPopped:   m.requestsPopped.Load(),
		RepliesPublished: m.repliesPublished.Load(),
		RepliesDelivered: m.repliesDelivered.Load(),
		SendRetries:      m.sendRetries.Load(),
		ReceiveMisses:    m.receiveMisses.Load(),
		QueueLength:      m.Len(),
		SlotOccupied:     m.Occupied(),
	}
}

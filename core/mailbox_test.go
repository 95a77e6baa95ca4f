package core

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/najoast/handshake/logging"
)

// fastMailbox returns a Mailbox with short backoffs so tests stay quick.
func fastMailbox(opts ...MailboxOption) *Mailbox {
	opts = append([]MailboxOption{WithSendBackoff(time.Millisecond), WithPollInterval(time.Millisecond)}, opts...)
	return NewMailbox(opts...)
}

func TestNewMailbox(t *testing.T) {
	mb := NewMailbox()

	if mb.SendBackoff() != DefaultSendBackoff {
		t.Errorf("SendBackoff = %v, want %v", mb.SendBackoff(), DefaultSendBackoff)
	}
	if mb.PollInterval() != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", mb.PollInterval(), DefaultPollInterval)
	}
	if mb.Occupied() {
		t.Error("New mailbox reply slot should be empty")
	}
	if mb.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", mb.Len())
	}
}

func TestMailboxSetBackoff(t *testing.T) {
	mb := NewMailbox()

	mb.SetSendBackoff(5 * time.Millisecond)
	mb.SetPollInterval(7 * time.Millisecond)
	if mb.SendBackoff() != 5*time.Millisecond {
		t.Errorf("SendBackoff = %v, want 5ms", mb.SendBackoff())
	}
	if mb.PollInterval() != 7*time.Millisecond {
		t.Errorf("PollInterval = %v, want 7ms", mb.PollInterval())
	}

	// Zero and negative values should be ignored
	mb.SetSendBackoff(0)
	mb.SetPollInterval(-time.Second)
	if mb.SendBackoff() != 5*time.Millisecond {
		t.Errorf("SendBackoff changed on zero, got %v", mb.SendBackoff())
	}
	if mb.PollInterval() != 7*time.Millisecond {
		t.Errorf("PollInterval changed on negative, got %v", mb.PollInterval())
	}
}

func TestMailboxPopFIFO(t *testing.T) {
	mb := fastMailbox()

	for id := 1; id <= 3; id++ {
		if err := mb.Send(Message{SenderID: id, Kind: KindLogin}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if mb.Len() != 3 {
		t.Fatalf("Expected 3 queued requests, got %d", mb.Len())
	}

	for want := 1; want <= 3; want++ {
		if got := mb.Pop(); got.SenderID != want {
			t.Errorf("Expected sender %d, got %d", want, got.SenderID)
		}
	}
}

func TestMailboxPopBlocksUntilSend(t *testing.T) {
	mb := fastMailbox()

	popped := make(chan Message, 1)
	go func() {
		popped <- mb.Pop()
	}()

	select {
	case msg := <-popped:
		t.Fatalf("Pop returned %v on an empty queue", msg)
	case <-time.After(50 * time.Millisecond):
	}

	if err := mb.Send(Message{SenderID: 9, Kind: KindLogout}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case msg := <-popped:
		if msg.SenderID != 9 || msg.Kind != KindLogout {
			t.Errorf("Expected logout from 9, got %v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop was not woken by Send")
	}
}

func TestMailboxReceiveAddressed(t *testing.T) {
	mb := fastMailbox()

	if err := mb.Send(Message{SenderID: 7, Kind: KindLoginAck}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Someone else's reply is not available and stays in the slot
	if got := mb.Receive(8); !got.Empty() {
		t.Errorf("Receive(8) = %v, want sentinel", got)
	}
	if !mb.Occupied() {
		t.Fatal("Receive by wrong addressee cleared the slot")
	}

	got := mb.Receive(7)
	if got.SenderID != 7 || got.Kind != KindLoginAck {
		t.Errorf("Receive(7) = %v, want login_ack from 7", got)
	}
	if mb.Occupied() {
		t.Error("Slot should be empty after delivery")
	}

	// No double delivery
	if again := mb.Receive(7); !again.Empty() {
		t.Errorf("Second Receive(7) = %v, want sentinel", again)
	}
}

func TestMailboxReceiveEmptySlot(t *testing.T) {
	mb := fastMailbox()

	if got := mb.Receive(1); got.SenderID != SentinelID {
		t.Errorf("Receive on empty slot = %d, want sentinel", got.SenderID)
	}
	if got := mb.Receive(SentinelID); !got.Empty() {
		t.Errorf("Receive(SentinelID) = %v, want sentinel", got)
	}
	if mb.Stats().ReceiveMisses != 2 {
		t.Errorf("Expected 2 receive misses, got %d", mb.Stats().ReceiveMisses)
	}
}

func TestMailboxReplySendBlocksWhileOccupied(t *testing.T) {
	mb := fastMailbox()

	if err := mb.Send(Message{SenderID: 1, Kind: KindLoginAck}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- mb.Send(Message{SenderID: 2, Kind: KindLogoutAck})
	}()

	select {
	case <-done:
		t.Fatal("Reply Send returned while the slot was occupied")
	case <-time.After(30 * time.Millisecond):
	}

	if got := mb.Receive(1); got.SenderID != 1 {
		t.Fatalf("Receive(1) = %v", got)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Reply Send did not complete after the slot was freed")
	}

	if got := mb.Receive(2); got.Kind != KindLogoutAck {
		t.Errorf("Receive(2) = %v, want logout_ack", got)
	}

	stats := mb.Stats()
	if stats.SendRetries == 0 {
		t.Error("Expected at least one send retry")
	}
	if stats.RepliesPublished != 2 || stats.RepliesDelivered != 2 {
		t.Errorf("Expected 2 published and delivered, got %d and %d",
			stats.RepliesPublished, stats.RepliesDelivered)
	}
}

func TestMailboxUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	mb := fastMailbox(WithMailboxLogger(logging.NewWithWriter(&buf, logging.LevelDebug, logging.FormatJSON)))

	for _, kind := range []MessageKind{0, 99} {
		err := mb.Send(Message{SenderID: 3, Kind: kind})
		if !errors.Is(err, ErrUnknownKind) {
			t.Errorf("Send(kind %d) error = %v, want ErrUnknownKind", kind, err)
		}
	}

	if mb.Len() != 0 || mb.Occupied() {
		t.Error("Unknown kinds should be dropped")
	}
	if !strings.Contains(buf.String(), "message kind unrecognized") {
		t.Errorf("Expected misuse to be logged, got %q", buf.String())
	}
}

func TestMailboxSentinelSender(t *testing.T) {
	var buf bytes.Buffer
	mb := fastMailbox(WithMailboxLogger(logging.NewWithWriter(&buf, logging.LevelDebug, logging.FormatJSON)))

	for _, id := range []int{SentinelID, 0} {
		for _, kind := range []MessageKind{KindLoginAck, KindLogout} {
			err := mb.Send(Message{SenderID: id, Kind: kind})
			if !errors.Is(err, ErrInvalidID) {
				t.Errorf("Send(%d, %s) error = %v, want ErrInvalidID", id, kind, err)
			}
		}
	}

	stats := mb.Stats()
	if stats.RepliesPublished != 0 || stats.RequestsQueued != 0 {
		t.Errorf("Expected nothing routed, got %+v", stats)
	}
	if mb.Len() != 0 || mb.Occupied() {
		t.Error("Messages from an invalid sender should be dropped")
	}
	if !strings.Contains(buf.String(), "invalid sender id") {
		t.Errorf("Expected misuse to be logged, got %q", buf.String())
	}

	// A sentinel logout must not count toward the responder's threshold.
	responder := NewResponder(1, mb)
	done := runAsync(responder.Run)

	if err := mb.Send(Message{SenderID: SentinelID, Kind: KindLogout}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("Send(sentinel logout) error = %v, want ErrInvalidID", err)
	}
	if err := mb.Send(Message{SenderID: 1, Kind: KindLogin}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	awaitReply(t, mb, 1)

	if responder.State() != ResponderRunning {
		t.Errorf("Expected responder running, got %s", responder.State())
	}
	if responder.LogoutsRemaining() != 1 {
		t.Errorf("Expected 1 logout remaining, got %d", responder.LogoutsRemaining())
	}

	if err := mb.Send(Message{SenderID: 1, Kind: KindLogout}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	awaitReply(t, mb, 1)
	waitDone(t, done, "responder")
}

func TestMailboxSendCopiesParams(t *testing.T) {
	mb := fastMailbox()

	params := []Param{{Key: "user", Value: "carol"}}
	if err := mb.Send(Message{SenderID: 5, Kind: KindCredentials, Params: params}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	params[0].Value = "changed"

	got := mb.Pop()
	if v, _ := got.Param("user"); v != "carol" {
		t.Errorf("Queued message aliased caller params: got %q", v)
	}
}

func TestMailboxConcurrentProducers(t *testing.T) {
	mb := fastMailbox()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 1; p <= producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for seq := 0; seq < perProducer; seq++ {
				_ = mb.Send(Message{
					SenderID: id,
					Kind:     KindLogin,
					Params:   []Param{{Key: "seq", Value: strconv.Itoa(seq)}},
				})
			}
		}(p)
	}

	last := make(map[int]int)
	for i := 0; i < producers*perProducer; i++ {
		msg := mb.Pop()
		v, _ := msg.Param("seq")
		seq, err := strconv.Atoi(v)
		if err != nil {
			t.Fatalf("Bad seq param %q", v)
		}
		if prev, ok := last[msg.SenderID]; ok && seq <= prev {
			t.Fatalf("Sender %d out of order: %d after %d", msg.SenderID, seq, prev)
		}
		last[msg.SenderID] = seq
	}
	wg.Wait()

	stats := mb.Stats()
	if stats.RequestsQueued != producers*perProducer || stats.RequestsPopped != producers*perProducer {
		t.Errorf("Expected %d queued and popped, got %d and %d",
			producers*perProducer, stats.RequestsQueued, stats.RequestsPopped)
	}
	if stats.QueueLength != 0 {
		t.Errorf("Expected empty queue, got %d", stats.QueueLength)
	}
}

func TestMailboxAddressedDeliveryUnderContention(t *testing.T) {
	mb := fastMailbox()

	const clients = 6

	var received sync.Map
	var wg sync.WaitGroup
	for id := 1; id <= clients; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				msg := mb.Receive(id)
				if msg.SenderID == id {
					received.Store(id, msg)
					return
				}
				if !msg.Empty() {
					t.Errorf("Receive(%d) returned foreign reply %v", id, msg)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(id)
	}

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for id := clients; id >= 1; id-- {
			_ = mb.Send(Message{SenderID: id, Kind: KindCredentialsAck})
		}
	}()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		<-sent
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Replies were not delivered within timeout")
	}

	for id := 1; id <= clients; id++ {
		v, ok := received.Load(id)
		if !ok {
			t.Errorf("Client %d never received its reply", id)
			continue
		}
		if v.(Message).Kind != KindCredentialsAck {
			t.Errorf("Client %d got %v", id, v)
		}
	}

	stats := mb.Stats()
	if stats.RepliesDelivered != clients || stats.SlotOccupied {
		t.Errorf("Expected %d deliveries and an empty slot, got %d (occupied=%v)",
			clients, stats.RepliesDelivered, stats.SlotOccupied)
	}
}

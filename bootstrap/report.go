package bootstrap

import (
	"fmt"
	"time"

	"github.com/najoast/handshake/core"
)

// Report summarizes a finished simulation run
type Report struct {
	// Wall-clock time from first spawn to last join
	Duration time.Duration `json:"duration"`

	// Logout replies the responder waited for
	LogoutThreshold int `json:"logout_threshold"`

	// Replies the responder sent
	RepliesSent uint64 `json:"replies_sent"`

	// Final responder state
	ResponderState string `json:"responder_state"`

	// Mailbox counters at the end of the run
	Mailbox core.MailboxStats `json:"mailbox"`

	// Per-requester outcome, ordered by id
	Requesters []RequesterReport `json:"requesters"`
}

// RequesterReport describes how far one requester got
type RequesterReport struct {
	ID    int      `json:"id"`
	Name  string   `json:"name"`
	State string   `json:"state"`
	Acks  []string `json:"acks"`
}

// Completed returns how many requesters reached the done state
func (r *Report) Completed() int {
	n := 0
	for _, req := range r.Requesters {
		if req.State == core.StateDone.String() {
			n++
		}
	}
	return n
}

// Summary renders a one-line description of the run
func (r *Report) Summary() string {
	return fmt.Sprintf("%d/%d requesters done, %d replies sent, %d send retries, %d receive misses in %s",
		r.Completed(), len(r.Requesters), r.RepliesSent,
		r.Mailbox.SendRetries, r.Mailbox.ReceiveMisses, r.Duration.Round(time.Millisecond))
}

func requesterReport(req *core.Requester) RequesterReport {
	acks := req.Acks()
	names := make([]string, len(acks))
	for i, ack := range acks {
		names[i] = ack.Kind.String()
	}
	return RequesterReport{
		ID:    req.ID(),
		Name:  req.Name(),
		State: req.State().String(),
		Acks:  names,
	}
}

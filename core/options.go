package core

import (
	"time"

	"github.com/najoast/handshake/logging"
)

// MailboxOption configures a Mailbox.
type MailboxOption func(*Mailbox)

// WithMailboxLogger attaches a logger used to report protocol misuse.
func WithMailboxLogger(logger *logging.Logger) MailboxOption {
	return func(m *Mailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSendBackoff sets the pause between attempts to claim an occupied reply
// slot. Zero or negative values are ignored.
func WithSendBackoff(d time.Duration) MailboxOption {
	return func(m *Mailbox) {
		m.SetSendBackoff(d)
	}
}

// WithPollInterval sets the pause Requesters take between unsuccessful
// Receive calls. Zero or negative values are ignored.
func WithPollInterval(d time.Duration) MailboxOption {
	return func(m *Mailbox) {
		m.SetPollInterval(d)
	}
}

// Option configures a Responder or Requester.
type Option func(*partyOptions)

type partyOptions struct {
	logger *logging.Logger
}

// WithLogger attaches a logger to a Responder or Requester.
func WithLogger(logger *logging.Logger) Option {
	return func(o *partyOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) partyOptions {
	o := partyOptions{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

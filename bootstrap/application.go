// Package bootstrap wires the shared mailbox, the responder and the
// requesters together and runs them to completion.
package bootstrap

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/najoast/handshake/config"
	"github.com/najoast/handshake/core"
	"github.com/najoast/handshake/logging"
)

// Application owns one simulation: a Mailbox shared by a single Responder
// and LogoutThreshold Requesters with ids 1..N.
type Application struct {
	config *config.Config
	logger *logging.Logger

	mailbox   *core.Mailbox
	responder *core.Responder
	registry  *core.Registry

	// mutex protects running and ran
	mutex   sync.Mutex
	running bool
	ran     bool
}

// NewApplication validates cfg and builds every party. Nothing runs until Run.
func NewApplication(cfg *config.Config, logger *logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	mailbox := core.NewMailbox(
		core.WithSendBackoff(cfg.Mailbox.SendBackoff),
		core.WithPollInterval(cfg.Mailbox.PollInterval),
		core.WithMailboxLogger(logger.WithComponent("mailbox")),
	)

	app := &Application{
		config:    cfg,
		logger:    logger.WithComponent("application"),
		mailbox:   mailbox,
		responder: core.NewResponder(cfg.Simulation.LogoutThreshold, mailbox, core.WithLogger(logger)),
		registry:  core.NewRegistry(),
	}

	for i := 0; i < cfg.Simulation.LogoutThreshold; i++ {
		id := app.registry.NextID()
		req := core.NewRequester(id, cfg.RequesterName(id), mailbox, core.WithLogger(logger))
		if err := app.registry.Register(req); err != nil {
			return nil, fmt.Errorf("failed to register requester %d: %w", id, err)
		}
	}

	app.logger.Debug("parties built",
		"environment", cfg.App.Environment.String(),
		"requesters", app.registry.Len())

	return app, nil
}

// Run starts the responder and every requester on their own goroutines and
// waits for all of them. It returns once the responder has sent its last
// logout reply and every requester has seen its logout ack.
//
// There is no cancellation. A requester that fails or panics before sending
// its logout leaves the responder short of its threshold, and Run blocks
// forever. Errors and recovered panics are only reported when every party
// still runs to completion.
func (app *Application) Run() (*Report, error) {
	app.mutex.Lock()
	if app.running || app.ran {
		app.mutex.Unlock()
		return nil, fmt.Errorf("application has already been run")
	}
	app.running = true
	app.mutex.Unlock()

	defer func() {
		app.mutex.Lock()
		app.running = false
		app.ran = true
		app.mutex.Unlock()
	}()

	requesters := app.registry.List()
	app.logger.Info("simulation starting",
		"logout_threshold", app.config.Simulation.LogoutThreshold,
		"requesters", len(requesters),
		"send_backoff", app.mailbox.SendBackoff().String(),
		"poll_interval", app.mailbox.PollInterval().String())

	var (
		errsMu sync.Mutex
		errs   []error
	)
	record := func(err error) {
		if err == nil {
			return
		}
		errsMu.Lock()
		errs = append(errs, err)
		errsMu.Unlock()
	}

	start := time.Now()

	var wg conc.WaitGroup
	wg.Go(func() {
		record(app.responder.Run())
	})
	for _, req := range requesters {
		req := req
		wg.Go(func() {
			record(req.Run())
		})
	}

	if recovered := wg.WaitAndRecover(); recovered != nil {
		record(fmt.Errorf("party panicked: %w", recovered.AsError()))
	}

	report := app.report(time.Since(start), requesters)
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("simulation failed", "error", err)
		return report, err
	}

	app.logger.Info("simulation finished", "summary", report.Summary())
	return report, nil
}

// ApplyConfig retunes the live mailbox from a reloaded configuration. Only
// the backoff intervals can change while a run is in progress.
func (app *Application) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	app.mailbox.SetSendBackoff(cfg.Mailbox.SendBackoff)
	app.mailbox.SetPollInterval(cfg.Mailbox.PollInterval)
	app.logger.Info("mailbox retuned",
		"send_backoff", app.mailbox.SendBackoff().String(),
		"poll_interval", app.mailbox.PollInterval().String())
}

// Mailbox returns the shared mailbox
func (app *Application) Mailbox() *core.Mailbox {
	return app.mailbox
}

// Requesters returns the requesters in id order
func (app *Application) Requesters() []*core.Requester {
	return app.registry.List()
}

func (app *Application) report(elapsed time.Duration, requesters []*core.Requester) *Report {
	r := &Report{
		Duration:        elapsed,
		LogoutThreshold: app.config.Simulation.LogoutThreshold,
		RepliesSent:     app.responder.Handled(),
		ResponderState:  app.responder.State().String(),
		Mailbox:         app.mailbox.Stats(),
		Requesters:      make([]RequesterReport, 0, len(requesters)),
	}
	for _, req := range requesters {
		r.Requesters = append(r.Requesters, requesterReport(req))
	}
	return r
}

// Package nurturemesh provides a high-level façade over the engine
// orchestrator and its service abstractions (lead store, scheduler,
// template index, agent directory, personalization & logging) for
// building automated lead-nurturing systems. Most applications interact
// with this package by:
//  1. Creating a NurtureMesh via New() (optionally overriding default in-memory services)
//  2. Publishing message templates
//  3. Feeding leads through Nurture and draining due actions with Tick or Run
//
// The façade delegates orchestration to engine.Orchestrator while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// durable lead store, a real embedder and a structured logger.
package nurturemesh

import (
	"context"
	"time"

	"github.com/hupe1980/nurturemesh/core"
	"github.com/hupe1980/nurturemesh/engine"
	"github.com/hupe1980/nurturemesh/logging"
	"github.com/hupe1980/nurturemesh/nurture"
)

// Options configures the NurtureMesh instance.
type Options struct {
	// EngineConfig tunes concurrency and timeouts of the orchestrator.
	EngineConfig engine.Config

	// Policy tunes the lifecycle state machine (grace period, attempt
	// ceiling, backoff curve).
	Policy nurture.Policy

	// Services (default to in-memory implementations if not provided)
	LeadStore     core.LeadStore
	Scheduler     core.Scheduler
	TemplateIndex core.TemplateIndex
	Directory     core.DirectoryClient
	Deliverer     core.Deliverer
	Personalizer  core.Personalizer

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// NurtureMesh is the high-level façade aggregating the orchestrator and
// its services.
type NurtureMesh struct {
	opts   Options
	engine *engine.Orchestrator
}

// New creates a new NurtureMesh instance with optional overrides. Any
// unset service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *NurtureMesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Policy:       nurture.DefaultPolicy,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	o := engine.New(func(eo *engine.Options) {
		eo.Config = opts.EngineConfig
		eo.Policy = opts.Policy
		eo.LeadStore = opts.LeadStore
		eo.Scheduler = opts.Scheduler
		eo.TemplateIndex = opts.TemplateIndex
		eo.Directory = opts.Directory
		eo.Deliverer = opts.Deliverer
		eo.Personalizer = opts.Personalizer
		eo.Logger = opts.Logger
	})

	return &NurtureMesh{opts: opts, engine: o}
}

// Nurture runs intake for a batch of leads: each lead is upserted, run
// through the state machine and, where the decision calls for one, gets
// its next action scheduled. Re-submitting a lead is idempotent.
func (m *NurtureMesh) Nurture(ctx context.Context, leads []core.Lead) (engine.NurtureResult, error) {
	return m.engine.Nurture(ctx, leads)
}

// Tick drains the currently due actions once and reports the aggregate
// outcome.
func (m *NurtureMesh) Tick(ctx context.Context) (engine.TickResult, error) {
	return m.engine.Tick(ctx)
}

// Run ticks at the given interval until the context is cancelled. Tick
// errors are logged and do not stop the loop.
func (m *NurtureMesh) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.engine.Tick(ctx); err != nil {
			m.opts.Logger.Error("tick failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PublishTemplate adds a message template to the semantic index.
func (m *NurtureMesh) PublishTemplate(ctx context.Context, tmpl core.Template) error {
	return m.engine.PublishTemplate(ctx, tmpl)
}

// PublishTemplates adds a batch of templates, stopping at the first error.
func (m *NurtureMesh) PublishTemplates(ctx context.Context, tmpls []core.Template) error {
	for _, tmpl := range tmpls {
		if err := m.engine.PublishTemplate(ctx, tmpl); err != nil {
			return err
		}
	}
	return nil
}

// RecordSignal appends an engagement signal (open, click, reply, ...) to
// a lead's history; it influences the next decision for that lead.
func (m *NurtureMesh) RecordSignal(ctx context.Context, leadID string, kind core.HistoryEventKind, details map[string]string) error {
	return m.engine.RecordSignal(ctx, leadID, kind, details)
}

// CloseLead ends a lead's lifecycle, cancelling queued work and sending a
// final close-out message.
func (m *NurtureMesh) CloseLead(ctx context.Context, leadID string) error {
	return m.engine.CloseLead(ctx, leadID)
}

// Lead returns the current record for a lead.
func (m *NurtureMesh) Lead(ctx context.Context, id string) (core.Lead, error) {
	return m.engine.Lead(ctx, id)
}

// RegisterCapability advertises a capability of this mesh to the agent
// directory.
func (m *NurtureMesh) RegisterCapability(ctx context.Context, reg core.Registration) (core.CapabilityRecord, error) {
	return m.engine.RegisterCapability(ctx, reg)
}

// DiscoverAgents lists agents advertising the given capability.
func (m *NurtureMesh) DiscoverAgents(ctx context.Context, capability string) ([]core.CapabilityRecord, error) {
	return m.engine.DiscoverAgents(ctx, capability)
}

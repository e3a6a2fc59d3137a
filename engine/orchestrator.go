package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/nurturemesh/core"
	"github.com/hupe1980/nurturemesh/directory"
	"github.com/hupe1980/nurturemesh/leadstore"
	"github.com/hupe1980/nurturemesh/logging"
	"github.com/hupe1980/nurturemesh/notify"
	"github.com/hupe1980/nurturemesh/nurture"
	"github.com/hupe1980/nurturemesh/personalize"
	"github.com/hupe1980/nurturemesh/schedule"
	"github.com/hupe1980/nurturemesh/templateindex"
)

// Config defines tuning parameters for the orchestrator's operational
// behavior.
type Config struct {
	// MaxConcurrentDeliveries bounds the workers draining one tick.
	MaxConcurrentDeliveries int

	// DeliveryTimeout bounds each transport call.
	DeliveryTimeout time.Duration

	// IOTimeout bounds each store, index and directory call. A timeout is
	// a retryable failure, never a fatal one.
	IOTimeout time.Duration
}

// DefaultConfig provides conservative defaults safe for most deployments.
var DefaultConfig = Config{
	MaxConcurrentDeliveries: 4,
	DeliveryTimeout:         30 * time.Second,
	IOTimeout:               5 * time.Second,
}

// Options configures an Orchestrator using the functional options
// pattern. Every service has an in-memory default so the zero
// configuration works for development and tests; production deployments
// supply durable implementations.
type Options struct {
	Config Config

	// Policy tunes the state machine's transition table.
	Policy nurture.Policy

	LeadStore     core.LeadStore
	Scheduler     core.Scheduler
	TemplateIndex core.TemplateIndex
	Directory     core.DirectoryClient
	Deliverer     core.Deliverer
	Personalizer  core.Personalizer

	// Logger defaults to NoOp if nil.
	Logger logging.Logger

	// Now supplies the clock; overridden in tests.
	Now func() time.Time
}

// Orchestrator composes the nurturing services. All fields are immutable
// after construction; shared mutable state lives only in the scheduler
// and the lead store.
type Orchestrator struct {
	config       Config
	policy       nurture.Policy
	store        core.LeadStore
	scheduler    core.Scheduler
	index        core.TemplateIndex
	directory    core.DirectoryClient
	deliverer    core.Deliverer
	personalizer core.Personalizer
	logger       logging.Logger
	now          func() time.Time
}

// New creates an Orchestrator with in-memory defaults for any unset
// service.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Config: DefaultConfig,
		Policy: nurture.DefaultPolicy,
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.LeadStore == nil {
		opts.LeadStore = leadstore.NewInMemoryStore()
	}
	if opts.Scheduler == nil {
		policy := opts.Policy
		opts.Scheduler = schedule.NewInMemoryScheduler(func(o *schedule.Options) {
			o.Backoff = policy.Backoff
			o.RetryCeiling = policy.MaxAttempts
		})
	}
	if opts.TemplateIndex == nil {
		opts.TemplateIndex = templateindex.NewInMemoryIndex()
	}
	if opts.Directory == nil {
		opts.Directory = directory.NewInMemoryDirectory()
	}
	if opts.Deliverer == nil {
		opts.Deliverer = notify.NewLogDeliverer(opts.Logger)
	}
	if opts.Personalizer == nil {
		opts.Personalizer = personalize.NewVariablePersonalizer()
	}
	return &Orchestrator{
		config:       opts.Config,
		policy:       opts.Policy,
		store:        opts.LeadStore,
		scheduler:    opts.Scheduler,
		index:        opts.TemplateIndex,
		directory:    opts.Directory,
		deliverer:    opts.Deliverer,
		personalizer: opts.Personalizer,
		logger:       opts.Logger,
		now:          opts.Now,
	}
}

// NurtureResult aggregates the outcome of one intake batch.
type NurtureResult struct {
	Processed int               `json:"processed"`
	Scheduled int               `json:"scheduled"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Nurture upserts each input lead, runs the state machine and schedules
// the resulting action. All three steps per lead execute inside
// LeadStore.Mutate, so a crash mid-batch leaves each lead either fully
// advanced or fully unchanged. One lead's failure never aborts the batch.
func (o *Orchestrator) Nurture(ctx context.Context, leads []core.Lead) (NurtureResult, error) {
	res := NurtureResult{Errors: map[string]string{}}
	for _, intake := range leads {
		if intake.ID == "" {
			intake.ID = core.NewID()
		}
		res.Processed++

		scheduled := false
		_, err := o.store.Mutate(ctx, intake.ID, func(cur *core.Lead) error {
			mergeIntake(cur, intake)
			var err error
			scheduled, err = o.decideAndSchedule(ctx, cur)
			return err
		})
		switch {
		case err != nil:
			res.Failed++
			res.Errors[intake.ID] = err.Error()
			o.logger.Warn("lead intake failed lead_id=%s: %v", intake.ID, err)
		case scheduled:
			res.Scheduled++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// decideAndSchedule runs the pure decision against the current record and
// enqueues the resulting action. Must be called under the lead's Mutate
// lock. Returns whether a new action was scheduled. ErrDuplicatePending
// is absorbed: re-intake of an already-queued lead is an idempotent no-op.
func (o *Orchestrator) decideAndSchedule(ctx context.Context, cur *core.Lead) (bool, error) {
	now := o.now()
	d := nurture.Decide(*cur, now, o.policy)
	if cur.Stage.CanAdvanceTo(d.Stage) {
		cur.Stage = d.Stage
	}
	if !d.HasAction() {
		cur.NextActionDue = nil
		return false, nil
	}

	due := now.Add(d.Delay)
	_, err := o.scheduler.Schedule(ctx, core.ScheduledAction{
		LeadID: cur.ID,
		Kind:   d.Action,
		Due:    due,
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicatePending) {
			return false, nil
		}
		return false, fmt.Errorf("schedule %s for lead %s: %w", d.Action, cur.ID, err)
	}
	cur.NextActionDue = &due
	return true, nil
}

// TickResult aggregates the outcome of draining one batch of due actions.
type TickResult struct {
	Due           int      `json:"due"`
	Delivered     int      `json:"delivered"`
	Deferred      int      `json:"deferred"`
	Retried       int      `json:"retried"`
	Failed        int      `json:"failed"`
	FailedActions []string `json:"failed_actions,omitempty"`
}

type actionResult int

const (
	resultDelivered actionResult = iota
	resultDeferred
	resultRetried
	resultFailed
)

// Tick pulls all due actions and processes each: resolve a template,
// personalize, hand off to the delivery transport and record the outcome.
// Per-action failures are absorbed into the aggregate result. Safe to run
// concurrently from multiple workers; the scheduler's leases prevent
// double delivery.
func (o *Orchestrator) Tick(ctx context.Context) (TickResult, error) {
	start := o.now()
	due, err := o.scheduler.Due(ctx, start)
	if err != nil {
		return TickResult{}, fmt.Errorf("drain due actions: %w", err)
	}

	res := TickResult{Due: len(due)}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, o.config.MaxConcurrentDeliveries)
	for _, action := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(a core.ScheduledAction) {
			defer wg.Done()
			defer func() { <-sem }()
			r, id := o.process(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			switch r {
			case resultDelivered:
				res.Delivered++
			case resultDeferred:
				res.Deferred++
			case resultRetried:
				res.Retried++
			case resultFailed:
				res.Failed++
				res.FailedActions = append(res.FailedActions, id)
			}
		}(action)
	}
	wg.Wait()

	o.logger.Info("tick completed due=%d delivered=%d deferred=%d retried=%d failed=%d duration=%s",
		res.Due, res.Delivered, res.Deferred, res.Retried, res.Failed, time.Since(start))
	return res, nil
}

// process handles one leased action end to end and settles it with the
// scheduler. It never returns an error: every failure path maps to a
// retry, a deferral or a permanent failure.
func (o *Orchestrator) process(ctx context.Context, a core.ScheduledAction) (actionResult, string) {
	lead, err := o.getLead(ctx, a.LeadID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return o.fail(ctx, a, "lead not found")
	case err != nil:
		return o.retry(ctx, a, fmt.Sprintf("load lead: %v", err))
	}

	if lead.Stage.IsTerminal() && a.Kind != core.ActionCloseOut {
		// The lead finished its lifecycle while this action waited.
		return o.fail(ctx, a, "lead reached terminal stage")
	}

	ioCtx, cancel := context.WithTimeout(ctx, o.config.IOTimeout)
	tmpl, err := o.index.BestMatch(ioCtx, buildQuery(lead, a.Kind), lead.Stage)
	cancel()
	switch {
	case errors.Is(err, core.ErrNoMatch):
		// Non-fatal: defer the action, never drop the lead.
		o.logger.Warn("no template match, deferring action lead_id=%s action_id=%s", lead.ID, a.ID)
		if _, cerr := o.scheduler.Complete(ctx, a.ID, core.Outcome{Reason: "no matching template"}); cerr != nil {
			o.logger.Error("settle deferred action %s: %v", a.ID, cerr)
		}
		return resultDeferred, a.ID
	case err != nil:
		return o.retry(ctx, a, fmt.Sprintf("template lookup: %v", err))
	}

	subject, body, err := o.personalizer.Personalize(ctx, tmpl, lead)
	if err != nil {
		// Personalization is best effort; fall back to the raw template.
		o.logger.Warn("personalization failed for lead %s, using raw template: %v", lead.ID, err)
		subject, body = tmpl.Subject, tmpl.Body
	}

	delCtx, cancel := context.WithTimeout(ctx, o.config.DeliveryTimeout)
	start := o.now()
	err = o.deliverer.Deliver(delCtx, core.Delivery{
		Lead:     lead,
		Action:   a,
		Template: tmpl,
		Subject:  subject,
		Body:     body,
		Channel:  tmpl.Channel,
	})
	cancel()
	if err != nil {
		o.logger.Warn("delivery failed lead_id=%s action_id=%s duration=%s: %v", lead.ID, a.ID, time.Since(start), err)
		if !core.IsTransient(err) && !errors.Is(err, context.DeadlineExceeded) {
			return o.fail(ctx, a, fmt.Sprintf("delivery refused: %v", err))
		}
		return o.retry(ctx, a, fmt.Sprintf("delivery: %v", err))
	}

	if err := o.recordDelivery(ctx, lead.ID, a, tmpl); err != nil {
		// The message went out; keep the action settled even if history
		// lags behind. The next decision sees at worst a missing send and
		// schedules conservatively.
		o.logger.Error("record delivery outcome lead_id=%s action_id=%s: %v", lead.ID, a.ID, err)
	}
	if _, err := o.scheduler.Complete(ctx, a.ID, core.Outcome{Delivered: true}); err != nil {
		o.logger.Error("settle delivered action %s: %v", a.ID, err)
	}

	// Re-enter the state machine for the lead's next step.
	if _, err := o.store.Mutate(ctx, lead.ID, func(cur *core.Lead) error {
		_, err := o.decideAndSchedule(ctx, cur)
		return err
	}); err != nil {
		o.logger.Warn("advance after delivery lead_id=%s: %v", lead.ID, err)
	}
	return resultDelivered, a.ID
}

// retry settles the action as a failed attempt, letting the scheduler
// apply backoff or the permanent-failure ceiling.
func (o *Orchestrator) retry(ctx context.Context, a core.ScheduledAction, reason string) (actionResult, string) {
	settled, err := o.scheduler.Complete(ctx, a.ID, core.Outcome{Reason: reason})
	if err != nil {
		o.logger.Error("settle failed action %s: %v", a.ID, err)
		return resultRetried, a.ID
	}
	if settled.Status == core.ActionFailed {
		o.logger.Error("action %s permanently failed for lead %s after %d attempts: %s", a.ID, a.LeadID, settled.Attempt, reason)
		return resultFailed, a.ID
	}
	return resultRetried, a.ID
}

// fail settles the action as permanently failed, skipping the retry policy.
func (o *Orchestrator) fail(ctx context.Context, a core.ScheduledAction, reason string) (actionResult, string) {
	if _, err := o.scheduler.Complete(ctx, a.ID, core.Outcome{Reason: reason, Permanent: true}); err != nil {
		o.logger.Error("settle failed action %s: %v", a.ID, err)
	}
	o.logger.Error("action %s permanently failed for lead %s: %s", a.ID, a.LeadID, reason)
	return resultFailed, a.ID
}

func (o *Orchestrator) getLead(ctx context.Context, id string) (core.Lead, error) {
	ioCtx, cancel := context.WithTimeout(ctx, o.config.IOTimeout)
	defer cancel()
	return o.store.Get(ioCtx, id)
}

func (o *Orchestrator) recordDelivery(ctx context.Context, leadID string, a core.ScheduledAction, tmpl core.Template) error {
	ioCtx, cancel := context.WithTimeout(ctx, o.config.IOTimeout)
	defer cancel()
	_, err := o.store.AppendHistory(ioCtx, leadID, core.HistoryEvent{
		ID:        core.NewID(),
		Kind:      core.EventMessageSent,
		Action:    a.Kind,
		Outcome:   "delivered",
		Timestamp: o.now(),
		Details:   map[string]string{"template": tmpl.Name, "action_id": a.ID},
	})
	return err
}

// RecordSignal appends an engagement signal to the lead's history. The
// signal takes effect on the next decision.
func (o *Orchestrator) RecordSignal(ctx context.Context, leadID string, kind core.HistoryEventKind, details map[string]string) error {
	_, err := o.store.AppendHistory(ctx, leadID, core.HistoryEvent{
		ID:        core.NewID(),
		Kind:      kind,
		Timestamp: o.now(),
		Details:   details,
	})
	return err
}

// CloseLead moves the lead to the terminal closed stage, cancels its
// queued action and schedules a final close-out message.
func (o *Orchestrator) CloseLead(ctx context.Context, leadID string) error {
	_, err := o.store.Mutate(ctx, leadID, func(cur *core.Lead) error {
		if cur.Stage.IsTerminal() {
			return nil
		}
		cur.Stage = core.StageClosed

		if pending, ok, err := o.scheduler.PendingFor(ctx, leadID); err == nil && ok {
			if _, err := o.scheduler.Complete(ctx, pending.ID, core.Outcome{Reason: "superseded by close", Permanent: true}); err != nil {
				return fmt.Errorf("cancel pending action: %w", err)
			}
		} else if err != nil {
			return err
		}

		due := o.now()
		if _, err := o.scheduler.Schedule(ctx, core.ScheduledAction{
			LeadID: leadID,
			Kind:   core.ActionCloseOut,
			Due:    due,
		}); err != nil {
			return fmt.Errorf("schedule close-out: %w", err)
		}
		cur.NextActionDue = &due
		return nil
	})
	return err
}

// RegisterCapability advertises a capability of this mesh to the agent
// directory.
func (o *Orchestrator) RegisterCapability(ctx context.Context, reg core.Registration) (core.CapabilityRecord, error) {
	ioCtx, cancel := context.WithTimeout(ctx, o.config.IOTimeout)
	defer cancel()
	start := o.now()
	rec, err := o.directory.Register(ioCtx, reg)
	if err != nil {
		o.logger.Warn("capability registration %s failed after %s: %v", reg.Capability, time.Since(start), err)
	} else {
		o.logger.Info("capability %s registered in %s", reg.Capability, time.Since(start))
	}
	return rec, err
}

// DiscoverAgents queries the directory for advertisers of a capability.
func (o *Orchestrator) DiscoverAgents(ctx context.Context, capability string) ([]core.CapabilityRecord, error) {
	ioCtx, cancel := context.WithTimeout(ctx, o.config.IOTimeout)
	defer cancel()
	return o.directory.Discover(ioCtx, capability)
}

// PublishTemplate adds a template to the index.
func (o *Orchestrator) PublishTemplate(ctx context.Context, tmpl core.Template) error {
	ioCtx, cancel := context.WithTimeout(ctx, o.config.IOTimeout)
	defer cancel()
	return o.index.Publish(ioCtx, tmpl)
}

// Lead returns the current record for inspection.
func (o *Orchestrator) Lead(ctx context.Context, id string) (core.Lead, error) {
	return o.getLead(ctx, id)
}

// mergeIntake folds a (re-)intake record into the stored lead without
// regressing state: contact fields update when supplied, history entries
// merge by ID, the stage only moves forward.
func mergeIntake(cur *core.Lead, intake core.Lead) {
	if cur.Stage == "" {
		cur.Stage = core.StageNew
	}
	if intake.FirstName != "" {
		cur.FirstName = intake.FirstName
	}
	if intake.LastName != "" {
		cur.LastName = intake.LastName
	}
	if intake.Email != "" {
		cur.Email = intake.Email
	}
	if intake.Company != "" {
		cur.Company = intake.Company
	}
	if intake.JobTitle != "" {
		cur.JobTitle = intake.JobTitle
	}
	if intake.Industry != "" {
		cur.Industry = intake.Industry
	}
	if len(intake.PainPoints) > 0 {
		cur.PainPoints = append([]string(nil), intake.PainPoints...)
	}
	if len(intake.Tags) > 0 {
		cur.Tags = append([]string(nil), intake.Tags...)
	}
	if cur.Stage.CanAdvanceTo(intake.Stage) && intake.Stage != "" {
		cur.Stage = intake.Stage
	}

	seen := make(map[string]struct{}, len(cur.History))
	for _, ev := range cur.History {
		seen[ev.ID] = struct{}{}
	}
	for _, ev := range intake.History {
		if ev.ID == "" {
			ev.ID = core.NewID()
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		cur.History = append(cur.History, ev)
	}
}

// buildQuery composes the semantic query for template matching from the
// lead's profile and the action kind.
func buildQuery(lead core.Lead, kind core.ActionKind) string {
	parts := []string{string(kind), string(lead.Stage)}
	if lead.Industry != "" {
		parts = append(parts, lead.Industry)
	}
	if lead.JobTitle != "" {
		parts = append(parts, lead.JobTitle)
	}
	parts = append(parts, lead.PainPoints...)
	return strings.Join(parts, " ")
}

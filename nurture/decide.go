package nurture

import (
	"time"

	"github.com/hupe1980/nurturemesh/core"
)

// Policy tunes the transition table. Values are configurable defaults, not
// business constants; see DefaultPolicy.
type Policy struct {
	// GracePeriod is how long a contacted lead may stay silent before the
	// first follow-up is due.
	GracePeriod time.Duration

	// MaxAttempts is the outbound-message ceiling after which a lead with
	// no conversion signal moves to lost.
	MaxAttempts int

	// BackoffBase is the delay of the first retry-style follow-up.
	BackoffBase time.Duration

	// BackoffCap bounds the exponential follow-up spacing.
	BackoffCap time.Duration

	// BackoffFactor multiplies the delay per additional attempt.
	BackoffFactor float64
}

// DefaultPolicy mirrors a conservative outbound cadence: three days of
// grace, four touches total, follow-ups spaced from one day out to a week.
var DefaultPolicy = Policy{
	GracePeriod:   72 * time.Hour,
	MaxAttempts:   4,
	BackoffBase:   24 * time.Hour,
	BackoffCap:    7 * 24 * time.Hour,
	BackoffFactor: 2,
}

// Backoff returns the exponential, capped delay for the given attempt
// count. Attempt 0 maps to BackoffBase.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.BackoffBase)
	for i := 0; i < attempt; i++ {
		d *= p.BackoffFactor
		if d >= float64(p.BackoffCap) {
			return p.BackoffCap
		}
	}
	if d > float64(p.BackoffCap) {
		return p.BackoffCap
	}
	return time.Duration(d)
}

// Decision is the state machine's verdict for one lead.
type Decision struct {
	// Stage is the stage the lead should hold after this decision. It
	// never regresses from the input stage.
	Stage core.Stage

	// Action is the next communication action, or empty when the lead is
	// terminal or nothing is due.
	Action core.ActionKind

	// Delay is how far in the future the action is due.
	Delay time.Duration

	// Reason is a short operator-facing explanation.
	Reason string
}

// HasAction reports whether the decision emits a schedulable action.
func (d Decision) HasAction() bool { return d.Action != "" }

// Decide inspects only lead.Stage and lead.History; it performs no I/O
// and keeps no hidden state. A lead with an empty history and stage new
// is treated identically regardless of how it entered the system, which
// makes re-intake idempotent. When multiple signals exist the most
// recent timestamp wins (see Lead.LatestSignal).
func Decide(lead core.Lead, now time.Time, p Policy) Decision {
	if lead.Stage.IsTerminal() {
		return Decision{Stage: lead.Stage, Reason: "terminal stage"}
	}

	signal, hasSignal := lead.LatestSignal()
	if hasSignal && signal.Kind.IsConversionSignal() {
		return Decision{Stage: core.StageConverted, Reason: "conversion signal"}
	}

	switch lead.Stage {
	case core.StageNew, "":
		return Decision{
			Stage:  core.StageContacted,
			Action: core.ActionInitialContact,
			Reason: "first outreach",
		}
	case core.StageContacted:
		return decideContacted(lead, now, p, signal, hasSignal)
	case core.StageEngaged:
		return decideEngaged(lead, now, p, signal, hasSignal)
	case core.StageQualified:
		return decideQualified(lead, now, p)
	default:
		return Decision{Stage: lead.Stage, Reason: "unknown stage"}
	}
}

func decideContacted(lead core.Lead, now time.Time, p Policy, signal core.HistoryEvent, hasSignal bool) Decision {
	lastContact, contacted := lead.LastContactAt()

	// A positive signal since the last send promotes the lead and earns an
	// immediate, engagement-tailored follow-up.
	if hasSignal && (!contacted || signal.Timestamp.After(lastContact)) {
		stage := core.StageEngaged
		if signal.Kind == core.EventMeetingScheduled {
			stage = core.StageQualified
		}
		return Decision{
			Stage:  stage,
			Action: core.ActionFollowUp,
			Reason: "positive signal: " + string(signal.Kind),
		}
	}

	attempts := lead.ContactAttempts()
	if attempts >= p.MaxAttempts {
		return Decision{Stage: core.StageLost, Reason: "follow-up ceiling reached"}
	}

	// Silence: the next follow-up is due one grace period after the last
	// send, then spaced out exponentially per attempt already made.
	due := now
	if contacted {
		due = lastContact.Add(p.GracePeriod)
		if attempts > 1 {
			due = lastContact.Add(p.Backoff(attempts - 1))
		}
	}
	delay := due.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return Decision{
		Stage:  core.StageContacted,
		Action: core.ActionFollowUp,
		Delay:  delay,
		Reason: "no response yet",
	}
}

func decideEngaged(lead core.Lead, now time.Time, p Policy, signal core.HistoryEvent, hasSignal bool) Decision {
	if hasSignal && signal.Kind == core.EventMeetingScheduled {
		return Decision{
			Stage:  core.StageQualified,
			Action: core.ActionEscalation,
			Reason: "meeting scheduled",
		}
	}

	attempts := lead.ContactAttempts()
	if attempts >= p.MaxAttempts {
		return Decision{Stage: core.StageLost, Reason: "follow-up ceiling reached"}
	}

	lastContact, contacted := lead.LastContactAt()
	if hasSignal && (!contacted || signal.Timestamp.After(lastContact)) {
		// Respond promptly while the lead is warm.
		return Decision{
			Stage:  core.StageEngaged,
			Action: core.ActionFollowUp,
			Reason: "recent engagement",
		}
	}

	delay := time.Duration(0)
	if contacted {
		if d := lastContact.Add(p.Backoff(attempts - 1)).Sub(now); d > 0 {
			delay = d
		}
	}
	return Decision{
		Stage:  core.StageEngaged,
		Action: core.ActionFollowUp,
		Delay:  delay,
		Reason: "keep engagement warm",
	}
}

func decideQualified(lead core.Lead, now time.Time, p Policy) Decision {
	attempts := lead.ContactAttempts()
	if attempts >= p.MaxAttempts {
		return Decision{Stage: core.StageLost, Reason: "follow-up ceiling reached"}
	}
	delay := time.Duration(0)
	if lastContact, contacted := lead.LastContactAt(); contacted {
		if d := lastContact.Add(p.Backoff(attempts - 1)).Sub(now); d > 0 {
			delay = d
		}
	}
	return Decision{
		Stage:  core.StageQualified,
		Action: core.ActionEscalation,
		Delay:  delay,
		Reason: "hand off to sales",
	}
}

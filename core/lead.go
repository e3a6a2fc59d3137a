package core

import (
	"fmt"
	"time"
)

// Stage represents a lead's position in the nurturing lifecycle.
//
// Stages advance monotonically: new → contacted → engaged → qualified →
// (converted | lost). The terminal closed stage is reachable from any
// non-terminal stage. A stage never regresses; resetting a lead is an
// explicit operator action outside the orchestrator.
type Stage string

const (
	// StageNew marks a freshly ingested lead with no contact attempted yet.
	StageNew Stage = "new"
	// StageContacted marks a lead after the initial outreach was sent.
	StageContacted Stage = "contacted"
	// StageEngaged marks a lead that produced a positive response signal.
	StageEngaged Stage = "engaged"
	// StageQualified marks an engaged lead with a scheduled meeting.
	StageQualified Stage = "qualified"
	// StageConverted is terminal: the lead converted.
	StageConverted Stage = "converted"
	// StageLost is terminal: the lead exhausted the follow-up ceiling.
	StageLost Stage = "lost"
	// StageClosed is terminal: the lead was closed out explicitly.
	StageClosed Stage = "closed"
)

// stageRank orders the forward path; terminals share the top rank so a
// transition into any terminal is always an advance.
var stageRank = map[Stage]int{
	StageNew:       0,
	StageContacted: 1,
	StageEngaged:   2,
	StageQualified: 3,
	StageConverted: 4,
	StageLost:      4,
	StageClosed:    4,
}

// IsTerminal reports whether no further nurturing action applies.
func (s Stage) IsTerminal() bool {
	return s == StageConverted || s == StageLost || s == StageClosed
}

// CanAdvanceTo reports whether a transition from s to next respects the
// monotonic stage ordering. Transitions to the same stage are allowed.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return stageRank[next] > stageRank[s]
}

// HistoryEventKind classifies entries in a lead's history.
type HistoryEventKind string

const (
	// EventMessageSent records an outbound nurturing message.
	EventMessageSent HistoryEventKind = "message_sent"
	// EventEmailOpen records the lead opening a message.
	EventEmailOpen HistoryEventKind = "email_open"
	// EventEmailClick records the lead clicking a link.
	EventEmailClick HistoryEventKind = "email_click"
	// EventEmailReply records a reply from the lead.
	EventEmailReply HistoryEventKind = "email_reply"
	// EventWebsiteVisit records a tracked website visit.
	EventWebsiteVisit HistoryEventKind = "website_visit"
	// EventFormSubmission records a submitted form.
	EventFormSubmission HistoryEventKind = "form_submission"
	// EventMeetingScheduled records a booked meeting.
	EventMeetingScheduled HistoryEventKind = "meeting_scheduled"
	// EventConversion records an explicit conversion signal.
	EventConversion HistoryEventKind = "conversion"
	// EventNote records a free-form operator note.
	EventNote HistoryEventKind = "note"
)

// IsPositiveSignal reports whether the event kind counts as a positive
// response from the lead (drives the contacted → engaged transition).
func (k HistoryEventKind) IsPositiveSignal() bool {
	switch k {
	case EventEmailReply, EventEmailClick, EventFormSubmission, EventMeetingScheduled:
		return true
	default:
		return false
	}
}

// IsConversionSignal reports whether the event kind converts the lead.
func (k HistoryEventKind) IsConversionSignal() bool {
	return k == EventConversion
}

// HistoryEvent is one entry in a lead's ordered interaction history.
type HistoryEvent struct {
	ID        string            `json:"id"`
	Kind      HistoryEventKind  `json:"kind"`
	Action    ActionKind        `json:"action,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Lead is a normalized sales lead record. It is owned exclusively by the
// LeadStore; the orchestrator mutates it only through the store after a
// state machine decision or a delivery outcome. Version is bumped by the
// store on every write and serves optimistic-concurrency detection.
type Lead struct {
	ID            string         `json:"id"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	Email         string         `json:"email"`
	Company       string         `json:"company,omitempty"`
	JobTitle      string         `json:"job_title,omitempty"`
	Industry      string         `json:"industry,omitempty"`
	PainPoints    []string       `json:"pain_points,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Stage         Stage          `json:"stage"`
	History       []HistoryEvent `json:"history,omitempty"`
	NextActionDue *time.Time     `json:"next_action_due,omitempty"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// FullName returns the lead's display name.
func (l Lead) FullName() string {
	if l.FirstName == "" {
		return l.LastName
	}
	if l.LastName == "" {
		return l.FirstName
	}
	return fmt.Sprintf("%s %s", l.FirstName, l.LastName)
}

// Clone returns a deep copy so callers can never mutate store internals.
func (l Lead) Clone() Lead {
	cp := l
	if l.PainPoints != nil {
		cp.PainPoints = append([]string(nil), l.PainPoints...)
	}
	if l.Tags != nil {
		cp.Tags = append([]string(nil), l.Tags...)
	}
	if l.NextActionDue != nil {
		due := *l.NextActionDue
		cp.NextActionDue = &due
	}
	if l.History != nil {
		cp.History = make([]HistoryEvent, len(l.History))
		for i, ev := range l.History {
			cp.History[i] = ev
			if ev.Details != nil {
				cp.History[i].Details = make(map[string]string, len(ev.Details))
				for k, v := range ev.Details {
					cp.History[i].Details[k] = v
				}
			}
		}
	}
	return cp
}

// LastContactAt returns the timestamp of the most recent outbound message.
func (l Lead) LastContactAt() (time.Time, bool) {
	var latest time.Time
	found := false
	for _, ev := range l.History {
		if ev.Kind == EventMessageSent && ev.Timestamp.After(latest) {
			latest = ev.Timestamp
			found = true
		}
	}
	return latest, found
}

// ContactAttempts counts outbound messages recorded in history.
func (l Lead) ContactAttempts() int {
	n := 0
	for _, ev := range l.History {
		if ev.Kind == EventMessageSent {
			n++
		}
	}
	return n
}

// LatestSignal returns the most recent positive or conversion signal in
// history. When multiple signals exist the newest timestamp wins.
func (l Lead) LatestSignal() (HistoryEvent, bool) {
	var latest HistoryEvent
	found := false
	for _, ev := range l.History {
		if !ev.Kind.IsPositiveSignal() && !ev.Kind.IsConversionSignal() {
			continue
		}
		if !found || ev.Timestamp.After(latest.Timestamp) {
			latest = ev
			found = true
		}
	}
	return latest, found
}

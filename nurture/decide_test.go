package nurture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/nurturemesh/core"
	"github.com/hupe1980/nurturemesh/internal/testutil"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestDecide_NewLead_SchedulesInitialContact(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageContacted, d.Stage)
	assert.Equal(t, core.ActionInitialContact, d.Action)
	assert.Equal(t, time.Duration(0), d.Delay)
}

func TestDecide_EmptyStage_TreatedAsNew(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").Stage("").Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageContacted, d.Stage)
	assert.Equal(t, core.ActionInitialContact, d.Action)
}

func TestDecide_TerminalStages_NoAction(t *testing.T) {
	for _, stage := range []core.Stage{core.StageConverted, core.StageLost, core.StageClosed} {
		lead := testutil.NewLeadBuilder("lead-1").Stage(stage).Build()

		d := Decide(lead, t0, DefaultPolicy)

		assert.Equal(t, stage, d.Stage, "stage %s must not change", stage)
		assert.False(t, d.HasAction(), "stage %s must not emit an action", stage)
	}
}

func TestDecide_ConversionSignal_WinsFromAnyStage(t *testing.T) {
	for _, stage := range []core.Stage{core.StageNew, core.StageContacted, core.StageEngaged, core.StageQualified} {
		lead := testutil.NewLeadBuilder("lead-1").
			Stage(stage).
			Signal(core.EventConversion, t0.Add(-time.Hour)).
			Build()

		d := Decide(lead, t0, DefaultPolicy)

		assert.Equal(t, core.StageConverted, d.Stage, "from stage %s", stage)
		assert.False(t, d.HasAction())
	}
}

func TestDecide_Contacted_SilenceWithinGrace_DefersFollowUp(t *testing.T) {
	sent := t0.Add(-24 * time.Hour)
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageContacted).
		Sent(sent).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageContacted, d.Stage)
	assert.Equal(t, core.ActionFollowUp, d.Action)
	// Due one grace period after the send, i.e. 48h from now.
	assert.Equal(t, 48*time.Hour, d.Delay)
}

func TestDecide_Contacted_GraceElapsed_FollowUpDueNow(t *testing.T) {
	sent := t0.Add(-4 * 24 * time.Hour)
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageContacted).
		Sent(sent).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.ActionFollowUp, d.Action)
	assert.Equal(t, time.Duration(0), d.Delay)
}

func TestDecide_Contacted_ReplyAfterSend_PromotesToEngaged(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageContacted).
		Sent(t0.Add(-48 * time.Hour)).
		Signal(core.EventEmailReply, t0.Add(-time.Hour)).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageEngaged, d.Stage)
	assert.Equal(t, core.ActionFollowUp, d.Action)
	assert.Equal(t, time.Duration(0), d.Delay)
}

func TestDecide_Contacted_SignalBeforeSend_Ignored(t *testing.T) {
	// The reply predates the last send, so it was already acted upon.
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageContacted).
		Signal(core.EventEmailReply, t0.Add(-72*time.Hour)).
		Sent(t0.Add(-time.Hour)).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageContacted, d.Stage)
}

func TestDecide_Contacted_MeetingScheduled_PromotesToQualified(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageContacted).
		Sent(t0.Add(-48 * time.Hour)).
		Signal(core.EventMeetingScheduled, t0.Add(-time.Hour)).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageQualified, d.Stage)
	assert.Equal(t, core.ActionFollowUp, d.Action)
}

func TestDecide_Contacted_CeilingReached_MovesToLost(t *testing.T) {
	b := testutil.NewLeadBuilder("lead-1").Stage(core.StageContacted)
	for i := 0; i < DefaultPolicy.MaxAttempts; i++ {
		b.Sent(t0.Add(time.Duration(-i-1) * 24 * time.Hour))
	}
	lead := b.Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageLost, d.Stage)
	assert.False(t, d.HasAction())
}

func TestDecide_MultipleSignals_NewestWins(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageContacted).
		Sent(t0.Add(-48 * time.Hour)).
		Signal(core.EventEmailClick, t0.Add(-2*time.Hour)).
		Signal(core.EventEmailReply, t0.Add(-time.Hour)).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageEngaged, d.Stage)
	assert.Contains(t, d.Reason, string(core.EventEmailReply))
}

func TestDecide_Engaged_MeetingScheduled_EscalatesToQualified(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageEngaged).
		Sent(t0.Add(-24 * time.Hour)).
		Signal(core.EventMeetingScheduled, t0.Add(-time.Hour)).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageQualified, d.Stage)
	assert.Equal(t, core.ActionEscalation, d.Action)
}

func TestDecide_Engaged_RecentSignal_ImmediateFollowUp(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageEngaged).
		Sent(t0.Add(-24 * time.Hour)).
		Signal(core.EventEmailClick, t0.Add(-time.Hour)).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageEngaged, d.Stage)
	assert.Equal(t, core.ActionFollowUp, d.Action)
	assert.Equal(t, time.Duration(0), d.Delay)
}

func TestDecide_Engaged_Silence_BackoffSpacing(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageEngaged).
		Sent(t0.Add(-12 * time.Hour)).
		Sent(t0.Add(-36 * time.Hour)).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageEngaged, d.Stage)
	assert.Equal(t, core.ActionFollowUp, d.Action)
	// Two attempts so far: next send is Backoff(1)=48h after the last one.
	assert.Equal(t, 36*time.Hour, d.Delay)
}

func TestDecide_Qualified_SchedulesEscalation(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageQualified).
		Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageQualified, d.Stage)
	assert.Equal(t, core.ActionEscalation, d.Action)
	assert.Equal(t, time.Duration(0), d.Delay)
}

func TestDecide_Qualified_CeilingReached_MovesToLost(t *testing.T) {
	b := testutil.NewLeadBuilder("lead-1").Stage(core.StageQualified)
	for i := 0; i < DefaultPolicy.MaxAttempts; i++ {
		b.Sent(t0.Add(time.Duration(-i-1) * 24 * time.Hour))
	}
	lead := b.Build()

	d := Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, core.StageLost, d.Stage)
	assert.False(t, d.HasAction())
}

func TestDecide_IsPure_DoesNotMutateInput(t *testing.T) {
	lead := testutil.NewLeadBuilder("lead-1").
		Stage(core.StageContacted).
		Sent(t0.Add(-time.Hour)).
		Build()
	before := lead.Clone()

	_ = Decide(lead, t0, DefaultPolicy)

	assert.Equal(t, before, lead)
}

func TestPolicy_Backoff_ExponentialAndCapped(t *testing.T) {
	p := DefaultPolicy

	assert.Equal(t, 24*time.Hour, p.Backoff(0))
	assert.Equal(t, 48*time.Hour, p.Backoff(1))
	assert.Equal(t, 96*time.Hour, p.Backoff(2))
	assert.Equal(t, p.BackoffCap, p.Backoff(3))
	assert.Equal(t, p.BackoffCap, p.Backoff(10))
	assert.Equal(t, 24*time.Hour, p.Backoff(-5))
}

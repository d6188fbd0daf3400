package navigation

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/BTreeMap/FormCadence/internal/daytype"
	"github.com/BTreeMap/FormCadence/internal/ledger"
	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/store"
)

var today = time.Date(2024, 11, 6, 10, 0, 0, 0, time.UTC)

func newRegistry() *daytype.Registry {
	return daytype.NewRegistry().MustRegister(
		daytype.DayType{ID: "ABC", Kind: daytype.KindRegular, Priority: 30, Forms: []string{"A", "B", "C"}},
		daytype.DayType{ID: "FREE", Kind: daytype.KindRegular, Priority: 0, Forms: []string{}},
		daytype.DayType{ID: "EVENT_EOT", Kind: daytype.KindEvent, Priority: 100, Forms: []string{"final"}},
	)
}

func setup(opts ...func(*ledger.SkipLedger) Option) (*Decider, *ledger.CompletionLedger, *ledger.SkipLedger) {
	s := store.NewInMemoryStore()
	cl := ledger.NewCompletionLedger(s)
	sl := ledger.NewSkipLedger(s)
	var decOpts []Option
	for _, o := range opts {
		decOpts = append(decOpts, o(sl))
	}
	return NewDecider(newRegistry(), cl, decOpts...), cl, sl
}

func record(t *testing.T, cl *ledger.CompletionLedger, form, dayType string) {
	t.Helper()
	if _, err := cl.Record(models.CompletionKey{FormID: form, Phase: "intervention", DayTypeID: dayType, Date: today, ParticipantID: "p1"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
}

func TestNextAction_Ordering(t *testing.T) {
	d, cl, _ := setup()
	candidates := []string{"ABC"}

	record(t, cl, "A", "ABC")
	action, err := d.NextAction("A", candidates, "intervention", today, "p1")
	if err != nil {
		t.Fatalf("NextAction failed: %v", err)
	}
	if action.Type != models.ActionShowForm || action.FormID != "B" {
		t.Fatalf("expected SHOW_FORM(B), got %+v", action)
	}
	if action.Metadata["position"] != 2 || action.Metadata["total"] != 3 || action.Metadata["previous"] != "A" {
		t.Errorf("unexpected metadata %v", action.Metadata)
	}

	record(t, cl, "B", "ABC")
	action, _ = d.NextAction("B", candidates, "intervention", today, "p1")
	if action.Type != models.ActionShowForm || action.FormID != "C" {
		t.Fatalf("expected SHOW_FORM(C), got %+v", action)
	}

	record(t, cl, "C", "ABC")
	action, _ = d.NextAction("C", candidates, "intervention", today, "p1")
	if action.Type != models.ActionAllComplete {
		t.Fatalf("expected ALL_COMPLETE, got %+v", action)
	}
	if action.Metadata["total_completed"] != 3 || action.Metadata["last_form"] != "C" {
		t.Errorf("unexpected metadata %v", action.Metadata)
	}
}

func TestNextAction_NoActiveDayType(t *testing.T) {
	d, _, _ := setup()
	action, err := d.NextAction("A", []string{"UNKNOWN"}, "intervention", today, "p1")
	if err != nil {
		t.Fatalf("an unresolved day type is an action, not an error: %v", err)
	}
	if action.Type != models.ActionError || action.Metadata["error"] != models.NavigationErrorNoActiveDayType {
		t.Errorf("expected ERROR(no_active_day_type), got %+v", action)
	}
}

func TestNextAction_FreeDay(t *testing.T) {
	d, _, _ := setup()
	action, err := d.NextAction("", []string{"FREE"}, "intervention", today, "p1")
	if err != nil {
		t.Fatalf("NextAction failed: %v", err)
	}
	if action.Type != models.ActionAllComplete || action.DayTypeID != "FREE" {
		t.Errorf("expected ALL_COMPLETE on free day, got %+v", action)
	}
}

func TestNextAction_EventOverridesRegular(t *testing.T) {
	d, _, _ := setup()
	action, _ := d.NextAction("", []string{"ABC", "EVENT_EOT"}, "intervention", today, "p1")
	if action.FormID != "final" || action.DayTypeID != "EVENT_EOT" {
		t.Errorf("expected event form, got %+v", action)
	}
}

func TestNextAction_PhaseIsolation(t *testing.T) {
	d, cl, _ := setup()
	if _, err := cl.Record(models.CompletionKey{FormID: "A", Phase: "screening", DayTypeID: "ABC", Date: today, ParticipantID: "p1"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	action, _ := d.NextAction("", []string{"ABC"}, "intervention", today, "p1")
	if action.FormID != "A" {
		t.Errorf("screening completion must not satisfy intervention, got %+v", action)
	}
}

func TestNextAction_SkipAwareness(t *testing.T) {
	withSkips := func(sl *ledger.SkipLedger) Option { return WithSkips(sl) }
	d, cl, sl := setup(withSkips)
	record(t, cl, "A", "ABC")
	out, err := sl.Skip(models.FormEntry{ID: "B"}, models.SkipKey{FormID: "B", DayTypeID: "ABC", Phase: "intervention", Date: today, ParticipantID: "p1"}, "travel")
	if err != nil || !out.OK {
		t.Fatalf("Skip failed: %+v, %v", out, err)
	}
	action, _ := d.NextAction("A", []string{"ABC"}, "intervention", today, "p1")
	if action.FormID != "C" {
		t.Errorf("skipped form should be passed over, got %+v", action)
	}

	plain := NewDecider(newRegistry(), ledger.NewCompletionLedger(store.NewInMemoryStore()))
	action, _ = plain.NextAction("", []string{"ABC"}, "intervention", today, "p1")
	if action.FormID != "A" {
		t.Errorf("decider without skips should show the first form, got %+v", action)
	}

	record(t, cl, "C", "ABC")
	action, _ = d.NextAction("C", []string{"ABC"}, "intervention", today, "p1")
	if action.Type != models.ActionAllComplete || action.Metadata["total_skipped"] != 1 || action.Metadata["total_completed"] != 2 {
		t.Errorf("unexpected final action %+v", action)
	}
}

func TestNextAction_InvalidInput(t *testing.T) {
	d, _, _ := setup()
	if _, err := d.NextAction("", []string{"ABC"}, "", today, "p1"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("blank phase: expected ErrInvalidInput, got %v", err)
	}
	if _, err := d.NextAction("", []string{"ABC"}, "intervention", time.Time{}, "p1"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("zero date: expected ErrInvalidInput, got %v", err)
	}
	if _, err := d.NextAction("", []string{"ABC"}, "intervention", today, " "); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("blank participant: expected ErrInvalidInput, got %v", err)
	}
}

func TestCurrentStatus(t *testing.T) {
	d, cl, _ := setup()
	record(t, cl, "A", "ABC")
	status, err := d.CurrentStatus([]string{"ABC"}, "intervention", today, "p1")
	if err != nil {
		t.Fatalf("CurrentStatus failed: %v", err)
	}
	if status.ActiveDayTypeID != "ABC" || status.IsEventDay {
		t.Errorf("unexpected status header %+v", status)
	}
	if !reflect.DeepEqual(status.CompletedForms, []string{"A"}) || !reflect.DeepEqual(status.IncompleteForms, []string{"B", "C"}) {
		t.Errorf("unexpected form split %+v", status)
	}
	if status.Progress != 33 || status.Message != "1 of 3 forms complete" {
		t.Errorf("unexpected progress %d %q", status.Progress, status.Message)
	}

	none, _ := d.CurrentStatus(nil, "intervention", today, "p1")
	if none.Progress != 100 || none.ActiveDayTypeID != "" || none.Message != "No forms due today" {
		t.Errorf("unexpected status with no day type %+v", none)
	}

	event, _ := d.CurrentStatus([]string{"ABC", "EVENT_EOT"}, "intervention", today, "p1")
	if !event.IsEventDay {
		t.Error("expected event day")
	}
}

func TestNextFormToShow(t *testing.T) {
	d, cl, _ := setup()
	id, ok, err := d.NextFormToShow([]string{"ABC"}, "intervention", today, "p1")
	if err != nil || !ok || id != "A" {
		t.Fatalf("expected A, got %q %v %v", id, ok, err)
	}
	for _, f := range []string{"A", "B", "C"} {
		record(t, cl, f, "ABC")
	}
	if _, ok, _ := d.NextFormToShow([]string{"ABC"}, "intervention", today, "p1"); ok {
		t.Error("expected nothing to show")
	}
	if _, ok, _ := d.NextFormToShow([]string{"UNKNOWN"}, "intervention", today, "p1"); ok {
		t.Error("expected nothing to show without an active day type")
	}
}

package ledger

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/store"
)

var (
	testDate = time.Date(2024, 11, 6, 15, 30, 0, 0, time.UTC)
	fixedNow = time.Date(2024, 11, 6, 16, 0, 0, 0, time.UTC)
)

func testOpts() []Option {
	n := 0
	return []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	}
}

func key(form, phase string) models.CompletionKey {
	return models.CompletionKey{FormID: form, Phase: phase, DayTypeID: "AB", Date: testDate, ParticipantID: "p1"}
}

func TestCompletionLedger_PhaseIsolation(t *testing.T) {
	l := NewCompletionLedger(store.NewInMemoryStore(), testOpts()...)
	if _, err := l.Record(key("X", "screening")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	done, err := l.IsDone(key("X", "intervention"))
	if err != nil {
		t.Fatalf("IsDone failed: %v", err)
	}
	if done {
		t.Error("completion in screening must not count in intervention")
	}
	done, _ = l.IsDone(key("X", "screening"))
	if !done {
		t.Error("expected completion in screening")
	}
}

func TestCompletionLedger_AllFieldsMustMatch(t *testing.T) {
	l := NewCompletionLedger(store.NewInMemoryStore(), testOpts()...)
	base := key("X", "screening")
	if _, err := l.Record(base); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	variants := map[string]func(k *models.CompletionKey){
		"form":        func(k *models.CompletionKey) { k.FormID = "Y" },
		"day type":    func(k *models.CompletionKey) { k.DayTypeID = "ABC" },
		"date":        func(k *models.CompletionKey) { k.Date = k.Date.AddDate(0, 0, 1) },
		"participant": func(k *models.CompletionKey) { k.ParticipantID = "p2" },
	}
	for name, mutate := range variants {
		k := base
		mutate(&k)
		if done, _ := l.IsDone(k); done {
			t.Errorf("%s differs but completion matched", name)
		}
	}
	sameDayLater := base
	sameDayLater.Date = time.Date(2024, 11, 6, 23, 59, 0, 0, time.UTC)
	if done, _ := l.IsDone(sameDayLater); !done {
		t.Error("time of day must not affect matching")
	}
}

func TestCompletionLedger_SeparatorInIDs(t *testing.T) {
	l := NewCompletionLedger(store.NewInMemoryStore(), testOpts()...)
	recorded := key("X", "c")
	recorded.ParticipantID = "a|b"
	if _, err := l.Record(recorded); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	other := key("X", "b|c")
	other.ParticipantID = "a"
	if done, _ := l.IsDone(other); done {
		t.Error("participant a in phase b|c must not match participant a|b in phase c")
	}
	if _, err := l.Record(other); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	summary, _ := l.Summary("a")
	if summary.Distinct != 1 || summary.ByPhase["b|c"] != 1 {
		t.Errorf("unexpected summary for a: %+v", summary)
	}
}

func TestCompletionLedger_AppendOnly(t *testing.T) {
	l := NewCompletionLedger(store.NewInMemoryStore(), testOpts()...)
	first, err := l.Record(key("X", "screening"))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	second, err := l.Record(key("X", "screening"))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if first.ID == second.ID {
		t.Error("each recording must be a distinct fact")
	}
	if !first.RecordedAt.Equal(fixedNow) {
		t.Errorf("expected injected clock, got %v", first.RecordedAt)
	}
	if !first.Date.Equal(models.DateOnly(testDate)) {
		t.Errorf("date should be normalised, got %v", first.Date)
	}
	all, _ := l.ForPhase("screening", "p1")
	if len(all) != 2 {
		t.Errorf("expected 2 facts, got %d", len(all))
	}
	found, _ := l.Find(key("X", "screening"))
	if found == nil || found.ID != first.ID {
		t.Errorf("Find should return the earliest fact, got %+v", found)
	}

	sum, err := l.Summary("p1")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum.Total != 2 || sum.Distinct != 1 || sum.ByPhase["screening"] != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.LatestDate != "2024-11-06" {
		t.Errorf("unexpected latest date %q", sum.LatestDate)
	}
}

func TestCompletionLedger_ProjectionsAndReset(t *testing.T) {
	l := NewCompletionLedger(store.NewInMemoryStore(), testOpts()...)
	l.Record(key("A", "screening"))
	l.Record(key("B", "intervention"))
	other := key("A", "screening")
	other.ParticipantID = "p2"
	l.Record(other)

	onDate, err := l.ForDate(testDate, "p1")
	if err != nil {
		t.Fatalf("ForDate failed: %v", err)
	}
	if len(onDate) != 2 {
		t.Errorf("expected 2 completions on date, got %d", len(onDate))
	}
	if _, err := l.ForDate(time.Time{}, "p1"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero date, got %v", err)
	}

	n, err := l.Reset("p1")
	if err != nil || n != 2 {
		t.Fatalf("Reset: expected 2, got %d, %v", n, err)
	}
	if left, _ := l.ForPhase("screening", "p2"); len(left) != 1 {
		t.Errorf("reset must not touch other participants, got %d", len(left))
	}
	if _, err := l.Reset(""); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank participant, got %v", err)
	}
}

func TestCompletionLedger_RejectsIncompleteKeys(t *testing.T) {
	l := NewCompletionLedger(store.NewInMemoryStore(), testOpts()...)
	bad := key("X", "")
	if _, err := l.Record(bad); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if models.CodeOf(func() error { _, err := l.Record(bad); return err }()) != models.CodeInvalidInput {
		t.Error("expected InvalidInput code")
	}
}

type failingRepo struct{ store.CompletionRepo }

func (failingRepo) AddCompletion(models.Completion) error { return errors.New("disk full") }

func TestCompletionLedger_StorageFailure(t *testing.T) {
	l := NewCompletionLedger(failingRepo{store.NewInMemoryStore()}, testOpts()...)
	_, err := l.Record(key("X", "screening"))
	if err == nil {
		t.Fatal("expected storage error")
	}
	if models.CodeOf(err) != models.CodeInternal {
		t.Errorf("expected Internal code, got %s", models.CodeOf(err))
	}
}

func skipKey(form string) models.SkipKey {
	return models.SkipKey{FormID: form, DayTypeID: "AB", Phase: "intervention", Date: testDate, ParticipantID: "p1"}
}

func TestSkipLedger_RequiredFormGuard(t *testing.T) {
	l := NewSkipLedger(store.NewInMemoryStore(), testOpts()...)
	out, err := l.Skip(models.FormEntry{ID: "form_a", Required: true}, skipKey("form_a"), "Not feeling well")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.OK || out.Code != models.CodeInvalidInput {
		t.Fatalf("expected rejection, got %+v", out)
	}
	if !strings.Contains(out.Message, "required") {
		t.Errorf("message should name the required-form violation: %q", out.Message)
	}
	if skipped, _ := l.IsSkipped(skipKey("form_a")); skipped {
		t.Error("ledger must stay unchanged after a rejected skip")
	}
}

func TestSkipLedger_Lifecycle(t *testing.T) {
	l := NewSkipLedger(store.NewInMemoryStore(), testOpts()...)
	entry := models.FormEntry{ID: "form_b", Required: false}

	out, err := l.Skip(entry, skipKey("form_b"), "   ")
	if err != nil || out.OK {
		t.Fatalf("blank reason must be rejected, got %+v, %v", out, err)
	}

	out, err = l.Skip(entry, skipKey("form_b"), "  Not feeling well ")
	if err != nil || !out.OK {
		t.Fatalf("expected skip to succeed, got %+v, %v", out, err)
	}
	sk, _ := l.Get(skipKey("form_b"))
	if sk == nil || sk.Reason != "Not feeling well" || !sk.Timestamp.Equal(fixedNow) {
		t.Errorf("unexpected skip record %+v", sk)
	}

	out, _ = l.Skip(entry, skipKey("form_b"), "again")
	if out.OK || out.Code != models.CodeNotFound {
		t.Errorf("second skip must be rejected, got %+v", out)
	}

	summary, _ := l.Summary("AB", "intervention", testDate, "p1")
	if summary != "1 form(s) skipped: form_b" {
		t.Errorf("unexpected summary %q", summary)
	}

	out, err = l.Unskip(skipKey("form_b"))
	if err != nil || !out.OK {
		t.Fatalf("expected unskip to succeed, got %+v, %v", out, err)
	}
	out, _ = l.Unskip(skipKey("form_b"))
	if out.OK || out.Code != models.CodeNotFound {
		t.Errorf("unskip of missing skip must fail softly, got %+v", out)
	}
	summary, _ = l.Summary("AB", "intervention", testDate, "p1")
	if summary != "No forms skipped today" {
		t.Errorf("unexpected summary %q", summary)
	}
}

func TestSkipLedger_ScopedByParticipant(t *testing.T) {
	l := NewSkipLedger(store.NewInMemoryStore(), testOpts()...)
	entry := models.FormEntry{ID: "form_b"}
	if out, _ := l.Skip(entry, skipKey("form_b"), "busy"); !out.OK {
		t.Fatalf("skip failed: %+v", out)
	}
	k := skipKey("form_b")
	k.ParticipantID = "p2"
	if skipped, _ := l.IsSkipped(k); skipped {
		t.Error("skip leaked to another participant")
	}
	if out, _ := l.Skip(entry, k, "busy"); !out.OK {
		t.Errorf("p2 should be able to skip independently: %+v", out)
	}
}

func TestSkipLedger_SeparatorInIDs(t *testing.T) {
	l := NewSkipLedger(store.NewInMemoryStore(), testOpts()...)
	entry := models.FormEntry{ID: "form_b"}
	k := skipKey("form_b")
	k.ParticipantID, k.Phase = "a|b", "c"
	if out, _ := l.Skip(entry, k, "busy"); !out.OK {
		t.Fatalf("skip failed: %+v", out)
	}
	other := skipKey("form_b")
	other.ParticipantID, other.Phase = "a", "b|c"
	if skipped, _ := l.IsSkipped(other); skipped {
		t.Error("skip leaked across a participant/phase pair with the same joined form")
	}
	if out, _ := l.Skip(entry, other, "busy"); !out.OK {
		t.Errorf("second pair should skip independently: %+v", out)
	}
	if out, _ := l.Unskip(k); !out.OK {
		t.Fatalf("unskip failed: %+v", out)
	}
	if skipped, _ := l.IsSkipped(other); !skipped {
		t.Error("unskip removed the wrong record")
	}
}

func TestSkipLedger_MalformedInput(t *testing.T) {
	l := NewSkipLedger(store.NewInMemoryStore(), testOpts()...)
	if _, err := l.Skip(models.FormEntry{ID: "other"}, skipKey("form_b"), "x"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("mismatched entry: expected ErrInvalidInput, got %v", err)
	}
	bad := skipKey("form_b")
	bad.Date = time.Time{}
	if _, err := l.Unskip(bad); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("missing date: expected ErrInvalidInput, got %v", err)
	}
	out, err := l.Skip(models.FormEntry{ID: "form_b"}, skipKey("form_b"), strings.Repeat("x", models.MaxSkipReasonLength+1))
	if err != nil || out.OK {
		t.Errorf("oversized reason must be rejected, got %+v, %v", out, err)
	}
}

func TestCanSkip(t *testing.T) {
	l := NewSkipLedger(store.NewInMemoryStore())
	if ok, why := l.CanSkip(models.FormEntry{ID: "a", Required: true}); ok || why == "" {
		t.Errorf("required form: got %v %q", ok, why)
	}
	if ok, why := l.CanSkip(models.FormEntry{ID: "b"}); !ok || why != "" {
		t.Errorf("optional form: got %v %q", ok, why)
	}
}

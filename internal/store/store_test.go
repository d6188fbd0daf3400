package store

import (
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
)

var (
	day1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	t0   = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

func completion(id, participant, phase, form string, date time.Time, at time.Time) models.Completion {
	return models.Completion{
		ID: id, ParticipantID: participant, Phase: phase, DayTypeID: "AB",
		FormID: form, Date: date, RecordedAt: at,
	}
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, s Store) {
	t.Run("completions are append-only and phase isolated", func(t *testing.T) {
		c := completion("c1", "p1", "baseline", "daily_diary", day1, t0)
		if err := s.AddCompletion(c); err != nil {
			t.Fatalf("AddCompletion failed: %v", err)
		}
		dup := completion("c2", "p1", "baseline", "daily_diary", day1, t0.Add(time.Minute))
		if err := s.AddCompletion(dup); err != nil {
			t.Fatalf("AddCompletion duplicate failed: %v", err)
		}

		ok, err := s.HasCompletion(c.Key())
		if err != nil || !ok {
			t.Fatalf("expected completion present, got %v, %v", ok, err)
		}
		other := c.Key()
		other.Phase = "treatment"
		ok, err = s.HasCompletion(other)
		if err != nil || ok {
			t.Errorf("completion leaked across phases: %v, %v", ok, err)
		}

		found, err := s.FindCompletion(c.Key())
		if err != nil || found == nil || found.ID != "c1" {
			t.Errorf("expected earliest completion c1, got %+v, %v", found, err)
		}

		all, err := s.ListCompletions(CompletionFilter{ParticipantID: "p1"})
		if err != nil {
			t.Fatalf("ListCompletions failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected both facts retained, got %d", len(all))
		}
		if all[0].ID != "c1" || all[1].ID != "c2" {
			t.Errorf("expected recording order, got %s, %s", all[0].ID, all[1].ID)
		}
		if !all[0].Date.Equal(day1) {
			t.Errorf("date not round-tripped: %v", all[0].Date)
		}
	})

	t.Run("completion filters", func(t *testing.T) {
		if err := s.AddCompletion(completion("c3", "p1", "treatment", "weekly_qol", day2, t0.Add(time.Hour))); err != nil {
			t.Fatalf("AddCompletion failed: %v", err)
		}
		if err := s.AddCompletion(completion("c4", "p2", "baseline", "daily_diary", day1, t0.Add(2*time.Hour))); err != nil {
			t.Fatalf("AddCompletion failed: %v", err)
		}
		byPhase, _ := s.ListCompletions(CompletionFilter{ParticipantID: "p1", Phase: "treatment"})
		if len(byPhase) != 1 || byPhase[0].ID != "c3" {
			t.Errorf("phase filter: got %+v", byPhase)
		}
		byDate, _ := s.ListCompletions(CompletionFilter{ParticipantID: "p1", Date: day1})
		if len(byDate) != 2 {
			t.Errorf("date filter: expected 2, got %d", len(byDate))
		}
		everyone, _ := s.ListCompletions(CompletionFilter{})
		if len(everyone) != 4 {
			t.Errorf("empty filter: expected 4, got %d", len(everyone))
		}
	})

	t.Run("skips are unique per key", func(t *testing.T) {
		sk := models.Skip{
			ID: "s1", ParticipantID: "p1", Phase: "baseline", DayTypeID: "AB",
			FormID: "weekly_qol", Date: day1, Reason: "travelling", Timestamp: t0,
		}
		inserted, err := s.AddSkip(sk)
		if err != nil || !inserted {
			t.Fatalf("expected first skip inserted, got %v, %v", inserted, err)
		}
		again := sk
		again.ID = "s2"
		again.Reason = "other"
		inserted, err = s.AddSkip(again)
		if err != nil || inserted {
			t.Fatalf("expected duplicate skip rejected, got %v, %v", inserted, err)
		}
		got, err := s.GetSkip(sk.Key())
		if err != nil || got == nil {
			t.Fatalf("GetSkip failed: %+v, %v", got, err)
		}
		if got.Reason != "travelling" {
			t.Errorf("original skip overwritten: %q", got.Reason)
		}

		otherParticipant := sk.Key()
		otherParticipant.ParticipantID = "p2"
		if got, _ := s.GetSkip(otherParticipant); got != nil {
			t.Errorf("skip leaked across participants: %+v", got)
		}

		list, err := s.ListSkips(SkipFilter{ParticipantID: "p1", DayTypeID: "AB", Phase: "baseline", Date: day1})
		if err != nil || len(list) != 1 {
			t.Fatalf("ListSkips: expected 1, got %d, %v", len(list), err)
		}

		removed, err := s.RemoveSkip(sk.Key())
		if err != nil || !removed {
			t.Fatalf("RemoveSkip failed: %v, %v", removed, err)
		}
		removed, err = s.RemoveSkip(sk.Key())
		if err != nil || removed {
			t.Errorf("second RemoveSkip should report nothing removed, got %v, %v", removed, err)
		}
	})

	t.Run("participants", func(t *testing.T) {
		p := models.Participant{ID: "p1", StudyID: "trial", StartDate: day1, EnrolledAt: t0}
		if err := s.SaveParticipant(p); err != nil {
			t.Fatalf("SaveParticipant failed: %v", err)
		}
		if err := s.SaveParticipant(models.Participant{ID: "p0", StudyID: "trial", StartDate: day2, EnrolledAt: t0}); err != nil {
			t.Fatalf("SaveParticipant failed: %v", err)
		}
		got, err := s.GetParticipant("p1")
		if err != nil || got == nil {
			t.Fatalf("GetParticipant failed: %+v, %v", got, err)
		}
		if !got.StartDate.Equal(day1) || got.StudyID != "trial" {
			t.Errorf("participant not round-tripped: %+v", got)
		}
		missing, err := s.GetParticipant("nobody")
		if err != nil || missing != nil {
			t.Errorf("expected nil for unknown participant, got %+v, %v", missing, err)
		}
		list, _ := s.ListParticipants()
		if len(list) != 2 || list[0].ID != "p0" {
			t.Errorf("expected participants ordered by id, got %+v", list)
		}
	})

	t.Run("events", func(t *testing.T) {
		e := models.EventOccurrence{ID: "e1", ParticipantID: "p1", DayTypeID: "EVENT_EOT", Date: day2, RecordedAt: t0}
		added, err := s.AddEvent(e)
		if err != nil || !added {
			t.Fatalf("AddEvent failed: %v, %v", added, err)
		}
		e.ID = "e2"
		added, err = s.AddEvent(e)
		if err != nil || added {
			t.Errorf("expected repeated event ignored, got %v, %v", added, err)
		}
		onDay, _ := s.ListEvents("p1", day2)
		if len(onDay) != 1 || onDay[0].DayTypeID != "EVENT_EOT" {
			t.Errorf("ListEvents by date: got %+v", onDay)
		}
		none, _ := s.ListEvents("p1", day1)
		if len(none) != 0 {
			t.Errorf("expected no events on day1, got %+v", none)
		}
	})

	t.Run("reset clears one participant", func(t *testing.T) {
		n, err := s.DeleteCompletions("p1")
		if err != nil || n != 3 {
			t.Fatalf("DeleteCompletions: expected 3, got %d, %v", n, err)
		}
		if _, err := s.AddSkip(models.Skip{ID: "s3", ParticipantID: "p1", Phase: "x", DayTypeID: "AB", FormID: "f", Date: day1, Reason: "r", Timestamp: t0}); err != nil {
			t.Fatalf("AddSkip failed: %v", err)
		}
		if n, err := s.DeleteSkips("p1"); err != nil || n != 1 {
			t.Errorf("DeleteSkips: expected 1, got %d, %v", n, err)
		}
		rest, _ := s.ListCompletions(CompletionFilter{})
		if len(rest) != 1 || rest[0].ParticipantID != "p2" {
			t.Errorf("other participants must survive reset, got %+v", rest)
		}
	})
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "nested", "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s1, err := NewSQLiteStore(WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s1.AddCompletion(completion("c1", "p1", "baseline", "daily_diary", day1, t0)); err != nil {
		t.Fatalf("AddCompletion failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	ok, err := s2.HasCompletion(completion("", "p1", "baseline", "daily_diary", day1, t0).Key())
	if err != nil || !ok {
		t.Errorf("completion lost across reopen: %v, %v", ok, err)
	}
}

func TestSQLiteStore_RequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error without DSN")
	}
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to enable.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	for _, table := range []string{"completions", "skips", "participants", "event_occurrences"} {
		pgStore.db.Exec("DELETE FROM " + table)
	}
	runStoreSuite(t, pgStore)
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://user@localhost/db":   "postgres",
		"postgresql://user@localhost/db": "postgres",
		"host=localhost dbname=x":        "postgres",
		"/var/lib/formcadence/state.db":  "sqlite3",
		"file.db":                        "sqlite3",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}

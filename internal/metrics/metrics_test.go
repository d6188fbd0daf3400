package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/BTreeMap/FormCadence/internal/models"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(WithPhases("screening", "intervention"))
	m.ParticipantEnrolled()
	m.EventTriggered("EVENT_BASELINE")
	m.CompletionRecorded("screening", false)
	m.CompletionRecorded("screening", true)
	m.CompletionRecorded("screening", false)
	m.SkipDecided(true)
	m.SkipDecided(false)
	m.NavigationDecided(models.ActionShowForm)
	m.ExportFinished(nil, time.Second)
	m.ExportFinished(errors.New("bucket missing"), time.Second)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"enrolled", testutil.ToFloat64(m.enrolled), 1},
		{"events", testutil.ToFloat64(m.events.WithLabelValues("EVENT_BASELINE")), 1},
		{"fresh completions", testutil.ToFloat64(m.completions.WithLabelValues("screening", "false")), 2},
		{"duplicate completions", testutil.ToFloat64(m.completions.WithLabelValues("screening", "true")), 1},
		{"accepted skips", testutil.ToFloat64(m.skips.WithLabelValues("accepted")), 1},
		{"rejected skips", testutil.ToFloat64(m.skips.WithLabelValues("rejected")), 1},
		{"navigation", testutil.ToFloat64(m.navigation.WithLabelValues("SHOW_FORM")), 1},
		{"failed exports", testutil.ToFloat64(m.exports.WithLabelValues("error")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestMetrics_UnknownPhasesShareOneSeries(t *testing.T) {
	m := New(WithPhases("screening"))
	for i := 0; i < 50; i++ {
		m.CompletionRecorded(fmt.Sprintf("phase-%d", i), false)
	}
	m.CompletionRecorded("screening", false)

	if got := testutil.ToFloat64(m.completions.WithLabelValues(OtherPhase, "false")); got != 50 {
		t.Errorf("expected 50 completions under %q, got %v", OtherPhase, got)
	}
	if got := testutil.ToFloat64(m.completions.WithLabelValues("screening", "false")); got != 1 {
		t.Errorf("expected 1 screening completion, got %v", got)
	}
	if got := testutil.CollectAndCount(m.completions); got != 2 {
		t.Errorf("expected 2 completion series, got %d", got)
	}
}

func TestMetrics_NoPhasesConfigured(t *testing.T) {
	m := New()
	m.CompletionRecorded("screening", true)
	if got := testutil.ToFloat64(m.completions.WithLabelValues(OtherPhase, "true")); got != 1 {
		t.Errorf("expected the completion under %q, got %v", OtherPhase, got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(WithPhases("screening", "intervention"))
	m.CompletionRecorded("intervention", false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(string(body), `formcadence_completions_total{duplicate="false",phase="intervention"} 1`) {
		t.Errorf("completion counter missing from exposition:\n%s", body)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ParticipantEnrolled()
	m.EventTriggered("X")
	m.CompletionRecorded("p", false)
	m.SkipDecided(true)
	m.NavigationDecided(models.ActionError)
	m.ExportFinished(nil, 0)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil metrics handler should 404, got %d", rec.Code)
	}
}

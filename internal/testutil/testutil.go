// Package testutil provides common test utilities and helpers for FormCadence tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/BTreeMap/FormCadence/internal/api"
	"github.com/BTreeMap/FormCadence/internal/config"
	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/store"
	"github.com/BTreeMap/FormCadence/internal/study"
)

// TB is the subset of testing.TB the helpers need, so they can be exercised
// with a recording fake.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// StudyStart is the enrolment date used by fixtures.
var StudyStart = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

// Day returns the calendar date of 1-based study day n for fixtures.
func Day(n int) time.Time {
	return StudyStart.AddDate(0, 0, n-1)
}

// NewTestService creates a study service over the clinical trial preset and
// an in-memory store.
func NewTestService(t TB) (*study.Service, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	svc, err := study.New(config.ClinicalTrialPreset(), st)
	if err != nil {
		t.Fatalf("failed to create study service: %v", err)
	}
	return svc, st
}

// NewTestServer creates a test API server with in-memory dependencies.
func NewTestServer(t TB, opts ...api.Option) (*api.Server, *study.Service, *store.InMemoryStore) {
	t.Helper()
	svc, st := NewTestService(t)
	return api.NewServer(svc, opts...), svc, st
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes the envelope and validates its status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}
	return response
}

// DecodeResult decodes the envelope's result field into target.
func DecodeResult(t TB, rr *httptest.ResponseRecorder, target interface{}) models.APIResponse {
	t.Helper()
	var envelope struct {
		models.APIResponse
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode JSON envelope: %v", err)
		return models.APIResponse{}
	}
	if target != nil && len(envelope.Result) > 0 {
		MustUnmarshalJSON(t, envelope.Result, target)
	}
	return envelope.APIResponse
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Do sends a request through h and returns the recorded response.
func Do(t TB, h http.Handler, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, CreateHTTPRequest(t, method, url, body))
	return rr
}

// AssertCompletionCount validates the number of completions stored for a participant.
func AssertCompletionCount(t TB, repo store.CompletionRepo, participantID string, expected int, context string) {
	t.Helper()
	completions, err := repo.ListCompletions(store.CompletionFilter{ParticipantID: participantID})
	if err != nil {
		t.Fatalf("%s: failed to list completions: %v", context, err)
		return
	}
	if len(completions) != expected {
		t.Errorf("%s: expected %d completions, got %d", context, expected, len(completions))
	}
}

// SeedCompletions stores one completion fact per key.
func SeedCompletions(t TB, repo store.CompletionRepo, keys ...models.CompletionKey) {
	t.Helper()
	for i, k := range keys {
		k = k.Normalize()
		c := models.Completion{
			ID:            "seed-" + k.String(),
			FormID:        k.FormID,
			Phase:         k.Phase,
			DayTypeID:     k.DayTypeID,
			Date:          k.Date,
			ParticipantID: k.ParticipantID,
			RecordedAt:    k.Date.Add(time.Duration(i) * time.Second),
		}
		if err := repo.AddCompletion(c); err != nil {
			t.Fatalf("failed to seed completion %s: %v", k, err)
		}
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

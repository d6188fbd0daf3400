package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/store"
)

var exportAt = time.Date(2024, 11, 6, 2, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *store.InMemoryStore {
	t.Helper()
	s := store.NewInMemoryStore()
	day := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SaveParticipant(models.Participant{ID: "p1", StudyID: "trial", StartDate: day}); err != nil {
		t.Fatalf("SaveParticipant failed: %v", err)
	}
	for i, form := range []string{"consent", "demographics"} {
		c := models.Completion{ID: form, FormID: form, Phase: "screening", DayTypeID: "EVENT_BASELINE", Date: day, ParticipantID: "p1", RecordedAt: day.Add(time.Duration(i) * time.Minute)}
		if err := s.AddCompletion(c); err != nil {
			t.Fatalf("AddCompletion failed: %v", err)
		}
	}
	if _, err := s.AddSkip(models.Skip{ID: "s1", FormID: "survey", DayTypeID: "EVENT_EOT", Phase: "intervention", Date: day, ParticipantID: "p1", Reason: "declined"}); err != nil {
		t.Fatalf("AddSkip failed: %v", err)
	}
	return s
}

type recorder struct {
	runs int
	last error
}

func (r *recorder) ExportFinished(err error, _ time.Duration) {
	r.runs++
	r.last = err
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func TestExporter_FSSink(t *testing.T) {
	root := t.TempDir()
	sink, err := NewFSSink(root)
	if err != nil {
		t.Fatalf("NewFSSink failed: %v", err)
	}
	rec := &recorder{}
	m, err := NewExporter("trial", seededStore(t), sink, WithRecorder(rec)).Export(context.Background(), exportAt)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if m.Prefix != "trial/20241106T020000Z" || m.Participants != 1 || m.Completions != 2 || m.Skips != 1 {
		t.Errorf("unexpected manifest %+v", m)
	}
	dir := filepath.Join(root, "trial", "20241106T020000Z")
	if n := countLines(t, filepath.Join(dir, "completions.jsonl")); n != 2 {
		t.Errorf("expected 2 completion lines, got %d", n)
	}
	if n := countLines(t, filepath.Join(dir, "skips.jsonl")); n != 1 {
		t.Errorf("expected 1 skip line, got %d", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	var got Manifest
	if err := json.Unmarshal(data, &got); err != nil || got.Completions != 2 {
		t.Errorf("unexpected manifest on disk %s (%v)", data, err)
	}
	if rec.runs != 1 || rec.last != nil {
		t.Errorf("recorder not notified: %+v", rec)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".export-*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

type failingSource struct{ *store.InMemoryStore }

func (failingSource) ListSkips(store.SkipFilter) ([]models.Skip, error) {
	return nil, errors.New("connection reset")
}

func TestExporter_SourceFailure(t *testing.T) {
	sink, _ := NewFSSink(t.TempDir())
	rec := &recorder{}
	_, err := NewExporter("trial", failingSource{seededStore(t)}, sink, WithRecorder(rec)).Export(context.Background(), exportAt)
	if err == nil || !strings.Contains(err.Error(), "skips") {
		t.Fatalf("expected skip listing failure, got %v", err)
	}
	if rec.last == nil {
		t.Error("recorder should see the failure")
	}
}

func TestFSSink_RejectsBadKeys(t *testing.T) {
	sink, _ := NewFSSink(t.TempDir())
	for _, key := range []string{"", "../escape", "/abs"} {
		if err := sink.Put(context.Background(), key, []byte("x"), ""); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
	if _, err := NewFSSink(""); err == nil {
		t.Error("empty root should be rejected")
	}
}

// fakeS3 is a minimal S3 endpoint that accepts path-style PutObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	deny    bool
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPut {
		return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	if f.deny {
		body := `<?xml version="1.0"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`
		return &http.Response{StatusCode: http.StatusForbidden, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{"Content-Type": {"application/xml"}}}, nil
	}
	body, _ := io.ReadAll(req.Body)
	f.mu.Lock()
	f.objects[strings.TrimPrefix(req.URL.Path, "/")] = body
	f.mu.Unlock()
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {`"etag"`}}}, nil
}

func newFakeS3Sink(t *testing.T, fake *fakeS3) *S3Sink {
	t.Helper()
	sink, err := NewS3Sink(context.Background(), S3Config{
		Bucket:          "exports",
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		Prefix:          "/formcadence/",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		t.Fatalf("NewS3Sink failed: %v", err)
	}
	return sink
}

func TestExporter_S3Sink(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	sink := newFakeS3Sink(t, fake)
	if sink.Name() != "s3://exports/formcadence" {
		t.Errorf("unexpected sink name %q", sink.Name())
	}
	if _, err := NewExporter("trial", seededStore(t), sink).Export(context.Background(), exportAt); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	for _, name := range []string{"participants.jsonl", "completions.jsonl", "skips.jsonl", "manifest.json"} {
		key := "exports/formcadence/trial/20241106T020000Z/" + name
		if _, ok := fake.objects[key]; !ok {
			t.Errorf("object %s not uploaded; have %d objects", key, len(fake.objects))
		}
	}
	body := fake.objects["exports/formcadence/trial/20241106T020000Z/completions.jsonl"]
	if !bytes.Contains(body, []byte(`"form_id":"demographics"`)) {
		t.Errorf("uploaded completions missing rows: %q", body)
	}
}

func TestS3Sink_Failures(t *testing.T) {
	if _, err := NewS3Sink(context.Background(), S3Config{}); err == nil {
		t.Error("missing bucket should be rejected")
	}
	sink := newFakeS3Sink(t, &fakeS3{objects: map[string][]byte{}, deny: true})
	if err := sink.Put(context.Background(), "a.json", []byte("{}"), "application/json"); err == nil {
		t.Error("expected upload failure")
	}
	if err := sink.Put(context.Background(), "../a.json", []byte("{}"), ""); err == nil {
		t.Error("expected key rejection")
	}
}

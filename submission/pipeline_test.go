package submission

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/originality/artifact"
	"github.com/hazyhaar/originality/dbopen"
	"github.com/hazyhaar/originality/docpipe"
	"github.com/hazyhaar/originality/idgen"
	"github.com/hazyhaar/originality/kit"
	"github.com/hazyhaar/originality/observability"
	"github.com/hazyhaar/originality/pathsafe"
	"github.com/hazyhaar/originality/report"
	"github.com/hazyhaar/originality/scoring"
)

var testNow = time.Date(2026, 10, 5, 14, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "word"
	}
	return strings.Join(w, " ")
}

func mockEngine() *scoring.Engine {
	return scoring.NewEngine(scoring.Config{
		Provider: "mock",
		Logger:   quietLogger(),
		Rand:     rand.New(rand.NewPCG(7, 11)),
	})
}

// newTestPipeline builds a pipeline over a temp directory with the mock
// scorer. It returns the pipeline and the storage base.
func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, string) {
	t.Helper()
	base := t.TempDir()
	store := artifact.NewWithBackend(artifact.NewFSBackend(base), artifact.Config{Logger: quietLogger()})
	return newPipelineWithStore(t, store, opts...), base
}

func newPipelineWithStore(t *testing.T, store *artifact.Store, opts ...Option) *Pipeline {
	t.Helper()
	docs := docpipe.New(docpipe.Config{Logger: quietLogger()})
	base := []Option{WithLogger(quietLogger()), WithClock(func() time.Time { return testNow })}
	return New(store, docs, mockEngine(), append(base, opts...)...)
}

func readStored(t *testing.T, base, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func countFiles(t *testing.T, base string) int {
	t.Helper()
	n := 0
	filepath.WalkDir(base, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return nil
	})
	return n
}

func TestSubmit_MockFiftyWords(t *testing.T) {
	// WHAT: a 50-word text file scored by the mock provider.
	// WHY: the report must carry the exact word count and the severity
	// matching the score.
	p, base := newTestPipeline(t)
	out, err := p.Submit(context.Background(), Upload{
		CourseName:       "CS 101",
		AssignmentTitle:  "Essay 1",
		OriginalFilename: "essay.txt",
		Content:          []byte(words(50)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.WordCount != 50 {
		t.Errorf("WordCount = %d, want 50", out.WordCount)
	}
	if out.ExtractionError != "" {
		t.Errorf("ExtractionError = %q", out.ExtractionError)
	}
	res := out.Result
	if res.Provider != scoring.LocalName || !res.Fallback {
		t.Errorf("result = %+v, want mock fallback", res)
	}
	// 50 words: 15 base + up to 20 jitter.
	if res.Score < 15 || res.Score > 35 {
		t.Errorf("score = %v, want [15, 35]", res.Score)
	}
	if !strings.HasPrefix(out.OriginalPath, "CS_101/Essay_1/") || !strings.HasSuffix(out.OriginalPath, ".txt") {
		t.Errorf("OriginalPath = %q", out.OriginalPath)
	}
	if out.ReportPath != "CS_101/Essay_1/essay-report.txt" {
		t.Errorf("ReportPath = %q", out.ReportPath)
	}
	if got := readStored(t, base, out.OriginalPath); got != words(50) {
		t.Errorf("stored original differs")
	}

	text := readStored(t, base, out.ReportPath)
	for _, want := range []string{
		"Word Count: 50 words",
		"Severity Level: " + string(report.ClassifySeverity(res.Score)),
		"Provider: Mock Checker (DEMO MODE)",
		"Generated: 2026-10-05 14:00:00 UTC",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestSubmit_TraversalInCourse(t *testing.T) {
	// WHAT: a course name built to climb out of the upload directory.
	// WHY: user input must never steer where files land.
	p, base := newTestPipeline(t)
	out, err := p.Submit(context.Background(), Upload{
		CourseName:       "../../etc/passwd.txt",
		AssignmentTitle:  "A1",
		OriginalFilename: "x.txt",
		Content:          []byte("hello"),
	})
	if err != nil {
		t.Fatal(err)
	}
	segs := strings.Split(out.OriginalPath, "/")
	if len(segs) != 3 {
		t.Fatalf("OriginalPath = %q, want 3 segments", out.OriginalPath)
	}
	if strings.Contains(segs[0], "..") {
		t.Errorf("course segment %q contains ..", segs[0])
	}
	if strings.Contains(out.OriginalPath, "..") || strings.Contains(out.ReportPath, "..") {
		t.Errorf("paths escape: %q %q", out.OriginalPath, out.ReportPath)
	}
	if _, err := os.Stat(filepath.Join(base, filepath.FromSlash(out.OriginalPath))); err != nil {
		t.Errorf("original not under base: %v", err)
	}
}

func truncatedDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, `<w:document><w:body><w:p><w:r><w:t>`+words(200)+`</w:t></w:r></w:p></w:body></w:document>`)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()[:buf.Len()/2]
}

func TestSubmit_TruncatedDocx(t *testing.T) {
	// WHAT: a docx cut in half.
	// WHY: a broken document still yields an Outcome and a report that
	// explains the extraction failure.
	p, base := newTestPipeline(t)
	out, err := p.Submit(context.Background(), Upload{
		CourseName:       "Bio",
		AssignmentTitle:  "Lab",
		OriginalFilename: "lab.docx",
		Content:          truncatedDocx(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.ExtractionError == "" {
		t.Error("ExtractionError is empty")
	}
	if out.WordCount != 0 {
		t.Errorf("WordCount = %d, want 0", out.WordCount)
	}
	if out.ReportPath == "" {
		t.Fatal("no report stored")
	}
	text := readStored(t, base, out.ReportPath)
	for _, want := range []string{"Word Count: 0 words", "Note: No text could be extracted"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestSubmit_LogsRequestOrigin(t *testing.T) {
	// WHAT: The completion log line carries transport and remote address.
	var logs bytes.Buffer
	p, _ := newTestPipeline(t, WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))
	ctx := kit.WithTransport(context.Background(), "cli")
	ctx = kit.WithRemoteAddr(ctx, "192.0.2.7:5000")
	if _, err := p.Submit(ctx, Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: []byte("one two")}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"transport":"cli"`, `"remote_addr":"192.0.2.7:5000"`} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("logs missing %s:\n%s", want, logs.String())
		}
	}
}

func TestExtractionNote(t *testing.T) {
	// WHAT: Failed extraction and scanned PDFs get a note; clean text none.
	// WHY: An image-only PDF scores near zero, which reads as "original"
	// unless the report says why.
	tests := []struct {
		name string
		doc  *docpipe.Document
		err  error
		want string
	}{
		{"clean", &docpipe.Document{Text: "hello"}, nil, ""},
		{"clean pdf", &docpipe.Document{Quality: &docpipe.ExtractionQuality{PageCount: 2, CharsPerPage: 900, PrintableRatio: 1}}, nil, ""},
		{"scanned pdf", &docpipe.Document{Quality: &docpipe.ExtractionQuality{PageCount: 3, CharsPerPage: 4, PrintableRatio: 1, HasImageStreams: true}}, nil, ocrNote},
		{"failed", nil, errors.New("docpipe: corrupt docx: open zip"), "No text could be extracted from the document (docpipe: corrupt docx: open zip)."},
	}
	for _, tt := range tests {
		if got := extractionNote(tt.doc, tt.err); got != tt.want {
			t.Errorf("%s: note = %q, want %q", tt.name, got, tt.want)
		}
	}

	p, _ := newTestPipeline(t)
	body := p.render(&scoring.Result{Provider: scoring.LocalName, Score: 1.5}, ocrNote)
	if !strings.Contains(body, "Note: "+ocrNote) {
		t.Errorf("report missing OCR note:\n%s", body)
	}
}

func TestSubmit_Rejected(t *testing.T) {
	tests := []struct {
		name string
		up   Upload
		want error
	}{
		{"no course", Upload{AssignmentTitle: "a", OriginalFilename: "f.txt"}, ErrInvalidUpload},
		{"blank assignment", Upload{CourseName: "c", AssignmentTitle: "  ", OriginalFilename: "f.txt"}, ErrInvalidUpload},
		{"no filename", Upload{CourseName: "c", AssignmentTitle: "a"}, ErrInvalidUpload},
		{"unsupported", Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "run.exe"}, docpipe.ErrUnsupportedFormat},
		{"too large", Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: make([]byte, 11)}, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, base := newTestPipeline(t, WithMaxUploadBytes(10))
			out, err := p.Submit(context.Background(), tt.up)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if out != nil {
				t.Errorf("out = %+v, want nil", out)
			}
			if n := countFiles(t, base); n != 0 {
				t.Errorf("%d files written for a rejected upload", n)
			}
		})
	}
}

func TestSubmit_UnsupportedIsArtifactSentinel(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Submit(context.Background(), Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "a.odt"})
	if !errors.Is(err, artifact.ErrUnsupportedFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestSubmit_CancelledBeforeStore(t *testing.T) {
	p, base := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Submit(ctx, Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: []byte("x")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := countFiles(t, base); n != 0 {
		t.Errorf("%d files written", n)
	}
}

// hookBackend runs a callback after each successful write and can refuse
// report writes.
type hookBackend struct {
	*artifact.FSBackend
	afterWrite  func(rel string)
	failReports bool
}

func (b *hookBackend) Write(ctx context.Context, rel string, data []byte) error {
	if b.failReports && strings.HasSuffix(rel, "-report.txt") {
		return &artifact.IOError{Op: "write", Path: rel, Err: errors.New("disk full")}
	}
	if err := b.FSBackend.Write(ctx, rel, data); err != nil {
		return err
	}
	if b.afterWrite != nil {
		b.afterWrite(rel)
	}
	return nil
}

func TestSubmit_CancelledAfterStore(t *testing.T) {
	// WHAT: the caller cancels right after the original is written.
	// WHY: a stored original must always produce an Outcome and a report.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := &hookBackend{FSBackend: artifact.NewFSBackend(t.TempDir()), afterWrite: func(string) { cancel() }}
	p := newPipelineWithStore(t, artifact.NewWithBackend(b, artifact.Config{Logger: quietLogger()}))

	out, err := p.Submit(ctx, Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: []byte(words(5))})
	if err != nil {
		t.Fatal(err)
	}
	if out.ReportPath == "" {
		t.Error("report was not stored after cancellation")
	}
	if out.WordCount != 5 {
		t.Errorf("WordCount = %d", out.WordCount)
	}
}

func TestSubmit_ReportStoreFailureIsAbsorbed(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))
	events := observability.NewEventLogger(db, observability.WithEventLogger(quietLogger()))
	b := &hookBackend{FSBackend: artifact.NewFSBackend(t.TempDir()), failReports: true}
	p := newPipelineWithStore(t, artifact.NewWithBackend(b, artifact.Config{Logger: quietLogger()}), WithEvents(events))

	out, err := p.Submit(context.Background(), Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: []byte("x y")})
	if err != nil {
		t.Fatal(err)
	}
	if out.ReportPath != "" {
		t.Errorf("ReportPath = %q, want empty", out.ReportPath)
	}
	if out.OriginalPath == "" {
		t.Error("OriginalPath is empty")
	}

	evs, err := events.ForSubmission(context.Background(), out.ID)
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, ev := range evs {
		kinds = append(kinds, ev.Kind)
	}
	want := []string{observability.EventSubmitted, observability.EventScored, observability.EventReportStoreFailed}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds (-want +got):\n%s", diff)
	}
}

func TestSubmit_EventsAndMetrics(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))
	mm := observability.NewMetricsManager(db, 100, time.Hour, observability.WithMetricsLogger(quietLogger()))
	t.Cleanup(func() { mm.Close() })
	events := observability.NewEventLogger(db, observability.WithEventLogger(quietLogger()))
	p, _ := newTestPipeline(t,
		WithMetrics(mm),
		WithEvents(events),
		WithIDGenerator(idgen.Sequence("sub-1")),
	)

	out, err := p.Submit(context.Background(), Upload{
		CourseName:       "c",
		AssignmentTitle:  "a",
		OriginalFilename: "bad.docx",
		Content:          []byte("not a zip archive"),
		StudentName:      "Ada Lovelace",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != "sub-1" {
		t.Errorf("ID = %q", out.ID)
	}

	evs, err := events.ForSubmission(context.Background(), "sub-1")
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, ev := range evs {
		kinds = append(kinds, ev.Kind)
		if ev.StudentName != "Ada Lovelace" {
			t.Errorf("event %s student = %q", ev.Kind, ev.StudentName)
		}
	}
	want := []string{
		observability.EventSubmitted,
		observability.EventExtractionFailed,
		observability.EventScored,
		observability.EventReportStored,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds (-want +got):\n%s", diff)
	}

	mm.Flush()
	for _, name := range []string{
		observability.MetricSubmissionTotal,
		observability.MetricSubmissionDurationMs,
		observability.MetricExtractionFailed,
	} {
		got, err := mm.Query(context.Background(), name, nil, nil, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Errorf("metric %s: %d points, want 1", name, len(got))
		}
	}
}

// stubScorer returns a fixed result.
type stubScorer struct {
	res  scoring.Result
	name string
}

func (s *stubScorer) Score(_ context.Context, text string) *scoring.Result {
	r := s.res
	r.WordCount = scoring.CountWords(text)
	return &r
}

func (s *stubScorer) ProviderName() string { return s.name }

func TestSubmit_PendingScanRendersPlaceholder(t *testing.T) {
	base := t.TempDir()
	store := artifact.NewWithBackend(artifact.NewFSBackend(base), artifact.Config{Logger: quietLogger()})
	scorer := &stubScorer{
		name: "Copyleaks",
		res:  scoring.Result{Provider: "Copyleaks", Status: scoring.StatusPending, ScanID: "scan-42"},
	}
	p := New(store, docpipe.New(docpipe.Config{Logger: quietLogger()}), scorer,
		WithLogger(quietLogger()), WithClock(func() time.Time { return testNow }))

	out, err := p.Submit(context.Background(), Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: []byte("one two")})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Result.Pending() || out.Result.ScanID != "scan-42" {
		t.Errorf("result = %+v", out.Result)
	}
	want := report.RenderPending("Copyleaks", "scan-42", testNow)
	if got := readStored(t, base, out.ReportPath); got != want {
		t.Errorf("report mismatch:\n%s", got)
	}
}

func TestSubmit_ProviderFallbackEvent(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))
	events := observability.NewEventLogger(db, observability.WithEventLogger(quietLogger()))
	store := artifact.NewWithBackend(artifact.NewFSBackend(t.TempDir()), artifact.Config{Logger: quietLogger()})
	scorer := &stubScorer{
		name: "RapidAPI Plagiarism Checker",
		res:  scoring.Result{Provider: scoring.LocalName, Fallback: true, Status: scoring.StatusScored, Score: 12},
	}
	p := New(store, docpipe.New(docpipe.Config{Logger: quietLogger()}), scorer,
		WithLogger(quietLogger()), WithEvents(events), WithIDGenerator(idgen.Sequence("sub-fb")))

	if _, err := p.Submit(context.Background(), Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	evs, err := events.ForSubmission(context.Background(), "sub-fb")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, ev := range evs {
		if ev.Kind == observability.EventProviderFallback {
			found = true
			if ev.Provider != "RapidAPI Plagiarism Checker" || ev.Success {
				t.Errorf("fallback event = %+v", ev)
			}
		}
	}
	if !found {
		t.Error("no provider_fallback event")
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []CompletedEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev CompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestSubmit_Publishes(t *testing.T) {
	pub := &recordingPublisher{}
	p, _ := newTestPipeline(t, WithPublisher(pub), WithIDGenerator(idgen.Sequence("sub-p")))
	out, err := p.Submit(context.Background(), Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: []byte(words(3))})
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != EventCompleted || ev.SubmissionID != "sub-p" || ev.WordCount != 3 ||
		ev.ReportPath != out.ReportPath || ev.Provider != scoring.LocalName || !ev.CompletedAt.Equal(testNow) {
		t.Errorf("event = %+v", ev)
	}
}

func TestSubmit_PublishFailureIsAbsorbed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	p, _ := newTestPipeline(t, WithPublisher(pub))
	if _, err := p.Submit(context.Background(), Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: []byte("x")}); err != nil {
		t.Fatalf("publish failure leaked: %v", err)
	}
}

func TestFetchStoredBytes(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	out, err := p.Submit(ctx, Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "notes.txt", Content: []byte("alpha beta")})
	if err != nil {
		t.Fatal(err)
	}

	data, mime, err := p.FetchStoredBytes(ctx, out.OriginalPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "alpha beta" || mime != "text/plain" {
		t.Errorf("got %q %q", data, mime)
	}

	_, mime, err = p.FetchStoredBytes(ctx, "/"+out.ReportPath)
	if err != nil {
		t.Fatal(err)
	}
	if mime != "text/plain" {
		t.Errorf("report mime = %q", mime)
	}

	for _, rel := range []string{"../secret.txt", "c/../../x.txt", `c\..\..\x.txt`} {
		if _, _, err := p.FetchStoredBytes(ctx, rel); !errors.Is(err, pathsafe.ErrPathTraversal) {
			t.Errorf("FetchStoredBytes(%q) err = %v, want traversal", rel, err)
		}
	}

	// A dotted file name is not traversal: it is looked up and not found.
	for _, rel := range []string{"c/a/missing.docx", "c/a/draft..v2.txt", "", "/"} {
		if _, _, err := p.FetchStoredBytes(ctx, rel); !errors.Is(err, artifact.ErrNotFound) {
			t.Errorf("FetchStoredBytes(%q) err = %v, want ErrNotFound", rel, err)
		}
	}
}

func TestSubmitBatch(t *testing.T) {
	p, _ := newTestPipeline(t)
	uploads := []Upload{
		{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "one.txt", Content: []byte(words(1))},
		{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "two.exe", Content: []byte("MZ")},
		{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "three.txt", Content: []byte(words(3))},
	}
	results := p.SubmitBatch(context.Background(), uploads, 2)
	if len(results) != 3 {
		t.Fatalf("%d results", len(results))
	}
	if results[0].Err != nil || results[0].Outcome.WordCount != 1 {
		t.Errorf("result 0 = %+v", results[0])
	}
	if !errors.Is(results[1].Err, docpipe.ErrUnsupportedFormat) || results[1].Outcome != nil {
		t.Errorf("result 1 = %+v", results[1])
	}
	if results[2].Err != nil || results[2].Outcome.WordCount != 3 {
		t.Errorf("result 2 = %+v", results[2])
	}
	if results[2].Upload.OriginalFilename != "three.txt" {
		t.Errorf("results out of order")
	}
}

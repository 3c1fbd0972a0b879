// Package submission runs one uploaded document through the whole
// originality flow:
//
//	validate → store original → extract → score → render → store report → publish
//
// Once the original is on disk the submission always yields an Outcome:
// extraction failures produce an empty text with a note in the report,
// provider failures fall back to the local heuristic, and a failed report
// write leaves Outcome.ReportPath empty.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/originality/artifact"
	"github.com/hazyhaar/originality/docpipe"
	"github.com/hazyhaar/originality/idgen"
	"github.com/hazyhaar/originality/kit"
	"github.com/hazyhaar/originality/observability"
	"github.com/hazyhaar/originality/pathsafe"
	"github.com/hazyhaar/originality/report"
	"github.com/hazyhaar/originality/scoring"
)

// ErrInvalidUpload is returned for uploads missing a course, an assignment
// or a filename.
var ErrInvalidUpload = errors.New("invalid upload")

// ErrTooLarge is returned when the upload exceeds the configured limit.
var ErrTooLarge = errors.New("upload too large")

// Upload is one student file to process.
type Upload struct {
	CourseName       string `json:"course_name"`
	AssignmentTitle  string `json:"assignment_title"`
	OriginalFilename string `json:"original_filename"`
	Content          []byte `json:"-"`
	// StudentName is optional and only used for logs and events.
	StudentName string `json:"student_name,omitempty"`
}

// Outcome is the result of a completed submission.
type Outcome struct {
	ID              string          `json:"id"`
	WordCount       int             `json:"word_count"`
	Result          *scoring.Result `json:"result"`
	OriginalPath    string          `json:"original_path"`
	ReportPath      string          `json:"report_path"`
	ExtractionError string          `json:"extraction_error,omitempty"`
	// NeedsOCR marks a PDF whose pages are mostly scanned images.
	NeedsOCR bool          `json:"needs_ocr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Scorer is the part of scoring.Engine the pipeline uses.
type Scorer interface {
	Score(ctx context.Context, text string) *scoring.Result
	ProviderName() string
}

// Pipeline wires the store, the extractor and the scorer.
type Pipeline struct {
	store     *artifact.Store
	docs      *docpipe.Pipeline
	scorer    Scorer
	metrics   *observability.MetricsManager
	events    *observability.EventLogger
	publisher Publisher
	newID     idgen.Generator
	logger    *slog.Logger
	now       func() time.Time
	maxUpload int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics enables metrics recording.
func WithMetrics(mm *observability.MetricsManager) Option {
	return func(p *Pipeline) { p.metrics = mm }
}

// WithEvents enables business event logging.
func WithEvents(el *observability.EventLogger) Option {
	return func(p *Pipeline) { p.events = el }
}

// WithPublisher announces every Outcome to pub.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithIDGenerator sets a custom ID generator for submission IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(p *Pipeline) { p.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMaxUploadBytes rejects larger uploads with ErrTooLarge. Zero disables
// the check.
func WithMaxUploadBytes(n int64) Option {
	return func(p *Pipeline) { p.maxUpload = n }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline.
func New(store *artifact.Store, docs *docpipe.Pipeline, scorer Scorer, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		docs:   docs,
		scorer: scorer,
		newID:  idgen.Prefixed("sub_", idgen.Default),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) validate(up Upload) error {
	switch {
	case strings.TrimSpace(up.CourseName) == "":
		return fmt.Errorf("%w: course name is required", ErrInvalidUpload)
	case strings.TrimSpace(up.AssignmentTitle) == "":
		return fmt.Errorf("%w: assignment title is required", ErrInvalidUpload)
	case strings.TrimSpace(up.OriginalFilename) == "":
		return fmt.Errorf("%w: filename is required", ErrInvalidUpload)
	}
	if !docpipe.IsSupported(up.OriginalFilename) {
		return &docpipe.UnsupportedFormatError{Ext: docpipe.Ext(up.OriginalFilename)}
	}
	if p.maxUpload > 0 && int64(len(up.Content)) > p.maxUpload {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(up.Content), p.maxUpload)
	}
	return nil
}

// Submit processes one upload. It fails only before the original is
// stored; after that every problem is absorbed into the Outcome.
func (p *Pipeline) Submit(ctx context.Context, up Upload) (*Outcome, error) {
	start := time.Now()
	if err := p.validate(up); err != nil {
		p.metrics.Count(observability.MetricSubmissionTotal, "status", "rejected")
		return nil, err
	}

	id := p.newID()
	log := p.logger.With("submission_id", id, "course", up.CourseName, "assignment", up.AssignmentTitle,
		"transport", kit.GetTransport(ctx))
	if rid := kit.GetRequestID(ctx); rid != "" {
		log = log.With("request_id", rid)
	}
	if addr := kit.GetRemoteAddr(ctx); addr != "" {
		log = log.With("remote_addr", addr)
	}

	orig, err := p.store.StoreOriginal(ctx, up.CourseName, up.AssignmentTitle, up.OriginalFilename, up.Content)
	if err != nil {
		p.metrics.Count(observability.MetricSubmissionTotal, "status", "store_failed")
		log.ErrorContext(ctx, "store original failed", "error", err)
		return nil, fmt.Errorf("store original: %w", err)
	}

	// The original is durable: finish the submission even if the caller
	// goes away.
	ctx = context.WithoutCancel(ctx)
	out := &Outcome{ID: id, OriginalPath: orig.RelPath}
	p.recordEvent(ctx, up, id, observability.EventSubmitted, "", orig.RelPath, true)

	var text string
	doc, extractErr := p.docs.Extract(ctx, up.OriginalFilename, up.Content)
	note := extractionNote(doc, extractErr)
	switch {
	case extractErr != nil:
		out.ExtractionError = extractErr.Error()
		log.WarnContext(ctx, "text extraction failed", "filename", up.OriginalFilename, "error", extractErr)
		p.metrics.Count(observability.MetricExtractionFailed, "format", docpipe.Ext(up.OriginalFilename))
		p.recordEvent(ctx, up, id, observability.EventExtractionFailed, "", out.ExtractionError, false)
	case doc.Quality.NeedsOCR():
		text = doc.Text
		out.NeedsOCR = true
		log.InfoContext(ctx, "document looks scanned", "filename", up.OriginalFilename,
			"pages", doc.Quality.PageCount, "chars_per_page", doc.Quality.CharsPerPage)
	default:
		text = doc.Text
	}

	res := p.scorer.Score(ctx, text)
	out.Result = res
	out.WordCount = res.WordCount
	if res.Fallback && res.Provider != p.scorer.ProviderName() {
		p.recordEvent(ctx, up, id, observability.EventProviderFallback, p.scorer.ProviderName(), "", false)
	}
	p.recordEvent(ctx, up, id, observability.EventScored, res.Provider,
		fmt.Sprintf("status=%s score=%.2f", res.Status, res.Score), true)

	body := p.render(res, note)
	rep, err := p.store.StoreReport(ctx, up.CourseName, up.AssignmentTitle, up.OriginalFilename, body)
	if err != nil {
		log.ErrorContext(ctx, "store report failed", "error", err)
		p.metrics.Count(observability.MetricReportStoreFailed)
		p.recordEvent(ctx, up, id, observability.EventReportStoreFailed, "", err.Error(), false)
	} else {
		out.ReportPath = rep.RelPath
		p.recordEvent(ctx, up, id, observability.EventReportStored, "", rep.RelPath, true)
	}

	out.Duration = time.Since(start)
	p.metrics.Count(observability.MetricSubmissionTotal, "status", "completed", "provider", res.Provider)
	p.metrics.Observe(observability.MetricSubmissionDurationMs, float64(out.Duration.Milliseconds()), "ms")
	log.InfoContext(ctx, "submission completed",
		"original_path", out.OriginalPath,
		"report_path", out.ReportPath,
		"words", out.WordCount,
		"score", res.Score,
		"status", res.Status,
		"provider", res.Provider,
		"fallback", res.Fallback,
		"duration_ms", out.Duration.Milliseconds(),
	)

	p.publish(ctx, up, out, log)
	return out, nil
}

const ocrNote = "The document appears to be scanned images; little text could be extracted, so the score may understate copying. Submit a text-based file or run it through OCR first."

// extractionNote is the report note for an extraction outcome, empty when
// the text came out clean.
func extractionNote(doc *docpipe.Document, err error) string {
	switch {
	case err != nil:
		return "No text could be extracted from the document (" + err.Error() + ")."
	case doc.Quality.NeedsOCR():
		return ocrNote
	}
	return ""
}

func (p *Pipeline) render(res *scoring.Result, note string) string {
	at := p.now()
	if res.Pending() {
		return report.RenderPending(res.Provider, res.ScanID, at)
	}
	in := report.Input{
		Provider:    res.Provider,
		Score:       res.Score,
		WordCount:   res.WordCount,
		Fallback:    res.Fallback,
		GeneratedAt: at,
	}
	for _, s := range res.Sources {
		in.Sources = append(in.Sources, report.Source{URL: s.URL, Similarity: s.Similarity, Title: s.Title})
	}
	in.ExtractionNote = note
	return report.Render(in)
}

func (p *Pipeline) publish(ctx context.Context, up Upload, out *Outcome, log *slog.Logger) {
	if p.publisher == nil {
		return
	}
	ev := newCompletedEvent(up, out, p.now())
	if err := p.publisher.Publish(ctx, ev); err != nil {
		log.WarnContext(ctx, "publish outcome failed", "error", err)
		p.recordEvent(ctx, up, out.ID, observability.EventOutcomePublishFail, "", err.Error(), false)
		return
	}
	p.recordEvent(ctx, up, out.ID, observability.EventOutcomePublished, "", EventCompleted, true)
}

func (p *Pipeline) recordEvent(ctx context.Context, up Upload, id, kind, provider, detail string, ok bool) {
	if p.events == nil {
		return
	}
	p.events.Log(ctx, observability.SubmissionEvent{
		Kind:         kind,
		SubmissionID: id,
		StudentName:  up.StudentName,
		Course:       up.CourseName,
		Assignment:   up.AssignmentTitle,
		Provider:     provider,
		Detail:       detail,
		Success:      ok,
	})
}

// FetchStoredBytes returns a stored artifact and its MIME type. rel is
// relative to the store base; any ".." segment is rejected.
func (p *Pipeline) FetchStoredBytes(ctx context.Context, rel string) ([]byte, string, error) {
	rel, err := pathsafe.RelPath(rel)
	if err != nil {
		return nil, "", err
	}
	if rel == "" {
		return nil, "", artifact.ErrNotFound
	}
	data, err := p.store.Retrieve(ctx, p.store.Resolve(rel))
	if err != nil {
		return nil, "", err
	}
	return data, docpipe.MimeType(rel), nil
}

// BatchResult pairs an upload with its Outcome or error.
type BatchResult struct {
	Upload  Upload
	Outcome *Outcome
	Err     error
}

// SubmitBatch runs uploads with at most parallel in flight. A failing
// upload does not stop the others; results keep the input order.
func (p *Pipeline) SubmitBatch(ctx context.Context, uploads []Upload, parallel int) []BatchResult {
	if parallel <= 0 {
		parallel = 1
	}
	results := make([]BatchResult, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, up := range uploads {
		g.Go(func() error {
			out, err := p.Submit(gctx, up)
			results[i] = BatchResult{Upload: up, Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

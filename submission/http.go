package submission

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/originality/artifact"
	"github.com/hazyhaar/originality/connectivity"
	"github.com/hazyhaar/originality/docpipe"
	"github.com/hazyhaar/originality/idgen"
	"github.com/hazyhaar/originality/kit"
	"github.com/hazyhaar/originality/observability"
	"github.com/hazyhaar/originality/pathsafe"
	"github.com/hazyhaar/originality/scoring"
	"github.com/hazyhaar/originality/shield"
)

// HTTPConfig holds the optional collaborators of the HTTP surface.
type HTTPConfig struct {
	// MaxUploadBytes bounds the multipart body. Default 50 MB.
	MaxUploadBytes int64
	Tracker        *scoring.ScanTracker
	Events         *observability.EventLogger
	Logger         *slog.Logger
	RequestIDs     idgen.Generator
	// RateLimiter is optional; nil serves without limits.
	RateLimiter *shield.RateLimiter
}

// NewRouter exposes the pipeline over HTTP:
//
//	POST /v1/submissions                   multipart: course, assignment, student, file
//	GET  /v1/submissions/{id}/events       event trail of one submission
//	GET  /v1/artifacts/*                   stored original or report
//	GET  /v1/scans?status=pending          scans still awaiting a verdict
//	GET  /v1/scans/{id}                    state of an asynchronous scan
//	POST /api/plagiarism/webhook/{id}      Copyleaks completion webhook
//	GET  /v1/health
func NewRouter(p *Pipeline, cfg HTTPConfig) http.Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestIDs == nil {
		cfg.RequestIDs = idgen.Prefixed("req_", idgen.Default)
	}
	h := &httpHandler{p: p, cfg: cfg}

	r := chi.NewRouter()
	r.Use(requestContext(cfg.RequestIDs))
	r.Use(shield.Stack(cfg.RateLimiter)...)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Post("/submissions", h.submit)
		r.Get("/submissions/{id}/events", h.events)
		r.Get("/artifacts/*", h.artifact)
		r.Get("/scans", h.scans)
		r.Get("/scans/{id}", h.scan)
	})
	r.Post("/api/plagiarism/webhook/{id}", h.webhook)
	return r
}

// requestContext stamps every request with an ID (reusing X-Request-ID when
// the client sent one), the transport and the remote address.
func requestContext(ids idgen.Generator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || pathsafe.ValidateIdentifier(id) != nil || len(id) > 128 {
				id = ids()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type httpHandler struct {
	p   *Pipeline
	cfg HTTPConfig
}

// breakerSource is implemented by scorers that guard a remote provider.
type breakerSource interface {
	Breaker() *connectivity.CircuitBreaker
}

type healthStatus struct {
	Status       string                        `json:"status"`
	Provider     string                        `json:"provider"`
	Breaker      *connectivity.BreakerSnapshot `json:"breaker,omitempty"`
	PendingScans *int                          `json:"pending_scans,omitempty"`
}

// health reports "degraded" while the provider breaker is not closed:
// submissions still succeed, scored by the local heuristic.
func (h *httpHandler) health(w http.ResponseWriter, r *http.Request) {
	st := healthStatus{Status: "ok", Provider: h.p.scorer.ProviderName()}
	if bs, ok := h.p.scorer.(breakerSource); ok {
		if cb := bs.Breaker(); cb != nil {
			snap := cb.Snapshot()
			st.Breaker = &snap
			if snap.State != connectivity.BreakerClosed.String() {
				st.Status = "degraded"
			}
		}
	}
	if h.cfg.Tracker != nil {
		if n, err := h.cfg.Tracker.PendingCount(r.Context()); err == nil {
			st.PendingScans = &n
		}
	}
	writeJSON(w, 200, st)
}

func (h *httpHandler) submit(w http.ResponseWriter, r *http.Request) {
	// Multipart framing gets 1 MB on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, 413, ErrTooLarge)
			return
		}
		writeError(w, 400, err)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, 400, errors.New("file is required"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	if int64(len(data)) > h.cfg.MaxUploadBytes {
		writeError(w, 413, ErrTooLarge)
		return
	}

	out, err := h.p.Submit(r.Context(), Upload{
		CourseName:       r.FormValue("course"),
		AssignmentTitle:  r.FormValue("assignment"),
		OriginalFilename: hdr.Filename,
		Content:          data,
		StudentName:      r.FormValue("student"),
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 201, out)
}

func (h *httpHandler) artifact(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	data, mime, err := h.p.FetchStoredBytes(r.Context(), rel)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(rel)+`"`)
	w.WriteHeader(200)
	w.Write(data)
}

func (h *httpHandler) events(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Events == nil {
		writeError(w, 404, errors.New("event log disabled"))
		return
	}
	evs, err := h.cfg.Events.ForSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, evs)
}

func (h *httpHandler) scans(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Tracker == nil {
		writeError(w, 404, scoring.ErrScanNotFound)
		return
	}
	if r.URL.Query().Get("status") != scoring.StatusPending {
		writeError(w, 400, errors.New("status must be pending"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, 400, errors.New("invalid limit"))
			return
		}
		limit = n
	}
	list, err := h.cfg.Tracker.Pending(r.Context(), limit)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if list == nil {
		list = []*scoring.Scan{}
	}
	writeJSON(w, 200, list)
}

func (h *httpHandler) scan(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Tracker == nil {
		writeError(w, 404, scoring.ErrScanNotFound)
		return
	}
	scan, err := h.cfg.Tracker.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, scan)
}

func (h *httpHandler) webhook(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Tracker == nil {
		writeError(w, 404, scoring.ErrScanNotFound)
		return
	}
	body, err := pathsafe.LimitedReadAll(r.Body, pathsafe.MaxResponseBody)
	if err != nil {
		writeError(w, 413, err)
		return
	}
	scanID, res, err := scoring.ParseCompletion(body)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	if id := chi.URLParam(r, "id"); scanID == "" {
		scanID = id
	} else if scanID != id {
		writeError(w, 400, errors.New("scan id mismatch"))
		return
	}
	if err := h.cfg.Tracker.Complete(r.Context(), scanID, res); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.cfg.Logger.InfoContext(r.Context(), "scan completed", "scan_id", scanID, "score", res.Score)
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidUpload),
		errors.Is(err, docpipe.ErrUnsupportedFormat),
		errors.Is(err, pathsafe.ErrPathTraversal):
		return 400
	case errors.Is(err, ErrTooLarge):
		return 413
	case errors.Is(err, artifact.ErrNotFound),
		errors.Is(err, scoring.ErrScanNotFound):
		return 404
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

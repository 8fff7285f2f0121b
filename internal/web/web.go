package web

import (
    "context"
    "crypto/subtle"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/hlextract/internal/metrics"
    "github.com/local/hlextract/internal/output"
    "github.com/local/hlextract/internal/queue"
    "github.com/local/hlextract/internal/statuscheck"
    "github.com/local/hlextract/internal/store"
)

type Queue interface {
    Enqueue(ctx context.Context, job queue.Job) error
    CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
    Set(ctx context.Context, jobID string, st store.Status) error
    Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

type Checker interface {
    Summary(ctx context.Context) statuscheck.Summary
}

// Options configures the job API. Username and Password enable basic auth on
// /jobs; Bucket turns bare keys into s3:// references.
type Options struct {
    Queue    Queue
    Status   StatusStore
    Checker  Checker
    Username string
    Password string
    Bucket   string
}

type Web struct {
    q        Queue
    status   StatusStore
    checker  Checker
    username string
    password string
    bucket   string
}

func New(opts Options) *Web {
    return &Web{
        q:        opts.Queue,
        status:   opts.Status,
        checker:  opts.Checker,
        username: opts.Username,
        password: opts.Password,
        bucket:   opts.Bucket,
    }
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/health", func(wr http.ResponseWriter, r *http.Request) { wr.WriteHeader(http.StatusOK); _, _ = wr.Write([]byte("ok")) })
    mux.Handle("/metrics", metrics.Handler())
    mux.HandleFunc("/status", w.handleStatus)
    mux.HandleFunc("POST /jobs", w.requireAuth(w.handleCreate))
    mux.HandleFunc("GET /jobs/{id}", w.requireAuth(w.handleGet))
    mux.HandleFunc("DELETE /jobs/{id}", w.requireAuth(w.handleCancel))
}

func (w *Web) requireAuth(next http.HandlerFunc) http.HandlerFunc {
    return func(wr http.ResponseWriter, r *http.Request) {
        if w.username == "" { next(wr, r); return }
        u, p, ok := r.BasicAuth()
        if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(w.username)) != 1 ||
            subtle.ConstantTimeCompare([]byte(p), []byte(w.password)) != 1 {
            wr.Header().Set("WWW-Authenticate", `Basic realm="hlextract"`)
            http.Error(wr, "unauthorized", http.StatusUnauthorized)
            return
        }
        next(wr, r)
    }
}

type createReq struct {
    Input        string `json:"input"`
    TwoColumns   bool   `json:"two_columns"`
    Quality      int    `json:"quality"`
    Format       string `json:"format"`
    OutputFolder string `json:"output_folder"`
}

type createResp struct {
    Status  string `json:"status"`
    JobID   string `json:"job_id"`
    Message string `json:"message"`
}

func (w *Web) handleCreate(wr http.ResponseWriter, r *http.Request) {
    defer r.Body.Close()
    var req createReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(wr, "invalid json", http.StatusBadRequest); return
    }
    input := strings.TrimSpace(req.Input)
    if input == "" { http.Error(wr, "missing input", http.StatusBadRequest); return }
    if req.Quality < 0 { http.Error(wr, "quality must not be negative", http.StatusBadRequest); return }
    if req.Format != "" {
        if _, err := output.ParseFormat(req.Format); err != nil { http.Error(wr, err.Error(), http.StatusBadRequest); return }
    }
    input = w.qualify(input)

    job := queue.Job{
        ID:    uuid.NewString(),
        Input: input,
        Options: queue.JobOptions{TwoColumns: req.TwoColumns, Quality: req.Quality, Format: req.Format, OutputFolder: req.OutputFolder},
        Attempt: 1,
    }
    start := time.Now()
    if err := w.status.Set(r.Context(), job.ID, store.Status{Status: store.StatusQueued, Message: "queued", Start: &start,
        Metadata: map[string]interface{}{"input": input}}); err != nil {
        log.Warn().Err(err).Str("job_id", job.ID).Msg("status init failed")
    }
    if err := w.q.Enqueue(r.Context(), job); err != nil {
        log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
        http.Error(wr, "queue unavailable", http.StatusServiceUnavailable)
        return
    }
    log.Info().Str("job_id", job.ID).Str("file", input).Msg("job created")
    writeJSON(wr, http.StatusCreated, createResp{Status: "ok", JobID: job.ID, Message: "job queued"})
}

// qualify maps a bare object key onto the configured bucket.
func (w *Web) qualify(input string) string {
    if w.bucket == "" || strings.Contains(input, "://") || strings.HasPrefix(input, "/") { return input }
    return fmt.Sprintf("s3://%s/%s", w.bucket, strings.TrimPrefix(input, "/"))
}

func (w *Web) handleGet(wr http.ResponseWriter, r *http.Request) {
    id := r.PathValue("id")
    st, ok, err := w.status.Get(r.Context(), id)
    if err != nil { http.Error(wr, "status unavailable", http.StatusServiceUnavailable); return }
    if !ok { http.Error(wr, "job not found", http.StatusNotFound); return }
    writeJSON(wr, http.StatusOK, st)
}

func (w *Web) handleCancel(wr http.ResponseWriter, r *http.Request) {
    id := r.PathValue("id")
    st, ok, err := w.status.Get(r.Context(), id)
    if err != nil { http.Error(wr, "status unavailable", http.StatusServiceUnavailable); return }
    if !ok { http.Error(wr, "job not found", http.StatusNotFound); return }
    if st.Done() { http.Error(wr, "job already "+st.Status, http.StatusConflict); return }
    if err := w.q.CancelJob(r.Context(), id); err != nil {
        http.Error(wr, "queue unavailable", http.StatusServiceUnavailable); return
    }
    log.Info().Str("job_id", id).Msg("job cancel requested")
    wr.WriteHeader(http.StatusAccepted)
}

func (w *Web) handleStatus(wr http.ResponseWriter, r *http.Request) {
    if w.checker == nil { http.Error(wr, "no checker", http.StatusNotFound); return }
    s := w.checker.Summary(r.Context())
    code := http.StatusOK
    if !s.Healthy() { code = http.StatusServiceUnavailable }
    writeJSON(wr, code, s)
}

func writeJSON(wr http.ResponseWriter, code int, v any) {
    wr.Header().Set("Content-Type", "application/json")
    wr.WriteHeader(code)
    _ = json.NewEncoder(wr).Encode(v)
}

package dispatcher

import (
    "context"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/hlextract/internal/metrics"
    "github.com/local/hlextract/internal/orchestrator"
    "github.com/local/hlextract/internal/output"
    "github.com/local/hlextract/internal/queue"
    "github.com/local/hlextract/internal/store"
)

type Queue interface {
    Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, queue.Job, []byte, error)
    Ack(ctx context.Context, msgID string) error
    IsCancelled(ctx context.Context, jobID string) (bool, error)
    EnqueueDelayed(ctx context.Context, job queue.Job, executeAt time.Time) error
    AddDLQ(ctx context.Context, payload []byte, reason string) error
}

// depther is implemented by queues that can report their backlog.
type depther interface {
    Depths(ctx context.Context) (int64, int64, int64, error)
}

type StatusStore interface {
    Set(ctx context.Context, jobID string, st store.Status) error
}

type Config struct {
    Concurrency  int
    JobTimeout   time.Duration
    MaxAttempts  int
    BaseBackoff  time.Duration
    MaxBackoff   time.Duration
    PollTimeout  time.Duration
    Consumer     string
}

type processFunc func(ctx context.Context, input string, opts orchestrator.Options) (orchestrator.Outcome, error)

type Worker struct {
    cfg      Config
    q        Queue
    status   StatusStore
    defaults orchestrator.Options
    process  processFunc
    cancel   context.CancelFunc
    wg       sync.WaitGroup
}

func New(cfg Config, q Queue, status StatusStore, defaults orchestrator.Options) *Worker {
    if cfg.Concurrency <= 0 { cfg.Concurrency = 2 }
    if cfg.JobTimeout <= 0 { cfg.JobTimeout = 10 * time.Minute }
    if cfg.MaxAttempts <= 0 { cfg.MaxAttempts = 3 }
    if cfg.BaseBackoff <= 0 { cfg.BaseBackoff = 30 * time.Second }
    if cfg.MaxBackoff <= 0 { cfg.MaxBackoff = 5 * time.Minute }
    if cfg.PollTimeout <= 0 { cfg.PollTimeout = 2 * time.Second }
    if cfg.Consumer == "" {
        host, _ := os.Hostname()
        cfg.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
    }
    return &Worker{cfg: cfg, q: q, status: status, defaults: defaults, process: orchestrator.ProcessFile}
}

// Start launches the consumer goroutines. They run until Stop or until ctx
// is cancelled.
func (w *Worker) Start(ctx context.Context) {
    ctx, w.cancel = context.WithCancel(ctx)
    for i := 0; i < w.cfg.Concurrency; i++ {
        w.wg.Add(1)
        go w.loop(ctx, i)
    }
    if d, ok := w.q.(depther); ok {
        w.wg.Add(1)
        go w.reportDepths(ctx, d)
    }
}

// Stop cancels running jobs (they are requeued) and waits for the
// goroutines to exit or ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
    if w.cancel != nil { w.cancel() }
    done := make(chan struct{})
    go func() { w.wg.Wait(); close(done) }()
    select {
    case <-done:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

func (w *Worker) loop(ctx context.Context, id int) {
    defer w.wg.Done()
    consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, id)
    log.Info().Int("worker", id).Str("consumer", consumer).Msg("dispatcher worker started")
    for {
        if ctx.Err() != nil {
            log.Info().Int("worker", id).Msg("dispatcher worker stopped")
            return
        }

        msgID, job, payload, err := w.q.Dequeue(ctx, consumer, w.cfg.PollTimeout)
        switch {
        case errors.Is(err, queue.ErrMalformed):
            log.Error().Err(err).Str("msg_id", msgID).Msg("dropping malformed job")
            _ = w.q.AddDLQ(context.Background(), payload, err.Error())
            _ = w.q.Ack(context.Background(), msgID)
            metrics.IncJob("malformed")
            continue
        case err != nil:
            if ctx.Err() != nil { continue }
            log.Error().Err(err).Msg("queue dequeue error")
            sleep(ctx, 500*time.Millisecond)
            continue
        case msgID == "":
            continue
        }

        w.handle(ctx, msgID, job, payload)
    }
}

// handle runs one job and always acks it: success and fatal failures are
// final, retries and shutdown interruptions are scheduled again first.
func (w *Worker) handle(ctx context.Context, msgID string, job queue.Job, payload []byte) {
    bg := context.Background()
    defer func() {
        if err := w.q.Ack(bg, msgID); err != nil { log.Error().Err(err).Str("job_id", job.ID).Msg("ack failed") }
    }()
    if job.Attempt < 1 { job.Attempt = 1 }
    logger := log.With().Str("job_id", job.ID).Str("file", job.Input).Int("attempt", job.Attempt).Logger()

    if cancelled, _ := w.q.IsCancelled(bg, job.ID); cancelled {
        logger.Warn().Msg("job cancelled before processing; skipping")
        w.setStatus(job.ID, store.Status{Status: store.StatusCancelled, Message: "cancelled"})
        metrics.IncJob("cancelled")
        return
    }

    start := time.Now()
    w.setStatus(job.ID, store.Status{Status: store.StatusProcessing, Progress: 10, Message: "extracting", Start: &start,
        Metadata: map[string]interface{}{"input": job.Input, "attempt": job.Attempt}})

    jctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
    defer cancel()
    var out orchestrator.Outcome
    opts, err := w.optionsFor(job)
    if err == nil { out, err = w.process(jctx, job.Input, opts) }
    end := time.Now()

    switch {
    case err == nil:
        logger.Info().Str("output", out.Output).Int("texts", out.Texts).Int("images", out.Images).Msg("job done")
        w.setStatus(job.ID, store.Status{Status: store.StatusSuccess, Progress: 100, Message: "completed", Start: &start, End: &end,
            Metadata: map[string]interface{}{"input": job.Input, "output": out.Output, "sections": out.Sections, "texts": out.Texts, "images": out.Images}})
        metrics.IncJob("success")

    case ctx.Err() != nil:
        // shutdown: hand the job to another worker
        logger.Warn().Err(err).Msg("worker stopping; requeueing job")
        if qerr := w.q.EnqueueDelayed(bg, job, time.Now()); qerr != nil {
            logger.Error().Err(qerr).Msg("requeue failed")
        }
        w.setStatus(job.ID, store.Status{Status: store.StatusQueued, Message: "requeued on shutdown"})
        metrics.IncJob("requeued")

    case isTransientError(err) && job.Attempt < w.cfg.MaxAttempts:
        delay := retryBackoff(job.Attempt, w.cfg.BaseBackoff, w.cfg.MaxBackoff)
        logger.Warn().Err(err).Dur("retry_in", delay).Msg("transient failure; retrying")
        retry := job
        retry.Attempt++
        if qerr := w.q.EnqueueDelayed(bg, retry, time.Now().Add(delay)); qerr != nil {
            logger.Error().Err(qerr).Msg("scheduling retry failed")
            w.deadLetter(job, payload, err, start, end)
            return
        }
        w.setStatus(job.ID, store.Status{Status: store.StatusQueued, Message: fmt.Sprintf("retry %d scheduled: %v", retry.Attempt, err)})
        metrics.IncJob("retry")

    default:
        w.deadLetter(job, payload, err, start, end)
    }
}

func (w *Worker) deadLetter(job queue.Job, payload []byte, err error, start, end time.Time) {
    jobErr := &JobError{JobID: job.ID, Input: job.Input, Attempt: job.Attempt, Err: err}
    log.Error().Err(jobErr).Str("job_id", job.ID).Bool("fatal", isFatalError(err)).Msg("job failed")
    if qerr := w.q.AddDLQ(context.Background(), payload, jobErr.Error()); qerr != nil {
        log.Error().Err(qerr).Str("job_id", job.ID).Msg("dlq push failed")
    }
    w.setStatus(job.ID, store.Status{Status: store.StatusFailed, Message: err.Error(), Start: &start, End: &end,
        Metadata: map[string]interface{}{"input": job.Input, "attempt": job.Attempt}})
    metrics.IncJob("failed")
}

// optionsFor applies the job's overrides to the worker defaults.
func (w *Worker) optionsFor(job queue.Job) (orchestrator.Options, error) {
    opts := w.defaults
    o := job.Options
    if o.TwoColumns { opts.TwoColumns = true }
    if o.Quality < 0 { return opts, &ValidationError{Message: fmt.Sprintf("quality %d", o.Quality)} }
    if o.Quality > 0 { opts.Classify.Quality = o.Quality }
    if o.Format != "" {
        f, err := output.ParseFormat(o.Format)
        if err != nil { return opts, &ValidationError{Message: err.Error()} }
        opts.Format = f
    }
    if o.OutputFolder != "" { opts.OutputFolder = o.OutputFolder }
    return opts, nil
}

func (w *Worker) setStatus(jobID string, st store.Status) {
    if w.status == nil { return }
    if err := w.status.Set(context.Background(), jobID, st); err != nil {
        log.Warn().Err(err).Str("job_id", jobID).Msg("status update failed")
    }
}

func (w *Worker) reportDepths(ctx context.Context, d depther) {
    defer w.wg.Done()
    ticker := time.NewTicker(15 * time.Second)
    defer ticker.Stop()
    for {
        stream, delayed, dlq, err := d.Depths(ctx)
        if err == nil {
            metrics.SetQueueDepth("stream", stream)
            metrics.SetQueueDepth("delayed", delayed)
            metrics.SetQueueDepth("dlq", dlq)
        }
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
        }
    }
}

func sleep(ctx context.Context, d time.Duration) {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
    case <-t.C:
    }
}

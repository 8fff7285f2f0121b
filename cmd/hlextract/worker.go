package main

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    "github.com/local/hlextract/internal/converter"
    "github.com/local/hlextract/internal/dispatcher"
    "github.com/local/hlextract/internal/orchestrator"
    "github.com/local/hlextract/internal/queue"
    "github.com/local/hlextract/internal/statuscheck"
    "github.com/local/hlextract/internal/storage"
    "github.com/local/hlextract/internal/store"
    "github.com/local/hlextract/internal/web"
)

const cleanupEvery = 10 * time.Minute

func workerCmd(a *app) *cobra.Command {
    return &cobra.Command{
        Use:          "worker",
        Short:        "Consume extraction jobs from Redis and serve the job API",
        Args:         cobra.NoArgs,
        SilenceUsage: true,
        RunE: func(cmd *cobra.Command, _ []string) error {
            return runWorker(cmd.Context(), a)
        },
    }
}

func runWorker(ctx context.Context, a *app) error {
    cfg := a.cfg
    opts, err := orchestrator.OptionsFromConfig(cfg.Extract)
    if err != nil { return err }

    rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
    if err != nil { return err }
    defer rq.Close()

    rs, err := store.NewRedisStatus(cfg.Queue.RedisURL)
    if err != nil { return err }
    defer rs.Close()

    lo := converter.New(cfg.Worker.LibreOfficeBinary, cfg.Worker.Concurrency, cfg.Worker.LibreOfficeTimeout)
    opts.Converter = lo

    var s3p statuscheck.Pinger
    if s3c, err := storage.NewS3Client(ctx, cfg.Storage.Bucket); err != nil {
        log.Warn().Err(err).Msg("s3 unavailable; s3:// inputs will fail")
    } else {
        opts.Remote = s3c
        opts.Password = cfg.Storage.Password
        if cfg.Storage.Bucket != "" { s3p = s3c }
    }

    checker := statuscheck.New(statuscheck.Options{Redis: rq, S3: s3p, LibreOffice: lo})

    w := dispatcher.New(dispatcher.Config{Concurrency: cfg.Worker.Concurrency, JobTimeout: cfg.Worker.JobTimeout}, rq, rs, opts)
    w.Start(ctx)

    mux := http.NewServeMux()
    web.New(web.Options{
        Queue:    rq,
        Status:   rs,
        Checker:  checker,
        Username: cfg.Worker.WebUsername,
        Password: cfg.Worker.WebPassword,
        Bucket:   cfg.Storage.Bucket,
    }).RegisterRoutes(mux)
    srv := &http.Server{Addr: ":" + cfg.Worker.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

    errc := make(chan error, 1)
    go func() {
        log.Info().Msgf("HTTP server listening on :%s", cfg.Worker.Port)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errc <- err
        }
    }()
    go sweepTemps(ctx, cfg.Worker.TempMaxAge)

    select {
    case <-ctx.Done():
        log.Info().Msg("shutdown requested")
    case err = <-errc:
        log.Error().Err(err).Msg("http server error")
    }

    sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()
    _ = srv.Shutdown(sctx)
    if serr := w.Stop(sctx); serr != nil { log.Warn().Err(serr).Msg("workers did not stop in time") }
    log.Info().Msg("shutdown complete")
    return err
}

func sweepTemps(ctx context.Context, maxAge time.Duration) {
    ticker := time.NewTicker(cleanupEvery)
    defer ticker.Stop()
    for {
        if n := orchestrator.CleanupTemps(maxAge); n > 0 {
            log.Info().Int("removed", n).Msg("stale temp files removed")
        }
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
        }
    }
}

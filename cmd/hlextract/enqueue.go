package main

import (
    "fmt"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    "github.com/local/hlextract/internal/output"
    "github.com/local/hlextract/internal/queue"
    "github.com/local/hlextract/internal/store"
)

func enqueueCmd(a *app) *cobra.Command {
    var o queue.JobOptions
    cmd := &cobra.Command{
        Use:          "enqueue <input>...",
        Short:        "Queue inputs for the worker and print their job ids",
        Args:         cobra.MinimumNArgs(1),
        SilenceUsage: true,
        RunE: func(cmd *cobra.Command, args []string) error {
            if o.Format != "" {
                if _, err := output.ParseFormat(o.Format); err != nil { return err }
            }
            cfg := a.cfg
            rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
            if err != nil { return err }
            defer rq.Close()
            rs, err := store.NewRedisStatus(cfg.Queue.RedisURL)
            if err != nil { return err }
            defer rs.Close()

            ctx := cmd.Context()
            for _, in := range args {
                job := queue.Job{ID: uuid.NewString(), Input: in, Options: o, Attempt: 1}
                now := time.Now()
                if err := rs.Set(ctx, job.ID, store.Status{Status: store.StatusQueued, Message: "queued", Start: &now,
                    Metadata: map[string]interface{}{"input": in}}); err != nil {
                    log.Warn().Err(err).Str("job_id", job.ID).Msg("status init failed")
                }
                if err := rq.Enqueue(ctx, job); err != nil { return fmt.Errorf("enqueue %s: %w", in, err) }
                fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", job.ID, in)
            }
            return nil
        },
    }
    cmd.Flags().BoolVarP(&o.TwoColumns, "two-columns", "c", false, "split pages into two columns")
    cmd.Flags().IntVarP(&o.Quality, "quality", "q", 0, "image quality (worker default when 0)")
    cmd.Flags().StringVarP(&o.Format, "format", "f", "", "output format (worker default when empty)")
    cmd.Flags().StringVarP(&o.OutputFolder, "output-folder", "o", "", "output folder, local to the worker or s3://")
    return cmd
}

package main

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"

    "github.com/spf13/cobra"

    "github.com/local/hlextract/internal/converter"
    "github.com/local/hlextract/internal/statuscheck"
    "github.com/local/hlextract/internal/storage"
    "github.com/local/hlextract/internal/store"
)

// unreachable reports a dependency that could not even be connected to.
type unreachable struct{ err error }

func (u unreachable) Ping(context.Context) error { return u.err }

func doctorCmd(a *app) *cobra.Command {
    return &cobra.Command{
        Use:          "doctor",
        Short:        "Check Redis, S3 and LibreOffice",
        Args:         cobra.NoArgs,
        SilenceUsage: true,
        RunE: func(cmd *cobra.Command, _ []string) error {
            ctx := cmd.Context()
            cfg := a.cfg
            opts := statuscheck.Options{
                LibreOffice: converter.New(cfg.Worker.LibreOfficeBinary, 1, cfg.Worker.LibreOfficeTimeout),
            }
            if rs, err := store.NewRedisStatus(cfg.Queue.RedisURL); err != nil {
                opts.Redis = unreachable{err}
            } else {
                defer rs.Close()
                opts.Redis = rs
            }
            if cfg.Storage.Bucket != "" {
                if s3c, err := storage.NewS3Client(ctx, cfg.Storage.Bucket); err != nil {
                    opts.S3 = unreachable{err}
                } else {
                    opts.S3 = s3c
                }
            }

            s := statuscheck.New(opts).Summary(ctx)
            b, _ := json.MarshalIndent(s, "", "  ")
            fmt.Fprintln(cmd.OutOrStdout(), string(b))
            if !s.Healthy() { return errors.New("some dependencies are unavailable") }
            return nil
        },
    }
}

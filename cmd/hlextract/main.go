package main

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "syscall"

    "github.com/spf13/cobra"

    "github.com/local/hlextract/internal/config"
    "github.com/local/hlextract/internal/logger"
    "github.com/local/hlextract/internal/metrics"
)

// app carries what the subcommands share once the root has initialised.
type app struct {
    cfg      config.Config
    logLevel string
}

func main() {
    a := &app{}
    root := rootCmd(a)
    root.AddCommand(workerCmd(a), enqueueCmd(a), doctorCmd(a))

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    err := root.ExecuteContext(ctx)
    stop()
    logger.Close()
    if err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}

// setup loads configuration and initialises logging and metrics.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
    a.cfg = config.Load()
    if a.logLevel != "" { a.cfg.Logging.Level = a.logLevel }
    if err := logger.Init(loggerOptions(a.cfg)); err != nil { return err }
    metrics.Init()
    return nil
}

func loggerOptions(cfg config.Config) logger.Options {
    return logger.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    }
}

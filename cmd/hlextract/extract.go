package main

import (
    "errors"
    "fmt"
    "io"
    "strings"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    "github.com/local/hlextract/internal/config"
    "github.com/local/hlextract/internal/converter"
    "github.com/local/hlextract/internal/metrics"
    "github.com/local/hlextract/internal/orchestrator"
    "github.com/local/hlextract/internal/storage"
)

type extractFlags struct {
    twoColumns   bool
    quality      int
    outputFolder string
    format       string
    jobs         int
    metricsFile  string
}

func rootCmd(a *app) *cobra.Command {
    var f extractFlags
    cmd := &cobra.Command{
        Use:   "hlextract [flags] <pdf>...",
        Short: "Extract highlighted passages and figures from annotated PDFs",
        Long: "hlextract finds the regions marked with a highlighter on a tablet and writes\n" +
            "their text and images, page by page, into an ODT document next to each PDF.",
        Args:              cobra.MinimumNArgs(1),
        SilenceUsage:      true,
        PersistentPreRunE: a.setup,
        RunE: func(cmd *cobra.Command, args []string) error {
            ec := applyFlags(cmd, a.cfg.Extract, f)
            return runExtract(cmd, a.cfg, ec, args)
        },
    }
    cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
    cmd.Flags().BoolVarP(&f.twoColumns, "two-columns", "c", false, "split every page into a left and a right column")
    cmd.Flags().IntVarP(&f.quality, "quality", "q", 100, "image quality; crops are rendered at quality/50 times the page size")
    cmd.Flags().StringVarP(&f.outputFolder, "output-folder", "o", "", "write documents here instead of next to each input (local dir or s3://bucket/prefix)")
    cmd.Flags().StringVarP(&f.format, "format", "f", "odt", "output format: odt, txt, docx or pdf (docx and pdf need LibreOffice)")
    cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 1, "number of files processed in parallel")
    cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
    return cmd
}

// applyFlags overrides the environment defaults with the flags set on the
// command line.
func applyFlags(cmd *cobra.Command, ec config.ExtractConfig, f extractFlags) config.ExtractConfig {
    fl := cmd.Flags()
    if fl.Changed("two-columns") { ec.TwoColumns = f.twoColumns }
    if fl.Changed("quality") || ec.Quality == 0 { ec.Quality = f.quality }
    if fl.Changed("output-folder") { ec.OutputFolder = f.outputFolder }
    if fl.Changed("format") || ec.Format == "" { ec.Format = f.format }
    if fl.Changed("jobs") { ec.Jobs = f.jobs }
    if fl.Changed("metrics-file") { ec.MetricsFile = f.metricsFile }
    return ec
}

func runExtract(cmd *cobra.Command, cfg config.Config, ec config.ExtractConfig, inputs []string) error {
    ctx := cmd.Context()
    opts, err := orchestrator.OptionsFromConfig(ec)
    if err != nil { return err }

    if usesS3(inputs, ec.OutputFolder) {
        s3c, err := storage.NewS3Client(ctx, cfg.Storage.Bucket)
        if err != nil { return err }
        opts.Remote = s3c
        opts.Password = cfg.Storage.Password
    }
    if opts.Format.NeedsConversion() {
        opts.Converter = converter.New(cfg.Worker.LibreOfficeBinary, ec.Jobs, cfg.Worker.LibreOfficeTimeout)
    }

    out := cmd.OutOrStdout()
    hooks := orchestrator.Hooks{
        Started:  func(in string) { fmt.Fprintf(out, "Converting %s ...\n", in) },
        Finished: func(o orchestrator.Outcome) { report(out, o) },
    }
    failed := orchestrator.ProcessAll(ctx, inputs, opts, ec.Jobs, hooks)

    if ec.MetricsFile != "" {
        if err := metrics.WriteTextfile(ec.MetricsFile); err != nil {
            log.Warn().Err(err).Str("path", ec.MetricsFile).Msg("failed to write metrics file")
        }
    }
    if failed > 0 { return fmt.Errorf("%d of %d inputs failed", failed, len(inputs)) }
    return nil
}

func usesS3(inputs []string, folder string) bool {
    if strings.HasPrefix(folder, "s3://") { return true }
    for _, in := range inputs {
        if strings.HasPrefix(in, "s3://") { return true }
    }
    return false
}

// report prints the per-file line that follows "Converting ...".
func report(w io.Writer, o orchestrator.Outcome) {
    switch {
    case o.Err == nil:
        fmt.Fprintf(w, "Wrote %s (%d texts, %d images)\n", o.Output, o.Texts, o.Images)
    case errors.Is(o.Err, orchestrator.ErrNotAPDF):
        fmt.Fprintf(w, "%s is not a pdf\n", o.Input)
    case errors.Is(o.Err, orchestrator.ErrInputNotFound):
        fmt.Fprintf(w, "%s does not exist\n", o.Input)
    default:
        fmt.Fprintf(w, "%s failed: %v\n", o.Input, o.Err)
    }
}

package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultBinary is the LibreOffice executable looked up in PATH.
const DefaultBinary = "libreoffice"

// LibreOffice converts ODT documents to other office formats with a headless
// LibreOffice process per conversion.
type LibreOffice struct {
	binary    string
	timeout   time.Duration
	semaphore chan struct{}
}

// Job represents a document conversion job
type Job struct {
	InputPath  string
	OutputPath string
	// Format is the LibreOffice filter extension, e.g. "docx" or "pdf".
	Format string
}

// Result represents the result of a conversion operation
type Result struct {
	Success    bool
	OutputPath string
	Error      string
	Duration   time.Duration
}

// New creates a converter. An empty binary uses DefaultBinary, maxWorkers
// bounds concurrent conversions and timeout caps each one.
func New(binary string, maxWorkers int, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = DefaultBinary
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LibreOffice{
		binary:    binary,
		timeout:   timeout,
		semaphore: make(chan struct{}, maxWorkers),
	}
}

// Version runs the binary with --version and returns its output.
func (l *LibreOffice) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, l.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("LibreOffice not found in PATH: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Convert runs one conversion. The result is written next to the input by
// LibreOffice and then renamed to job.OutputPath.
func (l *LibreOffice) Convert(ctx context.Context, job Job) Result {
	startTime := time.Now()
	fail := func(format string, args ...any) Result {
		return Result{Error: fmt.Sprintf(format, args...), Duration: time.Since(startTime)}
	}

	select {
	case l.semaphore <- struct{}{}:
		defer func() { <-l.semaphore }()
	case <-ctx.Done():
		return fail("conversion not started: %v", ctx.Err())
	}

	log.Info().Str("input", job.InputPath).Str("output", job.OutputPath).Str("format", job.Format).Msg("starting conversion")

	if err := validateInput(job.InputPath); err != nil {
		return fail("input validation failed: %v", err)
	}

	// Concurrent instances sharing one profile block each other.
	profileDir := filepath.Join(os.TempDir(), fmt.Sprintf("libreoffice_profile_%s", uuid.New().String()))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return fail("failed to create profile directory: %v", err)
	}
	defer os.RemoveAll(profileDir)

	outputDir := filepath.Dir(job.OutputPath)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fail("failed to create output directory: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx,
		l.binary,
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", job.Format,
		"--outdir", outputDir,
		job.InputPath,
	)
	cmd.WaitDelay = time.Second
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	if out, err := cmd.CombinedOutput(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fail("conversion timeout after %v", l.timeout)
		}
		return fail("conversion failed: %v: %s", err, strings.TrimSpace(string(out)))
	}

	expected := expectedOutputPath(job.InputPath, outputDir, job.Format)
	if expected != job.OutputPath {
		if err := os.Rename(expected, job.OutputPath); err != nil {
			return fail("output file not created: %v", err)
		}
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		return fail("output file not created: %v", err)
	}

	log.Info().Str("output", job.OutputPath).Dur("duration", time.Since(startTime)).Msg("conversion successful")
	return Result{Success: true, OutputPath: job.OutputPath, Duration: time.Since(startTime)}
}

// validateInput checks if the input file is readable
func validateInput(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}

// expectedOutputPath is where LibreOffice writes the converted file.
func expectedOutputPath(inputPath, outputDir, format string) string {
	base := filepath.Base(inputPath)
	return filepath.Join(outputDir, strings.TrimSuffix(base, filepath.Ext(base))+"."+format)
}

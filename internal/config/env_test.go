package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	e := cfg.Extract
	if e.Quality != 100 || e.TwoColumns || e.Format != "odt" {
		t.Errorf("unexpected extract defaults %+v", e)
	}
	if e.MarginLeft != 10 || e.MarginTop != 5 || e.MarginRight != 25 || e.MarginBottom != 5 {
		t.Errorf("unexpected margins %+v", e)
	}
	if e.DilateIterations != 10 || e.ExclusionIterations != 10 || e.MinImageHeight != 20 || e.NominalDPI != 96 {
		t.Errorf("unexpected tuning %+v", e)
	}
	if cfg.Queue.Stream != "jobs:hlextract" || cfg.Worker.JobTimeout != 10*time.Minute {
		t.Errorf("unexpected worker/queue defaults %+v %+v", cfg.Worker, cfg.Queue)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HLX_QUALITY", "150")
	t.Setenv("HLX_TWO_COLUMNS", "yes")
	t.Setenv("HLX_MARGIN_RIGHT", "30.5")
	t.Setenv("WORKER_CONCURRENCY", "0")
	t.Setenv("JOB_TIMEOUT", "garbage")

	cfg := FromEnv()
	if cfg.Extract.Quality != 150 || !cfg.Extract.TwoColumns || cfg.Extract.MarginRight != 30.5 {
		t.Errorf("overrides not applied: %+v", cfg.Extract)
	}
	if cfg.Worker.Concurrency != 1 {
		t.Errorf("concurrency should be clamped to 1, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.JobTimeout != 10*time.Minute {
		t.Errorf("invalid duration should fall back to default, got %v", cfg.Worker.JobTimeout)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "test.env")
	if err := os.WriteFile(f, []byte("HLX_FORMAT=txt\nHLX_QUALITY=80\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HLX_QUALITY", "60") // process environment wins over the file
	// godotenv sets variables directly; make sure the test does not leak them.
	t.Setenv("HLX_FORMAT", "")
	os.Unsetenv("HLX_FORMAT")

	cfg := Load(f, filepath.Join(dir, "missing.env"))
	if cfg.Extract.Format != "txt" {
		t.Errorf("format = %q", cfg.Extract.Format)
	}
	if cfg.Extract.Quality != 60 {
		t.Errorf("quality = %d", cfg.Extract.Quality)
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "true", "YES", " on "} {
		if !parseBool(s) {
			t.Errorf("parseBool(%q) = false", s)
		}
	}
	for _, s := range []string{"", "0", "no", "off"} {
		if parseBool(s) {
			t.Errorf("parseBool(%q) = true", s)
		}
	}
}

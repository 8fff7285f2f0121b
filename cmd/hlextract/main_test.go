package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/local/hlextract/internal/testpdf"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HLX_OUTPUT_FOLDER", "")
	t.Setenv("HLX_FORMAT", "")
	t.Setenv("LOG_FILE", "")
	cmd := rootCmd(&app{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_ExtractsAndSkips(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "paper.pdf")
	data := testpdf.Build(testpdf.Letter(
		testpdf.Text(72, 696, 12, "alpha beta gamma"),
		"q\n1 1 0 RG\n12 w\n70 700 m 190 700 l S\nQ",
	))
	if err := os.WriteFile(pdf, data, 0o644); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("plain"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.pdf")

	out, err := runRoot(t, "-f", "txt", pdf, txt, missing)
	if err == nil || !strings.Contains(err.Error(), "2 of 3 inputs failed") {
		t.Errorf("err = %v", err)
	}
	for _, want := range []string{
		"Converting " + pdf + " ...",
		txt + " is not a pdf",
		missing + " does not exist",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Converting "+txt) {
		t.Errorf("rejected input announced:\n%s", out)
	}

	got, err := os.ReadFile(filepath.Join(dir, "paper.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), "alpha beta gamma") {
		t.Errorf("document = %q", got)
	}
}

func TestRoot_BadFormat(t *testing.T) {
	dir := t.TempDir()
	if _, err := runRoot(t, "-f", "rtf", filepath.Join(dir, "a.pdf")); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestUsesS3(t *testing.T) {
	if usesS3([]string{"a.pdf"}, "") {
		t.Error("local inputs need no s3")
	}
	if !usesS3([]string{"a.pdf"}, "s3://bucket/out") || !usesS3([]string{"s3://bucket/a.pdf"}, "") {
		t.Error("s3 references not detected")
	}
}

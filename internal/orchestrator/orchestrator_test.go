package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/local/hlextract/internal/config"
	"github.com/local/hlextract/internal/converter"
	"github.com/local/hlextract/internal/highlight"
	"github.com/local/hlextract/internal/output"
	"github.com/local/hlextract/internal/testpdf"
)

// highlightStroke is a thick marker stroke as the tablet writes it.
func highlightStroke(x0, x1, y float64) string {
	return fmt.Sprintf("q\n1 1 0 RG\n12 w\n%g %g m %g %g l S\nQ", x0, y, x1, y)
}

// frameStroke is a thin rectangle drawn around a figure.
func frameStroke(x, y, w, h float64) string {
	return fmt.Sprintf("q\n1 1 0 RG\n3 w\n%g %g %g %g re S\nQ", x, y, w, h)
}

func highlightedText() []byte {
	return testpdf.Build(testpdf.Letter(
		testpdf.Text(72, 696, 12, "alpha beta gamma"),
		testpdf.Text(72, 500, 12, "not highlighted"),
		highlightStroke(70, 190, 700),
	))
}

func framedFigure() []byte {
	return testpdf.Build(testpdf.Letter(
		testpdf.FilledRect(150, 350, 100, 100, "0.5 0.5 0.5 rg"),
		frameStroke(100, 300, 200, 200),
	))
}

func writePDF(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExtract_HighlightedText(t *testing.T) {
	ext, err := Extract(context.Background(), "notes.pdf", highlightedText(), DefaultOptions())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Title != "notes.pdf" {
		t.Errorf("title = %q", ext.Title)
	}
	if len(ext.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(ext.Sections))
	}
	sec := ext.Sections[0]
	if sec.Header() != "page 1" || len(sec.Units) != 1 {
		t.Fatalf("section = %+v", sec)
	}
	tb, ok := sec.Units[0].(*highlight.TextBlock)
	if !ok {
		t.Fatalf("unit = %T, want text", sec.Units[0])
	}
	if got := strings.Join(tb.Lines, " "); got != "alpha beta gamma" {
		t.Errorf("text = %q", got)
	}
}

func TestExtract_FramedFigure(t *testing.T) {
	ext, err := Extract(context.Background(), "fig.pdf", framedFigure(), DefaultOptions())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	texts, images := ext.Counts()
	if texts != 0 || images != 1 {
		t.Fatalf("counts = %d texts, %d images", texts, images)
	}
	ib := ext.Sections[0].Units[0].(*highlight.ImageBlock)
	if ib.Name != "image-1-00" {
		t.Errorf("name = %q", ib.Name)
	}
	if !bytes.HasPrefix(ib.PNG, []byte("\x89PNG")) {
		t.Error("crop is not a PNG")
	}
}

func TestExtract_NoHighlight(t *testing.T) {
	data := testpdf.Build(testpdf.Letter(testpdf.Text(72, 700, 12, "plain")))
	ext, err := Extract(context.Background(), "plain.pdf", data, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(ext.Sections) != 0 || ext.Title != "plain.pdf" {
		t.Errorf("extraction = %+v", ext)
	}
}

func TestExtract_TwoColumns(t *testing.T) {
	data := testpdf.Build(testpdf.Letter(
		testpdf.Text(340, 696, 12, "right side"),
		highlightStroke(338, 420, 700),
	))
	opts := DefaultOptions()
	opts.TwoColumns = true
	ext, err := Extract(context.Background(), "cols.pdf", data, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(ext.Sections) != 1 || ext.Sections[0].Column != highlight.RightColumn {
		t.Fatalf("sections = %+v", ext.Sections)
	}
	if ext.Sections[0].Header() != "page 1 - column 2" {
		t.Errorf("header = %q", ext.Sections[0].Header())
	}
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Extract(ctx, "notes.pdf", highlightedText(), DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExtract_NotAPDF(t *testing.T) {
	if _, err := Extract(context.Background(), "x.pdf", []byte("hello"), DefaultOptions()); err == nil {
		t.Error("expected error")
	}
}

func TestProcessFile_WritesODT(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, "notes.pdf", highlightedText())

	out, err := ProcessFile(context.Background(), in, DefaultOptions())
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	want := filepath.Join(dir, "notes.odt")
	if out.Output != want || out.Texts != 1 || out.Result() != "success" {
		t.Errorf("outcome = %+v", out)
	}
	first, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(first), int64(len(first)))
	if err != nil {
		t.Fatal(err)
	}
	if zr.File[0].Name != "mimetype" {
		t.Errorf("first entry = %q", zr.File[0].Name)
	}

	// A second run produces the same bytes.
	if _, err := ProcessFile(context.Background(), in, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(want)
	if !bytes.Equal(first, second) {
		t.Error("output differs between runs")
	}
}

func TestProcessFile_OutputFolderAndText(t *testing.T) {
	in := writePDF(t, t.TempDir(), "fig.pdf", framedFigure())
	outDir := t.TempDir()
	opts := DefaultOptions()
	opts.OutputFolder = outDir
	opts.Format = output.Text

	out, err := ProcessFile(context.Background(), in, opts)
	if err != nil {
		t.Fatal(err)
	}
	if out.Output != filepath.Join(outDir, "fig.txt") {
		t.Errorf("output = %q", out.Output)
	}
	if _, err := os.Stat(filepath.Join(outDir, "fig_images", "image-1-00.png")); err != nil {
		t.Errorf("image not written: %v", err)
	}
}

func TestProcessFile_Validation(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	_ = os.WriteFile(txt, []byte("x"), 0o644)
	fake := writePDF(t, dir, "fake.pdf", []byte("just some text, no pdf header"))
	good := writePDF(t, dir, "good.pdf", highlightedText())
	missingFolder := DefaultOptions()
	missingFolder.OutputFolder = filepath.Join(dir, "nope")

	tests := []struct {
		name  string
		input string
		opts  Options
		want  error
	}{
		{"missing", filepath.Join(dir, "none.pdf"), DefaultOptions(), ErrInputNotFound},
		{"suffix", txt, DefaultOptions(), ErrNotAPDF},
		{"magic", fake, DefaultOptions(), ErrNotAPDF},
		{"directory", dir, DefaultOptions(), ErrNotAPDF},
		{"output folder", good, missingFolder, ErrOutputFolderMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ProcessFile(context.Background(), tt.input, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if out.Err != err || out.Output != "" {
				t.Errorf("outcome = %+v", out)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input, folder string
		format        output.Format
		want          string
	}{
		{"/docs/notes.pdf", "", output.ODT, "/docs/notes.odt"},
		{"notes.pdf", "", output.ODT, "notes.odt"},
		{"/docs/notes.pdf", "/out", output.DOCX, "/out/notes.docx"},
		{"file:///docs/a.pdf", "", output.Text, "/docs/a.txt"},
		{"https://example.com/papers/p.pdf?dl=1", "", output.ODT, "p.odt"},
		{"s3://bucket/in/p.pdf", "s3://bucket/out/", output.PDF, "s3://bucket/out/p.pdf"},
		{"/docs/notes.pdf", "s3://bucket/out", output.ODT, "s3://bucket/out/notes.odt"},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.input, tt.folder, tt.format); got != filepath.FromSlash(tt.want) && got != tt.want {
			t.Errorf("OutputPath(%q, %q, %s) = %q, want %q", tt.input, tt.folder, tt.format, got, tt.want)
		}
	}
}

func TestProcessAll(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", highlightedText())
	b := writePDF(t, dir, "b.pdf", framedFigure())
	missing := filepath.Join(dir, "missing.pdf")
	txt := filepath.Join(dir, "c.txt")
	_ = os.WriteFile(txt, []byte("x"), 0o644)

	for _, parallel := range []int{1, 3} {
		t.Run(fmt.Sprintf("parallel=%d", parallel), func(t *testing.T) {
			var (
				mu       sync.Mutex
				started  []string
				finished = map[string]Outcome{}
			)
			failed := ProcessAll(context.Background(), []string{a, missing, txt, b}, DefaultOptions(), parallel, Hooks{
				Started:  func(in string) { mu.Lock(); started = append(started, in); mu.Unlock() },
				Finished: func(o Outcome) { mu.Lock(); finished[o.Input] = o; mu.Unlock() },
			})
			if failed != 2 {
				t.Errorf("failed = %d, want 2", failed)
			}
			if len(started) != 2 || len(finished) != 4 {
				t.Errorf("started = %v, finished = %d", started, len(finished))
			}
			if !errors.Is(finished[missing].Err, ErrInputNotFound) || !errors.Is(finished[txt].Err, ErrNotAPDF) {
				t.Errorf("rejections = %v / %v", finished[missing].Err, finished[txt].Err)
			}
			if finished[b].Images != 1 || finished[a].Texts != 1 {
				t.Errorf("outcomes = %+v / %+v", finished[a], finished[b])
			}
		})
	}
}

func TestReadInput_HTTP(t *testing.T) {
	data := highlightedText()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notes.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	got, err := readInput(context.Background(), srv.URL+"/notes.pdf", DefaultOptions())
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("readInput = %d bytes, %v", len(got), err)
	}
	if _, err := readInput(context.Background(), srv.URL+"/gone.pdf", DefaultOptions()); !errors.Is(err, ErrInputNotFound) {
		t.Errorf("err = %v, want ErrInputNotFound", err)
	}
	if _, err := readInput(context.Background(), "s3://b/k.pdf", DefaultOptions()); err == nil {
		t.Error("expected error without remote store")
	}
}

type fakeRemote struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeRemote) Download(_ context.Context, ref, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[ref]
	if !ok {
		return nil, fmt.Errorf("no such key %s", ref)
	}
	return data, nil
}

func (f *fakeRemote) Upload(_ context.Context, ref string, body io.Reader, contentType, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[ref] = data
	f.types[ref] = contentType
	return nil
}

// copyConverter stands in for LibreOffice by copying the ODT.
type copyConverter struct{ jobs []converter.Job }

func (c *copyConverter) Convert(_ context.Context, job converter.Job) converter.Result {
	c.jobs = append(c.jobs, job)
	data, err := os.ReadFile(job.InputPath)
	if err == nil {
		err = os.WriteFile(job.OutputPath, data, 0o644)
	}
	if err != nil {
		return converter.Result{Error: err.Error()}
	}
	return converter.Result{Success: true, OutputPath: job.OutputPath}
}

func TestProcessFile_S3ToS3WithConversion(t *testing.T) {
	remote := newFakeRemote()
	remote.objects["s3://in/notes.pdf"] = highlightedText()
	conv := &copyConverter{}
	opts := DefaultOptions()
	opts.Remote = remote
	opts.Converter = conv
	opts.Format = output.DOCX
	opts.OutputFolder = "s3://out/results"

	out, err := ProcessFile(context.Background(), "s3://in/notes.pdf", opts)
	if err != nil {
		t.Fatal(err)
	}
	if out.Output != "s3://out/results/notes.docx" {
		t.Errorf("output = %q", out.Output)
	}
	if len(conv.jobs) != 1 || conv.jobs[0].Format != "docx" || filepath.Ext(conv.jobs[0].InputPath) != ".odt" {
		t.Errorf("converter jobs = %+v", conv.jobs)
	}
	data := remote.objects["s3://out/results/notes.docx"]
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("uploaded document missing")
	}
	if remote.types["s3://out/results/notes.docx"] != output.DOCX.ContentType() {
		t.Errorf("content type = %q", remote.types["s3://out/results/notes.docx"])
	}
}

func TestProcessFile_ConversionWithoutConverter(t *testing.T) {
	in := writePDF(t, t.TempDir(), "notes.pdf", highlightedText())
	outDir := t.TempDir()
	opts := DefaultOptions()
	opts.Format = output.DOCX
	opts.OutputFolder = outDir
	if _, err := ProcessFile(context.Background(), in, opts); err == nil || !strings.Contains(err.Error(), "LibreOffice") {
		t.Errorf("err = %v", err)
	}
	if left, _ := os.ReadDir(outDir); len(left) != 0 {
		t.Errorf("output folder not empty: %v", left)
	}
}

func TestProcessFile_RefusesToOverwriteInput(t *testing.T) {
	data := highlightedText()
	in := writePDF(t, t.TempDir(), "notes.pdf", data)
	opts := DefaultOptions()
	opts.Format = output.PDF
	opts.Converter = &copyConverter{}
	if _, err := ProcessFile(context.Background(), in, opts); err == nil || !strings.Contains(err.Error(), "overwrite") {
		t.Errorf("err = %v", err)
	}
	if got, _ := os.ReadFile(in); !bytes.Equal(got, data) {
		t.Error("input was modified")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	c := config.ExtractConfig{
		Quality: 150, TwoColumns: true, Format: "docx", OutputFolder: "/out",
		MarginLeft: 1, MarginTop: 2, MarginRight: 3, MarginBottom: 4,
		DilateIterations: 7, ExclusionIterations: 8, DetectScale: 2,
	}
	opts, err := OptionsFromConfig(c)
	if err != nil {
		t.Fatal(err)
	}
	if !opts.TwoColumns || opts.Format != output.DOCX || opts.OutputFolder != "/out" {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Classify.Quality != 150 || opts.Classify.Margins.Right != 3 || opts.Classify.NominalDPI != 96 {
		t.Errorf("classify = %+v", opts.Classify)
	}
	if opts.Detect.DilateIterations != 7 || opts.Detect.ExclusionIterations != 8 || opts.Detect.Scale != 2 {
		t.Errorf("detect = %+v", opts.Detect)
	}

	if _, err := OptionsFromConfig(config.ExtractConfig{Quality: 100, Format: "rtf"}); err == nil {
		t.Error("expected format error")
	}
	if _, err := OptionsFromConfig(config.ExtractConfig{Quality: 0}); err == nil {
		t.Error("expected quality error")
	}
}

func TestCleanupDir(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	for _, name := range []string{"hlx-dl-1.pdf", "hlx-out-2", "libreoffice_profile_x", "keep.pdf", "hlx-dl-new.pdf"} {
		p := filepath.Join(dir, name)
		if strings.Contains(name, ".") {
			_ = os.WriteFile(p, nil, 0o644)
		} else {
			_ = os.MkdirAll(filepath.Join(p, "sub"), 0o755)
		}
		if name != "hlx-dl-new.pdf" {
			_ = os.Chtimes(p, old, old)
		}
	}
	if n := cleanupDir(dir, time.Hour, now); n != 3 {
		t.Errorf("removed = %d, want 3", n)
	}
	left, _ := os.ReadDir(dir)
	if len(left) != 2 {
		t.Errorf("left = %v", left)
	}
}

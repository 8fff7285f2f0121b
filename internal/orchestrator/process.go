package orchestrator

import (
    "context"
    "errors"
    "fmt"
    "os"
    "path"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "golang.org/x/sync/errgroup"

    "github.com/local/hlextract/internal/converter"
    "github.com/local/hlextract/internal/filetype"
    "github.com/local/hlextract/internal/highlight"
    "github.com/local/hlextract/internal/logger"
    "github.com/local/hlextract/internal/metrics"
    "github.com/local/hlextract/internal/output"
)

var (
    ErrInputNotFound       = errors.New("input does not exist")
    ErrNotAPDF             = errors.New("not a pdf")
    ErrOutputFolderMissing = errors.New("output folder does not exist")
)

// Converter produces docx or pdf documents from an ODT.
type Converter interface {
    Convert(ctx context.Context, job converter.Job) converter.Result
}

// Outcome describes what happened to one input.
type Outcome struct {
    Input    string
    Output   string
    Sections int
    Texts    int
    Images   int
    Duration time.Duration
    Err      error
}

// Result is the metrics label of the outcome.
func (o Outcome) Result() string {
    switch {
    case o.Err == nil:
        return "success"
    case errors.Is(o.Err, ErrInputNotFound):
        return "not_found"
    case errors.Is(o.Err, ErrNotAPDF):
        return "not_pdf"
    case errors.Is(o.Err, ErrOutputFolderMissing):
        return "no_output_folder"
    case errors.Is(o.Err, context.Canceled), errors.Is(o.Err, context.DeadlineExceeded):
        return "cancelled"
    }
    return "error"
}

// Validate runs the checks that need no PDF parsing: the input exists and is
// named *.pdf, and a local output folder exists.
func Validate(input string, opts Options) error {
    if f := opts.OutputFolder; f != "" && !isS3(f) {
        if st, err := os.Stat(f); err != nil || !st.IsDir() {
            return fmt.Errorf("%w: %s", ErrOutputFolderMissing, f)
        }
    }
    if !isRemote(input) {
        st, err := os.Stat(localPath(input))
        if err != nil { return fmt.Errorf("%w: %s", ErrInputNotFound, input) }
        if st.IsDir() { return fmt.Errorf("%w: %s is a directory", ErrNotAPDF, input) }
    }
    if !filetype.HasPDFSuffix(input) { return fmt.Errorf("%w: %s", ErrNotAPDF, input) }
    return nil
}

// OutputPath derives the document path for input: the input's base name with
// the format's extension, in folder when set, else next to a local input or
// in the working directory for a remote one.
func OutputPath(input, folder string, f output.Format) string {
    base := refBase(input)
    name := strings.TrimSuffix(base, filepath.Ext(base)) + f.Extension()
    switch {
    case isS3(folder):
        return strings.TrimSuffix(folder, "/") + "/" + name
    case folder != "":
        return filepath.Join(folder, name)
    case isRemote(input):
        return name
    }
    return filepath.Join(filepath.Dir(localPath(input)), name)
}

// ProcessFile extracts the highlights of input and writes the document. The
// returned error is also stored in the Outcome.
func ProcessFile(ctx context.Context, input string, opts Options) (out Outcome, err error) {
    start := time.Now()
    out = Outcome{Input: input}
    flog := logger.ForFile(input)
    defer func() {
        out.Duration = time.Since(start)
        out.Err = err
        metrics.ObserveFile(out.Result(), out.Duration)
        ev := flog.Info()
        if err != nil { ev = flog.Warn().Err(err) }
        ev.Str("output", out.Output).Str("result", out.Result()).Dur("duration", out.Duration).Msg("file processed")
    }()

    if err = Validate(input, opts); err != nil { return out, err }
    var data []byte
    if data, err = readInput(ctx, input, opts); err != nil { return out, err }
    if info := filetype.New().DetectBytes(data, refBase(input)); !info.IsPDF {
        err = fmt.Errorf("%w: %s is %s", ErrNotAPDF, input, info.MIMEType)
        return out, err
    }

    var ext *highlight.Extraction
    if ext, err = Extract(ctx, input, data, opts); err != nil { return out, err }
    out.Sections = len(ext.Sections)
    out.Texts, out.Images = ext.Counts()

    dest := OutputPath(input, opts.OutputFolder, opts.Format)
    if !isRemote(input) && sameFile(localPath(input), dest) {
        err = fmt.Errorf("output %s would overwrite the input", dest)
        return out, err
    }
    if err = persist(ctx, ext, dest, opts); err != nil { return out, err }
    out.Output = dest
    return out, nil
}

func sameFile(a, b string) bool {
    aa, err1 := filepath.Abs(a)
    bb, err2 := filepath.Abs(b)
    return err1 == nil && err2 == nil && aa == bb
}

// persist writes ext to dest. Converted formats go through an ODT in a temp
// dir; s3 destinations are written locally first and uploaded.
func persist(ctx context.Context, ext *highlight.Extraction, dest string, opts Options) error {
    remote := isS3(dest)
    convert := opts.Format.NeedsConversion()
    if remote && opts.Remote == nil { return fmt.Errorf("%s: s3 storage is not configured", dest) }
    if convert && opts.Converter == nil { return fmt.Errorf("format %s needs LibreOffice, no converter configured", opts.Format) }

    local := dest
    var tmpDir string
    if remote || convert {
        d, err := os.MkdirTemp("", tempOutputPrefix+"*")
        if err != nil { return fmt.Errorf("create temp dir: %w", err) }
        defer os.RemoveAll(d)
        tmpDir = d
    }
    if remote { local = filepath.Join(tmpDir, refBase(dest)) }

    if !convert {
        if err := output.WriteFile(local, ext, opts.Format); err != nil { return err }
    } else {
        odt := filepath.Join(tmpDir, strings.TrimSuffix(filepath.Base(local), filepath.Ext(local))+output.ODT.Extension())
        if err := output.WriteFile(odt, ext, output.ODT); err != nil { return err }
        res := opts.Converter.Convert(ctx, converter.Job{InputPath: odt, OutputPath: local, Format: string(opts.Format)})
        if !res.Success { return fmt.Errorf("convert to %s: %s", opts.Format, res.Error) }
    }

    if remote { return upload(ctx, local, dest, opts) }
    return nil
}

func upload(ctx context.Context, local, dest string, opts Options) error {
    if err := uploadFile(ctx, local, dest, opts.Format.ContentType(), opts); err != nil { return err }
    if opts.Format != output.Text { return nil }

    entries, err := os.ReadDir(output.ImageDir(local))
    if errors.Is(err, os.ErrNotExist) { return nil }
    if err != nil { return err }
    prefix := strings.TrimSuffix(dest, path.Ext(dest)) + "_images/"
    for _, e := range entries {
        if err := uploadFile(ctx, filepath.Join(output.ImageDir(local), e.Name()), prefix+e.Name(), "image/png", opts); err != nil {
            return err
        }
    }
    return nil
}

func uploadFile(ctx context.Context, local, dest, contentType string, opts Options) error {
    f, err := os.Open(local)
    if err != nil { return err }
    defer f.Close()
    if err := opts.Remote.Upload(ctx, dest, f, contentType, opts.Password); err != nil {
        return fmt.Errorf("upload %s: %w", dest, err)
    }
    return nil
}

// Hooks observe a batch. Either may be nil; calls are serialized.
type Hooks struct {
    // Started is called once an input passed validation.
    Started func(input string)
    // Finished is called for every input, including rejected ones.
    Finished func(o Outcome)
}

// ProcessAll processes inputs one after another, or up to parallel at a time
// when parallel > 1. A failing input never stops the batch. It returns the
// number of inputs that failed.
func ProcessAll(ctx context.Context, inputs []string, opts Options, parallel int, hooks Hooks) int {
    var (
        mu     sync.Mutex
        failed int
    )
    finish := func(o Outcome) {
        mu.Lock()
        defer mu.Unlock()
        if o.Err != nil { failed++ }
        if hooks.Finished != nil { hooks.Finished(o) }
    }
    run := func(input string) {
        if err := ctx.Err(); err != nil {
            finish(Outcome{Input: input, Err: err})
            return
        }
        if err := Validate(input, opts); err != nil {
            o := Outcome{Input: input, Err: err}
            metrics.ObserveFile(o.Result(), 0)
            finish(o)
            return
        }
        if hooks.Started != nil {
            mu.Lock()
            hooks.Started(input)
            mu.Unlock()
        }
        o, _ := ProcessFile(ctx, input, opts)
        finish(o)
    }

    if parallel <= 1 {
        for _, in := range inputs { run(in) }
        return failed
    }
    var g errgroup.Group
    g.SetLimit(parallel)
    for _, in := range inputs {
        in := in
        g.Go(func() error {
            run(in)
            return nil
        })
    }
    _ = g.Wait()
    return failed
}

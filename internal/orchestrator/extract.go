package orchestrator

import (
    "context"
    "fmt"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/hlextract/internal/classify"
    "github.com/local/hlextract/internal/config"
    "github.com/local/hlextract/internal/detect"
    "github.com/local/hlextract/internal/highlight"
    "github.com/local/hlextract/internal/mask"
    "github.com/local/hlextract/internal/metrics"
    "github.com/local/hlextract/internal/output"
    "github.com/local/hlextract/internal/pdfdoc"
    "github.com/local/hlextract/internal/pdftest"
)

// Options is everything one extraction run needs. Nothing below the CLI and
// the worker reads the environment.
type Options struct {
    TwoColumns   bool
    Detect       detect.Config
    Classify     classify.Config
    Format       output.Format
    OutputFolder string
    // Palette overrides mask.DefaultPalette when set.
    Palette [][]byte

    // Remote serves s3:// inputs and output folders.
    Remote RemoteStore
    // Password encrypts uploads and decrypts encrypted downloads.
    Password string
    // Converter turns the ODT into docx or pdf.
    Converter Converter
}

// DefaultOptions returns the extraction defaults with ODT output.
func DefaultOptions() Options {
    return Options{Detect: detect.DefaultConfig(), Classify: classify.DefaultConfig(), Format: output.ODT}
}

// OptionsFromConfig builds Options from the extraction settings.
func OptionsFromConfig(c config.ExtractConfig) (Options, error) {
    f, err := output.ParseFormat(c.Format)
    if err != nil { return Options{}, err }
    if c.Quality <= 0 { return Options{}, fmt.Errorf("quality must be positive, got %d", c.Quality) }
    opts := DefaultOptions()
    opts.TwoColumns = c.TwoColumns
    opts.Format = f
    opts.OutputFolder = c.OutputFolder
    opts.Detect.DilateIterations = c.DilateIterations
    opts.Detect.ExclusionIterations = c.ExclusionIterations
    if c.DetectScale > 0 { opts.Detect.Scale = c.DetectScale }
    opts.Classify.Quality = c.Quality
    opts.Classify.Margins = classify.Margins{Left: c.MarginLeft, Top: c.MarginTop, Right: c.MarginRight, Bottom: c.MarginBottom}
    if c.MinImageHeight > 0 { opts.Classify.MinImageHeight = c.MinImageHeight }
    if c.NominalDPI > 0 { opts.Classify.NominalDPI = c.NominalDPI }
    return opts, nil
}

func (o Options) columns() []highlight.Column {
    if o.TwoColumns { return []highlight.Column{highlight.LeftColumn, highlight.RightColumn} }
    return []highlight.Column{highlight.WholePage}
}

// Extract finds the highlights of one PDF. name becomes the document title.
// The context is checked between pages.
func Extract(ctx context.Context, name string, data []byte, opts Options) (*highlight.Extraction, error) {
    start := time.Now()
    masked, intact, st, err := mask.New(opts.Palette).Apply(data)
    if err != nil { return nil, fmt.Errorf("mask %s: %w", name, err) }
    metrics.ObserveMask(st.Highlighted, st.Dropped, st.Faulty)

    ext := &highlight.Extraction{Title: name}
    if st.Highlighted == 0 {
        log.Info().Str("file", name).Int("streams", st.Streams).Msg("no highlights found")
        return ext, nil
    }

    mdoc, err := pdfdoc.Open(masked)
    if err != nil { return nil, fmt.Errorf("open masked view: %w", err) }
    defer mdoc.Close()
    idoc, err := pdfdoc.Open(intact)
    if err != nil { return nil, fmt.Errorf("open intact view: %w", err) }
    defer idoc.Close()

    if ok, diag := pdftest.HasExtractableText(idoc, 0); !ok {
        log.Warn().Str("file", name).Int("chars", diag.TotalCharsInSample).Ints("sampled_pages", diag.SampledPages).
            Msg("little or no selectable text; highlights on scanned pages come out empty")
    }

    pages := mdoc.NumPage()
    for i := 0; i < pages; i++ {
        if err := ctx.Err(); err != nil { return nil, err }
        secs, err := extractPage(mdoc, idoc, i, opts)
        if err != nil { return nil, fmt.Errorf("page %d: %w", i+1, err) }
        ext.Sections = append(ext.Sections, secs...)
    }

    texts, images := ext.Counts()
    metrics.AddPages(pages)
    metrics.AddRegions(highlight.TextCandidate.String(), texts)
    metrics.AddRegions(highlight.ImageCandidate.String(), images)
    log.Info().Str("file", name).Int("pages", pages).Int("sections", len(ext.Sections)).
        Int("texts", texts).Int("images", images).Dur("duration", time.Since(start)).Msg("extraction complete")
    return ext, nil
}

// extractPage runs detection and emission for every column of page i.
// MuPDF and the glyph reader may panic on broken input; that fails the page.
func extractPage(mdoc, idoc *pdfdoc.Document, i int, opts Options) (secs []highlight.Section, err error) {
    defer func() {
        if r := recover(); r != nil { err = fmt.Errorf("panic: %v", r) }
    }()
    mp, err := mdoc.Page(i)
    if err != nil { return nil, err }
    ip, err := idoc.Page(i)
    if err != nil { return nil, err }

    for _, col := range opts.columns() {
        res, err := detect.Detect(mp, col, opts.Detect)
        if err != nil { return nil, err }
        if len(res.Regions) == 0 { continue }
        sec, err := classify.Emit(ip, mp.Number(), col, res, opts.Classify)
        if err != nil { return nil, err }
        secs = append(secs, sec)
    }
    return secs, nil
}

// Package mask rewrites PDF page content streams so that only highlighter ink
// survives, rendered as solid black. The rewritten document is only good for
// detection; words and pixels must come from an intact copy.
package mask

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"
)

// DefaultPalette lists the color operators written by the tablet highlighter.
// The first entry predates firmware 2.7, the others are used from 2.7 on.
var DefaultPalette = [][]byte{
	[]byte("1 0.952941 0.658824 RG"),
	[]byte("0.992157 1 0.196078 rg"),
	[]byte("1 1 0 RG"),
}

var blackStroke = []byte("0 0 0 RG")

var (
	// "/GS1 gs" sets opacity or blend modes that would lighten the mask.
	gsOperator = regexp.MustCompile(`/[^\s/\[\]()<>{}%]+\s+gs\b`)
	num        = `[-+]?(?:\d+\.?\d*|\.\d+)`
	// "q\n<a> 0 0 <d> <e> <f> cm" shifts the ink away from page space.
	blockTransform = regexp.MustCompile(`q(\s+)` + num + `\s+0\s+0\s+` + num + `\s+` + num + `\s+` + num + `\s+cm`)
)

func init() {
	api.DisableConfigDir()
}

// Stats summarises one Apply run.
type Stats struct {
	Streams     int // page content streams inspected
	Highlighted int // streams rewritten as ink
	Dropped     int // streams emptied for lack of highlight
	Faulty      int // streams that could not be decoded
}

// Extractor isolates highlighter ink.
type Extractor struct {
	Palette [][]byte
}

// New returns an Extractor using palette, or DefaultPalette when palette is empty.
func New(palette [][]byte) *Extractor {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &Extractor{Palette: palette}
}

// Apply parses data twice and returns the masked view (highlight ink only)
// and the intact view (everything except highlight ink).
func (e *Extractor) Apply(data []byte) (masked, intact []byte, st Stats, err error) {
	maskCtx, err := readContext(data)
	if err != nil {
		return nil, nil, st, fmt.Errorf("read pdf: %w", err)
	}
	intactCtx, err := readContext(data)
	if err != nil {
		return nil, nil, st, fmt.Errorf("read pdf: %w", err)
	}

	objNrs, err := contentStreams(maskCtx)
	if err != nil {
		return nil, nil, st, err
	}

	for _, nr := range objNrs {
		st.Streams++
		entry, ok := maskCtx.FindTableEntryLight(nr)
		if !ok || entry.Free || entry.Object == nil {
			st.Faulty++
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			st.Faulty++
			continue
		}
		if sd.Content == nil {
			if derr := sd.Decode(); derr != nil {
				log.Debug().Err(derr).Int("obj", nr).Msg("undecodable content stream, treating as no highlight")
				st.Faulty++
				entry.Object = emptyStream(sd)
				continue
			}
		}

		sig := MatchSignature(sd.Content, e.Palette)
		if sig < 0 {
			st.Dropped++
			entry.Object = emptyStream(sd)
			continue
		}

		st.Highlighted++
		entry.Object = replaceContent(sd, Rewrite(sd.Content, e.Palette[sig]))
		if ie, ok := intactCtx.FindTableEntryLight(nr); ok {
			if isd, ok := ie.Object.(types.StreamDict); ok {
				ie.Object = emptyStream(isd)
			}
		}
	}

	log.Debug().
		Int("streams", st.Streams).
		Int("highlighted", st.Highlighted).
		Int("dropped", st.Dropped).
		Int("faulty", st.Faulty).
		Msg("mask applied")

	if masked, err = writeContext(maskCtx); err != nil {
		return nil, nil, st, fmt.Errorf("write masked view: %w", err)
	}
	if intact, err = writeContext(intactCtx); err != nil {
		return nil, nil, st, fmt.Errorf("write intact view: %w", err)
	}
	return masked, intact, st, nil
}

// MatchSignature returns the index of the first palette entry found in
// content, or -1.
func MatchSignature(content []byte, palette [][]byte) int {
	for i, sig := range palette {
		if bytes.Contains(content, sig) {
			return i
		}
	}
	return -1
}

// Rewrite turns a highlight stream into solid black ink: the matched color
// becomes a black stroke, graphics-state operators are stripped and block
// transforms are reset to identity.
func Rewrite(content, signature []byte) []byte {
	out := bytes.ReplaceAll(content, signature, blackStroke)
	out = gsOperator.ReplaceAll(out, []byte(" "))
	out = blockTransform.ReplaceAll(out, []byte("q${1}1 0 0 1 0 0 cm"))
	return out
}

func readContext(data []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return ctx, nil
}

func writeContext(ctx *model.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// contentStreams returns the sorted object numbers of every page content stream.
func contentStreams(ctx *model.Context) ([]int, error) {
	seen := map[int]bool{}
	for p := 1; p <= ctx.PageCount; p++ {
		d, _, _, err := ctx.PageDict(p, false)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		if d == nil {
			continue
		}
		obj, found := d.Find("Contents")
		if !found || obj == nil {
			continue
		}
		collectRefs(ctx, obj, seen)
	}
	out := make([]int, 0, len(seen))
	for nr := range seen {
		out = append(out, nr)
	}
	sort.Ints(out)
	return out, nil
}

func collectRefs(ctx *model.Context, obj types.Object, seen map[int]bool) {
	switch o := obj.(type) {
	case types.IndirectRef:
		nr := o.ObjectNumber.Value()
		if seen[nr] {
			return
		}
		// A /Contents reference may point at an array of streams.
		if deref, err := ctx.Dereference(o); err == nil {
			if arr, ok := deref.(types.Array); ok {
				collectRefs(ctx, arr, seen)
				return
			}
		}
		seen[nr] = true
	case types.Array:
		for _, item := range o {
			collectRefs(ctx, item, seen)
		}
	}
}

// emptyStream drops every drawing operator of sd.
func emptyStream(sd types.StreamDict) types.StreamDict {
	return replaceContent(sd, []byte{})
}

// replaceContent stores content unfiltered so no encoder is needed.
func replaceContent(sd types.StreamDict, content []byte) types.StreamDict {
	sd.Delete("Filter")
	sd.Delete("DecodeParms")
	sd.FilterPipeline = nil
	sd.Content = content
	sd.Raw = content
	n := int64(len(content))
	sd.StreamLength = &n
	sd.Update("Length", types.Integer(n))
	return sd
}

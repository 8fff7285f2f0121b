package pdfdoc

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/local/hlextract/internal/geom"
)

// Word is a whitespace-delimited run of glyphs on one baseline.
type Word struct {
	Rect geom.Rect
	Text string
}

const (
	ascent  = 0.8
	descent = 0.2
	// Glyphs further apart than this fraction of the font size start a new word.
	wordGapRatio = 0.3
	// Glyphs whose baselines differ by more than this fraction of the font size
	// belong to different lines.
	baselineRatio = 0.5
)

// Words returns the words of the page in content-stream order.
func (p *Page) Words() (words []Word, err error) {
	// Malformed content streams make the text reader panic.
	defer func() {
		if rec := recover(); rec != nil {
			words = nil
			err = fmt.Errorf("panic during text extraction on page %d: %v", p.Number(), rec)
		}
	}()

	r, err := p.doc.textReader()
	if err != nil {
		return nil, fmt.Errorf("failed to read text layer: %w", err)
	}
	lp := r.Page(p.Number())
	if lp.V.IsNull() {
		return nil, fmt.Errorf("invalid page %d", p.Number())
	}

	box := cropBox(lp.V)
	return groupWords(lp.Content().Text, box), nil
}

// cropBox returns the inherited crop box (or media box) as [x0 y0 x1 y1] in
// PDF user space.
func cropBox(v pdf.Value) [4]float64 {
	for _, key := range []string{"CropBox", "MediaBox"} {
		for node := v; !node.IsNull(); node = node.Key("Parent") {
			b := node.Key(key)
			if b.Kind() == pdf.Array && b.Len() == 4 {
				x0, y0, x1, y1 := b.Index(0).Float64(), b.Index(1).Float64(), b.Index(2).Float64(), b.Index(3).Float64()
				return [4]float64{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
			}
		}
	}
	return [4]float64{0, 0, 612, 792}
}

// groupWords joins glyphs into words and maps them to top-left page space
// relative to box.
func groupWords(glyphs []pdf.Text, box [4]float64) []Word {
	var (
		words []Word
		cur   strings.Builder
		rect  geom.Rect
		last  pdf.Text
		open  bool
	)
	flush := func() {
		if open && cur.Len() > 0 {
			words = append(words, Word{Rect: rect, Text: cur.String()})
		}
		cur.Reset()
		open = false
	}

	for _, g := range glyphs {
		if g.S == "" || strings.TrimFunc(g.S, unicode.IsSpace) == "" {
			flush()
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = 1
		}
		if open {
			gap := g.X - (last.X + last.W)
			if math.Abs(g.Y-last.Y) > baselineRatio*size || gap > wordGapRatio*size || g.X < last.X {
				flush()
			}
		}

		baseline := box[3] - g.Y
		gr := geom.R(g.X-box[0], baseline-ascent*size, g.X-box[0]+g.W, baseline+descent*size)
		if !open {
			rect = gr
			open = true
		} else {
			rect = geom.R(min(rect.X0, gr.X0), min(rect.Y0, gr.Y0), max(rect.X1, gr.X1), max(rect.Y1, gr.Y1))
		}
		cur.WriteString(strings.TrimSpace(g.S))
		last = g
	}
	flush()
	return words
}

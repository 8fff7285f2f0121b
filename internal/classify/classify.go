// Package classify turns detected regions into extraction units using the
// intact view of a page: words for text candidates, bitmap crops for image
// candidates.
package classify

import (
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/hlextract/internal/detect"
	"github.com/local/hlextract/internal/geom"
	"github.com/local/hlextract/internal/highlight"
	"github.com/local/hlextract/internal/pdfdoc"
)

// Page is the intact view of a document page.
type Page interface {
	Render(scale float64, clip geom.Rect) (image.Image, error)
	Words() ([]pdfdoc.Word, error)
}

// Margins grow a text region before collecting words.
type Margins struct {
	Left, Top, Right, Bottom float64
}

// Config holds quality and tuning values of the emitter.
type Config struct {
	// Margins compensate glyph overhang and highlight drift between
	// firmware versions; the asymmetry is intentional.
	Margins Margins
	// Quality drives the crop scale Quality/QualityDivisor.
	Quality          int
	QualityDivisor   float64
	ReferenceQuality float64
	// NominalDPI converts crop pixels to inches.
	NominalDPI float64
	// Crops whose quality-normalised height is at most MinImageHeight pixels
	// are dropped as detection artifacts.
	MinImageHeight float64
}

// DefaultConfig returns the emitter defaults.
func DefaultConfig() Config {
	return Config{
		Margins:          Margins{Left: 10, Top: 5, Right: 25, Bottom: 5},
		Quality:          100,
		QualityDivisor:   50,
		ReferenceQuality: 2,
		NominalDPI:       96,
		MinImageHeight:   20,
	}
}

// scale returns the crop render scale q.
func (c Config) scale() float64 {
	div := c.QualityDivisor
	if div <= 0 {
		div = 50
	}
	q := float64(c.Quality) / div
	if q <= 0 {
		q = 2
	}
	return q
}

// Emit builds the section for one page or column from a detection result.
// pageNum is 1-based.
func Emit(page Page, pageNum int, col highlight.Column, res detect.Result, cfg Config) (highlight.Section, error) {
	sec := highlight.Section{Page: pageNum, Column: col}

	var (
		words   []pdfdoc.Word
		fetched bool
	)
	for _, reg := range res.Regions {
		switch reg.Kind {
		case highlight.ImageCandidate:
			blk, err := cropImage(page, pageNum, col, reg, cfg)
			if err != nil {
				return sec, err
			}
			if blk != nil {
				sec.Units = append(sec.Units, blk)
			}
		default:
			if !fetched {
				w, err := page.Words()
				if err != nil {
					return sec, fmt.Errorf("page %d words: %w", pageNum, err)
				}
				words, fetched = w, true
			}
			sec.Units = append(sec.Units, &highlight.TextBlock{
				Region: reg,
				Lines:  TextLines(words, reg.Rect.Expand(cfg.Margins.Left, cfg.Margins.Top, cfg.Margins.Right, cfg.Margins.Bottom), res.Exclusions),
			})
		}
	}

	texts, images := 0, 0
	for _, u := range sec.Units {
		if _, ok := u.(*highlight.ImageBlock); ok {
			images++
		} else {
			texts++
		}
	}
	log.Debug().
		Int("page", pageNum).
		Int("column", int(col)).
		Int("regions", len(res.Regions)).
		Int("texts", texts).
		Int("images", images).
		Msg("section emitted")
	return sec, nil
}

// TextLines collects the words fully inside query whose centre is outside
// every exclusion rectangle and groups them into reading-order lines.
func TextLines(words []pdfdoc.Word, query geom.Rect, exclusions []geom.Rect) []string {
	var kept []pdfdoc.Word
	for _, w := range words {
		if !query.ContainsRect(w.Rect) || excluded(w.Rect.Center(), exclusions) {
			continue
		}
		kept = append(kept, w)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Rect.Y1 != kept[j].Rect.Y1 {
			return kept[i].Rect.Y1 < kept[j].Rect.Y1
		}
		return kept[i].Rect.X0 < kept[j].Rect.X0
	})

	var lines []string
	for i := 0; i < len(kept); {
		j := i
		var parts []string
		for ; j < len(kept) && kept[j].Rect.Y1 == kept[i].Rect.Y1; j++ {
			parts = append(parts, strings.ReplaceAll(kept[j].Text, "\n", ""))
		}
		lines = append(lines, strings.Join(parts, " "))
		i = j
	}
	return lines
}

func excluded(p geom.Point, exclusions []geom.Rect) bool {
	for _, x := range exclusions {
		if x.Contains(p) {
			return true
		}
	}
	return false
}

// cropImage renders reg at the quality scale. It returns nil when the crop is
// too small to be a real figure.
func cropImage(page Page, pageNum int, col highlight.Column, reg highlight.Region, cfg Config) (*highlight.ImageBlock, error) {
	q := cfg.scale()
	img, err := page.Render(q, reg.Rect)
	if err != nil {
		return nil, fmt.Errorf("page %d crop: %w", pageNum, err)
	}
	pw, ph := img.Bounds().Dx(), img.Bounds().Dy()
	norm := cfg.ReferenceQuality / q
	if float64(ph)*norm <= cfg.MinImageHeight {
		log.Debug().
			Int("page", pageNum).
			Int("height_px", ph).
			Msg("dropping undersized crop")
		return nil, nil
	}

	data, err := pdfdoc.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	dpi := cfg.NominalDPI
	if dpi <= 0 {
		dpi = 96
	}
	return &highlight.ImageBlock{
		Region:      reg,
		Name:        ImageName(pageNum, col, reg.Index),
		PNG:         data,
		WidthIn:     float64(pw) / dpi * norm,
		HeightIn:    float64(ph) / dpi * norm,
		PixelWidth:  pw,
		PixelHeight: ph,
	}, nil
}

// ImageName returns the archive name (without extension) of an image crop.
func ImageName(pageNum int, col highlight.Column, index int) string {
	return fmt.Sprintf("image-%d-%d%d", pageNum, int(col), index)
}

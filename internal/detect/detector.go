// Package detect finds highlight regions on the masked rendering of a page.
//
// The masked page is rasterised, inverted so ink is foreground, and split into
// contours. Outer contours become regions; a region framing a hole is an image
// candidate. A second pass dilates the ink, subtracts it from the filled
// bounding boxes and keeps the contours of what remains as exclusion
// rectangles: area inside a detected box that is not ink even after generous
// dilation.
package detect

import (
	"fmt"
	"image"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/hlextract/internal/geom"
	"github.com/local/hlextract/internal/highlight"
)

// Page is the part of a document page the detector needs.
type Page interface {
	CropBox() geom.Rect
	Render(scale float64, clip geom.Rect) (image.Image, error)
}

// Config holds the tuning of the detector. The iteration counts were tuned
// against one tablet's rendering and are kept configurable.
type Config struct {
	DilateIterations    int     // 1x3 then 3x1 dilations of the ink
	ExclusionIterations int     // 3x1 dilations of the remainder
	Scale               float64 // render pixels per point
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{DilateIterations: 10, ExclusionIterations: 10, Scale: 1.0}
}

// Result holds the regions of one page or column, in reading order, and the
// exclusion rectangles in no particular order. Both are in page coordinates.
type Result struct {
	Regions    []highlight.Region
	Exclusions []geom.Rect
}

// ColumnClip returns the part of crop processed for col. Columns split the
// crop box into two halves of equal width.
func ColumnClip(crop geom.Rect, col highlight.Column) geom.Rect {
	mid := crop.X0 + crop.Width()/2
	switch col {
	case highlight.LeftColumn:
		return geom.R(crop.X0, crop.Y0, mid, crop.Y1)
	case highlight.RightColumn:
		return geom.R(mid, crop.Y0, crop.X1, crop.Y1)
	default:
		return crop
	}
}

// Detect renders the clip of page selected by col and returns its regions.
func Detect(page Page, col highlight.Column, cfg Config) (Result, error) {
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	clip := ColumnClip(page.CropBox(), col)
	img, err := page.Render(cfg.Scale, clip)
	if err != nil {
		return Result{}, fmt.Errorf("render mask: %w", err)
	}
	res := Analyze(toGrayscale(img), cfg)
	return res.toPage(clip, cfg.Scale), nil
}

// Analyze runs contour and exclusion analysis on a rendered mask (ink dark on
// a light background). Rectangles are in pixel units of mask.
func Analyze(mask *image.Gray, cfg Config) Result {
	ink := Invert(mask)
	contours := FindContours(ink)
	if len(contours) == 0 {
		return Result{}
	}

	boxes := make([]image.Rectangle, len(contours))
	for i, c := range contours {
		boxes[i] = c.Box
	}
	filled := FillRects(ink.Bounds(), boxes)
	dilated := DilateV(DilateH(ink, cfg.DilateIterations), cfg.DilateIterations)
	remainder := DilateV(Subtract(filled, dilated), cfg.ExclusionIterations)

	var res Result
	for _, c := range FindContours(remainder) {
		res.Exclusions = append(res.Exclusions, pixelRect(c.Box))
	}

	hasChild := make([]bool, len(contours))
	for _, c := range contours {
		if c.IsHole() {
			hasChild[c.Parent] = true
		}
	}
	for i, c := range contours {
		if c.IsHole() {
			continue
		}
		kind := highlight.TextCandidate
		if hasChild[i] {
			kind = highlight.ImageCandidate
		}
		res.Regions = append(res.Regions, highlight.Region{
			Rect:  pixelRect(c.Box),
			Kind:  kind,
			Index: len(res.Regions),
		})
	}
	SortRegions(res.Regions)

	log.Debug().
		Int("contours", len(contours)).
		Int("regions", len(res.Regions)).
		Int("exclusions", len(res.Exclusions)).
		Msg("mask analysed")
	return res
}

// SortRegions orders regions by top edge, then left edge. Index is left as
// the detection order.
func SortRegions(regions []highlight.Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		a, b := regions[i].Rect, regions[j].Rect
		if a.Y0 != b.Y0 {
			return a.Y0 < b.Y0
		}
		return a.X0 < b.X0
	})
}

func pixelRect(r image.Rectangle) geom.Rect {
	return geom.R(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
}

// toPage maps pixel rectangles back to page space: undo the render scale,
// shift by the clip origin and keep regions inside the clip.
func (r Result) toPage(clip geom.Rect, scale float64) Result {
	local := geom.R(0, 0, clip.Width(), clip.Height())
	out := Result{Regions: make([]highlight.Region, 0, len(r.Regions))}
	for _, reg := range r.Regions {
		rect := reg.Rect.Scale(1 / scale).Intersect(local)
		if rect.Empty() {
			continue
		}
		reg.Rect = rect.Translate(clip.X0, clip.Y0)
		out.Regions = append(out.Regions, reg)
	}
	for _, x := range r.Exclusions {
		out.Exclusions = append(out.Exclusions, x.Scale(1/scale).Translate(clip.X0, clip.Y0))
	}
	if len(out.Regions) == 0 {
		out.Regions = nil
	}
	return out
}

package pdfdoc

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/local/hlextract/internal/geom"
)

// Render rasterises the part of the page inside clip at scale pixels per
// point. Pixel (0,0) of the result maps to clip's top-left corner.
func (p *Page) Render(scale float64, clip geom.Rect) (image.Image, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("invalid render scale %g", scale)
	}
	clip = clip.Intersect(p.bounds)
	if clip.Empty() {
		return nil, fmt.Errorf("clip outside page %d", p.Number())
	}

	full, err := p.doc.fz.ImageDPI(p.index, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", p.Number(), err)
	}

	px := PixelRect(clip, scale).Add(full.Bounds().Min).Intersect(full.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, px.Dx(), px.Dy()))
	draw.Draw(out, out.Bounds(), full, px.Min, draw.Src)

	log.Debug().
		Int("page", p.Number()).
		Float64("scale", scale).
		Int("width", px.Dx()).
		Int("height", px.Dy()).
		Msg("rendered page clip")
	return out, nil
}

// PixelRect maps a page-space rectangle to the pixel grid of a render at scale.
func PixelRect(r geom.Rect, scale float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X0*scale)),
		int(math.Floor(r.Y0*scale)),
		int(math.Ceil(r.X1*scale)),
		int(math.Ceil(r.Y1*scale)),
	)
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

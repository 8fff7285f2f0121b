package detect

import (
	"image"
	"image/color"
	"image/draw"
)

// toGrayscale converts an image to an 8-bit grayscale bitmap anchored at (0,0).
func toGrayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) && g.Stride == g.Bounds().Dx() {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
	return gray
}

// Invert returns 255-v for every pixel so that dark ink becomes foreground.
func Invert(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		dst := out.Pix[out.PixOffset(b.Min.X, y):out.PixOffset(b.Max.X, y)]
		for i, v := range src {
			dst[i] = 255 - v
		}
	}
	return out
}

// DilateH applies a 1x3 (horizontal) max filter n times.
func DilateH(img *image.Gray, n int) *image.Gray {
	return dilate(img, n, 1, 0)
}

// DilateV applies a 3x1 (vertical) max filter n times.
func DilateV(img *image.Gray, n int) *image.Gray {
	return dilate(img, n, 0, 1)
}

// dilate takes the maximum over the pixel and its neighbours at ±(dx,dy).
// Neighbours outside the image are ignored.
func dilate(img *image.Gray, n, dx, dy int) *image.Gray {
	b := img.Bounds()
	src := cloneGray(img)
	if n <= 0 {
		return src
	}
	dst := image.NewGray(b)
	for it := 0; it < n; it++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				v := src.GrayAt(x, y).Y
				if p := (image.Point{X: x - dx, Y: y - dy}); p.In(b) {
					v = max(v, src.GrayAt(p.X, p.Y).Y)
				}
				if p := (image.Point{X: x + dx, Y: y + dy}); p.In(b) {
					v = max(v, src.GrayAt(p.X, p.Y).Y)
				}
				dst.SetGray(x, y, color.Gray{Y: v})
			}
		}
		src, dst = dst, src
	}
	return src
}

// Subtract returns max(a-b, 0) per pixel. Both images must share bounds.
func Subtract(a, b *image.Gray) *image.Gray {
	r := a.Bounds()
	out := image.NewGray(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		pa := a.Pix[a.PixOffset(r.Min.X, y):a.PixOffset(r.Max.X, y)]
		pb := b.Pix[b.PixOffset(r.Min.X, y):b.PixOffset(r.Max.X, y)]
		dst := out.Pix[out.PixOffset(r.Min.X, y):out.PixOffset(r.Max.X, y)]
		for i := range pa {
			if pa[i] > pb[i] {
				dst[i] = pa[i] - pb[i]
			}
		}
	}
	return out
}

// FillRects draws every rectangle filled with 255 onto a blank bitmap of the
// given bounds. The far edge (Max) is painted too.
func FillRects(bounds image.Rectangle, rects []image.Rectangle) *image.Gray {
	out := image.NewGray(bounds)
	for _, r := range rects {
		r = image.Rect(r.Min.X, r.Min.Y, r.Max.X+1, r.Max.Y+1).Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

func cloneGray(img *image.Gray) *image.Gray {
	out := image.NewGray(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

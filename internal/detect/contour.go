package detect

import (
	"image"
)

// Contour is the bounding box of an outer boundary or of a hole, with the
// index of its parent contour (-1 for outer boundaries).
//
// The hierarchy has two levels: outer boundaries of ink components, and the
// holes directly inside them. A component sitting inside a hole is an outer
// boundary of its own.
type Contour struct {
	Box    image.Rectangle // Max is exclusive, as in (x, y, x+w, y+h)
	Parent int
}

// IsHole reports whether c bounds a hole of another contour.
func (c Contour) IsHole() bool { return c.Parent >= 0 }

// component is a connected set of pixels found by floodFill.
type component struct {
	MinX, MinY, MaxX, MaxY int
	FirstX, FirstY         int
	TouchesBorder          bool
}

func (c component) box() image.Rectangle {
	return image.Rect(c.MinX, c.MinY, c.MaxX+1, c.MaxY+1)
}

// FindContours extracts the two-level contour hierarchy of img. Non-zero
// pixels are foreground; foreground is 8-connected, background 4-connected.
// Outer boundaries come first in raster order of their top-left pixel, then
// holes in the same order.
func FindContours(img *image.Gray) []Contour {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	labels := make([][]int, h)
	for i := range labels {
		labels[i] = make([]int, w)
		for j := range labels[i] {
			labels[i][j] = -1
		}
	}
	ink := func(x, y int) bool { return img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)] != 0 }

	var contours []Contour

	// Ink components.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if labels[y][x] >= 0 || !ink(x, y) {
				continue
			}
			comp := floodFill(labels, len(contours), x, y, w, h, ink, true)
			contours = append(contours, Contour{Box: comp.box(), Parent: -1})
		}
	}
	if len(contours) == 0 {
		return nil
	}
	outer := len(contours)

	// Background components; those not reaching the border are holes.
	bg := func(x, y int) bool { return !ink(x, y) }
	next := outer
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if labels[y][x] >= 0 || ink(x, y) {
				continue
			}
			comp := floodFill(labels, next, x, y, w, h, bg, false)
			next++
			if comp.TouchesBorder {
				continue
			}
			// The pixel left of a hole's first raster pixel belongs to the
			// component that surrounds it.
			parent := labels[comp.FirstY][comp.FirstX-1]
			if parent < 0 || parent >= outer {
				continue
			}
			// The hole contour runs along the ink pixels around it.
			box := image.Rect(comp.MinX-1, comp.MinY-1, comp.MaxX+2, comp.MaxY+2).Intersect(image.Rect(0, 0, w, h))
			contours = append(contours, Contour{Box: box, Parent: parent})
		}
	}

	if b.Min != (image.Point{}) {
		for i := range contours {
			contours[i].Box = contours[i].Box.Add(b.Min)
		}
	}
	return contours
}

// floodFill labels the connected component containing (startX, startY) with
// label and returns its extent. Coordinates are relative to the bitmap origin.
func floodFill(labels [][]int, label, startX, startY, w, h int, member func(x, y int) bool, eight bool) component {
	comp := component{
		MinX: startX, MinY: startY, MaxX: startX, MaxY: startY,
		FirstX: startX, FirstY: startY,
	}

	// Stack-based to avoid deep recursion on large components.
	stack := []image.Point{{X: startX, Y: startY}}
	labels[startY][startX] = label

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := p.X, p.Y

		if x < comp.MinX {
			comp.MinX = x
		}
		if x > comp.MaxX {
			comp.MaxX = x
		}
		if y < comp.MinY {
			comp.MinY = y
		}
		if y > comp.MaxY {
			comp.MaxY = y
		}
		if x == 0 || y == 0 || x == w-1 || y == h-1 {
			comp.TouchesBorder = true
		}

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				if !eight && dx != 0 && dy != 0 {
					continue
				}
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				if labels[ny][nx] >= 0 || !member(nx, ny) {
					continue
				}
				labels[ny][nx] = label
				stack = append(stack, image.Point{X: nx, Y: ny})
			}
		}
	}
	return comp
}

// Package highlight holds the domain model shared by the detection and
// emission stages: regions found on a page and the extraction units built
// from them.
package highlight

import (
	"fmt"

	"github.com/local/hlextract/internal/geom"
)

// Kind classifies a top-level region.
type Kind int

const (
	// TextCandidate is a region without a nested child; its words are extracted.
	TextCandidate Kind = iota
	// ImageCandidate is a region framing a nested child; it is cropped as an image.
	ImageCandidate
)

func (k Kind) String() string {
	switch k {
	case TextCandidate:
		return "text"
	case ImageCandidate:
		return "image"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column selects which part of the page is processed.
type Column int

const (
	WholePage   Column = 0
	LeftColumn  Column = 1
	RightColumn Column = 2
)

// Region is a detected highlight rectangle in page coordinates.
type Region struct {
	Rect geom.Rect
	Kind Kind
	// Index is the position of the region in detection order, before the
	// reading-order sort.
	Index int
}

// Unit is one piece of extracted output: a *TextBlock or an *ImageBlock.
type Unit interface {
	Source() Region
}

// TextBlock holds the reading-ordered lines of a text region. Lines may be
// empty when no word survived filtering.
type TextBlock struct {
	Region Region
	Lines  []string
}

func (b *TextBlock) Source() Region { return b.Region }

// ImageBlock is a PNG crop of an image region with its physical size in inches.
type ImageBlock struct {
	Region      Region
	Name        string
	PNG         []byte
	WidthIn     float64
	HeightIn    float64
	PixelWidth  int
	PixelHeight int
}

func (b *ImageBlock) Source() Region { return b.Region }

// Section is the output produced for one page, or one column of a page.
type Section struct {
	Page   int // 1-based
	Column Column
	Units  []Unit
}

// Header returns the label printed before the section body.
func (s Section) Header() string {
	if s.Column == LeftColumn || s.Column == RightColumn {
		return fmt.Sprintf("page %d - column %d", s.Page, int(s.Column))
	}
	return fmt.Sprintf("page %d", s.Page)
}

// Extraction is the full result for one input document.
type Extraction struct {
	Title    string
	Sections []Section
}

// Counts returns the number of text and image units in e.
func (e *Extraction) Counts() (texts, images int) {
	for _, s := range e.Sections {
		for _, u := range s.Units {
			switch u.(type) {
			case *TextBlock:
				texts++
			case *ImageBlock:
				images++
			}
		}
	}
	return texts, images
}

// Package pdfdoc opens an in-memory PDF for rendering (go-fitz) and word
// extraction (ledongthuc/pdf). Coordinates exposed by this package are in
// top-left page space, in points, relative to the page crop box.
package pdfdoc

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/local/hlextract/internal/geom"
)

// Document is an opened PDF. It is safe for sequential use only; callers
// processing pages concurrently must open one Document each.
type Document struct {
	data []byte
	fz   *fitz.Document

	once  sync.Once
	lr    *pdf.Reader
	lrErr error
}

// Open parses data with MuPDF. The text reader is created on first use.
func Open(data []byte) (*Document, error) {
	fz, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &Document{data: data, fz: fz}, nil
}

// NumPage returns the number of pages.
func (d *Document) NumPage() int {
	return d.fz.NumPage()
}

// Page returns the page at 0-based index n.
func (d *Document) Page(n int) (*Page, error) {
	if n < 0 || n >= d.fz.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", n+1, d.fz.NumPage())
	}
	b, err := d.fz.Bound(n)
	if err != nil {
		return nil, fmt.Errorf("failed to bound page %d: %w", n+1, err)
	}
	return &Page{
		doc:    d,
		index:  n,
		bounds: geom.R(0, 0, float64(b.Dx()), float64(b.Dy())),
	}, nil
}

// Close releases the MuPDF document.
func (d *Document) Close() error {
	return d.fz.Close()
}

func (d *Document) textReader() (*pdf.Reader, error) {
	d.once.Do(func() {
		d.lr, d.lrErr = pdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
	})
	return d.lr, d.lrErr
}

// Page is one page of a Document.
type Page struct {
	doc    *Document
	index  int
	bounds geom.Rect
}

// Number returns the 1-based page number.
func (p *Page) Number() int { return p.index + 1 }

// CropBox returns the crop boundary in top-left page space; its origin is (0, 0).
func (p *Page) CropBox() geom.Rect { return p.bounds }

// Text returns the plain text MuPDF extracts from the page at 0-based index n.
func (d *Document) Text(n int) (string, error) {
	return d.fz.Text(n)
}

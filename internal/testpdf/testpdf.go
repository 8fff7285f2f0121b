// Package testpdf builds small, well-formed PDF documents for tests.
package testpdf

import (
	"bytes"
	"fmt"
	"strings"
)

// Page describes one page: its MediaBox size in points and its content
// streams, each written as a separate object.
type Page struct {
	Width, Height float64
	Contents      []string
}

// Letter returns a US Letter page with the given content streams.
func Letter(contents ...string) Page {
	return Page{Width: 612, Height: 792, Contents: contents}
}

// Build serialises pages into a PDF with a single Helvetica font resource
// named /F1 and a correct cross-reference table.
func Build(pages ...Page) []byte {
	var objs []string

	// 1: catalog, 2: pages, 3: font, then per page: page object followed by its streams.
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, "") // pages tree, filled in below
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var kids []string
	for _, p := range pages {
		pageNr := len(objs) + 1
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNr))

		var refs []string
		for i := range p.Contents {
			refs = append(refs, fmt.Sprintf("%d 0 R", pageNr+1+i))
		}
		contents := ""
		switch len(refs) {
		case 0:
		case 1:
			contents = " /Contents " + refs[0]
		default:
			contents = " /Contents [" + strings.Join(refs, " ") + "]"
		}
		objs = append(objs, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 3 0 R >> >>%s >>",
			p.Width, p.Height, contents))
		for _, c := range p.Contents {
			objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(c), c))
		}
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// FilledRect returns content drawing a filled rectangle in PDF user space
// (origin bottom-left) with the given fill operator, e.g. "0 0 0 rg".
func FilledRect(x, y, w, h float64, color string) string {
	return fmt.Sprintf("%s\n%g %g %g %g re f", color, x, y, w, h)
}

// Text returns content showing s in Helvetica at size at baseline (x, y).
func Text(x, y, size float64, s string) string {
	return fmt.Sprintf("BT /F1 %g Tf %g %g Td (%s) Tj ET", size, x, y, s)
}

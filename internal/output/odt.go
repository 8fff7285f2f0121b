package output

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/local/hlextract/internal/highlight"
)

// Zip entries carry a fixed timestamp so the same extraction always produces
// the same bytes.
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const odtMimetype = "application/vnd.oasis.opendocument.text"

const (
	nsAttrs = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
		`xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0" ` +
		`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" ` +
		`xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0" ` +
		`xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0" ` +
		`xmlns:xlink="http://www.w3.org/1999/xlink" ` +
		`xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0" ` +
		`office:version="1.2"`

	automaticStyles = `<office:automatic-styles>` +
		`<style:style style:name="PTitle" style:family="paragraph"><style:text-properties fo:font-size="16pt" fo:font-weight="bold"/></style:style>` +
		`<style:style style:name="PHeader" style:family="paragraph"><style:text-properties fo:font-weight="bold"/></style:style>` +
		`<style:style style:name="PBody" style:family="paragraph"><style:paragraph-properties fo:text-align="justify"/></style:style>` +
		`<style:style style:name="PImage" style:family="paragraph"><style:paragraph-properties fo:text-align="center"/></style:style>` +
		`<style:style style:name="fr1" style:family="graphic"><style:graphic-properties style:horizontal-pos="center" style:horizontal-rel="paragraph" style:wrap="none"/></style:style>` +
		`</office:automatic-styles>`
)

// WriteODT writes e as an OpenDocument text package: a title paragraph, then
// per section a separator and a header, then per unit a blank paragraph
// followed by the text or an anchored, centred image frame.
func WriteODT(w io.Writer, e *highlight.Extraction) error {
	zw := zip.NewWriter(w)

	// The mimetype entry must come first and be stored uncompressed.
	if err := addEntry(zw, "mimetype", zip.Store, []byte(odtMimetype)); err != nil {
		return err
	}

	var images []*highlight.ImageBlock
	for _, s := range e.Sections {
		for _, u := range s.Units {
			if ib, ok := u.(*highlight.ImageBlock); ok {
				images = append(images, ib)
			}
		}
	}

	files := []struct {
		name string
		data []byte
	}{
		{"META-INF/manifest.xml", []byte(manifestXML(images))},
		{"styles.xml", []byte(stylesXML())},
		{"content.xml", []byte(contentXML(e))},
	}
	for _, f := range files {
		if err := addEntry(zw, f.name, zip.Deflate, f.data); err != nil {
			return err
		}
	}
	for _, ib := range images {
		if err := addEntry(zw, picturePath(ib), zip.Store, ib.PNG); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close odt: %w", err)
	}
	return nil
}

func addEntry(zw *zip.Writer, name string, method uint16, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: epoch})
	if err != nil {
		return fmt.Errorf("odt entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("odt entry %s: %w", name, err)
	}
	return nil
}

func picturePath(ib *highlight.ImageBlock) string {
	return "Pictures/" + ib.Name + ".png"
}

func manifestXML(images []*highlight.ImageBlock) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">`)
	fmt.Fprintf(&b, `<manifest:file-entry manifest:full-path="/" manifest:media-type="%s"/>`, odtMimetype)
	b.WriteString(`<manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>`)
	b.WriteString(`<manifest:file-entry manifest:full-path="styles.xml" manifest:media-type="text/xml"/>`)
	for _, ib := range images {
		fmt.Fprintf(&b, `<manifest:file-entry manifest:full-path="%s" manifest:media-type="image/png"/>`, escape(picturePath(ib)))
	}
	b.WriteString(`</manifest:manifest>`)
	return b.String()
}

func stylesXML() string {
	return xml.Header + `<office:document-styles ` + nsAttrs + `><office:styles/></office:document-styles>`
}

func contentXML(e *highlight.Extraction) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<office:document-content ` + nsAttrs + `>`)
	b.WriteString(automaticStyles)
	b.WriteString(`<office:body><office:text>`)

	paragraph(&b, "PTitle", e.Title)
	z := 0
	for _, s := range e.Sections {
		paragraph(&b, "", Separator())
		paragraph(&b, "PHeader", s.Header())
		for _, u := range s.Units {
			paragraph(&b, "", "")
			switch blk := u.(type) {
			case *highlight.TextBlock:
				paragraph(&b, "PBody", strings.Join(blk.Lines, " "))
			case *highlight.ImageBlock:
				fmt.Fprintf(&b, `<text:p text:style-name="PImage"><draw:frame draw:style-name="fr1" draw:name="%s" text:anchor-type="paragraph" svg:width="%.4fin" svg:height="%.4fin" draw:z-index="%d">`,
					escape(blk.Name), blk.WidthIn, blk.HeightIn, z)
				fmt.Fprintf(&b, `<draw:image xlink:href="%s" xlink:type="simple" xlink:show="embed" xlink:actuate="onLoad"/></draw:frame></text:p>`,
					escape(picturePath(blk)))
				z++
			}
		}
	}

	b.WriteString(`</office:text></office:body></office:document-content>`)
	return b.String()
}

func paragraph(b *strings.Builder, style, s string) {
	if style == "" {
		b.WriteString(`<text:p>`)
	} else {
		fmt.Fprintf(b, `<text:p text:style-name="%s">`, style)
	}
	b.WriteString(escape(s))
	b.WriteString(`</text:p>`)
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// Package output persists an extraction as an OpenDocument text file or as
// plain text. DOCX and PDF are produced from the ODT by LibreOffice.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/local/hlextract/internal/highlight"
)

// Format is an output document format.
type Format string

const (
	ODT  Format = "odt"
	Text Format = "txt"
	DOCX Format = "docx"
	PDF  Format = "pdf"
)

// ParseFormat accepts a format name or extension, case-insensitively. An
// empty string selects ODT.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")) {
	case "", ODT:
		return ODT, nil
	case Text, "text":
		return Text, nil
	case DOCX:
		return DOCX, nil
	case PDF:
		return PDF, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string { return "." + string(f) }

// NeedsConversion reports whether f is produced by converting an ODT.
func (f Format) NeedsConversion() bool { return f == DOCX || f == PDF }

// ContentType returns the MIME type used when uploading a document.
func (f Format) ContentType() string {
	switch f {
	case ODT:
		return odtMimetype
	case DOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case PDF:
		return "application/pdf"
	}
	return "text/plain; charset=utf-8"
}

// ImageDir returns the directory the Text format stores images in for a
// document written to path.
func ImageDir(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_images"
}

// SeparatorWidth is the number of underscores in a section separator.
const SeparatorWidth = 60

// Separator returns the line printed before every section header.
func Separator() string { return strings.Repeat("_", SeparatorWidth) }

// WriteFile stores e at path in format f (ODT or Text). The document is
// written to a temporary file in the same directory and renamed into place,
// so a failure never leaves a partial file behind.
func WriteFile(path string, e *highlight.Extraction, f Format) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".hlx-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	switch f {
	case ODT:
		err = WriteODT(tmp, e)
	case Text:
		err = WriteText(tmp, e, ImageDir(path))
	default:
		err = fmt.Errorf("format %s cannot be written directly", f)
	}
	if err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp output: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

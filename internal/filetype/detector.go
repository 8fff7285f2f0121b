package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const pdfMIME = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType  string
	Extension string
	IsPDF     bool
	// NameMismatch is set when the file name suffix disagrees with the content.
	NameMismatch bool
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type of the file at path using magic bytes.
func (d *Detector) Detect(path string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	return d.info(mtype, path), nil
}

// DetectBytes detects the type of an in-memory document. name is only used to
// report a suffix mismatch and may be empty.
func (d *Detector) DetectBytes(data []byte, name string) *FileTypeInfo {
	return d.info(mimetype.Detect(data), name)
}

func (d *Detector) info(mtype *mimetype.MIME, name string) *FileTypeInfo {
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		IsPDF:     mtype.Is(pdfMIME),
	}
	if name != "" {
		hasPDFSuffix := HasPDFSuffix(name)
		info.NameMismatch = hasPDFSuffix != info.IsPDF
	}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", name).Msg("detected file type")
	return info
}

// HasPDFSuffix reports whether name ends in ".pdf", ignoring case and any URL
// query or fragment.
func HasPDFSuffix(name string) bool {
	if i := strings.IndexAny(name, "?#"); i >= 0 && strings.Contains(name, "://") {
		name = name[:i]
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/local/hlextract/internal/highlight"
)

// WriteText writes e as plain text: the title, then per section a separator
// and a header, then per unit a blank line and the unit. Text blocks print
// one line per reading-order line; images are saved as PNG files under
// imageDir and referenced by path.
func WriteText(w io.Writer, e *highlight.Extraction, imageDir string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, e.Title)
	for _, s := range e.Sections {
		fmt.Fprintln(bw, Separator())
		fmt.Fprintln(bw, s.Header())
		for _, u := range s.Units {
			fmt.Fprintln(bw)
			switch blk := u.(type) {
			case *highlight.TextBlock:
				for _, line := range blk.Lines {
					fmt.Fprintln(bw, line)
				}
			case *highlight.ImageBlock:
				if err := os.MkdirAll(imageDir, 0o755); err != nil {
					return fmt.Errorf("create image dir: %w", err)
				}
				p := filepath.Join(imageDir, blk.Name+".png")
				if err := os.WriteFile(p, blk.PNG, 0o644); err != nil {
					return fmt.Errorf("write image: %w", err)
				}
				fmt.Fprintf(bw, "[image %s %.2fin x %.2fin]\n", filepath.Join(filepath.Base(imageDir), blk.Name+".png"), blk.WidthIn, blk.HeightIn)
			}
		}
	}
	return bw.Flush()
}

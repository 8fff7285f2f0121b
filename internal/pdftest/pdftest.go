// Package pdftest checks whether a PDF carries a selectable text layer.
// Highlights on scanned pages are detected, but no words can be extracted
// from them.
package pdftest

import (
	"regexp"
	"sort"
	"time"
)

// PageProbe captures the result of probing a single PDF page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics provides detailed information about the text-extractability check.
type Diagnostics struct {
	TotalPages         int         `json:"total_pages"`
	SampledPages       []int       `json:"sampled_pages"`
	TotalCharsInSample int         `json:"total_chars_in_sample"`
	Threshold          int         `json:"threshold"`
	Probes             []PageProbe `json:"probes"`
	HasExtractableText bool        `json:"has_extractable_text"`
	DurationMs         int64       `json:"duration_ms"`
}

// DefaultThreshold is used when a non-positive threshold is passed in.
const DefaultThreshold = 300

// maxSample bounds the number of pages probed.
const maxSample = 5

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Doc is the part of a document the probe needs.
type Doc interface {
	NumPage() int
	Text(page int) (string, error)
}

// HasExtractableText samples pages of d and reports whether together they
// carry at least threshold non-whitespace characters. If threshold <= 0,
// DefaultThreshold is used.
func HasExtractableText(d Doc, threshold int) (bool, *Diagnostics) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	start := time.Now()
	total := d.NumPage()
	diag := &Diagnostics{
		TotalPages:   total,
		SampledPages: sampleIndices(total),
		Threshold:    threshold,
	}

	for _, idx := range diag.SampledPages {
		probe := PageProbe{PageIndex: idx}
		text, err := d.Text(idx)
		if err != nil {
			probe.Err = err.Error()
			diag.Probes = append(diag.Probes, probe)
			continue
		}
		probe.CharCount = len([]rune(whitespaceRegex.ReplaceAllString(text, "")))
		diag.TotalCharsInSample += probe.CharCount
		diag.Probes = append(diag.Probes, probe)
		if diag.TotalCharsInSample >= threshold {
			break
		}
	}

	diag.HasExtractableText = diag.TotalCharsInSample >= threshold
	diag.DurationMs = time.Since(start).Milliseconds()
	return diag.HasExtractableText, diag
}

// sampleIndices returns every page of short documents, otherwise the first,
// middle and last page plus evenly spaced pages in between, up to maxSample.
// The choice is deterministic so repeated runs log the same diagnostics.
func sampleIndices(total int) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= maxSample {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	set := map[int]struct{}{0: {}, total / 2: {}, total - 1: {}}
	for k := 1; len(set) < maxSample && k < maxSample; k++ {
		set[k*(total-1)/maxSample] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/roach88/ephyalign/internal/epoch"
)

// Format is an epoch artifact format.
type Format string

const (
	FormatATF Format = "atf"
	FormatCSV Format = "csv"
	FormatNPZ Format = "npz"
)

// Formats lists every supported format in output order.
var Formats = []Format{FormatATF, FormatCSV, FormatNPZ}

// ParseFormats validates and deduplicates format names, keeping their
// first-seen order.
func ParseFormats(names []string) ([]Format, error) {
	seen := make(map[Format]bool)
	var out []Format
	for _, n := range names {
		f := Format(strings.ToLower(strings.TrimSpace(n)))
		if !f.valid() {
			return nil, fmt.Errorf("unknown export format %q (atf|csv|npz)", n)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one export format is required")
	}
	return out, nil
}

func (f Format) valid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

func (f Format) encode(w io.Writer, set *epoch.Set) error {
	switch f {
	case FormatATF:
		return writeATF(w, set)
	case FormatCSV:
		return writeCSV(w, set)
	case FormatNPZ:
		return writeNPZ(w, set)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// Writer places artifacts in Dir.
type Writer struct {
	Dir       string
	Formats   []Format
	Overwrite bool
}

// ArtifactPath returns the path of one channel's artifact.
func (w *Writer) ArtifactPath(stem string, channel int, f Format) string {
	return filepath.Join(w.Dir, fmt.Sprintf("%s_ch%d.%s", stem, channel, f))
}

// SummaryPath returns the path of a file's JSON report.
func (w *Writer) SummaryPath(stem string) string {
	return filepath.Join(w.Dir, stem+"_summary.json")
}

func (w *Writer) artifactPaths(stem string, channel int) []string {
	paths := make([]string, len(w.Formats))
	for i, f := range w.Formats {
		paths[i] = w.ArtifactPath(stem, channel, f)
	}
	return paths
}

// Check returns an *OutputExistsError if any artifact of stem's channel,
// or its summary when summary is set, already exists. It always succeeds
// with Overwrite.
func (w *Writer) Check(stem string, channel int, summary bool) error {
	if w.Overwrite {
		return nil
	}
	paths := w.artifactPaths(stem, channel)
	if summary {
		paths = append(paths, w.SummaryPath(stem))
	}
	return checkFree(paths...)
}

// Write stores set in every configured format and returns the written
// paths. Unless Overwrite is set, all destinations are checked before any
// is written, so an *OutputExistsError leaves the directory untouched.
// Callers that also write a summary use Check first.
func (w *Writer) Write(set *epoch.Set, stem string) ([]string, error) {
	if len(w.Formats) == 0 {
		return nil, fmt.Errorf("no export formats configured")
	}
	if err := w.Check(stem, set.Channel.Index, false); err != nil {
		return nil, err
	}
	paths := w.artifactPaths(stem, set.Channel.Index)
	for i, f := range w.Formats {
		if err := writeFile(paths[i], func(out io.Writer) error { return f.encode(out, set) }); err != nil {
			return paths[:i], err
		}
	}
	return paths, nil
}

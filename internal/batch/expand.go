package batch

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// NoMatchError reports that no pattern matched any file.
type NoMatchError struct {
	Patterns []string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no input files match %s", strings.Join(e.Patterns, ", "))
}

// IsNoMatch reports whether err is or wraps a *NoMatchError.
func IsNoMatch(err error) bool {
	var nm *NoMatchError
	return errors.As(err, &nm)
}

// Expand resolves glob patterns and plain paths to a sorted list of
// distinct absolute file paths. Directories are skipped. A pattern that
// matches nothing is only logged; an empty overall result is an error.
func Expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			slog.Warn("pattern matched no files", "pattern", pattern)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", m, err)
			}
			if seen[abs] {
				continue
			}
			info, err := os.Stat(abs)
			if err != nil || info.IsDir() {
				continue
			}
			seen[abs] = true
			out = append(out, abs)
		}
	}
	if len(out) == 0 {
		return nil, &NoMatchError{Patterns: patterns}
	}
	slices.Sort(out)
	return out, nil
}

// Stems derives an output stem for every path from its file name without
// extension. Stems shared by more than one path get a short hash of the
// full path appended, so the result is collision-free for distinct paths.
func Stems(paths []string) []string {
	base := make([]string, len(paths))
	count := make(map[string]int)
	for i, p := range paths {
		name := filepath.Base(p)
		base[i] = strings.TrimSuffix(name, filepath.Ext(name))
		count[strings.ToLower(base[i])]++
	}
	out := make([]string, len(paths))
	used := make(map[string]bool)
	for i, p := range paths {
		stem := base[i]
		if count[strings.ToLower(stem)] > 1 {
			stem = fmt.Sprintf("%s_%s", stem, pathHash(p))
		}
		for n := 2; used[strings.ToLower(stem)]; n++ {
			stem = fmt.Sprintf("%s_%s_%d", base[i], pathHash(p), n)
		}
		used[strings.ToLower(stem)] = true
		out[i] = stem
	}
	return out
}

func pathHash(p string) string {
	h := fnv.New32a()
	h.Write([]byte(p))
	return fmt.Sprintf("%08x", h.Sum32())
}

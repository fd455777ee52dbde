package abf

import (
	"fmt"
	"os"
	"time"
)

// Decode reads and parses the ABF file at path. The file is read in full
// and closed before Decode returns.
func Decode(path string) (*Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return DecodeBytes(path, data)
}

// DecodeBytes parses an in-memory ABF file. name is used in errors and as
// the recording's path.
func DecodeBytes(name string, data []byte) (*Recording, error) {
	if len(data) < 4 {
		return nil, &FormatError{Path: name, Reason: "file too short for magic bytes"}
	}
	lay, ok := layouts[string(data[:4])]
	if !ok {
		return nil, &FormatError{Path: name, Reason: fmt.Sprintf("unrecognized magic %q", data[:4])}
	}

	r := &fileReader{path: name, data: data}
	h, err := lay.parse(r)
	if err != nil {
		return nil, err
	}
	return build(name, h, r)
}

// build turns a parsed header into a Recording, validating the data
// section against the file length and the declared sweep organization.
func build(name string, h *header, r *fileReader) (*Recording, error) {
	nch := int64(len(h.channels))
	if h.dataCount <= 0 {
		return nil, &FormatError{Path: name, Reason: "data section is empty"}
	}
	if h.dataCount%nch != 0 {
		return nil, &FormatError{Path: name, Reason: fmt.Sprintf("%d samples do not divide into %d channels", h.dataCount, nch)}
	}
	size := int64(h.format.Size())
	if !r.needEntries("data", h.dataStart, size, h.dataCount) {
		return nil, r.err
	}
	raw := r.data[h.dataStart : h.dataStart+h.dataCount*size]

	perChannel := h.dataCount / nch
	sweeps := int64(1)
	if h.mode.sweeps() && h.episodes > 1 {
		sweeps = int64(h.episodes)
	}
	if perChannel%sweeps != 0 {
		return nil, &FormatError{Path: name, Reason: fmt.Sprintf("%d samples per channel do not divide into %d sweeps", perChannel, sweeps)}
	}
	sweepLen := int(perChannel / sweeps)

	rec := &Recording{
		path:     name,
		version:  h.version,
		mode:     h.mode,
		rate:     h.rate,
		channels: h.channels,
		tags:     h.tags,
		creator:  h.creator,
		protocol: h.protocol,
		samples: &sampleStore{
			data:     raw,
			order:    h.order,
			format:   h.format,
			layout:   h.layout,
			channels: int(nch),
			sweeps:   int(sweeps),
			sweepLen: sweepLen,
		},
	}

	sweepDur := float64(sweepLen) / h.rate
	step := sweepDur
	if h.episodeDt > sweepDur {
		step = h.episodeDt
	}
	for i := 0; i < int(sweeps); i++ {
		rec.sweeps = append(rec.sweeps, Sweep{Index: i, Start: float64(i) * step, Length: sweepLen})
	}
	rec.startTime = startTime(h.startDate, h.startMS)
	return rec, nil
}

// startTime combines a YYYYMMDD date with milliseconds since midnight.
func startTime(date, ms uint32) time.Time {
	if date == 0 {
		return time.Time{}
	}
	y, m, d := int(date/10000), time.Month(date/100%100), int(date%100)
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(time.Duration(ms) * time.Millisecond)
}

package export

import (
	"encoding/json"
	"io"
	"path/filepath"
	"time"

	"github.com/roach88/ephyalign/internal/epoch"
)

// BatchSummaryName is the file name of the batch report in the output
// directory.
const BatchSummaryName = "batch_summary.json"

// FileSummary is the JSON report written next to a file's artifacts.
type FileSummary struct {
	Source       string           `json:"source"`
	Version      string           `json:"version"`
	Channel      int              `json:"channel"`
	ChannelName  string           `json:"channel_name"`
	Unit         string           `json:"unit"`
	SampleRate   float64          `json:"sample_rate_hz"`
	Detection    string           `json:"detection"`
	PreTime      float64          `json:"pre_time_s"`
	PostTime     float64          `json:"post_time_s"`
	EpochSamples int              `json:"epoch_samples"`
	Baseline     []float64        `json:"baseline_s,omitempty"`
	Policy       string           `json:"out_of_range"`
	EventsFound  int              `json:"events_found"`
	Epochs       []EpochSummary   `json:"epochs"`
	Dropped      []DroppedSummary `json:"dropped"`
	Outputs      []string         `json:"outputs"`
}

// EpochSummary describes one extracted epoch.
type EpochSummary struct {
	Time      float64 `json:"time_s"`
	Sweep     int     `json:"sweep"`
	Sample    int     `json:"sample"`
	Label     string  `json:"label,omitempty"`
	Source    string  `json:"source"`
	Baseline  float64 `json:"baseline,omitempty"`
	PadBefore int     `json:"pad_before,omitempty"`
	PadAfter  int     `json:"pad_after,omitempty"`
}

// DroppedSummary describes an event that produced no epoch.
type DroppedSummary struct {
	Time   float64 `json:"time_s"`
	Sweep  int     `json:"sweep"`
	Reason string  `json:"reason"`
}

// NewFileSummary describes set. found is the number of located events,
// which differs from the epoch count when events were dropped.
func NewFileSummary(set *epoch.Set, version, detection string, found int) FileSummary {
	s := FileSummary{
		Source:       set.Path,
		Version:      version,
		Channel:      set.Channel.Index,
		ChannelName:  set.Channel.Name,
		Unit:         set.Channel.Unit,
		SampleRate:   set.Rate,
		Detection:    detection,
		PreTime:      set.Window.Pre,
		PostTime:     set.Window.Post,
		EpochSamples: set.EpochLen(),
		Policy:       string(set.Policy),
		EventsFound:  found,
		Epochs:       make([]EpochSummary, 0, set.Len()),
		Dropped:      make([]DroppedSummary, 0, len(set.Dropped)),
		Outputs:      []string{},
	}
	if set.Baseline != nil {
		s.Baseline = []float64{set.Baseline.From, set.Baseline.To}
	}
	for _, ep := range set.Epochs {
		s.Epochs = append(s.Epochs, EpochSummary{
			Time:      ep.Event.Time,
			Sweep:     ep.Event.Sweep,
			Sample:    ep.Event.Sample,
			Label:     ep.Event.Label,
			Source:    string(ep.Event.Source),
			Baseline:  ep.Baseline,
			PadBefore: ep.PadBefore,
			PadAfter:  ep.PadAfter,
		})
	}
	for _, d := range set.Dropped {
		s.Dropped = append(s.Dropped, DroppedSummary{Time: d.Event.Time, Sweep: d.Event.Sweep, Reason: d.Reason})
	}
	return s
}

// WriteSummary writes a file report to SummaryPath(stem).
func (w *Writer) WriteSummary(stem string, s FileSummary) (string, error) {
	path := w.SummaryPath(stem)
	if !w.Overwrite {
		if err := checkFree(path); err != nil {
			return "", err
		}
	}
	if err := writeJSON(path, s); err != nil {
		return "", err
	}
	return path, nil
}

// BatchSummary is the JSON report of a whole batch run.
type BatchSummary struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Patterns   []string     `json:"patterns"`
	Total      int          `json:"total"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Canceled   int          `json:"canceled"`
	ExitCode   int          `json:"exit_code"`
	Jobs       []JobSummary `json:"jobs"`
}

// JobSummary is one input file of a batch, in discovery order.
type JobSummary struct {
	Path      string   `json:"path"`
	Stem      string   `json:"stem"`
	Status    string   `json:"status"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Error     string   `json:"error,omitempty"`
	Epochs    int      `json:"epochs"`
	Dropped   int      `json:"dropped"`
	Outputs   []string `json:"outputs,omitempty"`
}

// WriteBatchSummary writes s to BatchSummaryName in the output directory,
// replacing the report of any previous run.
func (w *Writer) WriteBatchSummary(s BatchSummary) (string, error) {
	path := filepath.Join(w.Dir, BatchSummaryName)
	if err := writeJSON(path, s); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

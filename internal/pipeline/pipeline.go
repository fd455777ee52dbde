// Package pipeline runs one recording through decode, event location,
// epoch extraction and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/ephyalign/internal/abf"
	"github.com/roach88/ephyalign/internal/detect"
	"github.com/roach88/ephyalign/internal/epoch"
	"github.com/roach88/ephyalign/internal/export"
)

// Config is the per-file processing configuration.
type Config struct {
	Channel      int
	Detect       detect.Options
	RefineWindow float64 // seconds; zero keeps events where they were located
	Extract      epoch.Extractor
	Output       export.Writer
	WriteSummary bool
}

// Validate checks everything that does not depend on a recording.
func (c *Config) Validate() error {
	if c.Channel < 0 {
		return fmt.Errorf("channel must be non-negative, got %d", c.Channel)
	}
	if c.RefineWindow < 0 {
		return fmt.Errorf("refine window must be non-negative, got %g", c.RefineWindow)
	}
	if err := c.Detect.Validate(); err != nil {
		return err
	}
	if err := c.Extract.Validate(); err != nil {
		return err
	}
	if len(c.Output.Formats) == 0 {
		return errors.New("no export formats configured")
	}
	return nil
}

// NoEventsError reports a recording that yielded no epochs, either because
// no event was located or because every epoch was dropped.
type NoEventsError struct {
	Path    string
	Dropped int
}

func (e *NoEventsError) Error() string {
	if e.Dropped > 0 {
		return fmt.Sprintf("%s: all %d epochs fell outside the recording", e.Path, e.Dropped)
	}
	return fmt.Sprintf("%s: no events located", e.Path)
}

// IsNoEvents reports whether err is or wraps a *NoEventsError.
func IsNoEvents(err error) bool {
	var ne *NoEventsError
	return errors.As(err, &ne)
}

// Result describes one processed file.
type Result struct {
	Path    string
	Stem    string
	Version abf.Version
	Events  int
	Epochs  int
	Dropped int
	Outputs []string
	Set     *epoch.Set
}

// Process runs path through the pipeline and writes artifacts named after
// stem. Errors from each stage are returned unchanged so callers can match
// their types.
func Process(ctx context.Context, path, stem string, cfg Config) (*Result, error) {
	log := slog.With("path", path)

	rec, err := abf.Decode(path)
	if err != nil {
		return nil, err
	}
	log.Debug("decoded recording",
		"version", rec.Version().String(),
		"rate", rec.SampleRate(),
		"channels", rec.ChannelCount(),
		"sweeps", rec.SweepCount(),
		"tags", len(rec.Tags()))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ProcessRecording(ctx, rec, stem, cfg)
}

// ProcessRecording is Process for an already decoded recording.
func ProcessRecording(ctx context.Context, rec *abf.Recording, stem string, cfg Config) (*Result, error) {
	log := slog.With("path", rec.Path())

	loc, err := detect.New(rec, cfg.Detect)
	if err != nil {
		return nil, err
	}
	events, err := loc.Locate(rec, cfg.Channel)
	if err != nil {
		return nil, err
	}
	if cfg.RefineWindow > 0 {
		if events, err = detect.Refine(rec, cfg.Channel, events, cfg.RefineWindow); err != nil {
			return nil, err
		}
	}
	log.Debug("located events", "locator", detectionName(loc), "events", events.Len())
	if events.Len() == 0 {
		return nil, &NoEventsError{Path: rec.Path()}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set, err := cfg.Extract.ExtractAll(rec, cfg.Channel, events)
	if err != nil {
		return nil, err
	}
	if set.Len() == 0 {
		return nil, &NoEventsError{Path: rec.Path(), Dropped: len(set.Dropped)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := cfg.Output.Check(stem, cfg.Channel, cfg.WriteSummary); err != nil {
		return nil, err
	}
	outputs, err := cfg.Output.Write(set, stem)
	if err != nil {
		return nil, err
	}
	if cfg.WriteSummary {
		summary := export.NewFileSummary(set, versionLabel(rec.Version()), detectionName(loc), events.Len())
		summary.Outputs = outputs
		path, err := cfg.Output.WriteSummary(stem, summary)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, path)
	}
	log.Info("processed recording", "epochs", set.Len(), "dropped", len(set.Dropped), "outputs", len(outputs))

	return &Result{
		Path:    rec.Path(),
		Stem:    stem,
		Version: rec.Version(),
		Events:  events.Len(),
		Epochs:  set.Len(),
		Dropped: len(set.Dropped),
		Outputs: outputs,
		Set:     set,
	}, nil
}

func detectionName(loc detect.Locator) string {
	switch loc.(type) {
	case detect.TagLocator:
		return string(detect.ModeTags)
	case detect.ThresholdLocator:
		return string(detect.ModeThreshold)
	}
	return fmt.Sprintf("%T", loc)
}

func versionLabel(v abf.Version) string {
	return v.Variant.String() + " " + v.String()
}

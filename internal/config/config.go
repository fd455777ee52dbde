// Package config loads run settings from defaults, an optional YAML file
// and EPHYALIGN_* environment variables, and validates them against an
// embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ephyalign/internal/detect"
	"github.com/roach88/ephyalign/internal/epoch"
	"github.com/roach88/ephyalign/internal/export"
	"github.com/roach88/ephyalign/internal/objectstore"
	"github.com/roach88/ephyalign/internal/pipeline"
)

//go:embed schema.cue
var schemaSrc string

// Config holds every setting of a process or batch run.
type Config struct {
	Channel      int       `yaml:"channel" json:"channel"`
	PreTime      float64   `yaml:"pre_time" json:"pre_time"`
	PostTime     float64   `yaml:"post_time" json:"post_time"`
	Detection    Detection `yaml:"detection" json:"detection"`
	Baseline     []float64 `yaml:"baseline" json:"baseline,omitempty"` // [from, to] seconds relative to the event
	OutOfRange   string    `yaml:"out_of_range" json:"out_of_range"`
	OutputDir    string    `yaml:"output_dir" json:"output_dir"`
	Export       []string  `yaml:"export" json:"export"`
	Overwrite    bool      `yaml:"overwrite" json:"overwrite"`
	WriteSummary bool      `yaml:"write_summary" json:"write_summary"`
	Workers      int       `yaml:"workers" json:"workers"` // 0 means one per CPU
	Ledger       string    `yaml:"ledger" json:"ledger"`   // SQLite path; empty disables the ledger
	Upload       Upload    `yaml:"upload" json:"upload"`
}

// Detection configures event location.
type Detection struct {
	Mode         string   `yaml:"mode" json:"mode"`
	Threshold    *float64 `yaml:"threshold" json:"threshold,omitempty"`
	Polarity     string   `yaml:"polarity" json:"polarity"`
	Signal       string   `yaml:"signal" json:"signal"`
	Refractory   float64  `yaml:"refractory" json:"refractory"`
	RefineWindow float64  `yaml:"refine_window" json:"refine_window"`
	DedupeTags   bool     `yaml:"dedupe_tags" json:"dedupe_tags"`
}

// Upload configures the artifact mirror. Credentials are read from the
// environment only and never validated by the schema.
type Upload struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Region    string `yaml:"region" json:"region"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
	AccessKey string `yaml:"-" json:"-"`
	SecretKey string `yaml:"-" json:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		PreTime:  0.5,
		PostTime: 1.0,
		Detection: Detection{
			Mode:     string(detect.ModeAuto),
			Polarity: string(detect.Rising),
			Signal:   string(detect.SignalRaw),
		},
		OutOfRange:   string(epoch.PolicyDrop),
		OutputDir:    "ephyalign_out",
		Export:       []string{string(export.FormatATF)},
		WriteSummary: true,
		Upload: Upload{
			Endpoint: "localhost:9000",
			Region:   "us-east-1",
			Bucket:   "ephyalign",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path
// is non-empty) and then the environment. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.PreTime, err = envFloat("EPHYALIGN_PRE_TIME", c.PreTime); err != nil {
		return err
	}
	if c.PostTime, err = envFloat("EPHYALIGN_POST_TIME", c.PostTime); err != nil {
		return err
	}
	if c.Channel, err = envInt("EPHYALIGN_CHANNEL", c.Channel); err != nil {
		return err
	}
	if c.Workers, err = envInt("EPHYALIGN_WORKERS", c.Workers); err != nil {
		return err
	}
	if c.Overwrite, err = envBool("EPHYALIGN_OVERWRITE", c.Overwrite); err != nil {
		return err
	}
	c.Detection.Mode = envString("EPHYALIGN_MODE", c.Detection.Mode)
	c.OutOfRange = envString("EPHYALIGN_OUT_OF_RANGE", c.OutOfRange)
	c.OutputDir = envString("EPHYALIGN_OUTPUT_DIR", c.OutputDir)
	c.Export = envList("EPHYALIGN_EXPORT", c.Export)
	c.Ledger = envString("EPHYALIGN_LEDGER", c.Ledger)

	u := &c.Upload
	if u.UseSSL, err = envBool("EPHYALIGN_S3_USE_SSL", u.UseSSL); err != nil {
		return err
	}
	u.Endpoint = envString("EPHYALIGN_S3_ENDPOINT", u.Endpoint)
	u.Region = envString("EPHYALIGN_S3_REGION", u.Region)
	u.Bucket = envString("EPHYALIGN_S3_BUCKET", u.Bucket)
	u.Prefix = envString("EPHYALIGN_S3_PREFIX", u.Prefix)
	u.AccessKey = envString("EPHYALIGN_S3_ACCESS_KEY", u.AccessKey)
	u.SecretKey = envString("EPHYALIGN_S3_SECRET_KEY", u.SecretKey)
	return nil
}

// Validate checks c against the schema and then the cross-field rules the
// schema cannot express.
func (c *Config) Validate() error {
	if err := c.validateSchema(); err != nil {
		return err
	}
	if _, err := c.Pipeline(); err != nil {
		return err
	}
	if c.Upload.Enabled {
		if err := c.ObjectStore().Validate(); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
	}
	return nil
}

func (c *Config) validateSchema() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// baseline returns the baseline window, or nil when correction is off.
func (c *Config) baseline() (*epoch.Baseline, error) {
	switch len(c.Baseline) {
	case 0:
		return nil, nil
	case 2:
		return &epoch.Baseline{From: c.Baseline[0], To: c.Baseline[1]}, nil
	}
	return nil, fmt.Errorf("baseline needs exactly two values (from, to), got %d", len(c.Baseline))
}

// Pipeline converts c into per-file processing settings.
func (c *Config) Pipeline() (pipeline.Config, error) {
	policy, err := epoch.ParsePolicy(c.OutOfRange)
	if err != nil {
		return pipeline.Config{}, err
	}
	formats, err := export.ParseFormats(c.Export)
	if err != nil {
		return pipeline.Config{}, err
	}
	bl, err := c.baseline()
	if err != nil {
		return pipeline.Config{}, err
	}
	pc := pipeline.Config{
		Channel: c.Channel,
		Detect: detect.Options{
			Mode:       detect.Mode(c.Detection.Mode),
			Threshold:  c.Detection.Threshold,
			Polarity:   detect.Polarity(c.Detection.Polarity),
			Signal:     detect.Signal(c.Detection.Signal),
			Refractory: c.Detection.Refractory,
			DedupeTags: c.Detection.DedupeTags,
		},
		RefineWindow: c.Detection.RefineWindow,
		Extract: epoch.Extractor{
			Window:   epoch.Window{Pre: c.PreTime, Post: c.PostTime},
			Baseline: bl,
			Policy:   policy,
		},
		Output: export.Writer{
			Dir:       c.OutputDir,
			Formats:   formats,
			Overwrite: c.Overwrite,
		},
		WriteSummary: c.WriteSummary,
	}
	if err := pc.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	return pc, nil
}

// ObjectStore returns the upload destination.
func (c *Config) ObjectStore() objectstore.Config {
	return objectstore.Config{
		Endpoint:  c.Upload.Endpoint,
		AccessKey: c.Upload.AccessKey,
		SecretKey: c.Upload.SecretKey,
		Region:    c.Upload.Region,
		UseSSL:    c.Upload.UseSSL,
		Bucket:    c.Upload.Bucket,
		Prefix:    c.Upload.Prefix,
	}
}

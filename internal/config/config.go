// Package config holds the YAML run configuration of the trainer command.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config captures the knobs of a training run.
type Config struct {
	Data     Data     `yaml:"data"`
	Model    Model    `yaml:"model"`
	Learner  Learner  `yaml:"learner"`
	Training Training `yaml:"training"`
	Device   string   `yaml:"device"`
}

// Data selects and maps the input file.
type Data struct {
	Format   string   `yaml:"format"` // "csv" or "text"
	Path     string   `yaml:"path"`
	TestPath string   `yaml:"test_path"`
	Features []string `yaml:"features"` // csv feature columns
	Labels   []string `yaml:"labels"`   // csv label columns
	Classes  int      `yaml:"classes"`  // one-hot label size (csv) or vocabulary (text)
	Encoding string   `yaml:"encoding"` // tiktoken encoding for text
	MaxSteps int      `yaml:"max_steps"`
	Sweeps   int      `yaml:"sweeps"`
}

// Model describes the dense model trained by the command.
type Model struct {
	Loss string `yaml:"loss"` // "cross_entropy" or "squared_error"
	Seed uint64 `yaml:"seed"`
}

// Learner selects the update rule and its schedule.
type Learner struct {
	Kind         string  `yaml:"kind"` // "sgd", "momentum_sgd" or "adam"
	LearningRate float64 `yaml:"learning_rate"`
	Schedule     string  `yaml:"schedule"` // "constant" or "cosine"
	CosinePeriod int64   `yaml:"cosine_period"`
	MinRate      float64 `yaml:"min_rate"`
	MaxSamples   int64   `yaml:"max_samples"` // 0 = unlimited
	Momentum     float32 `yaml:"momentum"`
	L2           float64 `yaml:"l2"`
	Clip         float64 `yaml:"clip"`
}

// Training controls the loop and checkpoints.
type Training struct {
	MinibatchSize   int    `yaml:"minibatch_size"`
	MaxMinibatches  int    `yaml:"max_minibatches"` // 0 = until data or learners run out
	LogEvery        int    `yaml:"log_every"`
	CheckpointDir   string `yaml:"checkpoint_dir"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
	Keep            int    `yaml:"keep"`
	HalfPrecision   bool   `yaml:"half_precision"`
	Resume          bool   `yaml:"resume"`
	Workers         int    `yaml:"workers"` // 0 = one per physical core
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataPath       string
	CheckpointDir  string
	MinibatchSize  int
	MaxMinibatches int
	LearningRate   float64
	Device         string
	Workers        int
}

// Load reads and validates a Config from a YAML file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML; unknown keys are an error. It does not validate.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataPath != "" {
		c.Data.Path = o.DataPath
	}
	if o.CheckpointDir != "" {
		c.Training.CheckpointDir = o.CheckpointDir
	}
	if o.MinibatchSize > 0 {
		c.Training.MinibatchSize = o.MinibatchSize
	}
	if o.MaxMinibatches > 0 {
		c.Training.MaxMinibatches = o.MaxMinibatches
	}
	if o.LearningRate > 0 {
		c.Learner.LearningRate = o.LearningRate
	}
	if o.Device != "" {
		c.Device = o.Device
	}
	if o.Workers > 0 {
		c.Training.Workers = o.Workers
	}
}

// Validate verifies the config is runnable and fills defaults.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	d := &c.Data
	switch d.Format {
	case "":
		d.Format = "csv"
		fallthrough
	case "csv":
		if len(d.Features) == 0 || len(d.Labels) == 0 {
			return errors.New("csv data needs features and labels columns")
		}
		if d.Classes > 0 && len(d.Labels) != 1 {
			return fmt.Errorf("one-hot labels need exactly one label column (got %d)", len(d.Labels))
		}
	case "text":
		if d.Classes <= 1 {
			return fmt.Errorf("text data needs classes (vocabulary size) > 1 (got %d)", d.Classes)
		}
		if d.Encoding == "" {
			d.Encoding = "cl100k_base"
		}
		if d.MaxSteps <= 0 {
			d.MaxSteps = 32
		}
	default:
		return fmt.Errorf("unknown data format %q", d.Format)
	}
	if d.Path == "" {
		return errors.New("data path must be set")
	}

	switch c.Model.Loss {
	case "":
		c.Model.Loss = "cross_entropy"
	case "cross_entropy", "squared_error":
	default:
		return fmt.Errorf("unknown loss %q", c.Model.Loss)
	}
	if c.Model.Loss == "cross_entropy" && d.Format == "csv" && d.Classes <= 1 {
		return errors.New("cross_entropy on csv data needs classes > 1")
	}

	l := &c.Learner
	switch l.Kind {
	case "":
		l.Kind = "sgd"
	case "sgd", "momentum_sgd", "adam":
	default:
		return fmt.Errorf("unknown learner %q", l.Kind)
	}
	if l.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", l.LearningRate)
	}
	switch l.Schedule {
	case "":
		l.Schedule = "constant"
	case "constant":
	case "cosine":
		if l.CosinePeriod <= 0 {
			return fmt.Errorf("cosine schedule needs cosine_period > 0 (got %d)", l.CosinePeriod)
		}
	default:
		return fmt.Errorf("unknown schedule %q", l.Schedule)
	}
	if l.MaxSamples < 0 {
		return fmt.Errorf("max_samples must be >= 0 (got %d)", l.MaxSamples)
	}

	t := &c.Training
	if t.MinibatchSize <= 0 {
		return fmt.Errorf("minibatch_size must be > 0 (got %d)", t.MinibatchSize)
	}
	if t.LogEvery <= 0 {
		t.LogEvery = 50
	}
	if t.CheckpointDir != "" && t.CheckpointEvery <= 0 {
		t.CheckpointEvery = 100
	}
	if t.Keep == 0 {
		t.Keep = 3
	}
	if c.Device == "" {
		c.Device = "cpu"
	}
	return nil
}

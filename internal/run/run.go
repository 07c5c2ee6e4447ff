// Package run assembles a trainer, its data sources and checkpoint rotator
// from a config.Config.
package run

import (
	"os"
	"strconv"

	"github.com/naresrac/CNTK/internal/checkpoint"
	"github.com/naresrac/CNTK/internal/config"
	"github.com/naresrac/CNTK/internal/device"
	"github.com/naresrac/CNTK/internal/engine/reference"
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/learner"
	"github.com/naresrac/CNTK/internal/parallel"
	"github.com/naresrac/CNTK/internal/reader"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/naresrac/CNTK/internal/trainer"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Stream names; they are also the names of the trainer inputs.
const (
	FeaturesStream = "features"
	LabelsStream   = "labels"
)

// Session is a trainer built from a config together with what it needs to
// read data.
type Session struct {
	Config  *config.Config
	Trainer *trainer.Trainer
	Device  device.Descriptor

	tokenizer *reader.TikToken
}

// New builds the model, criteria, learner and trainer described by cfg,
// which must have been validated.
func New(cfg *config.Config) (*Session, error) {
	dev, err := device.Parse(cfg.Device)
	if err != nil {
		return nil, err
	}
	s := &Session{Config: cfg, Device: dev}

	inDim, outDim := len(cfg.Data.Features), len(cfg.Data.Labels)
	if cfg.Data.Classes > 0 {
		outDim = cfg.Data.Classes
	}
	if cfg.Data.Format == "text" {
		inDim = cfg.Data.Classes
		if s.tokenizer, err = reader.NewTikToken(cfg.Data.Encoding); err != nil {
			return nil, err
		}
	}

	x := graph.NewInput(FeaturesStream, tensor.Shape{inDim})
	y := graph.NewInput(LabelsStream, tensor.Shape{outDim})
	model, err := reference.NewDense("dense", x, outDim, cfg.Model.Seed)
	if err != nil {
		return nil, err
	}
	lossKind, evalKind := reference.CrossEntropyWithSoftmax, reference.ClassificationError
	if cfg.Model.Loss == "squared_error" {
		lossKind, evalKind = reference.SquaredError, reference.SquaredError
	}
	loss, err := reference.NewCriterion(lossKind, model, y)
	if err != nil {
		return nil, err
	}
	eval, err := reference.NewCriterion(evalKind, model, y)
	if err != nil {
		return nil, err
	}

	l, err := newLearner(cfg.Learner, model.Parameters())
	if err != nil {
		return nil, err
	}

	pcfg := parallel.DefaultConfig()
	if w := cfg.Training.Workers; w > 0 {
		pcfg.NumWorkers = w
		pcfg.Enabled = w > 1
	}
	opts := []trainer.Option{trainer.WithMetadata(map[string]string{
		"data.format":   cfg.Data.Format,
		"model.loss":    cfg.Model.Loss,
		"model.seed":    strconv.FormatUint(cfg.Model.Seed, 10),
		"learner.kind":  cfg.Learner.Kind,
		"learner.sched": cfg.Learner.Schedule,
	})}
	if cfg.Training.HalfPrecision {
		opts = append(opts, trainer.WithCheckpointOptions(checkpoint.WithHalfPrecisionParameters()))
	}
	s.Trainer, err = trainer.New(reference.New(reference.WithParallel(pcfg)), model, loss, eval, []learner.Learner{l}, opts...)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("run: dense %d -> %d, %s loss, %s learner on %s", inDim, outDim, cfg.Model.Loss, cfg.Learner.Kind, dev)
	return s, nil
}

func newLearner(cfg config.Learner, params []*graph.Variable) (learner.Learner, error) {
	var sched learner.Schedule = learner.Constant(cfg.LearningRate)
	if cfg.Schedule == "cosine" {
		var err error
		if sched, err = learner.Cosine(cfg.LearningRate, cfg.MinRate, cfg.CosinePeriod); err != nil {
			return nil, err
		}
	}
	if cfg.MaxSamples > 0 {
		sched = learner.Limited(sched, cfg.MaxSamples)
	}
	opts := learner.Options{L2RegularizationWeight: cfg.L2, GradientClippingThreshold: cfg.Clip}
	switch cfg.Kind {
	case "sgd":
		return learner.NewSGD(params, sched, opts)
	case "momentum_sgd":
		return learner.NewMomentumSGD(params, learner.MomentumConfig{Schedule: sched, Momentum: cfg.Momentum, Options: opts})
	case "adam":
		return learner.NewAdam(params, learner.AdamConfig{Schedule: sched, Options: opts})
	}
	return nil, errors.Errorf("unknown learner %q", cfg.Kind)
}

// Source opens path with the data format of the config. sweeps follows
// reader.CSVConfig; text sources always make a single pass.
func (s *Session) Source(path string, sweeps int) (reader.Source, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening data")
	}
	d := s.Config.Data
	if d.Format == "text" {
		src, err := reader.NewTextSource(f, s.tokenizer, reader.TextConfig{
			Features: FeaturesStream,
			Labels:   LabelsStream,
			Vocab:    d.Classes,
			MaxSteps: d.MaxSteps,
		})
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		return src, f.Close, nil
	}
	defer f.Close()
	src, err := reader.NewCSVSource(f, reader.CSVConfig{
		Streams: []reader.CSVStream{
			{Name: FeaturesStream, Columns: d.Features},
			{Name: LabelsStream, Columns: d.Labels, OneHot: d.Classes},
		},
		Sweeps: sweeps,
	})
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "loading %s", path)
	}
	return src, func() error { return nil }, nil
}

// Rotator returns the checkpoint rotator of the run, nil when checkpoints
// are disabled.
func (s *Session) Rotator() (*checkpoint.Rotator, error) {
	if s.Config.Training.CheckpointDir == "" {
		return nil, nil
	}
	return checkpoint.NewRotator(s.Config.Training.CheckpointDir, s.Config.Training.Keep)
}

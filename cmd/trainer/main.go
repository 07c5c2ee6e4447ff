// Package main provides the trainer command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/mattn/go-isatty"
	"github.com/naresrac/CNTK/internal/checkpoint"
	"github.com/naresrac/CNTK/internal/config"
	"github.com/naresrac/CNTK/internal/device"
	"github.com/naresrac/CNTK/internal/loop"
	"github.com/naresrac/CNTK/internal/progress"
	"github.com/naresrac/CNTK/internal/run"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

const usage = `Usage: trainer <command> [flags]

Commands:
  train      Train a model described by a YAML config
  test       Evaluate the latest (or a given) checkpoint
  inspect    Print the header of a checkpoint file
  devices    List compute devices
  version    Show version
`

func main() {
	klog.InitFlags(nil)
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "train":
		err = trainCmd(args)
	case "test":
		err = testCmd(args)
	case "inspect":
		err = inspectCmd(args)
	case "devices":
		devicesCmd()
	case "version":
		fmt.Printf("trainer %s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	klog.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "trainer %s: %+v\n", cmd, err)
		os.Exit(1)
	}
}

// runFlags are shared by train and test.
type runFlags struct {
	fs        *flag.FlagSet
	cfgPath   *string
	overrides config.Overrides
}

func newRunFlags(name string) *runFlags {
	f := &runFlags{fs: flag.NewFlagSet(name, flag.ExitOnError)}
	f.cfgPath = f.fs.String("config", "run.yaml", "YAML run configuration")
	f.fs.StringVar(&f.overrides.DataPath, "data", "", "override data.path")
	f.fs.StringVar(&f.overrides.CheckpointDir, "checkpoints", "", "override training.checkpoint_dir")
	f.fs.IntVar(&f.overrides.MinibatchSize, "minibatch", 0, "override training.minibatch_size")
	f.fs.IntVar(&f.overrides.MaxMinibatches, "steps", 0, "override training.max_minibatches")
	f.fs.Float64Var(&f.overrides.LearningRate, "lr", 0, "override learner.learning_rate")
	f.fs.StringVar(&f.overrides.Device, "device", "", "override device, e.g. cpu or gpu:0")
	f.fs.IntVar(&f.overrides.Workers, "workers", 0, "override training.workers")
	// klog flags, e.g. -v=1.
	flag.CommandLine.VisitAll(func(fl *flag.Flag) { f.fs.Var(fl.Value, fl.Name, fl.Usage) })
	return f
}

// load parses the flags and returns the validated config.
func (f *runFlags) load(args []string) (*config.Config, error) {
	must.M(f.fs.Parse(args))
	cfg, err := config.Load(*f.cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(f.overrides)
	return cfg, cfg.Validate()
}

func trainCmd(args []string) error {
	f := newRunFlags("train")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	s, err := run.New(cfg)
	if err != nil {
		return err
	}
	if !device.TrySetDefault(s.Device) {
		klog.Warningf("default device already fixed to %s", device.UseDefault())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	l := loop.New(s.Trainer, cfg.Training.MinibatchSize, &s.Device)
	rot, err := s.Rotator()
	if err != nil {
		return err
	}
	if rot != nil {
		if cfg.Training.Resume {
			if _, err := loop.Resume(s.Trainer, rot); err != nil {
				return err
			}
		}
		loop.AttachCheckpoints(l, rot, cfg.Training.CheckpointEvery)
	}
	progress.Attach(l, os.Stdout, isatty.IsTerminal(os.Stdout.Fd()), cfg.Training.LogEvery)

	sweeps := cfg.Data.Sweeps
	if sweeps == 0 {
		sweeps = 1
	}
	src, closeSrc, err := s.Source(cfg.Data.Path, sweeps)
	if err != nil {
		return err
	}
	defer func() { _ = closeSrc() }()
	if _, err := l.RunSteps(ctx, src, cfg.Training.MaxMinibatches); err != nil {
		return err
	}
	fmt.Printf("median step time %s, last loss %.6g, last eval %.6g\n",
		l.MedianStepDuration(), s.Trainer.PreviousMinibatchLossAverage(), s.Trainer.PreviousMinibatchEvaluationAverage())

	if cfg.Data.TestPath != "" {
		return evaluate(ctx, s, cfg.Data.TestPath)
	}
	return nil
}

func testCmd(args []string) error {
	f := newRunFlags("test")
	ckpt := f.fs.String("checkpoint", "", "checkpoint to evaluate; defaults to the latest in training.checkpoint_dir")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	s, err := run.New(cfg)
	if err != nil {
		return err
	}
	path := *ckpt
	if path == "" {
		rot, err := s.Rotator()
		if err != nil {
			return err
		}
		if rot == nil {
			return fmt.Errorf("no -checkpoint given and no checkpoint_dir configured")
		}
		entry, ok, err := rot.Latest()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no checkpoint in %s", rot.Dir())
		}
		path = entry.Path
	}
	if err := s.Trainer.RestoreFromCheckpoint(path); err != nil {
		return err
	}
	data := cfg.Data.TestPath
	if data == "" {
		data = cfg.Data.Path
	}
	return evaluate(context.Background(), s, data)
}

func evaluate(ctx context.Context, s *run.Session, path string) error {
	src, closeSrc, err := s.Source(path, 1)
	if err != nil {
		return err
	}
	defer func() { _ = closeSrc() }()
	avg, n, err := loop.Evaluate(ctx, s.Trainer, src, s.Config.Training.MinibatchSize, &s.Device)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s samples, average %s %.6g\n", path, humanize.Comma(int64(n)), s.Trainer.EvaluationFunction().Name(), avg)
	return nil
}

func inspectCmd(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	must.M(fs.Parse(args))
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: trainer inspect <checkpoint>")
	}
	path := fs.Arg(0)
	h, err := checkpoint.Inspect(path)
	if err != nil {
		return err
	}
	st := must.M1(os.Stat(path))
	rows := [][]string{
		{"file", path},
		{"size", humanize.Bytes(uint64(st.Size()))},
		{"format", strconv.Itoa(int(h.FormatVersion))},
		{"run", h.RunID},
		{"created", h.CreatedAt.Format("2006-01-02 15:04:05 MST") + " (" + humanize.Time(h.CreatedAt) + ")"},
		{"minibatches", humanize.Comma(h.Progress.Minibatches)},
		{"samples seen", humanize.Comma(h.Progress.SamplesSeen)},
		{"tensors", strconv.Itoa(len(h.Tensors))},
		{"data", humanize.Bytes(uint64(h.DataSize))},
	}
	for _, p := range h.Parameters {
		rows = append(rows, []string{"param " + p.Name, p.Tensor})
	}
	for i, l := range h.Learners {
		rows = append(rows, []string{fmt.Sprintf("learner %d", i), fmt.Sprintf("%s, %d buffers", l.Kind, len(l.Tensors))})
	}
	keys := make([]string, 0, len(h.Metadata))
	for k := range h.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		rows = append(rows, []string{k, h.Metadata[k]})
	}
	fmt.Println(progress.Table(nil, rows))
	return nil
}

func devicesCmd() {
	info := device.CPUInfo()
	features := info.Features
	if len(features) > 12 {
		features = append(slices.Clone(features[:12]), "...")
	}
	fmt.Println(progress.Table([]string{"device", "details"}, [][]string{
		{device.CPU().String(), info.Brand},
		{"vendor", info.Vendor},
		{"cores", fmt.Sprintf("%d physical, %d logical", info.PhysicalCores, info.LogicalCores)},
		{"simd", strconv.FormatBool(info.SIMD)},
		{"features", strings.Join(features, " ")},
		{"default", device.UseDefault().String()},
	}))
}

package reference

import (
	"github.com/gomlx/exceptions"
	"github.com/naresrac/CNTK/internal/adapter"
	"github.com/naresrac/CNTK/internal/device"
	"github.com/naresrac/CNTK/internal/engine"
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/parallel"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Engine is the reference engine.Engine. It runs on the CPU only.
type Engine struct {
	cfg parallel.Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallel sets how per-sample and per-row work is split.
func WithParallel(cfg parallel.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// New returns a reference engine using parallel.DefaultConfig unless
// configured otherwise.
func New(opts ...Option) *Engine {
	e := &Engine{cfg: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return "reference" }

// Devices implements engine.Engine.
func (e *Engine) Devices() []device.Descriptor { return []device.Descriptor{device.CPU()} }

// pass holds the forward values of one minibatch.
type pass struct {
	dense   *Dense
	batch   *adapter.Batch
	n       int       // samples
	x, z    []float32 // [n, in], [n, out]
	steps   []int
	outputs map[*graph.Variable][]float32
}

// Train implements engine.Engine.
func (e *Engine) Train(req *engine.Request) (*engine.Result, error) {
	dense, ok := req.Model.(*Dense)
	if !ok {
		return nil, errors.Errorf("reference engine: unsupported model function %T", req.Model)
	}
	loss, err := criterionOf(req.Loss, dense, "loss")
	if err != nil {
		return nil, err
	}
	if !loss.kind.differentiable() {
		return nil, errors.Errorf("reference engine: %s cannot be used as a loss", loss.kind)
	}
	var eval *Criterion
	if req.Eval != nil {
		if eval, err = criterionOf(req.Eval, dense, "evaluation"); err != nil {
			return nil, err
		}
	}
	for _, p := range req.Parameters {
		if p != dense.weight && p != dense.bias {
			return nil, errors.Errorf("reference engine: no gradient for foreign parameter %s", p)
		}
	}

	fw, err := e.forward(dense, req.Batch)
	if err != nil {
		return nil, err
	}
	y, err := fw.gather(loss.labels)
	if err != nil {
		return nil, err
	}

	out := dense.outDim()
	dz := make([]float32, fw.n*out)
	perSample := make([]float32, fw.n)
	lossSum := parallel.Sum(fw.n, func(s int) float64 {
		v := loss.value(fw.z[s*out:(s+1)*out], y[s*out:(s+1)*out], dz[s*out:(s+1)*out])
		perSample[s] = float32(v)
		return v
	}, e.cfg)
	fw.outputs[loss.output] = perSample

	result := &engine.Result{
		LossSum:   lossSum,
		Samples:   fw.n,
		Gradients: e.gradients(fw, dz),
	}
	if eval != nil {
		result.EvalSum, err = e.evaluate(fw, eval)
		if err != nil {
			return nil, err
		}
	}
	result.Outputs, err = fw.pack(req.Outputs)
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("reference engine: %d samples, loss sum %g", fw.n, lossSum)
	return result, nil
}

// Evaluate implements engine.Engine.
func (e *Engine) Evaluate(req *engine.Request) (*engine.Evaluation, error) {
	dense, ok := req.Model.(*Dense)
	if !ok {
		return nil, errors.Errorf("reference engine: unsupported model function %T", req.Model)
	}
	eval, err := criterionOf(req.Eval, dense, "evaluation")
	if err != nil {
		return nil, err
	}
	fw, err := e.forward(dense, req.Batch)
	if err != nil {
		return nil, err
	}
	sum, err := e.evaluate(fw, eval)
	if err != nil {
		return nil, err
	}
	return &engine.Evaluation{EvalSum: sum, Samples: fw.n}, nil
}

func criterionOf(fn graph.Function, dense *Dense, role string) (*Criterion, error) {
	c, ok := fn.(*Criterion)
	if !ok {
		return nil, errors.Errorf("reference engine: unsupported %s function %T", role, fn)
	}
	if c.model != dense {
		return nil, errors.Errorf("reference engine: %s function %s is not built on model %s", role, c.Name(), dense.Name())
	}
	return c, nil
}

func (e *Engine) forward(d *Dense, batch *adapter.Batch) (*pass, error) {
	if batch == nil {
		return nil, errors.New("reference engine: nil minibatch")
	}
	w, b := d.weight.Value(), d.bias.Value()
	in, out := d.inDim(), d.outDim()
	if !w.Shape().Equal(tensor.Shape{out, in}) || !b.Shape().Equal(tensor.Shape{out}) {
		exceptions.Panicf("dense %q: parameters have shapes %s and %s, expected [%d %d] and [%d]",
			d.name, w.Shape(), b.Shape(), out, in, out)
	}
	if batch.HasExplicitStarts() {
		klog.V(2).Infof("reference engine is stateless, sequence start flags have no effect")
	}

	fw := &pass{
		dense:   d,
		batch:   batch,
		steps:   batch.Steps(d.input),
		outputs: make(map[*graph.Variable][]float32),
	}
	var err error
	if fw.x, err = fw.gather(d.input); err != nil {
		return nil, err
	}
	fw.n = len(fw.x) / in
	if fw.n == 0 {
		return nil, errors.Wrap(adapter.ErrShapeMismatch, "reference engine: minibatch has no samples")
	}
	fw.z = make([]float32, fw.n*out)
	wd, bd := w.AsFloat32(), b.AsFloat32()
	parallel.For(fw.n, func(s int) {
		x := fw.x[s*in : (s+1)*in]
		z := fw.z[s*out : (s+1)*out]
		for o := range out {
			acc := bd[o]
			row := wd[o*in : (o+1)*in]
			for i, v := range x {
				acc += row[i] * v
			}
			z[o] = acc
		}
	}, e.cfg)
	fw.outputs[d.output] = fw.z
	return fw, nil
}

// gather concatenates the sequences of v; v must step in lockstep with the
// model input.
func (fw *pass) gather(v *graph.Variable) ([]float32, error) {
	value := fw.batch.Value(v)
	if value == nil {
		return nil, errors.Wrapf(adapter.ErrShapeMismatch, "reference engine: no data for %s", v)
	}
	steps := fw.batch.Steps(v)
	for i, n := range steps {
		if fw.steps != nil && n != fw.steps[i] {
			return nil, errors.Wrapf(adapter.ErrShapeMismatch,
				"sequence %d: %s has %d steps, model input has %d", i, v, n, fw.steps[i])
		}
	}
	if len(value.Sequences) == 1 {
		return value.Sequences[0], nil
	}
	var flat []float32
	for _, seq := range value.Sequences {
		flat = append(flat, seq...)
	}
	return flat, nil
}

// gradients returns the gradient of the mean loss for W and b given the
// per-sample loss gradients dz.
func (e *Engine) gradients(fw *pass, dz []float32) map[*graph.Variable]*tensor.RawTensor {
	d := fw.dense
	in, out := d.inDim(), d.outDim()
	gw := tensor.Zeros(tensor.Shape{out, in})
	gb := tensor.Zeros(tensor.Shape{out})
	gwd, gbd := gw.AsFloat32(), gb.AsFloat32()
	scale := 1 / float32(fw.n)
	parallel.For(out, func(o int) {
		row := gwd[o*in : (o+1)*in]
		var bias float32
		for s := range fw.n {
			g := dz[s*out+o]
			if g == 0 {
				continue
			}
			bias += g
			x := fw.x[s*in : (s+1)*in]
			for i, v := range x {
				row[i] += g * v
			}
		}
		for i := range row {
			row[i] *= scale
		}
		gbd[o] = bias * scale
	}, e.cfg)
	return map[*graph.Variable]*tensor.RawTensor{d.weight: gw, d.bias: gb}
}

func (e *Engine) evaluate(fw *pass, c *Criterion) (float64, error) {
	y, err := fw.gather(c.labels)
	if err != nil {
		return 0, err
	}
	out := fw.dense.outDim()
	perSample := make([]float32, fw.n)
	sum := parallel.Sum(fw.n, func(s int) float64 {
		v := c.value(fw.z[s*out:(s+1)*out], y[s*out:(s+1)*out], nil)
		perSample[s] = float32(v)
		return v
	}, e.cfg)
	fw.outputs[c.output] = perSample
	return sum, nil
}

func (fw *pass) pack(requested []*graph.Variable) (map[*graph.Variable]*adapter.Packed, error) {
	packed := make(map[*graph.Variable]*adapter.Packed, len(requested))
	for _, v := range requested {
		data, ok := fw.outputs[v]
		if !ok {
			return nil, errors.Errorf("reference engine: %s is not an output of this pass", v)
		}
		t, err := tensor.FromFloat32(data, v.Shape().Prepend(fw.n))
		if err != nil {
			return nil, errors.Wrapf(err, "packing %s", v)
		}
		if packed[v], err = adapter.NewPacked(t, fw.steps); err != nil {
			return nil, err
		}
	}
	return packed, nil
}

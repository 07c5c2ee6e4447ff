package trainer

import (
	"maps"
	"time"

	"github.com/naresrac/CNTK/internal/checkpoint"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Snapshot captures parameters, learner state and progress.
func (t *Trainer) Snapshot() *checkpoint.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Trainer) snapshot() *checkpoint.Snapshot {
	snap := &checkpoint.Snapshot{
		RunID:      t.runID,
		CreatedAt:  time.Now().UTC(),
		Parameters: make([]checkpoint.Parameter, len(t.params)),
		Learners:   t.learners.States(),
		Progress: checkpoint.Progress{
			SamplesSeen: t.samplesSeen,
			Minibatches: t.minibatches,
		},
		Metadata: maps.Clone(t.metadata),
	}
	for i, p := range t.params {
		snap.Parameters[i] = checkpoint.Parameter{Name: p.Name(), Value: p.Value().Clone()}
	}
	return snap
}

// SaveCheckpoint writes parameters, learner state and progress to path.
func (t *Trainer) SaveCheckpoint(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return checkpoint.Save(path, t.snapshot(), t.saveOpts...)
}

// RestoreFromCheckpoint loads path and replaces parameters, learner state
// and progress with its content. The checkpoint is fully validated against
// the trainer first; on any error the trainer is unchanged.
func (t *Trainer) RestoreFromCheckpoint(path string) error {
	snap, err := checkpoint.Load(path)
	if err != nil {
		return err
	}
	return t.Restore(snap)
}

// Restore applies an in-memory snapshot with the same guarantees as
// RestoreFromCheckpoint.
func (t *Trainer) Restore(snap *checkpoint.Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(snap.Parameters) != len(t.params) {
		return errors.Wrapf(ErrCheckpointMismatch, "%d parameters in checkpoint, trainer has %d",
			len(snap.Parameters), len(t.params))
	}
	for i, p := range t.params {
		saved := snap.Parameters[i]
		if saved.Name != p.Name() {
			return errors.Wrapf(ErrCheckpointMismatch, "parameter #%d is %q in checkpoint, %q in trainer", i, saved.Name, p.Name())
		}
		if saved.Value == nil || !saved.Value.Shape().Equal(p.Shape()) || saved.Value.DType() != p.Value().DType() {
			return errors.Wrapf(ErrCheckpointMismatch, "parameter %s: checkpoint value does not match shape %s", p, p.Shape())
		}
	}
	if len(snap.Learners) != len(t.learners.Learners()) {
		return errors.Wrapf(ErrCheckpointMismatch, "%d learners in checkpoint, trainer has %d",
			len(snap.Learners), len(t.learners.Learners()))
	}
	if snap.Progress.SamplesSeen < 0 || snap.Progress.Minibatches < 0 {
		return errors.Wrapf(ErrCheckpointMismatch, "negative progress counters %+v", snap.Progress)
	}

	backup := make([]*tensor.RawTensor, len(t.params))
	for i, p := range t.params {
		backup[i] = p.Value().Clone()
		// Shapes and dtypes were checked above.
		_ = p.Value().CopyFrom(snap.Parameters[i].Value)
	}
	if err := t.learners.Restore(snap.Learners); err != nil {
		for i, p := range t.params {
			_ = p.Value().CopyFrom(backup[i])
		}
		return errors.Wrapf(ErrCheckpointMismatch, "%v", err)
	}

	t.samplesSeen = snap.Progress.SamplesSeen
	t.minibatches = snap.Progress.Minibatches
	if snap.RunID != "" {
		t.runID = snap.RunID
	}
	klog.V(1).Infof("trainer: restored run %s at %d samples", t.runID, t.samplesSeen)
	return nil
}

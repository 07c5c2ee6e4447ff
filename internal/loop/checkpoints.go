package loop

import (
	"github.com/dustin/go-humanize"
	"github.com/naresrac/CNTK/internal/checkpoint"
	"github.com/naresrac/CNTK/internal/trainer"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CheckpointHookName is the name of the hooks added by AttachCheckpoints.
const CheckpointHookName = "loop.checkpoints"

// AttachCheckpoints saves a checkpoint through rot every `every` trainer
// minibatches and once more when a run ends. A run that stops on an error
// does not write the final checkpoint.
func AttachCheckpoints(loop *Loop, rot *checkpoint.Rotator, every int, opts ...checkpoint.SaveOption) {
	var lastSaved int64 = -1
	save := func() error {
		step := loop.Trainer.Minibatches()
		if step == lastSaved {
			return nil
		}
		path, err := rot.Save(step, loop.Trainer.Snapshot(), opts...)
		if err != nil {
			return err
		}
		lastSaved = step
		klog.V(1).Infof("loop: checkpoint %s after %s samples", path,
			humanize.Comma(loop.Trainer.TotalNumberOfSamplesSeen()))
		return nil
	}
	if every > 0 {
		loop.OnStep(CheckpointHookName, 100, func(_ *Loop, s *Step) error {
			if s.Minibatch%int64(every) != 0 {
				return nil
			}
			return save()
		})
	}
	loop.OnEnd(CheckpointHookName, 100, func(*Loop, StopReason) error {
		return save()
	})
}

// Resume restores tr from the latest checkpoint of rot. It returns false,
// with no error, when the directory holds no checkpoint.
func Resume(tr *trainer.Trainer, rot *checkpoint.Rotator) (bool, error) {
	entry, ok, err := rot.Latest()
	if err != nil || !ok {
		return false, err
	}
	if err := tr.RestoreFromCheckpoint(entry.Path); err != nil {
		return false, errors.WithMessagef(err, "resuming from %s", entry.Path)
	}
	klog.Infof("resumed from %s: %d minibatches, %s samples seen", entry.Path,
		tr.Minibatches(), humanize.Comma(tr.TotalNumberOfSamplesSeen()))
	return true, nil
}

package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	rotatedPrefix = "checkpoint-"
	rotatedSuffix = ".ckpt"
)

// Rotator saves numbered checkpoints into a directory and keeps only the
// most recent ones.
type Rotator struct {
	dir  string
	keep int
}

// Entry is a checkpoint file managed by a Rotator.
type Entry struct {
	Step int64
	Path string
}

// NewRotator creates dir if needed. keep <= 0 never removes old checkpoints.
func NewRotator(dir string, keep int) (*Rotator, error) {
	if dir == "" {
		return nil, errors.New("checkpoint directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioErrorf(err, "creating checkpoint directory %s", dir)
	}
	return &Rotator{dir: dir, keep: keep}, nil
}

// String implements fmt.Stringer.
func (r *Rotator) String() string {
	return fmt.Sprintf("checkpoint.Rotator(%q)", r.dir)
}

// Dir returns the managed directory.
func (r *Rotator) Dir() string { return r.dir }

// Path returns the file name used for step.
func (r *Rotator) Path(step int64) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s%08d%s", rotatedPrefix, step, rotatedSuffix))
}

// Save writes snap as the checkpoint of step and prunes older files.
// Checkpoints with a higher step than step are left over from an earlier
// run and are removed so that Latest returns the one just written.
func (r *Rotator) Save(step int64, snap *Snapshot, opts ...SaveOption) (string, error) {
	path := r.Path(step)
	if err := Save(path, snap, opts...); err != nil {
		return "", err
	}
	r.prune(step, path)
	return path, nil
}

// List returns the managed checkpoints, oldest step first.
func (r *Rotator) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, ioErrorf(err, "%s listing checkpoints", r)
	}
	var entries []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, rotatedPrefix) || !strings.HasSuffix(name, rotatedSuffix) {
			continue
		}
		step, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, rotatedPrefix), rotatedSuffix), 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Step: step, Path: filepath.Join(r.dir, name)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Step < entries[j].Step })
	return entries, nil
}

// Latest returns the checkpoint with the highest step; ok is false when the
// directory holds none.
func (r *Rotator) Latest() (entry Entry, ok bool, err error) {
	entries, err := r.List()
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[len(entries)-1], true, nil
}

func (r *Rotator) prune(step int64, saved string) {
	entries, err := r.List()
	if err != nil {
		klog.Warningf("%s: not pruning: %v", r, err)
		return
	}
	var current []Entry
	for _, e := range entries {
		switch {
		case e.Path == saved:
		case e.Step > step:
			klog.Warningf("%s: removing stale checkpoint %s from a previous run", r, e.Path)
			r.remove(e.Path)
			continue
		}
		current = append(current, e)
	}
	if r.keep <= 0 || len(current) <= r.keep {
		return
	}
	for _, e := range current[:len(current)-r.keep] {
		if e.Path == saved {
			continue
		}
		r.remove(e.Path)
	}
}

func (r *Rotator) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		klog.Warningf("%s: failed to remove checkpoint %s: %v", r, path, err)
	}
}

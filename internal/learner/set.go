package learner

import (
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Set is an ordered collection of learners with disjoint parameters.
type Set struct {
	learners []Learner
}

// NewSet creates a Set. Two learners owning the same parameter is an error.
func NewSet(learners ...Learner) (*Set, error) {
	if len(learners) == 0 {
		return nil, errors.New("learner set needs at least one learner")
	}
	owner := make(map[*graph.Variable]int)
	for i, l := range learners {
		if l == nil {
			return nil, errors.Errorf("learner #%d is nil", i)
		}
		for _, p := range l.Parameters() {
			if prev, taken := owner[p]; taken {
				return nil, errors.Wrapf(ErrOverlappingParameters, "parameter %s in learners #%d and #%d", p, prev, i)
			}
			owner[p] = i
		}
	}
	return &Set{learners: append([]Learner(nil), learners...)}, nil
}

// Learners returns the learners in order.
func (s *Set) Learners() []Learner {
	return append([]Learner(nil), s.learners...)
}

// Parameters returns every parameter owned by the set, learner by learner.
func (s *Set) Parameters() []*graph.Variable {
	var params []*graph.Variable
	for _, l := range s.learners {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Exhausted reports whether every learner has exhausted its schedule.
func (s *Set) Exhausted() bool {
	for _, l := range s.learners {
		if !l.Exhausted() {
			return false
		}
	}
	return true
}

// Apply validates grads for every learner, then updates them in order.
//
// If any learner rejects its gradients nothing is updated. The result is
// false only when no learner performed an update, i.e. all are exhausted.
func (s *Set) Apply(grads Gradients, sampleCount int) (bool, error) {
	for i, l := range s.learners {
		if err := l.Validate(grads); err != nil {
			return false, errors.WithMessagef(err, "learner #%d (%s)", i, l.Kind())
		}
	}
	updated := false
	for i, l := range s.learners {
		if l.Update(grads, sampleCount) {
			updated = true
		} else {
			klog.V(2).Infof("learner #%d (%s) exhausted after %d samples", i, l.Kind(), l.SamplesSeen())
		}
	}
	return updated, nil
}

// States returns a deep copy of every learner's state, in order.
func (s *Set) States() []State {
	states := make([]State, len(s.learners))
	for i, l := range s.learners {
		states[i] = l.State()
	}
	return states
}

// Restore restores every learner from states. Either all learners are
// restored or, on error, none is changed.
func (s *Set) Restore(states []State) error {
	if len(states) != len(s.learners) {
		return errors.Wrapf(ErrStateMismatch, "%d learner states for %d learners", len(states), len(s.learners))
	}
	previous := s.States()
	for i, l := range s.learners {
		if err := l.Restore(states[i]); err != nil {
			for j := 0; j < i; j++ {
				if rollbackErr := s.learners[j].Restore(previous[j]); rollbackErr != nil {
					klog.Errorf("rolling back learner #%d: %+v", j, rollbackErr)
				}
			}
			return errors.WithMessagef(err, "learner #%d", i)
		}
	}
	return nil
}

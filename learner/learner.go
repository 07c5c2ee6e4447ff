// Copyright 2025 The CNTK Trainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package learner

import (
	"github.com/naresrac/CNTK/internal/graph"
	"github.com/naresrac/CNTK/internal/learner"
)

// Learner updates a set of parameters from their gradients.
type Learner = learner.Learner

// Options are shared by all learners.
type Options = learner.Options

// State is the serializable state of a learner.
type State = learner.State

// Gradients maps parameters to their gradients.
type Gradients = learner.Gradients

// SGD

// SGD applies p -= rate × g.
type SGD = learner.SGD

// NewSGD creates a plain SGD learner.
func NewSGD(params []*graph.Variable, schedule Schedule, opts Options) (*SGD, error) {
	return learner.NewSGD(params, schedule, opts)
}

// MomentumSGD keeps a velocity per parameter: v = m × v + g, p -= rate × v.
type MomentumSGD = learner.MomentumSGD

// MomentumConfig configures MomentumSGD.
type MomentumConfig = learner.MomentumConfig

// NewMomentumSGD creates an SGD learner with momentum.
//
// Example:
//
//	l, err := learner.NewMomentumSGD(params, learner.MomentumConfig{
//	    Schedule: learner.Constant(0.01),
//	    Momentum: 0.9,
//	})
func NewMomentumSGD(params []*graph.Variable, config MomentumConfig) (*MomentumSGD, error) {
	return learner.NewMomentumSGD(params, config)
}

// Adam

// Adam implements Adaptive Moment Estimation.
type Adam = learner.Adam

// AdamConfig configures Adam.
type AdamConfig = learner.AdamConfig

// NewAdam creates an Adam learner.
func NewAdam(params []*graph.Variable, config AdamConfig) (*Adam, error) {
	return learner.NewAdam(params, config)
}

// Schedules

// Schedule returns the learning rate after a number of samples, and whether
// training should go on.
type Schedule = learner.Schedule

// ScheduleFunc adapts a function to Schedule.
type ScheduleFunc = learner.ScheduleFunc

// Constant returns rate forever.
func Constant(rate float64) Schedule { return learner.Constant(rate) }

// PerSamples returns rates[i] for samples in [i×unit, (i+1)×unit); the last
// rate holds.
func PerSamples(unit int64, rates ...float64) (Schedule, error) {
	return learner.PerSamples(unit, rates...)
}

// Limited ends s once maxSamples samples were seen.
func Limited(s Schedule, maxSamples int64) Schedule { return learner.Limited(s, maxSamples) }

// Cosine anneals from initial to minimum over period samples, then restarts.
func Cosine(initial, minimum float64, period int64) (Schedule, error) {
	return learner.Cosine(initial, minimum, period)
}

// Errors

var (
	ErrMissingGradient       = learner.ErrMissingGradient
	ErrGradientShape         = learner.ErrGradientShape
	ErrOverlappingParameters = learner.ErrOverlappingParameters
	ErrStateMismatch         = learner.ErrStateMismatch
)

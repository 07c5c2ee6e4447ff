// Copyright 2025 The CNTK Trainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package learner provides the parameter update rules used by a trainer.
//
// # Overview
//
// This package contains:
//   - SGD: plain stochastic gradient descent
//   - MomentumSGD: SGD with a velocity buffer per parameter
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Schedules: learning rates as a function of samples seen
//
// Each learner owns a disjoint set of parameters. It asks its schedule for
// the rate at the number of samples it has seen so far; once the schedule
// is over, the learner is exhausted and further updates are no-ops.
//
// # Basic Usage
//
//	sched, _ := learner.PerSamples(1000, 0.1, 0.05, 0.01)
//	sgd, _ := learner.NewMomentumSGD(
//	    model.Parameters(),
//	    learner.MomentumConfig{
//	        Schedule: learner.Limited(sched, 50_000),
//	        Momentum: 0.9,
//	    },
//	)
//
//	adam, _ := learner.NewAdam(
//	    head.Parameters(),
//	    learner.AdamConfig{
//	        Schedule: learner.Constant(0.001),
//	        Options:  learner.Options{GradientClippingThreshold: 5},
//	    },
//	)
//
// # Regularization
//
// Options.L2RegularizationWeight adds weight × parameter to every gradient
// before clipping. Options.GradientClippingThreshold rescales a gradient
// whose L2 norm exceeds the threshold.
package learner

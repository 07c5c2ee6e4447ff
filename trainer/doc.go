// Copyright 2025 The CNTK Trainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package trainer drives the training of a model: it feeds minibatches to an
// engine, hands the resulting gradients to a set of learners and keeps
// per-minibatch statistics. Checkpoints capture parameters, learner state and
// progress so that training resumes bit for bit.
//
// # Overview
//
// A Trainer is built from three functions and a list of learners:
//   - model: the function being trained
//   - loss: the training criterion, minimized by the learners
//   - evaluation: an optional metric reported alongside the loss
//
// Inputs are declared by the model arguments followed by the label arguments
// of loss and evaluation. Minibatches are passed positionally in that order,
// or by input name:
//
//	x := trainer.NewInput("features", tensor.Shape{4})
//	y := trainer.NewInput("labels", tensor.Shape{3})
//	model, _ := trainer.NewDense("dense", x, 3, 42)
//	loss, _ := trainer.NewCriterion(trainer.CrossEntropyWithSoftmax, model, y)
//	eval, _ := trainer.NewCriterion(trainer.ClassificationError, model, y)
//
//	sgd, _ := learner.NewSGD(model.Parameters(), learner.Constant(0.1), learner.Options{})
//	t, _ := trainer.New(trainer.NewReferenceEngine(), model, loss, eval, []learner.Learner{sgd})
//
//	more, err := t.TrainMinibatch(trainer.Named{
//	    "features": trainer.FromSamples(f0, f1),
//	    "labels":   trainer.FromSamples(l0, l1),
//	}, nil)
//
// TrainMinibatch returns false once every learner is exhausted.
//
// # Sequences
//
// Each input value is a list of sequences; a sequence holds steps × sample
// size float32 values. Start flags mark which sequences begin anew rather
// than continue the previous minibatch:
//
//	t.TrainMinibatch(trainer.PositionalWithStarts([]bool{true, false}, xs, ys), nil)
//
// # Checkpoints
//
//	err := t.SaveCheckpoint("model.ckpt")
//	...
//	err = t.RestoreFromCheckpoint("model.ckpt")
//
// A failed restore leaves the trainer unchanged. Loading a damaged file
// fails with ErrCorrupt, an unreadable one with ErrIO.
package trainer

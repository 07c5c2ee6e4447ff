// Package adapter converts caller-side minibatch data into the canonical
// form the trainer hands to its engine, and converts engine outputs back.
//
// Input data arrives as one of the Arguments variants:
//
//	adapter.Positional{xs, ys}                      // declared input order
//	adapter.Named{"features": xs, "labels": ys}     // by name or uid
//	adapter.Bound{x: xs, y: ys}                     // by variable
//	adapter.PositionalWithStarts(starts, xs, ys)    // plus sequence start flags
//
// Each Value is a list of sequences; a sequence is the flat data of one or
// more consecutive samples (steps). Without explicit start flags every
// sequence starts a new sequence; a false flag marks a sequence as the
// continuation of the one at the same position in the previous minibatch.
package adapter

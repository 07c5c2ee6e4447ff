package learner

import (
	"math"

	"github.com/pkg/errors"
)

// Schedule maps the number of samples a learner has seen to a learning rate.
// A false second result means the schedule has ended and the learner is
// exhausted.
type Schedule interface {
	Rate(samplesSeen int64) (float64, bool)
}

// ScheduleFunc adapts a function to Schedule.
type ScheduleFunc func(samplesSeen int64) (float64, bool)

// Rate implements Schedule.
func (f ScheduleFunc) Rate(samplesSeen int64) (float64, bool) { return f(samplesSeen) }

// Constant never ends and always returns rate.
func Constant(rate float64) Schedule {
	return ScheduleFunc(func(int64) (float64, bool) { return rate, true })
}

// PerSamples steps through rates, each used for unit samples; the last rate
// is kept forever.
func PerSamples(unit int64, rates ...float64) (Schedule, error) {
	if unit <= 0 {
		return nil, errors.Errorf("schedule unit must be positive, got %d", unit)
	}
	if len(rates) == 0 {
		return nil, errors.New("schedule needs at least one rate")
	}
	rates = append([]float64(nil), rates...)
	return ScheduleFunc(func(seen int64) (float64, bool) {
		idx := seen / unit
		if idx >= int64(len(rates)) {
			idx = int64(len(rates)) - 1
		}
		return rates[idx], true
	}), nil
}

// Limited ends s once maxSamples samples have been seen.
func Limited(s Schedule, maxSamples int64) Schedule {
	return ScheduleFunc(func(seen int64) (float64, bool) {
		if seen >= maxSamples {
			return 0, false
		}
		return s.Rate(seen)
	})
}

// Cosine anneals from initial down to minimum over period samples, then
// restarts.
func Cosine(initial, minimum float64, period int64) (Schedule, error) {
	if period <= 0 {
		return nil, errors.Errorf("cosine period must be positive, got %d", period)
	}
	if minimum > initial {
		return nil, errors.Errorf("cosine minimum %g above initial rate %g", minimum, initial)
	}
	return ScheduleFunc(func(seen int64) (float64, bool) {
		phase := float64(seen%period) / float64(period)
		return minimum + (initial-minimum)*0.5*(1+math.Cos(math.Pi*phase)), true
	}), nil
}

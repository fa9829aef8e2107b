package score

import (
	"math"
	"strconv"

	"chequeo/internal/model"
)

// DefaultWeight applies to questions without a weight in the version.
const DefaultWeight = 1.0

// Round2 rounds to two decimals. The exact binary value is rounded and
// exact ties go to the even digit, so 0.125 gives 0.12 and 0.375 gives 0.38.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 2, 64), 64)
	if err != nil || r == 0 {
		return 0
	}
	return r
}

// weightedMean accumulates answer contributions for one
// capability/dimension pair.
type weightedMean struct {
	numerator   float64
	denominator float64
	answers     []Contribution
}

func (w *weightedMean) add(c Contribution) {
	c.Contribution = c.Value * c.Weight
	w.numerator += c.Contribution
	w.denominator += c.Weight
	w.answers = append(w.answers, c)
}

// result returns the quotient of the accumulators. A zero weight total is
// no data; a non-finite accumulator is a configuration problem.
func (w *weightedMean) result(evaluationID, capabilityID, dimensionID int64) (float64, error) {
	if w.denominator == 0 {
		return 0, &model.NoDataError{
			EvaluationID: evaluationID,
			CapabilityID: capabilityID,
			DimensionID:  dimensionID,
			Reason:       "no weighted answers",
		}
	}

	raw := w.numerator / w.denominator
	if !finite(w.numerator) || !finite(w.denominator) || !finite(raw) {
		return 0, &model.ConfigurationError{
			Entity: "weight",
			Reason: "score accumulator is not finite",
		}
	}
	return raw, nil
}

func (w *weightedMean) trace(raw float64) Trace {
	answers := w.answers
	if answers == nil {
		answers = []Contribution{}
	}
	return Trace{
		Formula:     Formula,
		Numerator:   w.numerator,
		Denominator: w.denominator,
		RawScore:    raw,
		Answers:     answers,
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// mean returns the arithmetic mean of values, zero for none.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

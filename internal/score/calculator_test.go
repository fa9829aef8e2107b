package score

import (
	"math"
	"testing"

	"chequeo/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{6.666666, 6.67},
		{-6.666666, -6.67},
		{0.125, 0.12},
		{0.375, 0.38},
		{-0.125, -0.12},
		{2.675, 2.67},
		{1.005, 1},
		{2.5, 2.5},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round2(tt.in), "Round2(%v)", tt.in)
	}
	assert.False(t, math.Signbit(Round2(-0.001)), "negative zero is not returned")
}

func TestWeightedMean_Result(t *testing.T) {
	var acc weightedMean
	acc.add(Contribution{QuestionID: 1, Value: 8, Weight: 2})
	acc.add(Contribution{QuestionID: 2, Value: 4, Weight: 1})

	raw, err := acc.result(1, 1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 20.0/3.0, raw, 1e-12)
	assert.Equal(t, 16.0, acc.answers[0].Contribution)

	trace := acc.trace(raw)
	assert.Equal(t, Formula, trace.Formula)
	assert.Equal(t, 20.0, trace.Numerator)
	assert.Equal(t, 3.0, trace.Denominator)
	assert.Len(t, trace.Answers, 2)
}

func TestWeightedMean_ZeroWeightIsNoData(t *testing.T) {
	var acc weightedMean
	acc.add(Contribution{Value: 5, Weight: 0})

	_, err := acc.result(3, 4, 5)
	require.Error(t, err)
	assert.True(t, model.IsNoData(err))

	var noData *model.NoDataError
	require.ErrorAs(t, err, &noData)
	assert.Equal(t, int64(4), noData.CapabilityID)
	assert.Equal(t, int64(5), noData.DimensionID)
}

func TestWeightedMean_NonFiniteIsConfiguration(t *testing.T) {
	var acc weightedMean
	acc.add(Contribution{Value: math.MaxFloat64, Weight: math.MaxFloat64})

	_, err := acc.result(1, 1, 1)
	assert.True(t, model.IsConfiguration(err))
}

func TestWeightedMean_EmptyTrace(t *testing.T) {
	var acc weightedMean
	assert.NotNil(t, acc.trace(0).Answers)
}

func TestMean(t *testing.T) {
	assert.Zero(t, mean(nil))
	assert.Equal(t, 5.0, mean([]float64{4, 6}))
}

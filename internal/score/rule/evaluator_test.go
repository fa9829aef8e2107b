package rule

import (
	"context"
	"encoding/json"
	"testing"

	"chequeo/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func condition(id int64, order, group int, connector string, capability, dimension int64, operator string, value1 float64) model.Condition {
	return model.Condition{
		ID:           id,
		RuleID:       1,
		Order:        order,
		Group:        &group,
		Connector:    connector,
		CapabilityID: capability,
		DimensionID:  dimension,
		Operator:     operator,
		Value1:       value1,
	}
}

var scores = Scores{
	{CapabilityID: 1, DimensionID: 1}: 8,
	{CapabilityID: 1, DimensionID: 2}: 3,
	{CapabilityID: 2, DimensionID: 1}: 6.5,
}

func TestEvaluate_SingleGroupAnd(t *testing.T) {
	met, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "AND", 1, 1, ">=", 7),
		condition(11, 2, 1, "AND", 1, 2, ">=", 5),
	}, scores)
	require.NoError(t, err)
	assert.False(t, met)

	want := Trace{
		Groups:          1,
		GroupsSatisfied: 0,
		Combination:     Combination,
		Detail: []GroupTrace{{
			Group: 1,
			Met:   false,
			Conditions: []ConditionTrace{
				{Order: 1, CapabilityID: 1, DimensionID: 1, Metric: model.MetricScoreCapDim, Operator: ">=", Expected: 7, Observed: 8, Met: true},
				{Order: 2, CapabilityID: 1, DimensionID: 2, Metric: model.MetricScoreCapDim, Operator: ">=", Expected: 5, Observed: 3, Met: false, Connector: "AND"},
			},
		}},
	}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_GroupsAreOred(t *testing.T) {
	between := condition(11, 2, 2, "AND", 2, 1, "BETWEEN", 6)
	between.Value2 = ptr(7)

	met, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "AND", 1, 1, ">=", 9),
		between,
		condition(12, 3, 2, "OR", 1, 2, "<", 1),
	}, scores)
	require.NoError(t, err)
	assert.True(t, met)
	assert.Equal(t, 2, trace.Groups)
	assert.Equal(t, 1, trace.GroupsSatisfied)
	require.Len(t, trace.Detail, 2)
	assert.False(t, trace.Detail[0].Met)
	assert.True(t, trace.Detail[1].Met)
	require.NotNil(t, trace.Detail[1].Conditions[0].UpperBound)
	assert.Equal(t, 7.0, *trace.Detail[1].Conditions[0].UpperBound)
}

func TestEvaluate_FirstConnectorIgnored(t *testing.T) {
	met, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "OR", 1, 1, ">=", 7),
		condition(11, 2, 1, "AND", 2, 1, ">=", 6),
	}, scores)
	require.NoError(t, err)
	assert.True(t, met)
	assert.Empty(t, trace.Detail[0].Conditions[0].Connector)
}

func TestEvaluate_OrWithinGroup(t *testing.T) {
	met, _, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "", 1, 2, ">=", 5),
		condition(11, 2, 1, "OR", 1, 1, ">=", 7),
	}, scores)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestEvaluate_UnknownConnectorKeepsValue(t *testing.T) {
	met, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "AND", 1, 1, ">=", 7),
		condition(11, 2, 1, "XOR", 1, 2, ">=", 5),
	}, scores)
	require.NoError(t, err)
	assert.True(t, met, "running value is left unchanged")
	assert.Contains(t, trace.Detail[0].Conditions[1].Warning, "XOR")
}

func TestEvaluate_UnknownOperatorIsFalse(t *testing.T) {
	met, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "AND", 1, 1, "!=", 1),
	}, scores)
	require.NoError(t, err)
	assert.False(t, met)
	assert.Contains(t, trace.Detail[0].Conditions[0].Warning, "unknown operator")
}

func TestEvaluate_MissingScoreObservesZero(t *testing.T) {
	met, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "AND", 9, 9, "<=", 0),
	}, scores)
	require.NoError(t, err)
	assert.True(t, met)
	assert.Zero(t, trace.Detail[0].Conditions[0].Observed)
}

func TestEvaluate_BetweenWithoutUpperBound(t *testing.T) {
	_, _, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "AND", 1, 1, ">=", 1),
		condition(42, 2, 1, "AND", 1, 1, "BETWEEN", 1),
	}, scores)

	var configErr *model.ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, int64(42), configErr.ID)
}

func TestEvaluate_NoConditions(t *testing.T) {
	met, trace, err := Evaluate(context.Background(), nil, scores)
	require.NoError(t, err)
	assert.False(t, met)
	assert.Equal(t, "no conditions", trace.Error)

	raw, err := json.Marshal(trace)
	require.NoError(t, err)
	assert.JSONEq(t, `{"groups":0,"groups_satisfied":0,"combination":"OR across groups","detail":[],"error":"no conditions"}`, string(raw))
}

func TestEvaluate_OrderAndGroupOrder(t *testing.T) {
	_, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(13, 4, 1, "AND", 1, 1, ">=", 1),
		condition(12, 2, 3, "AND", 1, 1, ">=", 1),
		condition(11, 2, 1, "AND", 1, 2, ">=", 1),
		condition(10, 1, 0, "AND", 2, 1, ">=", 1),
	}, scores)
	require.NoError(t, err)

	groups := make([]int, 0, len(trace.Detail))
	for _, g := range trace.Detail {
		groups = append(groups, g.Group)
	}
	assert.Equal(t, []int{0, 3, 1}, groups, "groups keep first appearance order and equal orders keep input order")

	orders := make([]int, 0)
	for _, c := range trace.Detail[2].Conditions {
		orders = append(orders, c.Order)
	}
	assert.Equal(t, []int{2, 4}, orders)
}

func TestEvaluate_GroupZeroIsSeparate(t *testing.T) {
	met, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 0, "AND", 1, 2, ">=", 5),
		condition(11, 2, 1, "AND", 1, 1, ">=", 7),
	}, scores)
	require.NoError(t, err)
	assert.True(t, met)
	assert.Equal(t, 2, trace.Groups)
	assert.Equal(t, 1, trace.GroupsSatisfied)
	assert.Equal(t, 0, trace.Detail[0].Group)
	assert.False(t, trace.Detail[0].Met)
}

func TestEvaluate_UnsetGroupDefaults(t *testing.T) {
	first := condition(10, 1, 1, "AND", 1, 1, ">=", 7)
	second := condition(11, 2, 0, "AND", 1, 2, ">=", 5)
	second.Group = nil

	met, trace, err := Evaluate(context.Background(), []model.Condition{first, second}, scores)
	require.NoError(t, err)
	assert.False(t, met, "an unset group folds into group 1")
	require.Len(t, trace.Detail, 1)
	assert.Equal(t, model.DefaultGroup, trace.Detail[0].Group)
}

func TestEvaluate_EmptyConnectorKeepsValue(t *testing.T) {
	met, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "AND", 1, 1, ">=", 7),
		condition(11, 2, 1, "", 1, 2, ">=", 5),
	}, scores)
	require.NoError(t, err)
	assert.True(t, met, "running value is left unchanged")
	assert.Empty(t, trace.Detail[0].Conditions[1].Warning)
	assert.Empty(t, trace.Detail[0].Conditions[1].Connector)
}

func TestEvaluate_ConnectorIsMatchedExactly(t *testing.T) {
	met, trace, err := Evaluate(context.Background(), []model.Condition{
		condition(10, 1, 1, "AND", 1, 1, ">=", 7),
		condition(11, 2, 1, "and", 1, 2, ">=", 5),
	}, scores)
	require.NoError(t, err)
	assert.True(t, met)
	assert.Contains(t, trace.Detail[0].Conditions[1].Warning, "unknown connector")
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	in := []model.Condition{
		condition(11, 2, 0, "", 1, 1, ">=", 1),
		condition(10, 1, 0, "", 1, 1, ">=", 1),
	}
	in[1].Group = nil
	_, _, err := Evaluate(context.Background(), in, scores)
	require.NoError(t, err)
	assert.Equal(t, int64(11), in[0].ID)
	assert.Empty(t, in[0].Connector)
	assert.Empty(t, in[0].Metric)
	assert.Nil(t, in[1].Group)
}

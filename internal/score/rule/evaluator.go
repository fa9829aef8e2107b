package rule

import (
	"context"
	"errors"
	"sort"

	"chequeo/internal/model"
	"chequeo/internal/telemetry"
)

// Combination describes how group outcomes decide a rule.
const Combination = "OR across groups"

// ScoreKey addresses one capability/dimension score.
type ScoreKey struct {
	CapabilityID int64
	DimensionID  int64
}

// Scores are the persisted scores of an evaluation. Pairs without a score
// observe 0.
type Scores map[ScoreKey]float64

// Observe returns the score of a pair, zero when it was never computed.
func (s Scores) Observe(capabilityID, dimensionID int64) float64 {
	return s[ScoreKey{CapabilityID: capabilityID, DimensionID: dimensionID}]
}

// ConditionTrace records how one condition was decided.
type ConditionTrace struct {
	Order        int      `json:"order"`
	CapabilityID int64    `json:"capability_id"`
	DimensionID  int64    `json:"dimension_id"`
	Metric       string   `json:"metric"`
	Operator     string   `json:"operator"`
	Expected     float64  `json:"expected"`
	UpperBound   *float64 `json:"upper_bound,omitempty"`
	Observed     float64  `json:"observed"`
	Met          bool     `json:"met"`
	// Connector joined this condition to the running group value. Empty
	// for the first condition of a group and for a null connector.
	Connector string `json:"connector,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// GroupTrace records the outcome of one condition group.
type GroupTrace struct {
	Group      int              `json:"group"`
	Met        bool             `json:"met"`
	Conditions []ConditionTrace `json:"conditions"`
}

// Trace explains a rule verdict. It is persisted as the result detail.
type Trace struct {
	Groups          int          `json:"groups"`
	GroupsSatisfied int          `json:"groups_satisfied"`
	Combination     string       `json:"combination"`
	Detail          []GroupTrace `json:"detail"`
	Error           string       `json:"error,omitempty"`
}

// Evaluate decides a rule from its conditions. Conditions are ordered by
// Order, partitioned by Group in order of first appearance and folded left
// inside each group with each condition's own connector; the connector of
// the first condition of a group is ignored and an empty connector leaves
// the running value unchanged. The rule holds when any group holds.
//
// Unknown operators and connectors degrade to a warning. A BETWEEN
// condition without an upper bound fails the rule with a
// *model.ConfigurationError.
func Evaluate(ctx context.Context, conditions []model.Condition, scores Scores) (bool, Trace, error) {
	log := telemetry.Logger(ctx)

	if len(conditions) == 0 {
		return false, Trace{Combination: Combination, Detail: []GroupTrace{}, Error: "no conditions"}, nil
	}

	sorted := make([]model.Condition, len(conditions))
	copy(sorted, conditions)
	for i := range sorted {
		sorted[i].Normalize()
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	var groupOrder []int
	groups := make(map[int][]model.Condition)
	for _, c := range sorted {
		key := c.GroupKey()
		if _, seen := groups[key]; !seen {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], c)
	}

	trace := Trace{
		Groups:      len(groupOrder),
		Combination: Combination,
		Detail:      make([]GroupTrace, 0, len(groupOrder)),
	}
	verdict := false

	for _, id := range groupOrder {
		group := GroupTrace{Group: id, Conditions: make([]ConditionTrace, 0, len(groups[id]))}

		for i, c := range groups[id] {
			ct, err := evaluateCondition(c, scores)
			if err != nil {
				return false, trace, err
			}
			if ct.Warning != "" {
				log.Warn("condition degraded", "condition_id", c.ID, "rule_id", c.RuleID, "warning", ct.Warning)
			}

			if i == 0 {
				group.Met = ct.Met
				group.Conditions = append(group.Conditions, ct)
				continue
			}

			ct.Connector = c.Connector
			switch c.Connector {
			case model.ConnectorAnd:
				group.Met = group.Met && ct.Met
			case model.ConnectorOr:
				group.Met = group.Met || ct.Met
			case "":
				log.Debug("condition without connector, group value unchanged", "condition_id", c.ID, "rule_id", c.RuleID)
			default:
				ct.Warning = joinWarning(ct.Warning, "unknown connector "+c.Connector+", group value unchanged")
				log.Warn("unknown connector", "condition_id", c.ID, "rule_id", c.RuleID, "connector", c.Connector)
			}
			group.Conditions = append(group.Conditions, ct)
		}

		if group.Met {
			trace.GroupsSatisfied++
			verdict = true
		}
		trace.Detail = append(trace.Detail, group)
	}

	return verdict, trace, nil
}

func evaluateCondition(c model.Condition, scores Scores) (ConditionTrace, error) {
	observed := scores.Observe(c.CapabilityID, c.DimensionID)
	ct := ConditionTrace{
		Order:        c.Order,
		CapabilityID: c.CapabilityID,
		DimensionID:  c.DimensionID,
		Metric:       c.Metric,
		Operator:     c.Operator,
		Expected:     c.Value1,
		Observed:     observed,
	}
	if c.Operator == OpBetween {
		ct.UpperBound = c.Value2
	}
	if c.Metric != model.MetricScoreCapDim {
		ct.Warning = "unsupported metric " + c.Metric + ", score used"
	}

	met, err := Compare(observed, c.Operator, c.Value1, c.Value2)
	var unknown *UnknownOperatorError
	var configErr *model.ConfigurationError
	switch {
	case errors.As(err, &unknown):
		ct.Warning = joinWarning(ct.Warning, unknown.Error())
	case errors.As(err, &configErr):
		configErr.ID = c.ID
		return ct, configErr
	case err != nil:
		return ct, err
	}
	ct.Met = met
	return ct, nil
}

func joinWarning(current, next string) string {
	if current == "" {
		return next
	}
	return current + "; " + next
}

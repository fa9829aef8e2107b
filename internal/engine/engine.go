package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chequeo/internal/audit"
	"chequeo/internal/history"
	"chequeo/internal/model"
	"chequeo/internal/record"
	"chequeo/internal/score/rule"
	"chequeo/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

// Rule verdicts used as metric labels.
const (
	verdictSatisfied    = "satisfied"
	verdictNotSatisfied = "not_satisfied"
	verdictSkipped      = "skipped"
	verdictFailed       = "failed"
)

// Engine evaluates rules and persists one result per (evaluation, rule).
// Rules are evaluated sequentially; concurrent runs of the same evaluation
// are last-write-wins.
type Engine struct {
	repo    *record.Repository
	metrics *telemetry.Metrics
	audit   audit.Recorder
	runs    *history.Repository[int64, RunSummary]
	now     func() time.Time
}

var _ Service = (*Engine)(nil)

// NewEngine creates an engine. metrics, recorder and runs may be nil.
func NewEngine(repo *record.Repository, metrics *telemetry.Metrics, recorder audit.Recorder, runs *history.Repository[int64, RunSummary]) *Engine {
	return &Engine{
		repo:    repo,
		metrics: metrics,
		audit:   audit.OrNop(recorder),
		runs:    runs,
		now:     time.Now,
	}
}

// Run evaluates every active rule of the evaluation's version.
func (e *Engine) Run(ctx context.Context, evaluationID int64) (summary RunSummary, err error) {
	ctx, runID := telemetry.StartRun(ctx, "rules.run", evaluationID)
	ctx, span := telemetry.StartSpan(ctx, "Engine.Run", evaluationID, attribute.String("run.id", runID))
	log := telemetry.Logger(ctx)
	start := e.now()
	defer func() {
		e.metrics.Observe("rules.run", telemetry.Status(err, model.IsNoData), e.now().Sub(start))
		telemetry.EndSpan(span, err)
	}()

	evaluation, err := e.repo.Evaluation(ctx, evaluationID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load evaluation: %w", err)
	}
	if !evaluation.HasVersion() {
		return RunSummary{}, model.NewConfigurationError("evaluation", evaluationID, "no methodology version")
	}

	scores, err := e.scores(ctx, evaluationID)
	if err != nil {
		return RunSummary{}, err
	}

	rules, err := e.repo.ActiveRules(ctx, evaluation.VersionID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("list rules: %w", err)
	}
	log.Info("running rules", "version_id", evaluation.VersionID, "rules", len(rules), "scores", len(scores))

	summary = RunSummary{
		RunID:        runID,
		EvaluationID: evaluationID,
		VersionID:    evaluation.VersionID,
		Rules:        []Outcome{},
		Skipped:      []SkippedRule{},
		Failed:       []FailedRule{},
	}

	for _, r := range rules {
		conditions, err := e.repo.Conditions(ctx, r.ID)
		if err != nil {
			return RunSummary{}, fmt.Errorf("load conditions of rule %s: %w", r.Code, err)
		}
		if len(conditions) == 0 {
			log.Warn("rule without conditions", "rule_id", r.ID, "code", r.Code)
			summary.Skipped = append(summary.Skipped, SkippedRule{RuleID: r.ID, Code: r.Code, Reason: "no conditions"})
			continue
		}

		satisfied, trace, err := rule.Evaluate(ctx, conditions, scores)
		if model.IsConfiguration(err) {
			log.Error("rule misconfigured", "rule_id", r.ID, "code", r.Code, "error", err)
			// A verdict left by an earlier run must not outlive the broken rule.
			trace.Error = err.Error()
			if err := e.save(ctx, evaluationID, r.ID, false, trace); err != nil {
				return RunSummary{}, fmt.Errorf("save result of rule %s: %w", r.Code, err)
			}
			summary.Failed = append(summary.Failed, FailedRule{RuleID: r.ID, Code: r.Code, Error: err.Error()})
			continue
		}
		if err != nil {
			return RunSummary{}, fmt.Errorf("evaluate rule %s: %w", r.Code, err)
		}

		if err := e.save(ctx, evaluationID, r.ID, satisfied, trace); err != nil {
			return RunSummary{}, fmt.Errorf("save result of rule %s: %w", r.Code, err)
		}

		summary.Evaluated++
		if satisfied {
			summary.Satisfied++
		} else {
			summary.NotSatisfied++
		}
		summary.Rules = append(summary.Rules, Outcome{
			RuleID:          r.ID,
			Code:            r.Code,
			Name:            r.Name,
			Satisfied:       satisfied,
			Conditions:      len(conditions),
			GroupsSatisfied: trace.GroupsSatisfied,
			Trace:           trace,
		})
		log.Debug("rule evaluated", "rule_id", r.ID, "code", r.Code, "satisfied", satisfied)
	}
	summary.FinishedAt = e.now().UTC().Format(time.RFC3339)

	e.metrics.Rules(verdictSatisfied, summary.Satisfied)
	e.metrics.Rules(verdictNotSatisfied, summary.NotSatisfied)
	e.metrics.Rules(verdictSkipped, len(summary.Skipped))
	e.metrics.Rules(verdictFailed, len(summary.Failed))

	log.Info("rules evaluated", "evaluated", summary.Evaluated, "satisfied", summary.Satisfied,
		"skipped", len(summary.Skipped), "failed", len(summary.Failed))
	e.audit.Record(audit.KindRulesRun, evaluationID, runID, map[string]int{
		"evaluated":     summary.Evaluated,
		"satisfied":     summary.Satisfied,
		"not_satisfied": summary.NotSatisfied,
		"skipped":       len(summary.Skipped),
		"failed":        len(summary.Failed),
	})
	if e.runs != nil {
		e.runs.Append(evaluationID, summary)
	}
	return summary, nil
}

// Results lists the stored verdicts of an evaluation with rule metadata.
func (e *Engine) Results(ctx context.Context, evaluationID int64) (Results, error) {
	stored, err := e.repo.RuleResults(ctx, evaluationID, false)
	if err != nil {
		return Results{}, fmt.Errorf("list rule results: %w", err)
	}

	results := Results{
		EvaluationID: evaluationID,
		Total:        len(stored),
		Results:      make([]StoredResult, 0, len(stored)),
	}
	rules := map[int64]model.Rule{}
	for _, rr := range stored {
		r, err := e.ruleOf(ctx, rules, rr.RuleID)
		if err != nil {
			return Results{}, err
		}
		if rr.Meets.Bool() {
			results.Satisfied++
		}
		results.Results = append(results.Results, StoredResult{
			ResultID:     rr.ID,
			RuleID:       rr.RuleID,
			Code:         r.Code,
			Name:         r.Name,
			Satisfied:    rr.Meets.Bool(),
			Trace:        rawTrace(rr.Detail),
			CalculatedAt: rr.CalculatedAt,
		})
	}
	return results, nil
}

// Insights lists the satisfied rules of an evaluation.
func (e *Engine) Insights(ctx context.Context, evaluationID int64) ([]Insight, error) {
	stored, err := e.repo.RuleResults(ctx, evaluationID, true)
	if err != nil {
		return nil, fmt.Errorf("list rule results: %w", err)
	}

	insights := make([]Insight, 0, len(stored))
	rules := map[int64]model.Rule{}
	for _, rr := range stored {
		r, err := e.ruleOf(ctx, rules, rr.RuleID)
		if err != nil {
			return nil, err
		}
		insights = append(insights, Insight{
			RuleID:      rr.RuleID,
			Code:        r.Code,
			Name:        r.Name,
			Description: r.Description,
			Type:        r.Type,
			Trace:       rawTrace(rr.Detail),
		})
	}
	return insights, nil
}

// Clear deletes every stored verdict of an evaluation.
func (e *Engine) Clear(ctx context.Context, evaluationID int64) (record.Cleanup, error) {
	ctx, runID := telemetry.StartRun(ctx, "rules.clear", evaluationID)
	cleanup, err := e.repo.DeleteRuleResults(ctx, evaluationID)
	if err != nil {
		return cleanup, err
	}
	e.metrics.DeleteFailures(record.RuleResults.Name, cleanup.Failed)
	e.audit.Record(audit.KindRulesCleared, evaluationID, runID, cleanup)
	return cleanup, nil
}

// History returns the recent run summaries of an evaluation, oldest first.
func (e *Engine) History(evaluationID int64) []RunSummary {
	if e.runs == nil {
		return []RunSummary{}
	}
	runs, ok := e.runs.Get(evaluationID)
	if !ok {
		return []RunSummary{}
	}
	return runs
}

// scores loads the persisted score map. An evaluation without scores
// cannot be evaluated: the error is a configuration error wrapping a
// NoDataError.
func (e *Engine) scores(ctx context.Context, evaluationID int64) (rule.Scores, error) {
	persisted, err := e.repo.Scores(ctx, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	if len(persisted) == 0 {
		return nil, &model.ConfigurationError{
			Entity: "evaluation",
			ID:     evaluationID,
			Reason: "scores must be computed before running rules",
			Err:    &model.NoDataError{EvaluationID: evaluationID, Reason: "no persisted scores"},
		}
	}

	scores := make(rule.Scores, len(persisted))
	for _, s := range persisted {
		scores[rule.ScoreKey{CapabilityID: s.CapabilityID, DimensionID: s.DimensionID}] = s.Score
	}
	return scores, nil
}

func (e *Engine) save(ctx context.Context, evaluationID, ruleID int64, satisfied bool, trace rule.Trace) error {
	detail, err := json.Marshal(trace)
	if err != nil {
		return err
	}
	_, _, err = e.repo.UpsertRuleResult(ctx, model.RuleResult{
		EvaluationID: evaluationID,
		RuleID:       ruleID,
		Meets:        model.FlagOf(satisfied),
		Detail:       string(detail),
		CalculatedAt: e.now().UTC().Format(time.RFC3339),
	})
	return err
}

// ruleOf loads a rule once per call. A result whose rule was deleted keeps
// empty metadata.
func (e *Engine) ruleOf(ctx context.Context, cache map[int64]model.Rule, id int64) (model.Rule, error) {
	if r, ok := cache[id]; ok {
		return r, nil
	}
	r, err := e.repo.Rule(ctx, id)
	if errors.Is(err, record.ErrNotFound) {
		telemetry.Logger(ctx).Warn("result of unknown rule", "rule_id", id)
		r = model.Rule{ID: id}
	} else if err != nil {
		return model.Rule{}, fmt.Errorf("load rule %d: %w", id, err)
	}
	cache[id] = r
	return r, nil
}

// rawTrace returns the stored detail as JSON. Details that are not valid
// JSON are returned as a JSON string.
func rawTrace(detail string) json.RawMessage {
	if detail == "" {
		return json.RawMessage("null")
	}
	if json.Valid([]byte(detail)) {
		return json.RawMessage(detail)
	}
	quoted, _ := json.Marshal(detail)
	return quoted
}

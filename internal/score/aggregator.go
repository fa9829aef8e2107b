package score

import (
	"context"
	"fmt"
	"sort"
	"time"

	"chequeo/internal/audit"
	"chequeo/internal/model"
	"chequeo/internal/record"
	"chequeo/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

// Aggregator turns answers into weighted capability/dimension scores and
// persists them. Store round-trips are sequential; the aggregator holds no
// locks, so concurrent computations of the same pair are last-write-wins.
type Aggregator struct {
	repo    *record.Repository
	metrics *telemetry.Metrics
	audit   audit.Recorder
	now     func() time.Time
}

var _ Service = (*Aggregator)(nil)

// NewAggregator creates an aggregator. metrics and recorder may be nil.
func NewAggregator(repo *record.Repository, metrics *telemetry.Metrics, recorder audit.Recorder) *Aggregator {
	return &Aggregator{
		repo:    repo,
		metrics: metrics,
		audit:   audit.OrNop(recorder),
		now:     time.Now,
	}
}

// ComputeScore computes, persists and returns the score of one
// capability/dimension pair.
func (a *Aggregator) ComputeScore(ctx context.Context, evaluationID, capabilityID, dimensionID int64) (result Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "Aggregator.ComputeScore", evaluationID,
		attribute.Int64("capability.id", capabilityID),
		attribute.Int64("dimension.id", dimensionID),
	)
	start := a.now()
	defer func() {
		a.metrics.Observe("scores.compute", telemetry.Status(err, model.IsNoData), a.now().Sub(start))
		telemetry.EndSpan(span, err)
	}()

	evaluation, err := a.evaluation(ctx, evaluationID)
	if err != nil {
		return Result{}, err
	}
	return a.compute(ctx, newLookup(a.repo, evaluation), capabilityID, dimensionID)
}

// ComputeAll computes every active capability × active dimension pair.
// Pairs without data are reported as skipped; any other failure aborts.
func (a *Aggregator) ComputeAll(ctx context.Context, evaluationID int64) (batch Batch, err error) {
	ctx, runID := telemetry.StartRun(ctx, "scores.compute_all", evaluationID)
	ctx, span := telemetry.StartSpan(ctx, "Aggregator.ComputeAll", evaluationID, attribute.String("run.id", runID))
	log := telemetry.Logger(ctx)
	start := a.now()
	defer func() {
		a.metrics.Observe("scores.compute_all", telemetry.Status(err, model.IsNoData), a.now().Sub(start))
		telemetry.EndSpan(span, err)
	}()

	evaluation, err := a.evaluation(ctx, evaluationID)
	if err != nil {
		return Batch{}, err
	}

	capabilities, err := a.repo.ActiveCapabilities(ctx)
	if err != nil {
		return Batch{}, fmt.Errorf("list capabilities: %w", err)
	}
	dimensions, err := a.repo.ActiveDimensions(ctx)
	if err != nil {
		return Batch{}, fmt.Errorf("list dimensions: %w", err)
	}
	log.Info("computing scores", "capabilities", len(capabilities), "dimensions", len(dimensions))

	batch = Batch{
		EvaluationID: evaluationID,
		RunID:        runID,
		Results:      []Result{},
		Skipped:      []Skipped{},
	}
	l := newLookup(a.repo, evaluation)

	for _, c := range capabilities {
		for _, d := range dimensions {
			result, err := a.compute(ctx, l, c.ID, d.ID)
			if model.IsNoData(err) {
				log.Warn("pair without data", "capability", c.Code, "dimension", d.Code, "reason", err.Error())
				batch.Skipped = append(batch.Skipped, Skipped{
					CapabilityID:   c.ID,
					CapabilityCode: c.Code,
					DimensionID:    d.ID,
					DimensionCode:  d.Code,
					Reason:         err.Error(),
				})
				continue
			}
			if err != nil {
				return Batch{}, fmt.Errorf("compute %s/%s: %w", c.Code, d.Code, err)
			}
			batch.Results = append(batch.Results, result)
		}
	}
	batch.Computed = len(batch.Results)

	log.Info("scores computed", "computed", batch.Computed, "skipped", len(batch.Skipped))
	a.audit.Record(audit.KindScoresComputed, evaluationID, runID, map[string]int{
		"computed": batch.Computed,
		"skipped":  len(batch.Skipped),
	})
	return batch, nil
}

// Summary rolls the persisted scores of an evaluation up to a mean per
// capability and a global mean of those means. An evaluation without
// scores yields a zero summary.
func (a *Aggregator) Summary(ctx context.Context, evaluationID int64) (Summary, error) {
	scores, err := a.repo.Scores(ctx, evaluationID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		EvaluationID: evaluationID,
		TotalScores:  len(scores),
		Capabilities: []CapabilitySummary{},
	}
	if len(scores) == 0 {
		return summary, nil
	}

	byCapability := make(map[int64][]float64)
	for _, s := range scores {
		byCapability[s.CapabilityID] = append(byCapability[s.CapabilityID], s.Score)
	}

	means := make([]float64, 0, len(byCapability))
	for id, values := range byCapability {
		m := mean(values)
		means = append(means, m)
		summary.Capabilities = append(summary.Capabilities, CapabilitySummary{
			CapabilityID: id,
			Dimensions:   len(values),
			Score:        Round2(m),
		})
	}
	sort.Slice(summary.Capabilities, func(i, j int) bool {
		return summary.Capabilities[i].CapabilityID < summary.Capabilities[j].CapabilityID
	})
	summary.GlobalScore = Round2(mean(means))
	return summary, nil
}

// Clear deletes every persisted score of an evaluation.
func (a *Aggregator) Clear(ctx context.Context, evaluationID int64) (record.Cleanup, error) {
	ctx, runID := telemetry.StartRun(ctx, "scores.clear", evaluationID)
	cleanup, err := a.repo.DeleteScores(ctx, evaluationID)
	if err != nil {
		return cleanup, err
	}
	a.metrics.DeleteFailures(record.Scores.Name, cleanup.Failed)
	a.audit.Record(audit.KindScoresCleared, evaluationID, runID, cleanup)
	return cleanup, nil
}

// evaluation loads an evaluation and checks it references a version.
func (a *Aggregator) evaluation(ctx context.Context, evaluationID int64) (model.Evaluation, error) {
	evaluation, err := a.repo.Evaluation(ctx, evaluationID)
	if err != nil {
		return evaluation, fmt.Errorf("load evaluation: %w", err)
	}
	if !evaluation.HasVersion() {
		return evaluation, model.NewConfigurationError("evaluation", evaluationID, "no methodology version")
	}
	return evaluation, nil
}

func (a *Aggregator) compute(ctx context.Context, l *lookup, capabilityID, dimensionID int64) (Result, error) {
	log := telemetry.Logger(ctx)
	evaluationID := l.evaluation.ID

	answers, err := l.answersOf(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load answers: %w", err)
	}
	if len(answers) == 0 {
		return Result{}, &model.NoDataError{EvaluationID: evaluationID, Reason: "no answers recorded"}
	}

	var acc weightedMean
	for _, answer := range answers {
		question, err := l.question(ctx, answer.QuestionID)
		if err != nil {
			return Result{}, fmt.Errorf("load question: %w", err)
		}
		if question.CapabilityID != capabilityID || question.DimensionID != dimensionID {
			continue
		}

		option, err := l.option(ctx, answer.OptionID)
		if err != nil {
			return Result{}, fmt.Errorf("load answer option: %w", err)
		}

		w, found, err := l.weight(ctx, question.ID)
		if err != nil {
			return Result{}, fmt.Errorf("load weight: %w", err)
		}
		weight := DefaultWeight
		if found {
			weight = w.Weight
		} else {
			log.Warn("question without weight, using default", "question_id", question.ID,
				"version_id", l.evaluation.VersionID, "weight", DefaultWeight)
		}

		acc.add(Contribution{
			QuestionID:    question.ID,
			QuestionCode:  question.Code,
			OptionID:      option.ID,
			Value:         option.ValueBase,
			Weight:        weight,
			DefaultWeight: !found,
		})
	}

	raw, err := acc.result(evaluationID, capabilityID, dimensionID)
	if err != nil {
		return Result{}, err
	}
	score := Round2(raw)

	_, _, err = a.repo.UpsertScore(ctx, model.Score{
		EvaluationID: evaluationID,
		CapabilityID: capabilityID,
		DimensionID:  dimensionID,
		Score:        score,
		CalculatedAt: a.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Result{}, fmt.Errorf("save score: %w", err)
	}

	log.Debug("score computed", "capability_id", capabilityID, "dimension_id", dimensionID,
		"score", score, "numerator", acc.numerator, "denominator", acc.denominator)

	return Result{
		EvaluationID: evaluationID,
		CapabilityID: capabilityID,
		DimensionID:  dimensionID,
		Score:        score,
		AnswerCount:  len(acc.answers),
		TotalWeight:  Round2(acc.denominator),
		Trace:        acc.trace(raw),
	}, nil
}

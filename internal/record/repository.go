package record

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"chequeo/internal/model"
	"chequeo/internal/telemetry"
)

// Repository is the typed adapter the scoring core reads and writes
// through. Every record crossing it is decoded and validated once.
type Repository struct {
	store Store
}

// NewRepository wraps a raw store.
func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// Store returns the underlying raw store.
func (r *Repository) Store() Store { return r.store }

// Cleanup counts the outcome of a bulk delete. Individual failures are
// tolerated and only counted.
type Cleanup struct {
	EvaluationID int64 `json:"evaluation_id"`
	Deleted      int   `json:"deleted"`
	Failed       int   `json:"failed"`
}

func get[T any](ctx context.Context, s Store, c Collection, id int64) (T, error) {
	var zero T
	raw, err := s.Get(ctx, c, id)
	if err != nil {
		return zero, err
	}
	return Decode[T](c, raw)
}

func list[T any](ctx context.Context, s Store, c Collection, f Filter) ([]T, error) {
	raw, err := s.List(ctx, c, f)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](c, raw)
}

func (r *Repository) Evaluation(ctx context.Context, id int64) (model.Evaluation, error) {
	return get[model.Evaluation](ctx, r.store, Evaluations, id)
}

func (r *Repository) Question(ctx context.Context, id int64) (model.Question, error) {
	return get[model.Question](ctx, r.store, Questions, id)
}

func (r *Repository) AnswerOption(ctx context.Context, id int64) (model.AnswerOption, error) {
	return get[model.AnswerOption](ctx, r.store, AnswerOptions, id)
}

func (r *Repository) Rule(ctx context.Context, id int64) (model.Rule, error) {
	return get[model.Rule](ctx, r.store, Rules, id)
}

// Answers lists the answers recorded for an evaluation.
func (r *Repository) Answers(ctx context.Context, evaluationID int64) ([]model.Answer, error) {
	return list[model.Answer](ctx, r.store, Answers, Filter{"id_evaluacion": evaluationID})
}

// Weight returns the weight configured for a question in a version. The
// boolean is false when no weight row exists.
func (r *Repository) Weight(ctx context.Context, versionID, questionID int64) (model.Weight, bool, error) {
	weights, err := list[model.Weight](ctx, r.store, Weights, Filter{
		"id_version":  versionID,
		"id_pregunta": questionID,
	})
	if err != nil || len(weights) == 0 {
		return model.Weight{}, false, err
	}
	return weights[0], true, nil
}

func (r *Repository) ActiveCapabilities(ctx context.Context) ([]model.Capability, error) {
	return list[model.Capability](ctx, r.store, Capabilities, Filter{"fl_activa": string(model.Yes)})
}

func (r *Repository) ActiveDimensions(ctx context.Context) ([]model.Dimension, error) {
	return list[model.Dimension](ctx, r.store, Dimensions, Filter{"fl_activa": string(model.Yes)})
}

// Scores lists the persisted ScoreCapDim rows of an evaluation.
func (r *Repository) Scores(ctx context.Context, evaluationID int64) ([]model.Score, error) {
	return list[model.Score](ctx, r.store, Scores, Filter{"id_evaluacion": evaluationID})
}

// UpsertScore writes s over the existing row with the same (evaluation,
// capability, dimension) key, or creates one. The returned boolean is true
// when a new row was created.
func (r *Repository) UpsertScore(ctx context.Context, s model.Score) (model.Score, bool, error) {
	existing, err := list[model.Score](ctx, r.store, Scores, Filter{
		"id_evaluacion": s.EvaluationID,
		"id_capacidad":  s.CapabilityID,
		"id_dimension":  s.DimensionID,
	})
	if err != nil {
		return model.Score{}, false, err
	}
	if len(existing) > 0 {
		s.ID = existing[0].ID
	} else {
		s.ID = 0
	}
	return upsert(ctx, r.store, Scores, s.ID, s)
}

// DeleteScores removes every score row of an evaluation.
func (r *Repository) DeleteScores(ctx context.Context, evaluationID int64) (Cleanup, error) {
	return r.deleteAll(ctx, Scores, evaluationID)
}

// ActiveRules lists the active rules of a methodology version.
func (r *Repository) ActiveRules(ctx context.Context, versionID int64) ([]model.Rule, error) {
	return list[model.Rule](ctx, r.store, Rules, Filter{
		"id_version": versionID,
		"fl_activa":  string(model.Yes),
	})
}

// Conditions lists the conditions of a rule ordered by their order field,
// with schema defaults applied. Ties keep the store's order.
func (r *Repository) Conditions(ctx context.Context, ruleID int64) ([]model.Condition, error) {
	conditions, err := list[model.Condition](ctx, r.store, Conditions, Filter{"id_regla": ruleID})
	if err != nil {
		return nil, err
	}
	for i := range conditions {
		conditions[i].Normalize()
	}
	sort.SliceStable(conditions, func(i, j int) bool {
		return conditions[i].Order < conditions[j].Order
	})
	return conditions, nil
}

// RuleResults lists the persisted rule results of an evaluation. With
// onlyMet set, only results whose rule was satisfied are returned.
func (r *Repository) RuleResults(ctx context.Context, evaluationID int64, onlyMet bool) ([]model.RuleResult, error) {
	f := Filter{"id_evaluacion": evaluationID}
	if onlyMet {
		f["fl_cumple"] = string(model.Yes)
	}
	return list[model.RuleResult](ctx, r.store, RuleResults, f)
}

// UpsertRuleResult writes rr over the existing (evaluation, rule) row or
// creates one.
func (r *Repository) UpsertRuleResult(ctx context.Context, rr model.RuleResult) (model.RuleResult, bool, error) {
	existing, err := list[model.RuleResult](ctx, r.store, RuleResults, Filter{
		"id_evaluacion": rr.EvaluationID,
		"id_regla":      rr.RuleID,
	})
	if err != nil {
		return model.RuleResult{}, false, err
	}
	if len(existing) > 0 {
		rr.ID = existing[0].ID
	} else {
		rr.ID = 0
	}
	return upsert(ctx, r.store, RuleResults, rr.ID, rr)
}

// DeleteRuleResults removes every rule result of an evaluation.
func (r *Repository) DeleteRuleResults(ctx context.Context, evaluationID int64) (Cleanup, error) {
	return r.deleteAll(ctx, RuleResults, evaluationID)
}

// CreateRule stores a new rule and returns it with its assigned key.
func (r *Repository) CreateRule(ctx context.Context, rule model.Rule) (model.Rule, error) {
	rule.ID = 0
	created, _, err := upsert(ctx, r.store, Rules, 0, rule)
	return created, err
}

// CreateCondition stores a new condition and returns it with its assigned
// key. A condition without connector is stored with AND.
func (r *Repository) CreateCondition(ctx context.Context, c model.Condition) (model.Condition, error) {
	c.ID = 0
	c.Normalize()
	if c.Connector == "" {
		c.Connector = model.ConnectorAnd
	}
	created, _, err := upsert(ctx, r.store, Conditions, 0, c)
	return created, err
}

func upsert[T any](ctx context.Context, s Store, c Collection, id int64, v T) (T, bool, error) {
	var zero T
	fields, err := Encode(v)
	if err != nil {
		return zero, false, &DecodeError{Collection: c.Name, ID: id, Err: err}
	}

	var raw Record
	created := id == 0
	if created {
		raw, err = s.Create(ctx, c, fields)
	} else {
		delete(fields, c.Key)
		raw, err = s.Update(ctx, c, id, fields)
	}
	if err != nil {
		return zero, false, err
	}
	out, err := Decode[T](c, raw)
	return out, created, err
}

func (r *Repository) deleteAll(ctx context.Context, c Collection, evaluationID int64) (Cleanup, error) {
	log := telemetry.Logger(ctx)
	result := Cleanup{EvaluationID: evaluationID}

	rows, err := r.store.List(ctx, c, Filter{"id_evaluacion": evaluationID})
	if err != nil {
		return result, fmt.Errorf("list %s: %w", c.Name, err)
	}

	for _, row := range rows {
		id, ok := IDOf(c, row)
		if !ok {
			log.Warn("record without key", "collection", c.Name)
			result.Failed++
			continue
		}
		if err := r.store.Delete(ctx, c, id); err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Warn("unable to delete record", "collection", c.Name, "id", id, "error", err)
				result.Failed++
				continue
			}
		}
		result.Deleted++
	}

	log.Info("records deleted", "collection", c.Name, "evaluation_id", evaluationID,
		"deleted", result.Deleted, "failed", result.Failed)
	return result, nil
}

package score

import (
	"context"

	"chequeo/internal/model"
	"chequeo/internal/record"
)

// lookup caches the reference data of one evaluation for the duration of
// a single operation. Answers, questions, options and weights do not
// change between the pairs of a batch, so fetching them once gives the
// same result as independent computations.
type lookup struct {
	repo       *record.Repository
	evaluation model.Evaluation

	answers   []model.Answer
	loaded    bool
	questions map[int64]model.Question
	options   map[int64]model.AnswerOption
	weights   map[int64]weightEntry
}

type weightEntry struct {
	weight model.Weight
	found  bool
}

func newLookup(repo *record.Repository, evaluation model.Evaluation) *lookup {
	return &lookup{
		repo:       repo,
		evaluation: evaluation,
		questions:  make(map[int64]model.Question),
		options:    make(map[int64]model.AnswerOption),
		weights:    make(map[int64]weightEntry),
	}
}

func (l *lookup) answersOf(ctx context.Context) ([]model.Answer, error) {
	if l.loaded {
		return l.answers, nil
	}
	answers, err := l.repo.Answers(ctx, l.evaluation.ID)
	if err != nil {
		return nil, err
	}
	l.answers, l.loaded = answers, true
	return answers, nil
}

func (l *lookup) question(ctx context.Context, id int64) (model.Question, error) {
	if q, ok := l.questions[id]; ok {
		return q, nil
	}
	q, err := l.repo.Question(ctx, id)
	if err != nil {
		return q, err
	}
	l.questions[id] = q
	return q, nil
}

func (l *lookup) option(ctx context.Context, id int64) (model.AnswerOption, error) {
	if o, ok := l.options[id]; ok {
		return o, nil
	}
	o, err := l.repo.AnswerOption(ctx, id)
	if err != nil {
		return o, err
	}
	l.options[id] = o
	return o, nil
}

// weight returns the weight of a question in the evaluation's version.
// Absence is cached too; store errors are not.
func (l *lookup) weight(ctx context.Context, questionID int64) (model.Weight, bool, error) {
	if e, ok := l.weights[questionID]; ok {
		return e.weight, e.found, nil
	}
	w, found, err := l.repo.Weight(ctx, l.evaluation.VersionID, questionID)
	if err != nil {
		return w, false, err
	}
	l.weights[questionID] = weightEntry{weight: w, found: found}
	return w, found, nil
}

package score

import (
	"context"

	"chequeo/internal/record"
)

// Formula describes how a capability/dimension score is derived.
const Formula = "Σ(VALOR_BASE × PESO) / Σ(PESO)"

// Contribution is one answer's share of a score.
type Contribution struct {
	QuestionID    int64   `json:"question_id"`
	QuestionCode  string  `json:"question_code"`
	OptionID      int64   `json:"option_id"`
	Value         float64 `json:"value"`
	Weight        float64 `json:"weight"`
	Contribution  float64 `json:"contribution"`
	DefaultWeight bool    `json:"default_weight"`
}

// Trace keeps the full-precision inputs of a computed score.
type Trace struct {
	Formula     string         `json:"formula"`
	Numerator   float64        `json:"numerator"`
	Denominator float64        `json:"denominator"`
	RawScore    float64        `json:"raw_score"`
	Answers     []Contribution `json:"answers"`
}

// Result is the outcome of one capability/dimension computation.
type Result struct {
	EvaluationID int64   `json:"evaluation_id"`
	CapabilityID int64   `json:"capability_id"`
	DimensionID  int64   `json:"dimension_id"`
	Score        float64 `json:"score"`
	AnswerCount  int     `json:"answer_count"`
	TotalWeight  float64 `json:"total_weight"`
	Trace        Trace   `json:"trace"`
}

// Skipped is a capability/dimension pair without data in a batch.
type Skipped struct {
	CapabilityID   int64  `json:"capability_id"`
	CapabilityCode string `json:"capability_code"`
	DimensionID    int64  `json:"dimension_id"`
	DimensionCode  string `json:"dimension_code"`
	Reason         string `json:"reason"`
}

// Batch is the outcome of computing every active pair of an evaluation.
type Batch struct {
	EvaluationID int64     `json:"evaluation_id"`
	RunID        string    `json:"run_id"`
	Computed     int       `json:"computed"`
	Results      []Result  `json:"results"`
	Skipped      []Skipped `json:"skipped"`
}

// CapabilitySummary is the unweighted mean of a capability's persisted scores.
type CapabilitySummary struct {
	CapabilityID int64   `json:"capability_id"`
	Dimensions   int     `json:"dimensions"`
	Score        float64 `json:"score"`
}

// Summary rolls persisted scores up to capability and global level.
type Summary struct {
	EvaluationID int64               `json:"evaluation_id"`
	TotalScores  int                 `json:"total_scores"`
	GlobalScore  float64             `json:"global_score"`
	Capabilities []CapabilitySummary `json:"capabilities"`
}

// Service is the scoring surface consumed by the HTTP API and the CLI.
type Service interface {
	ComputeScore(ctx context.Context, evaluationID, capabilityID, dimensionID int64) (Result, error)
	ComputeAll(ctx context.Context, evaluationID int64) (Batch, error)
	Summary(ctx context.Context, evaluationID int64) (Summary, error)
	Clear(ctx context.Context, evaluationID int64) (record.Cleanup, error)
}

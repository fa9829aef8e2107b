// Package engine runs the rule base of an evaluation's methodology version
// against its persisted scores and exposes the stored verdicts.
package engine

import (
	"context"
	"encoding/json"

	"chequeo/internal/model"
	"chequeo/internal/record"
	"chequeo/internal/score/rule"
)

// Outcome is the verdict of one evaluated rule.
type Outcome struct {
	RuleID          int64      `json:"rule_id"`
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	Satisfied       bool       `json:"satisfied"`
	Conditions      int        `json:"conditions"`
	GroupsSatisfied int        `json:"groups_satisfied"`
	Trace           rule.Trace `json:"trace"`
}

// SkippedRule is an active rule without conditions.
type SkippedRule struct {
	RuleID int64  `json:"rule_id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// FailedRule is a rule whose configuration prevented evaluation.
type FailedRule struct {
	RuleID int64  `json:"rule_id"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// RunSummary describes one rule run. Skipped and failed rules are not
// counted in the totals.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	EvaluationID int64         `json:"evaluation_id"`
	VersionID    int64         `json:"version_id"`
	Evaluated    int           `json:"evaluated"`
	Satisfied    int           `json:"satisfied"`
	NotSatisfied int           `json:"not_satisfied"`
	Rules        []Outcome     `json:"rules"`
	Skipped      []SkippedRule `json:"skipped"`
	Failed       []FailedRule  `json:"failed"`
	FinishedAt   string        `json:"finished_at"`
}

// StoredResult is a persisted rule result joined with its rule.
type StoredResult struct {
	ResultID     int64           `json:"result_id"`
	RuleID       int64           `json:"rule_id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Satisfied    bool            `json:"satisfied"`
	Trace        json.RawMessage `json:"trace"`
	CalculatedAt string          `json:"calculated_at,omitempty"`
}

// Results lists every stored verdict of an evaluation.
type Results struct {
	EvaluationID int64          `json:"evaluation_id"`
	Total        int            `json:"total"`
	Satisfied    int            `json:"satisfied"`
	Results      []StoredResult `json:"results"`
}

// Insight is a satisfied rule with its description, ready for reporting.
type Insight struct {
	RuleID      int64           `json:"rule_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        model.RuleType  `json:"type"`
	Trace       json.RawMessage `json:"trace"`
}

// Service is the rule surface consumed by the HTTP API and the CLI.
type Service interface {
	Run(ctx context.Context, evaluationID int64) (RunSummary, error)
	Results(ctx context.Context, evaluationID int64) (Results, error)
	Insights(ctx context.Context, evaluationID int64) ([]Insight, error)
	Clear(ctx context.Context, evaluationID int64) (record.Cleanup, error)
	History(evaluationID int64) []RunSummary
}

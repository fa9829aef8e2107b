package rule

import (
	"context"
	"fmt"
	"os"

	"chequeo/internal/model"
	"chequeo/internal/record"
	"chequeo/internal/telemetry"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ConditionDefinition is one condition in a rule base file.
type ConditionDefinition struct {
	Order        int      `yaml:"order"`
	Connector    string   `yaml:"connector" validate:"omitempty,oneof=AND OR"`
	Group        *int     `yaml:"group" validate:"omitempty,gte=0"`
	Metric       string   `yaml:"metric"`
	CapabilityID int64    `yaml:"capability" validate:"gt=0"`
	DimensionID  int64    `yaml:"dimension" validate:"gt=0"`
	Operator     string   `yaml:"operator" validate:"required"`
	Value1       float64  `yaml:"value1"`
	Value2       *float64 `yaml:"value2"`
}

// Definition is one rule in a rule base file.
type Definition struct {
	Code        string                `yaml:"code" validate:"required"`
	Name        string                `yaml:"name" validate:"required"`
	Description string                `yaml:"description"`
	Type        model.RuleType        `yaml:"type" validate:"omitempty,oneof=umbral conteo comparacion combinada"`
	Inactive    bool                  `yaml:"inactive"`
	Conditions  []ConditionDefinition `yaml:"conditions" validate:"dive"`
}

// Base is a rule base read from YAML, ready to be imported into a
// methodology version.
type Base []Definition

// ImportSummary counts what Import created.
type ImportSummary struct {
	VersionID  int64 `json:"version_id"`
	Rules      int   `json:"rules"`
	Conditions int   `json:"conditions"`
}

// ParseBase decodes and validates a rule base.
func ParseBase(content []byte) (Base, error) {
	base := Base{}
	if err := yaml.Unmarshal(content, &base); err != nil {
		return nil, err
	}
	for i := range base {
		if err := base[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return base, nil
}

// LoadBase reads a rule base file.
func LoadBase(file string) (Base, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return ParseBase(content)
}

// Validate checks struct constraints, operators and BETWEEN bounds.
// Operators are compared after NormalizeOperator, as Import stores them.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return err
	}
	for _, c := range d.Conditions {
		op := NormalizeOperator(c.Operator)
		if !KnownOperator(op) {
			return fmt.Errorf("%s: %w", d.Code, &UnknownOperatorError{Operator: c.Operator})
		}
		if op == OpBetween && c.Value2 == nil {
			return model.NewConfigurationError("rule "+d.Code, 0, "operator BETWEEN requires value2")
		}
	}
	return nil
}

// Import creates every rule of the base with its conditions under
// versionID. Rules are created one by one; a failure stops the import and
// leaves the rules created so far in place.
func (b Base) Import(ctx context.Context, repo *record.Repository, versionID int64) (ImportSummary, error) {
	log := telemetry.Logger(ctx)
	summary := ImportSummary{VersionID: versionID}

	for _, d := range b {
		created, err := repo.CreateRule(ctx, model.Rule{
			VersionID:   versionID,
			Code:        d.Code,
			Name:        d.Name,
			Description: d.Description,
			Type:        d.Type,
			Active:      model.FlagOf(!d.Inactive),
		})
		if err != nil {
			return summary, fmt.Errorf("create rule %s: %w", d.Code, err)
		}
		summary.Rules++

		for _, c := range d.Conditions {
			_, err := repo.CreateCondition(ctx, model.Condition{
				RuleID:       created.ID,
				Order:        c.Order,
				Connector:    c.Connector,
				Metric:       c.Metric,
				CapabilityID: c.CapabilityID,
				DimensionID:  c.DimensionID,
				Operator:     NormalizeOperator(c.Operator),
				Value1:       c.Value1,
				Value2:       c.Value2,
				Group:        c.Group,
			})
			if err != nil {
				return summary, fmt.Errorf("create condition of rule %s: %w", d.Code, err)
			}
			summary.Conditions++
		}
		log.Info("rule imported", "code", d.Code, "rule_id", created.ID, "conditions", len(d.Conditions))
	}
	return summary, nil
}

// Package model holds the typed entities exchanged with the record store.
// Field tags carry the column names of the assessment schema.
package model

// Flag is the Y/N marker the schema uses for booleans.
type Flag string

const (
	Yes Flag = "Y"
	No  Flag = "N"
)

// FlagOf converts a boolean into its schema representation.
func FlagOf(b bool) Flag {
	if b {
		return Yes
	}
	return No
}

// Bool reports whether the flag is set.
func (f Flag) Bool() bool { return f == Yes }

// RuleType classifies a rule. Values are the schema's codes.
type RuleType string

const (
	RuleTypeThreshold  RuleType = "umbral"
	RuleTypeCount      RuleType = "conteo"
	RuleTypeComparison RuleType = "comparacion"
	RuleTypeCombined   RuleType = "combinada"
)

// Connector joins a condition to the running result of its group.
const (
	ConnectorAnd = "AND"
	ConnectorOr  = "OR"
)

// MetricScoreCapDim is the only metric conditions currently read.
const MetricScoreCapDim = "SCORE_CAP_DIM"

// DefaultGroup is assigned to conditions stored without a group. Zero is
// a group of its own.
const DefaultGroup = 1

type Evaluation struct {
	ID        int64  `mapstructure:"id_evaluacion,omitempty" validate:"gte=0"`
	CompanyID int64  `mapstructure:"id_empresa,omitempty" validate:"gte=0"`
	VersionID int64  `mapstructure:"id_version,omitempty" validate:"gte=0"`
	Name      string `mapstructure:"nombre,omitempty"`
}

// HasVersion reports whether the evaluation references a methodology version.
func (e Evaluation) HasVersion() bool { return e.VersionID > 0 }

type Capability struct {
	ID     int64  `mapstructure:"id_capacidad,omitempty" validate:"gte=0"`
	Code   string `mapstructure:"codigo"`
	Name   string `mapstructure:"nombre"`
	Order  int    `mapstructure:"orden"`
	Active Flag   `mapstructure:"fl_activa" validate:"omitempty,oneof=Y N"`
}

type Dimension struct {
	ID     int64  `mapstructure:"id_dimension,omitempty" validate:"gte=0"`
	Code   string `mapstructure:"codigo"`
	Name   string `mapstructure:"nombre"`
	Order  int    `mapstructure:"orden"`
	Active Flag   `mapstructure:"fl_activa" validate:"omitempty,oneof=Y N"`
}

type Question struct {
	ID           int64  `mapstructure:"id_pregunta,omitempty" validate:"gte=0"`
	VersionID    int64  `mapstructure:"id_version" validate:"gte=0"`
	Code         string `mapstructure:"codigo"`
	CapabilityID int64  `mapstructure:"id_capacidad" validate:"gte=0"`
	DimensionID  int64  `mapstructure:"id_dimension" validate:"gte=0"`
}

type AnswerOption struct {
	ID         int64   `mapstructure:"id_opcion,omitempty" validate:"gte=0"`
	QuestionID int64   `mapstructure:"id_pregunta" validate:"gte=0"`
	Code       string  `mapstructure:"codigo"`
	ValueBase  float64 `mapstructure:"valor_base"`
}

// Answer links an evaluation to the option chosen for a question.
type Answer struct {
	ID           int64 `mapstructure:"id_respuesta,omitempty" validate:"gte=0"`
	EvaluationID int64 `mapstructure:"id_evaluacion" validate:"gt=0"`
	QuestionID   int64 `mapstructure:"id_pregunta" validate:"gt=0"`
	OptionID     int64 `mapstructure:"id_opcion" validate:"gt=0"`
}

// Weight scopes how much a question contributes within its
// capability/dimension pair for one methodology version.
type Weight struct {
	ID         int64   `mapstructure:"id_ponderacion,omitempty" validate:"gte=0"`
	VersionID  int64   `mapstructure:"id_version" validate:"gt=0"`
	QuestionID int64   `mapstructure:"id_pregunta" validate:"gt=0"`
	Weight     float64 `mapstructure:"peso"`
}

// Score is one persisted ScoreCapDim row.
type Score struct {
	ID           int64   `mapstructure:"id_score,omitempty" validate:"gte=0"`
	EvaluationID int64   `mapstructure:"id_evaluacion" validate:"gt=0"`
	CapabilityID int64   `mapstructure:"id_capacidad" validate:"gt=0"`
	DimensionID  int64   `mapstructure:"id_dimension" validate:"gt=0"`
	Score        float64 `mapstructure:"score"`
	CalculatedAt string  `mapstructure:"dt_calculo,omitempty"`
}

type Rule struct {
	ID          int64    `mapstructure:"id_regla,omitempty" validate:"gte=0"`
	VersionID   int64    `mapstructure:"id_version" validate:"gt=0"`
	Code        string   `mapstructure:"codigo"`
	Name        string   `mapstructure:"nombre"`
	Description string   `mapstructure:"descripcion,omitempty"`
	Type        RuleType `mapstructure:"tipo_regla" validate:"omitempty,oneof=umbral conteo comparacion combinada"`
	Active      Flag     `mapstructure:"fl_activa" validate:"omitempty,oneof=Y N"`
}

// Condition is one comparison inside a rule. Metric and Group fall back to
// SCORE_CAP_DIM and 1 when the store leaves them empty. An empty Connector
// leaves the running group value unchanged; new conditions default to AND.
type Condition struct {
	ID           int64    `mapstructure:"id_condicion,omitempty" validate:"gte=0"`
	RuleID       int64    `mapstructure:"id_regla" validate:"gt=0"`
	Order        int      `mapstructure:"orden"`
	Connector    string   `mapstructure:"conector"`
	Metric       string   `mapstructure:"metrica"`
	CapabilityID int64    `mapstructure:"id_capacidad,omitempty" validate:"gte=0"`
	DimensionID  int64    `mapstructure:"id_dimension,omitempty" validate:"gte=0"`
	Operator     string   `mapstructure:"operador"`
	Value1       float64  `mapstructure:"valor1"`
	Value2       *float64 `mapstructure:"valor2"`
	Group        *int     `mapstructure:"grupo"`
}

// GroupKey returns the group of the condition, DefaultGroup when unset.
func (c Condition) GroupKey() int {
	if c.Group == nil {
		return DefaultGroup
	}
	return *c.Group
}

// Normalize fills the schema defaults of a stored condition. The
// connector is left as stored.
func (c *Condition) Normalize() {
	if c.Metric == "" {
		c.Metric = MetricScoreCapDim
	}
	if c.Group == nil {
		group := DefaultGroup
		c.Group = &group
	}
}

// RuleResult is the persisted verdict of one rule for one evaluation.
// Detail holds the JSON evaluation trace.
type RuleResult struct {
	ID           int64    `mapstructure:"id_resultado_regla,omitempty" validate:"gte=0"`
	EvaluationID int64    `mapstructure:"id_evaluacion" validate:"gt=0"`
	RuleID       int64    `mapstructure:"id_regla" validate:"gt=0"`
	Meets        Flag     `mapstructure:"fl_cumple" validate:"required,oneof=Y N"`
	NumericValue *float64 `mapstructure:"valor_numerico"`
	Detail       string   `mapstructure:"detalle_json"`
	CalculatedAt string   `mapstructure:"dt_calculo,omitempty"`
}

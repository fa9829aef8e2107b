// Package rule evaluates rule conditions against capability/dimension
// scores. Comparison operators are CEL programs compiled once and shared.
package rule

import (
	"fmt"
	"strings"
	"sync"

	"chequeo/internal/model"

	"github.com/google/cel-go/cel"
)

// Tolerance is the absolute difference under which "=" holds.
const Tolerance = 0.01

// Supported operators.
const (
	OpGreaterOrEqual = ">="
	OpLessOrEqual    = "<="
	OpGreater        = ">"
	OpLess           = "<"
	OpEqual          = "="
	OpBetween        = "BETWEEN"
)

// operatorExpressions maps each operator to the CEL expression deciding it.
// Variables: observed, value1, value2, tolerance (all double).
var operatorExpressions = map[string]string{
	OpGreaterOrEqual: "observed >= value1",
	OpLessOrEqual:    "observed <= value1",
	OpGreater:        "observed > value1",
	OpLess:           "observed < value1",
	OpEqual:          "observed - value1 < tolerance && value1 - observed < tolerance",
	OpBetween:        "value1 <= observed && observed <= value2",
}

// UnknownOperatorError is a warning: the condition evaluates to false and
// evaluation continues.
type UnknownOperatorError struct {
	Operator string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown operator %q", e.Operator)
}

// Operator is one comparison compiled into a CEL program.
type Operator struct {
	// Symbol as stored in conditions, e.g. ">=" or "BETWEEN".
	Symbol string
	// Expression is the CEL source deciding the comparison.
	Expression string
	// program is compiled by Init and run by Eval.
	program cel.Program
}

// NewOperatorEnv declares the variables every operator expression reads.
func NewOperatorEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("observed", cel.DoubleType),
		cel.Variable("value1", cel.DoubleType),
		cel.Variable("value2", cel.DoubleType),
		cel.Variable("tolerance", cel.DoubleType),
	)
}

// Init compiles Expression into a CEL program using env. Parse and type
// check errors are returned as is.
func (o *Operator) Init(env *cel.Env) error {
	ast, iss := env.Parse(o.Expression)
	if iss.Err() != nil {
		return iss.Err()
	}

	checked, iss := env.Check(ast)
	if iss.Err() != nil {
		return iss.Err()
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return fmt.Errorf("operator %s: expression must be boolean, got %s", o.Symbol, checked.OutputType())
	}

	var err error
	o.program, err = env.Program(checked)
	return err
}

// Eval runs the compiled program.
func (o *Operator) Eval(observed, value1, value2 float64) (bool, error) {
	out, _, err := o.program.Eval(map[string]any{
		"observed":  observed,
		"value1":    value1,
		"value2":    value2,
		"tolerance": Tolerance,
	})
	if err != nil {
		return false, fmt.Errorf("operator %s: %w", o.Symbol, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("operator %s: non boolean result %v", o.Symbol, out.Value())
	}
	return result, nil
}

var compiledOperators = sync.OnceValues(func() (map[string]*Operator, error) {
	env, err := NewOperatorEnv()
	if err != nil {
		return nil, err
	}
	operators := make(map[string]*Operator, len(operatorExpressions))
	for symbol, expr := range operatorExpressions {
		op := &Operator{Symbol: symbol, Expression: expr}
		if err := op.Init(env); err != nil {
			return nil, fmt.Errorf("compile operator %s: %w", symbol, err)
		}
		operators[symbol] = op
	}
	return operators, nil
})

// NormalizeOperator trims the symbol and upper-cases word operators. It
// is applied when rules are imported; stored operators are matched as is.
func NormalizeOperator(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// KnownOperator reports whether symbol is exactly a supported operator.
func KnownOperator(symbol string) bool {
	_, ok := operatorExpressions[symbol]
	return ok
}

// Compare decides observed <operator> value1 (value2 is the upper bound of
// BETWEEN). The operator must match a supported symbol exactly. An unknown
// operator yields false and an *UnknownOperatorError; BETWEEN without
// value2 yields a *model.ConfigurationError.
func Compare(observed float64, operator string, value1 float64, value2 *float64) (bool, error) {
	operators, err := compiledOperators()
	if err != nil {
		return false, err
	}

	op, ok := operators[operator]
	if !ok {
		return false, &UnknownOperatorError{Operator: operator}
	}

	upper := 0.0
	if operator == OpBetween {
		if value2 == nil {
			return false, model.NewConfigurationError("condition", 0, "operator BETWEEN requires value2")
		}
		upper = *value2
	}
	return op.Eval(observed, value1, upper)
}

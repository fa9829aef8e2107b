package rule

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chequeo/internal/model"
	"chequeo/internal/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = `
- code: R01
  name: Liderazgo sólido
  description: Liderazgo alto en ambas dimensiones
  type: umbral
  conditions:
    - {order: 1, capability: 1, dimension: 1, operator: ">=", value1: 7}
    - {order: 2, connector: AND, capability: 1, dimension: 2, operator: ">=", value1: 7}
- code: R02
  name: Estrategia media
  type: comparacion
  inactive: true
  conditions:
    - {order: 1, group: 2, capability: 2, dimension: 1, operator: between, value1: 4, value2: 6}
`

func TestParseBase(t *testing.T) {
	parsed, err := ParseBase([]byte(base))
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	assert.Equal(t, "R01", parsed[0].Code)
	assert.Equal(t, model.RuleTypeThreshold, parsed[0].Type)
	assert.Len(t, parsed[0].Conditions, 2)
	assert.True(t, parsed[1].Inactive)
	require.NotNil(t, parsed[1].Conditions[0].Value2)
	assert.Equal(t, 6.0, *parsed[1].Conditions[0].Value2)
}

func TestParseBase_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing code", `[{name: x, conditions: [{capability: 1, dimension: 1, operator: ">=", value1: 1}]}]`},
		{"unknown operator", `[{code: R, name: x, conditions: [{capability: 1, dimension: 1, operator: "!=", value1: 1}]}]`},
		{"between without value2", `[{code: R, name: x, conditions: [{capability: 1, dimension: 1, operator: BETWEEN, value1: 1}]}]`},
		{"unknown type", `[{code: R, name: x, type: other}]`},
		{"bad connector", `[{code: R, name: x, conditions: [{connector: XOR, capability: 1, dimension: 1, operator: ">=", value1: 1}]}]`},
		{"missing capability", `[{code: R, name: x, conditions: [{dimension: 1, operator: ">=", value1: 1}]}]`},
		{"not yaml", `{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBase([]byte(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadBase_MissingFile(t *testing.T) {
	_, err := LoadBase(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBase_Import(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(file, []byte(base), 0o600))

	loaded, err := LoadBase(file)
	require.NoError(t, err)

	repo := record.NewRepository(record.NewMemoryStore())
	summary, err := loaded.Import(ctx, repo, 3)
	require.NoError(t, err)
	assert.Equal(t, ImportSummary{VersionID: 3, Rules: 2, Conditions: 3}, summary)

	active, err := repo.ActiveRules(ctx, 3)
	require.NoError(t, err)
	require.Len(t, active, 1, "inactive rules are imported but not active")
	assert.Equal(t, "R01", active[0].Code)

	conditions, err := repo.Conditions(ctx, active[0].ID)
	require.NoError(t, err)
	require.Len(t, conditions, 2)
	assert.Equal(t, model.ConnectorAnd, conditions[0].Connector)
	assert.Equal(t, model.DefaultGroup, conditions[0].GroupKey())

	met, _, err := Evaluate(ctx, conditions, Scores{
		{CapabilityID: 1, DimensionID: 1}: 8,
		{CapabilityID: 1, DimensionID: 2}: 7,
	})
	require.NoError(t, err)
	assert.True(t, met)

	inactive, err := repo.Conditions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, OpBetween, inactive[0].Operator, "operators are normalized on import")
	assert.Equal(t, 2, inactive[0].GroupKey())
}

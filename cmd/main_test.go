package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"chequeo/internal/score"
	"chequeo/internal/score/rule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memoryConfig = `
logger:
  level: error
server:
  address: "127.0.0.1:0"
store:
  backend: memory
`

const fixture = `
ce_capacidad:
  - {id_capacidad: 1, codigo: LID, fl_activa: "Y"}
ce_dimension:
  - {id_dimension: 1, codigo: D1, fl_activa: "Y"}
ce_evaluacion:
  - {id_evaluacion: 1, id_empresa: 1, id_version: 1}
ce_pregunta:
  - {id_pregunta: 1, id_version: 1, codigo: P1, id_capacidad: 1, id_dimension: 1}
  - {id_pregunta: 2, id_version: 1, codigo: P2, id_capacidad: 1, id_dimension: 1}
ce_opcion_respuesta:
  - {id_opcion: 1, id_pregunta: 1, codigo: A, valor_base: 8}
  - {id_opcion: 2, id_pregunta: 2, codigo: B, valor_base: 4}
ce_respuesta:
  - {id_evaluacion: 1, id_pregunta: 1, id_opcion: 1}
  - {id_evaluacion: 1, id_pregunta: 2, id_opcion: 2}
ce_ponderacion:
  - {id_version: 1, id_pregunta: 1, peso: 2}
  - {id_version: 1, id_pregunta: 2, peso: 1}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScoresCompute(t *testing.T) {
	config := writeFile(t, "config.yaml", memoryConfig)
	seed := writeFile(t, "fixture.yaml", fixture)

	out, err := execute(t, "--config", config, "--fixture", seed, "scores", "compute", "1", "1", "1")
	require.NoError(t, err)

	var result score.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 6.67, result.Score)
}

func TestScoresComputeAll(t *testing.T) {
	config := writeFile(t, "config.yaml", memoryConfig)
	seed := writeFile(t, "fixture.yaml", fixture)

	out, err := execute(t, "--config", config, "--fixture", seed, "scores", "compute", "1")
	require.NoError(t, err)

	var batch score.Batch
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	assert.Equal(t, 1, batch.Computed)
}

func TestScoresCompute_WrongArity(t *testing.T) {
	config := writeFile(t, "config.yaml", memoryConfig)

	_, err := execute(t, "--config", config, "scores", "compute", "1", "2")
	assert.Error(t, err)
}

func TestRulesImport(t *testing.T) {
	config := writeFile(t, "config.yaml", memoryConfig)
	base := writeFile(t, "rules.yaml", `
- code: R01
  name: Alto
  conditions:
    - {order: 1, capability: 1, dimension: 1, operator: ">=", value1: 7}
`)

	out, err := execute(t, "--config", config, "rules", "import", base, "--version", "1")
	require.NoError(t, err)

	var summary rule.ImportSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, rule.ImportSummary{VersionID: 1, Rules: 1, Conditions: 1}, summary)

	_, err = execute(t, "--config", config, "rules", "import", base)
	assert.ErrorContains(t, err, "--version")
}

func TestRulesRun_WithoutScores(t *testing.T) {
	config := writeFile(t, "config.yaml", memoryConfig)
	seed := writeFile(t, "fixture.yaml", fixture)

	_, err := execute(t, "--config", config, "--fixture", seed, "rules", "run", "1")
	assert.ErrorContains(t, err, "scores must be computed")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "scores", "summary", "1")
	assert.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", "20"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 20}, ids)

	for _, bad := range []string{"0", "-1", "x", ""} {
		_, err := parseIDs([]string{bad})
		assert.Error(t, err, bad)
	}
}

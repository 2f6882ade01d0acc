package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileSchema(t *testing.T) *jsonschema.Schema {
	t.Helper()
	raw, err := Schema()
	require.NoError(t, err)

	c := jsonschema.NewCompiler()
	require.NoError(t, c.AddResource("report.json", bytes.NewReader(raw)))
	s, err := c.Compile("report.json")
	require.NoError(t, err)
	return s
}

func asJSONValue(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var obj any
	require.NoError(t, json.Unmarshal(b, &obj))
	return obj
}

func TestSchemaValidatesReports(t *testing.T) {
	s := compileSchema(t)
	g, _ := newTestGrader()

	stl := writeSTL(t, "a.stl", box(3, 2, 1))
	pair := writeSTL(t, "pair.stl", boxAt([3]float64{0, 0, 0}, 1), boxAt([3]float64{5, 0, 0}, 1))
	dxf := writeDXF(t, "a.dxf", plate())

	reqs := map[string]Request{
		"part":     {SubmittedPath: stl, ReferencePath: stl},
		"assembly": {SubmittedPath: pair, ReferencePath: pair},
		"drawing":  {SubmittedPath: dxf, ReferencePath: dxf},
		"failure":  {SubmittedPath: stl, ReferencePath: "missing.stl"},
	}
	folder := NewFolder(nil, "(+ cad quiz)", 90)
	for name, req := range reqs {
		t.Run(name, func(t *testing.T) {
			out := g.Compare(context.Background(), req)
			grade, err := folder.Fold(out, QuizResult{Score: 5, Correct: 1, Total: 2})
			require.NoError(t, err)

			report := Report{JobID: "job", Outcome: out, Grade: &grade}
			assert.NoError(t, s.Validate(asJSONValue(t, report)))
		})
	}
}

func TestSchemaRejectsMalformed(t *testing.T) {
	s := compileSchema(t)
	bad := map[string]any{
		"outcome": map[string]any{
			"mode":    "part",
			"failure": map[string]any{"success": "no"},
		},
	}
	assert.Error(t, s.Validate(bad))
}

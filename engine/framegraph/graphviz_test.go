package framegraph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDOT(t *testing.T) {
	g, reg := testGraph{
		resources: []string{"A", "B"},
		moves:     [][2]string{{"B", "A"}},
		passes: []testPass{
			{name: "Consume", reads: []string{"B"}},
			{name: "Produce", writes: []string{"A"}},
		},
	}.build(t)
	plan, err := NewCompiler().Compile(g, reg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteDOT(&buf, g, plan))
	out := buf.String()

	assert.Contains(t, out, `digraph "test" {`)
	assert.Contains(t, out, `r0 [shape=ellipse, label="A"];`)
	assert.Contains(t, out, `label="1: Consume"`)
	assert.Contains(t, out, `label="0: Produce"`)
	assert.Contains(t, out, "r1 -> p0;")
	assert.Contains(t, out, "p1 -> r0")
	assert.Contains(t, out, `r0 -> r1 [style=dashed, label="move"];`)

	buf.Reset()
	require.NoError(t, WriteDOT(&buf, g, nil))
	assert.Contains(t, buf.String(), `label="Consume"`)
}

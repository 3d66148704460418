package circuitfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/circuitgo/internal/builder"
	"github.com/vk/circuitgo/internal/mover"
	"github.com/vk/circuitgo/internal/perch"
	"github.com/vk/circuitgo/internal/solver"
)

const chainSource = `
name = "policy"

perch "A" {}
perch "B" {}
perch "C" {}

mover {
  source    = "A"
  target    = "B"
  direction = "backward"
  map       = { op = "scale", factor = 0.5 }
}

mover {
  source    = "B"
  target    = "C"
  direction = "backward"
  map       = { op = "identity" }
}

values "A" {
  up = [10.0, 5.0]
}
`

func TestParse(t *testing.T) {
	spec, err := Parse("chain.hcl", []byte(chainSource))
	require.NoError(t, err)

	assert.Equal(t, "policy", spec.Name)
	require.Len(t, spec.Perches, 3)
	require.Len(t, spec.Movers, 2)

	assert.Equal(t, "A", spec.Perches[0].Name)
	require.Contains(t, spec.Perches[0].Values, "up")

	m := spec.Movers[0]
	assert.Equal(t, "A", m.Source)
	assert.Equal(t, "B", m.Target)
	assert.Equal(t, mover.Backward, m.Direction)
	assert.Equal(t, cty.StringVal("scale"), m.Map.GetAttr("op"))
}

func TestLoadAndSolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.hcl")
	require.NoError(t, os.WriteFile(path, []byte(chainSource), 0o644))

	spec, err := Load(path)
	require.NoError(t, err)

	b, res, err := builder.BuildAndSolveBackward(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusConverged, res.Status)

	got, err := b.PerchValue("C", perch.KeyUp)
	require.NoError(t, err)
	want := cty.TupleVal([]cty.Value{cty.NumberFloatVal(5), cty.NumberFloatVal(2.5)})
	assert.True(t, want.RawEquals(got), "got %v", got)
}

func TestParseKeysAndCustomRouting(t *testing.T) {
	src := `
perch "obs" {
  keys = ["raw"]
}
perch "out" {}

mover {
  source     = "obs"
  target     = "out"
  direction  = "forward"
  source_key = "raw"
  target_key = "down"
  map        = { op = "offset", amount = 1 }
}

values "obs" {
  raw = 41
}
`
	spec, err := Parse("route.hcl", []byte(src))
	require.NoError(t, err)

	require.Len(t, spec.Movers, 1)
	assert.Equal(t, "raw", spec.Movers[0].SourceKey)
	assert.Equal(t, "down", spec.Movers[0].TargetKey)

	b, err := builder.Build(context.Background(), spec)
	require.NoError(t, err)

	raw, err := b.PerchValue("obs", "raw")
	require.NoError(t, err)
	assert.True(t, cty.NumberIntVal(41).RawEquals(raw))
}

func TestParseErrors(t *testing.T) {
	t.Run("syntax error", func(t *testing.T) {
		_, err := Parse("bad.hcl", []byte(`perch "A" {`))
		require.Error(t, err)
	})

	t.Run("missing required attribute", func(t *testing.T) {
		_, err := Parse("bad.hcl", []byte(`
perch "A" {}
perch "B" {}
mover {
  source = "A"
  target = "B"
}
`))
		require.Error(t, err)
	})

	t.Run("bad direction", func(t *testing.T) {
		_, err := Parse("bad.hcl", []byte(`
perch "A" {}
perch "B" {}
mover {
  source    = "A"
  target    = "B"
  direction = "sideways"
}
`))
		require.ErrorIs(t, err, mover.ErrUnknownDirection)
	})

	t.Run("values for undeclared perch", func(t *testing.T) {
		_, err := Parse("bad.hcl", []byte(`
perch "A" {}
values "ghost" {
  up = 1
}
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
		require.Error(t, err)
	})
}

// Package circuitfile loads board declarations from HCL files. A circuit
// file declares perches, movers and initial values:
//
//	name = "policy"
//
//	perch "A" {
//	  keys = ["raw"]
//	}
//
//	mover {
//	  source    = "A"
//	  target    = "B"
//	  direction = "backward"
//	  map       = { op = "scale", factor = 0.5 }
//	}
//
//	values "A" {
//	  up = [10.0, 5.0]
//	}
//
// The loader only produces a builder.Spec; assembly and validation happen
// in the builder and the board.
package circuitfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/circuitgo/internal/builder"
	"github.com/vk/circuitgo/internal/mover"
)

type root struct {
	Name    string        `hcl:"name,optional"`
	Perches []perchBlock  `hcl:"perch,block"`
	Movers  []moverBlock  `hcl:"mover,block"`
	Values  []valuesBlock `hcl:"values,block"`
}

type perchBlock struct {
	Name string   `hcl:"name,label"`
	Keys []string `hcl:"keys,optional"`
}

type moverBlock struct {
	Source          string    `hcl:"source"`
	Target          string    `hcl:"target"`
	Direction       string    `hcl:"direction"`
	Map             cty.Value `hcl:"map,optional"`
	Parameters      cty.Value `hcl:"parameters,optional"`
	Hyperparameters cty.Value `hcl:"hyperparameters,optional"`
	SourceKey       string    `hcl:"source_key,optional"`
	SourceKeys      []string  `hcl:"source_keys,optional"`
	TargetKey       string    `hcl:"target_key,optional"`
}

// valuesBlock keeps its attributes undecoded: value keys are arbitrary
// perch keys, not a fixed schema.
type valuesBlock struct {
	Perch string   `hcl:"perch,label"`
	Body  hcl.Body `hcl:",remain"`
}

// Load reads and converts one circuit file.
func Load(path string) (builder.Spec, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return builder.Spec{}, fmt.Errorf("parsing %s: %w", path, diags)
	}
	return convert(file)
}

// Parse converts in-memory HCL source. The filename is only used in
// diagnostics.
func Parse(filename string, src []byte) (builder.Spec, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return builder.Spec{}, fmt.Errorf("parsing %s: %w", filename, diags)
	}
	return convert(file)
}

func convert(file *hcl.File) (builder.Spec, error) {
	var r root
	if diags := gohcl.DecodeBody(file.Body, nil, &r); diags.HasErrors() {
		return builder.Spec{}, fmt.Errorf("decoding circuit file: %w", diags)
	}

	spec := builder.Spec{Name: r.Name}

	values := make(map[string]map[string]cty.Value)
	for _, vb := range r.Values {
		attrs, diags := vb.Body.JustAttributes()
		if diags.HasErrors() {
			return builder.Spec{}, fmt.Errorf("values %q: %w", vb.Perch, diags)
		}
		seed := make(map[string]cty.Value, len(attrs))
		for name, attr := range attrs {
			v, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return builder.Spec{}, fmt.Errorf("values %q, key %q: %w", vb.Perch, name, diags)
			}
			seed[name] = v
		}
		if prev, ok := values[vb.Perch]; ok {
			for k, v := range seed {
				prev[k] = v
			}
		} else {
			values[vb.Perch] = seed
		}
	}

	declared := make(map[string]bool, len(r.Perches))
	for _, pb := range r.Perches {
		declared[pb.Name] = true
		spec.Perches = append(spec.Perches, builder.PerchSpec{
			Name:   pb.Name,
			Keys:   pb.Keys,
			Values: values[pb.Name],
		})
	}
	for name := range values {
		if !declared[name] {
			return builder.Spec{}, fmt.Errorf("values block for undeclared perch %q", name)
		}
	}

	for _, mb := range r.Movers {
		d, err := mover.ParseDirection(mb.Direction)
		if err != nil {
			return builder.Spec{}, fmt.Errorf("mover %s -> %s: %w", mb.Source, mb.Target, err)
		}
		spec.Movers = append(spec.Movers, builder.MoverSpec{
			Source:          mb.Source,
			Target:          mb.Target,
			Direction:       d,
			Map:             mb.Map,
			Parameters:      mb.Parameters,
			Hyperparameters: mb.Hyperparameters,
			SourceKey:       mb.SourceKey,
			SourceKeys:      mb.SourceKeys,
			TargetKey:       mb.TargetKey,
		})
	}
	return spec, nil
}

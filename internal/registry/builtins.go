package registry

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/circuitgo/internal/mover"
)

// Default returns a registry preloaded with the built-in numeric ops:
// identity, scale, offset, negate and sum.
func Default() *Registry {
	r := New()
	builtins := []struct {
		name    string
		factory OpFactory
	}{
		{"identity", identityOp},
		{"scale", scaleOp},
		{"offset", offsetOp},
		{"negate", negateOp},
		{"sum", sumOp},
	}
	for _, b := range builtins {
		// Names are unique by construction.
		_ = r.Register(b.name, b.factory)
	}
	return r
}

func identityOp(mover.Blueprint) (mover.Transform, error) {
	return func(in cty.Value) (cty.Value, error) { return in, nil }, nil
}

func scaleOp(bp mover.Blueprint) (mover.Transform, error) {
	factor, err := floatArg(bp, "factor")
	if err != nil {
		return nil, err
	}
	return func(in cty.Value) (cty.Value, error) {
		return mapNumeric(in, func(f float64) float64 { return f * factor })
	}, nil
}

func offsetOp(bp mover.Blueprint) (mover.Transform, error) {
	amount, err := floatArg(bp, "amount")
	if err != nil {
		return nil, err
	}
	return func(in cty.Value) (cty.Value, error) {
		return mapNumeric(in, func(f float64) float64 { return f + amount })
	}, nil
}

func negateOp(mover.Blueprint) (mover.Transform, error) {
	return func(in cty.Value) (cty.Value, error) {
		return mapNumeric(in, func(f float64) float64 { return -f })
	}, nil
}

func sumOp(mover.Blueprint) (mover.Transform, error) {
	return func(in cty.Value) (cty.Value, error) {
		total := 0.0
		if err := eachNumber(in, func(f float64) { total += f }); err != nil {
			return cty.NilVal, err
		}
		return cty.NumberFloatVal(total), nil
	}, nil
}

// mapNumeric applies f to a number or elementwise to a sequence of numbers,
// recursing into nested sequences. The result uses tuple types throughout.
func mapNumeric(v cty.Value, f func(float64) float64) (cty.Value, error) {
	t := v.Type()
	switch {
	case t == cty.Number:
		n, _ := v.AsBigFloat().Float64()
		return cty.NumberFloatVal(f(n)), nil
	case t.IsTupleType() || t.IsListType():
		vals := v.AsValueSlice()
		out := make([]cty.Value, len(vals))
		for i, ev := range vals {
			mapped, err := mapNumeric(ev, f)
			if err != nil {
				return cty.NilVal, err
			}
			out[i] = mapped
		}
		return cty.TupleVal(out), nil
	default:
		return cty.NilVal, fmt.Errorf("value of type %s is not numeric: %w", t.FriendlyName(), ErrBadMap)
	}
}

func eachNumber(v cty.Value, f func(float64)) error {
	t := v.Type()
	switch {
	case t == cty.Number:
		n, _ := v.AsBigFloat().Float64()
		f(n)
		return nil
	case t.IsTupleType() || t.IsListType():
		for _, ev := range v.AsValueSlice() {
			if err := eachNumber(ev, f); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("value of type %s is not numeric: %w", t.FriendlyName(), ErrBadMap)
	}
}

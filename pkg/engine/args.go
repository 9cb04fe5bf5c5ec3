package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/narrowband/pkg/advect"
	"github.com/chazu/narrowband/pkg/geomadvect"
	"github.com/chazu/narrowband/pkg/geometry"
	"github.com/chazu/narrowband/pkg/ls"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpShape wraps a geometry primitive returned by sphere, plane, box and
// cylinder.
type sexpShape struct {
	prim geometry.Primitive
	desc string
}

func (s *sexpShape) SexpString(ps *zygo.PrintState) string { return "(" + s.desc + ")" }
func (s *sexpShape) Type() *zygo.RegisteredType            { return nil }

// sexpVelocity wraps an advect.Velocity.
type sexpVelocity struct {
	v    advect.Velocity
	desc string
}

func (v *sexpVelocity) SexpString(ps *zygo.PrintState) string { return "(" + v.desc + ")" }
func (v *sexpVelocity) Type() *zygo.RegisteredType            { return nil }

// sexpDist describes a distribution for geometric advection. The grid of
// the advected domain is only known when the distribution is applied, so
// construction is deferred.
type sexpDist struct {
	build func(dim int, delta float64) (geomadvect.Distribution, error)
	desc  string
}

func (d *sexpDist) SexpString(ps *zygo.PrintState) string { return "(" + d.desc + ")" }
func (d *sexpDist) Type() *zygo.RegisteredType            { return nil }

// domainRef is returned by builtins that write a domain so calls can be
// nested: (expand (make-geometry "a" (sphere :radius 1)) 3).
func domainRef(name string) zygo.Sexp {
	return &zygo.SexpStr{S: name}
}

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
// A keyword followed by another keyword takes that keyword as its value,
// as in :scheme :weno5.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// arg returns the positional argument i or nil.
func (a kwArgs) arg(i int) zygo.Sexp {
	if i < len(a.positional) {
		return a.positional[i]
	}
	return nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

func describe(s zygo.Sexp) string {
	if s == nil {
		return "nothing"
	}
	return fmt.Sprintf("%T (%s)", s, s.SexpString(nil))
}

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %s", describe(s))
}

// toInt extracts an integer. Floats must not have a fractional part.
func toInt(s zygo.Sexp) (int, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return int(v.Val), nil
	case *zygo.SexpFloat:
		if v.Val == float64(int(v.Val)) {
			return int(v.Val), nil
		}
	}
	return 0, fmt.Errorf("expected integer, got %s", describe(s))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok && !strings.HasPrefix(str.S, kwPrefix) {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %s", describe(s))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %s", describe(s))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toBool accepts true/false, numbers and the keywords :true and :false.
// A keyword given without a value counts as true.
func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpInt:
		return v.Val != 0, nil
	case *zygo.SexpStr:
		switch name, _ := toKeywordString(v); name {
		case "true", "yes":
			return true, nil
		case "false", "no":
			return false, nil
		}
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return true, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %s", describe(s))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toFloats converts a list of numbers.
func toFloats(s zygo.Sexp) ([]float64, error) {
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		if out[i], err = toFloat64(item); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return out, nil
}

// toVec3 converts a list of two or three numbers. Missing z is zero.
func toVec3(s zygo.Sexp) ([3]float64, error) {
	f, err := toFloats(s)
	if err != nil {
		return [3]float64{}, err
	}
	if len(f) != 2 && len(f) != 3 {
		return [3]float64{}, fmt.Errorf("expected 2 or 3 components, got %d", len(f))
	}
	var v [3]float64
	copy(v[:], f)
	return v, nil
}

// toNames accepts a single domain name or a list of names.
func toNames(s zygo.Sexp) ([]string, error) {
	if name, err := toString(s); err == nil {
		return []string{name}, nil
	}
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, fmt.Errorf("expected domain name or list of names, got %s", describe(s))
	}
	names := make([]string, len(items))
	for i, item := range items {
		if names[i], err = toString(item); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return names, nil
}

func toShape(s zygo.Sexp) (geometry.Primitive, error) {
	if sh, ok := s.(*sexpShape); ok {
		return sh.prim, nil
	}
	return nil, fmt.Errorf("expected shape, got %s", describe(s))
}

func toVelocity(s zygo.Sexp) (advect.Velocity, error) {
	if v, ok := s.(*sexpVelocity); ok {
		return v.v, nil
	}
	return nil, fmt.Errorf("expected velocity, got %s", describe(s))
}

func toDist(s zygo.Sexp) (*sexpDist, error) {
	if d, ok := s.(*sexpDist); ok {
		return d, nil
	}
	return nil, fmt.Errorf("expected distribution, got %s", describe(s))
}

// ---------------------------------------------------------------------------
// Keyword tables
// ---------------------------------------------------------------------------

func toBoundaryCondition(s zygo.Sexp) (ls.BoundaryCondition, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, err
	}
	for _, bc := range []ls.BoundaryCondition{ls.Reflective, ls.Infinite, ls.Periodic} {
		if bc.String() == name {
			return bc, nil
		}
	}
	return 0, fmt.Errorf("invalid boundary condition %q, expected reflective, infinite or periodic", name)
}

func toBooleanOp(s zygo.Sexp) (ls.BooleanOp, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, err
	}
	for _, op := range []ls.BooleanOp{ls.Union, ls.Intersect, ls.RelativeComplement} {
		if op.String() == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("invalid operation %q, expected union, intersect or relative-complement", name)
}

package quantity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// ErrReservedName is returned when a custom quantity shadows a built-in one.
var ErrReservedName = errors.New("name is already used by a built-in quantity")

// Variables maps the identifiers usable in custom expressions to the
// built-in quantities they stand for.
var Variables = map[string]string{
	"frame":       FrameNumber,
	"time":        Time,
	"x_left":      PositionLeft,
	"x_right":     PositionRight,
	"x_center":    PositionCenter,
	"v_left":      VelocityLeft,
	"v_right":     VelocityRight,
	"ca_left":     AngleLeft,
	"ca_right":    AngleRight,
	"ca_mean":     AngleMean,
	"base_radius": BaseRadius,
	"height":      Height,
	"area":        Area,
	"volume":      Volume,
	"ridge_left":  RidgeLeft,
	"ridge_right": RidgeRight,
	"ridge_mean":  RidgeMean,
	"tp_left":     TPAngleLeft,
	"tp_right":    TPAngleRight,
	"tp_mean":     TPAngleMean,
}

type customQuantity struct {
	expression string
	unit       string
	program    *vm.Program
	uses       []string
}

// Define compiles expression as a custom quantity evaluated per sample. The
// expression reads the raw built-in quantities through Variables, plus "i"
// for the sample index and "dt" for the sample spacing. Defining a name
// again replaces the previous definition.
func (c *Cache) Define(name, expression, unit string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("custom quantity: name must not be empty")
	}
	if _, ok := builtins[name]; ok {
		return fmt.Errorf("custom quantity %q: %w", name, ErrReservedName)
	}
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return fmt.Errorf("custom quantity %q: expression must not be empty", name)
	}
	program, err := expr.Compile(expression, expr.Env(sampleEnv(nil)), expr.AsFloat64())
	if err != nil {
		return fmt.Errorf("custom quantity %q: compile: %w", name, err)
	}

	uses, err := variablesOf(expression)
	if err != nil {
		return fmt.Errorf("custom quantity %q: parse: %w", name, err)
	}
	c.custom[name] = customQuantity{expression: expression, unit: unit, program: program, uses: uses}
	for k := range c.memo {
		if k.name == name {
			delete(c.memo, k)
		}
	}
	c.log.Debug().Str("quantity", name).Str("expression", expression).Msg("custom quantity defined")
	return nil
}

// Undefine removes a custom quantity.
func (c *Cache) Undefine(name string) {
	delete(c.custom, name)
	for k := range c.memo {
		if k.name == name {
			delete(c.memo, k)
		}
	}
}

// identifiers collects the names of the variables an expression reads.
type identifiers map[string]bool

func (ids identifiers) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		ids[n.Value] = true
	}
}

// variablesOf returns the entries of Variables referenced by expression,
// sorted.
func variablesOf(expression string) ([]string, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	ids := identifiers{}
	ast.Walk(&tree.Node, ids)

	var uses []string
	for ident := range ids {
		if _, ok := Variables[ident]; ok {
			uses = append(uses, ident)
		}
	}
	sort.Strings(uses)
	return uses, nil
}

func sampleEnv(values map[string]float64) map[string]interface{} {
	env := make(map[string]interface{}, len(Variables)+2)
	for ident := range Variables {
		env[ident] = math.NaN()
	}
	for ident, v := range values {
		env[ident] = v
	}
	if _, ok := env["i"]; !ok {
		env["i"] = 0.0
	}
	if _, ok := env["dt"]; !ok {
		env["dt"] = 0.0
	}
	return env
}

// evaluate runs the program once per sample. Only the variables mentioned
// in the expression are computed.
func (q customQuantity) evaluate(c *Cache) ([]float64, error) {
	n := c.result.Len()
	series := make(map[string][]float64, len(q.uses))
	for _, ident := range q.uses {
		values, _, ok := c.raw(Variables[ident])
		if !ok {
			values = nanSeries(n)
		}
		series[ident] = values
	}

	out := make([]float64, n)
	sample := make(map[string]float64, len(series)+2)
	for i := range out {
		for ident, values := range series {
			sample[ident] = values[i]
		}
		sample["i"] = float64(i)
		sample["dt"] = c.result.Dt
		res, err := vm.Run(q.program, sampleEnv(sample))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		v, ok := res.(float64)
		if !ok {
			return nil, fmt.Errorf("sample %d: result %v is not a number", i, res)
		}
		out[i] = v
	}
	return out, nil
}

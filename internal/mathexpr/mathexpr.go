// Package mathexpr evaluates the Math channel equation. Equations combine
// the A, B and F traces sample by sample with + - * / ^, parentheses,
// numeric literals and the constants pi and e.
package mathexpr

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ErrInvalidEquation is returned for equations that use characters outside
// the allowed alphabet or do not compile
var ErrInvalidEquation = errors.New("invalid equation")

var alphabet = regexp.MustCompile(`^[()ABF+\-/*^pie.0-9\s]*$`)

// ReferencesFilter reports whether the equation reads the Filter trace
func ReferencesFilter(equation string) bool {
	return strings.ContainsRune(equation, 'F')
}

// ReferencesPhysical reports whether the equation reads trace A or B
func ReferencesPhysical(equation string) bool {
	return strings.ContainsAny(equation, "AB")
}

// Program is a compiled equation
type Program struct {
	equation string
	program  *vm.Program
	env      map[string]interface{}
	machine  vm.VM
}

func newEnv() map[string]interface{} {
	return map[string]interface{}{
		"A":  0.0,
		"B":  0.0,
		"F":  0.0,
		"pi": math.Pi,
		"e":  math.E,
	}
}

// Compile checks the equation and prepares it for evaluation
func Compile(equation string) (*Program, error) {
	if strings.TrimSpace(equation) == "" {
		return nil, fmt.Errorf("%w: empty equation", ErrInvalidEquation)
	}
	if !alphabet.MatchString(equation) {
		return nil, fmt.Errorf("%w: %q may only contain A, B, F, pi, e, numbers, parentheses and + - * / ^",
			ErrInvalidEquation, equation)
	}

	// expr also reads ** as power; only ^ is part of the equation language
	if strings.Contains(equation, "**") {
		return nil, fmt.Errorf("%w: %q uses **, write powers with ^", ErrInvalidEquation, equation)
	}

	env := newEnv()
	program, err := expr.Compile(equation, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEquation, err)
	}

	return &Program{equation: equation, program: program, env: env}, nil
}

// Validate reports whether the equation would compile
func Validate(equation string) error {
	_, err := Compile(equation)
	return err
}

// Equation returns the source text
func (p *Program) Equation() string { return p.equation }

// UsesFilter reports whether the program reads the Filter trace
func (p *Program) UsesFilter() bool { return ReferencesFilter(p.equation) }

// Eval evaluates the equation for one sample. The sample values are bound
// exactly, with no text round trip. A sample that cannot be evaluated
// gives NaN; division by zero follows IEEE rules.
func (p *Program) Eval(a, b, f float64) float64 {
	p.env["A"] = a
	p.env["B"] = b
	p.env["F"] = f

	out, err := p.machine.Run(p.program, p.env)
	if err != nil {
		return math.NaN()
	}
	v, ok := out.(float64)
	if !ok {
		return math.NaN()
	}
	return v
}

// Series evaluates the equation at every index. The result is as long as
// the shortest trace the equation needs. f may be nil when the equation
// does not reference F.
func (p *Program) Series(a, b, f []float64) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	usesF := p.UsesFilter()
	if usesF && len(f) < n {
		n = len(f)
	}

	out := make([]float64, n)
	for i := range out {
		var fi float64
		if usesF {
			fi = f[i]
		}
		out[i] = p.Eval(a[i], b[i], fi)
	}
	return out
}

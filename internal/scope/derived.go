package scope

import (
	"errors"
	"fmt"

	"digiscope-client/internal/channel"
	"digiscope-client/internal/dsp"
	"digiscope-client/internal/mathexpr"
)

var (
	// ErrDependencyCycle is returned when a change would make the Math and
	// Filter channels depend on each other
	ErrDependencyCycle = errors.New("math and filter channels would depend on each other")
	// ErrFilterUnavailable is returned when the Math equation references F
	// before a filter is loaded and its input selected
	ErrFilterUnavailable = errors.New("filter channel is not available")
	// ErrInvalidFilterInput is returned for filter inputs that cannot feed the filter
	ErrInvalidFilterInput = errors.New("invalid filter input")
)

// Derived holds the configuration of the Math and Filter channels and the
// edge between them. At most one of Math->Filter and Filter->Math exists.
type Derived struct {
	program *mathexpr.Program

	coeffs        *dsp.Coefficients
	filterInput   channel.Kind
	filesLoaded   bool
	inputSelected bool
}

// NewDerived returns a configuration with no equation and no filter
func NewDerived() *Derived {
	return &Derived{filterInput: channel.A}
}

// Equation returns the current Math equation, empty when unset
func (d *Derived) Equation() string {
	if d.program == nil {
		return ""
	}
	return d.program.Equation()
}

// MathAvailable reports whether an equation is set
func (d *Derived) MathAvailable() bool {
	return d.program != nil
}

// FilterAvailable reports whether coefficients are loaded and an input is
// selected
func (d *Derived) FilterAvailable() bool {
	return d.filesLoaded && d.inputSelected
}

// FilterInput returns the trace feeding the filter
func (d *Derived) FilterInput() channel.Kind {
	return d.filterInput
}

// FilterType returns the kind of filter loaded
func (d *Derived) FilterType() dsp.FilterType {
	if d.coeffs == nil {
		return dsp.Unset
	}
	return d.coeffs.Type
}

// mathFeedsFilter reports the Math->Filter edge
func (d *Derived) mathFeedsFilter() bool {
	return d.inputSelected && d.filterInput == channel.Math
}

// filterFeedsMath reports the Filter->Math edge
func (d *Derived) filterFeedsMath() bool {
	return d.program != nil && d.program.UsesFilter()
}

// MathSelectableAsInput reports whether Math may be offered as the filter
// input: it needs an equation that reads a physical channel and must not
// read F
func (d *Derived) MathSelectableAsInput() bool {
	eq := d.Equation()
	return eq != "" && mathexpr.ReferencesPhysical(eq) && !mathexpr.ReferencesFilter(eq)
}

// Notice reports side effects of an accepted change
type Notice struct {
	// FilterInputReset is set when the filter input fell back to A because
	// the new equation no longer reads a physical channel
	FilterInputReset bool
}

// SetEquation installs a new Math equation. An empty equation disables the
// Math channel. On error the previous equation stays in place.
func (d *Derived) SetEquation(equation string) (Notice, error) {
	var notice Notice

	if equation == "" {
		d.program = nil
		if d.mathFeedsFilter() {
			d.filterInput = channel.A
			notice.FilterInputReset = true
		}
		return notice, nil
	}

	program, err := mathexpr.Compile(equation)
	if err != nil {
		return notice, err
	}

	if program.UsesFilter() {
		if d.mathFeedsFilter() {
			return notice, fmt.Errorf("%w: filter input is Math, equation %q reads F", ErrDependencyCycle, equation)
		}
		if !d.FilterAvailable() {
			return notice, fmt.Errorf("%w: equation %q reads F", ErrFilterUnavailable, equation)
		}
	}

	d.program = program
	if d.mathFeedsFilter() && !mathexpr.ReferencesPhysical(equation) {
		d.filterInput = channel.A
		notice.FilterInputReset = true
	}
	return notice, nil
}

// SetFilterInput selects the trace feeding the filter. On error the
// previous input stays in place.
func (d *Derived) SetFilterInput(input channel.Kind) error {
	switch input {
	case channel.A, channel.B:
	case channel.Math:
		if d.filterFeedsMath() {
			return fmt.Errorf("%w: equation %q reads F", ErrDependencyCycle, d.Equation())
		}
		if !d.MathSelectableAsInput() {
			return fmt.Errorf("%w: Math needs an equation over A or B", ErrInvalidFilterInput)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidFilterInput, input)
	}

	d.filterInput = input
	d.inputSelected = true
	return nil
}

// LoadFilter installs a coefficient table
func (d *Derived) LoadFilter(coeffs *dsp.Coefficients) {
	d.coeffs = coeffs
	d.filesLoaded = true
}

// Plan returns the derived channels to compute after each acquisition, in
// dependency order
func (d *Derived) Plan() []channel.Kind {
	mathOn := d.MathAvailable()
	filterOn := d.FilterAvailable()

	switch {
	case mathOn && filterOn && d.filterFeedsMath():
		return []channel.Kind{channel.Filter, channel.Math}
	case mathOn && filterOn:
		// Math first covers both Math->Filter and no edge at all
		return []channel.Kind{channel.Math, channel.Filter}
	case mathOn:
		return []channel.Kind{channel.Math}
	case filterOn:
		return []channel.Kind{channel.Filter}
	}
	return nil
}

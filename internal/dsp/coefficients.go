package dsp

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMalformedCoefficients is returned for coefficient tables that cannot
// be used as a filter
var ErrMalformedCoefficients = errors.New("malformed coefficient table")

// FilterType tells which filter a coefficient table describes
type FilterType int

const (
	Unset FilterType = iota
	FIRFilter
	IIRFilter
)

func (t FilterType) String() string {
	switch t {
	case FIRFilter:
		return "FIR"
	case IIRFilter:
		return "IIR"
	}
	return "unset"
}

// Coefficients is a parsed coefficient table. A one column table is a FIR
// filter. A two column table is an IIR filter whose first column holds the
// feedback coefficients a and second column the feed-forward coefficients b.
type Coefficients struct {
	Type FilterType
	Taps []float64 // FIR
	A    []float64 // IIR feedback
	B    []float64 // IIR feed-forward
}

// Apply runs the filter over x
func (c *Coefficients) Apply(x []float64) ([]float64, error) {
	switch c.Type {
	case FIRFilter:
		return FIR(x, c.Taps), nil
	case IIRFilter:
		return IIR(x, c.A, c.B)
	}
	return nil, fmt.Errorf("no filter loaded")
}

// LoadCoefficients parses a comma separated coefficient table. The column
// count of the first row fixes the filter type and every later row must
// match it. Blank lines are skipped. Nothing is returned unless the whole
// table is valid.
func LoadCoefficients(r io.Reader) (*Coefficients, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0 // first record fixes the width
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var columns [][]float64
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
				return nil, fmt.Errorf("%w: line %d has %d columns, expected %d",
					ErrMalformedCoefficients, parseErr.Line, len(record), len(columns))
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedCoefficients, err)
		}
		line++

		if columns == nil {
			if len(record) < 1 || len(record) > 2 {
				return nil, fmt.Errorf("%w: %d columns, expected 1 (FIR) or 2 (IIR)",
					ErrMalformedCoefficients, len(record))
			}
			columns = make([][]float64, len(record))
		}

		for col, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %d: %q is not a number",
					ErrMalformedCoefficients, line, col+1, field)
			}
			columns[col] = append(columns[col], v)
		}
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no coefficients", ErrMalformedCoefficients)
	}

	if len(columns) == 1 {
		return &Coefficients{Type: FIRFilter, Taps: columns[0]}, nil
	}

	if columns[0][0] == 0 {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCoefficients, ErrInvalidFeedback)
	}
	return &Coefficients{Type: IIRFilter, A: columns[0], B: columns[1]}, nil
}

// LoadCoefficientsFile reads a coefficient table from disk
func LoadCoefficientsFile(path string) (*Coefficients, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open coefficient file: %w", err)
	}
	defer file.Close()

	coeffs, err := LoadCoefficients(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return coeffs, nil
}

// Package units parses the physical scale and time step entered by the user.
package units

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Quantity is a numeric value with a unit label, e.g. 0.0125 "mm".
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Pixel is the unit used before any scaling is applied.
var Pixel = Quantity{Value: 1, Unit: ""}

// String renders the quantity as "<value> <unit>".
func (q Quantity) String() string {
	if q.Unit == "" {
		return decimal.NewFromFloat(q.Value).String()
	}
	return decimal.NewFromFloat(q.Value).String() + " " + q.Unit
}

// absFloor keeps values that are both zero, or both denormal, equal.
const absFloor = 1e-300

// ApproxEqual compares units exactly and values with a relative tolerance,
// whatever their magnitude.
func (q Quantity) ApproxEqual(other Quantity, tol float64) bool {
	if q.Unit != other.Unit {
		return false
	}
	diff := math.Abs(q.Value - other.Value)
	scale := math.Max(math.Abs(q.Value), math.Abs(other.Value))
	return diff <= tol*scale || diff <= absFloor
}

// ParseError reports user-entered text that could not be parsed.
type ParseError struct {
	Field string
	Text  string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Text, e.Cause)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

var quantityPattern = regexp.MustCompile(`^\s*([0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?)\s*([A-Za-zµμ]*)\s*$`)

var lengthUnits = map[string]string{
	"":   "",
	"px": "",
	"m":  "m",
	"cm": "cm",
	"mm": "mm",
	"um": "um",
	"µm": "um",
	"μm": "um",
	"nm": "nm",
}

var timeUnits = map[string]string{
	"":    "s",
	"s":   "s",
	"ms":  "ms",
	"us":  "us",
	"µs":  "us",
	"min": "min",
}

// ParseLength parses a scale-bar label such as "500 um" or "1.5mm".
func ParseLength(text string) (decimal.Decimal, string, error) {
	return parse("length", text, lengthUnits)
}

// ParseTimeStep parses a frame interval such as "0.04" or "40 ms". A bare
// number is interpreted in seconds.
func ParseTimeStep(text string) (Quantity, error) {
	value, unit, err := parse("time step", text, timeUnits)
	if err != nil {
		return Quantity{}, err
	}
	if !value.IsPositive() {
		return Quantity{}, &ParseError{Field: "time step", Text: text, Cause: fmt.Errorf("must be positive")}
	}
	return Quantity{Value: value.InexactFloat64(), Unit: unit}, nil
}

// PixelScale converts a scale-bar label and its measured length in pixels
// into the size of one pixel.
func PixelScale(text string, pixels float64) (Quantity, error) {
	value, unit, err := ParseLength(text)
	if err != nil {
		return Quantity{}, err
	}
	if pixels <= 0 || math.IsNaN(pixels) {
		return Quantity{}, &ParseError{Field: "scale", Text: text, Cause: fmt.Errorf("scale bar length must be positive, got %g px", pixels)}
	}
	if !value.IsPositive() {
		return Quantity{}, &ParseError{Field: "scale", Text: text, Cause: fmt.Errorf("must be positive")}
	}
	per := value.Div(decimal.NewFromFloat(pixels))
	return Quantity{Value: per.InexactFloat64(), Unit: unit}, nil
}

func parse(field, text string, known map[string]string) (decimal.Decimal, string, error) {
	m := quantityPattern.FindStringSubmatch(text)
	if m == nil {
		return decimal.Decimal{}, "", &ParseError{Field: field, Text: text}
	}
	value, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Decimal{}, "", &ParseError{Field: field, Text: text, Cause: err}
	}
	unit, ok := known[strings.TrimSpace(m[2])]
	if !ok {
		return decimal.Decimal{}, "", &ParseError{Field: field, Text: text, Cause: fmt.Errorf("unknown unit %q", m[2])}
	}
	return value, unit, nil
}

// Derived unit labels used for plotted quantities.

// Velocity returns "<length>/<time>".
func Velocity(length, time string) string {
	return lengthOrPx(length) + "/" + time
}

// Area returns "<length>^2".
func Area(length string) string {
	return lengthOrPx(length) + "^2"
}

// Volume returns "<length>^3".
func Volume(length string) string {
	return lengthOrPx(length) + "^3"
}

// Length returns the length label, "px" when unscaled.
func Length(length string) string {
	return lengthOrPx(length)
}

func lengthOrPx(unit string) string {
	if unit == "" {
		return "px"
	}
	return unit
}

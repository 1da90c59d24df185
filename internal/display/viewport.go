package display

// Screen geometry of the oscilloscope grid
const (
	Width                 = 1000.0
	Height                = 650.0
	VerticalSections      = 12
	HorizontalSections    = 16
	VerticalSectionSize   = Height / VerticalSections
	HorizontalSectionSize = Width / HorizontalSections
	HorizontalZero        = Height / 2
)

// Point is a screen coordinate, origin at the top left
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Projection is a trace mapped onto the grid
type Projection struct {
	Points    []Point
	Visible   []float64 // samples that landed on screen
	OffScreen bool      // at least one sample fell above or below the grid
}

// ToY maps a voltage to a screen row at verticalRes volts per division
func ToY(v, verticalRes float64) float64 {
	return -(v * VerticalSectionSize / verticalRes) + HorizontalZero
}

// VoltageAt maps a screen row back to a voltage at voltsPerDiv volts per
// division
func VoltageAt(y, voltsPerDiv float64) float64 {
	return (y - HorizontalZero) * -(voltsPerDiv / VerticalSectionSize)
}

// Project maps samples onto the grid. Samples are spread over the full
// width and stretched by scale; projection stops at the first sample past
// the right edge.
func Project(samples []float64, verticalRes, scale float64) Projection {
	var p Projection
	if len(samples) == 0 {
		return p
	}

	widthScaling := Width / float64(len(samples))
	for i, v := range samples {
		x := widthScaling * float64(i) * scale
		if x > Width {
			break
		}
		y := ToY(v, verticalRes)
		p.Points = append(p.Points, Point{X: x, Y: y})

		if y < 0 || y > Height {
			p.OffScreen = true
			continue
		}
		p.Visible = append(p.Visible, v)
	}
	return p
}

package disclosure

import (
	"math"

	"github.com/jengzang/memorymap-backend-go/internal/models"
)

// LegLength returns the spiderfy leg length in pixels for n members
func (c Config) LegLength(n int) float64 {
	return c.BaseLeg + math.Min(float64(n)*c.LegPerMember, c.LegCap)
}

// Offsets places n points evenly on a circle of radius leg around the origin.
// The first point is straight up and the rest follow clockwise on screen,
// where y grows downwards.
func Offsets(n int, leg float64) []models.ScreenPoint {
	if n <= 0 {
		return nil
	}
	step := 2 * math.Pi / float64(n)
	out := make([]models.ScreenPoint, n)
	for i := range out {
		angle := float64(i)*step - math.Pi/2
		out[i] = models.ScreenPoint{
			X: leg * math.Cos(angle),
			Y: leg * math.Sin(angle),
		}
	}
	return out
}

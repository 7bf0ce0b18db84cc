package coord

import (
	"math"
)

type Point struct{ X, Y, Z float64 }

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}

func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	p.Z *= val
	return p
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// Distance will return the 3D distance from p to the target.
func (p Point) Distance(target Point) float64 {
	return math.Sqrt(math.Pow(target.X-p.X, 2) + math.Pow(target.Y-p.Y, 2) + math.Pow(target.Z-p.Z, 2))
}

package domain

import (
	"math"

	"github.com/golang/geo/s2"
)

// RingShape summarizes the geometry of an emitted ring. It never changes what
// is emitted; it feeds metrics and debug logs.
type RingShape struct {
	Vertices   int
	Closed     bool
	Degenerate bool
	Area       float64 // steradians on the unit sphere
}

// ShapeOf inspects a ring built by BuildRing.
func ShapeOf(ring []Position) RingShape {
	shape := RingShape{Vertices: len(ring)}
	if len(ring) == 0 {
		shape.Degenerate = true
		return shape
	}
	shape.Closed = ring[0] == ring[len(ring)-1]

	open := make([]Position, 0, len(ring))
	for _, p := range ring {
		if len(open) > 0 && open[len(open)-1] == p {
			continue
		}
		open = append(open, p)
	}
	if len(open) > 1 && open[0] == open[len(open)-1] {
		open = open[:len(open)-1]
	}
	if len(open) < 3 {
		shape.Degenerate = true
		return shape
	}

	points := make([]s2.Point, 0, len(open))
	for _, p := range open {
		points = append(points, s2.PointFromLatLng(s2.LatLngFromDegrees(p[1], p[0])))
	}
	loop := s2.LoopFromPoints(points)
	// CAP rings come in either orientation; the smaller side is the alert area.
	if loop.Area() > 2*math.Pi {
		loop.Invert()
	}
	shape.Area = loop.Area()
	shape.Degenerate = shape.Area == 0
	return shape
}

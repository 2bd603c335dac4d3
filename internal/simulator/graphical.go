// Graphical function sampling (spec §3, §4.9): step, nearestStep, linear,
// and cubic interpolation over an ordered point table. Grounded on the
// piecewise sampling style of the XMILE GF reference data model
// (bpowers-go-xmile's GF{XPoints, YPoints}), adapted to this module's
// []graph.Point representation.
package simulator

import (
	"github.com/smilemakc/stockflow/internal/graph"
	"github.com/smilemakc/stockflow/internal/plan"
)

func sampleGraphicalFunction(points []graph.Point, method plan.InterpolationMethod, x float64) float64 {
	if len(points) == 0 {
		return 0
	}
	if x <= points[0].X {
		return points[0].Y
	}
	if x >= points[len(points)-1].X {
		return points[len(points)-1].Y
	}

	lo := 0
	for i := 0; i < len(points)-1; i++ {
		if points[i].X <= x && x <= points[i+1].X {
			lo = i
			break
		}
	}
	hi := lo + 1

	switch method {
	case plan.InterpolationStep:
		return points[lo].Y
	case plan.InterpolationNearestStep:
		if x-points[lo].X <= points[hi].X-x {
			return points[lo].Y
		}
		return points[hi].Y
	case plan.InterpolationCubic:
		return cubicInterpolate(points, lo, hi, x)
	default: // plan.InterpolationLinear
		span := points[hi].X - points[lo].X
		if span == 0 {
			return points[lo].Y
		}
		t := (x - points[lo].X) / span
		return points[lo].Y + t*(points[hi].Y-points[lo].Y)
	}
}

// cubicInterpolate fits a Catmull-Rom spline segment using the neighboring
// points when available, falling back to the segment's own endpoints at the
// table's boundaries.
func cubicInterpolate(points []graph.Point, lo, hi int, x float64) float64 {
	p0, p1, p2, p3 := points[lo], points[lo], points[hi], points[hi]
	if lo > 0 {
		p0 = points[lo-1]
	}
	if hi < len(points)-1 {
		p3 = points[hi+1]
	}

	span := p2.X - p1.X
	if span == 0 {
		return p1.Y
	}
	t := (x - p1.X) / span
	t2 := t * t
	t3 := t2 * t

	return 0.5 * ((2 * p1.Y) +
		(-p0.Y+p2.Y)*t +
		(2*p0.Y-5*p1.Y+4*p2.Y-p3.Y)*t2 +
		(-p0.Y+3*p1.Y-3*p2.Y+p3.Y)*t3)
}

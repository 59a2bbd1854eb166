package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// DefaultTolerance is the coordinate tolerance used when none is configured.
const DefaultTolerance = 1e-9

// EqualText parses both texts and compares them with Equal.
func EqualText(a, b string, tolerance float64) (bool, error) {
	ga, _, err := Parse(a)
	if err != nil {
		return false, err
	}
	gb, _, err := Parse(b)
	if err != nil {
		return false, err
	}
	return Equal(ga, gb, tolerance), nil
}

// Equal reports whether a and b describe the same shape. Ring and path order,
// the start vertex of a ring and traversal direction are ignored.
func Equal(a, b orb.Geometry, tolerance float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	pa, pb := parts(a), parts(b)
	if len(pa) != len(pb) || !boundsEqual(partsBound(pa), partsBound(pb), tolerance) {
		return false
	}
	for i := range pa {
		if !sequenceEqual(pa[i], pb[i], tolerance) {
			return false
		}
	}
	return true
}

// parts flattens a geometry into normalized vertex sequences sorted into a
// deterministic order.
func parts(g orb.Geometry) [][]orb.Point {
	var out [][]orb.Point
	switch v := g.(type) {
	case orb.Point:
		out = append(out, []orb.Point{v})
	case orb.MultiPoint:
		for _, p := range v {
			out = append(out, []orb.Point{p})
		}
	case orb.LineString:
		out = append(out, normalizePath(v))
	case orb.MultiLineString:
		for _, ls := range v {
			out = append(out, normalizePath(ls))
		}
	case orb.Ring:
		out = append(out, normalizeRing(v))
	case orb.Polygon:
		for _, r := range v {
			out = append(out, normalizeRing(r))
		}
	case orb.MultiPolygon:
		for _, p := range v {
			for _, r := range p {
				out = append(out, normalizeRing(r))
			}
		}
	case orb.Collection:
		for _, child := range v {
			out = append(out, parts(child)...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessSequence(out[i], out[j]) })
	return out
}

// normalizeRing drops the closing vertex, orients the ring clockwise and rotates
// it to start at its smallest vertex.
func normalizeRing(r orb.Ring) []orb.Point {
	ring := make(orb.Ring, len(r))
	copy(ring, r)
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	if len(ring) > 2 && ring.Orientation() == orb.CCW {
		ring.Reverse()
	}
	return rotateToMin(ring)
}

// normalizePath picks the lexicographically smaller of the path and its reverse.
func normalizePath(ls orb.LineString) []orb.Point {
	fwd := make([]orb.Point, len(ls))
	copy(fwd, ls)
	rev := make([]orb.Point, len(ls))
	for i, p := range ls {
		rev[len(ls)-1-i] = p
	}
	if lessSequence(rev, fwd) {
		return rev
	}
	return fwd
}

func rotateToMin(pts []orb.Point) []orb.Point {
	if len(pts) == 0 {
		return pts
	}
	start := 0
	for i := range pts {
		if lessPoint(pts[i], pts[start]) {
			start = i
		}
	}
	out := make([]orb.Point, 0, len(pts))
	out = append(out, pts[start:]...)
	out = append(out, pts[:start]...)
	return out
}

func lessPoint(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

func lessSequence(a, b []orb.Point) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return lessPoint(a[i], b[i])
		}
	}
	return len(a) < len(b)
}

func sequenceEqual(a, b []orb.Point, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !pointEqual(a[i], b[i], tol) {
			return false
		}
	}
	return true
}

func pointEqual(a, b orb.Point, tol float64) bool {
	return math.Abs(a[0]-b[0]) <= tol && math.Abs(a[1]-b[1]) <= tol
}

// partsBound covers every vertex of every part. orb's Polygon.Bound only
// looks at the outer ring.
func partsBound(seqs [][]orb.Point) orb.Bound {
	var b orb.Bound
	first := true
	for _, part := range seqs {
		for _, p := range part {
			if first {
				b = orb.Bound{Min: p, Max: p}
				first = false
				continue
			}
			b = b.Extend(p)
		}
	}
	return b
}

func boundsEqual(a, b orb.Bound, tol float64) bool {
	return pointEqual(a.Min, b.Min, tol) && pointEqual(a.Max, b.Max, tol)
}

package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// ErrUnsupported is returned for geometry JSON that is not a point, multipoint,
// polyline or polygon.
var ErrUnsupported = errors.New("unsupported geometry")

// esriGeometry is the union of the Esri JSON geometry shapes.
type esriGeometry struct {
	X                *float64        `json:"x,omitempty"`
	Y                *float64        `json:"y,omitempty"`
	Points           [][]float64     `json:"points,omitempty"`
	Paths            [][][]float64   `json:"paths,omitempty"`
	Rings            [][][]float64   `json:"rings,omitempty"`
	SpatialReference json.RawMessage `json:"spatialReference,omitempty"`
}

// Parse decodes Esri JSON text. Empty text or an empty point yields a nil geometry.
func Parse(text string) (orb.Geometry, json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return nil, nil, nil
	}

	var eg esriGeometry
	if err := json.Unmarshal([]byte(text), &eg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse geometry json: %w", err)
	}

	switch {
	case eg.Rings != nil:
		poly := make(orb.Polygon, 0, len(eg.Rings))
		for _, r := range eg.Rings {
			poly = append(poly, orb.Ring(toPoints(r)))
		}
		return poly, eg.SpatialReference, nil
	case eg.Paths != nil:
		mls := make(orb.MultiLineString, 0, len(eg.Paths))
		for _, p := range eg.Paths {
			mls = append(mls, orb.LineString(toPoints(p)))
		}
		return mls, eg.SpatialReference, nil
	case eg.Points != nil:
		return orb.MultiPoint(toPoints(eg.Points)), eg.SpatialReference, nil
	case eg.X != nil && eg.Y != nil:
		return orb.Point{*eg.X, *eg.Y}, eg.SpatialReference, nil
	case eg.X == nil && eg.Y == nil:
		// {"x": null} or {"spatialReference": ...} only: an empty shape.
		return nil, eg.SpatialReference, nil
	}
	return nil, nil, ErrUnsupported
}

// Encode writes g as Esri JSON text. sr is attached as spatialReference when set.
func Encode(g orb.Geometry, sr json.RawMessage) (string, error) {
	if g == nil {
		return "", nil
	}

	eg := esriGeometry{SpatialReference: sr}
	switch v := g.(type) {
	case orb.Point:
		x, y := v[0], v[1]
		eg.X, eg.Y = &x, &y
	case orb.MultiPoint:
		eg.Points = fromPoints(v)
	case orb.LineString:
		eg.Paths = [][][]float64{fromPoints(v)}
	case orb.MultiLineString:
		eg.Paths = make([][][]float64, 0, len(v))
		for _, ls := range v {
			eg.Paths = append(eg.Paths, fromPoints(ls))
		}
	case orb.Ring:
		eg.Rings = [][][]float64{fromPoints(v)}
	case orb.Polygon:
		eg.Rings = make([][][]float64, 0, len(v))
		for _, r := range v {
			eg.Rings = append(eg.Rings, fromPoints(r))
		}
	case orb.MultiPolygon:
		for _, p := range v {
			for _, r := range p {
				eg.Rings = append(eg.Rings, fromPoints(r))
			}
		}
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupported, g)
	}

	out, err := json.Marshal(eg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Canonical re-serializes Esri JSON text without its spatial reference and with a
// fixed key order.
func Canonical(text string) (string, error) {
	g, _, err := Parse(text)
	if err != nil {
		return "", err
	}
	return Encode(g, nil)
}

// ToWKB converts Esri JSON text to WKB. Empty geometry converts to nil.
func ToWKB(text string) ([]byte, error) {
	g, _, err := Parse(text)
	if err != nil || g == nil {
		return nil, err
	}
	return wkb.Marshal(g)
}

// FromWKB converts stored WKB back to Esri JSON text.
func FromWKB(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode wkb: %w", err)
	}
	return Encode(g, nil)
}

// Object decodes Esri JSON text into the raw object sent to feature services.
func Object(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("invalid geometry json")
	}
	return json.RawMessage(text), nil
}

func toPoints(coords [][]float64) []orb.Point {
	pts := make([]orb.Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		pts = append(pts, orb.Point{c[0], c[1]})
	}
	return pts
}

func fromPoints(pts []orb.Point) [][]float64 {
	out := make([][]float64, 0, len(pts))
	for _, p := range pts {
		out = append(out, []float64{p[0], p[1]})
	}
	return out
}

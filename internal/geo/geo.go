// Package geo geo-references the local track frame. Points are always stored
// as EPSG:3857 so that SQLite, which has no spatial awareness, can round-trip
// them through the WKB Scan/Value implementations of simplefeatures.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidOrigin is returned for an origin outside the Web Mercator range
var ErrInvalidOrigin = errors.New("invalid geographic origin")

// maxLatitude is the Web Mercator cut-off.
const maxLatitude = 85.05112878

// Origin maps local track metres (X east, Y north) onto EPSG:3857. The zero
// Origin leaves local coordinates untouched.
type Origin struct {
	geo   core.GeoOrigin
	x, y  float64 // origin in EPSG:3857
	scale float64 // mercator metres per local metre
}

// NewOrigin validates o and precomputes its projection. A zero o yields the
// identity origin.
func NewOrigin(o core.GeoOrigin) (Origin, error) {
	if o.IsZero() {
		return Origin{scale: 1}, nil
	}
	if math.IsNaN(o.Latitude) || math.IsNaN(o.Longitude) ||
		math.Abs(o.Latitude) > maxLatitude || math.Abs(o.Longitude) > 180 {
		return Origin{}, fmt.Errorf("%w: lat %v lon %v", ErrInvalidOrigin, o.Latitude, o.Longitude)
	}
	x, y, _ := wgs84.EPSG().Transform(4326, 3857)(o.Longitude, o.Latitude, 0)
	return Origin{
		geo:   o,
		x:     x,
		y:     y,
		scale: 1 / math.Cos(o.Latitude*math.Pi/180),
	}, nil
}

// Referenced reports whether the origin is anchored on the globe.
func (o Origin) Referenced() bool {
	return !o.geo.IsZero()
}

// Project returns the EPSG:3857 coordinates of a local position.
func (o Origin) Project(local mgl64.Vec2) geom.XY {
	if !o.Referenced() {
		return geom.XY{X: local.X(), Y: local.Y()}
	}
	return geom.XY{X: o.x + local.X()*o.scale, Y: o.y + local.Y()*o.scale}
}

// Point returns the projected position as a point.
func (o Origin) Point(local mgl64.Vec2) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: o.Project(local), Type: geom.DimXY})
}

// Local inverts Project.
func (o Origin) Local(p geom.Point) mgl64.Vec2 {
	c, ok := p.Coordinates()
	if !ok {
		return mgl64.Vec2{}
	}
	if !o.Referenced() {
		return mgl64.Vec2{c.X, c.Y}
	}
	return mgl64.Vec2{(c.X - o.x) / o.scale, (c.Y - o.y) / o.scale}
}

// LonLat returns the WGS84 longitude and latitude of a local position. An
// unreferenced origin returns the local coordinates.
func (o Origin) LonLat(local mgl64.Vec2) (lon, lat float64) {
	xy := o.Project(local)
	if !o.Referenced() {
		return xy.X, xy.Y
	}
	lon, lat, _ = wgs84.EPSG().Transform(3857, 4326)(xy.X, xy.Y, 0)
	return lon, lat
}

// Trajectory builds a line string through the projected positions.
func (o Origin) Trajectory(positions []mgl64.Vec2) (geom.LineString, error) {
	if len(positions) < 2 {
		return geom.LineString{}, fmt.Errorf("trajectory must have at least 2 points, got %d", len(positions))
	}
	flat := make([]float64, 0, len(positions)*2)
	for _, p := range positions {
		xy := o.Project(p)
		flat = append(flat, xy.X, xy.Y)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)), nil
}

// Anchor returns the origin as an EPSG:3857 point, or an empty point when
// the origin is not referenced.
func (o Origin) Anchor() geom.Point {
	if !o.Referenced() {
		return geom.NewEmptyPoint(geom.DimXY)
	}
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: o.x, Y: o.y}, Type: geom.DimXY})
}

// OriginFromAnchor inverts Anchor.
func OriginFromAnchor(p geom.Point) core.GeoOrigin {
	c, ok := p.Coordinates()
	if !ok {
		return core.GeoOrigin{}
	}
	lon, lat, _ := wgs84.EPSG().Transform(3857, 4326)(c.X, c.Y, 0)
	return core.GeoOrigin{Latitude: lat, Longitude: lon}
}

package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/satoshigo/hunt/pkg/core"
)

// GEO POINTS
// Coordinates travel through the engine as WGS84 lon/lat degrees. Anything
// persisted as geometry is projected to 3857 and stored as WKB, because SQLite
// has no spatial awareness and postgres can still index the projected column.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = fmt.Errorf("invalid coordinates provided: %w", core.ErrInvalidInput)

// earthRadius is the mean radius used for haversine distances, in meters.
const earthRadius = 6371008.8

// metersPerDegreeLat is the length of one degree of latitude, in meters.
const metersPerDegreeLat = earthRadius * math.Pi / 180

// boxMargin widens bounding boxes so great-circle edges stay inside them.
const boxMargin = 1.001

// Source yields uniform floats in [0,1). *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

// Validate checks that c is a finite lon/lat pair within WGS84 bounds.
func Validate(c core.Coordinate) error {
	if math.IsNaN(c.Lon) || math.IsNaN(c.Lat) || math.IsInf(c.Lon, 0) || math.IsInf(c.Lat, 0) {
		return ErrInvalidCoordinates
	}
	if c.Lon < -180 || c.Lon > 180 || c.Lat < -90 || c.Lat > 90 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Normalize orders two opposite corners into (south-west, north-east) so
// callers can pass the rectangle in any orientation.
func Normalize(a, b core.Coordinate) (sw, ne core.Coordinate) {
	sw = core.Coordinate{Lon: math.Min(a.Lon, b.Lon), Lat: math.Min(a.Lat, b.Lat)}
	ne = core.Coordinate{Lon: math.Max(a.Lon, b.Lon), Lat: math.Max(a.Lat, b.Lat)}
	return sw, ne
}

// Sample draws a uniformly distributed point inside the rectangle spanned by
// the two corners. A degenerate rectangle yields its single point.
func Sample(rng Source, a, b core.Coordinate) core.Coordinate {
	sw, ne := Normalize(a, b)
	return core.Coordinate{
		Lon: sw.Lon + rng.Float64()*(ne.Lon-sw.Lon),
		Lat: sw.Lat + rng.Float64()*(ne.Lat-sw.Lat),
	}
}

// Contains reports whether c lies inside the rectangle, edges included.
func Contains(a, b, c core.Coordinate) bool {
	sw, ne := Normalize(a, b)
	return c.Lon >= sw.Lon && c.Lon <= ne.Lon && c.Lat >= sw.Lat && c.Lat <= ne.Lat
}

// ParseCoordinate parses a string in the format "long,lat"
func ParseCoordinate(coords string) (core.Coordinate, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) != 2 {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	c := core.Coordinate{Lon: long, Lat: lat}
	return c, Validate(c)
}

// ToWebMercator projects a WGS84 coordinate to an EPSG:3857 point
func ToWebMercator(c core.Coordinate) geom.Point {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(c.Lon, c.Lat, 0)
	return geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
}

// FromPoint reverses ToWebMercator for a stored 3857 point.
func FromPoint(p geom.Point) core.Coordinate {
	xy, ok := p.XY()
	if !ok {
		return core.Coordinate{}
	}
	f := wgs84.EPSG().Transform(3857, 4326)
	lon, lat, _ := f(xy.X, xy.Y, 0)
	return core.Coordinate{Lon: lon, Lat: lat}
}

// DistanceMeters returns the great-circle distance between two coordinates.
func DistanceMeters(a, b core.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BoundingBox returns the degree-aligned box enclosing a circle of radius
// meters around center. It is a prefilter; callers confirm with DistanceMeters.
// Longitude is clamped rather than wrapped at the antimeridian.
func BoundingBox(center core.Coordinate, radius float64) (sw, ne core.Coordinate) {
	radius *= boxMargin
	dLat := radius / metersPerDegreeLat
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	dLon := 180.0
	if cosLat > 1e-9 {
		dLon = math.Min(180, radius/(metersPerDegreeLat*cosLat))
	}
	sw = core.Coordinate{Lon: math.Max(-180, center.Lon-dLon), Lat: math.Max(-90, center.Lat-dLat)}
	ne = core.Coordinate{Lon: math.Min(180, center.Lon+dLon), Lat: math.Min(90, center.Lat+dLat)}
	return sw, ne
}

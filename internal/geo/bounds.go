package geo

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/satoshigo/hunt/pkg/core"
)

// BoundsRing returns the closed 3857 ring outlining the rectangle spanned by
// two corners, starting at the south-west corner and winding counter-clockwise.
func BoundsRing(a, b core.Coordinate) geom.LineString {
	sw, ne := Normalize(a, b)
	corners := []core.Coordinate{
		sw,
		{Lon: ne.Lon, Lat: sw.Lat},
		ne,
		{Lon: sw.Lon, Lat: ne.Lat},
		sw,
	}

	flatCoords := make([]float64, 0, len(corners)*2)
	for _, c := range corners {
		xy, _ := ToWebMercator(c).XY()
		flatCoords = append(flatCoords, xy.X, xy.Y)
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq)
}

// ParseBounds parses a JSON pair of corners into two coordinates.
// Input format: "[[lon1,lat1],[lon2,lat2]]"
func ParseBounds(input string) (core.Coordinate, core.Coordinate, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return core.Coordinate{}, core.Coordinate{}, fmt.Errorf("failed to parse bounds JSON: %w", ErrInvalidCoordinates)
	}
	if len(coords) != 2 {
		return core.Coordinate{}, core.Coordinate{}, fmt.Errorf("bounds must have exactly 2 corners, got %d: %w", len(coords), ErrInvalidCoordinates)
	}

	var out [2]core.Coordinate
	for i, coord := range coords {
		if len(coord) != 2 {
			return core.Coordinate{}, core.Coordinate{}, fmt.Errorf("corner %d has %d values: %w", i, len(coord), ErrInvalidCoordinates)
		}
		out[i] = core.Coordinate{Lon: coord[0], Lat: coord[1]}
		if err := Validate(out[i]); err != nil {
			return core.Coordinate{}, core.Coordinate{}, fmt.Errorf("corner %d: %w", i, err)
		}
	}
	return out[0], out[1], nil
}

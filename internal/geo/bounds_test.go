package geo

import (
	"errors"
	"testing"

	"github.com/satoshigo/hunt/pkg/core"
)

func TestBoundsRing_Closed(t *testing.T) {
	ls := BoundsRing(core.Coordinate{Lon: 1, Lat: 2}, core.Coordinate{Lon: 0, Lat: 1})

	seq := ls.Coordinates()
	if seq.Length() != 5 {
		t.Fatalf("expected 5 points, got %d", seq.Length())
	}
	if seq.GetXY(0) != seq.GetXY(4) {
		t.Errorf("ring not closed")
	}
	if !ls.IsClosed() {
		t.Errorf("expected IsClosed")
	}
}

func TestParseBounds_Valid(t *testing.T) {
	a, b, err := ParseBounds("[[13.40,52.53],[13.41,52.52]]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Lon != 13.40 || a.Lat != 52.53 {
		t.Errorf("unexpected first corner: %+v", a)
	}
	if b.Lon != 13.41 || b.Lat != 52.52 {
		t.Errorf("unexpected second corner: %+v", b)
	}
}

func TestParseBounds_Invalid(t *testing.T) {
	inputs := []string{
		"not json",
		"[[1,2]]",
		"[[1,2],[3,4],[5,6]]",
		"[[1],[3,4]]",
		"[[1,2],[300,4]]",
	}
	for _, in := range inputs {
		if _, _, err := ParseBounds(in); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("%q: expected ErrInvalidCoordinates, got %v", in, err)
		}
	}
}

package geo

import (
	"math"
	"testing"

	"github.com/example/trip-progress/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineOneDegreeEquator(t *testing.T) {
	// one degree of longitude at the equator is ~111.19 km
	d := Haversine(0, 0, 0, 1)
	if math.Abs(d-111195) > 200 {
		t.Fatalf("expected ~111195m, got %f", d)
	}
}

func TestCumulativeDistance(t *testing.T) {
	pts := []models.Coord{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 0, Lng: 2}}
	d := CumulativeDistance(pts)
	if math.Abs(d-2*111195) > 400 {
		t.Fatalf("expected ~%f, got %f", 2*111195.0, d)
	}
	if CumulativeDistance(pts[:1]) != 0 {
		t.Fatal("single point should travel 0")
	}
}

func TestValidCoord(t *testing.T) {
	if !ValidCoord(19.43, -99.13) {
		t.Fatal("expected valid")
	}
	if ValidCoord(91, 0) || ValidCoord(0, -181) {
		t.Fatal("expected invalid")
	}
}

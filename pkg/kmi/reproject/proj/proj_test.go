package proj

import (
	"math"
	"testing"
)

// Spherical mercator, the definition of EPSG:3857.
func webMercator(lon, lat float64) (float64, float64) {
	const r = 6378137.0
	x := r * lon * math.Pi / 180
	y := r * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func TestTransform_WGS84ToWebMercator(t *testing.T) {
	p := New()
	defer p.Close()

	points := [][2]float64{
		{4.6824, 52.3617},
		{4.3517, 50.8503},
		{0, 0},
	}
	for _, pt := range points {
		x, y, err := p.Transform("4326", "3857", pt[0], pt[1])
		if err != nil {
			t.Fatalf("Transform(%v): %v", pt, err)
		}
		wx, wy := webMercator(pt[0], pt[1])
		if math.Abs(x-wx) > 0.01 || math.Abs(y-wy) > 0.01 {
			t.Errorf("Transform(%v) = (%f, %f), want (%f, %f)", pt, x, y, wx, wy)
		}
	}
}

func TestTransform_LambertToWebMercator(t *testing.T) {
	p := New()
	defer p.Close()

	// Belgian Lambert 72 near Brussels lands inside Belgium in web mercator.
	x, y, err := p.Transform("31370", "3857", 149000, 170000)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if x < 250000 || x > 700000 || y < 6300000 || y > 6700000 {
		t.Errorf("Transform = (%f, %f), outside Belgium", x, y)
	}
}

func TestTransform_Identity(t *testing.T) {
	p := New()
	defer p.Close()

	x, y, err := p.Transform("EPSG:3857", "3857", 519037, 6862188)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if x != 519037 || y != 6862188 {
		t.Errorf("Transform = (%f, %f)", x, y)
	}
	if len(p.pjs) != 0 {
		t.Error("identity should not create a transformation")
	}
}

func TestTransform_UnknownCRS(t *testing.T) {
	p := New()
	defer p.Close()
	if _, _, err := p.Transform("EPSG:999999", "EPSG:3857", 0, 0); err == nil {
		t.Error("expected error for unknown CRS")
	}
}

package reproject

import "testing"

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"4326":       "EPSG:4326",
		" 3857 ":     "EPSG:3857",
		"EPSG:31370": "EPSG:31370",
		"epsg:3857":  "EPSG:3857",
		"":           "",
		"CRS:84":     "CRS:84",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSame(t *testing.T) {
	if !Same("3857", WebMercator) {
		t.Error("Same(3857, EPSG:3857) = false")
	}
	if Same("4326", WebMercator) {
		t.Error("Same(4326, EPSG:3857) = true")
	}
}

func TestFunc(t *testing.T) {
	var tr Transformer = Func(func(from, to string, x, y float64) (float64, float64, error) {
		return x + 1, y + 2, nil
	})
	x, y, err := tr.Transform("EPSG:4326", WebMercator, 1, 1)
	if err != nil || x != 2 || y != 3 {
		t.Errorf("Transform = %v, %v, %v", x, y, err)
	}
}

package wms

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/lox/openkmi/internal/httputil"
	"github.com/lox/openkmi/pkg/kmi/ows"
)

const capabilitiesXML = `<?xml version="1.0" encoding="UTF-8"?>
<WMS_Capabilities version="1.3.0" xmlns="http://www.opengis.net/wms">
  <Service><Name>WMS</Name><Title>ALARO</Title></Service>
  <Capability>
    <Layer>
      <Title>alaro</Title>
      <CRS>EPSG:4326</CRS>
      <CRS>EPSG:3857</CRS>
      <EX_GeographicBoundingBox>
        <westBoundLongitude>-2.5</westBoundLongitude>
        <eastBoundLongitude>10.5</eastBoundLongitude>
        <southBoundLatitude>46.0</southBoundLatitude>
        <northBoundLatitude>56.0</northBoundLatitude>
      </EX_GeographicBoundingBox>
      <Layer queryable="1">
        <Name>2t</Name>
        <Title>2m temperature</Title>
        <Abstract>Air temperature at 2m</Abstract>
        <CRS>EPSG:31370</CRS>
        <BoundingBox CRS="EPSG:3857" minx="-278298" miny="5780349" maxx="1168854" maxy="7558415"/>
        <Dimension name="time" units="ISO8601">2024-03-01T00:00:00.000Z/2024-03-03T12:00:00.000Z/PT1H</Dimension>
      </Layer>
      <Layer queryable="1">
        <Name>10u</Name>
        <Title>10m wind u</Title>
        <CRS>EPSG:3857</CRS>
      </Layer>
    </Layer>
  </Capability>
</WMS_Capabilities>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	req := httputil.New(httputil.Config{Service: "test-wms", Logger: log.New(io.Discard, "", 0)})
	return New(srv.URL+"/service/alaro/ows", "", req)
}

func TestParseCapabilities(t *testing.T) {
	caps, err := ParseCapabilities([]byte(capabilitiesXML))
	if err != nil {
		t.Fatalf("ParseCapabilities: %v", err)
	}
	if caps.Version != "1.3.0" || caps.Title != "ALARO" {
		t.Errorf("caps = %+v", caps)
	}

	names := caps.Names()
	if len(names) != 2 || names[0] != "2t" || names[1] != "10u" {
		t.Fatalf("names = %v", names)
	}

	l, ok := caps.Layer("2t")
	if !ok {
		t.Fatal("layer 2t missing")
	}
	if !l.Queryable || l.Abstract != "Air temperature at 2m" {
		t.Errorf("layer = %+v", l)
	}
	wantCRS := []string{"EPSG:4326", "EPSG:3857", "EPSG:31370"}
	if len(l.CRS) != len(wantCRS) {
		t.Fatalf("CRS = %v, want %v", l.CRS, wantCRS)
	}
	for i := range wantCRS {
		if l.CRS[i] != wantCRS[i] {
			t.Errorf("CRS[%d] = %q, want %q", i, l.CRS[i], wantCRS[i])
		}
	}
	if l.BBox == nil || l.BBox.CRS != "EPSG:3857" || l.BBox.MinX != -278298 || l.BBox.MaxY != 7558415 {
		t.Errorf("BBox = %+v", l.BBox)
	}
	if l.TimeExtent != "2024-03-01T00:00:00.000Z/2024-03-03T12:00:00.000Z/PT1H" {
		t.Errorf("TimeExtent = %q", l.TimeExtent)
	}
}

func TestParseCapabilities_InheritsParentBBox(t *testing.T) {
	caps, err := ParseCapabilities([]byte(capabilitiesXML))
	if err != nil {
		t.Fatalf("ParseCapabilities: %v", err)
	}
	l, _ := caps.Layer("10u")
	if l.BBox == nil || l.BBox.CRS != "CRS:84" || l.BBox.MinX != -2.5 || l.BBox.MaxY != 56 {
		t.Errorf("BBox = %+v", l.BBox)
	}
	// EPSG:3857 is declared twice along the chain but listed once.
	if len(l.CRS) != 2 {
		t.Errorf("CRS = %v", l.CRS)
	}
	if _, ok := caps.Layer("alaro"); ok {
		t.Error("unnamed root layer should not be listed")
	}
}

func TestGetFeatureInfo_Params(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	})

	_, err := c.GetFeatureInfo(context.Background(), FeatureInfoQuery{
		Layers: []string{"2t"},
		BBox:   BBox{MinX: 517037, MinY: 6860188, MaxX: 521037, MaxY: 6864188, CRS: "EPSG:3857"},
		Width:  4000,
		Height: 4000,
		Time:   "2024-03-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("GetFeatureInfo: %v", err)
	}

	checks := map[string]string{
		"SERVICE":       "WMS",
		"VERSION":       "1.3.0",
		"REQUEST":       "GetFeatureInfo",
		"LAYERS":        "2t",
		"QUERY_LAYERS":  "2t",
		"CRS":           "EPSG:3857",
		"BBOX":          "517037,6860188,521037,6864188",
		"WIDTH":         "4000",
		"HEIGHT":        "4000",
		"I":             "0",
		"J":             "0",
		"INFO_FORMAT":   "application/json",
		"TIME":          "2024-03-01T00:00:00Z",
		"FEATURE_COUNT": "1",
	}
	for k, want := range checks {
		if got.Get(k) != want {
			t.Errorf("%s = %q, want %q", k, got.Get(k), want)
		}
	}
}

func TestGetFeatureInfo_LegacyVersionUsesSRS(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "1.1.1", httputil.New(httputil.Config{Logger: log.New(io.Discard, "", 0)}))
	_, err := c.GetFeatureInfo(context.Background(), FeatureInfoQuery{
		Layers: []string{"2t"},
		BBox:   BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, CRS: "EPSG:3857"},
		Width:  10,
		Height: 10,
		I:      3,
		J:      4,
	})
	if err != nil {
		t.Fatalf("GetFeatureInfo: %v", err)
	}
	if got.Get("SRS") != "EPSG:3857" || got.Get("X") != "3" || got.Get("Y") != "4" {
		t.Errorf("query = %v", got)
	}
	if _, ok := got["CRS"]; ok {
		t.Error("CRS should not be sent for 1.1.1")
	}
}

func TestGetFeatureInfo_Validation(t *testing.T) {
	c := New("http://127.0.0.1:0", "", httputil.New(httputil.Config{Logger: log.New(io.Discard, "", 0)}))
	tests := []struct {
		name string
		q    FeatureInfoQuery
	}{
		{name: "no layers", q: FeatureInfoQuery{Width: 1, Height: 1}},
		{name: "zero size", q: FeatureInfoQuery{Layers: []string{"2t"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.GetFeatureInfo(context.Background(), tt.q); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGetFeatureInfo_ServiceException(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<ServiceExceptionReport version="1.3.0"><ServiceException code="LayerNotDefined">nope</ServiceException></ServiceExceptionReport>`))
	})
	_, err := c.GetFeatureInfo(context.Background(), FeatureInfoQuery{
		Layers: []string{"nope"},
		BBox:   BBox{CRS: "EPSG:3857"},
		Width:  1,
		Height: 1,
	})
	var exc *ows.ExceptionError
	if !errors.As(err, &exc) || exc.Code != "LayerNotDefined" {
		t.Fatalf("err = %v", err)
	}
}

package ows

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lox/openkmi/internal/httputil"
)

const wfsException = `<?xml version="1.0" encoding="UTF-8"?>
<ows:ExceptionReport xmlns:ows="http://www.opengis.net/ows" version="1.0.0">
  <ows:Exception exceptionCode="InvalidParameterValue" locator="typeName">
    <ows:ExceptionText>Feature type synop:nope unknown</ows:ExceptionText>
  </ows:Exception>
</ows:ExceptionReport>`

const wmsException = `<?xml version="1.0" encoding="UTF-8"?>
<ServiceExceptionReport version="1.3.0" xmlns="http://www.opengis.net/ogc">
  <ServiceException code="LayerNotDefined" locator="layers">
    Could not find layer nope
  </ServiceException>
</ServiceExceptionReport>`

func TestCheckException(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
		wantText string
		wantNil  bool
	}{
		{name: "wfs report", body: wfsException, wantCode: "InvalidParameterValue", wantText: "Feature type synop:nope unknown"},
		{name: "wms report", body: wmsException, wantCode: "LayerNotDefined", wantText: "Could not find layer nope"},
		{name: "csv body", body: "FID,code\nsynop_station.6438,6438\n", wantNil: true},
		{name: "json body", body: `{"features":[]}`, wantNil: true},
		{name: "capabilities", body: `<WFS_Capabilities/>`, wantNil: true},
		{name: "empty", body: "", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckException([]byte(tt.body))
			if tt.wantNil {
				if err != nil {
					t.Fatalf("CheckException = %v, want nil", err)
				}
				return
			}
			var exc *ExceptionError
			if !errors.As(err, &exc) {
				t.Fatalf("err = %v, want *ExceptionError", err)
			}
			if exc.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", exc.Code, tt.wantCode)
			}
			if exc.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", exc.Text, tt.wantText)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	wrapped := fmt.Errorf("get feature: %w", &httputil.StatusError{StatusCode: 400, Body: wfsException})
	var exc *ExceptionError
	if !errors.As(Translate(wrapped), &exc) {
		t.Fatalf("Translate did not produce an ExceptionError")
	}
	if exc.StatusCode != 400 || exc.Locator != "typeName" {
		t.Errorf("exc = %+v", exc)
	}

	plain := &httputil.StatusError{StatusCode: 502, Body: "bad gateway"}
	if got := Translate(plain); got != error(plain) {
		t.Errorf("Translate(plain) = %v, want unchanged", got)
	}

	other := errors.New("dial tcp: refused")
	if got := Translate(other); got != other {
		t.Errorf("Translate(other) = %v, want unchanged", got)
	}
}

func TestExceptionError_Error(t *testing.T) {
	err := &ExceptionError{Code: "InvalidParameterValue", Locator: "typeName", Text: "bad"}
	want := "OWS exception [InvalidParameterValue] (typeName): bad"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

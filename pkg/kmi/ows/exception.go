// Package ows recognises OGC service exception reports, which WFS and WMS
// servers may return with any HTTP status in place of the requested body.
package ows

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/lox/openkmi/internal/httputil"
)

// ExceptionError is a service exception reported by the remote server.
type ExceptionError struct {
	StatusCode int
	Code       string
	Locator    string
	Text       string
}

func (e *ExceptionError) Error() string {
	msg := "OWS exception"
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Locator != "" {
		msg += " (" + e.Locator + ")"
	}
	if e.Text != "" {
		msg += ": " + e.Text
	}
	return msg
}

// OWS 1.0 report used by WFS 1.1.0
type exceptionReport struct {
	Exceptions []struct {
		Code    string   `xml:"exceptionCode,attr"`
		Locator string   `xml:"locator,attr"`
		Text    []string `xml:"ExceptionText"`
	} `xml:"Exception"`
}

// WMS 1.3.0 report
type serviceExceptionReport struct {
	Exceptions []struct {
		Code    string `xml:"code,attr"`
		Locator string `xml:"locator,attr"`
		Text    string `xml:",chardata"`
	} `xml:"ServiceException"`
}

// CheckException returns an *ExceptionError if body is an exception report.
func CheckException(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' || !bytes.Contains(trimmed, []byte("ExceptionReport")) {
		return nil
	}

	root, err := rootName(trimmed)
	if err != nil {
		return nil
	}

	switch root {
	case "ExceptionReport":
		var report exceptionReport
		if err := xml.Unmarshal(trimmed, &report); err != nil {
			return &ExceptionError{Text: fmt.Sprintf("unparseable exception report: %v", err)}
		}
		if len(report.Exceptions) == 0 {
			return &ExceptionError{Text: "empty exception report"}
		}
		exc := report.Exceptions[0]
		return &ExceptionError{
			Code:    exc.Code,
			Locator: exc.Locator,
			Text:    strings.Join(trimAll(exc.Text), " | "),
		}
	case "ServiceExceptionReport":
		var report serviceExceptionReport
		if err := xml.Unmarshal(trimmed, &report); err != nil {
			return &ExceptionError{Text: fmt.Sprintf("unparseable exception report: %v", err)}
		}
		if len(report.Exceptions) == 0 {
			return &ExceptionError{Text: "empty exception report"}
		}
		exc := report.Exceptions[0]
		return &ExceptionError{
			Code:    exc.Code,
			Locator: exc.Locator,
			Text:    strings.TrimSpace(exc.Text),
		}
	}
	return nil
}

// Translate turns a transport error whose body is an exception report into
// an *ExceptionError carrying the status code. Other errors pass through.
func Translate(err error) error {
	var statusErr *httputil.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	var exc *ExceptionError
	if errors.As(CheckException([]byte(statusErr.Body)), &exc) {
		exc.StatusCode = statusErr.StatusCode
		return exc
	}
	return err
}

func rootName(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

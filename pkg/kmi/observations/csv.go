package observations

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// records is a decoded CSV response: a header and the rows beneath it.
type records struct {
	header []string
	rows   [][]string
}

func (r records) index(name string) int {
	for i, h := range r.header {
		if h == name {
			return i
		}
	}
	return -1
}

func readCSV(body []byte) (records, error) {
	cr := csv.NewReader(bytes.NewReader(body))
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return records{}, nil
	}
	if err != nil {
		return records{}, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records{}, fmt.Errorf("read csv row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	return records{header: header, rows: rows}, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTime parses the timestamp forms the services emit. Values without a
// zone are UTC.
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// canonicalCode renders numeric codes as integers, so "6438.0" and "6438"
// name the same station.
func canonicalCode(raw string) string {
	raw = strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return raw
}

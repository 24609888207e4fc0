package forecast

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxTimes bounds how many instants one extent may expand to.
const maxTimes = 100000

// ExpandTimes expands a WMS time dimension into instants. The extent is a
// comma separated list whose elements are single instants or
// start/end/period intervals with inclusive bounds.
func ExpandTimes(extent string) ([]time.Time, error) {
	extent = strings.TrimSpace(extent)
	if extent == "" {
		return nil, fmt.Errorf("empty time extent")
	}

	var out []time.Time
	for _, part := range strings.Split(extent, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, "/")
		switch len(fields) {
		case 1:
			t, err := parseInstant(fields[0])
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		case 3:
			times, err := expandInterval(fields[0], fields[1], fields[2])
			if err != nil {
				return nil, err
			}
			out = append(out, times...)
		default:
			return nil, fmt.Errorf("time extent element %q: want instant or start/end/period", part)
		}
		if len(out) > maxTimes {
			return nil, fmt.Errorf("time extent expands to more than %d instants", maxTimes)
		}
	}
	return out, nil
}

func expandInterval(rawStart, rawEnd, rawPeriod string) ([]time.Time, error) {
	start, err := parseInstant(rawStart)
	if err != nil {
		return nil, err
	}
	end, err := parseInstant(rawEnd)
	if err != nil {
		return nil, err
	}
	period, err := parsePeriod(rawPeriod)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("time interval %s/%s ends before it starts", rawStart, rawEnd)
	}

	var out []time.Time
	for t := start; !t.After(end); t = period.add(t) {
		out = append(out, t)
		if len(out) > maxTimes {
			return nil, fmt.Errorf("time extent expands to more than %d instants", maxTimes)
		}
	}
	return out, nil
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}

// period is an ISO 8601 duration. Calendar parts are kept separate from
// the clock part so P1M steps by month, not by 30 days.
type period struct {
	years, months, days int
	clock               time.Duration
}

func (p period) add(t time.Time) time.Time {
	return t.AddDate(p.years, p.months, p.days).Add(p.clock)
}

func (p period) isZero() bool {
	return p.years == 0 && p.months == 0 && p.days == 0 && p.clock == 0
}

// parsePeriod reads PnYnMnWnDTnHnMnS. Only the seconds field may carry a
// fraction.
func parsePeriod(raw string) (period, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return period{}, fmt.Errorf("invalid period %q", raw)
	}
	s = s[1:]

	var p period
	inTime := false
	for len(s) > 0 {
		if s[0] == 'T' {
			if inTime {
				return period{}, fmt.Errorf("invalid period %q", raw)
			}
			inTime = true
			s = s[1:]
			continue
		}
		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			i++
		}
		if i == 0 || i == len(s) {
			return period{}, fmt.Errorf("invalid period %q", raw)
		}
		num, unit := s[:i], s[i]
		s = s[i+1:]

		if unit == 'S' && inTime {
			f, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return period{}, fmt.Errorf("invalid period %q: %w", raw, err)
			}
			p.clock += time.Duration(f * float64(time.Second))
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return period{}, fmt.Errorf("invalid period %q: %w", raw, err)
		}
		switch {
		case !inTime && unit == 'Y':
			p.years += n
		case !inTime && unit == 'M':
			p.months += n
		case !inTime && unit == 'W':
			p.days += 7 * n
		case !inTime && unit == 'D':
			p.days += n
		case inTime && unit == 'H':
			p.clock += time.Duration(n) * time.Hour
		case inTime && unit == 'M':
			p.clock += time.Duration(n) * time.Minute
		default:
			return period{}, fmt.Errorf("invalid period %q: unexpected %q", raw, unit)
		}
	}
	if p.isZero() || p.clock < 0 {
		return period{}, fmt.Errorf("period %q does not advance time", raw)
	}
	return p, nil
}

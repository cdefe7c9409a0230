// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is a seven-field cron pattern: second, minute, hour,
// day-of-month, month, day-of-week, year. The first six fields parse
// through the cron library's seconds-enabled parser; the year field is
// matched on top, since the library has no notion of one.
type Schedule struct {
	inner cron.Schedule
	years map[int]bool
}

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// yearHorizon bounds the search for a matching year so a pattern whose
// years are all in the past cannot spin forever.
const yearHorizon = 200

// ParseSchedule parses a seven-field cron pattern. A six-field pattern
// is accepted with the year defaulting to every year.
func ParseSchedule(spec string) (*Schedule, error) {
	fields := strings.Fields(spec)
	yearField := "*"
	switch len(fields) {
	case 7:
		yearField = fields[6]
		fields = fields[:6]
	case 6:
	default:
		return nil, fmt.Errorf("cron %q: expected 6 or 7 fields, got %d", spec, len(fields))
	}
	inner, err := cronParser.Parse(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("cron %q: %w", spec, err)
	}
	years, err := parseYears(yearField)
	if err != nil {
		return nil, fmt.Errorf("cron %q: %w", spec, err)
	}
	return &Schedule{inner: inner, years: years}, nil
}

// parseYears reads a comma list of years, ranges, and stepped ranges.
// "*" means every year and comes back nil.
func parseYears(field string) (map[int]bool, error) {
	if field == "*" {
		return nil, nil
	}
	years := map[int]bool{}
	for _, part := range strings.Split(field, ",") {
		step := 1
		if i := strings.Index(part, "/"); i >= 0 {
			s, err := strconv.Atoi(part[i+1:])
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("bad year step %q", part)
			}
			step = s
			part = part[:i]
		}
		lo, hi := 0, 0
		if i := strings.Index(part, "-"); i >= 0 {
			a, err1 := strconv.Atoi(part[:i])
			b, err2 := strconv.Atoi(part[i+1:])
			if err1 != nil || err2 != nil || b < a {
				return nil, fmt.Errorf("bad year range %q", part)
			}
			lo, hi = a, b
		} else {
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("bad year %q", part)
			}
			lo, hi = v, v
		}
		for y := lo; y <= hi; y += step {
			years[y] = true
		}
	}
	return years, nil
}

// Next returns the first activation strictly after t, or false when the
// pattern never fires again within the horizon.
func (s *Schedule) Next(t time.Time) (time.Time, bool) {
	limit := t.Year() + yearHorizon
	for {
		n := s.inner.Next(t)
		if n.IsZero() || n.Year() > limit {
			return time.Time{}, false
		}
		if s.years == nil || s.years[n.Year()] {
			return n, true
		}
		// skip ahead to the start of the following year
		t = time.Date(n.Year()+1, time.January, 1, 0, 0, 0, 0, n.Location()).Add(-time.Second)
	}
}

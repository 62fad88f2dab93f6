// Package analytics computes the dashboard views over tower readings: filter
// options, headline KPIs, per-operator trends, anomaly and geo scatter points
// and tower rankings.
package analytics

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

// ErrInvalidBound is returned by ParseBound for unparseable dates.
var ErrInvalidBound = errors.New("invalid date bound")

// Filter selects readings by operator, network type and time range. Empty
// lists match everything and zero times leave that side open. Both time
// bounds are inclusive.
type Filter struct {
	Operators    []string
	NetworkTypes []string
	Start        time.Time
	End          time.Time
}

// Match reports whether r passes the filter.
func (f Filter) Match(r *domain.TowerReading) bool {
	if len(f.Operators) > 0 && !slices.Contains(f.Operators, r.Operator) {
		return false
	}
	if len(f.NetworkTypes) > 0 && !slices.Contains(f.NetworkTypes, r.NetworkType) {
		return false
	}
	if !f.Start.IsZero() && r.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && r.Timestamp.After(f.End) {
		return false
	}
	return true
}

// Apply returns the readings that pass the filter, in input order.
func (f Filter) Apply(readings []domain.TowerReading) []domain.TowerReading {
	out := make([]domain.TowerReading, 0, len(readings))
	for i := range readings {
		if f.Match(&readings[i]) {
			out = append(out, readings[i])
		}
	}
	return out
}

// ParseBound reads a date ("2006-01-02") or RFC 3339 timestamp. A date-only
// end bound is extended to the last nanosecond of that day so the whole day
// is included. Empty input yields the zero time.
func ParseBound(s string, end bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBound, s)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// FilterOptions lists the values available to a Filter for a dataset.
type FilterOptions struct {
	Operators    []string  `json:"operators"`
	NetworkTypes []string  `json:"network_types"`
	MinTime      time.Time `json:"min_time"`
	MaxTime      time.Time `json:"max_time"`
}

// Options returns the distinct operators and network types in first-seen
// order and the covered time span.
func Options(readings []domain.TowerReading) FilterOptions {
	opts := FilterOptions{Operators: []string{}, NetworkTypes: []string{}}
	for i := range readings {
		r := &readings[i]
		if r.Operator != "" && !slices.Contains(opts.Operators, r.Operator) {
			opts.Operators = append(opts.Operators, r.Operator)
		}
		if r.NetworkType != "" && !slices.Contains(opts.NetworkTypes, r.NetworkType) {
			opts.NetworkTypes = append(opts.NetworkTypes, r.NetworkType)
		}
		if opts.MinTime.IsZero() || r.Timestamp.Before(opts.MinTime) {
			opts.MinTime = r.Timestamp
		}
		if r.Timestamp.After(opts.MaxTime) {
			opts.MaxTime = r.Timestamp
		}
	}
	return opts
}

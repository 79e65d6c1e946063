// Package periods decomposes a period selector into the ordered period labels
// a search job works through, one task per label.
package periods

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSelector reports a selector that cannot be planned.
var ErrInvalidSelector = errors.New("invalid period selector")

// DefaultLabel is the single period of an unbounded search.
const DefaultLabel = "Default"

// DefaultMaxSpan bounds the number of years a selector may cover.
const DefaultMaxSpan = 200

// Mode selects how a search is bounded in time.
type Mode string

// Supported selector modes.
const (
	ModeYearRange Mode = "year_range"
	ModeDecade    Mode = "decade"
	ModeAllTime   Mode = "all_time"
)

// Granularity controls how a year range is split into tasks.
type Granularity string

// Supported granularities.
const (
	GranularityYear   Granularity = "year"
	GranularityDecade Granularity = "decade"
)

// Selector describes the time bounds of a search request.
type Selector struct {
	Mode        Mode        `json:"mode" yaml:"mode"`
	StartYear   int         `json:"startYear,omitempty" yaml:"startYear,omitempty"`
	EndYear     int         `json:"endYear,omitempty" yaml:"endYear,omitempty"`
	Decade      string      `json:"decade,omitempty" yaml:"decade,omitempty"`
	Granularity Granularity `json:"granularity,omitempty" yaml:"granularity,omitempty"`
}

// Planner turns selectors into period labels.
type Planner struct {
	maxSpan int
}

// NewPlanner returns a Planner that rejects selectors spanning more than
// maxSpan years. A non-positive maxSpan uses DefaultMaxSpan.
func NewPlanner(maxSpan int) *Planner {
	if maxSpan <= 0 {
		maxSpan = DefaultMaxSpan
	}
	return &Planner{maxSpan: maxSpan}
}

// Plan returns the ordered period labels for sel.
func (p *Planner) Plan(sel Selector) ([]string, error) {
	switch sel.Mode {
	case ModeAllTime, "":
		return []string{DefaultLabel}, nil
	case ModeYearRange:
		if err := p.checkRange(sel.StartYear, sel.EndYear); err != nil {
			return nil, err
		}
		switch sel.Granularity {
		case GranularityYear, "":
			return years(sel.StartYear, sel.EndYear), nil
		case GranularityDecade:
			return decades(sel.StartYear, sel.EndYear), nil
		default:
			return nil, fmt.Errorf("%w: unknown granularity %q", ErrInvalidSelector, sel.Granularity)
		}
	case ModeDecade:
		start, end, err := ParseDecade(sel.Decade)
		if err != nil {
			return nil, err
		}
		if sel.Granularity == GranularityDecade {
			return []string{sel.Decade}, nil
		}
		return years(start, end), nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidSelector, sel.Mode)
	}
}

func (p *Planner) checkRange(start, end int) error {
	if start <= 0 || end <= 0 {
		return fmt.Errorf("%w: start and end years are required", ErrInvalidSelector)
	}
	if end < start {
		return fmt.Errorf("%w: end year %d is before start year %d", ErrInvalidSelector, end, start)
	}
	if span := end - start + 1; span > p.maxSpan {
		return fmt.Errorf("%w: %d years exceeds the maximum of %d", ErrInvalidSelector, span, p.maxSpan)
	}
	return nil
}

// ParseDecade parses a "1900-1909" label into its first and last year.
func ParseDecade(label string) (int, int, error) {
	first, last, ok := strings.Cut(strings.TrimSpace(label), "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: decade %q is not of the form 1900-1909", ErrInvalidSelector, label)
	}
	start, err := strconv.Atoi(first)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: decade %q: %v", ErrInvalidSelector, label, err)
	}
	end, err := strconv.Atoi(last)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: decade %q: %v", ErrInvalidSelector, label, err)
	}
	if start%10 != 0 || end != start+9 {
		return 0, 0, fmt.Errorf("%w: decade %q must start on a multiple of ten and span ten years", ErrInvalidSelector, label)
	}
	return start, end, nil
}

func years(start, end int) []string {
	out := make([]string, 0, end-start+1)
	for y := start; y <= end; y++ {
		out = append(out, strconv.Itoa(y))
	}
	return out
}

// decades buckets [start,end] by calendar decade, clipping the first and
// last bucket to the range.
func decades(start, end int) []string {
	var out []string
	for lo := start; lo <= end; {
		hi := min(lo-lo%10+9, end)
		if lo == hi {
			out = append(out, strconv.Itoa(lo))
		} else {
			out = append(out, fmt.Sprintf("%d-%d", lo, hi))
		}
		lo = hi + 1
	}
	return out
}

package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/gosuda/coachlink/internal/domain"
)

// Aggregation levels the agent may request.
const (
	AggregationDay   = "day"
	AggregationWeek  = "week"
	AggregationMonth = "month"
)

const sampleTypeSleep = "sleepAnalysis"

// endOfPeriodSlack makes inclusive period ends land on the last millisecond.
const endOfPeriodSlack = time.Millisecond

//nolint:gochecknoglobals // compiled once
var (
	agoPattern    = regexp.MustCompile(`^(\d+)\s+(day|week|month|year)s?\s+ago$`)
	beforePattern = regexp.MustCompile(`^(\d+)\s+(day|week|month|year)s?\s+before\s+(.+)$`)

	// Dates without a zone are read in the caller's location.
	localLayouts = []string{
		time.DateOnly,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		time.DateTime,
		"2006-01-02 15:04",
	}

	// Natural-language fallback for weekdays, month names and the like.
	dateParser = newDateParser()
)

// HealthArgs are the arguments of a query_health_data call.
type HealthArgs struct {
	SampleType       string `json:"sample_type"`
	ReferenceDate    string `json:"reference_date"`
	AggregationLevel string `json:"aggregation_level"`
	ShowUser         bool   `json:"show_user"`
}

// Window is a resolved query range.
type Window struct {
	Start    time.Time
	End      time.Time
	Interval string
}

// ResolveWindow turns the agent's loose date arguments into a concrete range.
// Unparseable dates fall back to now..now bucketed by day.
func ResolveWindow(args HealthArgs, now time.Time) Window {
	ref, err := parseReferenceDate(args.ReferenceDate, now)
	if err != nil {
		return Window{Start: now, End: now, Interval: domain.IntervalDay}
	}
	if ref.After(now) {
		ref = now
	}

	switch args.AggregationLevel {
	case AggregationDay:
		interval := domain.IntervalHour
		if args.SampleType == sampleTypeSleep {
			interval = domain.IntervalDay
		}
		start := startOfDay(ref)
		return Window{Start: start, End: start.AddDate(0, 0, 1).Add(-endOfPeriodSlack), Interval: interval}

	case AggregationWeek:
		start := startOfDay(ref).AddDate(0, 0, -int(ref.Weekday()))
		return Window{Start: start, End: start.AddDate(0, 0, 7).Add(-endOfPeriodSlack), Interval: domain.IntervalDay}

	default:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-endOfPeriodSlack), Interval: domain.IntervalDay}
	}
}

func parseReferenceDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(now.Location()), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	phrase := strings.ToLower(s)
	switch phrase {
	case "today", "now", "this week", "this month":
		return now, nil
	case "yesterday":
		return now.AddDate(0, 0, -1), nil
	case "last week":
		return now.AddDate(0, 0, -7), nil
	case "last month":
		return now.AddDate(0, -1, 0), nil
	}

	if m := agoPattern.FindStringSubmatch(phrase); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return shiftBack(now, n, m[2]), nil
		}
	}
	if m := beforePattern.FindStringSubmatch(phrase); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			anchor, err := parseReferenceDate(m[3], now)
			if err == nil {
				return shiftBack(anchor, n, m[2]), nil
			}
		}
	}

	r, err := dateParser.Parse(s, now)
	if err == nil && r != nil {
		return r.Time.In(now.Location()), nil
	}

	return time.Time{}, fmt.Errorf("%w: reference_date %q", ErrInvalidArguments, s)
}

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

func shiftBack(t time.Time, n int, unit string) time.Time {
	switch unit {
	case "week":
		return t.AddDate(0, 0, -7*n)
	case "month":
		return t.AddDate(0, -n, 0)
	case "year":
		return t.AddDate(-n, 0, 0)
	default:
		return t.AddDate(0, 0, -n)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

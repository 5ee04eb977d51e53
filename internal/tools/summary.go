package tools

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosuda/coachlink/internal/domain"
)

const noDataText = "No data available for the specified period."

var sampleDescriptions = map[string]string{ //nolint:gochecknoglobals // immutable lookup table
	"activeEnergyBurned":       "Estimate of energy burned over and above resting energy, including exercise and everyday activity.",
	"appleExerciseTime":        "Minutes of movement at or above the intensity of a brisk walk.",
	"appleStandTime":           "Minutes in each hour spent standing and moving.",
	"basalEnergyBurned":        "Estimate of the energy the body uses each day while minimally active.",
	"distanceWalkingRunning":   "Estimated distance walked or run, derived from steps and stride length.",
	"flightsClimbed":           "Flights of stairs climbed; one flight is roughly 3 meters of elevation gain.",
	"heartRate":                "Heart beats per minute across periods of rest and exertion.",
	"heartRateVariabilitySdnn": "Standard deviation of beat-to-beat intervals (HRV).",
	"restingHeartRate":         "Average beats per minute while inactive or relaxed for several minutes.",
	"sleepAnalysis":            "Time spent in bed and asleep as recorded by sleep trackers.",
	"stepCount":                "Number of steps taken throughout the day.",
	"walkingHeartRateAverage":  "Average beats per minute during steady-paced walks.",
	"workout":                  "Logged workouts with start and end time, type and duration.",
}

// FormatSummary renders queried samples as the text the agent reads back.
func FormatSummary(args HealthArgs, w Window, samples []domain.HealthSample) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Results for sample_type=%s\n", args.SampleType)
	fmt.Fprintf(&b, "* start_date=%s\n", w.Start.Format(time.RFC3339))
	fmt.Fprintf(&b, "* end_date=%s\n", w.End.Format(time.RFC3339))
	fmt.Fprintf(&b, "* interval=%s\n", w.Interval)

	b.WriteString("\n# Data Source Description\n")
	b.WriteString(describeSample(args.SampleType))
	b.WriteString("\n\n# Summary Statistics\n")
	b.WriteString(summaryStats(samples))

	if len(samples) > 0 {
		b.WriteString("\n\n# Samples\n")
		for i, s := range samples {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "Date: %s - %s, Value: %s %s",
				s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339), formatValue(s.Value), s.Unit)
			if len(s.Sources) > 0 {
				fmt.Fprintf(&b, ", Sources: %s", strings.Join(s.Sources, ", "))
			}
		}
	}

	return b.String()
}

func describeSample(sampleType string) string {
	if d, ok := sampleDescriptions[sampleType]; ok {
		return d
	}
	return "Description not available."
}

func summaryStats(samples []domain.HealthSample) string {
	if len(samples) == 0 {
		return noDataText
	}

	total := 0.0
	lo, hi := samples[0].Value, samples[0].Value
	for _, s := range samples {
		total += s.Value
		lo = min(lo, s.Value)
		hi = max(hi, s.Value)
	}
	avg := total / float64(len(samples))

	return fmt.Sprintf("Total Sum: %s, Average: %.2f, Min: %s, Max: %s",
		formatValue(total), avg, formatValue(lo), formatValue(hi))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Title           = "VIDEO ANALYSIS REPORT"
	TimestampLayout = "2006-01-02 15:04:05"

	headingRule = "=================================================="
	sectionRule = "========================================"
)

var ErrNoSummaries = errors.New("no segment summaries to aggregate")

// AggregationError is returned when the report text cannot be produced.
type AggregationError struct {
	Err error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregating report: %v", e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

// Aggregator joins per segment summaries into the job report.
type Aggregator struct {
	segmentDuration time.Duration
	now             func() time.Time
}

type Option func(*Aggregator)

// WithClock replaces the clock used for the generation timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func NewAggregator(segmentDuration time.Duration, opts ...Option) *Aggregator {
	a := &Aggregator{
		segmentDuration: segmentDuration,
		now:             time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Aggregate renders summaries, given in segment order, as one text report. Apart from the
// generation timestamp the output depends only on its input.
func (a *Aggregator) Aggregate(summaries []string) (string, error) {
	if len(summaries) == 0 {
		return "", &AggregationError{Err: ErrNoSummaries}
	}
	if a.segmentDuration <= 0 {
		return "", &AggregationError{Err: fmt.Errorf("invalid segment duration %s", a.segmentDuration)}
	}

	minutes := formatMinutes(a.segmentDuration)
	total := len(summaries)

	var b strings.Builder
	b.WriteString(Title + "\n")
	b.WriteString(headingRule + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", a.now().Format(TimestampLayout))
	fmt.Fprintf(&b, "Total Segments Analyzed: %d\n\n", total)

	b.WriteString("EXECUTIVE SUMMARY\n")
	b.WriteString(headingRule + "\n")
	fmt.Fprintf(&b, "This report consolidates the analysis of %d consecutive video segments of up to %s minutes each.\n", total, minutes)
	b.WriteString("Segments are listed in playback order; time ranges are approximate.\n\n")

	b.WriteString("DETAILED ANALYSIS\n")
	b.WriteString(headingRule + "\n\n")
	for i, summary := range summaries {
		b.WriteString(SectionLabel(i+1, a.segmentDuration) + "\n")
		b.WriteString(sectionRule + "\n")
		b.WriteString(strings.TrimSpace(summary) + "\n\n")
	}

	b.WriteString("CONCLUSION\n")
	b.WriteString(headingRule + "\n")
	fmt.Fprintf(&b, "Analysis complete. %d video segments have been processed and summarized above.\n", total)
	fmt.Fprintf(&b, "Each segment represents approximately %s minutes of video content.\n", minutes)

	return b.String(), nil
}

// SectionLabel names the section of the position-th segment (1 based). The range is derived
// from the position and the configured duration, not from the real segment boundaries.
func SectionLabel(position int, segmentDuration time.Duration) string {
	start := time.Duration(position-1) * segmentDuration
	end := time.Duration(position) * segmentDuration
	return fmt.Sprintf("SEGMENT %d (Minutes %s-%s)", position, formatMinutes(start), formatMinutes(end))
}

func formatMinutes(d time.Duration) string {
	return strconv.FormatFloat(d.Minutes(), 'f', -1, 64)
}

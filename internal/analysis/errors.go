package analysis

import "fmt"

// SegmentAnalysisError is the recoverable failure of a single segment.
type SegmentAnalysisError struct {
	Index int
	Err   error
}

func (e *SegmentAnalysisError) Error() string {
	return fmt.Sprintf("analysis of segment %d failed: %v", e.Index+1, e.Err)
}

func (e *SegmentAnalysisError) Unwrap() error {
	return e.Err
}

// Placeholder is the summary recorded in place of a failed segment.
func (e *SegmentAnalysisError) Placeholder() string {
	return fmt.Sprintf("Analysis unavailable for segment %d: %v", e.Index+1, e.Err)
}

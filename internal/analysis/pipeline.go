package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/kubev2v/media-analyzer/internal/segment"
	"github.com/kubev2v/media-analyzer/pkg/metrics"
	"go.uber.org/zap"
)

const DefaultSegmentTimeout = 5 * time.Minute

// Outcome is what a single segment contributed to the report. A failed segment still
// has an Outcome: its Summary is the placeholder and Err records why.
type Outcome struct {
	Index   int
	Summary string
	Err     *SegmentAnalysisError
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Result holds one Outcome per segment, in segment order.
type Result struct {
	Outcomes []Outcome
}

func (r Result) Summaries() []string {
	summaries := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		summaries = append(summaries, o.Summary)
	}
	return summaries
}

func (r Result) FailedCount() int {
	count := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			count++
		}
	}
	return count
}

// ProgressFunc is called with the number of consecutive segments consumed so far.
// It is called once per segment, in order. An error stops the run.
type ProgressFunc func(ctx context.Context, processed int) error

type PipelineOption func(*Pipeline)

func WithPrompt(prompt string) PipelineOption {
	return func(p *Pipeline) {
		if prompt != "" {
			p.prompt = prompt
		}
	}
}

func WithSegmentTimeout(timeout time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithConcurrency bounds the number of segments analyzed at once. 1 analyzes serially.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

type Pipeline struct {
	capability  Capability
	prompt      string
	timeout     time.Duration
	concurrency int

	readFile   func(string) ([]byte, error)
	removeFile func(string) error
}

func NewPipeline(capability Capability, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		capability:  capability,
		prompt:      DefaultPrompt,
		timeout:     DefaultSegmentTimeout,
		concurrency: 1,
		readFile:    os.ReadFile,
		removeFile:  os.Remove,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// AnalyzeSegment never fails: any problem is folded into a placeholder Outcome.
// The segment file is removed before returning, whatever happened.
func (p *Pipeline) AnalyzeSegment(ctx context.Context, seg segment.Segment) (out Outcome) {
	start := time.Now()
	out.Index = seg.Index

	defer func() {
		if err := p.removeFile(seg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			zap.S().Named("analysis").Warnw("failed to remove segment", "path", seg.Path, "error", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			out = p.failed(seg.Index, fmt.Errorf("panic: %v", r))
		}
		metrics.ObserveSegmentAnalysis(!out.Failed(), time.Since(start))
	}()

	data, err := p.readFile(seg.Path)
	if err != nil {
		return p.failed(seg.Index, fmt.Errorf("reading segment: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.capability.Analyze(callCtx, p.prompt, data)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", p.timeout, err)
		}
		return p.failed(seg.Index, err)
	}

	return Outcome{Index: seg.Index, Summary: strings.TrimSpace(text)}
}

func (p *Pipeline) failed(index int, err error) Outcome {
	segErr := &SegmentAnalysisError{Index: index, Err: err}
	zap.S().Named("analysis").Warnw("segment analysis failed", "segment", index, "error", err)
	return Outcome{Index: index, Summary: segErr.Placeholder(), Err: segErr}
}

// Run analyzes segments and reports progress through progress. Segment failures never make
// Run fail. It only returns an error when ctx is done or progress fails; in both cases no
// further segment is started and the progress already reported is left as is.
//
// At most `concurrency` segments are in flight, counted from the first segment not yet
// reported, so with a concurrency of 1 a segment starts only after its predecessor was reported.
func (p *Pipeline) Run(ctx context.Context, segments []segment.Segment, progress ProgressFunc) (Result, error) {
	n := len(segments)
	outcomes := make([]Outcome, n)
	done := make([]bool, n)
	finished := make(chan int, n)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		next, committed, inflight int
		fatal                     error
	)

	for committed < n {
		for fatal == nil && runCtx.Err() == nil && next < n && next < committed+p.concurrency {
			i := next
			next++
			inflight++
			go func() {
				outcomes[i] = p.AnalyzeSegment(runCtx, segments[i])
				finished <- i
			}()
		}
		if inflight == 0 {
			break
		}

		i := <-finished
		inflight--
		done[i] = true

		if fatal != nil {
			continue
		}
		if runCtx.Err() != nil {
			fatal = p.interrupted(runCtx, committed, n)
			continue
		}
		for committed < n && done[committed] {
			if err := progress(ctx, committed+1); err != nil {
				fatal = fmt.Errorf("recording progress of segment %d: %w", committed+1, err)
				cancel(fatal)
				break
			}
			committed++
		}
	}

	for ; inflight > 0; inflight-- {
		<-finished
	}

	if fatal == nil && committed < n {
		fatal = p.interrupted(runCtx, committed, n)
	}
	if fatal != nil {
		return Result{}, fatal
	}

	return Result{Outcomes: outcomes}, nil
}

func (p *Pipeline) interrupted(ctx context.Context, processed, total int) error {
	return fmt.Errorf("analysis stopped after %d of %d segments: %w", processed, total, context.Cause(ctx))
}

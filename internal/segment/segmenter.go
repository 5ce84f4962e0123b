package segment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	DefaultMaxDuration = 300 * time.Second
	DefaultFormat      = "mp4"

	filePrefix     = "chunk_"
	stderrTailSize = 2048
)

// Segment is one consecutive slice of the input, written to its own file.
type Segment struct {
	Index int
	Path  string
}

// SegmentationError is returned when the input could not be split.
type SegmentationError struct {
	Message  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SegmentationError) Error() string {
	msg := "segmentation failed: " + e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s (exit code %d): %s", msg, e.ExitCode, e.Stderr)
	}
	return msg
}

func (e *SegmentationError) Unwrap() error {
	return e.Err
}

type Option func(*Segmenter)

func WithRunner(r CommandRunner) Option {
	return func(s *Segmenter) {
		s.runner = r
	}
}

func WithBinary(path string) Option {
	return func(s *Segmenter) {
		if path != "" {
			s.binary = path
		}
	}
}

func WithFormat(format string) Option {
	return func(s *Segmenter) {
		if format != "" {
			s.format = strings.TrimPrefix(format, ".")
		}
	}
}

// Segmenter splits media files with ffmpeg's segment muxer. Streams are copied, never re-encoded,
// so actual boundaries fall on keyframes near each multiple of the maximum duration.
type Segmenter struct {
	runner CommandRunner
	binary string
	format string
}

func NewSegmenter(opts ...Option) *Segmenter {
	s := &Segmenter{
		runner: execRunner{},
		binary: "ffmpeg",
		format: DefaultFormat,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Segment splits input into outputDir and returns the segments in stream order.
// Zero segments is an error.
func (s *Segmenter) Segment(ctx context.Context, input string, outputDir string, maxDuration time.Duration) ([]Segment, error) {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, &SegmentationError{Message: "creating output directory", Err: err}
	}

	args := s.args(input, outputDir, maxDuration)
	zap.S().Named("segmenter").Debugw("running segmentation", "binary", s.binary, "args", args)

	result, err := s.runner.Run(ctx, s.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &SegmentationError{Message: "interrupted", Err: context.Cause(ctx)}
		}
		return nil, &SegmentationError{
			Message:  fmt.Sprintf("%s exited with an error", filepath.Base(s.binary)),
			ExitCode: result.ExitCode,
			Stderr:   tail(result.Stderr, stderrTailSize),
			Err:      err,
		}
	}

	segments, err := s.collect(outputDir)
	if err != nil {
		return nil, &SegmentationError{Message: "listing segments", Err: err}
	}
	if len(segments) == 0 {
		return nil, &SegmentationError{Message: "no segments were produced"}
	}

	zap.S().Named("segmenter").Infow("input segmented", "input", input, "segments", len(segments))
	return segments, nil
}

func (s *Segmenter) args(input, outputDir string, maxDuration time.Duration) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", input,
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(maxDuration.Seconds(), 'f', -1, 64),
		"-segment_format", s.format,
		"-reset_timestamps", "1",
		filepath.Join(outputDir, filePrefix+"%03d."+s.format),
	}
}

// collect lists the produced files. The zero padded names make lexical and stream order coincide.
func (s *Segmenter) collect(dir string) ([]Segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || filepath.Ext(e.Name()) != "."+s.format {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	segments := make([]Segment, 0, len(names))
	for i, name := range names {
		segments = append(segments, Segment{Index: i, Path: filepath.Join(dir, name)})
	}
	return segments, nil
}

// tail keeps the last n bytes of s, cut on a rune boundary. Invalid sequences are
// replaced: the text ends up in a database column.
func tail(s string, n int) string {
	s = strings.ToValidUTF8(strings.TrimSpace(s), "\uFFFD")
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// IsSegmentationError reports whether err carries a SegmentationError.
func IsSegmentationError(err error) bool {
	var segErr *SegmentationError
	return errors.As(err, &segErr)
}

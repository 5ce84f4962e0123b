package log

import (
	"context"
	"time"

	"github.com/kubev2v/media-analyzer/pkg/requestid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StructuredLogger logs service operations as a sequence of events sharing the
// operation name, its parameters and the request ID.
type StructuredLogger struct {
	name  string
	level zapcore.Level
}

func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.DebugLevel}
}

func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.InfoLevel}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *TracerBuilder {
	return &TracerBuilder{logger: l, requestID: requestid.FromContext(ctx)}
}

type TracerBuilder struct {
	logger    *StructuredLogger
	requestID string
	operation string
	params    []any
}

func (b *TracerBuilder) Operation(name string) *TracerBuilder {
	b.operation = name
	return b
}

func (b *TracerBuilder) WithParam(key string, value any) *TracerBuilder {
	b.params = append(b.params, key, value)
	return b
}

func (b *TracerBuilder) Build() *OperationTracer {
	fields := []any{"operation", b.operation}
	if b.requestID != "" {
		fields = append(fields, "request_id", b.requestID)
	}
	fields = append(fields, b.params...)

	return &OperationTracer{
		// resolved here so loggers built before zap.ReplaceGlobals still follow it
		logger: zap.S().Named(b.logger.name).With(fields...),
		level:  b.logger.level,
		start:  time.Now(),
	}
}

type OperationTracer struct {
	logger *zap.SugaredLogger
	level  zapcore.Level
	start  time.Time
}

// Step records an intermediate point of the operation.
func (t *OperationTracer) Step(name string) *Event {
	return &Event{tracer: t, level: t.level, msg: name}
}

func (t *OperationTracer) Success() *Event {
	return &Event{tracer: t, level: t.level, msg: "success", fields: []any{"duration", time.Since(t.start)}}
}

func (t *OperationTracer) Error(err error) *Event {
	return &Event{tracer: t, level: zapcore.ErrorLevel, msg: "failed", fields: []any{"error", err, "duration", time.Since(t.start)}}
}

// Event is one log line of a traced operation.
type Event struct {
	tracer *OperationTracer
	level  zapcore.Level
	msg    string
	fields []any
}

func (e *Event) WithParam(key string, value any) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

// AsWarning downgrades an error event for failures the caller handles.
func (e *Event) AsWarning() *Event {
	e.level = zapcore.WarnLevel
	return e
}

func (e *Event) Log() {
	e.tracer.logger.Logw(e.level, e.msg, e.fields...)
}

package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/kubev2v/media-analyzer/internal/store/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTopic  string = "media.analyzer.events"
	defaultSource string = "media.analyzer"
)

var ErrProducerClosed = errors.New("event producer closed")

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer is a wrapper around a Writer with the buffer.
// Events are queued in the buffer so the caller is never blocked by a slow writer.
type EventProducer struct {
	buffer       *buffer
	notifyCh     chan struct{}
	doneCh       chan struct{}
	stoppedCh    chan struct{}
	closeOnce    sync.Once
	writer       Writer
	topic        string
	closeTimeout time.Duration
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		buffer:       newBuffer(),
		notifyCh:     make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
		writer:       w,
		topic:        defaultTopic,
		closeTimeout: 5 * time.Second,
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

func (ep *EventProducer) Write(ctx context.Context, kind string, body io.Reader) error {
	select {
	case <-ep.doneCh:
		return ErrProducerClosed
	default:
	}

	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	ep.buffer.PushBack(&message{Kind: kind, Data: d})

	select {
	case ep.notifyCh <- struct{}{}:
	default:
	}

	return nil
}

// WriteJob queues an event describing job. Errors are logged, never returned: events are
// informational and must not change the outcome of the job.
func (ep *EventProducer) WriteJob(ctx context.Context, kind string, job *model.Job) {
	data, err := json.Marshal(NewJobEvent(job))
	if err != nil {
		zap.S().Named("event_producer").Errorw("failed to marshal job event", "job_id", job.ID, "error", err)
		return
	}
	if err := ep.Write(ctx, kind, bytes.NewReader(data)); err != nil {
		zap.S().Named("event_producer").Warnw("failed to queue job event", "job_id", job.ID, "kind", kind, "error", err)
	}
}

// Close sends the pending events and closes the writer.
func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), ep.closeTimeout)
	defer cancel()

	ep.closeOnce.Do(func() {
		close(ep.doneCh)
	})

	g, ctx := errgroup.WithContext(closeCtx)
	g.Go(func() error {
		select {
		case <-ep.stoppedCh:
		case <-ctx.Done():
			return ctx.Err()
		}
		return ep.writer.Close(ctx)
	})
	if err := g.Wait(); err != nil {
		zap.S().Named("event_producer").Errorf("event producer closed with error: %s", err)
		return err
	}

	zap.S().Named("event_producer").Info("event producer closed")
	return nil
}

func (ep *EventProducer) run() {
	defer close(ep.stoppedCh)

	for {
		if msg := ep.buffer.Pop(); msg != nil {
			ep.send(msg)
			continue
		}

		select {
		case <-ep.notifyCh:
		case <-ep.doneCh:
			for msg := ep.buffer.Pop(); msg != nil; msg = ep.buffer.Pop() {
				ep.send(msg)
			}
			return
		}
	}
}

func (ep *EventProducer) send(msg *message) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(defaultSource)
	e.SetType(msg.Kind)
	e.SetTime(time.Now().UTC())
	_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)

	if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
		zap.S().Named("event_producer").Errorw("failed to send message", "error", err, "event", e)
	}
}

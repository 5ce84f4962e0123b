package events

import "time"

type ProducerOptions func(e *EventProducer)

func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		if topic != "" {
			e.topic = topic
		}
	}
}

func WithCloseTimeout(timeout time.Duration) ProducerOptions {
	return func(e *EventProducer) {
		e.closeTimeout = timeout
	}
}

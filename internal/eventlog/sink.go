package eventlog

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Sink receives one encoded event per call.
type Sink interface {
	Write(ctx context.Context, line []byte) error
}

// WriterSink writes newline-delimited JSON to an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink that writes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Write implements Sink.
func (s *WriterSink) Write(_ context.Context, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := s.w.Write(buf)
	return err
}

// KafkaSink publishes events to a Kafka topic.
type KafkaSink struct {
	w *kafka.Writer
}

// NewKafkaSink returns a sink producing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Write implements Sink.
func (s *KafkaSink) Write(ctx context.Context, line []byte) error {
	return s.w.WriteMessages(ctx, kafka.Message{Value: line})
}

// Close flushes and closes the producer.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}

// MultiSink writes every event to each sink in order.
type MultiSink []Sink

// Write implements Sink. All sinks are attempted; errors are joined.
func (m MultiSink) Write(ctx context.Context, line []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

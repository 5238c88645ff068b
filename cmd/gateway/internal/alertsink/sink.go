package alertsink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/simulator"
	"github.com/shubham-shewale/live-tickers/pkg/models"
)

// Sink writes every alert of a tick to Kafka, keyed by symbol so a symbol's alerts stay
// ordered within one partition.
type Sink struct {
	writer KafkaWriter

	mu  sync.Mutex
	seq map[string]int64
}

func NewSink(writer KafkaWriter) *Sink {
	return &Sink{writer: writer, seq: make(map[string]int64)}
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Publish(ctx context.Context, res simulator.TickResult) error {
	if len(res.Alerts) == 0 {
		return nil
	}

	s.mu.Lock()
	msgs := make([]kafka.Message, 0, len(res.Alerts))
	for _, a := range res.Alerts {
		s.seq[a.Symbol]++
		payload, err := json.Marshal(models.AlertEvent{
			ID:    uuid.NewString(),
			Seq:   s.seq[a.Symbol],
			Alert: a,
		})
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("marshal alert event: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(a.Symbol), Value: payload})
	}
	s.mu.Unlock()

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}

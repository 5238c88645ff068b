package alertsink_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/alertsink"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/simulator"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/live-tickers/pkg/models"
)

func TestSink_WritesOneMessagePerAlert(t *testing.T) {
	writer := &testutils.MockKafkaWriter{}
	sink := alertsink.NewSink(writer)

	res := simulator.TickResult{Alerts: []models.PriceAlert{
		{Symbol: "AAPL", ChangePct: 4},
		{Symbol: "TSLA", ChangePct: -5},
	}}
	if err := sink.Publish(context.Background(), res); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := sink.Publish(context.Background(), simulator.TickResult{Alerts: res.Alerts[:1]}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	writer.Mu.Lock()
	defer writer.Mu.Unlock()

	if len(writer.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(writer.Messages))
	}
	if string(writer.Messages[0].Key) != "AAPL" {
		t.Errorf("Expected key AAPL, got %s", writer.Messages[0].Key)
	}

	var last models.AlertEvent
	if err := json.Unmarshal(writer.Messages[2].Value, &last); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if last.Seq != 2 || last.Alert.Symbol != "AAPL" || last.ID == "" {
		t.Errorf("Expected second AAPL event with seq 2, got %+v", last)
	}
}

func TestSink_NoAlertsNoWrite(t *testing.T) {
	writer := &testutils.MockKafkaWriter{ShouldFail: true}
	sink := alertsink.NewSink(writer)

	if err := sink.Publish(context.Background(), simulator.TickResult{Updates: []models.PriceUpdate{{ID: "x"}}}); err != nil {
		t.Errorf("Quiet ticks should not touch Kafka, got %v", err)
	}
}

func TestSink_WriteError(t *testing.T) {
	sink := alertsink.NewSink(&testutils.MockKafkaWriter{ShouldFail: true})

	err := sink.Publish(context.Background(), simulator.TickResult{Alerts: []models.PriceAlert{{Symbol: "AAPL"}}})
	if err == nil {
		t.Error("Expected write error")
	}
}

func TestTopicCreator_Flow(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{} // Will auto-create ConnSpy
	sleeper := &testutils.MockSleeper{}

	tc := alertsink.NewTopicCreator(zap.NewNop(), mockDialer, sleeper)
	tc.Create(context.Background(), []string{"broker:9092"}, "ticker_alerts")

	if mockDialer.ConnSpy == nil {
		t.Fatal("Dialer was never called")
	}
	if len(mockDialer.ConnSpy.CreatedTopics) != 1 || mockDialer.ConnSpy.CreatedTopics[0] != "ticker_alerts" {
		t.Errorf("Expected topic 'ticker_alerts', got %v", mockDialer.ConnSpy.CreatedTopics)
	}
	if sleeper.Slept != 0 {
		t.Errorf("Ready topic should not wait, slept %v", sleeper.Slept)
	}
}

func TestTopicCreator_WaitsThenGivesUp(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{ConnSpy: &testutils.MockKafkaConn{NotReady: true}}
	sleeper := &testutils.MockSleeper{}

	alertsink.NewTopicCreator(zap.NewNop(), mockDialer, sleeper).
		Create(context.Background(), []string{"broker:9092"}, "ticker_alerts")

	if sleeper.Slept != 5*200*time.Millisecond {
		t.Errorf("Expected 5 retries, slept %v", sleeper.Slept)
	}
}

func TestTopicCreator_UnreachableBrokers(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{Fail: true}

	alertsink.NewTopicCreator(zap.NewNop(), mockDialer, &testutils.MockSleeper{}).
		Create(context.Background(), []string{"a:9092", "b:9092"}, "ticker_alerts")

	if len(mockDialer.Dialed) != 2 {
		t.Errorf("Expected both brokers tried, got %v", mockDialer.Dialed)
	}
}

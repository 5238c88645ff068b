package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/simulator"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/live-tickers/pkg/models"
)

func setup(t *testing.T) (*repository.RedisStore, *miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return repository.NewRedisStore(rdb, time.Hour), mr, rdb
}

func TestRedisStore_EmptySnapshot(t *testing.T) {
	store, _, _ := setup(t)

	got, err := store.GetSnapshot(context.Background())
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil snapshot before first tick, got %+v", got)
	}
}

func TestRedisStore_SaveTickRoundTrip(t *testing.T) {
	store, mr, _ := setup(t)
	ctx := context.Background()

	instruments := []models.Instrument{{ID: "NASDAQ-AAPL", Symbol: "AAPL", Price: 150.5, DayRange: models.Range{149, 151}}}
	updates := []models.PriceUpdate{{ID: "NASDAQ-AAPL", NextPrice: 150.5}}

	if err := store.SaveTick(ctx, instruments, updates, nil); err != nil {
		t.Fatalf("SaveTick failed: %v", err)
	}

	got, err := store.GetSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if len(got) != 1 || got[0].Price != 150.5 || got[0].DayRange.High() != 151 {
		t.Errorf("Unexpected snapshot %+v", got)
	}

	if ttl := mr.TTL(repository.SnapshotKey); ttl != time.Hour {
		t.Errorf("Expected 1h TTL on snapshot key, got %v", ttl)
	}
}

func TestRedisStore_PublishesUpdatesAndAlerts(t *testing.T) {
	store, _, rdb := setup(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, repository.UpdatesChannel, repository.AlertsChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	alert := models.PriceAlert{Symbol: "AAPL", PreviousPrice: 150, NextPrice: 156, ChangePct: 4}
	err := store.SaveTick(ctx, nil, []models.PriceUpdate{{ID: "NASDAQ-AAPL", NextPrice: 156}}, []models.PriceAlert{alert})
	if err != nil {
		t.Fatalf("SaveTick failed: %v", err)
	}

	got := map[string]string{}
	ch := sub.Channel()
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-ch:
			got[msg.Channel] = msg.Payload
		case <-timeout:
			t.Fatalf("Timed out waiting for pubsub messages, got %v", got)
		}
	}

	var decoded models.PriceAlert
	if err := json.Unmarshal([]byte(got[repository.AlertsChannel]), &decoded); err != nil || decoded != alert {
		t.Errorf("Unexpected alert payload %q", got[repository.AlertsChannel])
	}
}

func TestSnapshotSink_UsesCurrentInstruments(t *testing.T) {
	store, _, _ := setup(t)
	source := testutils.StaticSnapshot{{ID: "NYSE-JPM", Symbol: "JPM", Price: 196.62}}
	sink := repository.NewSnapshotSink(store, source)

	if sink.Name() != "redis" {
		t.Errorf("Unexpected sink name %q", sink.Name())
	}
	if err := sink.Publish(context.Background(), simulator.TickResult{Version: 1}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, _ := store.GetSnapshot(context.Background())
	if len(got) != 1 || got[0].Symbol != "JPM" {
		t.Errorf("Sink stored %+v", got)
	}
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr, _ := setup(t)
	mr.Close()

	if err := store.SaveTick(context.Background(), nil, nil, nil); err == nil {
		t.Error("Expected error when redis is unavailable")
	}
}

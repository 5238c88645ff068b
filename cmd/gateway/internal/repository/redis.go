package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/simulator"
	"github.com/shubham-shewale/live-tickers/pkg/models"
)

const (
	SnapshotKey    = "tickers:snapshot"
	UpdatesChannel = "tickers.updates"
	AlertsChannel  = "tickers.alerts"
)

// Compile-time check to ensure RedisStore implements SnapshotStore
var _ SnapshotStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// SaveTick overwrites the snapshot key and publishes the tick in one pipeline.
func (r *RedisStore) SaveTick(ctx context.Context, instruments []models.Instrument, updates []models.PriceUpdate, alerts []models.PriceAlert) error {
	snapshot, err := json.Marshal(instruments)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	updatesPayload, err := json.Marshal(updates)
	if err != nil {
		return fmt.Errorf("marshal updates: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, SnapshotKey, snapshot, r.ttl) // TTL prevents a stale mirror outliving the gateway
	pipe.Publish(ctx, UpdatesChannel, updatesPayload)
	for _, a := range alerts {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal alert: %w", err)
		}
		pipe.Publish(ctx, AlertsChannel, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// GetSnapshot returns the mirrored instrument set, or nil when nothing has been written yet.
func (r *RedisStore) GetSnapshot(ctx context.Context) ([]models.Instrument, error) {
	raw, err := r.client.Get(ctx, SnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var instruments []models.Instrument
	if err := json.Unmarshal(raw, &instruments); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return instruments, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// InstrumentSource is the engine side of the sink.
type InstrumentSource interface {
	Instruments() []models.Instrument
}

// SnapshotSink adapts a SnapshotStore to the gateway's tick sink contract.
type SnapshotSink struct {
	store  SnapshotStore
	source InstrumentSource
}

func NewSnapshotSink(store SnapshotStore, source InstrumentSource) *SnapshotSink {
	return &SnapshotSink{store: store, source: source}
}

func (s *SnapshotSink) Name() string { return "redis" }

func (s *SnapshotSink) Publish(ctx context.Context, res simulator.TickResult) error {
	return s.store.SaveTick(ctx, s.source.Instruments(), res.Updates, res.Alerts)
}

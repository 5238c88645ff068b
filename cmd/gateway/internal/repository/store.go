package repository

import (
	"context"

	"github.com/shubham-shewale/live-tickers/pkg/models"
)

// SnapshotStore mirrors the latest feed state for readers outside the gateway.
type SnapshotStore interface {
	SaveTick(ctx context.Context, instruments []models.Instrument, updates []models.PriceUpdate, alerts []models.PriceAlert) error
	GetSnapshot(ctx context.Context) ([]models.Instrument, error)
	Close() error
}

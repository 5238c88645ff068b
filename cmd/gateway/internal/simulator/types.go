package simulator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shubham-shewale/live-tickers/pkg/config"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
}

// for deterministic values; draws are expected in [0, 1)
type Rand interface {
	Float64() float64
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// RealRand is a mutex-guarded math/rand source, safe to share.
type RealRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRealRand(seed int64) *RealRand {
	return &RealRand{r: rand.New(rand.NewSource(seed))}
}

func (r *RealRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

// Config holds the random-walk and alert parameters.
type Config struct {
	AlertThresholdPct float64
	HistoryWindowSize int
	PriceFloorFactor  float64
	Bias              float64
	VolatilityFactor  float64
	ShockProbability  float64
	ShockMinPct       float64
	ShockMaxPct       float64
	VolumeJitter      float64
}

func DefaultConfig() Config {
	return Config{
		AlertThresholdPct: 3,
		HistoryWindowSize: 24,
		PriceFloorFactor:  0.9,
		Bias:              0.45,
		VolatilityFactor:  0.0035,
		ShockProbability:  0.02,
		ShockMinPct:       3.5,
		ShockMaxPct:       6,
		VolumeJitter:      0.02,
	}
}

func ConfigFrom(f config.FeedConfig) Config {
	return Config{
		AlertThresholdPct: f.AlertThresholdPct,
		HistoryWindowSize: f.HistoryWindowSize,
		PriceFloorFactor:  f.PriceFloorFactor,
		Bias:              f.Bias,
		VolatilityFactor:  f.VolatilityFactor,
		ShockProbability:  f.ShockProbability,
		ShockMinPct:       f.ShockMinPct,
		ShockMaxPct:       f.ShockMaxPct,
		VolumeJitter:      f.VolumeJitter,
	}
}

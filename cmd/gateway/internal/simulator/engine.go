package simulator

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/pkg/models"
)

// Snapshot is one immutable version of the instrument set. Callers must not modify it.
type Snapshot struct {
	Version     uint64
	TakenAt     time.Time
	Instruments []models.Instrument
}

// TickResult is what one tick hands to the broadcast side.
type TickResult struct {
	Version uint64
	Updates []models.PriceUpdate
	Alerts  []models.PriceAlert
}

// Engine advances the instrument set one tick at a time. Each tick builds a new Snapshot and
// swaps it in atomically, so Snapshot may be called concurrently with Tick.
type Engine struct {
	cfg    Config
	rand   Rand
	clock  Clock
	logger *zap.Logger

	mu      sync.Mutex // serializes Tick
	current atomic.Pointer[Snapshot]
}

func NewEngine(cfg Config, seed []models.Instrument, rnd Rand, clock Clock, logger *zap.Logger) *Engine {
	instruments := make([]models.Instrument, len(seed))
	for i, inst := range seed {
		instruments[i] = inst.Clone()
	}

	e := &Engine{
		cfg:    cfg,
		rand:   rnd,
		clock:  clock,
		logger: logger,
	}
	e.current.Store(&Snapshot{TakenAt: clock.Now(), Instruments: instruments})
	return e
}

func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

// Instruments returns the current instrument set; the slice must be treated as read-only.
func (e *Engine) Instruments() []models.Instrument {
	return e.current.Load().Instruments
}

func (e *Engine) Tick() TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.current.Load()
	now := e.clock.Now()

	next := &Snapshot{
		Version:     prev.Version + 1,
		TakenAt:     now,
		Instruments: make([]models.Instrument, len(prev.Instruments)),
	}
	result := TickResult{
		Version: next.Version,
		Updates: make([]models.PriceUpdate, 0, len(prev.Instruments)),
	}

	for i, inst := range prev.Instruments {
		updated, alert := e.advance(inst, now)
		next.Instruments[i] = updated
		result.Updates = append(result.Updates, models.PriceUpdate{ID: updated.ID, NextPrice: updated.Price})

		if alert != nil {
			result.Alerts = append(result.Alerts, *alert)
			e.logger.Debug("Price alert",
				zap.String("symbol", alert.Symbol),
				zap.Float64("change_pct", alert.ChangePct),
				zap.Float64("next_price", alert.NextPrice),
			)
		}
	}

	e.current.Store(next)
	return result
}

func (e *Engine) advance(inst models.Instrument, now time.Time) (models.Instrument, *models.PriceAlert) {
	price := inst.Price
	floor := inst.Week52Range.Low() * e.cfg.PriceFloorFactor

	movement := (e.draw() - e.cfg.Bias) * price * e.cfg.VolatilityFactor
	candidate := clampFloor(price+movement, floor)

	final := candidate
	shockRoll := e.draw()
	if e.cfg.ShockProbability > 0 && shockRoll >= 1-e.cfg.ShockProbability {
		final = clampFloor(candidate*(1+e.shockPct(e.draw())/100), floor)
	}

	var alert *models.PriceAlert
	if change := changePct(price, final); change.Abs().GreaterThan(decimal.NewFromFloat(e.cfg.AlertThresholdPct)) {
		alert = &models.PriceAlert{
			Symbol:        inst.Symbol,
			PreviousPrice: candidate,
			NextPrice:     final,
			ChangePct:     change.Round(2).InexactFloat64(),
			Timestamp:     now.UnixMilli(),
		}
	}

	next := inst
	next.Price = final
	next.DayRange = inst.DayRange.Widen(final)
	next.History = e.appendHistory(inst.History, models.PricePoint{Time: now.UnixMilli(), Price: final})
	next.Volume = e.jitterVolume(inst.Volume)
	next.LastUpdated = now.UnixMilli()

	return next, alert
}

// shockPct maps a draw onto a signed move of ShockMinPct..ShockMaxPct percent.
func (e *Engine) shockPct(d float64) float64 {
	signed := 2*d - 1
	mag := e.cfg.ShockMinPct + math.Abs(signed)*(e.cfg.ShockMaxPct-e.cfg.ShockMinPct)
	if signed < 0 {
		return -mag
	}
	return mag
}

func (e *Engine) appendHistory(hist []models.PricePoint, p models.PricePoint) []models.PricePoint {
	size := e.cfg.HistoryWindowSize
	if size <= 0 {
		size = len(hist)
	}
	if size > 0 && len(hist) >= size {
		hist = hist[len(hist)-size+1:]
	}
	out := make([]models.PricePoint, 0, len(hist)+1)
	out = append(out, hist...)
	return append(out, p)
}

func (e *Engine) jitterVolume(volume int64) int64 {
	delta := math.Round((e.draw() - 0.5) * e.cfg.VolumeJitter * float64(volume))
	next := volume + int64(delta)
	if next < 1 {
		return 1
	}
	return next
}

// draw clamps the random source into [0, 1].
func (e *Engine) draw() float64 {
	d := e.rand.Float64()
	switch {
	case math.IsNaN(d) || d < 0:
		return 0
	case d > 1:
		return 1
	}
	return d
}

// clampFloor rounds to cents without ever landing below floor.
func clampFloor(price, floor float64) float64 {
	if math.IsNaN(price) || price < floor {
		price = floor
	}
	p := round2(price)
	if p < floor {
		p = decimal.NewFromFloat(floor).RoundCeil(2).InexactFloat64()
	}
	return p
}

// changePct is the unrounded percentage move from price to final; zero when price is not positive.
func changePct(price, final float64) decimal.Decimal {
	if price <= 0 {
		return decimal.Zero
	}
	p := decimal.NewFromFloat(price)
	return decimal.NewFromFloat(final).Sub(p).Div(p).Mul(decimal.NewFromInt(100))
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

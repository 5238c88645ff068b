package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/simulator"
	"github.com/shubham-shewale/live-tickers/pkg/models"
)

var ErrAlreadyStarted = errors.New("ticker gateway already started")

type State int32

const (
	StateIdle State = iota
	StateScheduling
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduling:
		return "scheduling"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type Engine interface {
	Tick() simulator.TickResult
}

type Broadcaster interface {
	Register(client hub.ClientInterface)
	SendSnapshot(client hub.ClientInterface) error
	Broadcast(event string, data interface{}) int
}

// TickSink receives every tick after it has been broadcast. Sink errors are logged only.
type TickSink interface {
	Name() string
	Publish(ctx context.Context, res simulator.TickResult) error
}

// TickerGateway owns the tick cadence: one timer, one goroutine, one tick at a time.
type TickerGateway struct {
	engine   Engine
	hub      Broadcaster
	sinks    []TickSink
	interval time.Duration
	logger   *zap.Logger

	// tickMu spans engine mutation + broadcast, so a connecting client is registered
	// either entirely before or entirely after a tick.
	tickMu sync.Mutex

	mu    sync.Mutex
	state State
	stop  chan struct{}
	done  chan struct{}
	ticks atomic.Uint64
}

func NewTickerGateway(engine Engine, h Broadcaster, interval time.Duration, logger *zap.Logger, sinks ...TickSink) *TickerGateway {
	return &TickerGateway{
		engine:   engine,
		hub:      h,
		sinks:    sinks,
		interval: interval,
		logger:   logger,
	}
}

// Start arms the recurring timer. It returns immediately; ticks run until Stop or ctx ends.
func (g *TickerGateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateIdle {
		return ErrAlreadyStarted
	}
	g.state = StateScheduling
	g.stop = make(chan struct{})
	g.done = make(chan struct{})

	go g.loop(ctx, g.stop, g.done)

	g.logger.Info("Ticker gateway started", zap.Duration("interval", g.interval), zap.Int("sinks", len(g.sinks)))
	return nil
}

// Stop cancels the timer and waits for an in-flight tick to finish. Safe from any state.
func (g *TickerGateway) Stop() {
	g.mu.Lock()
	if g.state != StateScheduling && g.state != StateRunning {
		g.mu.Unlock()
		return
	}
	g.state = StateStopped
	close(g.stop)
	done := g.done
	g.mu.Unlock()

	<-done
	g.logger.Info("Ticker gateway stopped", zap.Uint64("ticks", g.ticks.Load()))
}

func (g *TickerGateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Ticks reports how many ticks have completed.
func (g *TickerGateway) Ticks() uint64 { return g.ticks.Load() }

// HandleConnection registers a newly authenticated client and sends it the snapshot right
// away, regardless of where the timer is in its cycle.
func (g *TickerGateway) HandleConnection(client hub.ClientInterface) error {
	g.tickMu.Lock()
	defer g.tickMu.Unlock()

	g.hub.Register(client)
	return g.hub.SendSnapshot(client)
}

func (g *TickerGateway) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			g.mu.Lock()
			g.state = StateStopped
			g.mu.Unlock()
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			g.mu.Lock()
			if g.state == StateScheduling {
				g.state = StateRunning
			}
			g.mu.Unlock()

			g.runTick(ctx)
		}
	}
}

func (g *TickerGateway) runTick(ctx context.Context) {
	g.tickMu.Lock()
	res := g.engine.Tick()
	reached := g.hub.Broadcast(models.EventUpdate, res.Updates)
	for _, alert := range res.Alerts {
		g.hub.Broadcast(models.EventAlert, alert)
	}
	g.tickMu.Unlock()

	g.ticks.Add(1)
	g.logger.Debug("Tick broadcast",
		zap.Uint64("version", res.Version),
		zap.Int("updates", len(res.Updates)),
		zap.Int("alerts", len(res.Alerts)),
		zap.Int("clients", reached),
	)

	for _, sink := range g.sinks {
		sctx, cancel := context.WithTimeout(ctx, g.interval)
		if err := sink.Publish(sctx, res); err != nil {
			g.logger.Warn("Tick sink failed", zap.String("sink", sink.Name()), zap.Error(err))
		}
		cancel()
	}
}

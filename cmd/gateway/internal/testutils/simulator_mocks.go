package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/simulator"
)

type MockClock struct {
	Mu          sync.Mutex
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

// MockRand replays Values in order, then keeps returning Default.
type MockRand struct {
	Mu      sync.Mutex
	Values  []float64
	Default float64
	Calls   int
}

func (m *MockRand) Float64() float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if len(m.Values) > 0 {
		v := m.Values[0]
		m.Values = m.Values[1:]
		return v
	}
	return m.Default
}

// MockEngine returns Result from every Tick and counts calls.
type MockEngine struct {
	Mu     sync.Mutex
	Result simulator.TickResult
	Calls  int
	Delay  time.Duration
}

func (m *MockEngine) Tick() simulator.TickResult {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	return m.Result
}

func (m *MockEngine) CallCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Calls
}

// MockSink records published tick versions.
type MockSink struct {
	Mu        sync.Mutex
	Published []uint64
	Err       error
}

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Publish(ctx context.Context, res simulator.TickResult) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Published = append(m.Published, res.Version)
	return m.Err
}

func (m *MockSink) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Published)
}

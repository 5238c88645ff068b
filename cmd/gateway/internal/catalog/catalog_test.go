package catalog_test

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/catalog"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/simulator"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/testutils"
)

func TestEmbedded_Bootstrap(t *testing.T) {
	cat, err := catalog.Embedded()
	if err != nil {
		t.Fatalf("embedded catalog failed to load: %v", err)
	}
	if cat.Len() == 0 {
		t.Fatal("embedded catalog is empty")
	}

	now := time.Unix(1_700_000_000, 0)
	instruments := cat.Bootstrap(now, 24)

	if len(instruments) != cat.Len() {
		t.Fatalf("Expected %d instruments, got %d", cat.Len(), len(instruments))
	}
	for _, inst := range instruments {
		if len(inst.History) != 24 {
			t.Errorf("%s: expected 24 history points, got %d", inst.Symbol, len(inst.History))
		}
		last := inst.History[len(inst.History)-1]
		if last.Price != inst.Price {
			t.Errorf("%s: newest history price %v != price %v", inst.Symbol, last.Price, inst.Price)
		}
		if last.Time != now.UnixMilli() {
			t.Errorf("%s: newest history point should be stamped now", inst.Symbol)
		}
		if inst.DayRange.Low() > inst.Price || inst.DayRange.High() < inst.Price {
			t.Errorf("%s: price %v outside day range %v", inst.Symbol, inst.Price, inst.DayRange)
		}
	}
}

func TestBootstrap_IndependentCopies(t *testing.T) {
	cat, _ := catalog.Embedded()
	a := cat.Bootstrap(time.Now(), 24)
	b := cat.Bootstrap(time.Now(), 24)

	a[0].History[0].Price = -1
	if b[0].History[0].Price == -1 {
		t.Error("Bootstrap must not share history slices between calls")
	}
}

func TestLoad_TrimsSuppliedHistory(t *testing.T) {
	doc := `
instruments:
  - id: T-1
    symbol: TST
    name: Test
    sector: Mock
    price: 10
    previous_close: 9
    volume: 5
    day_range: [9, 11]
    week52_range: [8, 12]
    history:
      - {time: 1, price: 9}
      - {time: 2, price: 9.5}
      - {time: 3, price: 9.8}
`
	cat, err := catalog.Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	inst := cat.Bootstrap(time.Now(), 2)[0]
	if len(inst.History) != 2 {
		t.Fatalf("Expected history trimmed to 2, got %d", len(inst.History))
	}
	if inst.History[0].Time != 2 {
		t.Errorf("Expected oldest kept point at time 2, got %d", inst.History[0].Time)
	}
	if inst.History[1].Price != 10 {
		t.Errorf("Newest point should mirror price, got %v", inst.History[1].Price)
	}
}

const shortHistoryDoc = `
instruments:
  - id: T-1
    symbol: TST
    name: Test
    sector: Mock
    price: 10
    previous_close: 9
    volume: 5
    day_range: [9, 11]
    week52_range: [8, 12]
    history:
      - {time: 7200000, price: 9.5}
      - {time: 10800000, price: 9.8}
  - id: T-2
    symbol: BARE
    name: No History
    sector: Mock
    price: 20
    previous_close: 19
    volume: 5
    day_range: [19, 21]
    week52_range: [15, 25]
`

func TestBootstrap_PadsShortHistory(t *testing.T) {
	cat, err := catalog.Load(strings.NewReader(shortHistoryDoc))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	inst := cat.Bootstrap(time.Now(), 24)[0]

	if len(inst.History) != 24 {
		t.Fatalf("Expected history padded to 24, got %d", len(inst.History))
	}
	for i := 0; i < 22; i++ {
		if inst.History[i].Price != 9.5 {
			t.Errorf("Padding point %d should carry the oldest price, got %v", i, inst.History[i].Price)
		}
	}
	for i := 1; i < len(inst.History); i++ {
		if inst.History[i].Time <= inst.History[i-1].Time {
			t.Fatalf("History times not increasing at %d", i)
		}
	}
	if inst.History[21].Time != 7200000-3600000 {
		t.Errorf("Padding should be spaced hourly before the oldest point, got %d", inst.History[21].Time)
	}
	if inst.History[22].Time != 7200000 || inst.History[23].Price != 10 {
		t.Errorf("Supplied points should end the window, got %+v", inst.History[22:])
	}
}

func TestBootstrap_PaddedHistoryStableAcrossTicks(t *testing.T) {
	cat, err := catalog.Load(strings.NewReader(shortHistoryDoc))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	now := time.UnixMilli(1_700_000_000_000)
	eng := simulator.NewEngine(simulator.DefaultConfig(), cat.Bootstrap(now, 24),
		&testutils.MockRand{Default: 0.5}, &testutils.MockClock{CurrentTime: now}, zap.NewNop())

	for i := 0; i < 3; i++ {
		eng.Tick()
		for _, inst := range eng.Snapshot().Instruments {
			if len(inst.History) != 24 {
				t.Fatalf("tick %d: %s history length %d, want 24", i, inst.Symbol, len(inst.History))
			}
		}
	}
}

func TestBootstrap_NonPositiveSize(t *testing.T) {
	cat, err := catalog.Load(strings.NewReader(shortHistoryDoc))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, size := range []int{0, -3} {
		for _, inst := range cat.Bootstrap(time.Now(), size) {
			if len(inst.History) != 1 || inst.History[0].Price != inst.Price {
				t.Errorf("size %d: %s expected a single point at price, got %+v", size, inst.Symbol, inst.History)
			}
		}
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"empty": `instruments: []`,
		"duplicate id": `
instruments:
  - {id: A, symbol: A, price: 1, previous_close: 1, volume: 1, day_range: [1, 1], week52_range: [1, 1]}
  - {id: A, symbol: B, price: 1, previous_close: 1, volume: 1, day_range: [1, 1], week52_range: [1, 1]}
`,
		"negative price": `
instruments:
  - {id: A, symbol: A, price: -1, previous_close: 1, volume: 1, day_range: [1, 1], week52_range: [1, 1]}
`,
		"inverted range": `
instruments:
  - {id: A, symbol: A, price: 1, previous_close: 1, volume: 1, day_range: [2, 1], week52_range: [1, 1]}
`,
		"bad yaml": `instruments: [`,
	}

	for name, doc := range cases {
		if _, err := catalog.Load(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

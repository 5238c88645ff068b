package models

// Range is a [low, high] price band. It marshals as a two-element JSON array.
type Range [2]float64

func (r Range) Low() float64  { return r[0] }
func (r Range) High() float64 { return r[1] }

// Widen returns the range extended to include price.
func (r Range) Widen(price float64) Range {
	if price < r[0] {
		r[0] = price
	}
	if price > r[1] {
		r[1] = price
	}
	return r
}

// PricePoint is one entry of an instrument's rolling history.
type PricePoint struct {
	Time  int64   `json:"time"` // unix milli
	Price float64 `json:"price"`
}

// Instrument is a simulated ticker as served in the tickers:init snapshot.
type Instrument struct {
	ID            string       `json:"id"`
	Symbol        string       `json:"symbol"`
	Name          string       `json:"name"`
	Sector        string       `json:"sector"`
	Price         float64      `json:"price"`
	PreviousClose float64      `json:"previousClose"`
	Volume        int64        `json:"volume"`
	DayRange      Range        `json:"dayRange"`
	Week52Range   Range        `json:"week52Range"`
	History       []PricePoint `json:"history"`
	LastUpdated   int64        `json:"lastUpdated"` // unix milli
}

// Clone returns a deep copy; History is not shared with the receiver.
func (i Instrument) Clone() Instrument {
	out := i
	out.History = make([]PricePoint, len(i.History))
	copy(out.History, i.History)
	return out
}

// PriceUpdate is the per-tick delta broadcast under tickers:update.
type PriceUpdate struct {
	ID        string  `json:"id"`
	NextPrice float64 `json:"nextPrice"`
}

// PriceAlert is broadcast under tickers:alert when a move crosses the alert threshold.
type PriceAlert struct {
	Symbol        string  `json:"symbol"`
	PreviousPrice float64 `json:"previousPrice"`
	NextPrice     float64 `json:"nextPrice"`
	ChangePct     float64 `json:"changePct"`
	Timestamp     int64   `json:"timestamp"` // unix milli
}

// AlertEvent wraps an alert for the Kafka alert stream.
type AlertEvent struct {
	ID    string     `json:"id"`
	Seq   int64      `json:"seq_id"` // monotonic counter per symbol
	Alert PriceAlert `json:"alert"`
}

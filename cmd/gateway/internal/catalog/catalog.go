package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shubham-shewale/live-tickers/pkg/models"
)

//go:embed instruments.yaml
var embedded []byte

const bootstrapSpacing = time.Hour

type entry struct {
	ID            string       `yaml:"id"`
	Symbol        string       `yaml:"symbol"`
	Name          string       `yaml:"name"`
	Sector        string       `yaml:"sector"`
	Price         float64      `yaml:"price"`
	PreviousClose float64      `yaml:"previous_close"`
	Volume        int64        `yaml:"volume"`
	DayRange      [2]float64   `yaml:"day_range"`
	Week52Range   [2]float64   `yaml:"week52_range"`
	History       []pointEntry `yaml:"history"`
}

type pointEntry struct {
	Time  int64   `yaml:"time"`
	Price float64 `yaml:"price"`
}

type document struct {
	Instruments []entry `yaml:"instruments"`
}

// Catalog is the immutable seed list the simulation starts from.
type Catalog struct {
	entries []entry
}

// Embedded returns the catalog compiled into the binary.
func Embedded() (*Catalog, error) {
	return Load(bytes.NewReader(embedded))
}

// LoadFile reads a catalog from path, falling back to the embedded one when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Embedded()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Instruments) == 0 {
		return nil, fmt.Errorf("catalog has no instruments")
	}

	ids := make(map[string]bool, len(doc.Instruments))
	symbols := make(map[string]bool, len(doc.Instruments))
	for i, e := range doc.Instruments {
		if e.ID == "" || e.Symbol == "" {
			return nil, fmt.Errorf("instrument %d: id and symbol are required", i)
		}
		if ids[e.ID] {
			return nil, fmt.Errorf("duplicate instrument id %q", e.ID)
		}
		if symbols[e.Symbol] {
			return nil, fmt.Errorf("duplicate symbol %q", e.Symbol)
		}
		ids[e.ID], symbols[e.Symbol] = true, true

		if e.Price <= 0 || e.PreviousClose <= 0 {
			return nil, fmt.Errorf("%s: prices must be positive", e.Symbol)
		}
		if e.Volume <= 0 {
			return nil, fmt.Errorf("%s: volume must be positive", e.Symbol)
		}
		if e.DayRange[0] > e.DayRange[1] || e.Week52Range[0] > e.Week52Range[1] {
			return nil, fmt.Errorf("%s: range low exceeds high", e.Symbol)
		}
		if e.Week52Range[0] <= 0 {
			return nil, fmt.Errorf("%s: 52-week low must be positive", e.Symbol)
		}
	}

	return &Catalog{entries: doc.Instruments}, nil
}

// Len reports the number of instruments in the catalog.
func (c *Catalog) Len() int { return len(c.entries) }

// Bootstrap materialises the live instrument set. Entries without history get a window of
// size points interpolated from previous close to price, spaced hourly and ending at now.
// Supplied histories are trimmed to the newest size points, or padded at their oldest price
// when shorter. A size below 1 is treated as 1.
func (c *Catalog) Bootstrap(now time.Time, size int) []models.Instrument {
	if size < 1 {
		size = 1
	}
	out := make([]models.Instrument, 0, len(c.entries))
	nowMs := now.UnixMilli()

	for _, e := range c.entries {
		inst := models.Instrument{
			ID:            e.ID,
			Symbol:        e.Symbol,
			Name:          e.Name,
			Sector:        e.Sector,
			Price:         e.Price,
			PreviousClose: e.PreviousClose,
			Volume:        e.Volume,
			DayRange:      models.Range(e.DayRange).Widen(e.Price),
			Week52Range:   models.Range(e.Week52Range),
			LastUpdated:   nowMs,
		}

		if len(e.History) > 0 {
			hist := e.History
			if len(hist) > size {
				hist = hist[len(hist)-size:]
			}
			inst.History = pad(hist, size)
		} else {
			inst.History = synthesize(e.PreviousClose, e.Price, now, size)
		}
		// newest history entry always mirrors the live price
		inst.History[len(inst.History)-1].Price = inst.Price

		out = append(out, inst)
	}
	return out
}

// pad copies hist into a window of exactly size points, filling the front with the oldest
// supplied price at hourly spacing.
func pad(hist []pointEntry, size int) []models.PricePoint {
	out := make([]models.PricePoint, size)
	missing := size - len(hist)
	oldest := hist[0]
	for i := 0; i < missing; i++ {
		at := time.UnixMilli(oldest.Time).Add(-time.Duration(missing-i) * bootstrapSpacing)
		out[i] = models.PricePoint{Time: at.UnixMilli(), Price: oldest.Price}
	}
	for i, p := range hist {
		out[missing+i] = models.PricePoint{Time: p.Time, Price: p.Price}
	}
	return out
}

func synthesize(from, to float64, now time.Time, size int) []models.PricePoint {
	points := make([]models.PricePoint, size)
	for i := 0; i < size; i++ {
		frac := 1.0
		if size > 1 {
			frac = float64(i) / float64(size-1)
		}
		price := math.Round((from+(to-from)*frac)*100) / 100
		at := now.Add(-time.Duration(size-1-i) * bootstrapSpacing)
		points[i] = models.PricePoint{Time: at.UnixMilli(), Price: price}
	}
	return points
}

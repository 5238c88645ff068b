package processor

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/pkg/config"
	"github.com/shubham-shewale/live-tickers/pkg/models"
)

const AlertTTL = time.Hour

func AlertKey(symbol string) string     { return "alert:" + symbol }
func AlertChannel(symbol string) string { return "alerts." + symbol }

// Processor consumes the alert stream and keeps the latest alert per symbol in Redis.
type Processor struct {
	logger     Logger
	rdb        RedisClient
	reader     KafkaReader
	numWorkers int
}

func NewProcessor(cfg config.ProcessorConfig, logger Logger, rdb RedisClient, reader KafkaReader) *Processor {
	n := cfg.NumWorkers
	if n <= 0 {
		n = 1
	}
	return &Processor{
		logger:     logger,
		rdb:        rdb,
		reader:     reader,
		numWorkers: n,
	}
}

// Run blocks until ctx is done, then drains the workers.
func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Deterministic Sharding: Same symbol always goes to same worker
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				p.logger.Warn("Dropping slow alert", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping processor...")

	<-readerDone
	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

type seen struct {
	seq     int64
	firstID string // id of the seq 1 event that started the current run
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()

	// Local state for deduplication (only works because of deterministic sharding)
	last := make(map[string]seen)

	for payload := range msgs {
		var event models.AlertEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}
		symbol := event.Alert.Symbol
		if symbol == "" {
			p.logger.Warn("Alert without symbol", zap.String("event_id", event.ID))
			continue
		}

		prev, ok := last[symbol]
		// seq 1 under a new id means the gateway restarted its counters
		restarted := event.Seq == 1 && event.ID != prev.firstID
		if ok && event.Seq <= prev.seq && !restarted {
			p.logger.Debug("Skipping duplicate alert", zap.String("symbol", symbol), zap.Int64("seq_id", event.Seq))
			continue
		}

		pipe := p.rdb.Pipeline()
		pipe.Set(ctx, AlertKey(symbol), payload, AlertTTL)
		pipe.Publish(ctx, AlertChannel(symbol), payload)

		if _, err := pipe.Exec(ctx); err != nil {
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", symbol))
			continue
		}
		p.logger.Debug("Processed", zap.String("symbol", symbol), zap.Int("worker_id", id), zap.Int64("seq_id", event.Seq))
		next := seen{seq: event.Seq, firstID: prev.firstID}
		if event.Seq == 1 {
			next.firstID = event.ID
		}
		last[symbol] = next
	}
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}

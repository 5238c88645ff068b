package tickerclient

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/pkg/models"
)

var errNotConnected = errors.New("tickerclient: not connected")

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Manager shares one physical channel between any number of subscribers. The channel is
// opened on the first subscription and closed a grace period after the last one leaves.
type Manager struct {
	opts   Options
	tokens TokenSource
	logger *zap.Logger

	mu        sync.Mutex
	listeners map[uint64]Handlers
	nextID    uint64
	refs      int
	conn      Conn
	dialing   bool
	closed    bool

	// gen changes on every intentional teardown; dials and retries from an older
	// generation are discarded.
	gen        uint64
	idleSeq    uint64
	idleTimer  *time.Timer
	retryTimer *time.Timer

	writeMu sync.Mutex
}

func NewManager(tokens TokenSource, opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		opts:      opts.withDefaults(),
		tokens:    tokens,
		logger:    logger,
		listeners: make(map[uint64]Handlers),
	}
}

// Subscribe attaches h and returns its unsubscribe func, which is safe to call any number
// of times. Without a token nothing is attached and the returned func is a no-op.
func (m *Manager) Subscribe(h Handlers) func() {
	token, err := m.tokens.Token()
	if err != nil {
		m.logger.Warn("No access token, ticker channel not opened", zap.Error(err))
		return func() {}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Warn("Subscribe on closed manager")
		return func() {}
	}

	id := m.nextID
	m.nextID++
	m.listeners[id] = h
	m.refs++
	m.cancelIdleLocked()

	if m.conn == nil && !m.dialing {
		m.dialing = true
		go m.connect(token, m.gen)
	}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.release(id) })
	}
}

// RequestSnapshot asks the server for a fresh tickers:init.
func (m *Manager) RequestSnapshot(id string) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	payload, err := json.Marshal(map[string]string{"action": "snapshot", "id": id})
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close tears the channel down immediately and cancels any pending disconnect or retry.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cancelIdleLocked()
	m.teardownLocked()
	m.listeners = make(map[uint64]Handlers)
	m.refs = 0
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *Manager) RefCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

func (m *Manager) release(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.listeners, id)
	m.refs--
	if m.refs < 0 {
		m.refs = 0
	}
	if m.refs > 0 || m.closed {
		return
	}

	m.cancelIdleLocked()
	seq := m.idleSeq
	m.idleTimer = time.AfterFunc(m.opts.DisconnectGrace, func() { m.idle(seq) })
}

func (m *Manager) idle(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.idleSeq || m.refs > 0 || m.closed {
		return
	}
	m.idleTimer = nil
	m.teardownLocked()
	m.logger.Debug("Ticker channel closed after grace period")
}

func (m *Manager) cancelIdleLocked() {
	m.idleSeq++
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

func (m *Manager) teardownLocked() {
	m.gen++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

func (m *Manager) connect(token string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	conn, err := m.opts.Dialer.Dial(ctx, m.opts.URL, token)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialing = false

	if err != nil {
		m.logger.Warn("Ticker channel connect failed", zap.String("url", m.opts.URL), zap.Error(err))
		if gen == m.gen && m.refs > 0 && !m.closed {
			m.scheduleRetryLocked()
		}
		return
	}

	if gen != m.gen || m.closed {
		conn.Close()
		// a subscriber arrived after the teardown that made this dial stale
		if m.refs > 0 && !m.closed {
			m.dialing = true
			go m.connect(token, m.gen)
		}
		return
	}

	m.conn = conn
	m.logger.Info("Ticker channel connected", zap.String("url", m.opts.URL), zap.Int("subscribers", m.refs))
	go m.readLoop(conn)
}

func (m *Manager) scheduleRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	gen := m.gen
	m.retryTimer = time.AfterFunc(m.opts.ReconnectDelay, func() { m.retry(gen) })
}

func (m *Manager) retry(gen uint64) {
	token, err := m.tokens.Token()
	if err != nil {
		m.logger.Warn("No access token, reconnect abandoned", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closed || m.refs == 0 || m.conn != nil || m.dialing {
		return
	}
	m.retryTimer = nil
	m.dialing = true
	go m.connect(token, gen)
}

func (m *Manager) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.dropped(conn, err)
			return
		}
		m.dispatch(data)
	}
}

func (m *Manager) dropped(conn Conn, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != conn {
		return
	}
	m.conn = nil
	conn.Close()

	m.logger.Warn("Ticker channel lost", zap.Error(err))
	if m.refs > 0 && !m.closed {
		m.scheduleRetryLocked()
	}
}

func (m *Manager) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.logger.Debug("Dropping undecodable frame", zap.Error(err))
		return
	}

	handlers := m.snapshotHandlers()

	switch env.Event {
	case models.EventInit:
		var instruments []models.Instrument
		if !m.decode(env, &instruments) {
			return
		}
		for _, h := range handlers {
			if h.OnInit != nil {
				h.OnInit(instruments)
			}
		}
	case models.EventUpdate:
		var updates []models.PriceUpdate
		if !m.decode(env, &updates) {
			return
		}
		for _, h := range handlers {
			if h.OnUpdate != nil {
				h.OnUpdate(updates)
			}
		}
	case models.EventAlert:
		var alert models.PriceAlert
		if !m.decode(env, &alert) {
			return
		}
		for _, h := range handlers {
			if h.OnAlert != nil {
				h.OnAlert(alert)
			}
		}
	default:
		m.logger.Debug("Ignoring frame", zap.String("event", env.Event))
	}
}

func (m *Manager) decode(env envelope, v interface{}) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		m.logger.Warn("Bad event payload", zap.String("event", env.Event), zap.Error(err))
		return false
	}
	return true
}

// snapshotHandlers returns the current listeners in subscription order.
func (m *Manager) snapshotHandlers() []Handlers {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Handlers, len(ids))
	for i, id := range ids {
		out[i] = m.listeners[id]
	}
	return out
}

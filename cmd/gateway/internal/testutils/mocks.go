package testutils

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/live-tickers/pkg/models"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // Stores decoded JSON responses
	Frames   []protocol.Envelope   // Stores decoded event frames
	Closed   bool
	FailWith error // returned by SendBytes when set
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
	return nil
}

func (m *MockClient) SendBytes(b []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	var env protocol.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	m.Frames = append(m.Frames, env)
	return nil
}

func (m *MockClient) LastMsgType() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return ""
	}
	return m.Messages[len(m.Messages)-1].Type
}

// Events returns the event names received so far, in order.
func (m *MockClient) Events() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]string, len(m.Frames))
	for i, f := range m.Frames {
		out[i] = f.Event
	}
	return out
}

// FramesFor returns the raw payloads received under event.
func (m *MockClient) FramesFor(event string) []json.RawMessage {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []json.RawMessage
	for _, f := range m.Frames {
		if f.Event == event {
			out = append(out, f.Data)
		}
	}
	return out
}

var _ hub.ClientInterface = (*MockClient)(nil)

// StaticSnapshot is a fixed SnapshotSource.
type StaticSnapshot []models.Instrument

func (s StaticSnapshot) Instruments() []models.Instrument { return s }

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}

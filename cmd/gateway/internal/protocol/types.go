package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	ActionSnapshot = "snapshot"
)

// Envelope is the frame for every server push: {"event": "tickers:update", "data": [...]}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode marshals data once into a ready-to-send frame.
func Encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type WSRequest struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

type WSResponse struct {
	Type    string `json:"type"`             // "ack", "error"
	ID      string `json:"id,omitempty"`     // Matches request ID
	Status  string `json:"status,omitempty"` // "success", "error"
	Message string `json:"message,omitempty"`
}

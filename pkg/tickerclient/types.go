package tickerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shubham-shewale/live-tickers/pkg/models"
)

var ErrNoToken = errors.New("tickerclient: no access token")

// Handlers are the per-subscription callbacks. Any subset may be nil.
type Handlers struct {
	OnInit   func([]models.Instrument)
	OnUpdate func([]models.PriceUpdate)
	OnAlert  func(models.PriceAlert)
}

type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource holding a fixed token; empty means logged out.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Conn is the read side of an established channel.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}

// WSDialer opens the channel with gorilla/websocket, passing the token as a bearer header.
type WSDialer struct {
	Dialer *websocket.Dialer
}

func (d WSDialer) Dial(ctx context.Context, url, token string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// Login exchanges credentials at baseURL/auth/login for an access token.
func Login(ctx context.Context, client *http.Client, baseURL, email, password string) (StaticToken, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: unexpected status %s", resp.Status)
	}

	var session struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("login: decode session: %w", err)
	}
	if session.AccessToken == "" {
		return "", ErrNoToken
	}
	return StaticToken(session.AccessToken), nil
}

// Options tune a Manager. Zero values take the defaults.
type Options struct {
	URL             string
	DisconnectGrace time.Duration
	ReconnectDelay  time.Duration
	DialTimeout     time.Duration
	Dialer          Dialer
}

func (o Options) withDefaults() Options {
	if o.DisconnectGrace <= 0 {
		o.DisconnectGrace = 100 * time.Millisecond
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = WSDialer{}
	}
	return o
}

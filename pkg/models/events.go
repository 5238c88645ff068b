package models

// Wire identifiers for the ticker channel.
const (
	EventInit   = "tickers:init"
	EventUpdate = "tickers:update"
	EventAlert  = "tickers:alert"
)

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HolderRecord is one token account returned by the holder-data provider.
// Records are scoped to a single aggregation pass and never stored.
type HolderRecord struct {
	Address string          `json:"address,omitempty"`
	Owner   string          `json:"owner"`
	Amount  decimal.Decimal `json:"amount"`
}

// Sample is one (timestamp, holder-count) observation in the time series
type Sample struct {
	Time  int64 `json:"time"`  // unix seconds, strictly increasing within a series
	Value int64 `json:"value"` // holder count, never negative
}

// TokenMetadata is the display information for the tracked token
type TokenMetadata struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Logo   string `json:"logo"`
}

// Placeholder values used whenever metadata cannot be resolved
const (
	PlaceholderName = "Unknown Token"
	PlaceholderLogo = "🪙"
)

// PlaceholderMetadata returns the display values shown before (or instead of)
// a successful metadata lookup.
func PlaceholderMetadata(id string) TokenMetadata {
	return TokenMetadata{
		ID:   id,
		Name: PlaceholderName,
		Logo: PlaceholderLogo,
	}
}

// Status is the externally visible state of the tracker
type Status struct {
	Subject        string        `json:"subject"`
	ShortSubject   string        `json:"shortSubject"`
	Cadence        string        `json:"cadence"`
	IntervalMs     int64         `json:"intervalMs"`
	Epoch          uint64        `json:"epoch"`
	InFlight       bool          `json:"inFlight"`
	InitialLoading bool          `json:"initialLoading"`
	LastKnownValue int64         `json:"lastKnownValue"`
	HasValue       bool          `json:"hasValue"`
	Error          string        `json:"error,omitempty"`
	ErrorKind      string        `json:"errorKind,omitempty"`
	ViewError      string        `json:"viewError,omitempty"`
	Cycles         int64         `json:"cycles"`
	LastFetch      *time.Time    `json:"lastFetch,omitempty"`
	Points         int           `json:"points"`
	HoldersSeen    uint64        `json:"holdersSeen"`
	Metadata       TokenMetadata `json:"metadata"`
}

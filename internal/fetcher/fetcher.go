package fetcher

import (
	"context"

	"holders-backend/internal/epoch"
	"holders-backend/internal/models"
	"holders-backend/internal/utils"
)

// MaxPageSize is the largest page the provider will return
const MaxPageSize = 1000

// Config holds aggregator configuration
type Config struct {
	PageSize int `json:"pageSize" yaml:"page_size"` // records per page request (default and max: 1000)
}

// DefaultConfig returns default aggregator configuration
func DefaultConfig() Config {
	return Config{
		PageSize: MaxPageSize,
	}
}

// PageSource fetches one page of token accounts for a mint. An empty slice
// with a nil error means there is no more data.
type PageSource interface {
	TokenAccounts(ctx context.Context, mint string, page, limit int) ([]models.HolderRecord, error)
}

// Validator decides whether a captured epoch token is still current
type Validator interface {
	Valid(t epoch.Token) bool
}

// Aggregator walks every page of token accounts for a subject
type Aggregator struct {
	config    Config
	source    PageSource
	validator Validator
}

// NewAggregator creates an aggregator reading from source and checking
// validity against validator.
func NewAggregator(config Config, source PageSource, validator Validator) *Aggregator {
	if config.PageSize <= 0 || config.PageSize > MaxPageSize {
		config.PageSize = MaxPageSize
	}
	return &Aggregator{
		config:    config,
		source:    source,
		validator: validator,
	}
}

// Collect returns every token account of token.Subject.
//
// Validity is checked before the first request, before every page request
// and after every response. Once the token is stale Collect stops and
// returns whatever it has accumulated with a nil error; that holds even when
// the stale response was itself an error. A transport or provider error on a
// still-valid token aborts the whole pass with no partial result. An empty
// page ends pagination, as does a page shorter than the page size.
func (a *Aggregator) Collect(ctx context.Context, token epoch.Token) ([]models.HolderRecord, error) {
	if !a.validator.Valid(token) {
		utils.FetcherLogger.Debug("Request %s expired before start", token)
		return nil, nil
	}

	var accounts []models.HolderRecord
	for page := 1; ; page++ {
		if !a.validator.Valid(token) {
			utils.FetcherLogger.Debug("Request %s expired before page %d", token, page)
			return accounts, nil
		}

		utils.FetcherLogger.Debug("Fetching page %d for %s", page, token.Subject)
		records, err := a.source.TokenAccounts(ctx, token.Subject, page, a.config.PageSize)

		if !a.validator.Valid(token) {
			utils.FetcherLogger.Debug("Response for page %d of %s is stale, keeping %d accounts", page, token, len(accounts))
			return accounts, nil
		}
		if err != nil {
			return nil, err
		}

		if len(records) == 0 {
			utils.FetcherLogger.Debug("Page %d is empty, pagination finished", page)
			break
		}

		accounts = append(accounts, records...)
		utils.FetcherLogger.Debug("Accumulated %d token accounts", len(accounts))

		if len(records) < a.config.PageSize {
			break
		}
	}

	utils.FetcherLogger.Info("Collected %d token accounts for %s", len(accounts), token.Subject)
	return accounts, nil
}

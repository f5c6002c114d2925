package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"holders-backend/internal/models"
	"holders-backend/internal/utils"
)

// Config holds JSON-RPC client configuration
type Config struct {
	Endpoint string        `json:"endpoint" yaml:"endpoint"` // Helius RPC URL without the api-key query
	APIKey   string        `json:"-" yaml:"api_key"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		Endpoint: "https://mainnet.helius-rpc.com/",
		Timeout:  30 * time.Second,
	}
}

// RPCError is an error object reported by the provider
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc error %d", e.Code)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Request is a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// Response is a JSON-RPC 2.0 response with the result left undecoded
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Client is a JSON-RPC client with a reusable, pooled HTTP client
type Client struct {
	endpoint   string
	httpClient *http.Client
	requests   int64
}

// New creates a client for cfg. The API key, when set, is appended as the
// api-key query parameter.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, utils.WrapError(err, utils.ErrorTypeConfig, "BAD_ENDPOINT",
			"invalid RPC endpoint", "RPC").WithDetails(cfg.Endpoint)
	}
	if cfg.APIKey != "" {
		q := u.Query()
		q.Set("api-key", cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return &Client{
		endpoint:   u.String(),
		httpClient: httpClient,
	}, nil
}

// Call performs a single JSON-RPC call and returns the raw result.
//
// Transport failures and non-200 statuses are NETWORK errors, an error member
// in the response is a PROVIDER error wrapping *RPCError, and an undecodable
// body is a DECODE error. A null or absent result is returned as nil.
func (c *Client) Call(ctx context.Context, id, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrorTypeInternal, "MARSHAL", "error marshaling request", "RPC")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrorTypeInternal, "NEW_REQUEST", "error creating request", "RPC")
	}
	req.Header.Set("Content-Type", "application/json")

	atomic.AddInt64(&c.requests, 1)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		utils.RPCLogger.Debug("%s failed after %v: %v", method, time.Since(start), err)
		return nil, utils.WrapError(err, utils.ErrorTypeNetwork, "TRANSPORT", "request failed", "RPC").
			WithContext("method", method)
	}
	defer resp.Body.Close()

	utils.RPCLogger.Debug("%s completed in %v, status: %d", method, time.Since(start), resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewAppError(utils.ErrorTypeNetwork, "HTTP_STATUS", "unexpected status code", "RPC").
			WithDetails(fmt.Sprintf("%d", resp.StatusCode)).
			WithContext("method", method)
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, utils.WrapError(err, utils.ErrorTypeDecode, "DECODE", "error decoding response", "RPC").
			WithContext("method", method)
	}

	if result.Error != nil {
		appErr := utils.WrapError(result.Error, utils.ErrorTypeProvider, "RPC_ERROR", "provider reported an error", "RPC")
		return nil, appErr.WithContext("method", method)
	}

	if len(result.Result) == 0 || bytes.Equal(result.Result, []byte("null")) {
		return nil, nil
	}
	return result.Result, nil
}

// TokenAccountsParams are the parameters of getTokenAccounts
type TokenAccountsParams struct {
	Mint  string `json:"mint"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// TokenAccountsPage is one page of getTokenAccounts results
type TokenAccountsPage struct {
	Total         int                   `json:"total"`
	Limit         int                   `json:"limit"`
	Page          int                   `json:"page"`
	TokenAccounts []models.HolderRecord `json:"token_accounts"`
}

// GetTokenAccounts fetches one page of token accounts for mint.
// A nil page with a nil error means the provider returned no usable result
// (absent, null or malformed), which callers treat as end of data.
func (c *Client) GetTokenAccounts(ctx context.Context, mint string, page, limit int) (*TokenAccountsPage, error) {
	raw, err := c.Call(ctx, "holders", "getTokenAccounts", TokenAccountsParams{
		Mint:  mint,
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var result TokenAccountsPage
	if err := json.Unmarshal(raw, &result); err != nil {
		utils.RPCLogger.Warn("Malformed getTokenAccounts result for %s page %d: %v", mint, page, err)
		return nil, nil
	}
	return &result, nil
}

// TokenAccounts adapts GetTokenAccounts to the record slice used by the
// holder aggregator.
func (c *Client) TokenAccounts(ctx context.Context, mint string, page, limit int) ([]models.HolderRecord, error) {
	p, err := c.GetTokenAccounts(ctx, mint, page, limit)
	if err != nil || p == nil {
		return nil, err
	}
	return p.TokenAccounts, nil
}

// Asset is the subset of a getAsset result used for display
type Asset struct {
	ID      string `json:"id"`
	Content struct {
		Metadata struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"metadata"`
		Links struct {
			Image string `json:"image"`
		} `json:"links"`
	} `json:"content"`
}

// GetAsset fetches the digital-asset record for id. A nil asset with a nil
// error means the provider had no result for it.
func (c *Client) GetAsset(ctx context.Context, id string) (*Asset, error) {
	raw, err := c.Call(ctx, "token-info", "getAsset", map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var asset Asset
	if err := json.Unmarshal(raw, &asset); err != nil {
		return nil, utils.WrapError(err, utils.ErrorTypeDecode, "DECODE_ASSET", "error decoding asset", "RPC")
	}
	return &asset, nil
}

// RequestCount returns the number of calls issued by this client
func (c *Client) RequestCount() int64 {
	return atomic.LoadInt64(&c.requests)
}

// Close closes idle pooled connections
func (c *Client) Close() {
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holders-backend/internal/utils"
)

// newTestClient starts a provider fake answering every call with handler
func newTestClient(t *testing.T, handler func(t *testing.T, req Request, w http.ResponseWriter)) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api-key"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		handler(t, req, w)
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{Endpoint: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := New(Config{Endpoint: "not a url"})
	require.Error(t, err)
	assert.Equal(t, utils.ErrorTypeConfig, utils.GetErrorType(err))
}

func TestGetTokenAccounts(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req Request, w http.ResponseWriter) {
		assert.Equal(t, "getTokenAccounts", req.Method)
		params := req.Params.(map[string]interface{})
		assert.Equal(t, "mint-a", params["mint"])
		assert.Equal(t, float64(2), params["page"])
		assert.Equal(t, float64(1000), params["limit"])

		w.Write([]byte(`{"jsonrpc":"2.0","id":"holders","result":{"total":2,"limit":1000,"page":2,
			"token_accounts":[
				{"address":"acc1","owner":"A","amount":18446744073709551615},
				{"address":"acc2","owner":"B","amount":0}
			]}}`))
	})

	page, err := client.GetTokenAccounts(context.Background(), "mint-a", 2, 1000)
	require.NoError(t, err)
	require.NotNil(t, page)
	require.Len(t, page.TokenAccounts, 2)

	assert.Equal(t, "A", page.TokenAccounts[0].Owner)
	assert.Equal(t, "18446744073709551615", page.TokenAccounts[0].Amount.String())
	assert.True(t, page.TokenAccounts[1].Amount.IsZero())
	assert.Equal(t, int64(1), client.RequestCount())
}

func TestGetTokenAccountsEndOfData(t *testing.T) {
	bodies := map[string]string{
		"absent result":    `{"jsonrpc":"2.0","id":"holders"}`,
		"null result":      `{"jsonrpc":"2.0","id":"holders","result":null}`,
		"malformed result": `{"jsonrpc":"2.0","id":"holders","result":"oops"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(t *testing.T, req Request, w http.ResponseWriter) {
				w.Write([]byte(body))
			})

			page, err := client.GetTokenAccounts(context.Background(), "mint-a", 1, 1000)
			assert.NoError(t, err)
			assert.Nil(t, page)
		})
	}
}

func TestCallErrors(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		client := newTestClient(t, func(t *testing.T, req Request, w http.ResponseWriter) {
			w.Write([]byte(`{"jsonrpc":"2.0","id":"holders","error":{"code":-32602,"message":"invalid mint"}}`))
		})

		_, err := client.GetTokenAccounts(context.Background(), "bad", 1, 1000)
		require.Error(t, err)
		assert.Equal(t, utils.ErrorTypeProvider, utils.GetErrorType(err))

		var rpcErr *RPCError
		require.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, -32602, rpcErr.Code)
		assert.Contains(t, err.Error(), "invalid mint")
	})

	t.Run("http status", func(t *testing.T) {
		client := newTestClient(t, func(t *testing.T, req Request, w http.ResponseWriter) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.GetTokenAccounts(context.Background(), "mint-a", 1, 1000)
		require.Error(t, err)
		assert.Equal(t, utils.ErrorTypeNetwork, utils.GetErrorType(err))
		assert.True(t, utils.IsRetryableError(err))
	})

	t.Run("undecodable body", func(t *testing.T) {
		client := newTestClient(t, func(t *testing.T, req Request, w http.ResponseWriter) {
			w.Write([]byte(`<html>`))
		})

		_, err := client.GetTokenAccounts(context.Background(), "mint-a", 1, 1000)
		require.Error(t, err)
		assert.Equal(t, utils.ErrorTypeDecode, utils.GetErrorType(err))
	})

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		client, err := New(Config{Endpoint: srv.URL})
		require.NoError(t, err)

		_, err = client.GetTokenAccounts(context.Background(), "mint-a", 1, 1000)
		require.Error(t, err)
		assert.Equal(t, utils.ErrorTypeNetwork, utils.GetErrorType(err))
	})
}

func TestGetAsset(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req Request, w http.ResponseWriter) {
		assert.Equal(t, "getAsset", req.Method)
		assert.Equal(t, "mint-a", req.Params.(map[string]interface{})["id"])

		w.Write([]byte(`{"jsonrpc":"2.0","id":"token-info","result":{"id":"mint-a",
			"content":{"metadata":{"name":"Test Token","symbol":"TT"},"links":{"image":"https://img/tt.png"}}}}`))
	})

	asset, err := client.GetAsset(context.Background(), "mint-a")
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.Equal(t, "Test Token", asset.Content.Metadata.Name)
	assert.Equal(t, "TT", asset.Content.Metadata.Symbol)
	assert.Equal(t, "https://img/tt.png", asset.Content.Links.Image)
}

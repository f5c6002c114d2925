package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holders-backend/internal/cadence"
	"holders-backend/internal/history"
	"holders-backend/internal/models"
	"holders-backend/internal/utils"
)

type fakeTracker struct {
	mu      sync.Mutex
	subject string
	cadence string
	samples []models.Sample
	hist    *history.History
}

func (f *fakeTracker) Subject() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subject
}

func (f *fakeTracker) SetSubject(subject string) error {
	if !utils.IsValidAddress(subject) {
		return utils.NewAppError(utils.ErrorTypeValidation, "BAD_SUBJECT", "subject is not a valid token address", "PIPELINE").
			WithDetails(subject)
	}
	f.mu.Lock()
	f.subject = subject
	f.samples = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeTracker) Cadence() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cadence
}

func (f *fakeTracker) SetCadence(c string) error {
	if !cadence.IsOption(c) {
		return utils.NewAppError(utils.ErrorTypeValidation, "BAD_CADENCE", "unsupported cadence", "PIPELINE")
	}
	f.mu.Lock()
	f.cadence = c
	f.mu.Unlock()
	return nil
}

func (f *fakeTracker) Status() models.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.Status{Subject: f.subject, Cadence: f.cadence, Points: len(f.samples)}
}

func (f *fakeTracker) Snapshot() []models.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Sample(nil), f.samples...)
}

func (f *fakeTracker) Metadata() models.TokenMetadata {
	return models.PlaceholderMetadata(f.Subject())
}

func (f *fakeTracker) History() *history.History { return f.hist }

type fakeHub struct{}

func (fakeHub) UpgradeConnection(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}
func (fakeHub) GetClientCount() int     { return 3 }
func (fakeHub) Stats() utils.QueueStats { return utils.QueueStats{} }

const mint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func newTestServer(t *testing.T) (*httptest.Server, *fakeTracker) {
	t.Helper()
	hist := history.New(history.NewMemoryStore())
	require.NoError(t, hist.Load(context.Background()))

	tracker := &fakeTracker{
		subject: mint,
		cadence: "1s",
		samples: []models.Sample{{Time: 10, Value: 1}, {Time: 11, Value: 2}},
		hist:    hist,
	}
	srv := httptest.NewServer(NewServer(DefaultConfig(), tracker, fakeHub{}).Router())
	t.Cleanup(srv.Close)
	return srv, tracker
}

func do(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["clients"])
	assert.Equal(t, mint, body["subject"])
}

func TestSeries(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/series", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body SeriesResponse
	decode(t, resp, &body)
	assert.Equal(t, mint, body.Subject)
	assert.Equal(t, "1s", body.Cadence)
	assert.Equal(t, []models.Sample{{Time: 10, Value: 1}, {Time: 11, Value: 2}}, body.Data)
}

func TestSetSubject(t *testing.T) {
	srv, tracker := newTestServer(t)
	next := "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	resp := do(t, http.MethodPut, srv.URL+"/api/subject", map[string]string{"subject": next})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, next, tracker.Subject())

	resp = do(t, http.MethodGet, srv.URL+"/api/subject", nil)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, next, body["subject"])
	assert.Equal(t, "EPjFWd...yTDt1v", body["shortSubject"])
}

func TestSetSubjectRejectsInvalid(t *testing.T) {
	srv, tracker := newTestServer(t)

	resp := do(t, http.MethodPut, srv.URL+"/api/subject", map[string]string{"subject": "0xnotbase58"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "BAD_SUBJECT", body.Code)
	assert.Equal(t, "0xnotbase58", body.Details)
	assert.Equal(t, mint, tracker.Subject())
}

func TestSetSubjectRejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/subject", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCadenceEndpoints(t *testing.T) {
	srv, tracker := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/cadences", nil)
	var options map[string]interface{}
	decode(t, resp, &options)
	assert.Len(t, options["options"], len(cadence.Options))
	assert.Equal(t, "1s", options["default"])

	resp = do(t, http.MethodPut, srv.URL+"/api/cadence", map[string]string{"cadence": "2s"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPut, srv.URL+"/api/cadence", map[string]string{"cadence": "5m"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "5m", tracker.Cadence())

	resp = do(t, http.MethodGet, srv.URL+"/api/cadence", nil)
	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "5m", body["cadence"])
	assert.Equal(t, float64(300000), body["intervalMs"])
}

func TestHistoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/history", nil)
	var entries []history.Entry
	decode(t, resp, &entries)
	assert.Empty(t, entries)

	resp = do(t, http.MethodPost, srv.URL+"/api/history", models.TokenMetadata{ID: mint, Name: "Bonk", Symbol: "BONK"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decode(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "Bonk", entries[0].Name)
	assert.Equal(t, models.PlaceholderLogo, entries[0].Logo)

	resp = do(t, http.MethodPost, srv.URL+"/api/history", models.TokenMetadata{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/api/history", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/history", nil)
	decode(t, resp, &entries)
	assert.Empty(t, entries)
}

func TestStatusAndMetadata(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/status", nil)
	var status models.Status
	decode(t, resp, &status)
	assert.Equal(t, mint, status.Subject)
	assert.Equal(t, 2, status.Points)

	resp = do(t, http.MethodGet, srv.URL+"/api/metadata", nil)
	var md models.TokenMetadata
	decode(t, resp, &md)
	assert.Equal(t, models.PlaceholderName, md.Name)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/subject", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWriteAppErrorStatus(t *testing.T) {
	cases := map[utils.ErrorType]int{
		utils.ErrorTypeValidation: http.StatusBadRequest,
		utils.ErrorTypeNetwork:    http.StatusBadGateway,
		utils.ErrorTypeProvider:   http.StatusBadGateway,
		utils.ErrorTypeInternal:   http.StatusInternalServerError,
	}
	for errType, want := range cases {
		rec := httptest.NewRecorder()
		writeAppError(rec, utils.NewAppError(errType, "X", "boom", "TEST"))
		assert.Equal(t, want, rec.Code, string(errType))
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymirror/polymirror/internal/config"
	"github.com/polymirror/polymirror/internal/model"
)

type memSettings struct {
	settings model.BotSettings
	err      error
}

func (m *memSettings) Load(ctx context.Context) (model.BotSettings, error) {
	return m.settings, m.err
}

func (m *memSettings) Save(ctx context.Context, settings model.BotSettings) error {
	if m.err != nil {
		return m.err
	}
	m.settings = settings
	return nil
}

func (m *memSettings) SetActive(ctx context.Context, active bool) error {
	if m.err != nil {
		return m.err
	}
	m.settings.IsActive = active
	return nil
}

type memTrades struct {
	records []model.TradeRecord
	stats   model.TradeStats
	err     error
}

func (m *memTrades) Recent(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return m.records[:limit], nil
}

func (m *memTrades) Since(ctx context.Context, after time.Time, limit int) ([]model.TradeRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.TradeRecord
	for _, rec := range m.records {
		if rec.CreatedAt.After(after) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memTrades) Stats(ctx context.Context) (model.TradeStats, error) {
	return m.stats, m.err
}

type fixedStatus string

func (s fixedStatus) State() string { return string(s) }

func newTestRouter(settings *memSettings, trades *memTrades) *gin.Engine {
	gin.SetMode(gin.TestMode)
	srv := New(config.ServerConfig{Port: "0"}, settings, trades, fixedStatus("POLLING"))
	return srv.Router(config.MetricsConfig{Enabled: true, Path: "/metrics"})
}

func defaultSettings() *memSettings {
	return &memSettings{settings: model.BotSettings{
		IsActive:      true,
		CopyRatio:     0.1,
		MaxNotional:   500,
		TargetAccount: "0x6031b6eed1c97e853c6e0f03ad3ce3529351f96d",
	}}
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := newTestRouter(defaultSettings(), &memTrades{})
	w := doRequest(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "POLLING", body["watcher"])
}

func TestGetTrades(t *testing.T) {
	now := time.Now().UTC()
	trades := &memTrades{records: []model.TradeRecord{
		{ID: "a", CreatedAt: now, Market: "Will it rain?", Outcome: "Yes", Side: "BUY", Size: 50, Price: 0.5, Status: "SUCCESS"},
		{ID: "b", CreatedAt: now.Add(-time.Minute), Market: "Will it rain?", Outcome: "No", Side: "SELL", Size: 25, Price: 0.4, Status: "FAILED"},
	}}
	router := newTestRouter(defaultSettings(), trades)

	w := doRequest(router, http.MethodGet, "/api/trades?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []model.TradeRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestGetTradesBadLimit(t *testing.T) {
	router := newTestRouter(defaultSettings(), &memTrades{})
	w := doRequest(router, http.MethodGet, "/api/trades?limit=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStats(t *testing.T) {
	last := time.Now().UTC()
	trades := &memTrades{stats: model.TradeStats{TotalTrades: 3, TotalVolume: 120.5, LastTradeAt: &last}}
	router := newTestRouter(defaultSettings(), trades)

	w := doRequest(router, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got model.TradeStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 3, got.TotalTrades)
	assert.InDelta(t, 120.5, got.TotalVolume, 1e-9)
}

func TestSettingsRoundTrip(t *testing.T) {
	settings := defaultSettings()
	router := newTestRouter(settings, &memTrades{})

	w := doRequest(router, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPut, "/api/settings",
		`{"is_active":true,"copy_ratio":0.25,"max_notional":1000,"target_account":"0x6031b6eed1c97e853c6e0f03ad3ce3529351f96d"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.25, settings.settings.CopyRatio, 1e-9)
	assert.InDelta(t, 1000.0, settings.settings.MaxNotional, 1e-9)
}

func TestPutSettingsValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero copy ratio", `{"copy_ratio":0,"max_notional":500,"target_account":"0x6031b6eed1c97e853c6e0f03ad3ce3529351f96d"}`},
		{"copy ratio above one", `{"copy_ratio":1.5,"max_notional":500,"target_account":"0x6031b6eed1c97e853c6e0f03ad3ce3529351f96d"}`},
		{"zero max notional", `{"copy_ratio":0.1,"max_notional":0,"target_account":"0x6031b6eed1c97e853c6e0f03ad3ce3529351f96d"}`},
		{"bad address", `{"copy_ratio":0.1,"max_notional":500,"target_account":"not-an-address"}`},
		{"garbage body", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(defaultSettings(), &memTrades{})
			w := doRequest(router, http.MethodPut, "/api/settings", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestBotStartStop(t *testing.T) {
	settings := defaultSettings()
	settings.settings.IsActive = false
	router := newTestRouter(settings, &memTrades{})

	w := doRequest(router, http.MethodPost, "/api/bot/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, settings.settings.IsActive)

	w = doRequest(router, http.MethodPost, "/api/bot/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, settings.settings.IsActive)
}

func TestStoreFailuresReturn500(t *testing.T) {
	settings := defaultSettings()
	settings.err = errors.New("db down")
	trades := &memTrades{err: errors.New("db down")}
	router := newTestRouter(settings, trades)

	for _, path := range []string{"/api/trades", "/api/stats", "/api/settings"} {
		w := doRequest(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
	}
}

func TestHubBroadcastNonBlocking(t *testing.T) {
	h := newHub()
	slow := h.Subscribe(1)
	defer h.Unsubscribe(slow)

	// Fill the buffer, then broadcast again; neither call may block.
	h.Broadcast(model.TradeRecord{ID: "1"})
	h.Broadcast(model.TradeRecord{ID: "2"})

	rec := <-slow.ch
	assert.Equal(t, "1", rec.ID)
	select {
	case <-slow.ch:
		t.Fatal("second record should have been dropped")
	default:
	}
}

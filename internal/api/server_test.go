package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"kraken-margin-engine/internal/engine"
	"kraken-margin-engine/internal/events"
)

func newTestServer() *Server {
	eng := engine.New("XBTUSD", engine.DefaultConfig(), nil, nil, events.NewBus(), zerolog.Nop())
	return NewServer(ServerConfig{Host: "127.0.0.1", Port: 0, ProductionMode: true}, eng, nil, events.NewBus(), zerolog.Nop())
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer()
	w := do(s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
}

func TestSummaryBeforeFirstTick(t *testing.T) {
	s := newTestServer()
	for _, path := range []string{"/api/v1/summary", "/api/v1/signal", "/api/v1/position", "/api/v1/exit", "/api/v1/dca"} {
		if w := do(s, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
			t.Errorf("GET %s before any tick: status = %d, want 404", path, w.Code)
		}
	}
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	s := newTestServer()
	if w := do(s, http.MethodPost, "/api/v1/evaluate", "{not json"); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", w.Code)
	}
	if w := do(s, http.MethodPost, "/api/v1/evaluate", `{"pair":"XBTUSD","price":0}`); w.Code != http.StatusBadRequest {
		t.Errorf("zero price: status = %d, want 400", w.Code)
	}
}

func TestEvaluateAndReadBack(t *testing.T) {
	s := newTestServer()
	tick := `{
		"pair": "XBTUSD",
		"price": 50000,
		"timeframes": [{
			"timeframe": "15m",
			"candles": [
				{"open": 49900, "high": 50100, "low": 49800, "close": 50000, "volume": 10},
				{"open": 50000, "high": 50150, "low": 49950, "close": 50100, "volume": 12},
				{"open": 50100, "high": 50200, "low": 50000, "close": 50050, "volume": 9}
			],
			"indicators": {"rsi": 55, "boll_position": 0.6, "atr_percent": 0.8}
		}]
	}`

	w := do(s, http.MethodPost, "/api/v1/evaluate", tick)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}

	var summary engine.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("bad summary body: %v", err)
	}
	if summary.EvaluationID == "" {
		t.Error("summary must carry an evaluation id")
	}
	if summary.Position.IsOpen {
		t.Error("no fills in the tick, position must be closed")
	}

	if w := do(s, http.MethodGet, "/api/v1/summary", ""); w.Code != http.StatusOK {
		t.Errorf("GET summary after a tick: status = %d, want 200", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/v1/exit", ""); w.Code != http.StatusOK {
		t.Errorf("GET exit after a tick: status = %d, want 200", w.Code)
	}
}

func TestHistoryUnconfigured(t *testing.T) {
	s := newTestServer()
	if w := do(s, http.MethodGet, "/api/v1/history/XBTUSD", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("history without a repository: status = %d, want 503", w.Code)
	}
}

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sweeney/fridge-controller/internal/logger"
	"github.com/sweeney/fridge-controller/internal/logic"
	"github.com/sweeney/fridge-controller/internal/metrics"
	"github.com/sweeney/fridge-controller/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *metrics.Metrics) {
	t.Helper()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	tr := status.NewTracker(start, status.Config{
		ThresholdC:   5,
		DeltaC:       2,
		PollInterval: 10 * time.Minute,
		CacheTTL:     3 * time.Hour,
		OutageLimit:  3 * time.Hour,
		Location:     "Oslo,NO",
		Device:       "mqtt",
		HTTPAddr:     ":8080",
	})
	m := metrics.New()
	srv := New(":0", tr, m.Handler(), logger.Nop())
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr, m
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	now := time.Now()
	tr.RecordCommand(true, nil)
	tr.Update(status.Tick{At: now, Mode: logic.ModeNormal, Action: logic.ActionTurnOn, HasReading: true, Reading: logic.Reading{TempC: 6.5, At: now}})

	resp, err := http.Get(ts.URL + "/status.json")
	if err != nil {
		t.Fatalf("GET /status.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Mode != "NORMAL" {
		t.Errorf("Mode: got %q, want NORMAL", sj.Status.Mode)
	}
	if sj.Status.Power != "ON" {
		t.Errorf("Power: got %q, want ON", sj.Status.Power)
	}
	if sj.Status.Reading == nil || sj.Status.Reading.TempC != 6.5 {
		t.Errorf("Reading: got %+v", sj.Status.Reading)
	}
	if sj.Status.Config.Location != "Oslo,NO" {
		t.Errorf("Config.Location: got %q", sj.Status.Config.Location)
	}
}

func TestHealthz(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	get := func() (int, map[string]interface{}) {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET /healthz: %v", err)
		}
		defer resp.Body.Close()
		var body map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body
	}

	code, body := get()
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthy: got %d %v", code, body)
	}
	if body["mode"] != "STARTING" {
		t.Errorf("mode: got %v, want STARTING", body["mode"])
	}

	tr.RecordCommand(true, errors.New("plug unreachable"))
	code, body = get()
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("degraded: got %d %v", code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, m := newTestServer(t)
	m.SetMode(logic.ModeSafe)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `fridge_mode{mode="SAFE_MODE"} 1`) {
		t.Error("metrics should expose the current mode")
	}
}

func TestMetricsDisabled(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	srv := New(":0", tr, nil, logger.Nop())
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestParseInterval(t *testing.T) {
	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default", "/ws", defaultInterval},
		{"interval", "/ws?interval=2s", 2 * time.Second},
		{"interval_ms", "/ws?interval_ms=1500", 1500 * time.Millisecond},
		{"too small", "/ws?interval=10ms", defaultInterval},
		{"too large", "/ws?interval=2h", defaultInterval},
		{"invalid", "/ws?interval=soon", defaultInterval},
		{"interval wins", "/ws?interval=3s&interval_ms=1000", 3 * time.Second},
		{"invalid interval falls back to ms", "/ws?interval=x&interval_ms=750", 750 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, tc.u, nil)
			if got := parseInterval(c); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWebSocketStream(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.SetMode(logic.ModeUsingCache)

	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = "interval_ms=500"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first wsEnvelope
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.Type != "status" || first.Data.Mode != "USING_CACHE" {
		t.Errorf("initial: got %s/%s, want status/USING_CACHE", first.Type, first.Data.Mode)
	}

	tr.SetMode(logic.ModeSafe)

	var next wsEnvelope
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read periodic: %v", err)
	}
	if next.Data.Mode != "SAFE_MODE" {
		t.Errorf("periodic: got %s, want SAFE_MODE", next.Data.Mode)
	}
}

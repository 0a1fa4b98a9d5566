package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/fridge-controller/internal/logic"
)

func TestSetModeIsExclusive(t *testing.T) {
	m := New()
	m.SetMode(logic.ModeSafe)

	for _, md := range modes {
		want := 0.0
		if md == logic.ModeSafe {
			want = 1
		}
		if got := testutil.ToFloat64(m.mode.WithLabelValues(string(md))); got != want {
			t.Errorf("mode %s: got %v, want %v", md, got, want)
		}
	}
}

func TestObserveTick(t *testing.T) {
	m := New()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	r := logic.Reading{TempC: 26.5, At: now.Add(-2 * time.Minute)}

	m.ObserveTick(logic.ModeNormal, logic.ActionTurnOn, &r, now, 0, false)
	m.ObserveTick(logic.ModeAwaitingData, "", nil, now, 30*time.Minute, true)

	if got := testutil.ToFloat64(m.ticks.WithLabelValues("TURN_ON")); got != 1 {
		t.Errorf("ticks TURN_ON: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.temperature); got != 26.5 {
		t.Errorf("temperature: got %v, want 26.5", got)
	}
	if got := testutil.ToFloat64(m.readingAge); got != 120 {
		t.Errorf("reading age: got %v, want 120", got)
	}
	if got := testutil.ToFloat64(m.outage); got != 1800 {
		t.Errorf("outage: got %v, want 1800", got)
	}
	if got := testutil.ToFloat64(m.fetchFailures); got != 1 {
		t.Errorf("fetch failures: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.mode.WithLabelValues("AWAITING_DATA")); got != 1 {
		t.Errorf("mode AWAITING_DATA: got %v, want 1", got)
	}
}

func TestObserveCommand(t *testing.T) {
	m := New()

	m.ObserveCommand(true, nil, 0)
	if got := testutil.ToFloat64(m.powerOn); got != 1 {
		t.Errorf("power_on: got %v, want 1", got)
	}

	m.ObserveCommand(false, errors.New("down"), 1)
	m.ObserveCommand(false, errors.New("down"), 2)
	if got := testutil.ToFloat64(m.powerOn); got != 1 {
		t.Errorf("power_on must not change on failure: got %v", got)
	}
	if got := testutil.ToFloat64(m.commandFailures); got != 2 {
		t.Errorf("command failures: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.consecutiveFailures); got != 2 {
		t.Errorf("consecutive: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("off", "error")); got != 2 {
		t.Errorf("commands off/error: got %v, want 2", got)
	}
}

func TestObserveAttempt(t *testing.T) {
	m := New()
	m.ObserveAttempt("fetch_temperature", errors.New("timeout"))
	m.ObserveAttempt("fetch_temperature", nil)

	if got := testutil.ToFloat64(m.attempts.WithLabelValues("fetch_temperature", "failure")); got != 1 {
		t.Errorf("failures: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("fetch_temperature", "success")); got != 1 {
		t.Errorf("successes: got %v, want 1", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.ObserveCommand(true, nil, 0)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(w.Body)
	for _, name := range []string{"fridge_power_on 1", "fridge_mode{mode=\"STARTING\"} 1", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition missing %q", name)
		}
	}
}

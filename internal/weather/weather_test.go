package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenWeatherMapFetch(t *testing.T) {
	var gotQuery map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/2.5/weather" {
			t.Errorf("path: got %q, want /data/2.5/weather", r.URL.Path)
		}
		gotQuery = map[string]string{
			"q":     r.URL.Query().Get("q"),
			"appid": r.URL.Query().Get("appid"),
			"units": r.URL.Query().Get("units"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Paris","main":{"temp":6.8,"humidity":81}}`))
	}))
	defer ts.Close()

	src := NewOpenWeatherMap(ts.URL, "test-key", "Paris,FR", time.Second)
	temp, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if temp != 6.8 {
		t.Errorf("temp: got %v, want 6.8", temp)
	}
	if gotQuery["q"] != "Paris,FR" {
		t.Errorf("q: got %q, want Paris,FR", gotQuery["q"])
	}
	if gotQuery["appid"] != "test-key" {
		t.Errorf("appid: got %q, want test-key", gotQuery["appid"])
	}
	if gotQuery["units"] != "metric" {
		t.Errorf("units: got %q, want metric", gotQuery["units"])
	}
}

func TestOpenWeatherMapNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	}))
	defer ts.Close()

	_, err := NewOpenWeatherMap(ts.URL, "k", "Nowhere", time.Second).Fetch(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrTransient) {
		t.Error("not found must not be classified as transient")
	}
}

func TestOpenWeatherMapTransientErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}},
		{"missing main", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"name":"Paris"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			_, err := NewOpenWeatherMap(ts.URL, "k", "Paris", time.Second).Fetch(context.Background())
			if !errors.Is(err, ErrTransient) {
				t.Errorf("expected ErrTransient, got %v", err)
			}
		})
	}
}

func TestOpenWeatherMapConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewOpenWeatherMap(url, "k", "Paris", time.Second).Fetch(context.Background())
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient, got %v", err)
	}
}

func TestOpenWeatherMapTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	_, err := NewOpenWeatherMap(ts.URL, "k", "Paris", 50*time.Millisecond).Fetch(context.Background())
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient on timeout, got %v", err)
	}
}

func TestNewOpenWeatherMapDefaults(t *testing.T) {
	src := NewOpenWeatherMap("", "k", "Paris", 0)
	if src.baseURL != DefaultBaseURL {
		t.Errorf("baseURL: got %q, want %q", src.baseURL, DefaultBaseURL)
	}
	if src.client.Timeout != defaultTimeout {
		t.Errorf("timeout: got %v, want %v", src.client.Timeout, defaultTimeout)
	}
}

func TestFakeSequence(t *testing.T) {
	boom := errors.New("boom")
	f := NewFake(Result{TempC: 1}, Result{Err: boom}, Result{TempC: 3})

	if v, err := f.Fetch(context.Background()); err != nil || v != 1 {
		t.Errorf("call 1: got (%v, %v)", v, err)
	}
	if _, err := f.Fetch(context.Background()); !errors.Is(err, boom) {
		t.Errorf("call 2: expected boom, got %v", err)
	}
	if v, _ := f.Fetch(context.Background()); v != 3 {
		t.Errorf("call 3: got %v, want 3", v)
	}
	// Last result repeats.
	if v, _ := f.Fetch(context.Background()); v != 3 {
		t.Errorf("call 4: got %v, want 3", v)
	}
	if f.Calls != 4 {
		t.Errorf("Calls: got %d, want 4", f.Calls)
	}

	f.Reset()
	if v, _ := f.Fetch(context.Background()); v != 1 {
		t.Errorf("after reset: got %v, want 1", v)
	}
}

func TestFakeNoResults(t *testing.T) {
	if _, err := NewFake().Fetch(context.Background()); err == nil {
		t.Error("expected error with no results")
	}
}

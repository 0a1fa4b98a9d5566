package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fridge-controller/internal/plug"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Mode          string       `json:"mode"`
	LastAction    string       `json:"last_action,omitempty"`
	LastTick      string       `json:"last_tick,omitempty"`
	Power         string       `json:"power"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	Outage        *OutageJSON  `json:"outage,omitempty"`
	Healthy       bool         `json:"healthy"`
	CommandErrors int          `json:"consecutive_command_failures"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Events        EventsStatus `json:"events"`
	Counts        CountsJSON   `json:"counts"`
	Config        ConfigJSON   `json:"config"`
}

// ReadingJSON is the last known outdoor temperature.
type ReadingJSON struct {
	TempC      float64 `json:"temp_c"`
	At         string  `json:"at"`
	AgeSeconds int64   `json:"age_seconds"`
	FromCache  bool    `json:"from_cache"`
}

// OutageJSON describes an ongoing temperature outage.
type OutageJSON struct {
	Since          string `json:"since"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

// EventsStatus reports event sink connection state.
type EventsStatus struct {
	Connected bool `json:"connected"`
}

// CountsJSON is the JSON representation of tick counts.
type CountsJSON struct {
	Ticks           int `json:"ticks"`
	TurnOn          int `json:"turn_on"`
	TurnOff         int `json:"turn_off"`
	Idle            int `json:"idle"`
	SafeMode        int `json:"safe_mode"`
	FetchFailures   int `json:"fetch_failures"`
	CommandFailures int `json:"command_failures"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	ThresholdC      float64 `json:"threshold_c"`
	DeltaC          float64 `json:"delta_c"`
	PollSeconds     int64   `json:"poll_seconds"`
	CacheTTLSeconds int64   `json:"cache_ttl_seconds"`
	OutageSeconds   int64   `json:"outage_limit_seconds"`
	Location        string  `json:"location"`
	Device          string  `json:"device"`
	HTTPAddr        string  `json:"http_addr"`
}

func seconds(d time.Duration) int64 {
	return int64(d.Truncate(time.Second).Seconds())
}

// Build converts a snapshot into its JSON shape.
func Build(snap Snapshot) StatusInner {
	power := "UNKNOWN"
	if snap.PowerKnown {
		power = plug.StateString(snap.PowerOn)
	}

	inner := StatusInner{
		Mode:          string(snap.Mode),
		LastAction:    string(snap.LastAction),
		Power:         power,
		Healthy:       snap.Mode != "" && snap.ConsecutiveCommandFailures == 0,
		CommandErrors: snap.ConsecutiveCommandFailures,
		UptimeSeconds: seconds(snap.Uptime()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Events:        EventsStatus{Connected: snap.EventsConnected},
		Counts: CountsJSON{
			Ticks:           snap.Counts.Ticks,
			TurnOn:          snap.Counts.TurnOn,
			TurnOff:         snap.Counts.TurnOff,
			Idle:            snap.Counts.Idle,
			SafeMode:        snap.Counts.SafeMode,
			FetchFailures:   snap.Counts.FetchFailures,
			CommandFailures: snap.Counts.CommandFailures,
		},
		Config: ConfigJSON{
			ThresholdC:      snap.Config.ThresholdC,
			DeltaC:          snap.Config.DeltaC,
			PollSeconds:     seconds(snap.Config.PollInterval),
			CacheTTLSeconds: seconds(snap.Config.CacheTTL),
			OutageSeconds:   seconds(snap.Config.OutageLimit),
			Location:        snap.Config.Location,
			Device:          snap.Config.Device,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}
	if !snap.LastTick.IsZero() {
		inner.LastTick = snap.LastTick.UTC().Format(time.RFC3339)
	}
	if snap.HasReading {
		inner.Reading = &ReadingJSON{
			TempC:      snap.Reading.TempC,
			At:         snap.Reading.At.UTC().Format(time.RFC3339),
			AgeSeconds: seconds(snap.ReadingAge()),
			FromCache:  snap.FromCache,
		}
	}
	if !snap.OutageSince.IsZero() {
		inner.Outage = &OutageJSON{
			Since:          snap.OutageSince.UTC().Format(time.RFC3339),
			ElapsedSeconds: seconds(snap.Outage()),
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Build(snap)}, "", "  ")
	return data
}

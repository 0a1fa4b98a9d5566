// Package config loads controller settings from an optional YAML file and
// FRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sweeney/fridge-controller/internal/retry"
)

// EnvPrefix namespaces environment overrides, e.g. FRIDGE_THRESHOLD_C.
const EnvPrefix = "FRIDGE"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Device kinds.
const (
	DeviceMQTT = "mqtt"
	DeviceGPIO = "gpio"
)

// Weather providers.
const (
	ProviderOpenWeatherMap = "openweathermap"
	ProviderFake           = "fake"
)

type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Base        time.Duration `mapstructure:"base"`
	MinWait     time.Duration `mapstructure:"min_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
}

// Policy converts to the retry package's policy.
func (r Retry) Policy() retry.Policy {
	return retry.Policy{MaxAttempts: r.MaxAttempts, Base: r.Base, MinWait: r.MinWait, MaxWait: r.MaxWait}
}

type Weather struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	Location string        `mapstructure:"location"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// FakeTempC is the constant reading served by the fake provider.
	FakeTempC float64 `mapstructure:"fake_temp_c"`
}

type Device struct {
	Kind      string        `mapstructure:"kind"`
	Broker    string        `mapstructure:"broker"`
	Topic     string        `mapstructure:"topic"`
	ClientID  string        `mapstructure:"client_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
	GPIOChip  string        `mapstructure:"gpio_chip"`
	GPIOLine  int           `mapstructure:"gpio_line"`
	ActiveLow bool          `mapstructure:"active_low"`
}

type Events struct {
	MQTTBroker   string        `mapstructure:"mqtt_broker"`
	MQTTTopic    string        `mapstructure:"mqtt_topic"`
	KafkaBrokers []string      `mapstructure:"kafka_brokers"`
	KafkaTopic   string        `mapstructure:"kafka_topic"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
	// Ticks publishes a TICK event every iteration; off by default.
	Ticks bool `mapstructure:"ticks"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Config is the full controller configuration.
type Config struct {
	ThresholdC   float64       `mapstructure:"threshold_c"`
	DeltaC       float64       `mapstructure:"delta_c"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	// OutageLimit defaults to CacheTTL when unset.
	OutageLimit time.Duration `mapstructure:"outage_limit"`

	Retry   Retry   `mapstructure:"retry"`
	Weather Weather `mapstructure:"weather"`
	Device  Device  `mapstructure:"device"`
	Events  Events  `mapstructure:"events"`
	HTTP    HTTP    `mapstructure:"http"`
	Log     Log     `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("threshold_c", 5.0)
	v.SetDefault("delta_c", 2.0)
	v.SetDefault("poll_interval", 10*time.Minute)
	v.SetDefault("cache_ttl", 3*time.Hour)
	v.SetDefault("outage_limit", 0)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base", 2*time.Second)
	v.SetDefault("retry.min_wait", 2*time.Second)
	v.SetDefault("retry.max_wait", time.Minute)

	v.SetDefault("weather.provider", ProviderOpenWeatherMap)
	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.location", "")
	v.SetDefault("weather.base_url", "")
	v.SetDefault("weather.timeout", 10*time.Second)
	v.SetDefault("weather.fake_temp_c", 0.0)

	v.SetDefault("device.kind", DeviceMQTT)
	v.SetDefault("device.broker", "tcp://localhost:1883")
	v.SetDefault("device.topic", "fridge")
	v.SetDefault("device.client_id", "fridge-controller-plug")
	v.SetDefault("device.timeout", 5*time.Second)
	v.SetDefault("device.gpio_chip", "gpiochip0")
	v.SetDefault("device.gpio_line", 17)
	v.SetDefault("device.active_low", false)

	v.SetDefault("events.mqtt_broker", "")
	v.SetDefault("events.mqtt_topic", "")
	v.SetDefault("events.kafka_brokers", []string{})
	v.SetDefault("events.kafka_topic", "")
	v.SetDefault("events.heartbeat", 15*time.Minute)
	v.SetDefault("events.ticks", false)

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// durationHook accepts Go duration strings ("90s", "1h30m") and bare
// numbers, which are taken as seconds.
func durationHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Duration(0), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(f * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", s, err)
		}
		return d, nil
	}
	return data, nil
}

// Load reads defaults, then the YAML file at path (if non-empty), then
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook,
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.OutageLimit == 0 {
		cfg.OutageLimit = cfg.CacheTTL
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every configuration problem found. Each wraps ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	if c.DeltaC <= 0 {
		add("delta_c must be > 0, got %v", c.DeltaC)
	}
	if c.PollInterval <= 0 {
		add("poll_interval must be > 0, got %v", c.PollInterval)
	}
	if c.CacheTTL <= 0 {
		add("cache_ttl must be > 0, got %v", c.CacheTTL)
	}
	if c.OutageLimit <= 0 {
		add("outage_limit must be > 0, got %v", c.OutageLimit)
	}
	if err := c.Retry.Policy().Validate(); err != nil {
		add("retry: %v", err)
	}

	switch c.Weather.Provider {
	case ProviderOpenWeatherMap:
		if c.Weather.APIKey == "" {
			add("weather.api_key is required for %s", ProviderOpenWeatherMap)
		}
		if strings.TrimSpace(c.Weather.Location) == "" {
			add("weather.location is required for %s", ProviderOpenWeatherMap)
		}
	case ProviderFake:
	default:
		add("unknown weather.provider %q", c.Weather.Provider)
	}

	switch c.Device.Kind {
	case DeviceMQTT:
		if c.Device.Broker == "" || c.Device.Topic == "" {
			add("device.broker and device.topic are required for %s", DeviceMQTT)
		}
	case DeviceGPIO:
		if c.Device.GPIOChip == "" || c.Device.GPIOLine < 0 {
			add("device.gpio_chip and a non-negative device.gpio_line are required for %s", DeviceGPIO)
		}
	default:
		add("unknown device.kind %q", c.Device.Kind)
	}

	if c.Events.Heartbeat < 0 {
		add("events.heartbeat must not be negative, got %v", c.Events.Heartbeat)
	}

	return errors.Join(errs...)
}

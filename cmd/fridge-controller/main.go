// Command fridge-controller switches a fridge's smart plug on and off
// according to the outdoor temperature.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/fridge-controller/internal/config"
	"github.com/sweeney/fridge-controller/internal/controller"
	"github.com/sweeney/fridge-controller/internal/events"
	"github.com/sweeney/fridge-controller/internal/kafka"
	"github.com/sweeney/fridge-controller/internal/logger"
	"github.com/sweeney/fridge-controller/internal/logic"
	"github.com/sweeney/fridge-controller/internal/metrics"
	"github.com/sweeney/fridge-controller/internal/mqtt"
	"github.com/sweeney/fridge-controller/internal/plug"
	"github.com/sweeney/fridge-controller/internal/status"
	"github.com/sweeney/fridge-controller/internal/weather"
	"github.com/sweeney/fridge-controller/internal/web"
)

// Shutdown reasons carried on the SHUTDOWN event.
const (
	reasonSIGINT      = "SIGINT"
	reasonSIGTERM     = "SIGTERM"
	reasonBootFailure = "BOOT_FAILURE"
	reasonStopped     = "STOPPED"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (FRIDGE_* env vars override it)")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")

	flag.Parse()

	if err := run(*configPath, *printConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath string, printConfig bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if printConfig {
		out, _ := json.MarshalIndent(status.Build(tracker.Snapshot()).Config, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer lg.Sync()

	src := newSource(cfg.Weather)
	dev := newDevice(cfg.Device)
	defer dev.Close()

	pub, err := newPublisher(cfg, lg)
	if err != nil {
		return err
	}
	defer pub.Close()

	m := metrics.New()

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, m.Handler(), lg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Errorw("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		lg.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	ctrl := controller.New(settings(cfg), src, dev,
		controller.WithPublisher(pub),
		controller.WithTracker(tracker),
		controller.WithMetrics(m),
		controller.WithLogger(lg.Named("controller")),
	)

	lg.Infow("started",
		"weather", cfg.Weather.Provider,
		"location", cfg.Weather.Location,
		"device", cfg.Device.Kind,
		"threshold_c", cfg.ThresholdC,
		"delta_c", cfg.DeltaC,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(context.Background(), ctrl, pub, tracker, time.Now, sigCh, lg)
}

// runner is the part of the controller runLoop drives.
type runner interface {
	Run(ctx context.Context) error
	Mode() logic.Mode
}

// runLoop publishes STARTUP, runs the controller until a signal arrives or
// boot fails, and publishes SHUTDOWN with the reason.
func runLoop(parent context.Context, ctrl runner, pub events.Publisher, tracker *status.Tracker, now func() time.Time, sig <-chan os.Signal, lg *logger.Logger) error {
	startup := events.New(events.TypeStartup, now())
	startup.Mode = ctrl.Mode()
	startup.Retained = true
	if err := pub.Publish(startup); err != nil {
		lg.Warnw("failed to publish startup event", "err", err)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	var (
		runErr error
		reason = reasonStopped
	)
	select {
	case s := <-sig:
		reason = signalName(s)
		lg.Infow("received signal, shutting down", "signal", reason)
		cancel()
		runErr = <-done
	case runErr = <-done:
	}

	shutdown := events.New(events.TypeShutdown, now())
	shutdown.Mode = ctrl.Mode()
	shutdown.Reason = reason
	shutdown.Retained = true
	if runErr != nil {
		shutdown.Reason = reasonBootFailure
		shutdown.Error = runErr.Error()
	}
	if conn, ok := pub.(events.ConnectionStatus); ok && tracker != nil {
		tracker.SetEventsConnected(conn.IsConnected())
	}
	if err := pub.Publish(shutdown); err != nil {
		lg.Warnw("failed to publish shutdown event", "err", err)
	}
	return runErr
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return reasonSIGINT
	case syscall.SIGTERM:
		return reasonSIGTERM
	}
	return "UNKNOWN"
}

func settings(cfg config.Config) controller.Settings {
	return controller.Settings{
		Thresholds:   logic.Thresholds{ThresholdC: cfg.ThresholdC, DeltaC: cfg.DeltaC},
		PollInterval: cfg.PollInterval,
		CacheTTL:     cfg.CacheTTL,
		OutageLimit:  cfg.OutageLimit,
		Retry:        cfg.Retry.Policy(),
		Heartbeat:    cfg.Events.Heartbeat,
		PublishTicks: cfg.Events.Ticks,
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		ThresholdC:   cfg.ThresholdC,
		DeltaC:       cfg.DeltaC,
		PollInterval: cfg.PollInterval,
		CacheTTL:     cfg.CacheTTL,
		OutageLimit:  cfg.OutageLimit,
		Location:     cfg.Weather.Location,
		Device:       cfg.Device.Kind,
		HTTPAddr:     cfg.HTTP.Addr,
	}
}

func newSource(w config.Weather) weather.Source {
	if w.Provider == config.ProviderFake {
		return weather.NewFake(weather.Result{TempC: w.FakeTempC})
	}
	return weather.NewOpenWeatherMap(w.BaseURL, w.APIKey, w.Location, w.Timeout)
}

func newDevice(d config.Device) plug.Device {
	if d.Kind == config.DeviceGPIO {
		return plug.NewGPIORelay(d.GPIOChip, d.GPIOLine, d.ActiveLow)
	}
	return plug.NewMQTTPlug(d.Broker, d.Topic, d.ClientID, d.Timeout)
}

// newPublisher fans events out to every configured sink. With none
// configured, events are discarded.
func newPublisher(cfg config.Config, lg *logger.Logger) (events.Publisher, error) {
	var sinks events.Multi
	if cfg.Events.MQTTBroker != "" {
		clientID := "fridge-controller-" + uuid.NewString()[:8]
		p, err := mqtt.NewPublisher(cfg.Events.MQTTBroker, clientID, cfg.Events.MQTTTopic, lg)
		if err != nil {
			return nil, fmt.Errorf("init mqtt events: %w", err)
		}
		sinks = append(sinks, p)
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		sinks = append(sinks, kafka.NewPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, "fridge-controller"))
	}
	if len(sinks) == 0 {
		return events.Nop{}, nil
	}
	return sinks, nil
}

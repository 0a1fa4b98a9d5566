// Package controller runs the fridge control loop: fetch the outdoor
// temperature, fall back to the cache or fail safe, decide, command the plug.
//
// The loop is single-threaded. Cache and escalation state belong to the
// Controller and are never shared; other goroutines see only status snapshots.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/fridge-controller/internal/events"
	"github.com/sweeney/fridge-controller/internal/logger"
	"github.com/sweeney/fridge-controller/internal/logic"
	"github.com/sweeney/fridge-controller/internal/metrics"
	"github.com/sweeney/fridge-controller/internal/plug"
	"github.com/sweeney/fridge-controller/internal/retry"
	"github.com/sweeney/fridge-controller/internal/status"
	"github.com/sweeney/fridge-controller/internal/weather"
)

const (
	opFetch   = "fetch_temperature"
	opCommand = "send_command"
)

// Settings are the control parameters.
type Settings struct {
	Thresholds   logic.Thresholds
	PollInterval time.Duration
	CacheTTL     time.Duration
	OutageLimit  time.Duration
	Retry        retry.Policy

	// Heartbeat is the HEARTBEAT event interval; 0 disables it.
	Heartbeat time.Duration
	// PublishTicks emits a TICK event every iteration.
	PublishTicks bool
}

// TickResult describes one loop iteration.
type TickResult struct {
	Mode logic.Mode
	// Action is empty when no command was selected (AWAITING_DATA).
	Action    logic.Action
	Temp      float64
	HasTemp   bool
	FromCache bool
	// Outage is how long no reading at all has been available.
	Outage time.Duration
	// Commanded is true when the outlet was actually switched.
	Commanded bool
	// Err is the swallowed command failure, if any.
	Err error
}

// Controller owns the loop state.
type Controller struct {
	cfg Settings
	src weather.Source
	dev plug.Device

	cache *logic.Cache
	esc   *logic.Escalation
	mode  logic.Mode

	cmdFailures   int
	notFound      int
	lastHeartbeat time.Time

	now     func() time.Time
	sleep   retry.Sleeper
	pub     events.Publisher
	tracker *status.Tracker
	metrics *metrics.Metrics
	log     *logger.Logger
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleep replaces the sleeper used for backoff and the poll interval.
func WithSleep(s retry.Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// WithPublisher sets the event sink.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.pub = p }
}

// WithTracker sets the status tracker the loop reports into.
func WithTracker(t *status.Tracker) Option {
	return func(c *Controller) { c.tracker = t }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates a controller in STARTING mode.
func New(cfg Settings, src weather.Source, dev plug.Device, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg,
		src:   src,
		dev:   dev,
		cache: logic.NewCache(cfg.CacheTTL),
		esc:   logic.NewEscalation(),
		mode:  logic.ModeStarting,
		now:   time.Now,
		sleep: retry.Sleep,
		pub:   events.Nop{},
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = status.NewTracker(c.now(), status.Config{})
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	return c
}

// Mode returns the current loop mode.
func (c *Controller) Mode() logic.Mode {
	return c.mode
}

// Boot puts the appliance into a known OFF state. It initializes the device
// once, then sends OFF through the retried command path. An exhausted OFF
// command is returned: the loop must not start with the outlet state unknown.
func (c *Controller) Boot(ctx context.Context) error {
	c.tracker.SetMode(logic.ModeStarting)
	c.metrics.SetMode(logic.ModeStarting)
	c.lastHeartbeat = c.now()

	c.log.Infow("boot: forcing appliance off")
	if err := c.dev.Initialize(ctx); err != nil {
		c.log.Warnw("initial device connection failed, retrying through command path", "err", err)
	}

	if _, err := c.command(ctx, false); err != nil {
		c.log.Errorw("boot: could not force appliance off", "err", err)
		return fmt.Errorf("boot: force off: %w", err)
	}
	c.log.Infow("boot: appliance is off")
	return nil
}

// Tick runs one iteration. Failures are absorbed into the result; a failed
// command is logged and reported in TickResult.Err.
func (c *Controller) Tick(ctx context.Context) TickResult {
	temp, err := c.fetch(ctx)
	now := c.now()

	if err != nil && ctx.Err() != nil {
		// Shutting down: leave state untouched.
		return TickResult{Mode: c.mode, Err: ctx.Err()}
	}

	var res TickResult
	if err == nil {
		c.notFound = 0
		c.cache.Record(logic.Reading{TempC: temp, At: now})
		c.esc.OnSuccess(now)
		res = TickResult{Mode: logic.ModeNormal, Action: c.cfg.Thresholds.Decide(temp), Temp: temp, HasTemp: true}
	} else {
		c.logFetchFailure(err)
		if r, ok := c.cache.Get(now); ok {
			res = TickResult{Mode: logic.ModeUsingCache, Action: c.cfg.Thresholds.Decide(r.TempC), Temp: r.TempC, HasTemp: true, FromCache: true}
		} else {
			elapsed := c.esc.OnFailure(now)
			res = TickResult{Mode: logic.ModeAwaitingData, Outage: elapsed}
			if logic.Exceeded(elapsed, c.cfg.OutageLimit) {
				res.Mode = logic.ModeSafe
				res.Action = logic.ActionTurnOn
			}
		}
	}

	c.setMode(res.Mode, now)
	c.log.Infow("tick",
		"mode", res.Mode,
		"action", res.Action,
		"temp_c", res.Temp,
		"from_cache", res.FromCache,
		"outage", res.Outage.String(),
	)

	switch res.Action {
	case logic.ActionTurnOn, logic.ActionTurnOff:
		res.Commanded, res.Err = c.command(ctx, res.Action == logic.ActionTurnOn)
		if res.Err != nil {
			c.log.Errorw("command failed, continuing", "action", res.Action, "consecutive_failures", c.cmdFailures, "err", res.Err)
		}
	case logic.ActionIdle:
		c.log.Debugw("within hysteresis band, leaving appliance as is", "temp_c", res.Temp, "lower_c", c.cfg.Thresholds.LowerC())
	}

	c.report(res, err != nil, now)
	return res
}

// Run boots and then ticks every PollInterval until ctx is cancelled.
// It returns the boot error, or nil once ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Boot(ctx); err != nil {
		return err
	}
	c.log.Infow("control loop started",
		"threshold_c", c.cfg.Thresholds.ThresholdC,
		"delta_c", c.cfg.Thresholds.DeltaC,
		"poll_interval", c.cfg.PollInterval.String(),
		"cache_ttl", c.cfg.CacheTTL.String(),
		"outage_limit", c.cfg.OutageLimit.String(),
	)

	for {
		c.Tick(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.heartbeat()
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil
		}
	}
}

func (c *Controller) fetch(ctx context.Context) (float64, error) {
	return retry.Do(ctx, c.cfg.Retry, opFetch, c.src.Fetch,
		retry.WithLogger(c.log),
		retry.WithSleep(c.sleep),
		retry.WithAttemptHook(func(_ int, err error) { c.metrics.ObserveAttempt(opFetch, err) }),
	)
}

// command drives the outlet to on. The current state is read first and an
// outlet already in the desired state is not switched. Retries re-initialize
// the device connection. It reports whether the outlet was switched.
func (c *Controller) command(ctx context.Context, on bool) (bool, error) {
	switched, err := retry.Do(ctx, c.cfg.Retry, opCommand, func(ctx context.Context) (bool, error) {
		current, err := c.dev.PowerState(ctx)
		if err != nil {
			return false, fmt.Errorf("read power state: %w", err)
		}
		if current == on {
			return false, nil
		}
		if err := c.dev.SetPower(ctx, on); err != nil {
			return false, fmt.Errorf("set power %s: %w", plug.StateString(on), err)
		}
		return true, nil
	},
		retry.WithBeforeRetry(c.dev.Initialize),
		retry.WithLogger(c.log),
		retry.WithSleep(c.sleep),
		retry.WithAttemptHook(func(_ int, err error) { c.metrics.ObserveAttempt(opCommand, err) }),
	)

	if err != nil {
		c.cmdFailures++
	} else {
		c.cmdFailures = 0
		if switched {
			c.log.Infow("appliance switched", "power", plug.StateString(on))
		} else {
			c.log.Infow("appliance already in desired state", "power", plug.StateString(on))
		}
	}
	c.tracker.RecordCommand(on, err)
	c.metrics.ObserveCommand(on, err, c.cmdFailures)

	e := events.New(events.TypeCommand, c.now())
	e.Mode = c.mode
	e.Power = plug.StateString(on)
	switch {
	case err != nil:
		e.Error = err.Error()
	case switched:
		e.Reason = "SWITCHED"
	default:
		e.Reason = "ALREADY_" + plug.StateString(on)
	}
	c.publish(e)

	return switched, err
}

func (c *Controller) logFetchFailure(err error) {
	if errors.Is(err, weather.ErrNotFound) {
		c.notFound++
		c.log.Errorw("temperature source cannot resolve the location, check weather.location",
			"consecutive", c.notFound, "err", err)
		return
	}
	c.notFound = 0
	c.log.Warnw("temperature fetch failed", "err", err)
}

func (c *Controller) setMode(m logic.Mode, now time.Time) {
	if m == c.mode {
		return
	}
	prev := c.mode
	c.mode = m
	c.log.Infow("mode_change", "from", prev, "to", m)

	e := events.New(events.TypeModeChange, now)
	e.PrevMode = prev
	e.Mode = m
	c.publish(e)
}

func (c *Controller) report(res TickResult, fetchFailed bool, now time.Time) {
	tick := status.Tick{
		At:          now,
		Mode:        res.Mode,
		Action:      res.Action,
		FromCache:   res.FromCache,
		FetchFailed: fetchFailed,
	}
	var reading *logic.Reading
	if r, ok := c.cache.Peek(); ok && res.HasTemp {
		tick.Reading = r
		tick.HasReading = true
		reading = &r
	}
	if since, pending := c.esc.Pending(); pending {
		tick.OutageSince = since
	}
	c.tracker.Update(tick)
	c.metrics.ObserveTick(res.Mode, res.Action, reading, now, res.Outage, fetchFailed)

	if cs, ok := c.pub.(events.ConnectionStatus); ok {
		c.tracker.SetEventsConnected(cs.IsConnected())
	}

	if c.cfg.PublishTicks {
		e := events.New(events.TypeTick, now)
		e.Mode = res.Mode
		e.Action = res.Action
		e.FromCache = res.FromCache
		if res.HasTemp {
			t := res.Temp
			e.TempC = &t
		}
		if res.Err != nil {
			e.Error = res.Err.Error()
		}
		c.publish(e)
	}
}

func (c *Controller) heartbeat() {
	if c.cfg.Heartbeat <= 0 {
		return
	}
	now := c.now()
	if now.Sub(c.lastHeartbeat) < c.cfg.Heartbeat {
		return
	}
	c.lastHeartbeat = now

	snap := c.tracker.Snapshot()
	c.log.Infow("heartbeat",
		"mode", snap.Mode,
		"uptime", snap.Uptime().Truncate(time.Second).String(),
		"ticks", snap.Counts.Ticks,
		"command_failures", snap.Counts.CommandFailures,
	)
	e := events.New(events.TypeHeartbeat, now)
	e.Mode = snap.Mode
	e.Action = snap.LastAction
	if snap.HasReading {
		t := snap.Reading.TempC
		e.TempC = &t
	}
	c.publish(e)
}

func (c *Controller) publish(e events.Event) {
	if err := c.pub.Publish(e); err != nil {
		c.log.Warnw("event publish failed", "event", strings.ToLower(string(e.Type)), "err", err)
	}
}

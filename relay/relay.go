// Package relay runs the sensor-weather-relay cycle forever:
// read local sensor, GET remote weather text, append local reading,
// POST aggregated payload to relay target, cool down, repeat.
// Any failure restarts the cycle after a fixed delay, nothing is fatal.
package relay

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/thermorelay/helpers"
	"github.com/temoto/thermorelay/log2"
)

const (
	DefaultShortDelay     = 1 * time.Second // attempt never got off the ground
	DefaultLongDelay      = 4 * time.Second // contact made, then failure
	DefaultSettleDelay    = 1 * time.Second
	DefaultCountdown      = 10
	DefaultCountdownTick  = 1 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultSensorTimeout  = 3 * time.Second
	DefaultNetwork        = "ip4"
)

type Stage int

const (
	StageReadSensor Stage = iota
	StageFetchWeather
	StageDrainWeather
	StageBuildPayload
	StageConnectRelay
	StageSendRelay
	StageDrainRelay
	StageCooldown
)

var stageNames = [...]string{
	StageReadSensor:   "read-sensor",
	StageFetchWeather: "fetch-weather",
	StageDrainWeather: "drain-weather",
	StageBuildPayload: "build-payload",
	StageConnectRelay: "connect-relay",
	StageSendRelay:    "send-relay",
	StageDrainRelay:   "drain-relay",
	StageCooldown:     "cooldown",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

type Reading struct {
	Celsius  float64
	Humidity float64
	Time     time.Time
}

func (r Reading) Line() string { return fmt.Sprintf("Local temperature is %.2fC", r.Celsius) }

type Sensor interface {
	Read(ctx context.Context) (Reading, error)
}

type SensorFunc func(ctx context.Context) (Reading, error)

func (f SensorFunc) Read(ctx context.Context) (Reading, error) { return f(ctx) }

// Indicator shows cycle activity, e.g. LED.
type Indicator interface {
	Set(on bool) error
}

type Config struct {
	Weather Endpoint
	Relay   Endpoint

	Network         string // ip4, ip6, ip
	ConnectTimeout  time.Duration
	ReceiveTimeout  time.Duration
	ReadLimit       int
	PayloadCapacity int
	SensorTimeout   time.Duration

	ShortDelay    time.Duration
	LongDelay     time.Duration
	SettleDelay   time.Duration
	Countdown     int
	CountdownTick time.Duration
}

func (c *Config) setDefaults() {
	if c.Weather.Name == "" {
		c.Weather.Name = "weather"
	}
	if c.Relay.Name == "" {
		c.Relay.Name = "relay"
	}
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.PayloadCapacity == 0 {
		c.PayloadCapacity = DefaultPayloadCapacity
	}
	if c.SensorTimeout == 0 {
		c.SensorTimeout = DefaultSensorTimeout
	}
	if c.ShortDelay == 0 {
		c.ShortDelay = DefaultShortDelay
	}
	if c.LongDelay == 0 {
		c.LongDelay = DefaultLongDelay
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Countdown == 0 {
		c.Countdown = DefaultCountdown
	}
	if c.CountdownTick == 0 {
		c.CountdownTick = DefaultCountdownTick
	}
}

type Options struct {
	Config
	Log       *log2.Log
	Sensor    Sensor
	Resolver  Resolver     // default net.DefaultResolver
	Dialer    Dialer       // default net.Dialer
	Alive     *alive.Alive // Stop() ends Run
	Indicator Indicator
	OnRelayed func(payload []byte, reading Reading)
	Sleep     func(ctx context.Context, d time.Duration) error
}

type Relay struct {
	opt     Options
	config  *Config
	log     *log2.Log
	alive   *alive.Alive
	payload *Payload
	stat    Stat
}

// Outcome of one cycle. Err==nil means cycle reached Cooldown.
type Outcome struct {
	Stage Stage
	Err   error
	Delay time.Duration
}

func New(opt Options) (*Relay, error) {
	if opt.Sensor == nil {
		return nil, errors.NotValidf("code error relay Sensor=nil")
	}
	opt.Config.setDefaults()
	if err := opt.Weather.validate(); err != nil {
		return nil, errors.NewNotValid(err, "config")
	}
	if err := opt.Relay.validate(); err != nil {
		return nil, errors.NewNotValid(err, "config")
	}
	switch opt.Network {
	case "ip", "ip4", "ip6":
	default:
		return nil, errors.NotValidf("config network=%s", opt.Network)
	}
	if opt.Resolver == nil {
		opt.Resolver = net.DefaultResolver
	}
	if opt.Dialer == nil {
		opt.Dialer = &net.Dialer{}
	}
	if opt.Alive == nil {
		opt.Alive = alive.NewAlive()
	}
	r := &Relay{
		opt:     opt,
		log:     opt.Log,
		alive:   opt.Alive,
		payload: NewPayload(opt.PayloadCapacity),
	}
	r.config = &r.opt.Config
	return r, nil
}

func (r *Relay) Alive() *alive.Alive { return r.alive }
func (r *Relay) Stat() *Stat         { return &r.stat }

// Run repeats cycles until Alive is stopped or ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if !r.alive.Add(1) {
		return helpers.ErrStopped
	}
	defer r.alive.Done()

	r.log.Infof("relay start %s -> %s", r.config.Weather, r.config.Relay)
	for r.alive.IsRunning() && ctx.Err() == nil {
		out := r.Cycle(ctx)
		var err error
		if out.Err != nil {
			err = r.sleep(ctx, out.Delay)
		} else {
			err = r.cooldown(ctx)
		}
		if err != nil {
			break
		}
	}
	r.log.Infof("relay stop stat=%s", &r.stat)
	return ctx.Err()
}

// Cycle executes stages in order ReadSensor..DrainRelay.
// Every session opened by the cycle is closed before return.
func (r *Relay) Cycle(ctx context.Context) Outcome {
	r.stat.Cycles.Add(1)
	r.payload.Reset()
	r.indicate(true)
	defer r.indicate(false)

	c := &cycle{}
	defer c.close()

	stage := StageReadSensor
	for stage != StageCooldown {
		next, err := r.step(ctx, c, stage)
		if err != nil {
			fault := FaultOf(err)
			if fault == FaultNone && (err == helpers.ErrStopped || ctx.Err() != nil) {
				return Outcome{Stage: stage, Err: err}
			}
			r.stat.registerFault(fault)
			delay := r.delayFor(fault)
			r.log.Errorf("stage=%s fault=%s delay=%s err=%v", stage, fault, delay, err)
			return Outcome{Stage: stage, Err: err, Delay: delay}
		}
		stage = next
	}
	return Outcome{Stage: StageCooldown}
}

type cycle struct {
	reading  Reading
	weather  *Session
	response []byte
	relay    *Session
}

func (c *cycle) close() {
	if c.weather != nil {
		_ = c.weather.Close()
	}
	if c.relay != nil {
		_ = c.relay.Close()
	}
}

func (r *Relay) step(ctx context.Context, c *cycle, stage Stage) (Stage, error) {
	switch stage {
	case StageReadSensor:
		return StageFetchWeather, r.readSensor(ctx, c)
	case StageFetchWeather:
		return StageDrainWeather, r.fetchWeather(ctx, c)
	case StageDrainWeather:
		return StageBuildPayload, r.drainWeather(c)
	case StageBuildPayload:
		return StageConnectRelay, r.buildPayload(c)
	case StageConnectRelay:
		return StageSendRelay, r.connectRelay(ctx, c)
	case StageSendRelay:
		return StageDrainRelay, r.sendRelay(c)
	case StageDrainRelay:
		return StageCooldown, r.drainRelay(c)
	}
	panic(fmt.Sprintf("code error relay unknown stage=%s", stage))
}

func (r *Relay) readSensor(ctx context.Context, c *cycle) error {
	reading, err := r.measure(ctx)
	if err != nil {
		return &Error{Fault: FaultSensor, Err: err}
	}
	c.reading = reading
	r.log.Infof("local temperature is %.2fC", reading.Celsius)
	return r.sleep(ctx, r.config.SettleDelay)
}

// measure bounds sensor call with SensorTimeout even if driver ignores ctx.
func (r *Relay) measure(ctx context.Context) (Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.SensorTimeout)
	defer cancel()
	type result struct {
		reading Reading
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		reading, err := r.opt.Sensor.Read(ctx)
		ch <- result{reading, err}
	}()
	select {
	case res := <-ch:
		if res.err == nil && res.reading.Time.IsZero() {
			res.reading.Time = time.Now()
		}
		return res.reading, res.err
	case <-ctx.Done():
		return Reading{}, errors.NewTimeout(ctx.Err(), "sensor read")
	}
}

// contact resolves and connects, fresh for every call.
func (r *Relay) contact(ctx context.Context, e Endpoint) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.ConnectTimeout)
	defer cancel()
	ra, err := Resolve(ctx, r.opt.Resolver, r.config.Network, e)
	if err != nil {
		return nil, err
	}
	r.log.Infof("%s: dns lookup ok addr=%s", e.Name, ra)
	s, err := Open(ctx, r.opt.Dialer, ra, &r.stat)
	if err != nil {
		return nil, err
	}
	s.SetReadLimit(r.config.ReadLimit)
	r.log.Infof("%s: connected remote=%s", e.Name, s.RemoteAddr())
	return s, nil
}

func (r *Relay) fetchWeather(ctx context.Context, c *cycle) error {
	s, err := r.contact(ctx, r.config.Weather)
	if err != nil {
		return err
	}
	c.weather = s
	if _, err = s.Send(WeatherRequest(r.config.Weather)); err != nil {
		return err
	}
	r.log.Infof("%s: send ok", r.config.Weather.Name)
	return nil
}

// partial weather response is acceptable, errors are only logged
func (r *Relay) drainWeather(c *cycle) error {
	b, err := c.weather.ReceiveUntilClose(r.config.ReceiveTimeout)
	_ = c.weather.Close()
	r.log.Infof("%s: done reading len=%d err=%v", r.config.Weather.Name, len(b), err)
	c.response = b
	return nil
}

// Response is copied verbatim, status line and headers included.
func (r *Relay) buildPayload(c *cycle) error {
	_, _ = r.payload.Write(c.response)
	_, _ = r.payload.WriteString(c.reading.Line())
	if dropped := r.payload.Dropped(); dropped > 0 {
		r.stat.Truncated.Add(int64(dropped))
		r.log.Debugf("payload truncated cap=%d dropped=%d", r.payload.Cap(), dropped)
	}
	return nil
}

func (r *Relay) connectRelay(ctx context.Context, c *cycle) error {
	s, err := r.contact(ctx, r.config.Relay)
	if err != nil {
		return err
	}
	c.relay = s
	return nil
}

func (r *Relay) sendRelay(c *cycle) error {
	if _, err := c.relay.Send(RelayRequest(r.config.Relay, r.payload.Bytes())); err != nil {
		return err
	}
	r.log.Infof("%s: send ok payload=%d", r.config.Relay.Name, r.payload.Len())
	r.stat.Relayed.Add(1)
	r.stat.LastSuccess.SetNow()
	if r.opt.OnRelayed != nil {
		payload := append([]byte(nil), r.payload.Bytes()...)
		r.opt.OnRelayed(payload, c.reading)
	}
	return nil
}

// relay response is echoed to log only
func (r *Relay) drainRelay(c *cycle) error {
	b, err := c.relay.ReceiveUntilClose(r.config.ReceiveTimeout)
	_ = c.relay.Close()
	r.log.Debugf("%s: response=%q", r.config.Relay.Name, b)
	r.log.Infof("%s: done reading len=%d err=%v", r.config.Relay.Name, len(b), err)
	return nil
}

func (r *Relay) cooldown(ctx context.Context) error {
	r.log.Infof("stat=%s", &r.stat)
	for i := r.config.Countdown; i >= 0; i-- {
		r.log.Infof("%d... ", i)
		if err := r.sleep(ctx, r.config.CountdownTick); err != nil {
			return err
		}
	}
	r.log.Infof("starting again")
	return nil
}

func (r *Relay) delayFor(f Fault) time.Duration {
	switch f {
	case FaultSensor, FaultResolve:
		return r.config.ShortDelay
	default:
		return r.config.LongDelay
	}
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if r.opt.Sleep != nil {
		return r.opt.Sleep(ctx, d)
	}
	return helpers.AliveSleep(ctx, r.alive, d)
}

func (r *Relay) indicate(on bool) {
	if r.opt.Indicator == nil {
		return
	}
	if err := r.opt.Indicator.Set(on); err != nil {
		r.log.Debugf("indicator err=%v", err)
	}
}

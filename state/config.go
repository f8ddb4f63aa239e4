package state

import (
	"path/filepath"
	"strconv"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/thermorelay/helpers"
	"github.com/temoto/thermorelay/log2"
	"github.com/temoto/thermorelay/relay"
	tele_config "github.com/temoto/thermorelay/tele/config"
)

const (
	DefaultWeatherHost = "wttr.in"
	DefaultWeatherPort = "80"
	DefaultWeatherPath = "/Santa_Cruz?m&format=3"
	DefaultRelayHost   = "10.0.0.169"
	DefaultRelayPort   = "8000"
	DefaultRelayPath   = "/"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Weather EndpointConfig `hcl:"weather"`
	Relay   EndpointConfig `hcl:"relay"`

	Network struct {
		Family            string `hcl:"family"` // ip4, ip6, ip
		ConnectTimeoutSec int    `hcl:"connect_timeout_sec"`
		ReceiveTimeoutSec int    `hcl:"receive_timeout_sec"`
		ReadLimit         int    `hcl:"read_limit"`
	} `hcl:"network"`
	Delay struct {
		ShortMs   int `hcl:"short_ms"`
		LongMs    int `hcl:"long_ms"`
		SettleMs  int `hcl:"settle_ms"`
		Countdown int `hcl:"countdown"`
		TickMs    int `hcl:"tick_ms"`
	} `hcl:"delay"`
	Payload struct {
		Capacity int `hcl:"capacity"`
	} `hcl:"payload"`

	Hardware struct {
		Sensor struct {
			Driver    string `hcl:"driver"`  // shtc3, mock
			Backend   string `hcl:"backend"` // dev, periph
			Bus       string `hcl:"bus"`
			Addr      int    `hcl:"addr"`
			TimeoutMs int    `hcl:"timeout_ms"`
			LogDebug  bool   `hcl:"log_debug"`
			// mock driver returns these in a loop
			MockCelsius []float64 `hcl:"mock_celsius"`
		} `hcl:"sensor"`
		Led struct {
			Enable    bool   `hcl:"enable"`
			Chip      string `hcl:"chip"`
			Pin       int    `hcl:"pin"`
			ActiveLow bool   `hcl:"active_low"`
		} `hcl:"led"`
	} `hcl:"hardware"`

	Tele     tele_config.Config `hcl:"tele"`
	LogDebug bool               `hcl:"log_debug"`

	_copy_guard sync.Mutex //nolint:unused
}

type EndpointConfig struct {
	Host      string `hcl:"host"`
	Port      string `hcl:"port"`
	Path      string `hcl:"path"`
	UserAgent string `hcl:"user_agent"`
}

func (ec EndpointConfig) endpoint(name string, def EndpointConfig) relay.Endpoint {
	e := relay.Endpoint{Name: name, Host: ec.Host, Port: ec.Port, Path: ec.Path, UserAgent: ec.UserAgent}
	if e.Host == "" {
		e.Host = def.Host
	}
	if e.Port == "" {
		e.Port = def.Port
	}
	if e.Path == "" {
		e.Path = def.Path
	}
	if e.UserAgent == "" {
		e.UserAgent = def.UserAgent
	}
	return e
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// RelayConfig applies defaults for zero values.
func (c *Config) RelayConfig() relay.Config {
	return relay.Config{
		Weather: c.Weather.endpoint("weather", EndpointConfig{
			Host: DefaultWeatherHost, Port: DefaultWeatherPort, Path: DefaultWeatherPath,
			UserAgent: relay.DefaultWeatherUserAgent,
		}),
		Relay: c.Relay.endpoint("relay", EndpointConfig{
			Host: DefaultRelayHost, Port: DefaultRelayPort, Path: DefaultRelayPath,
			UserAgent: relay.DefaultRelayUserAgent,
		}),
		Network:         c.Network.Family,
		ConnectTimeout:  helpers.IntSecondDefault(c.Network.ConnectTimeoutSec, relay.DefaultConnectTimeout),
		ReceiveTimeout:  helpers.IntSecondDefault(c.Network.ReceiveTimeoutSec, relay.DefaultReceiveTimeout),
		ReadLimit:       c.Network.ReadLimit,
		PayloadCapacity: c.Payload.Capacity,
		SensorTimeout:   helpers.IntMillisecondDefault(c.Hardware.Sensor.TimeoutMs, relay.DefaultSensorTimeout),
		ShortDelay:      helpers.IntMillisecondDefault(c.Delay.ShortMs, relay.DefaultShortDelay),
		LongDelay:       helpers.IntMillisecondDefault(c.Delay.LongMs, relay.DefaultLongDelay),
		SettleDelay:     helpers.IntMillisecondDefault(c.Delay.SettleMs, relay.DefaultSettleDelay),
		Countdown:       c.Delay.Countdown,
		CountdownTick:   helpers.IntMillisecondDefault(c.Delay.TickMs, relay.DefaultCountdownTick),
	}
}

func (c *Config) validate() error {
	errs := make([]error, 0)
	for _, x := range []struct {
		name string
		v    int
	}{
		{"network.connect_timeout_sec", c.Network.ConnectTimeoutSec},
		{"network.receive_timeout_sec", c.Network.ReceiveTimeoutSec},
		{"network.read_limit", c.Network.ReadLimit},
		{"payload.capacity", c.Payload.Capacity},
		{"delay.short_ms", c.Delay.ShortMs},
		{"delay.long_ms", c.Delay.LongMs},
		{"delay.settle_ms", c.Delay.SettleMs},
		{"delay.tick_ms", c.Delay.TickMs},
		{"hardware.sensor.timeout_ms", c.Hardware.Sensor.TimeoutMs},
	} {
		if x.v < 0 {
			errs = append(errs, errors.NotValidf("config: %s=%d", x.name, x.v))
		}
	}
	for _, p := range []string{c.Weather.Port, c.Relay.Port} {
		if n, err := strconv.Atoi(p); err == nil && (n <= 0 || n > 0xffff) {
			errs = append(errs, errors.NotValidf("config: port=%s", p))
		}
	}
	switch c.Network.Family {
	case "", "ip", "ip4", "ip6":
	default:
		errs = append(errs, errors.NotValidf("config: network.family=%s valid: ip4, ip6, ip", c.Network.Family))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
			return
		}
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

// Package config collects the bus and session settings from flags, an
// optional config file, FOURPROBE_* environment variables and, for
// session values still missing, operator prompts.
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

	"github.com/gotmc/fourprobe/lib/control"
	"github.com/gotmc/fourprobe/lib/measure"
)

// Variant names.
const (
	FourWire      = "four-wire"
	SourceCurrent = "source-current"
)

// Addresses are the GPIB primary addresses of the bench.
type Addresses struct {
	Thermometer   int `mapstructure:"thermometer"`
	Sourcemeter   int `mapstructure:"sourcemeter"`
	Nanovoltmeter int `mapstructure:"nanovoltmeter"`
}

// Bus configures the controller connection.
type Bus struct {
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"` // serial port
	GPIBTimeout int           `mapstructure:"gpib_timeout_ms"`
	AR488       bool          `mapstructure:"ar488"`
	Simulate    bool          `mapstructure:"simulate"`
	Trace       bool          `mapstructure:"trace"`
	Addr        Addresses     `mapstructure:"addr"`
}

// Session is fixed for the lifetime of a run.
type Session struct {
	File          string        `mapstructure:"file"`
	Wait          time.Duration `mapstructure:"wait"`
	Current       string        `mapstructure:"current"` // "auto" or amps
	Variant       string        `mapstructure:"variant"`
	OnFailure     string        `mapstructure:"on_failure"`
	Settle        time.Duration `mapstructure:"settle"`
	PolarityDelay time.Duration `mapstructure:"polarity_delay"`
	Channel       int           `mapstructure:"channel"`
}

// Log configures logging.
type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

// Config is everything a run needs.
type Config struct {
	Bus     Bus     `mapstructure:"bus"`
	Session Session `mapstructure:"session"`
	Log     Log     `mapstructure:"log"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bus.port", "")
	v.SetDefault("bus.baud", 115200)
	v.SetDefault("bus.read_timeout", 3*time.Second)
	v.SetDefault("bus.gpib_timeout_ms", 500)
	v.SetDefault("bus.ar488", false)
	v.SetDefault("bus.simulate", false)
	v.SetDefault("bus.trace", false)
	v.SetDefault("bus.addr.thermometer", 12)
	v.SetDefault("bus.addr.sourcemeter", 24)
	v.SetDefault("bus.addr.nanovoltmeter", 7)

	v.SetDefault("session.file", "")
	v.SetDefault("session.wait", time.Duration(0))
	v.SetDefault("session.current", "")
	v.SetDefault("session.variant", FourWire)
	v.SetDefault("session.on_failure", control.ZeroFill.String())
	v.SetDefault("session.settle", measure.DefaultSettle)
	v.SetDefault("session.polarity_delay", measure.DefaultPolarityDelay)
	v.SetDefault("session.channel", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
	v.SetDefault("log.file", "")
}

// Load reads the optional config file and the environment into a Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("FOURPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsHook,
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsHook decodes durations. A bare number ("30", 2.5) is seconds, as
// the prompt asks for; anything else must parse as a Go duration ("30s").
func secondsHook(f reflect.Type, t reflect.Type, data any) (any, error) {
	if t != durationType || f == durationType {
		return data, nil
	}
	var secs float64
	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.String:
		str := strings.TrimSpace(rv.String())
		n, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return time.ParseDuration(str)
		}
		secs = n
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		secs = float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		secs = float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		secs = rv.Float()
	default:
		return data, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate checks the bus settings.
func (b Bus) Validate() error {
	var errs []error
	if !b.Simulate && b.Baud <= 0 {
		errs = append(errs, fmt.Errorf("invalid baud rate %d", b.Baud))
	}
	if b.GPIBTimeout < 1 || b.GPIBTimeout > 3000 {
		errs = append(errs, fmt.Errorf("invalid gpib timeout %d ms (must be 1-3000)", b.GPIBTimeout))
	}
	for name, a := range map[string]int{
		"thermometer":   b.Addr.Thermometer,
		"sourcemeter":   b.Addr.Sourcemeter,
		"nanovoltmeter": b.Addr.Nanovoltmeter,
	} {
		if a < 0 || a > 30 {
			errs = append(errs, fmt.Errorf("invalid %s address %d (must be 0-30)", name, a))
		}
	}
	return errors.Join(errs...)
}

// Complete reports whether no prompt is needed for s.
func (s Session) Complete() bool {
	return s.File != "" && s.Wait > 0 && s.Current != ""
}

// Validate checks a completed session.
func (s Session) Validate() error {
	var errs []error
	if s.File == "" {
		errs = append(errs, errors.New("no data file name"))
	}
	if s.Wait <= 0 {
		errs = append(errs, fmt.Errorf("wait time must be positive, got %s", s.Wait))
	}
	cur, err := measure.ParseCurrent(s.Current)
	if err != nil {
		errs = append(errs, err)
	}
	switch s.Variant {
	case FourWire:
	case SourceCurrent:
		if err == nil && cur.Auto {
			errs = append(errs, errors.New("source-current needs a fixed current"))
		}
		if s.Channel != 1 && s.Channel != 2 {
			errs = append(errs, fmt.Errorf("invalid nanovoltmeter channel %d", s.Channel))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown variant %q (want %s or %s)", s.Variant, FourWire, SourceCurrent))
	}
	if _, err := control.ParseFailurePolicy(s.OnFailure); err != nil {
		errs = append(errs, err)
	}
	if s.Settle < 0 || s.PolarityDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	return errors.Join(errs...)
}

// CurrentSetting parses the session's current.
func (s Session) CurrentSetting() (measure.Current, error) {
	return measure.ParseCurrent(s.Current)
}

// AboveHighCurrent reports whether the session sources a fixed current
// above HighCurrent, whichever way it was set.
func (s Session) AboveHighCurrent() bool {
	c, err := s.CurrentSetting()
	return err == nil && !c.Auto && c.Amps > HighCurrent
}

// Policy parses the session's failure policy.
func (s Session) Policy() (control.FailurePolicy, error) {
	return control.ParseFailurePolicy(s.OnFailure)
}

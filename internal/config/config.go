// Package config resolves command line configuration from, in increasing
// precedence: defaults, a TOML file, a .env file, and LOOPVIZ_* environment
// variables. Flags are applied last, by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/loopviz/internal/logging"
	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every environment variable read.
const EnvPrefix = `LOOPVIZ_`

// Defaults for file names, searched in the working directory.
const (
	DefaultFile    = `loopviz.toml`
	DefaultEnvFile = `.env`
)

// Color modes.
const (
	ColorAuto   = `auto`
	ColorAlways = `always`
	ColorNever  = `never`
)

type (
	// Config is the resolved configuration.
	Config struct {
		// Initial lists template ids to start with, replacing the catalog's
		// initial list, if non-nil.
		Initial []string `toml:"initial"`

		// Scenario is a YAML scenario file to preload.
		Scenario string `toml:"scenario"`

		// Color is one of auto, always, or never.
		Color string `toml:"color"`

		// Listen is the address the web view binds.
		Listen string `toml:"listen"`

		Log logging.Config `toml:"log"`

		// TimerDelay is requested for every timeout and interval.
		TimerDelay Duration `toml:"timer_delay"`

		// Capacity is the maximum number of events.
		Capacity int `toml:"capacity"`

		// Width is the render width, 0 selecting the default.
		Width int `toml:"width"`

		// IntervalTicks bounds intervals, when verifying card code.
		IntervalTicks int `toml:"interval_ticks"`
	}

	// Duration is a time.Duration, parsed from strings like "10ms".
	Duration struct {
		time.Duration
	}

	// Sources locates the inputs of Load.
	Sources struct {
		// File is the TOML file. If empty, DefaultFile is used, if present.
		File string

		// EnvFile is the .env file. If empty, DefaultEnvFile is used, if
		// present.
		EnvFile string

		// LookupEnv defaults to os.LookupEnv.
		LookupEnv func(key string) (string, bool)
	}
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Color:         ColorAuto,
		Listen:        `127.0.0.1:8080`,
		Capacity:      10,
		IntervalTicks: 1,
		Log:           logging.Config{Level: `warning`},
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (x *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	x.Duration = d
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (x Duration) MarshalText() ([]byte, error) {
	return []byte(x.Duration.String()), nil
}

// Load resolves the configuration. Explicitly named files must exist.
func Load(src Sources) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(src.File); err != nil {
		return nil, err
	}

	dotenv, err := readEnvFile(src.EnvFile)
	if err != nil {
		return nil, err
	}
	lookup := src.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	// the real environment takes precedence over the .env file
	if err := cfg.ApplyEnv(func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (x *Config) loadFile(path string) error {
	explicit := path != ``
	if !explicit {
		path = DefaultFile
	}
	md, err := toml.DecodeFile(path, x)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf(`config: %s: %w`, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return fmt.Errorf(`config: %s: unknown keys: %v`, path, undecoded)
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ``
	if !explicit {
		path = DefaultEnvFile
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf(`config: %s: %w`, path, err)
	}
	return env, nil
}

// ApplyEnv overrides fields from LOOPVIZ_* variables.
func (x *Config) ApplyEnv(lookup func(key string) (string, bool)) error {
	get := func(name string) (string, bool) {
		return lookup(EnvPrefix + name)
	}
	parseInt := func(name string, dst *int) error {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf(`config: %s%s: %w`, EnvPrefix, name, err)
			}
			*dst = n
		}
		return nil
	}
	setString := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	if err := parseInt(`CAPACITY`, &x.Capacity); err != nil {
		return err
	}
	if err := parseInt(`WIDTH`, &x.Width); err != nil {
		return err
	}
	if err := parseInt(`INTERVAL_TICKS`, &x.IntervalTicks); err != nil {
		return err
	}
	if v, ok := get(`TIMER_DELAY`); ok {
		if err := x.TimerDelay.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
			return fmt.Errorf(`config: %sTIMER_DELAY: %w`, EnvPrefix, err)
		}
	}
	if v, ok := get(`INITIAL`); ok {
		x.Initial = SplitList(v)
	}
	setString(`SCENARIO`, &x.Scenario)
	setString(`COLOR`, &x.Color)
	setString(`LISTEN`, &x.Listen)
	setString(`LOG_LEVEL`, &x.Log.Level)
	setString(`LOG_FILE`, &x.Log.File)

	return nil
}

// Validate checks the configuration is usable.
func (x *Config) Validate() error {
	var errs []error
	if x.Capacity <= 0 {
		errs = append(errs, fmt.Errorf(`capacity must be positive, got %d`, x.Capacity))
	}
	if x.TimerDelay.Duration < 0 {
		errs = append(errs, fmt.Errorf(`timer delay must not be negative, got %s`, x.TimerDelay))
	}
	if x.Width < 0 {
		errs = append(errs, fmt.Errorf(`width must not be negative, got %d`, x.Width))
	}
	if x.IntervalTicks <= 0 {
		errs = append(errs, fmt.Errorf(`interval ticks must be positive, got %d`, x.IntervalTicks))
	}
	switch x.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		errs = append(errs, fmt.Errorf(`color must be auto, always, or never, got %q`, x.Color))
	}
	if _, err := logging.ParseLevel(x.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) != 0 {
		return fmt.Errorf(`config: %w`, errors.Join(errs...))
	}
	return nil
}

// SplitList splits a comma or whitespace separated list, dropping empty
// values.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if fields == nil {
		return []string{}
	}
	return fields
}

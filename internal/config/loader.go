// Package config loads the control plane's runtime Config through the
// teacher's layered convention: defaults, then an optional YAML file, then
// environment variables, then explicit overrides supplied by the caller
// (e.g. cobra flags in cmd/iddsd), each layer able to clobber the previous
// one and each write recorded in Metadata.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvLookup abstracts os.LookupEnv for testability.
type EnvLookup func(key string) (string, bool)

func DefaultEnvLookup(key string) (string, bool) { return os.LookupEnv(key) }

// Overrides are explicit, caller-supplied values that win over everything
// else. Only non-nil fields are applied.
type Overrides struct {
	HeartbeatDelay     *time.Duration
	PollTimePeriod     *time.Duration
	RetrieveBulkSize   *int
	NumThreads         *int
	MaxNumberWorkers   *int
	EventIntervalDelay *time.Duration
	NewPollPeriod      *time.Duration
	UpdatePollPeriod   *time.Duration
	MaxNewRetries      *int
	MaxUpdateRetries   *int
	DatabaseDSN        *string
	LogLevel           *string
	RESTAddr           *string
	PandaBaseURL       *string
	PandaAuthToken     *string
	PandaTimeout       *time.Duration
	RucioBaseURL       *string
	RucioAuthToken     *string
	RucioTimeout       *time.Duration
	CacheSize          *int
	RateLimitRPS       *float64
	RateLimitBurst     *int
}

type loadOptions struct {
	lookup     EnvLookup
	overrides  Overrides
	configPath string
	readFile   func(string) ([]byte, error)
}

// Option configures Load.
type Option func(*loadOptions)

func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.lookup = lookup }
}

func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) { o.overrides = overrides }
}

func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = reader }
}

// fileConfig mirrors Config but with pointer fields so the YAML decoder can
// tell "absent" from "zero value".
type fileConfig struct {
	HeartbeatDelay     *string  `yaml:"heartbeat_delay"`
	PollTimePeriod     *string  `yaml:"poll_time_period"`
	RetrieveBulkSize   *int     `yaml:"retrieve_bulk_size"`
	NumThreads         *int     `yaml:"num_threads"`
	MaxNumberWorkers   *int     `yaml:"max_number_workers"`
	EventIntervalDelay *string  `yaml:"event_interval_delay"`
	NewPollPeriod      *string  `yaml:"new_poll_period"`
	UpdatePollPeriod   *string  `yaml:"update_poll_period"`
	MaxNewRetries      *int     `yaml:"max_new_retries"`
	MaxUpdateRetries   *int     `yaml:"max_update_retries"`
	DatabaseDSN        *string  `yaml:"database_dsn"`
	LogLevel           *string  `yaml:"log_level"`
	RESTAddr           *string  `yaml:"rest_addr"`
	PandaBaseURL       *string  `yaml:"panda_base_url"`
	PandaAuthToken     *string  `yaml:"panda_auth_token"`
	PandaTimeout       *string  `yaml:"panda_timeout"`
	RucioBaseURL       *string  `yaml:"rucio_base_url"`
	RucioAuthToken     *string  `yaml:"rucio_auth_token"`
	RucioTimeout       *string  `yaml:"rucio_timeout"`
	CacheSize          *int     `yaml:"cache_size"`
	RateLimitRPS       *float64 `yaml:"rate_limit_rps"`
	RateLimitBurst     *int     `yaml:"rate_limit_burst"`
}

// Load resolves a Config through defaults < file < env < overrides, and
// returns the Metadata describing where each field ultimately came from.
func Load(opts ...Option) (Config, Metadata, error) {
	o := loadOptions{lookup: DefaultEnvLookup, readFile: os.ReadFile}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := defaultConfig()
	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	if o.configPath != "" {
		if err := applyFile(&cfg, &meta, o); err != nil {
			return Config{}, Metadata{}, fmt.Errorf("config: load file %q: %w", o.configPath, err)
		}
	}
	if err := applyEnv(&cfg, &meta, o); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("config: apply env: %w", err)
	}
	applyOverrides(&cfg, &meta, o.overrides)

	normalizeConfig(&cfg)
	return cfg, meta, nil
}

func applyFile(cfg *Config, meta *Metadata, o loadOptions) error {
	data, err := o.readFile(o.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	setDuration := func(field string, dst *time.Duration, src *string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = d
		meta.sources[field] = SourceFile
		return nil
	}
	setString := func(field string, dst *string, src *string) {
		if src == nil {
			return
		}
		*dst = *src
		meta.sources[field] = SourceFile
	}
	setInt := func(field string, dst *int, src *int) {
		if src == nil {
			return
		}
		*dst = *src
		meta.sources[field] = SourceFile
	}
	setFloat := func(field string, dst *float64, src *float64) {
		if src == nil {
			return
		}
		*dst = *src
		meta.sources[field] = SourceFile
	}

	if err := setDuration("heartbeat_delay", &cfg.HeartbeatDelay, fc.HeartbeatDelay); err != nil {
		return err
	}
	if err := setDuration("poll_time_period", &cfg.PollTimePeriod, fc.PollTimePeriod); err != nil {
		return err
	}
	if err := setDuration("event_interval_delay", &cfg.EventIntervalDelay, fc.EventIntervalDelay); err != nil {
		return err
	}
	if err := setDuration("new_poll_period", &cfg.NewPollPeriod, fc.NewPollPeriod); err != nil {
		return err
	}
	if err := setDuration("update_poll_period", &cfg.UpdatePollPeriod, fc.UpdatePollPeriod); err != nil {
		return err
	}
	if err := setDuration("panda_timeout", &cfg.PandaTimeout, fc.PandaTimeout); err != nil {
		return err
	}
	if err := setDuration("rucio_timeout", &cfg.RucioTimeout, fc.RucioTimeout); err != nil {
		return err
	}
	setInt("retrieve_bulk_size", &cfg.RetrieveBulkSize, fc.RetrieveBulkSize)
	setInt("num_threads", &cfg.NumThreads, fc.NumThreads)
	setInt("max_number_workers", &cfg.MaxNumberWorkers, fc.MaxNumberWorkers)
	setInt("max_new_retries", &cfg.MaxNewRetries, fc.MaxNewRetries)
	setInt("max_update_retries", &cfg.MaxUpdateRetries, fc.MaxUpdateRetries)
	setInt("cache_size", &cfg.CacheSize, fc.CacheSize)
	setInt("rate_limit_burst", &cfg.RateLimitBurst, fc.RateLimitBurst)
	setString("database_dsn", &cfg.DatabaseDSN, fc.DatabaseDSN)
	setString("log_level", &cfg.LogLevel, fc.LogLevel)
	setString("rest_addr", &cfg.RESTAddr, fc.RESTAddr)
	setString("panda_base_url", &cfg.PandaBaseURL, fc.PandaBaseURL)
	setString("panda_auth_token", &cfg.PandaAuthToken, fc.PandaAuthToken)
	setString("rucio_base_url", &cfg.RucioBaseURL, fc.RucioBaseURL)
	setString("rucio_auth_token", &cfg.RucioAuthToken, fc.RucioAuthToken)
	setFloat("rate_limit_rps", &cfg.RateLimitRPS, fc.RateLimitRPS)
	return nil
}

// envKey maps a field name to its IDDS_ prefixed environment variable, e.g.
// heartbeat_delay -> IDDS_HEARTBEAT_DELAY.
func envKey(field string) string {
	return "IDDS_" + strings.ToUpper(field)
}

func applyEnv(cfg *Config, meta *Metadata, o loadOptions) error {
	lookupDuration := func(field string, dst *time.Duration) error {
		v, ok := o.lookup(envKey(field))
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = d
		meta.sources[field] = SourceEnv
		return nil
	}
	lookupString := func(field string, dst *string) {
		if v, ok := o.lookup(envKey(field)); ok && v != "" {
			*dst = v
			meta.sources[field] = SourceEnv
		}
	}
	lookupInt := func(field string, dst *int) error {
		v, ok := o.lookup(envKey(field))
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = n
		meta.sources[field] = SourceEnv
		return nil
	}
	lookupFloat := func(field string, dst *float64) error {
		v, ok := o.lookup(envKey(field))
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = f
		meta.sources[field] = SourceEnv
		return nil
	}

	for _, step := range []func() error{
		func() error { return lookupDuration("heartbeat_delay", &cfg.HeartbeatDelay) },
		func() error { return lookupDuration("poll_time_period", &cfg.PollTimePeriod) },
		func() error { return lookupDuration("event_interval_delay", &cfg.EventIntervalDelay) },
		func() error { return lookupDuration("new_poll_period", &cfg.NewPollPeriod) },
		func() error { return lookupDuration("update_poll_period", &cfg.UpdatePollPeriod) },
		func() error { return lookupDuration("panda_timeout", &cfg.PandaTimeout) },
		func() error { return lookupDuration("rucio_timeout", &cfg.RucioTimeout) },
		func() error { return lookupInt("retrieve_bulk_size", &cfg.RetrieveBulkSize) },
		func() error { return lookupInt("num_threads", &cfg.NumThreads) },
		func() error { return lookupInt("max_number_workers", &cfg.MaxNumberWorkers) },
		func() error { return lookupInt("max_new_retries", &cfg.MaxNewRetries) },
		func() error { return lookupInt("max_update_retries", &cfg.MaxUpdateRetries) },
		func() error { return lookupInt("cache_size", &cfg.CacheSize) },
		func() error { return lookupInt("rate_limit_burst", &cfg.RateLimitBurst) },
		func() error { return lookupFloat("rate_limit_rps", &cfg.RateLimitRPS) },
	} {
		if err := step(); err != nil {
			return err
		}
	}
	lookupString("database_dsn", &cfg.DatabaseDSN)
	lookupString("log_level", &cfg.LogLevel)
	lookupString("rest_addr", &cfg.RESTAddr)
	lookupString("panda_base_url", &cfg.PandaBaseURL)
	lookupString("panda_auth_token", &cfg.PandaAuthToken)
	lookupString("rucio_base_url", &cfg.RucioBaseURL)
	lookupString("rucio_auth_token", &cfg.RucioAuthToken)
	return nil
}

func applyOverrides(cfg *Config, meta *Metadata, ov Overrides) {
	set := func(field string) { meta.sources[field] = SourceOverride }
	if ov.HeartbeatDelay != nil {
		cfg.HeartbeatDelay = *ov.HeartbeatDelay
		set("heartbeat_delay")
	}
	if ov.PollTimePeriod != nil {
		cfg.PollTimePeriod = *ov.PollTimePeriod
		set("poll_time_period")
	}
	if ov.RetrieveBulkSize != nil {
		cfg.RetrieveBulkSize = *ov.RetrieveBulkSize
		set("retrieve_bulk_size")
	}
	if ov.NumThreads != nil {
		cfg.NumThreads = *ov.NumThreads
		set("num_threads")
	}
	if ov.MaxNumberWorkers != nil {
		cfg.MaxNumberWorkers = *ov.MaxNumberWorkers
		set("max_number_workers")
	}
	if ov.EventIntervalDelay != nil {
		cfg.EventIntervalDelay = *ov.EventIntervalDelay
		set("event_interval_delay")
	}
	if ov.NewPollPeriod != nil {
		cfg.NewPollPeriod = *ov.NewPollPeriod
		set("new_poll_period")
	}
	if ov.UpdatePollPeriod != nil {
		cfg.UpdatePollPeriod = *ov.UpdatePollPeriod
		set("update_poll_period")
	}
	if ov.MaxNewRetries != nil {
		cfg.MaxNewRetries = *ov.MaxNewRetries
		set("max_new_retries")
	}
	if ov.MaxUpdateRetries != nil {
		cfg.MaxUpdateRetries = *ov.MaxUpdateRetries
		set("max_update_retries")
	}
	if ov.DatabaseDSN != nil {
		cfg.DatabaseDSN = *ov.DatabaseDSN
		set("database_dsn")
	}
	if ov.LogLevel != nil {
		cfg.LogLevel = *ov.LogLevel
		set("log_level")
	}
	if ov.RESTAddr != nil {
		cfg.RESTAddr = *ov.RESTAddr
		set("rest_addr")
	}
	if ov.PandaBaseURL != nil {
		cfg.PandaBaseURL = *ov.PandaBaseURL
		set("panda_base_url")
	}
	if ov.PandaAuthToken != nil {
		cfg.PandaAuthToken = *ov.PandaAuthToken
		set("panda_auth_token")
	}
	if ov.PandaTimeout != nil {
		cfg.PandaTimeout = *ov.PandaTimeout
		set("panda_timeout")
	}
	if ov.RucioBaseURL != nil {
		cfg.RucioBaseURL = *ov.RucioBaseURL
		set("rucio_base_url")
	}
	if ov.RucioAuthToken != nil {
		cfg.RucioAuthToken = *ov.RucioAuthToken
		set("rucio_auth_token")
	}
	if ov.RucioTimeout != nil {
		cfg.RucioTimeout = *ov.RucioTimeout
		set("rucio_timeout")
	}
	if ov.CacheSize != nil {
		cfg.CacheSize = *ov.CacheSize
		set("cache_size")
	}
	if ov.RateLimitRPS != nil {
		cfg.RateLimitRPS = *ov.RateLimitRPS
		set("rate_limit_rps")
	}
	if ov.RateLimitBurst != nil {
		cfg.RateLimitBurst = *ov.RateLimitBurst
		set("rate_limit_burst")
	}
}

// normalizeConfig clamps obviously-invalid combinations rather than failing
// Load outright, matching the teacher's forgiving normalizeRuntimeConfig.
func normalizeConfig(cfg *Config) {
	if cfg.NumThreads < 1 {
		cfg.NumThreads = DefaultNumThreads
	}
	if cfg.MaxNumberWorkers < cfg.NumThreads {
		cfg.MaxNumberWorkers = cfg.NumThreads
	}
	if cfg.RetrieveBulkSize < 1 {
		cfg.RetrieveBulkSize = DefaultRetrieveBulkSize
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
}

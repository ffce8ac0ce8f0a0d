package rt

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v7"
)

// fileConfig is the TOML-shaped configuration loaded from disk, before
// env-var overrides and before conversion to Options (whose duration
// fields are the ergonomic time.Duration, not TOML-friendly strings).
type fileConfig struct {
	MaxCPUThreads         int    `toml:"max_cpu_threads" env:"CONCUR_MAX_CPU_THREADS"`
	MaxCPUIdleTime        string `toml:"max_cpu_idle_time" env:"CONCUR_MAX_CPU_IDLE_TIME"`
	MaxBackgroundThreads  int    `toml:"max_background_threads" env:"CONCUR_MAX_BACKGROUND_THREADS"`
	MaxBackgroundIdleTime string `toml:"max_background_idle_time" env:"CONCUR_MAX_BACKGROUND_IDLE_TIME"`
	CancellationMessage   string `toml:"cancellation_message" env:"CONCUR_CANCELLATION_MESSAGE"`
}

// LoadOptions reads Options from a TOML file at path, then applies any
// CONCUR_* environment variable overrides on top, file-then-env
// precedence.
func LoadOptions(path string) (Options, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Options{}, fmt.Errorf("concur/rt: decoding %s: %w", path, err)
	}
	if err := env.Parse(&fc); err != nil {
		return Options{}, fmt.Errorf("concur/rt: applying environment overrides: %w", err)
	}
	return fc.toOptions()
}

func (fc fileConfig) toOptions() (Options, error) {
	opts := Options{
		MaxCPUThreads:        fc.MaxCPUThreads,
		MaxBackgroundThreads: fc.MaxBackgroundThreads,
		CancellationMessage:  fc.CancellationMessage,
	}
	var err error
	if opts.MaxCPUIdleTime, err = parseDuration(fc.MaxCPUIdleTime); err != nil {
		return Options{}, fmt.Errorf("concur/rt: max_cpu_idle_time: %w", err)
	}
	if opts.MaxBackgroundIdleTime, err = parseDuration(fc.MaxBackgroundIdleTime); err != nil {
		return Options{}, fmt.Errorf("concur/rt: max_background_idle_time: %w", err)
	}
	return opts, opts.Validate()
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

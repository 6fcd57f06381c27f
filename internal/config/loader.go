package config

import (
	"os"
)

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	overrides  Overrides
	configPath string
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithConfigPath reads configuration from a specific YAML file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// AliasEnvLookup wraps an EnvLookup with additional alias keys.
func AliasEnvLookup(base EnvLookup, aliases map[string][]string) EnvLookup {
	if base == nil {
		base = DefaultEnvLookup
	}
	return func(key string) (string, bool) {
		if value, ok := base(key); ok && value != "" {
			return value, true
		}
		for _, alias := range aliases[key] {
			if value, ok := base(alias); ok && value != "" {
				return value, true
			}
		}
		return "", false
	}
}

package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix      = "AUTOTRAIN_"
	// EnvConfigPath names the variable holding the YAML file path.
	EnvConfigPath  = envPrefix + "CONFIG"
	defaultEnvFile = ".env"
)

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	path    string
	envFile string
}

// WithFile reads path instead of the file named by AUTOTRAIN_CONFIG.
func WithFile(path string) Option {
	return func(o *loadOptions) { o.path = path }
}

// WithEnvFile reads variables from path instead of .env. Missing files are
// ignored; variables already set in the process win.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) from WithFile or AUTOTRAIN_CONFIG
//  3. env (prefix AUTOTRAIN_, "__" separates nested keys), including .env
func Load(ctx context.Context, opts ...Option) (*Config, error) {
	o := loadOptions{envFile: defaultEnvFile}
	for _, opt := range opts {
		opt(&o)
	}

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, o.envFile, err)
		}
	}

	base := New(ctx)
	k := koanf.New(".")

	path := o.path
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// AUTOTRAIN_SERVE__ADDR -> serve.addr, AUTOTRAIN_LOG_LEVEL -> log_level.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

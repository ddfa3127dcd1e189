package markup

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ----------------------------- Configuration --------------------------------

// EnvPrefix prefixes environment overrides, e.g. MARKUP_CACHE_MAX_SIZE.
const EnvPrefix = "MARKUP_"

// Config drives the cache, the engine and the command line tool.
type Config struct {
	CacheMaxSize  int           `koanf:"cache_max_size"`
	LogLevel      string        `koanf:"log_level"`
	Extension     string        `koanf:"extension"`
	Watch         bool          `koanf:"watch"`
	WatchDebounce time.Duration `koanf:"watch_debounce"`
}

func DefaultConfig() *Config {
	return &Config{
		CacheMaxSize:  DefaultCacheSize,
		LogLevel:      "warn",
		Extension:     ".mu",
		Watch:         false,
		WatchDebounce: 100 * time.Millisecond,
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.CacheMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("cache_max_size must be positive, got %d", c.CacheMaxSize))
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if !strings.HasPrefix(c.Extension, ".") {
		errs = append(errs, fmt.Errorf("extension must start with a dot, got %q", c.Extension))
	}
	if c.WatchDebounce < 0 {
		errs = append(errs, errors.New("watch_debounce must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadConfig layers defaults, the optional file at path (TOML or YAML by
// extension) and MARKUP_* environment variables, then validates the result.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	d := DefaultConfig()
	defaults := map[string]any{
		"cache_max_size": d.CacheMaxSize,
		"log_level":      d.LogLevel,
		"extension":      d.Extension,
		"watch":          d.Watch,
		"watch_debounce": d.WatchDebounce.String(),
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			parser = toml.Parser()
		case ".yaml", ".yml":
			parser = yaml.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	// 3. Environment
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Unmarshal
	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

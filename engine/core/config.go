package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultFramesInFlight = 3
	MaxFramesInFlight     = 8
)

type RendererConfig struct {
	// Number of frame slots the CPU may record ahead of the GPU.
	FramesInFlight int    `toml:"frames_in_flight"`
	Width          uint32 `toml:"width"`
	Height         uint32 `toml:"height"`
	// Debug halves generated cube map resolution and enables extra validation logs.
	Debug bool `toml:"debug"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type AssetsConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

type CubemapConfig struct {
	// 0 means one worker per available CPU.
	Workers        int  `toml:"workers"`
	HalfResolution bool `toml:"half_resolution"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type Config struct {
	Name     string         `toml:"name"`
	Renderer RendererConfig `toml:"renderer"`
	Logging  LoggingConfig  `toml:"logging"`
	Assets   AssetsConfig   `toml:"assets"`
	Cubemap  CubemapConfig  `toml:"cubemap"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

func DefaultConfig() *Config {
	return &Config{
		Name: "Anima",
		Renderer: RendererConfig{
			FramesInFlight: DefaultFramesInFlight,
			Width:          1280,
			Height:         720,
		},
		Logging: LoggingConfig{Level: "info"},
		Assets:  AssetsConfig{Dir: "assets"},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err := fmt.Errorf("failed to read config %s: %w", path, err)
		LogError("%s", err)
		return nil, err
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		err := fmt.Errorf("%w: %s", ErrInvalidConfig, err)
		LogError("%s", err)
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > MaxFramesInFlight {
		return fmt.Errorf("%w: frames_in_flight must be in [1, %d], got %d", ErrInvalidConfig, MaxFramesInFlight, c.Renderer.FramesInFlight)
	}
	if c.Renderer.Width == 0 || c.Renderer.Height == 0 {
		return fmt.Errorf("%w: render size must be non-zero, got %dx%d", ErrInvalidConfig, c.Renderer.Width, c.Renderer.Height)
	}
	if c.Cubemap.Workers < 0 {
		return fmt.Errorf("%w: cubemap workers must not be negative", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %q: %s", ErrInvalidConfig, c.Logging.Level, err)
	}
	return nil
}

// LogLevel returns the parsed logging level; Validate guarantees it parses.
func (c *Config) LogLevel() LogLevel {
	lvl, _ := ParseLogLevel(c.Logging.Level)
	return lvl
}

func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

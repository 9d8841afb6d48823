// ABOUTME: Runtime configuration loaded through viper
// ABOUTME: Defaults, optional config file, and a typed snapshot struct
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is a typed snapshot of the viper state taken at startup. Components
// receive values from here; nothing reads viper after Load returns.
type Config struct {
	ListenPort     int           `mapstructure:"listen_port"`
	StreamName     string        `mapstructure:"stream_name"`
	CaptureDevice  string        `mapstructure:"capture_device"`
	SampleRate     int           `mapstructure:"sample_rate"`
	Channels       int           `mapstructure:"channels"`
	BufferSeconds  int           `mapstructure:"buffer_seconds"`
	SSDPInterval   time.Duration `mapstructure:"ssdp_interval"`
	SSDPWindow     time.Duration `mapstructure:"ssdp_window"`
	ControlTimeout time.Duration `mapstructure:"control_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	LogLevel       string        `mapstructure:"log_level"`
}

// SetDefaults installs the default value for every key.
func SetDefaults() {
	viper.SetDefault("listen_port", 5901)
	viper.SetDefault("stream_name", "hearcast")
	viper.SetDefault("capture_device", "") // system default device
	viper.SetDefault("sample_rate", 44100)
	viper.SetDefault("channels", 2)
	viper.SetDefault("buffer_seconds", 4)
	viper.SetDefault("ssdp_interval", 60*time.Second)
	viper.SetDefault("ssdp_window", 4*time.Second)
	viper.SetDefault("control_timeout", 5*time.Second)
	viper.SetDefault("poll_interval", 5*time.Second)
	viper.SetDefault("log_level", "info")
}

// Load reads the optional config file and returns the snapshot. A missing
// file is fine; a malformed one is not.
func Load(path string) (*Config, error) {
	SetDefaults()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d out of range", c.ListenPort)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", c.Channels)
	}
	if c.BufferSeconds < 1 {
		return fmt.Errorf("buffer_seconds must be at least 1, got %d", c.BufferSeconds)
	}
	return nil
}

package config

import (
	"fmt"
	"time"

	"cellenum/pkg/core"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBindings maps config keys to the CLI flags that override them.
var flagBindings = map[string]string{
	"endpoint":        "s3-endpoint",
	"serial_port":     "serial-port",
	"baud_rate":       "baudrate",
	"assume_on":       "assume-on",
	"direct":          "direct",
	"verbose":         "verbose",
	"max_retries":     "max-retries",
	"base_delay":      "base-delay",
	"max_delay":       "max-delay",
	"min_interval":    "min-interval",
	"request_timeout": "timeout",
	"database":        "db",
	"output":          "output",
}

// Load assembles the run configuration: built-in defaults, then an
// optional cellenum.yaml, then any CLI flags the user actually set.
func Load(flags *pflag.FlagSet) (*core.Config, error) {
	v := viper.New()
	v.SetConfigName("cellenum")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("endpoint", "s3.amazonaws.com")
	v.SetDefault("serial_port", "/dev/ttyUSB0")
	v.SetDefault("baud_rate", 115200)
	v.SetDefault("assume_on", false)
	v.SetDefault("direct", false)
	v.SetDefault("verbose", false)
	v.SetDefault("max_retries", 2)
	v.SetDefault("base_delay", 500*time.Millisecond)
	v.SetDefault("max_delay", 8*time.Second)
	v.SetDefault("min_interval", time.Second)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("database", "")
	v.SetDefault("output", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg core.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint must not be empty")
	}
	return &cfg, nil
}

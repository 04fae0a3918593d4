package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	CloseSuperseded bool          `mapstructure:"close_superseded"`
	ConnectLimit    int           `mapstructure:"connect_limit"`
	ConnectInterval time.Duration `mapstructure:"connect_interval"`

	GuestLimitRaw string `mapstructure:"guest_limit"`
	GuestLimit    int64  `mapstructure:"-"`
	GuestPrefix   string `mapstructure:"guest_prefix"`
	LedgerPath    string `mapstructure:"ledger_path"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("close_superseded", true)
	v.SetDefault("connect_limit", 20)
	v.SetDefault("connect_interval", "1m")
	v.SetDefault("guest_limit", "2GiB")
	v.SetDefault("guest_prefix", "guest-")
	v.SetDefault("ledger_path", "")
	v.SetDefault("shutdown_timeout", "5s")
}

// Load reads config/config.<CONFIG_ENV>.yaml, then SHARE_* environment
// variables, then any flags that were set on the command line.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	if explicit := os.Getenv("CONFIG_FILE"); explicit != "" {
		fileName = explicit
	}
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("share")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("guest_limit", humanize.IBytes(uint64(cfg.GuestLimit))).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) finish() error {
	size, err := humanize.ParseBytes(c.GuestLimitRaw)
	if err != nil {
		return fmt.Errorf("parse guest_limit: %w", err)
	}
	if size == 0 || size > math.MaxInt64 {
		return fmt.Errorf("guest_limit %q out of range", c.GuestLimitRaw)
	}
	c.GuestLimit = int64(size)
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SendBuffer <= 0 {
		return errors.New("send_buffer must be positive")
	}
	return nil
}

package models

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type TTLConfig struct {
	Message   time.Duration `mapstructure:"message"`
	AllSet    time.Duration `mapstructure:"all_set"`
	UnreadSet time.Duration `mapstructure:"unread_set"`
}

type EnvConfig struct {
	DatabaseURL    string        `mapstructure:"database_url"`
	Store          string        `mapstructure:"store"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	RedisURL       string        `mapstructure:"redis_url"`
	Port           string        `mapstructure:"port"`
	Debug          bool          `mapstructure:"debug"`
	LogFile        string        `mapstructure:"log_file"`
	StrictParse    bool          `mapstructure:"strict_parse"`
	TTL            TTLConfig     `mapstructure:"ttl"`
	// RequestTimeout bounds every HTTP request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("store", StorePostgres)
	v.SetDefault("sqlite_path", "notifyd.db")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("port", "23495")
	v.SetDefault("debug", false)
	v.SetDefault("strict_parse", false)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("ttl.message", 12*time.Hour)
	v.SetDefault("ttl.all_set", 6*time.Hour)
	v.SetDefault("ttl.unread_set", 6*time.Hour)
}

// ReadEnvConfig reads NOTIFYD_* environment variables, optionally layered
// over a YAML file. An empty path or a missing file just means env + defaults.
func ReadEnvConfig(path string) (EnvConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("NOTIFYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only affects keys viper already knows about.
	for _, k := range []string{"database_url", "log_file"} {
		_ = v.BindEnv(k)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return EnvConfig{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg EnvConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Store != StorePostgres && cfg.Store != StoreSQLite {
		return EnvConfig{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if cfg.Store == StorePostgres && cfg.DatabaseURL == "" {
		return EnvConfig{}, errors.New("NOTIFYD_DATABASE_URL is required with the postgres store")
	}
	return cfg, nil
}

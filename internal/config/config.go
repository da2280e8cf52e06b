package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Steam    SteamConfig    `mapstructure:"steam"`
	Pump     PumpConfig     `mapstructure:"pump"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Auth     AuthConfig     `mapstructure:"auth"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type SteamConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	AppID           uint32        `mapstructure:"app_id"`
	SteamID         uint64        `mapstructure:"steam_id"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
}

type PumpConfig struct {
	Schedule string `mapstructure:"schedule"`
	Capacity int    `mapstructure:"capacity"`
}

type CatalogConfig struct {
	RefreshSchedule string `mapstructure:"refresh_schedule"`
	LeakSchedule    string `mapstructure:"leak_schedule"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config.yaml from ./config or the working directory. Every key
// can be overridden from the environment, e.g. STEAM_API_KEY.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// missing config file means defaults and environment only
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.path", "steam_inventory.db")
	v.SetDefault("steam.api_key", "")
	v.SetDefault("steam.app_id", 480)
	v.SetDefault("steam.steam_id", 0)
	v.SetDefault("steam.base_url", "https://api.steampowered.com")
	v.SetDefault("steam.timeout", 30*time.Second)
	v.SetDefault("steam.breaker_timeout", time.Minute)
	v.SetDefault("steam.breaker_failures", 5)
	v.SetDefault("pump.schedule", "@every 1s")
	v.SetDefault("pump.capacity", 1024)
	v.SetDefault("catalog.refresh_schedule", "@every 1h")
	v.SetDefault("catalog.leak_schedule", "@every 5m")
	v.SetDefault("auth.jwt_secret", "your-secret-key")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject", "steam.inventory")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

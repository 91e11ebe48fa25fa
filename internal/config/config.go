package config

import (
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	UploadDir           string `mapstructure:"upload_dir"`
	AskUpstreamURL      string `mapstructure:"ask_upstream_url"`
	RatePerMinute       int    `mapstructure:"rate_per_minute"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ClientCfg struct {
	ServerURL        string `mapstructure:"server_url"`
	UserID           int    `mapstructure:"user_id"`
	Username         string `mapstructure:"username"`
	TypingDebounceMs int    `mapstructure:"typing_debounce_ms"`
	RoomCap          int    `mapstructure:"room_cap"`
	HistoryCachePath string `mapstructure:"history_cache_path"`
}

type Config struct {
	Development bool      `mapstructure:"development"`
	Server      ServerCfg `mapstructure:"server"`
	Redis       RedisCfg  `mapstructure:"redis"`
	Client      ClientCfg `mapstructure:"client"`
	// Derived
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TypingDebounce time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("CHATSYNC")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config without reading any file, env only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "5000"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "static/uploads/messages"
	}
	if cfg.Server.RatePerMinute == 0 {
		cfg.Server.RatePerMinute = 300
	}
	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = "http://localhost:5000"
	}
	if cfg.Client.TypingDebounceMs == 0 {
		cfg.Client.TypingDebounceMs = 1000
	}
	if cfg.Client.RoomCap == 0 {
		cfg.Client.RoomCap = 1000
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "ws"
	}
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	cfg.TypingDebounce = time.Duration(cfg.Client.TypingDebounceMs) * time.Millisecond
}

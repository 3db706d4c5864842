package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

const (
	TransmitPushToTalk = "push_to_talk"
	TransmitToggle     = "toggle"
)

type Config struct {
	Mode         string   `mapstructure:"mode"`
	Port         int      `mapstructure:"port"`
	RelayURL     string   `mapstructure:"relay_url"`
	UserID       string   `mapstructure:"user_id"`
	Username     string   `mapstructure:"username"`
	STUNServers  []string `mapstructure:"stun_servers"`
	Exclusive    bool     `mapstructure:"whisper_exclusive"`
	TransmitMode string   `mapstructure:"transmit_mode"`
	LogLevel     string   `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8090)
	v.SetDefault("relay_url", "ws://127.0.0.1:8080/ws/relay")
	v.SetDefault("user_id", "")
	v.SetDefault("username", "")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("whisper_exclusive", true)
	v.SetDefault("transmit_mode", TransmitPushToTalk)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.TransmitMode != TransmitPushToTalk && cfg.TransmitMode != TransmitToggle {
		return nil, fmt.Errorf("invalid transmit_mode %q", cfg.TransmitMode)
	}
	return &cfg, nil
}

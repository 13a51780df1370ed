// Package config loads runtime settings from an optional agora.toml and
// AGORA_* environment variables, and hands them to the components as
// explicit values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// APIKey authorizes both request types: the per-agent reply calls
	// and the tie-break judgment call. AGORA_API_KEY, falling back to
	// ANTHROPIC_API_KEY.
	APIKey string

	// Model used for agent replies; JudgeModel for tie-break verdicts.
	Model      string
	JudgeModel string

	// MemoryEnabled gates the remember field and all memory write-back.
	MemoryEnabled bool

	// HistoryWindow is the transcript size cap.
	HistoryWindow int

	// AutoplayDelay is the inter-round delay in auto-play.
	AutoplayDelay time.Duration

	// RequestTimeout bounds each per-agent reply request.
	RequestTimeout time.Duration

	// MaxTokens caps each agent reply.
	MaxTokens int64

	// DataPath is the projects TOML file location.
	DataPath string

	// ListenAddr, when set, serves the websocket event feed (e.g.
	// "127.0.0.1:8700").
	ListenAddr string
}

// Load reads configuration. Missing config files are fine; defaults and
// environment cover everything except the credential, which is only
// validated when a command actually needs it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("agora")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "agora"))
	}

	v.SetEnvPrefix("AGORA")
	v.AutomaticEnv()

	v.SetDefault("model", "")
	v.SetDefault("judge_model", "")
	v.SetDefault("memory_enabled", true)
	v.SetDefault("history_window", 10)
	v.SetDefault("autoplay_delay", "1s")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("max_tokens", 1000)
	v.SetDefault("listen_addr", "")
	v.SetDefault("data_path", defaultDataPath())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	apiKey := v.GetString("api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	cfg := &Config{
		APIKey:         apiKey,
		Model:          v.GetString("model"),
		JudgeModel:     v.GetString("judge_model"),
		MemoryEnabled:  v.GetBool("memory_enabled"),
		HistoryWindow:  v.GetInt("history_window"),
		AutoplayDelay:  v.GetDuration("autoplay_delay"),
		RequestTimeout: v.GetDuration("request_timeout"),
		MaxTokens:      v.GetInt64("max_tokens"),
		DataPath:       v.GetString("data_path"),
		ListenAddr:     v.GetString("listen_addr"),
	}
	if cfg.JudgeModel == "" {
		cfg.JudgeModel = cfg.Model
	}
	return cfg, nil
}

func defaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "projects.toml"
	}
	return filepath.Join(home, ".config", "agora", "projects.toml")
}

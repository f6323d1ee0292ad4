package app

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talkform/talkform-backend/internal/pkg/envutil"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

type Config struct {
	Port            string        `yaml:"port"`
	JWTSecretKey    string        `yaml:"jwt_secret_key"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	ReaperInterval  time.Duration `yaml:"reaper_interval"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	StreamTimeout   time.Duration `yaml:"stream_timeout"`
	ToolPassTimeout time.Duration `yaml:"tool_pass_timeout"`
}

// LoadConfig layers defaults, an optional YAML file at CONFIG_PATH, and
// environment variables, in that order; env wins.
func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:            "8080",
		JWTSecretKey:    "defaultsecret",
		SessionTTL:      7 * 24 * time.Hour,
		ReaperInterval:  50 * time.Minute,
		StaleAfter:      10 * time.Minute,
		StreamTimeout:   2 * time.Minute,
		ToolPassTimeout: 90 * time.Second,
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Could not read config file", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("Could not parse config file", "path", path, "error", err)
		}
	}

	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)
	cfg.SessionTTL = envutil.Duration("SESSION_TTL", cfg.SessionTTL)
	cfg.ReaperInterval = envutil.Duration("REAPER_INTERVAL", cfg.ReaperInterval)
	cfg.StaleAfter = envutil.Duration("CONVERSATION_STALE_AFTER", cfg.StaleAfter)
	cfg.StreamTimeout = envutil.Duration("STREAM_TIMEOUT", cfg.StreamTimeout)
	cfg.ToolPassTimeout = envutil.Duration("TOOL_PASS_TIMEOUT", cfg.ToolPassTimeout)

	if cfg.JWTSecretKey == "defaultsecret" {
		log.Warn("JWT_SECRET_KEY not set, using insecure default")
	}
	return cfg
}

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings is the process-level configuration read from SCRUMGAME_* variables.
type Settings struct {
	Workspace     string        `env:"SCRUMGAME_WORKSPACE" envDefault:"."`
	Addr          string        `env:"SCRUMGAME_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath      string        `env:"SCRUMGAME_BASE_PATH" envDefault:"/v0"`
	JWTSecret     string        `env:"SCRUMGAME_JWT_SECRET"`
	IMSURL        string        `env:"SCRUMGAME_IMS_URL"`
	IMSToken      string        `env:"SCRUMGAME_IMS_TOKEN"`
	IMSTimeout    time.Duration `env:"SCRUMGAME_IMS_TIMEOUT" envDefault:"10s"`
	SyncInterval  time.Duration `env:"SCRUMGAME_SYNC_INTERVAL" envDefault:"30s"`
	ReminderHour  int           `env:"SCRUMGAME_REMINDER_HOUR" envDefault:"7"`
	HideForbidden bool          `env:"SCRUMGAME_HIDE_FORBIDDEN" envDefault:"false"`
	DevLogin      bool          `env:"SCRUMGAME_DEV_LOGIN" envDefault:"false"`
	LogLevel      string        `env:"SCRUMGAME_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint  string        `env:"SCRUMGAME_OTEL_ENDPOINT"`
}

// LoadSettings parses Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	if s.ReminderHour < 0 || s.ReminderHour > 23 {
		return Settings{}, fmt.Errorf("SCRUMGAME_REMINDER_HOUR must be between 0 and 23")
	}
	if s.SyncInterval <= 0 {
		return Settings{}, fmt.Errorf("SCRUMGAME_SYNC_INTERVAL must be positive")
	}
	return s, nil
}

func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds runtime settings for the job client and CLI.
type Config struct {
	ServiceRoot     string        `yaml:"service_root" mapstructure:"service_root"`
	UserID          string        `yaml:"user_id" mapstructure:"user_id"`
	PollInterval    time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts" mapstructure:"max_poll_attempts"`
	MaxPollDuration time.Duration `yaml:"max_poll_duration" mapstructure:"max_poll_duration"`
	MaxPollBackoff  int           `yaml:"max_poll_backoff" mapstructure:"max_poll_backoff"`
	RequestTimeout  time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	DataDir         string        `yaml:"data_dir" mapstructure:"data_dir"`
	LogLevel        string        `yaml:"log_level" mapstructure:"log_level"`
	LogFormat       string        `yaml:"log_format" mapstructure:"log_format"`
}

func DefaultServiceRoot() string {
	return "https://tiktorch.ngrok.io/videos/"
}

func DefaultUserID() string {
	return "tiktorch-mobile"
}

func DefaultHome() string {
	return "$HOME/.tiktorch"
}

func DefaultDataDir() string {
	return "$HOME/.tiktorch/data"
}

// DefaultConfig returns the settings used when nothing overrides them.
// Polling is unbounded by default.
func DefaultConfig() *Config {
	return &Config{
		ServiceRoot:    DefaultServiceRoot(),
		UserID:         DefaultUserID(),
		PollInterval:   time.Second,
		RequestTimeout: 5 * time.Minute, // wait for response headers
		DataDir:        DefaultDataDir(),
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

func (c Config) MarshalLogObject(e zapcore.ObjectEncoder) error {
	e.AddString("service_root", c.ServiceRoot)
	e.AddString("user_id", c.UserID)
	e.AddDuration("poll_interval", c.PollInterval)
	e.AddInt("max_poll_attempts", c.MaxPollAttempts)
	e.AddDuration("max_poll_duration", c.MaxPollDuration)
	e.AddInt("max_poll_backoff", c.MaxPollBackoff)
	e.AddDuration("request_timeout", c.RequestTimeout)
	e.AddString("data_dir", c.DataDir)
	return nil
}

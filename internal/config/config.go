package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. TIKTORCH_SERVICE_ROOT.
const EnvPrefix = "TIKTORCH"

// Keys understood by Load.
const (
	KeyServiceRoot     = "service_root"
	KeyUserID          = "user_id"
	KeyPollInterval    = "poll_interval"
	KeyMaxPollAttempts = "max_poll_attempts"
	KeyMaxPollDuration = "max_poll_duration"
	KeyMaxPollBackoff  = "max_poll_backoff"
	KeyRequestTimeout  = "request_timeout"
	KeyDataDir         = "data_dir"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
)

// SetDefaults registers every key with its default so environment
// variables are picked up on Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault(KeyServiceRoot, d.ServiceRoot)
	v.SetDefault(KeyUserID, d.UserID)
	v.SetDefault(KeyPollInterval, d.PollInterval)
	v.SetDefault(KeyMaxPollAttempts, d.MaxPollAttempts)
	v.SetDefault(KeyMaxPollDuration, d.MaxPollDuration)
	v.SetDefault(KeyMaxPollBackoff, d.MaxPollBackoff)
	v.SetDefault(KeyRequestTimeout, d.RequestTimeout)
	v.SetDefault(KeyDataDir, d.DataDir)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
}

// Load resolves the configuration from defaults, the config file,
// TIKTORCH_* environment variables and any flags already bound to v, in
// increasing precedence. An empty configFile looks for config.yaml in
// home; a missing file there is not an error.
func Load(v *viper.Viper, configFile, home string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(ExpandPath(configFile))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ExpandPath(home))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DataDir = ExpandPath(cfg.DataDir)

	return cfg, cfg.Validate()
}

// Validate rejects settings the job client cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.ServiceRoot)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid service root %q", c.ServiceRoot)
	}
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("user id is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.MaxPollAttempts < 0 || c.MaxPollDuration < 0 || c.MaxPollBackoff < 0 {
		return errors.New("poll limits must not be negative")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request timeout must not be negative")
	}
	if c.DataDir == "" {
		return errors.New("invalid data directory")
	}
	return nil
}

// fileConfig is the on-disk shape; durations are written as strings.
type fileConfig struct {
	ServiceRoot     string `yaml:"service_root"`
	UserID          string `yaml:"user_id"`
	PollInterval    string `yaml:"poll_interval"`
	MaxPollAttempts int    `yaml:"max_poll_attempts"`
	MaxPollDuration string `yaml:"max_poll_duration"`
	MaxPollBackoff  int    `yaml:"max_poll_backoff"`
	RequestTimeout  string `yaml:"request_timeout"`
	DataDir         string `yaml:"data_dir"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
}

// Export renders c as a config file.
func (c Config) Export() ([]byte, error) {
	sb := strings.Builder{}
	sb.WriteString("######################\n")
	sb.WriteString("### tiktorch Config ###\n")
	sb.WriteString("######################\n\n")

	d, err := yaml.Marshal(fileConfig{
		ServiceRoot:     c.ServiceRoot,
		UserID:          c.UserID,
		PollInterval:    c.PollInterval.String(),
		MaxPollAttempts: c.MaxPollAttempts,
		MaxPollDuration: c.MaxPollDuration.String(),
		MaxPollBackoff:  c.MaxPollBackoff,
		RequestTimeout:  c.RequestTimeout.String(),
		DataDir:         c.DataDir,
		LogLevel:        c.LogLevel,
		LogFormat:       c.LogFormat,
	})
	if err != nil {
		return nil, err
	}
	sb.Write(d)

	return []byte(sb.String()), nil
}

// Init writes the default config into home unless a config file already
// exists there. It returns the config file path.
func Init(home string) (string, error) {
	dir := ExpandPath(home)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	data, err := DefaultConfig().Export()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// ExpandPath expands environment variables and a leading ~.
func ExpandPath(p string) string {
	p = os.ExpandEnv(strings.TrimSpace(p))
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

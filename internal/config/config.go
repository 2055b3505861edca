package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/insightloom/internal/ai"
	"github.com/KaramelBytes/insightloom/internal/analysis"
	"github.com/KaramelBytes/insightloom/internal/logging"
	"github.com/KaramelBytes/insightloom/internal/utils"
)

// EnvPrefix prefixes every environment override, e.g. INSIGHTLOOM_DEFAULT_MODEL.
const EnvPrefix = "INSIGHTLOOM"

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	BaseURL         string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	// Optional YAML/JSON catalog merged into the built-in model list.
	ModelsCatalogFile string `mapstructure:"models_catalog_file" yaml:"models_catalog_file,omitempty"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtime (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// Summarizer
	MaxCorrelations  int    `mapstructure:"max_correlations" yaml:"max_correlations"`
	CorrelationDedup string `mapstructure:"correlation_dedup" yaml:"correlation_dedup"`
	MaxRows          int    `mapstructure:"max_rows" yaml:"max_rows"`
	// Robust |z| above which values are flagged; 0 disables.
	OutlierThreshold float64 `mapstructure:"outlier_threshold" yaml:"outlier_threshold"`

	// Logging
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file,omitempty"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days" yaml:"log_max_age_days"`
	LogCompress   bool   `mapstructure:"log_compress" yaml:"log_compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("default_provider", ai.ProviderGroq)
	v.SetDefault("default_model", ai.DefaultModel)
	v.SetDefault("base_url", "")
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("temperature", 0.0)
	v.SetDefault("models_catalog_file", "")
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", ai.DefaultOllamaHost)
	v.SetDefault("max_correlations", analysis.DefaultOptions().MaxCorrelations)
	v.SetDefault("correlation_dedup", string(analysis.DedupPair))
	v.SetDefault("max_rows", 0)
	v.SetDefault("outlier_threshold", analysis.DefaultOptions().OutlierThreshold)

	lc := logging.DefaultConfig()
	v.SetDefault("log_level", lc.Level)
	v.SetDefault("log_format", lc.Format)
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", lc.MaxSizeMB)
	v.SetDefault("log_max_backups", lc.MaxBackups)
	v.SetDefault("log_max_age_days", lc.MaxAgeDays)
	v.SetDefault("log_compress", lc.Compress)
}

// DefaultPath returns ~/.insightloom/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".insightloom", "config.yaml"), nil
}

// Load resolves configuration from defaults, the config file, and the
// environment (highest precedence). The API key also falls back to
// GROQ_API_KEY. An explicitly named cfgFile must exist and parse; the
// default file is optional.
func Load(cfgFile string) (*Global, error) {
	return load(cfgFile, true)
}

// LoadFile is Load without environment overrides. Use it before Save so
// values taken from the environment are not written to disk.
func LoadFile(cfgFile string) (*Global, error) {
	return load(cfgFile, false)
}

func load(cfgFile string, withEnv bool) (*Global, error) {
	v := viper.New()
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		v.AutomaticEnv()
		if err := v.BindEnv("api_key", EnvPrefix+"_API_KEY", "GROQ_API_KEY"); err != nil {
			return nil, fmt.Errorf("bind env: %w", err)
		}
	}
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			if withEnv || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
			}
		}
	} else if path, err := DefaultPath(); err == nil {
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Save writes c as YAML to cfgFile, or to DefaultPath when empty.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Set assigns a single key from its string form, validating the value.
func (c *Global) Set(key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return 0, fmt.Errorf("invalid non-negative int for %s: %q", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "api_key":
		c.APIKey = val
	case "default_provider":
		p := strings.ToLower(strings.TrimSpace(val))
		if _, ok := ai.GetRuntime(p, ai.RuntimeConfig{}); !ok {
			return fmt.Errorf("invalid default_provider: %s (use %s)", val, strings.Join(ai.Providers(), ", "))
		}
		c.DefaultProvider = p
	case "default_model":
		c.DefaultModel = val
	case "base_url":
		c.BaseURL = val
	case "models_catalog_file":
		c.ModelsCatalogFile = val
	case "max_tokens":
		c.MaxTokens, err = atoi()
	case "temperature":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid temperature %q (want 0..2)", val)
		}
		c.Temperature = f
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = atoi()
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = atoi()
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = atoi()
	case "ollama_host":
		c.OllamaHost = val
	case "max_correlations":
		c.MaxCorrelations, err = atoi()
	case "correlation_dedup":
		m, perr := analysis.ParseDedupMode(val)
		if perr != nil {
			return perr
		}
		c.CorrelationDedup = string(m)
	case "max_rows":
		c.MaxRows, err = atoi()
	case "outlier_threshold":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil || f < 0 {
			return fmt.Errorf("invalid outlier_threshold %q (want >= 0, 0 disables)", val)
		}
		c.OutlierThreshold = f
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "warning", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level %q (use debug|info|warn|error)", val)
		}
	case "log_format":
		switch strings.ToLower(val) {
		case "text", "json":
			c.LogFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_format %q (use text|json)", val)
		}
	case "log_file":
		c.LogFile = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

// Logging returns the logging settings.
func (c *Global) Logging() logging.Config {
	return logging.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		FilePath:   c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
		Compress:   c.LogCompress,
	}
}

// Runtime returns the runtime knobs shared by all providers.
func (c *Global) Runtime() ai.RuntimeConfig {
	return ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Host:        c.OllamaHost,
	}
}

// Analysis returns summarizer options. An invalid dedup mode is reported
// rather than silently replaced.
func (c *Global) Analysis() (analysis.Options, error) {
	mode, err := analysis.ParseDedupMode(c.CorrelationDedup)
	if err != nil {
		return analysis.Options{}, err
	}
	return analysis.Options{
		MaxCorrelations:  c.MaxCorrelations,
		Dedup:            mode,
		OutlierThreshold: c.OutlierThreshold,
	}, nil
}

package botconfig

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/util/dbutil"
	"gopkg.in/yaml.v3"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi"
)

//go:embed example-config.yaml
var ExampleConfig string

var (
	ErrConfigCreated = errors.New("example config written, fill it in and restart")
	ErrInvalidMode   = errors.New("mode must be user or group")
)

type ExecutorConfig struct {
	IntervalMS        int     `yaml:"interval_ms"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxHTTPRetries    int     `yaml:"max_http_retries"`
}

type LongPollConfig struct {
	vkapi.LongPollConfig `yaml:",inline"`

	AcquireRetrySeconds      int  `yaml:"acquire_retry_seconds"`
	AcquireMaxElapsedSeconds int  `yaml:"acquire_max_elapsed_seconds"`
	MaxQueuedUpdates         int  `yaml:"max_queued_updates"`
	LogUpdates               bool `yaml:"log_updates"`
}

type CallbackConfig struct {
	vkapi.CallbackConfig `yaml:",inline"`

	Listen string `yaml:"listen"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

type Config struct {
	AccessToken string `yaml:"access_token"`
	Mode        string `yaml:"mode"`
	GroupID     int64  `yaml:"group_id"`
	APIVersion  string `yaml:"api_version"`
	Proxy       string `yaml:"proxy"`

	Executor ExecutorConfig `yaml:"executor"`
	LongPoll LongPollConfig `yaml:"long_poll"`
	Typing   bool           `yaml:"typing"`
	Callback CallbackConfig `yaml:"callback"`
	Database dbutil.Config  `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "access_token")
	helper.Copy(up.Str, "mode")
	helper.Copy(up.Int, "group_id")
	helper.Copy(up.Str, "api_version")
	helper.Copy(up.Str|up.Null, "proxy")

	helper.Copy(up.Int, "executor", "interval_ms")
	helper.Copy(up.Int, "executor", "batch_size")
	helper.Copy(up.Int|up.Float, "executor", "requests_per_second")
	helper.Copy(up.Int, "executor", "max_http_retries")

	helper.Copy(up.Int, "long_poll", "wait")
	helper.Copy(up.Int, "long_poll", "mode")
	helper.Copy(up.Int, "long_poll", "version")
	helper.Copy(up.Bool, "long_poll", "need_pts")
	helper.Copy(up.Int, "long_poll", "acquire_retry_seconds")
	helper.Copy(up.Int, "long_poll", "acquire_max_elapsed_seconds")
	helper.Copy(up.Int, "long_poll", "max_queued_updates")
	helper.Copy(up.Bool, "long_poll", "log_updates")

	helper.Copy(up.Bool, "typing")

	helper.Copy(up.Str, "callback", "listen")
	helper.Copy(up.Str, "callback", "path")
	helper.Copy(up.Str, "callback", "confirmation")
	helper.Copy(up.Str, "callback", "secret")

	helper.Copy(up.Str, "database", "type")
	helper.Copy(up.Str, "database", "uri")
	helper.Copy(up.Int, "database", "max_open_conns")
	helper.Copy(up.Int, "database", "max_idle_conns")

	helper.Copy(up.Str, "logging", "level")
	helper.Copy(up.Bool, "logging", "color")
}

var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: upgradeConfig,
	Blocks: [][]string{
		{"executor"},
		{"long_poll"},
		{"typing"},
		{"callback"},
		{"database"},
		{"logging"},
	},
	Base: ExampleConfig,
}

// Load reads the config at path, filling in keys missing from it with the
// defaults of the example config. A .env file in the working directory is
// loaded first, and the VK_* variables override the file. If path doesn't
// exist, the example config is written there and ErrConfigCreated returned.
func Load(path string, save bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err = os.WriteFile(path, []byte(ExampleConfig), 0600); err != nil {
			return nil, fmt.Errorf("failed to write example config: %w", err)
		}
		return nil, ErrConfigCreated
	}
	data, _, err := up.Do(path, save, Upgrader)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a config document and applies environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func (cfg *Config) applyEnv() error {
	if token := os.Getenv("VK_ACCESS_TOKEN"); token != "" {
		cfg.AccessToken = token
	}
	if proxy := os.Getenv("VK_PROXY"); proxy != "" {
		cfg.Proxy = proxy
	}
	if rawGroupID := os.Getenv("VK_GROUP_ID"); rawGroupID != "" {
		groupID, err := strconv.ParseInt(rawGroupID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid VK_GROUP_ID: %w", err)
		}
		cfg.GroupID = groupID
	}
	return nil
}

func (cfg *Config) AuthMode() (vkapi.AuthMode, error) {
	switch strings.ToLower(cfg.Mode) {
	case "user":
		return vkapi.AuthUser, nil
	case "group", "":
		return vkapi.AuthGroup, nil
	default:
		return 0, fmt.Errorf("%w, got %q", ErrInvalidMode, cfg.Mode)
	}
}

func (cfg *Config) Validate() error {
	mode, err := cfg.AuthMode()
	if err != nil {
		return err
	} else if cfg.AccessToken == "" {
		return vkapi.ErrMissingToken
	} else if mode == vkapi.AuthGroup && cfg.GroupID == 0 {
		return vkapi.ErrMissingGroupID
	} else if cfg.Executor.BatchSize > vkapi.MaxBatchSize {
		return fmt.Errorf("executor.batch_size can't be more than %d", vkapi.MaxBatchSize)
	}
	return nil
}

// ClientConfig converts the file config into the client's options.
func (cfg *Config) ClientConfig() vkapi.Config {
	mode, _ := cfg.AuthMode()
	return vkapi.Config{
		AccessToken:       cfg.AccessToken,
		Mode:              mode,
		GroupID:           cfg.GroupID,
		APIVersion:        cfg.APIVersion,
		MaxHTTPRetries:    cfg.Executor.MaxHTTPRetries,
		ExecuteInterval:   time.Duration(cfg.Executor.IntervalMS) * time.Millisecond,
		BatchSize:         cfg.Executor.BatchSize,
		RequestsPerSecond: cfg.Executor.RequestsPerSecond,
		LongPoll:          cfg.LongPoll.LongPollConfig,
		AcquireRetryDelay: time.Duration(cfg.LongPoll.AcquireRetrySeconds) * time.Second,
		AcquireMaxElapsed: time.Duration(cfg.LongPoll.AcquireMaxElapsedSeconds) * time.Second,
		MaxQueuedUpdates:  cfg.LongPoll.MaxQueuedUpdates,
	}
}

func (cfg *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil || cfg.Logging.Level == "" {
		return zerolog.InfoLevel
	}
	return level
}

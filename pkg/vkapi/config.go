package vkapi

import (
	"time"

	"go.mau.fi/util/exhttp"
)

// AuthMode decides which long-poll server and update wire format a client uses.
type AuthMode int

const (
	// AuthUser is a user access token: messages.getLongPollServer and
	// positional updates.
	AuthUser AuthMode = iota
	// AuthGroup is a community token: groups.getLongPollServer and
	// structured {type, object} updates.
	AuthGroup
)

func (am AuthMode) String() string {
	switch am {
	case AuthUser:
		return "user"
	case AuthGroup:
		return "group"
	default:
		return "unknown"
	}
}

const (
	DefaultAPIVersion       = "5.101"
	DefaultBaseURL          = "https://api.vk.com"
	DefaultExecuteInterval  = 335 * time.Millisecond
	DefaultDispatchInterval = time.Millisecond
	DefaultRequestsPerSec   = 3
	DefaultAcquireDelay     = time.Second

	// MaxBatchSize is the number of API calls the server accepts in one execute.
	MaxBatchSize = 25
)

type LongPollConfig struct {
	Wait    int  `yaml:"wait"`
	Mode    int  `yaml:"mode"`
	Version int  `yaml:"version"`
	NeedPTS bool `yaml:"need_pts"`
}

var DefaultLongPollConfig = LongPollConfig{
	Wait:    25,
	Mode:    162,
	Version: 2,
	NeedPTS: true,
}

type Config struct {
	AccessToken string
	Mode        AuthMode
	// GroupID is required for AuthGroup.
	GroupID int64

	APIVersion     string
	BaseURL        string
	ClientSettings exhttp.ClientSettings
	MaxHTTPRetries int

	ExecuteInterval   time.Duration
	DispatchInterval  time.Duration
	BatchSize         int
	RequestsPerSecond float64

	LongPoll LongPollConfig
	// AcquireRetryDelay is the pause between failed long-poll server
	// acquisitions. AcquireMaxElapsed caps the total retry time; zero
	// retries forever.
	AcquireRetryDelay time.Duration
	AcquireMaxElapsed time.Duration

	// MaxQueuedUpdates bounds the update queue. Zero means unbounded.
	MaxQueuedUpdates int
}

func (cfg Config) withDefaults() Config {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ExecuteInterval <= 0 {
		cfg.ExecuteInterval = DefaultExecuteInterval
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = DefaultDispatchInterval
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSec
	}
	if cfg.MaxHTTPRetries < 0 {
		cfg.MaxHTTPRetries = 0
	} else if cfg.MaxHTTPRetries == 0 {
		cfg.MaxHTTPRetries = DefaultMaxHTTPRetries
	}
	if cfg.AcquireRetryDelay <= 0 {
		cfg.AcquireRetryDelay = DefaultAcquireDelay
	}
	if cfg.LongPoll == (LongPollConfig{}) {
		cfg.LongPoll = DefaultLongPollConfig
	}
	cfg.LongPoll = cfg.LongPoll.withDefaults()
	return cfg
}

// withDefaults fills in Wait and Version. Mode 0 and NeedPTS false are
// valid choices and are kept.
func (lpc LongPollConfig) withDefaults() LongPollConfig {
	if lpc.Wait <= 0 {
		lpc.Wait = DefaultLongPollConfig.Wait
	}
	if lpc.Version <= 0 {
		lpc.Version = DefaultLongPollConfig.Version
	}
	return lpc
}

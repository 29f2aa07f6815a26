package config

import (
	"os"
	"strconv"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level configuration file structure
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Logging    LoggingConfig   `yaml:"logging"`
	Monitor    MonitorConfig   `yaml:"monitor"`
	Thresholds Thresholds      `yaml:"thresholds"`
	Decision   DecisionConfig  `yaml:"decision"`
	Queue      QueueConfig     `yaml:"queue"`
	Stores     StoresConfig    `yaml:"stores"`
	Sync       SyncConfig      `yaml:"sync"`
	Registry   RegistryConfig  `yaml:"registry"`
	Signals    SignalsConfig   `yaml:"signals"`
	Services   []ServiceConfig `yaml:"services,omitempty"` // Services registered at startup
}

type ServerConfig struct {
	Port                 int           `yaml:"port"`
	ForceShutdownTimeout time.Duration `yaml:"force_shutdown_timeout,omitempty"`
	ServiceContext       string        `yaml:"service_context,omitempty"` // system, user or session
	DataDir              string        `yaml:"data_dir,omitempty"`        // overrides the OS data and log directories
}

type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`
	Format     string `yaml:"format,omitempty"` // console or json
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

type MonitorConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval,omitempty"`
	HealthTimeout time.Duration `yaml:"health_timeout,omitempty"`
	DefaultHost   string        `yaml:"default_host,omitempty"`
}

// Thresholds are the metric limits the decision engine compares against.
// Hot-reloadable.
type Thresholds struct {
	ResponseTimeMs float64 `yaml:"response_time_ms"`
	CPUUsage       float64 `yaml:"cpu_usage"`
	MemoryUsage    float64 `yaml:"memory_usage"`
	ErrorRate      float64 `yaml:"error_rate"`
}

// AutoExecutePolicy selects when a fresh decision runs without operator input.
type AutoExecutePolicy string

const (
	AutoExecuteEvidenceOrFirstRestart AutoExecutePolicy = "evidence_or_first_restart"
	AutoExecuteAlways                 AutoExecutePolicy = "always"
	AutoExecuteNever                  AutoExecutePolicy = "never"
)

type DecisionConfig struct {
	MaxRestarts        int               `yaml:"max_restarts,omitempty"`
	EvidenceLimit      int               `yaml:"evidence_limit,omitempty"`
	AutoExecute        AutoExecutePolicy `yaml:"auto_execute,omitempty"`
	RestartSettleDelay time.Duration     `yaml:"restart_settle_delay,omitempty"`
	DecisionLogSize    int               `yaml:"decision_log_size,omitempty"`
}

type QueueConfig struct {
	DrainInterval  time.Duration `yaml:"drain_interval,omitempty"`
	BatchSize      int           `yaml:"batch_size,omitempty"`
	Retention      time.Duration `yaml:"retention,omitempty"`
	UrgentPriority int           `yaml:"urgent_priority,omitempty"`
}

// StoreType names a thought store adapter.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeSQLite   StoreType = "sqlite"
	StoreTypePostgres StoreType = "postgres"
	StoreTypeGist     StoreType = "gist"
	StoreTypeHTTP     StoreType = "http"
)

type StoresConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`
	Local       StoreConfig   `yaml:"local"`
	Remote      StoreConfig   `yaml:"remote"`
}

type StoreConfig struct {
	Type          StoreType `yaml:"type"`
	DSN           string    `yaml:"dsn,omitempty"`       // sqlite file (bare names go to the data dir), postgres url or http base url
	TokenEnv      string    `yaml:"token_env,omitempty"` // env var holding the GitHub token
	Origin        string    `yaml:"origin,omitempty"`    // origin tag written on created thoughts
	RatePerSecond float64   `yaml:"rate_per_second,omitempty"`
	Burst         int       `yaml:"burst,omitempty"`
}

type SyncConfig struct {
	Enabled       *bool         `yaml:"enabled,omitempty"` // Pointer to distinguish unset from false
	Interval      time.Duration `yaml:"interval,omitempty"`
	InitialDelay  time.Duration `yaml:"initial_delay,omitempty"`
	LocalLimit    int           `yaml:"local_limit,omitempty"`
	RemoteLimit   int           `yaml:"remote_limit,omitempty"`
	DecisionLimit int           `yaml:"decision_limit,omitempty"`
	HistorySize   int           `yaml:"history_size,omitempty"`
}

func (s SyncConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type RegistryConfig struct {
	URL string `yaml:"url,omitempty"`
}

// SignalerType names the backend scale/stop signals are published to.
type SignalerType string

const (
	SignalerTypeNone SignalerType = "none"
	SignalerTypeNATS SignalerType = "nats"
)

type SignalsConfig struct {
	Type    SignalerType `yaml:"type,omitempty"`
	NATSURL string       `yaml:"nats_url,omitempty"`
	Subject string       `yaml:"subject,omitempty"`
}

// ServiceConfig is a managed service registered when the orchestrator starts.
type ServiceConfig struct {
	Name           string `yaml:"name"`
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port"`
	HealthEndpoint string `yaml:"health_endpoint,omitempty"`
	Protocol       string `yaml:"protocol,omitempty"` // http or grpc
}

// LoadConfigFromFile loads configuration from a YAML file, applies defaults
// and environment overrides.
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, errors.NewValidationError("invalid configuration file", err).WithContext("filename", filename)
	}
	return config, nil
}

// Parse decodes YAML configuration data, applies defaults and environment
// overrides.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	if err := ApplyEnvOverrides(&config, os.LookupEnv); err != nil {
		return nil, errors.NewValidationError("failed to apply environment overrides", err)
	}

	SetDefaults(&config)
	return &config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	config := &Config{}
	SetDefaults(config)
	return config
}

// SetDefaults applies default values to configuration
func SetDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 4444
	}
	if config.Server.ForceShutdownTimeout == 0 {
		config.Server.ForceShutdownTimeout = 30 * time.Second
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "console"
	}
	if config.Logging.MaxSizeMB == 0 {
		config.Logging.MaxSizeMB = 50
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = 3
	}
	if config.Logging.MaxAgeDays == 0 {
		config.Logging.MaxAgeDays = 7
	}

	if config.Monitor.PollInterval == 0 {
		config.Monitor.PollInterval = 30 * time.Second
	}
	if config.Monitor.HealthTimeout == 0 {
		config.Monitor.HealthTimeout = 5 * time.Second
	}
	if config.Monitor.DefaultHost == "" {
		config.Monitor.DefaultHost = "localhost"
	}

	SetThresholdDefaults(&config.Thresholds)

	if config.Decision.MaxRestarts == 0 {
		config.Decision.MaxRestarts = 3
	}
	if config.Decision.EvidenceLimit == 0 {
		config.Decision.EvidenceLimit = 10
	}
	if config.Decision.AutoExecute == "" {
		config.Decision.AutoExecute = AutoExecuteEvidenceOrFirstRestart
	}
	if config.Decision.RestartSettleDelay == 0 {
		config.Decision.RestartSettleDelay = 3 * time.Second
	}
	if config.Decision.DecisionLogSize == 0 {
		config.Decision.DecisionLogSize = 500
	}

	if config.Queue.DrainInterval == 0 {
		config.Queue.DrainInterval = 5 * time.Second
	}
	if config.Queue.BatchSize == 0 {
		config.Queue.BatchSize = 3
	}
	if config.Queue.Retention == 0 {
		config.Queue.Retention = time.Hour
	}
	if config.Queue.UrgentPriority == 0 {
		config.Queue.UrgentPriority = 8
	}

	if config.Stores.CallTimeout == 0 {
		config.Stores.CallTimeout = 10 * time.Second
	}
	if config.Stores.Local.Type == "" {
		config.Stores.Local.Type = StoreTypeMemory
	}
	if config.Stores.Remote.Type == "" {
		config.Stores.Remote.Type = StoreTypeMemory
	}
	if config.Stores.Remote.Type == StoreTypeGist && config.Stores.Remote.TokenEnv == "" {
		config.Stores.Remote.TokenEnv = "GITHUB_TOKEN"
	}
	if config.Stores.Remote.Origin == "" {
		config.Stores.Remote.Origin = "hsu-orchestrator"
	}
	if config.Stores.Local.Origin == "" {
		config.Stores.Local.Origin = "hsu-orchestrator"
	}

	if config.Sync.Interval == 0 {
		config.Sync.Interval = 5 * time.Minute
	}
	if config.Sync.InitialDelay == 0 {
		config.Sync.InitialDelay = 10 * time.Second
	}
	if config.Sync.LocalLimit == 0 {
		config.Sync.LocalLimit = 20
	}
	if config.Sync.RemoteLimit == 0 {
		config.Sync.RemoteLimit = 50
	}
	if config.Sync.DecisionLimit == 0 {
		config.Sync.DecisionLimit = 5
	}
	if config.Sync.HistorySize == 0 {
		config.Sync.HistorySize = 100
	}

	if config.Signals.Type == "" {
		config.Signals.Type = SignalerTypeNone
	}
	if config.Signals.Subject == "" {
		config.Signals.Subject = "orchestrator.actions"
	}

	for i := range config.Services {
		service := &config.Services[i]
		if service.Host == "" {
			service.Host = config.Monitor.DefaultHost
		}
		if service.HealthEndpoint == "" {
			service.HealthEndpoint = "/health"
		}
		if service.Protocol == "" {
			service.Protocol = "http"
		}
	}
}

func SetThresholdDefaults(thresholds *Thresholds) {
	if thresholds.ResponseTimeMs == 0 {
		thresholds.ResponseTimeMs = 2000
	}
	if thresholds.CPUUsage == 0 {
		thresholds.CPUUsage = 0.80
	}
	if thresholds.MemoryUsage == 0 {
		thresholds.MemoryUsage = 0.85
	}
	if thresholds.ErrorRate == 0 {
		thresholds.ErrorRate = 0.05
	}
}

// LookupEnvFunc matches os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// ApplyEnvOverrides overlays environment variables on top of file values.
func ApplyEnvOverrides(config *Config, lookup LookupEnvFunc) error {
	if value, ok := lookup("ORCHESTRATOR_PORT"); ok && value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return errors.NewValidationError("ORCHESTRATOR_PORT must be an integer", err).WithContext("value", value)
		}
		config.Server.Port = port
	}
	if value, ok := lookup("ORCHESTRATOR_LOG_LEVEL"); ok && value != "" {
		config.Logging.Level = value
	}
	if value, ok := lookup("LOCAL_STORE_DSN"); ok && value != "" {
		config.Stores.Local.DSN = value
	}
	if value, ok := lookup("REMOTE_STORE_DSN"); ok && value != "" {
		config.Stores.Remote.DSN = value
	}
	if value, ok := lookup("NATS_URL"); ok && value != "" {
		config.Signals.NATSURL = value
	}
	return nil
}

// Token resolves the store's access token from its configured env variable.
func (s StoreConfig) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
)

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := ValidatePort(config.Server.Port); err != nil {
		return errors.NewValidationError("invalid server configuration", err)
	}

	switch config.Server.ServiceContext {
	case "", "system", "user", "session":
	default:
		return errors.NewValidationError("unsupported service_context: "+config.Server.ServiceContext, nil).
			WithContext("supported_contexts", "system, user, session")
	}

	if err := validateMonitorConfig(&config.Monitor); err != nil {
		return errors.NewValidationError("invalid monitor configuration", err)
	}

	if err := ValidateThresholds(config.Thresholds); err != nil {
		return errors.NewValidationError("invalid thresholds", err)
	}

	if err := validateDecisionConfig(&config.Decision); err != nil {
		return errors.NewValidationError("invalid decision configuration", err)
	}

	if err := validateQueueConfig(&config.Queue); err != nil {
		return errors.NewValidationError("invalid queue configuration", err)
	}

	if err := validateStoreConfig(config.Stores.Local, "local"); err != nil {
		return errors.NewValidationError("invalid local store configuration", err)
	}
	if err := validateStoreConfig(config.Stores.Remote, "remote"); err != nil {
		return errors.NewValidationError("invalid remote store configuration", err)
	}

	if err := validateSyncConfig(&config.Sync); err != nil {
		return errors.NewValidationError("invalid sync configuration", err)
	}

	if err := validateSignalsConfig(&config.Signals); err != nil {
		return errors.NewValidationError("invalid signals configuration", err)
	}

	if config.Registry.URL != "" {
		if _, err := url.ParseRequestURI(config.Registry.URL); err != nil {
			return errors.NewValidationError("invalid registry url", err).WithContext("url", config.Registry.URL)
		}
	}

	seen := make(map[string]bool)
	for i, service := range config.Services {
		if err := ValidateServiceName(service.Name); err != nil {
			return errors.NewValidationError(fmt.Sprintf("invalid service at index %d", i), err)
		}
		if seen[service.Name] {
			return errors.NewValidationError("duplicate service name", nil).WithContext("service", service.Name)
		}
		seen[service.Name] = true
		if err := ValidatePort(service.Port); err != nil {
			return errors.NewValidationError("invalid service port", err).WithContext("service", service.Name)
		}
		if service.Protocol != "http" && service.Protocol != "grpc" {
			return errors.NewValidationError("unsupported service protocol: "+service.Protocol, nil).
				WithContext("supported_protocols", "http, grpc")
		}
	}

	return nil
}

// ValidateServiceName validates a managed service name
func ValidateServiceName(name string) error {
	if name == "" {
		return errors.NewValidationError("service name cannot be empty", nil)
	}

	if len(name) > 64 {
		return errors.NewValidationError("service name cannot exceed 64 characters", nil)
	}

	for _, char := range name {
		if !isValidNameChar(char) {
			return errors.NewValidationError("service name contains invalid characters: only letters, numbers, hyphens, dots and underscores are allowed", nil)
		}
	}

	return nil
}

func isValidNameChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '_' || char == '.'
}

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil)
	}
	return nil
}

// ValidateInterval validates a positive duration
func ValidateInterval(interval time.Duration, name string) error {
	if interval <= 0 {
		return errors.NewValidationError(name+" must be positive", nil)
	}
	return nil
}

// ValidateThresholds validates decision thresholds
func ValidateThresholds(thresholds Thresholds) error {
	if thresholds.ResponseTimeMs <= 0 {
		return errors.NewValidationError("response_time_ms must be positive", nil)
	}
	ratios := map[string]float64{
		"cpu_usage":    thresholds.CPUUsage,
		"memory_usage": thresholds.MemoryUsage,
		"error_rate":   thresholds.ErrorRate,
	}
	for name, value := range ratios {
		if value <= 0 || value > 1 {
			return errors.NewValidationError(name+" must be in (0, 1]", nil).WithContext("value", value)
		}
	}
	return nil
}

func validateMonitorConfig(config *MonitorConfig) error {
	if err := ValidateInterval(config.PollInterval, "poll_interval"); err != nil {
		return err
	}
	return ValidateInterval(config.HealthTimeout, "health_timeout")
}

func validateDecisionConfig(config *DecisionConfig) error {
	if config.MaxRestarts < 0 {
		return errors.NewValidationError("max_restarts cannot be negative", nil)
	}
	if config.EvidenceLimit <= 0 {
		return errors.NewValidationError("evidence_limit must be positive", nil)
	}
	if config.DecisionLogSize <= 0 {
		return errors.NewValidationError("decision_log_size must be positive", nil)
	}
	switch config.AutoExecute {
	case AutoExecuteEvidenceOrFirstRestart, AutoExecuteAlways, AutoExecuteNever:
	default:
		return errors.NewValidationError("unsupported auto_execute policy: "+string(config.AutoExecute), nil).
			WithContext("supported_policies", "evidence_or_first_restart, always, never")
	}
	return ValidateInterval(config.RestartSettleDelay, "restart_settle_delay")
}

func validateQueueConfig(config *QueueConfig) error {
	if err := ValidateInterval(config.DrainInterval, "drain_interval"); err != nil {
		return err
	}
	if err := ValidateInterval(config.Retention, "retention"); err != nil {
		return err
	}
	if config.BatchSize <= 0 {
		return errors.NewValidationError("batch_size must be positive", nil)
	}
	if config.UrgentPriority < 1 || config.UrgentPriority > 10 {
		return errors.NewValidationError("urgent_priority must be between 1 and 10", nil)
	}
	return nil
}

func validateStoreConfig(config StoreConfig, side string) error {
	switch config.Type {
	case StoreTypeMemory, StoreTypeGist, StoreTypeSQLite:
	case StoreTypePostgres, StoreTypeHTTP:
		if config.DSN == "" {
			return errors.NewValidationError("dsn is required for store type "+string(config.Type), nil).WithContext("store", side)
		}
	default:
		return errors.NewValidationError("unsupported store type: "+string(config.Type), nil).
			WithContext("store", side).
			WithContext("supported_types", "memory, sqlite, postgres, gist, http")
	}
	if config.RatePerSecond < 0 {
		return errors.NewValidationError("rate_per_second cannot be negative", nil).WithContext("store", side)
	}
	return nil
}

func validateSyncConfig(config *SyncConfig) error {
	if err := ValidateInterval(config.Interval, "sync interval"); err != nil {
		return err
	}
	if config.InitialDelay < 0 {
		return errors.NewValidationError("initial_delay cannot be negative", nil)
	}
	if config.LocalLimit <= 0 || config.RemoteLimit <= 0 || config.DecisionLimit <= 0 || config.HistorySize <= 0 {
		return errors.NewValidationError("sync limits must be positive", nil)
	}
	return nil
}

func validateSignalsConfig(config *SignalsConfig) error {
	switch config.Type {
	case SignalerTypeNone:
		return nil
	case SignalerTypeNATS:
		if config.NATSURL == "" {
			return errors.NewValidationError("nats_url is required for nats signals", nil)
		}
		return nil
	default:
		return errors.NewValidationError("unsupported signals type: "+string(config.Type), nil).
			WithContext("supported_types", "none, nats")
	}
}

// Package config provides environment-variable configuration loading and
// validation for the dispatch engine's subsystems.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig provides utilities for loading configuration from environment variables
type EnvConfig struct {
	prefix string // Optional prefix for all environment variables
}

// NewEnvConfig creates a new environment configuration loader
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{
		prefix: prefix,
	}
}

// GetString retrieves a string value from environment with optional default
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		return value
	}
	return defaultValue
}

// MustGetString retrieves a required string value from environment or panics
func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	value := os.Getenv(fullKey)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return value
}

// GetInt retrieves an integer value from environment with optional default
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetFloat retrieves a float value from environment with optional default
func (ec *EnvConfig) GetFloat(key string, defaultValue float64) float64 {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean value from environment with optional default
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetDuration retrieves a duration value from environment with optional default
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetStringSlice retrieves a comma-separated string slice from environment
func (ec *EnvConfig) GetStringSlice(key string, defaultValue []string) []string {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

// buildKey builds the full environment variable key with optional prefix
func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// ServerConfig contains the HTTP API surface's server configuration
// (spec §6 Producer/Consumer/Control/Introspection APIs).
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Debug           bool
}

// LoadServerConfig loads server configuration from environment
func LoadServerConfig(prefix string) ServerConfig {
	env := NewEnvConfig(prefix)
	return ServerConfig{
		Port:            env.GetInt("PORT", 8080),
		Host:            env.GetString("HOST", "0.0.0.0"),
		ReadTimeout:     env.GetDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    env.GetDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Debug:           env.GetBool("DEBUG", false),
	}
}

// TopologyConfig configures the broker's exchange/queue/binding snapshot
// store (spec §4.1 Topology Registry).
type TopologyConfig struct {
	RedisURL           string
	RedisDB            int
	SnapshotRetainOld  int           // how many superseded generations to retain before GC
	BindingCacheExpiry time.Duration
}

// LoadTopologyConfig loads topology configuration from environment
func LoadTopologyConfig(prefix string) TopologyConfig {
	env := NewEnvConfig(prefix)
	return TopologyConfig{
		RedisURL:           env.GetString("REDIS_URL", "redis://localhost:6379/0"),
		RedisDB:            env.GetInt("REDIS_DB", 0),
		SnapshotRetainOld:  env.GetInt("SNAPSHOT_RETAIN_OLD", 3),
		BindingCacheExpiry: env.GetDuration("BINDING_CACHE_EXPIRY", 5*time.Minute),
	}
}

// RouterConfig configures routing-key to binding matching (spec §4.2
// Router).
type RouterConfig struct {
	MaxBindingsPerExchange int
	DefaultDeadLetter      string
}

// LoadRouterConfig loads router configuration from environment
func LoadRouterConfig(prefix string) RouterConfig {
	env := NewEnvConfig(prefix)
	return RouterConfig{
		MaxBindingsPerExchange: env.GetInt("MAX_BINDINGS_PER_EXCHANGE", 1000),
		DefaultDeadLetter:      env.GetString("DEFAULT_DEAD_LETTER", ""),
	}
}

// SchedulerConfig configures the cron/delay/dependency/timer orchestrator
// (spec §4.3 Job Scheduler).
type SchedulerConfig struct {
	TickInterval        time.Duration
	MaxDelayedEnvelopes  int
	DefaultRateLimitRPS  float64
	DefaultRateBurst     int
}

// LoadSchedulerConfig loads scheduler configuration from environment
func LoadSchedulerConfig(prefix string) SchedulerConfig {
	env := NewEnvConfig(prefix)
	return SchedulerConfig{
		TickInterval:        env.GetDuration("TICK_INTERVAL", time.Second),
		MaxDelayedEnvelopes: env.GetInt("MAX_DELAYED_ENVELOPES", 100000),
		DefaultRateLimitRPS: env.GetFloat("DEFAULT_RATE_LIMIT_RPS", 100.0),
		DefaultRateBurst:    env.GetInt("DEFAULT_RATE_BURST", 50),
	}
}

// WorkerPoolConfig configures worker registration, placement strategy, and
// heartbeat-based liveness (spec §4.4 Worker Pool Manager).
type WorkerPoolConfig struct {
	Strategy            string
	HeartbeatInterval   time.Duration
	MissedHeartbeatsMax int
}

// LoadWorkerPoolConfig loads worker pool configuration from environment
func LoadWorkerPoolConfig(prefix string) WorkerPoolConfig {
	env := NewEnvConfig(prefix)
	return WorkerPoolConfig{
		Strategy:            env.GetString("STRATEGY", "least-loaded"),
		HeartbeatInterval:   env.GetDuration("HEARTBEAT_INTERVAL", 10*time.Second),
		MissedHeartbeatsMax: env.GetInt("MISSED_HEARTBEATS_MAX", 3),
	}
}

// RuntimeConfig configures envelope execution and retry behavior (spec
// §4.5 Execution Runtime).
type RuntimeConfig struct {
	DefaultMaxAttempts int
	HTTPTimeout        time.Duration
	CommandShell       string
}

// LoadRuntimeConfig loads runtime configuration from environment
func LoadRuntimeConfig(prefix string) RuntimeConfig {
	env := NewEnvConfig(prefix)
	return RuntimeConfig{
		DefaultMaxAttempts: env.GetInt("DEFAULT_MAX_ATTEMPTS", 5),
		HTTPTimeout:        env.GetDuration("HTTP_TIMEOUT", 30*time.Second),
		CommandShell:       env.GetString("COMMAND_SHELL", "/bin/sh"),
	}
}

// WorkflowConfig configures the BPMN-style workflow interpreter (spec
// §4.6 Workflow Engine).
type WorkflowConfig struct {
	MaxHistoryEvents  int
	DefaultHumanTaskTimeout time.Duration
}

// LoadWorkflowConfig loads workflow configuration from environment
func LoadWorkflowConfig(prefix string) WorkflowConfig {
	env := NewEnvConfig(prefix)
	return WorkflowConfig{
		MaxHistoryEvents:        env.GetInt("MAX_HISTORY_EVENTS", 500),
		DefaultHumanTaskTimeout: env.GetDuration("DEFAULT_HUMAN_TASK_TIMEOUT", 24*time.Hour),
	}
}

// ObservabilityConfig configures metrics, tracing, and audit logging
// (spec §4.7 Observability Surface).
type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPath    string
	OTLPEndpoint   string
	TracingEnabled bool
	AuditLogMax    int
}

// LoadObservabilityConfig loads observability configuration from environment
func LoadObservabilityConfig(prefix string) ObservabilityConfig {
	env := NewEnvConfig(prefix)
	return ObservabilityConfig{
		MetricsEnabled: env.GetBool("METRICS_ENABLED", true),
		MetricsPath:    env.GetString("METRICS_PATH", "/metrics"),
		OTLPEndpoint:   env.GetString("OTLP_ENDPOINT", "http://localhost:4318"),
		TracingEnabled: env.GetBool("TRACING_ENABLED", false),
		AuditLogMax:    env.GetInt("AUDIT_LOG_MAX", 10000),
	}
}

// ServiceConfig contains common service identity configuration
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
	LogFormat   string
}

// LoadServiceConfig loads service configuration from environment
func LoadServiceConfig(prefix string) ServiceConfig {
	env := NewEnvConfig(prefix)
	return ServiceConfig{
		Name:        env.GetString("NAME", "dispatch-engine"),
		Version:     env.GetString("VERSION", "0.0.1"),
		Environment: env.GetString("ENVIRONMENT", "development"),
		LogLevel:    env.GetString("LOG_LEVEL", "info"),
		LogFormat:   env.GetString("LOG_FORMAT", "text"),
	}
}

// AuthConfig contains API authentication configuration (spec §6 Control
// API authorization).
type AuthConfig struct {
	APIKey    string
	JWTSecret string
	JWTExpiry time.Duration
}

// LoadAuthConfig loads authentication configuration from environment
func LoadAuthConfig(prefix string) AuthConfig {
	env := NewEnvConfig(prefix)
	return AuthConfig{
		APIKey:    env.GetString("API_KEY", ""),
		JWTSecret: env.GetString("JWT_SECRET", ""),
		JWTExpiry: env.GetDuration("JWT_EXPIRY", 24*time.Hour),
	}
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: make([]string, 0),
	}
}

// RequireString validates that a string field is not empty
func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// RequireInt validates that an integer field is within range
func (v *Validator) RequireInt(field string, value, min, max int) {
	if value < min || value > max {
		v.errors = append(v.errors, fmt.Sprintf("%s must be between %d and %d", field, min, max))
	}
}

// RequirePositiveInt validates that an integer field is positive
func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequirePositiveFloat validates that a float field is positive
func (v *Validator) RequirePositiveFloat(field string, value float64) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequireOneOf validates that a value is one of the allowed options
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// IsValid returns true if there are no validation errors
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []string {
	return v.errors
}

// ErrorString returns all validation errors as a single string
func (v *Validator) ErrorString() string {
	if len(v.errors) == 0 {
		return ""
	}
	return strings.Join(v.errors, "; ")
}

// Validate runs validation and returns error if invalid
func (v *Validator) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("configuration validation failed: %s", v.ErrorString())
	}
	return nil
}

// ConfigLoader provides a fluent interface for loading the engine's
// configuration from environment variables.
type ConfigLoader struct {
	prefix string
	env    *EnvConfig
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader(prefix string) *ConfigLoader {
	return &ConfigLoader{
		prefix: prefix,
		env:    NewEnvConfig(prefix),
	}
}

// LoadAll loads every subsystem's configuration and validates the result.
func (cl *ConfigLoader) LoadAll() (*AllConfig, error) {
	config := &AllConfig{
		Server:        LoadServerConfig(cl.prefix),
		Service:       LoadServiceConfig(cl.prefix),
		Auth:          LoadAuthConfig(cl.prefix + "_AUTH"),
		Topology:      LoadTopologyConfig(cl.prefix + "_TOPOLOGY"),
		Router:        LoadRouterConfig(cl.prefix + "_ROUTER"),
		Scheduler:     LoadSchedulerConfig(cl.prefix + "_SCHEDULER"),
		WorkerPool:    LoadWorkerPoolConfig(cl.prefix + "_WORKERPOOL"),
		Runtime:       LoadRuntimeConfig(cl.prefix + "_RUNTIME"),
		Workflow:      LoadWorkflowConfig(cl.prefix + "_WORKFLOW"),
		Observability: LoadObservabilityConfig(cl.prefix + "_OBSERVABILITY"),
	}

	if err := cl.validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validate validates the loaded configuration
func (cl *ConfigLoader) validate(config *AllConfig) error {
	validator := NewValidator()

	validator.RequireString("Service.Name", config.Service.Name)
	validator.RequireOneOf("Service.Environment", config.Service.Environment,
		[]string{"development", "staging", "production"})
	validator.RequireOneOf("Service.LogLevel", config.Service.LogLevel,
		[]string{"debug", "info", "warn", "error"})

	validator.RequirePositiveInt("Server.Port", config.Server.Port)
	validator.RequireOneOf("WorkerPool.Strategy", config.WorkerPool.Strategy,
		[]string{"least-loaded", "round-robin", "random", "weighted"})
	validator.RequirePositiveInt("WorkerPool.MissedHeartbeatsMax", config.WorkerPool.MissedHeartbeatsMax)
	validator.RequirePositiveFloat("Scheduler.DefaultRateLimitRPS", config.Scheduler.DefaultRateLimitRPS)

	return validator.Validate()
}

// AllConfig aggregates every subsystem's configuration.
type AllConfig struct {
	Server        ServerConfig
	Service       ServiceConfig
	Auth          AuthConfig
	Topology      TopologyConfig
	Router        RouterConfig
	Scheduler     SchedulerConfig
	WorkerPool    WorkerPoolConfig
	Runtime       RuntimeConfig
	Workflow      WorkflowConfig
	Observability ObservabilityConfig
}

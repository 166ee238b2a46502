// Package config loads and validates autopilot configuration from YAML
// files, merging file values over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ExecutionConfig controls the task executor.
type ExecutionConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int `yaml:"max_retries"`

	// RetryDelaySeconds is the fixed delay between retry attempts
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`

	// MaxConcurrentTasks bounds parallel execution and sets the batch size
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// TaskTimeoutSeconds bounds a single handler invocation
	TaskTimeoutSeconds int `yaml:"task_timeout_seconds"`
}

// PlanningConfig controls the task planner.
type PlanningConfig struct {
	// MaxSubtasks caps the number of tasks in a plan; surplus is consolidated
	MaxSubtasks int `yaml:"max_subtasks"`

	// TimeoutSeconds bounds plan creation
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxReplanningAttempts caps replanning rounds during a goal pursuit
	MaxReplanningAttempts int `yaml:"max_replanning_attempts"`

	// PlaybookDir holds markdown plan templates; empty disables playbooks
	PlaybookDir string `yaml:"playbook_dir"`
}

// SafetyConfig controls rate limits, resource thresholds and permissions.
type SafetyConfig struct {
	// ActionsPerMinute limits system commands and file operations
	ActionsPerMinute int `yaml:"actions_per_minute"`

	// APICallsPerMinute limits api_call actions
	APICallsPerMinute int `yaml:"api_calls_per_minute"`

	// MemoryWritesPerMinute limits memory_operation actions
	MemoryWritesPerMinute int `yaml:"memory_writes_per_minute"`

	// CPUPercentLimit rejects actions while CPU usage exceeds this percentage
	CPUPercentLimit float64 `yaml:"cpu_percent_limit"`

	// MemoryLimitMB rejects actions while used memory exceeds this many MB
	MemoryLimitMB float64 `yaml:"memory_limit_mb"`

	// RequireApprovalFor lists action types that always need approval
	RequireApprovalFor []string `yaml:"require_approval_for"`
}

// EvaluationConfig controls the critic.
type EvaluationConfig struct {
	// Aggregation is one of: weighted_average, minimum, geometric_mean
	Aggregation string `yaml:"aggregation"`

	// BaselineSeconds is the expected duration used when a task carries
	// no estimate and no history exists
	BaselineSeconds int `yaml:"baseline_seconds"`
}

// MemoryConfig controls the persistent memory store.
type MemoryConfig struct {
	// DBPath is the SQLite database location
	DBPath string `yaml:"db_path"`
}

// Config represents autopilot configuration options.
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written
	LogDir string `yaml:"log_dir"`

	Execution  ExecutionConfig  `yaml:"execution"`
	Planning   PlanningConfig   `yaml:"planning"`
	Safety     SafetyConfig     `yaml:"safety"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Memory     MemoryConfig     `yaml:"memory"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogDir:   filepath.Join(".autopilot", "logs"),
		Execution: ExecutionConfig{
			MaxRetries:         3,
			RetryDelaySeconds:  1,
			MaxConcurrentTasks: 3,
			TaskTimeoutSeconds: 300,
		},
		Planning: PlanningConfig{
			MaxSubtasks:           10,
			TimeoutSeconds:        60,
			MaxReplanningAttempts: 3,
			PlaybookDir:           filepath.Join(".autopilot", "playbooks"),
		},
		Safety: SafetyConfig{
			ActionsPerMinute:      30,
			APICallsPerMinute:     60,
			MemoryWritesPerMinute: 120,
			CPUPercentLimit:       80,
			MemoryLimitMB:         1024,
			RequireApprovalFor:    []string{},
		},
		Evaluation: EvaluationConfig{
			Aggregation:     "weighted_average",
			BaselineSeconds: 120,
		},
		Memory: MemoryConfig{
			DBPath: filepath.Join(".autopilot", "memory.db"),
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.merge(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromDir loads configuration from .autopilot/config.yaml in the
// specified directory, falling back to defaults when absent.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".autopilot", "config.yaml"))
}

// merge applies non-zero values from the YAML document over the receiver.
func (c *Config) merge(data []byte) error {
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if fileCfg.LogLevel != "" {
		c.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogDir != "" {
		c.LogDir = fileCfg.LogDir
	}

	if fileCfg.Execution.MaxRetries != 0 {
		c.Execution.MaxRetries = fileCfg.Execution.MaxRetries
	}
	if fileCfg.Execution.RetryDelaySeconds != 0 {
		c.Execution.RetryDelaySeconds = fileCfg.Execution.RetryDelaySeconds
	}
	if fileCfg.Execution.MaxConcurrentTasks != 0 {
		c.Execution.MaxConcurrentTasks = fileCfg.Execution.MaxConcurrentTasks
	}
	if fileCfg.Execution.TaskTimeoutSeconds != 0 {
		c.Execution.TaskTimeoutSeconds = fileCfg.Execution.TaskTimeoutSeconds
	}

	if fileCfg.Planning.MaxSubtasks != 0 {
		c.Planning.MaxSubtasks = fileCfg.Planning.MaxSubtasks
	}
	if fileCfg.Planning.TimeoutSeconds != 0 {
		c.Planning.TimeoutSeconds = fileCfg.Planning.TimeoutSeconds
	}
	if fileCfg.Planning.MaxReplanningAttempts != 0 {
		c.Planning.MaxReplanningAttempts = fileCfg.Planning.MaxReplanningAttempts
	}
	if fileCfg.Planning.PlaybookDir != "" {
		c.Planning.PlaybookDir = fileCfg.Planning.PlaybookDir
	}

	if fileCfg.Safety.ActionsPerMinute != 0 {
		c.Safety.ActionsPerMinute = fileCfg.Safety.ActionsPerMinute
	}
	if fileCfg.Safety.APICallsPerMinute != 0 {
		c.Safety.APICallsPerMinute = fileCfg.Safety.APICallsPerMinute
	}
	if fileCfg.Safety.MemoryWritesPerMinute != 0 {
		c.Safety.MemoryWritesPerMinute = fileCfg.Safety.MemoryWritesPerMinute
	}
	if fileCfg.Safety.CPUPercentLimit != 0 {
		c.Safety.CPUPercentLimit = fileCfg.Safety.CPUPercentLimit
	}
	if fileCfg.Safety.MemoryLimitMB != 0 {
		c.Safety.MemoryLimitMB = fileCfg.Safety.MemoryLimitMB
	}
	if len(fileCfg.Safety.RequireApprovalFor) > 0 {
		c.Safety.RequireApprovalFor = fileCfg.Safety.RequireApprovalFor
	}

	if fileCfg.Evaluation.Aggregation != "" {
		c.Evaluation.Aggregation = fileCfg.Evaluation.Aggregation
	}
	if fileCfg.Evaluation.BaselineSeconds != 0 {
		c.Evaluation.BaselineSeconds = fileCfg.Evaluation.BaselineSeconds
	}

	if fileCfg.Memory.DBPath != "" {
		c.Memory.DBPath = fileCfg.Memory.DBPath
	}

	return nil
}

// Validate validates the configuration values.
// Returns an error if any values are invalid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.max_retries must be >= 0, got %d", c.Execution.MaxRetries)
	}
	if c.Execution.RetryDelaySeconds < 0 {
		return fmt.Errorf("execution.retry_delay_seconds must be >= 0, got %d", c.Execution.RetryDelaySeconds)
	}
	if c.Execution.MaxConcurrentTasks < 1 {
		return fmt.Errorf("execution.max_concurrent_tasks must be >= 1, got %d", c.Execution.MaxConcurrentTasks)
	}
	if c.Execution.TaskTimeoutSeconds <= 0 {
		return fmt.Errorf("execution.task_timeout_seconds must be > 0, got %d", c.Execution.TaskTimeoutSeconds)
	}

	if c.Planning.MaxSubtasks < 1 {
		return fmt.Errorf("planning.max_subtasks must be >= 1, got %d", c.Planning.MaxSubtasks)
	}
	if c.Planning.TimeoutSeconds <= 0 {
		return fmt.Errorf("planning.timeout_seconds must be > 0, got %d", c.Planning.TimeoutSeconds)
	}
	if c.Planning.MaxReplanningAttempts < 0 {
		return fmt.Errorf("planning.max_replanning_attempts must be >= 0, got %d", c.Planning.MaxReplanningAttempts)
	}

	if c.Safety.ActionsPerMinute < 1 {
		return fmt.Errorf("safety.actions_per_minute must be >= 1, got %d", c.Safety.ActionsPerMinute)
	}
	if c.Safety.APICallsPerMinute < 1 {
		return fmt.Errorf("safety.api_calls_per_minute must be >= 1, got %d", c.Safety.APICallsPerMinute)
	}
	if c.Safety.MemoryWritesPerMinute < 1 {
		return fmt.Errorf("safety.memory_writes_per_minute must be >= 1, got %d", c.Safety.MemoryWritesPerMinute)
	}
	if c.Safety.CPUPercentLimit <= 0 || c.Safety.CPUPercentLimit > 100 {
		return fmt.Errorf("safety.cpu_percent_limit must be in (0, 100], got %v", c.Safety.CPUPercentLimit)
	}
	if c.Safety.MemoryLimitMB <= 0 {
		return fmt.Errorf("safety.memory_limit_mb must be > 0, got %v", c.Safety.MemoryLimitMB)
	}

	switch c.Evaluation.Aggregation {
	case "weighted_average", "minimum", "geometric_mean":
	default:
		return fmt.Errorf("invalid evaluation.aggregation %q, must be one of: weighted_average, minimum, geometric_mean", c.Evaluation.Aggregation)
	}
	if c.Evaluation.BaselineSeconds <= 0 {
		return fmt.Errorf("evaluation.baseline_seconds must be > 0, got %d", c.Evaluation.BaselineSeconds)
	}

	if c.Memory.DBPath == "" {
		return fmt.Errorf("memory.db_path cannot be empty")
	}

	return nil
}

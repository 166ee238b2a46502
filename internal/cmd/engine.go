package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/autopilot/internal/agent"
	"github.com/harrison/autopilot/internal/config"
	"github.com/harrison/autopilot/internal/critic"
	"github.com/harrison/autopilot/internal/directive"
	"github.com/harrison/autopilot/internal/executor"
	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/memory"
	"github.com/harrison/autopilot/internal/observer"
	"github.com/harrison/autopilot/internal/planner"
	"github.com/harrison/autopilot/internal/safety"
)

// Default directive configuration. The directive manager has no config
// file section; these mirror the agent's standing instructions.
var (
	defaultPrimeDirective = "Be productive and helpful while avoiding harm"
	defaultConstraints    = []string{
		"Never cause harm to users or systems",
		"Protect private and confidential information",
		"Never expose passwords, keys, or credentials",
	}
	defaultGoals = []string{
		"Complete tasks efficiently and productively",
		"Learn from experience to improve over time",
		"Maintain system stability and safety",
	}
)

// multiLogger fans every message out to each wrapped logger.
type multiLogger struct {
	loggers []logger.Logger
}

func (m *multiLogger) LogTrace(message string) {
	for _, l := range m.loggers {
		l.LogTrace(message)
	}
}

func (m *multiLogger) LogDebug(message string) {
	for _, l := range m.loggers {
		l.LogDebug(message)
	}
}

func (m *multiLogger) LogInfo(message string) {
	for _, l := range m.loggers {
		l.LogInfo(message)
	}
}

func (m *multiLogger) LogWarn(message string) {
	for _, l := range m.loggers {
		l.LogWarn(message)
	}
}

func (m *multiLogger) LogError(message string) {
	for _, l := range m.loggers {
		l.LogError(message)
	}
}

// engine bundles the wired subsystems for a CLI invocation.
type engine struct {
	cfg      *config.Config
	log      logger.Logger
	fileLog  *logger.FileLogger
	store    memory.Store
	planner  *planner.Planner
	executor *executor.Executor
	observer *observer.Observer
	safety   *safety.Manager
	agent    *agent.Agent
}

func loadConfigFromFlags(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return config.LoadConfig(configPath)
	}
	return config.LoadConfigFromDir(".")
}

// buildEngine wires the full subsystem stack from flags and config.
func buildEngine(cmd *cobra.Command) (*engine, error) {
	cfg, err := loadConfigFromFlags(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logLevel, _ := cmd.Flags().GetString("log-level")
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	consoleLog := logger.NewConsoleLogger(os.Stderr, logLevel)

	var log logger.Logger = consoleLog
	var fileLog *logger.FileLogger
	if cfg.LogDir != "" {
		fileLog, err = logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, logLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		// Write to both console and file
		log = &multiLogger{loggers: []logger.Logger{consoleLog, fileLog}}
	}

	store, err := memory.NewSQLiteStore(cfg.Memory.DBPath)
	if err != nil {
		if fileLog != nil {
			fileLog.Close()
		}
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	evaluator := directive.NewManager(defaultPrimeDirective, defaultConstraints, defaultGoals)
	sampler := &safety.RuntimeSampler{}

	var playbooks *planner.PlaybookLibrary
	if cfg.Planning.PlaybookDir != "" {
		playbooks, err = planner.NewPlaybookLibrary(cfg.Planning.PlaybookDir, log)
		if err != nil {
			store.Close()
			if fileLog != nil {
				fileLog.Close()
			}
			return nil, fmt.Errorf("failed to load playbooks: %w", err)
		}
	}

	sm := safety.NewManager(cfg.Safety, sampler, log)
	backend := executor.NewGuardedBackend(executor.NewSimBackend(), sm, log)

	pl := planner.New(cfg.Planning, evaluator, store, playbooks, log)
	ex := executor.New(cfg.Execution, evaluator, store, backend, log)
	cr := critic.New(cfg.Evaluation, evaluator, store, log)
	ob := observer.New(store, sampler, log)

	return &engine{
		cfg:      cfg,
		log:      log,
		fileLog:  fileLog,
		store:    store,
		planner:  pl,
		executor: ex,
		observer: ob,
		safety:   sm,
		agent:    agent.New(cfg, pl, ex, cr, ob, sm, store, log),
	}, nil
}

func (e *engine) Close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.fileLog != nil {
		e.fileLog.Close()
	}
}

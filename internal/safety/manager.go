// Package safety gates every action the agent takes: rate limits,
// permission rules, dangerous-pattern screening and resource pressure
// checks run in order before an action may proceed.
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/autopilot/internal/config"
	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/models"
)

// maxViolationHistory caps the in-memory violation record.
const maxViolationHistory = 1000

// minAvailableMB is the floor of available memory below which all actions
// are rejected regardless of configured limits.
const minAvailableMB = 100

// AlertFunc receives critical violations as they are recorded.
type AlertFunc func(v models.Violation)

// Result is the outcome of validating one action.
type Result struct {
	Allowed   bool
	Kind      models.ViolationKind
	Reason    string
	Violation *models.Violation
}

// Manager validates actions against rate limits, permissions, dangerous
// patterns and resource thresholds, in that order. The first failing check
// rejects the action.
type Manager struct {
	limiter            *RateLimiter
	sampler            Sampler
	log                logger.Logger
	cpuLimit           float64
	memLimitMB         float64
	requireApprovalFor map[string]bool

	mu         sync.Mutex
	violations []models.Violation
	alert      AlertFunc
}

// NewManager builds a Manager from safety configuration.
func NewManager(cfg config.SafetyConfig, sampler Sampler, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if sampler == nil {
		sampler = &RuntimeSampler{}
	}
	approval := make(map[string]bool, len(cfg.RequireApprovalFor))
	for _, actionType := range cfg.RequireApprovalFor {
		approval[actionType] = true
	}
	return &Manager{
		limiter:            NewRateLimiter(cfg.ActionsPerMinute, cfg.APICallsPerMinute, cfg.MemoryWritesPerMinute),
		sampler:            sampler,
		log:                log,
		cpuLimit:           cfg.CPUPercentLimit,
		memLimitMB:         cfg.MemoryLimitMB,
		requireApprovalFor: approval,
	}
}

// SetAlertFunc registers a callback invoked for critical violations.
func (m *Manager) SetAlertFunc(fn AlertFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alert = fn
}

// ValidateAction runs the full check pipeline. A disallowed result carries
// the violation that was recorded.
func (m *Manager) ValidateAction(ctx context.Context, description, actionType string, params map[string]interface{}) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// 1. Rate limit
	bucket, ok := m.limiter.Allow(actionType, time.Now())
	if !ok {
		reason := fmt.Sprintf("rate limit exceeded for bucket %q", bucket)
		v := m.record(models.ViolationRateLimit, reason, map[string]interface{}{
			"action_type": actionType,
			"bucket":      bucket,
		})
		return Result{Allowed: false, Kind: models.ViolationRateLimit, Reason: reason, Violation: v}, nil
	}

	// 2. Permission
	if reason := checkPermission(actionType, params, m.requireApprovalFor); reason != "" {
		v := m.record(models.ViolationPermission, reason, map[string]interface{}{
			"action_type": actionType,
			"description": description,
		})
		return Result{Allowed: false, Kind: models.ViolationPermission, Reason: reason, Violation: v}, nil
	}

	// 3. Dangerous patterns
	if category, pattern := checkDangerousPatterns(description, actionType, params); pattern != "" {
		reason := fmt.Sprintf("dangerous pattern %q (%s)", pattern, category)
		v := m.record(models.ViolationDangerousAction, reason, map[string]interface{}{
			"action_type": actionType,
			"category":    category,
			"pattern":     pattern,
		})
		return Result{Allowed: false, Kind: models.ViolationDangerousAction, Reason: reason, Violation: v}, nil
	}

	// 4. Resources
	if reason := m.resourcePressure(); reason != "" {
		v := m.record(models.ViolationResource, reason, map[string]interface{}{
			"action_type": actionType,
		})
		return Result{Allowed: false, Kind: models.ViolationResource, Reason: reason, Violation: v}, nil
	}

	return Result{Allowed: true}, nil
}

// resourcePressure returns a non-empty reason when host resources exceed
// configured thresholds. Sampler failures are logged, not fatal.
func (m *Manager) resourcePressure() string {
	reading, err := m.sampler.Sample()
	if err != nil {
		m.log.LogWarn(fmt.Sprintf("resource sampler failed: %v", err))
		return ""
	}
	if reading.CPUPercent > m.cpuLimit {
		return fmt.Sprintf("CPU usage %.1f%% exceeds limit %.1f%%", reading.CPUPercent, m.cpuLimit)
	}
	if reading.UsedMB > m.memLimitMB {
		return fmt.Sprintf("memory usage %.0fMB exceeds limit %.0fMB", reading.UsedMB, m.memLimitMB)
	}
	if reading.AvailableMB < minAvailableMB {
		return fmt.Sprintf("available memory %.0fMB below %dMB floor", reading.AvailableMB, minAvailableMB)
	}
	return ""
}

// MonitorResources takes one resource sample and records an anomaly
// violation when thresholds are exceeded. Intended as the body of a
// background polling loop.
func (m *Manager) MonitorResources(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if reason := m.resourcePressure(); reason != "" {
		m.record(models.ViolationAnomaly, "resource anomaly: "+reason, nil)
	}
	return nil
}

// record appends a violation to history, trimming the oldest entries past
// the cap, and fires the alert callback for critical violations.
func (m *Manager) record(kind models.ViolationKind, description string, context map[string]interface{}) *models.Violation {
	v := models.Violation{
		ID:          uuid.New().String(),
		Kind:        kind,
		Risk:        riskForKind(kind),
		Description: description,
		Context:     context,
		Timestamp:   time.Now(),
	}

	m.mu.Lock()
	m.violations = append(m.violations, v)
	if len(m.violations) > maxViolationHistory {
		m.violations = m.violations[len(m.violations)-maxViolationHistory:]
	}
	alert := m.alert
	m.mu.Unlock()

	m.log.LogWarn(fmt.Sprintf("safety violation [%s/%s]: %s", v.Kind, v.Risk, v.Description))

	if v.Risk == models.RiskCritical && alert != nil {
		alert(v)
	}
	return &v
}

func riskForKind(kind models.ViolationKind) models.RiskLevel {
	switch kind {
	case models.ViolationRateLimit:
		return models.RiskMedium
	case models.ViolationPermission:
		return models.RiskHigh
	case models.ViolationDangerousAction:
		return models.RiskCritical
	case models.ViolationResource, models.ViolationAnomaly:
		return models.RiskHigh
	default:
		return models.RiskMedium
	}
}

// Violations returns up to limit most recent violations, newest first.
// limit <= 0 returns all.
func (m *Manager) Violations(limit int) []models.Violation {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.violations)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Violation, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.violations[i])
	}
	return out
}

// Status is a snapshot of safety state for reporting.
type Status struct {
	ViolationsByKind map[models.ViolationKind]int
	ViolationsByRisk map[models.RiskLevel]int
	LimiterOccupancy map[string]int
}

// Status summarizes violation history and limiter usage.
func (m *Manager) Status() Status {
	m.mu.Lock()
	byKind := make(map[models.ViolationKind]int)
	byRisk := make(map[models.RiskLevel]int)
	for _, v := range m.violations {
		byKind[v.Kind]++
		byRisk[v.Risk]++
	}
	m.mu.Unlock()

	return Status{
		ViolationsByKind: byKind,
		ViolationsByRisk: byRisk,
		LimiterOccupancy: m.limiter.Occupancy(time.Now()),
	}
}

package models

import "time"

// ViolationKind classifies why the safety manager rejected an action.
type ViolationKind string

// Violation kinds.
const (
	ViolationRateLimit       ViolationKind = "rate_limit"
	ViolationPermission      ViolationKind = "permission"
	ViolationResource        ViolationKind = "resource"
	ViolationDangerousAction ViolationKind = "dangerous_action"
	ViolationAnomaly         ViolationKind = "anomaly"
)

// RiskLevel grades how dangerous an action or violation is.
type RiskLevel string

// Risk levels from least to most severe.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Violation records one rejected action or detected anomaly.
type Violation struct {
	ID          string                 `json:"id"`
	Kind        ViolationKind          `json:"kind"`
	Risk        RiskLevel              `json:"risk"`
	Description string                 `json:"description"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

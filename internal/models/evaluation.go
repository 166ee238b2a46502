package models

import "time"

// Evaluation criteria names used as keys in Evaluation.Scores.
const (
	CriterionSuccess            = "success"
	CriterionEfficiency         = "efficiency"
	CriterionQuality            = "quality"
	CriterionDirectiveAlignment = "directive_alignment"
	CriterionLearningValue      = "learning_value"
)

// EvaluationLevel is the qualitative band an overall score falls into.
type EvaluationLevel string

// Evaluation levels from best to worst.
const (
	LevelExcellent EvaluationLevel = "excellent"
	LevelGood      EvaluationLevel = "good"
	LevelFair      EvaluationLevel = "fair"
	LevelPoor      EvaluationLevel = "poor"
	LevelFailed    EvaluationLevel = "failed"
)

// LevelForScore maps an overall score to its qualitative band.
func LevelForScore(score float64) EvaluationLevel {
	switch {
	case score >= 0.9:
		return LevelExcellent
	case score >= 0.7:
		return LevelGood
	case score >= 0.5:
		return LevelFair
	case score >= 0.3:
		return LevelPoor
	default:
		return LevelFailed
	}
}

// Evaluation is the critic's multi-criteria judgment of one task execution.
type Evaluation struct {
	ID              string             `json:"id"`
	TaskID          string             `json:"task_id"`
	ActionType      string             `json:"action_type"`
	Scores          map[string]float64 `json:"scores"`
	Overall         float64            `json:"overall"`
	Level           EvaluationLevel    `json:"level"`
	Feedback        []string           `json:"feedback,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	EvaluatedAt     time.Time          `json:"evaluated_at"`
}

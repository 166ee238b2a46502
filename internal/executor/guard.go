package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/safety"
)

// ErrActionBlocked marks a backend call rejected by the safety pipeline.
var ErrActionBlocked = errors.New("action blocked by safety policy")

// ActionValidator is the pre-action safety check consulted before every
// side-effecting backend call. *safety.Manager implements it.
type ActionValidator interface {
	ValidateAction(ctx context.Context, description, actionType string, params map[string]interface{}) (safety.Result, error)
}

// GuardedBackend wraps a Backend so every command, file operation and API
// call passes rate-limit, permission, dangerous-pattern and resource
// checks first. Denied calls never reach the inner backend; allowed calls
// carry their assessed risk level in the result.
type GuardedBackend struct {
	inner     Backend
	validator ActionValidator
	log       logger.Logger
}

// NewGuardedBackend wraps backend with the given validator.
func NewGuardedBackend(backend Backend, validator ActionValidator, log logger.Logger) *GuardedBackend {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &GuardedBackend{inner: backend, validator: validator, log: log}
}

func (g *GuardedBackend) guard(ctx context.Context, description, actionType string, params map[string]interface{}) error {
	res, err := g.validator.ValidateAction(ctx, description, actionType, params)
	if err != nil {
		return err
	}
	if !res.Allowed {
		g.log.LogWarn(fmt.Sprintf("blocked %s %q: %s", actionType, description, res.Reason))
		return fmt.Errorf("%w: %s", ErrActionBlocked, res.Reason)
	}

	risk := safety.AssessRisk(description, actionType, params)
	if len(params) > 0 {
		params["risk_level"] = string(risk)
	}
	return nil
}

// riskOf reads back the risk grade the guard stashed during validation.
func riskOf(params map[string]interface{}) string {
	if v, ok := params["risk_level"].(string); ok {
		return v
	}
	return ""
}

// ExecuteCommand validates the command before delegating.
func (g *GuardedBackend) ExecuteCommand(ctx context.Context, command, workingDir string, timeout time.Duration) (map[string]interface{}, error) {
	params := map[string]interface{}{
		"command":     command,
		"working_dir": workingDir,
	}
	if err := g.guard(ctx, command, "system_command", params); err != nil {
		return nil, err
	}

	out, err := g.inner.ExecuteCommand(ctx, command, workingDir, timeout)
	if out != nil {
		out["risk_level"] = riskOf(params)
	}
	return out, err
}

// ExecuteFileOperation validates the operation and path before delegating.
func (g *GuardedBackend) ExecuteFileOperation(ctx context.Context, operation, filePath, content string, params map[string]interface{}) (map[string]interface{}, error) {
	checked := map[string]interface{}{
		"operation": operation,
		"file_path": filePath,
	}
	for k, v := range params {
		checked[k] = v
	}
	description := fmt.Sprintf("%s %s", operation, filePath)
	if err := g.guard(ctx, description, "file_operation", checked); err != nil {
		return nil, err
	}

	out, err := g.inner.ExecuteFileOperation(ctx, operation, filePath, content, params)
	if out != nil {
		out["risk_level"] = riskOf(checked)
	}
	return out, err
}

// ExecuteAPICall validates the request before delegating.
func (g *GuardedBackend) ExecuteAPICall(ctx context.Context, method, url string, headers map[string]string, body interface{}, timeout time.Duration) (map[string]interface{}, error) {
	params := map[string]interface{}{
		"method": method,
		"url":    url,
	}
	description := fmt.Sprintf("%s %s", method, url)
	if err := g.guard(ctx, description, "api_call", params); err != nil {
		return nil, err
	}

	out, err := g.inner.ExecuteAPICall(ctx, method, url, headers, body, timeout)
	if out != nil {
		out["risk_level"] = riskOf(params)
	}
	return out, err
}

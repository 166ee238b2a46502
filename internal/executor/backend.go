package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Backend performs the side-effecting parts of task execution: running
// commands, touching files and calling external APIs. Handlers delegate to
// it so the engine can run against a simulation in tests and dry runs.
type Backend interface {
	ExecuteCommand(ctx context.Context, command, workingDir string, timeout time.Duration) (map[string]interface{}, error)
	ExecuteFileOperation(ctx context.Context, operation, filePath, content string, params map[string]interface{}) (map[string]interface{}, error)
	ExecuteAPICall(ctx context.Context, method, url string, headers map[string]string, body interface{}, timeout time.Duration) (map[string]interface{}, error)
}

// SimBackend is a deterministic in-process backend. Commands, file
// operations and API calls succeed unless the input names a failure
// trigger, so tests and dry runs get repeatable outcomes.
type SimBackend struct {
	mu    sync.Mutex
	files map[string]string
	calls []string
}

// NewSimBackend creates a simulation backend with an empty virtual
// filesystem.
func NewSimBackend() *SimBackend {
	return &SimBackend{files: make(map[string]string)}
}

// Calls returns the inputs the backend has seen, in order.
func (b *SimBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *SimBackend) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

// ExecuteCommand simulates running a shell command. Commands containing
// "fail" exit non-zero.
func (b *SimBackend) ExecuteCommand(ctx context.Context, command, workingDir string, timeout time.Duration) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if command == "" {
		return nil, fmt.Errorf("no command specified")
	}
	b.record("command: " + command)

	if strings.Contains(command, "fail") {
		return map[string]interface{}{
			"success":   false,
			"output":    "",
			"error":     fmt.Sprintf("command exited with status 1: %s", command),
			"exit_code": 1,
		}, nil
	}
	return map[string]interface{}{
		"success":   true,
		"output":    fmt.Sprintf("simulated output of: %s", command),
		"exit_code": 0,
	}, nil
}

// ExecuteFileOperation simulates read, write, append, copy and delete
// against an in-memory filesystem.
func (b *SimBackend) ExecuteFileOperation(ctx context.Context, operation, filePath, content string, params map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.record(fmt.Sprintf("file %s: %s", operation, filePath))

	b.mu.Lock()
	defer b.mu.Unlock()

	switch operation {
	case "read":
		data, ok := b.files[filePath]
		if !ok {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return map[string]interface{}{
			"success":   true,
			"operation": operation,
			"file_path": filePath,
			"content":   data,
			"size":      len(data),
		}, nil
	case "write":
		b.files[filePath] = content
	case "append":
		b.files[filePath] += content
	case "copy":
		dest, _ := params["destination"].(string)
		if dest == "" {
			return nil, fmt.Errorf("no destination for copy of %s", filePath)
		}
		data, ok := b.files[filePath]
		if !ok {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		b.files[dest] = data
	case "delete":
		if _, ok := b.files[filePath]; !ok {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		delete(b.files, filePath)
	default:
		return nil, fmt.Errorf("unsupported file operation: %s", operation)
	}

	return map[string]interface{}{
		"success":   true,
		"operation": operation,
		"file_path": filePath,
	}, nil
}

// ExecuteAPICall simulates an HTTP request. URLs containing
// "unreachable" fail with a connection error.
func (b *SimBackend) ExecuteAPICall(ctx context.Context, method, url string, headers map[string]string, body interface{}, timeout time.Duration) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if url == "" {
		return nil, fmt.Errorf("no URL specified")
	}
	b.record(fmt.Sprintf("api %s %s", method, url))

	if strings.Contains(url, "unreachable") {
		return nil, fmt.Errorf("connection refused: %s", url)
	}
	return map[string]interface{}{
		"success":     true,
		"method":      method,
		"url":         url,
		"status_code": 200,
		"response":    map[string]interface{}{"ok": true},
	}, nil
}

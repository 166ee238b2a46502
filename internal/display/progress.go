// Package display provides terminal output helpers for live progress and
// warnings. All functions write to an io.Writer for testability.
package display

import (
	"fmt"
	"io"
	"sync"
)

// TaskProgress manages live per-task progress output during a goal pursuit
type TaskProgress struct {
	mu     sync.Mutex
	writer io.Writer
	done   int
}

// NewTaskProgress creates a new progress display writing to w
func NewTaskProgress(w io.Writer) *TaskProgress {
	return &TaskProgress{writer: w}
}

// Start displays the pursuit header with the goal
func (p *TaskProgress) Start(goal string) {
	fmt.Fprintf(p.writer, "Pursuing goal: %s\n", goal)
}

// TaskDone displays one finished task with a colored pass/fail marker
func (p *TaskProgress) TaskDone(title string, succeeded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	mark := "\x1b[32m✓\x1b[0m"
	if !succeeded {
		mark = "\x1b[31m✗\x1b[0m"
	}
	fmt.Fprintf(p.writer, "  %s [%d] %s\n", mark, p.done, title)
}

// Done returns how many tasks have been reported
func (p *TaskProgress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

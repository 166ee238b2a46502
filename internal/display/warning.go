package display

import (
	"fmt"
	"io"
	"strings"
)

// Warning represents a user-facing warning message
type Warning struct {
	Title      string   // Main warning title
	Message    string   // Detailed explanation (optional)
	Items      []string // Related items, such as failed task titles (optional)
	Suggestion string   // Action to take (optional)
}

// Display shows a formatted warning in yellow
func (w Warning) Display(out io.Writer) {
	var b strings.Builder

	b.WriteString("\x1b[33m")
	b.WriteString("⚠️  Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	if len(w.Items) > 0 {
		b.WriteString("    Affected:\n")
		for i, item := range w.Items {
			b.WriteString("      ")
			b.WriteString(fmt.Sprintf("%d. %s", i+1, item))
			b.WriteString("\n")
		}
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n")
		b.WriteString("    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	b.WriteString("\x1b[0m")

	fmt.Fprint(out, b.String())
}

// WarnFailedTasks creates a warning listing tasks that did not complete
func WarnFailedTasks(title string, tasks []string) Warning {
	return Warning{
		Title:      title,
		Items:      tasks,
		Suggestion: "Inspect the failure patterns above and adjust the goal or playbooks.",
	}
}

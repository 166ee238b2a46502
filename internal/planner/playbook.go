package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/models"
)

// PlaybookTask is one task template inside a playbook.
type PlaybookTask struct {
	Number      int
	Title       string
	Description string
	ActionType  string
	Priority    models.TaskPriority
	Duration    time.Duration
	DependsOn   []int
}

// Playbook is a reusable goal recipe loaded from a markdown file. The
// file has an H1 title, an optional `**Keywords**:` line, and
// `## Task N: Title` sections carrying `**Field**: value` metadata.
type Playbook struct {
	Name     string
	Source   string
	Keywords []string
	Tasks    []PlaybookTask
}

// Matches reports whether any playbook keyword appears in the goal.
func (p *Playbook) Matches(goal string) bool {
	lower := strings.ToLower(goal)
	for _, kw := range p.Keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Instantiate converts the playbook's templates into plan tasks,
// merging the caller's context parameters into each task.
func (p *Playbook) Instantiate(goal string, ctxParams map[string]interface{}) []models.Task {
	idByNumber := make(map[int]string, len(p.Tasks))
	for _, t := range p.Tasks {
		idByNumber[t.Number] = uuid.New().String()
	}

	tasks := make([]models.Task, 0, len(p.Tasks))
	for _, tpl := range p.Tasks {
		params := make(map[string]interface{}, len(ctxParams)+1)
		for k, v := range ctxParams {
			params[k] = v
		}
		params["goal"] = goal

		var deps []string
		for _, num := range tpl.DependsOn {
			if id, ok := idByNumber[num]; ok {
				deps = append(deps, id)
			}
		}

		tasks = append(tasks, models.Task{
			ID:                idByNumber[tpl.Number],
			Title:             tpl.Title,
			Description:       tpl.Description,
			ActionType:        tpl.ActionType,
			Parameters:        params,
			Priority:          tpl.Priority,
			Status:            models.StatusPending,
			Dependencies:      deps,
			EstimatedDuration: tpl.Duration,
			MaxRetries:        3,
			CreatedAt:         time.Now(),
			Tags:              []string{"playbook", p.Name},
		})
	}
	return tasks
}

// PlaybookLibrary loads and matches playbooks from a directory.
type PlaybookLibrary struct {
	dir      string
	markdown goldmark.Markdown
	log      logger.Logger

	mu        sync.RWMutex
	playbooks []*Playbook
}

// NewPlaybookLibrary creates a library over the given directory and
// performs an initial load. A missing directory yields an empty library.
func NewPlaybookLibrary(dir string, log logger.Logger) (*PlaybookLibrary, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	l := &PlaybookLibrary{
		dir:      dir,
		markdown: goldmark.New(),
		log:      log,
	}
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the directory the library reads from.
func (l *PlaybookLibrary) Dir() string { return l.dir }

// Len returns the number of loaded playbooks.
func (l *PlaybookLibrary) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.playbooks)
}

// Load reads all .md files in the directory, replacing the current set.
// Files that fail to parse are logged and skipped.
func (l *PlaybookLibrary) Load() error {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		l.mu.Lock()
		l.playbooks = nil
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read playbook directory: %w", err)
	}

	var loaded []*Playbook
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			l.log.LogWarn(fmt.Sprintf("Failed to read playbook %s: %v", path, err))
			continue
		}
		pb, err := l.parse(content)
		if err != nil {
			l.log.LogWarn(fmt.Sprintf("Failed to parse playbook %s: %v", path, err))
			continue
		}
		pb.Source = path
		loaded = append(loaded, pb)
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Source < loaded[j].Source })

	l.mu.Lock()
	l.playbooks = loaded
	l.mu.Unlock()

	l.log.LogDebug(fmt.Sprintf("Loaded %d playbooks from %s", len(loaded), l.dir))
	return nil
}

// Match returns the first playbook whose keywords appear in the goal, or
// nil when none matches.
func (l *PlaybookLibrary) Match(goal string) *Playbook {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, pb := range l.playbooks {
		if pb.Matches(goal) {
			return pb
		}
	}
	return nil
}

var (
	taskHeadingRegex = regexp.MustCompile(`^Task\s+(\d+):\s+(.+)$`)
	fieldRegex       = regexp.MustCompile(`^\*\*([A-Za-z]+)\*\*:\s*(.+)$`)
)

// parse extracts the playbook structure. The markdown AST supplies the
// headings; section metadata is collected line by line, which is more
// reliable for the `**Field**: value` format.
func (l *PlaybookLibrary) parse(content []byte) (*Playbook, error) {
	pb := &Playbook{}

	doc := l.markdown.Parser().Parse(text.NewReader(content))
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		headingText := extractHeadingText(heading, content)
		switch heading.Level {
		case 1:
			if pb.Name == "" {
				pb.Name = headingText
			}
		case 2:
			if m := taskHeadingRegex.FindStringSubmatch(headingText); len(m) == 3 {
				num, _ := strconv.Atoi(m[1])
				pb.Tasks = append(pb.Tasks, PlaybookTask{
					Number:   num,
					Title:    strings.TrimSpace(m[2]),
					Priority: models.PriorityMedium,
				})
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if pb.Name == "" {
		return nil, fmt.Errorf("playbook has no title heading")
	}
	if len(pb.Tasks) == 0 {
		return nil, fmt.Errorf("playbook %q defines no tasks", pb.Name)
	}

	l.parseMetadata(pb, content)

	for i := range pb.Tasks {
		if pb.Tasks[i].ActionType == "" {
			pb.Tasks[i].ActionType = "execution"
		}
	}
	return pb, nil
}

// parseMetadata walks the raw lines assigning `**Field**: value` pairs to
// the preamble (keywords) or to the task section they appear in.
func (l *PlaybookLibrary) parseMetadata(pb *Playbook, content []byte) {
	lines := strings.Split(string(content), "\n")
	current := -1 // index into pb.Tasks; -1 means preamble
	taskIdx := 0

	for _, line := range lines {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "### ") {
			if m := taskHeadingRegex.FindStringSubmatch(strings.TrimPrefix(line, "## ")); len(m) == 3 && taskIdx < len(pb.Tasks) {
				current = taskIdx
				taskIdx++
			} else {
				current = -2 // non-task section
			}
			continue
		}

		m := fieldRegex.FindStringSubmatch(line)
		if m == nil {
			if current >= 0 && line != "" && !strings.HasPrefix(line, "#") {
				task := &pb.Tasks[current]
				if task.Description == "" {
					task.Description = line
				}
			}
			continue
		}

		field, value := strings.ToLower(m[1]), strings.TrimSpace(m[2])
		if current == -1 {
			if field == "keywords" {
				for _, kw := range strings.Split(value, ",") {
					pb.Keywords = append(pb.Keywords, strings.ToLower(strings.TrimSpace(kw)))
				}
			}
			continue
		}
		if current < 0 || current >= len(pb.Tasks) {
			continue
		}

		task := &pb.Tasks[current]
		switch field {
		case "type":
			task.ActionType = value
		case "priority":
			if p := models.TaskPriority(strings.ToLower(value)); p.Valid() {
				task.Priority = p
			}
		case "duration":
			task.Duration = parsePlaybookDuration(value)
		case "depends":
			for _, part := range strings.Split(value, ",") {
				part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "Task "))
				if num, err := strconv.Atoi(part); err == nil {
					task.DependsOn = append(task.DependsOn, num)
				}
			}
		case "description":
			task.Description = value
		}
	}
}

// parsePlaybookDuration accepts either a Go duration string ("2m") or a
// bare number of seconds ("120").
func parsePlaybookDuration(value string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strings.TrimSuffix(value, "s")); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func extractHeadingText(n ast.Node, source []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(sb.String())
}

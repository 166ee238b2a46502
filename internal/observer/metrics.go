package observer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/models"
	"github.com/harrison/autopilot/internal/safety"
)

// Metrics is a point-in-time snapshot of engine activity.
type Metrics struct {
	Uptime          time.Duration
	ActiveTasks     int
	CompletedTasks  int
	FailedTasks     int
	AvgTaskDuration time.Duration
	SuccessRate     float64
	ResourceUsage   *safety.ResourceReading
	EventsBuffered  int
}

// Metrics computes the current snapshot. Success rate is
// completed/(completed+failed); zero when nothing finished yet.
func (o *Observer) Metrics() Metrics {
	o.mu.Lock()
	m := Metrics{
		Uptime:         time.Since(o.startedAt),
		ActiveTasks:    len(o.active),
		CompletedTasks: o.completed,
		FailedTasks:    o.failed,
		EventsBuffered: len(o.events),
	}
	if o.completed > 0 {
		m.AvgTaskDuration = o.totalDur / time.Duration(o.completed)
	}
	if o.completed+o.failed > 0 {
		m.SuccessRate = float64(o.completed) / float64(o.completed+o.failed)
	}
	sampler := o.sampler
	o.mu.Unlock()

	if sampler != nil {
		if reading, err := sampler.Sample(); err == nil {
			m.ResourceUsage = &reading
		}
	}
	return m
}

// Statistics aggregates events inside the window.
type Statistics struct {
	Total         int
	ByType        map[models.EventType]int
	BySource      map[string]int
	EventsPerHour float64
	Window        time.Duration
}

// Statistics tallies events recorded within the trailing window.
// window <= 0 covers the whole buffer.
func (o *Observer) Statistics(window time.Duration) Statistics {
	var since time.Time
	if window > 0 {
		since = time.Now().Add(-window)
	}

	events := o.Events(Filter{Since: since})

	stats := Statistics{
		ByType:   make(map[models.EventType]int),
		BySource: make(map[string]int),
		Window:   window,
	}
	for _, e := range events {
		stats.Total++
		stats.ByType[e.Type]++
		stats.BySource[e.Source]++
	}

	hours := window.Hours()
	if window <= 0 {
		hours = time.Since(o.startedAt).Hours()
	}
	if hours > 0 {
		stats.EventsPerHour = float64(stats.Total) / hours
	}
	return stats
}

// ActivityReport renders a plain-text summary of recent activity: totals,
// the busiest sources, and the error ratio.
func (o *Observer) ActivityReport(window time.Duration) string {
	stats := o.Statistics(window)
	metrics := o.Metrics()

	var b strings.Builder
	b.WriteString("=== Activity Report ===\n")
	b.WriteString(fmt.Sprintf("Window: %s\n", windowLabel(window)))
	b.WriteString(fmt.Sprintf("Uptime: %s\n", logger.FormatDuration(metrics.Uptime)))
	b.WriteString(fmt.Sprintf("Events: %d (%.1f/hour)\n", stats.Total, stats.EventsPerHour))
	b.WriteString(fmt.Sprintf("Tasks: %d active, %d completed, %d failed\n",
		metrics.ActiveTasks, metrics.CompletedTasks, metrics.FailedTasks))
	if metrics.CompletedTasks+metrics.FailedTasks > 0 {
		b.WriteString(fmt.Sprintf("Success rate: %.0f%%\n", metrics.SuccessRate*100))
	}

	errors := stats.ByType[models.EventErrorOccurred] + stats.ByType[models.EventTaskFailed]
	if stats.Total > 0 {
		b.WriteString(fmt.Sprintf("Error ratio: %.1f%%\n", float64(errors)/float64(stats.Total)*100))
	}

	if len(stats.BySource) > 0 {
		b.WriteString("Top sources:\n")
		for _, sc := range topSources(stats.BySource, 5) {
			b.WriteString(fmt.Sprintf("  %s: %d\n", sc.source, sc.count))
		}
	}
	return b.String()
}

func windowLabel(window time.Duration) string {
	if window <= 0 {
		return "all"
	}
	return logger.FormatDuration(window)
}

type sourceCount struct {
	source string
	count  int
}

func topSources(bySource map[string]int, n int) []sourceCount {
	out := make([]sourceCount, 0, len(bySource))
	for s, c := range bySource {
		out = append(out, sourceCount{s, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].source < out[j].source
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

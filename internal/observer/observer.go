// Package observer records engine activity as a bounded stream of typed
// events, dispatches them to subscribers, and derives metrics and activity
// reports from the stream.
package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/memory"
	"github.com/harrison/autopilot/internal/models"
	"github.com/harrison/autopilot/internal/safety"
)

// maxEvents caps the in-memory event buffer; the oldest events are
// dropped first.
const maxEvents = 1000

// defaultPersistThreshold is the minimum importance at which events are
// mirrored into the memory store.
const defaultPersistThreshold = 0.5

// Handler receives events asynchronously. Panics and errors inside a
// handler are logged and swallowed; they never disturb the recorder.
type Handler func(event models.Event)

// Observer is a bounded append-only event log with async subscribers.
type Observer struct {
	log     logger.Logger
	store   memory.Store
	sampler safety.Sampler

	persistThreshold float64

	mu        sync.Mutex
	events    []models.Event
	handlers  map[models.EventType][]Handler
	startedAt time.Time

	active    map[string]bool
	completed int
	failed    int
	totalDur  time.Duration
}

// New creates an Observer. store may be nil to disable persistence;
// sampler may be nil to omit resource usage from metrics.
func New(store memory.Store, sampler safety.Sampler, log logger.Logger) *Observer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Observer{
		log:              log,
		store:            store,
		sampler:          sampler,
		persistThreshold: defaultPersistThreshold,
		handlers:         make(map[models.EventType][]Handler),
		startedAt:        time.Now(),
		active:           make(map[string]bool),
	}
}

// SetPersistThreshold overrides the importance threshold for mirroring
// events into the memory store.
func (o *Observer) SetPersistThreshold(threshold float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persistThreshold = threshold
}

// Subscribe registers a handler for one event type.
func (o *Observer) Subscribe(eventType models.EventType, handler Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[eventType] = append(o.handlers[eventType], handler)
}

// Record appends an event to the buffer, updates task counters, persists
// important events, and dispatches to subscribers. Unknown event types are
// rejected.
func (o *Observer) Record(ctx context.Context, eventType models.EventType, source, message string, data map[string]interface{}) (*models.Event, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	event := models.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Source:     source,
		Message:    message,
		Data:       data,
		Importance: eventType.Importance(),
		Timestamp:  time.Now(),
	}

	o.mu.Lock()
	o.events = append(o.events, event)
	if len(o.events) > maxEvents {
		o.events = o.events[len(o.events)-maxEvents:]
	}
	o.updateTaskCounters(event)
	handlers := append([]Handler(nil), o.handlers[eventType]...)
	persist := o.store != nil && event.Importance >= o.persistThreshold
	o.mu.Unlock()

	o.log.LogDebug(fmt.Sprintf("event [%s] %s: %s", event.Type, event.Source, event.Message))

	if persist {
		entry := memory.NewEntry(memory.TypeObservation,
			fmt.Sprintf("Agent event: %s from %s", event.Type, event.Source),
			map[string]interface{}{
				"event_id":   event.ID,
				"event_type": string(event.Type),
				"source":     event.Source,
				"event_data": event.Data,
			}, event.Importance)
		if err := o.store.Store(ctx, entry); err != nil {
			o.log.LogWarn(fmt.Sprintf("failed to persist event %s: %v", event.ID, err))
		}
	}

	for _, h := range handlers {
		go o.dispatch(h, event)
	}

	return &event, nil
}

// dispatch runs one handler, containing panics.
func (o *Observer) dispatch(h Handler, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			o.log.LogWarn(fmt.Sprintf("event handler panicked for %s: %v", event.Type, r))
		}
	}()
	h(event)
}

// updateTaskCounters maintains the task activity tallies used by Metrics.
// Caller holds the lock.
func (o *Observer) updateTaskCounters(event models.Event) {
	taskID, _ := event.Data["task_id"].(string)

	switch event.Type {
	case models.EventTaskStarted:
		if taskID != "" {
			o.active[taskID] = true
		}
	case models.EventTaskCompleted:
		if taskID != "" {
			delete(o.active, taskID)
		}
		o.completed++
		if d, ok := durationFromData(event.Data); ok {
			o.totalDur += d
		}
	case models.EventTaskFailed:
		if taskID != "" {
			delete(o.active, taskID)
		}
		o.failed++
	case models.EventTaskCancelled:
		if taskID != "" {
			delete(o.active, taskID)
		}
	}
}

func durationFromData(data map[string]interface{}) (time.Duration, bool) {
	switch v := data["duration"].(type) {
	case time.Duration:
		return v, true
	case float64:
		return time.Duration(v * float64(time.Second)), true
	case int:
		return time.Duration(v) * time.Second, true
	default:
		return 0, false
	}
}

// Filter selects events for queries. Zero values match everything.
type Filter struct {
	Type   models.EventType
	Source string
	Since  time.Time
	Limit  int
}

// Events returns matching events, newest first.
func (o *Observer) Events(filter Filter) []models.Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []models.Event
	for i := len(o.events) - 1; i >= 0; i-- {
		e := o.events[i]
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Source != "" && e.Source != filter.Source {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

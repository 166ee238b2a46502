// Package memory persists the agent's experiences: executions,
// evaluations, plans, goal pursuits and notable observations. Retrieval is
// keyword based; entries carry an importance weight used for ranking.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry types stored by the engine.
const (
	TypeExecution   = "execution"
	TypeEvaluation  = "evaluation"
	TypePlan        = "plan"
	TypeGoal        = "goal_pursuit"
	TypeObservation = "observation"
)

// Entry is one stored experience.
type Entry struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Importance float64                `json:"importance"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewEntry builds an entry with a fresh ID and timestamp.
func NewEntry(entryType, content string, metadata map[string]interface{}, importance float64) *Entry {
	return &Entry{
		ID:         uuid.New().String(),
		Type:       entryType,
		Content:    content,
		Metadata:   metadata,
		Importance: importance,
		CreatedAt:  time.Now(),
	}
}

// Store is the persistence interface used across the engine.
type Store interface {
	// Store persists an entry. Entries without an ID or timestamp are
	// completed in place.
	Store(ctx context.Context, entry *Entry) error

	// Query returns entries whose content matches the query keywords,
	// ranked by importance then recency.
	Query(ctx context.Context, query string, limit int) ([]*Entry, error)

	// ByType returns the most recent entries of one type.
	ByType(ctx context.Context, entryType string, limit int) ([]*Entry, error)

	// Recent returns the most recent entries of any type.
	Recent(ctx context.Context, limit int) ([]*Entry, error)

	// Count returns the number of stored entries per type.
	Count(ctx context.Context) (map[string]int, error)

	Close() error
}

// queryTokens splits a query into lowercase keywords, dropping short noise
// words.
func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// matches reports whether content contains any of the tokens.
func matches(content string, tokens []string) bool {
	lower := strings.ToLower(content)
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// InMemoryStore is a Store backed by a slice, for tests and ephemeral runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Store persists an entry.
func (s *InMemoryStore) Store(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Query returns keyword matches ranked by importance then recency.
func (s *InMemoryStore) Query(ctx context.Context, query string, limit int) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := queryTokens(query)

	s.mu.RLock()
	var found []*Entry
	for _, e := range s.entries {
		if len(tokens) == 0 || matches(e.Content, tokens) {
			found = append(found, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Importance != found[j].Importance {
			return found[i].Importance > found[j].Importance
		}
		return found[i].CreatedAt.After(found[j].CreatedAt)
	})
	return clip(found, limit), nil
}

// ByType returns the most recent entries of one type.
func (s *InMemoryStore) ByType(ctx context.Context, entryType string, limit int) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var found []*Entry
	for _, e := range s.entries {
		if e.Type == entryType {
			found = append(found, e)
		}
	}
	s.mu.RUnlock()

	sortByRecency(found)
	return clip(found, limit), nil
}

// Recent returns the most recent entries of any type.
func (s *InMemoryStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	found := make([]*Entry, len(s.entries))
	copy(found, s.entries)
	s.mu.RUnlock()

	sortByRecency(found)
	return clip(found, limit), nil
}

// Count returns the number of stored entries per type.
func (s *InMemoryStore) Count(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range s.entries {
		counts[e.Type]++
	}
	return counts, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

func sortByRecency(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func clip(entries []*Entry, limit int) []*Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/logging"
)

type sessionData struct {
	messages []core.Message
	facts    []string
	profile  map[string]any
	summary  string
	patterns []string
}

// InMemoryOptions configures an InMemoryStore.
type InMemoryOptions struct {
	// WindowSize is the number of recent messages in the short-term text.
	WindowSize int
	Logger     logging.Logger
}

// InMemoryStore is a process-local Store.
//
// Concurrency: protected by RWMutex. Returned slices and maps are copies.
// SearchFacts is a linear scan with case-insensitive substring matching that
// assigns a constant score of 1.0 to every hit.
type InMemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*sessionData
	windowSize int
	logger     logging.Logger
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{
		WindowSize: DefaultWindowSize,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}

	return &InMemoryStore{
		sessions:   make(map[string]*sessionData),
		windowSize: opts.WindowSize,
		logger:     opts.Logger,
	}
}

// session returns the data for id, creating it. Caller holds the write lock.
func (m *InMemoryStore) session(id string) *sessionData {
	s, ok := m.sessions[id]
	if !ok {
		s = &sessionData{profile: make(map[string]any)}
		m.sessions[id] = s
	}
	return s
}

// GetContext returns the short-term window plus the enabled long-term kinds.
func (m *InMemoryStore) GetContext(_ context.Context, sessionID string, toggles Toggles) (*core.MemorySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &core.MemorySnapshot{SessionID: sessionID}
	s, ok := m.sessions[sessionID]
	if !ok {
		return snap, nil
	}

	snap.TotalMessages = len(s.messages)
	snap.ShortTermText = renderWindow(lastN(s.messages, m.windowSize))

	t := toggles.Effective()
	if t.Semantic && len(s.facts) > 0 {
		snap.SemanticFacts = slices.Clone(s.facts)
	}
	if t.Profile && len(s.profile) > 0 {
		snap.UserProfile = maps.Clone(s.profile)
	}
	if t.Episodic {
		snap.EpisodicSummary = s.summary
	}
	if t.Procedural && len(s.patterns) > 0 {
		snap.ProceduralPatterns = slices.Clone(s.patterns)
	}

	m.logger.Debug("memory.context.loaded", "session.id", sessionID, "messages", snap.TotalMessages)

	return snap, nil
}

// AddMessage appends msg to the session history.
func (m *InMemoryStore) AddMessage(_ context.Context, sessionID string, msg core.Message) error {
	if !msg.Role.IsEntryRole() {
		return core.NewValidationError("role", msg.Role, "role must be one of user, assistant, system")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(sessionID)
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns up to limit most recent messages, oldest first.
func (m *InMemoryStore) Messages(_ context.Context, sessionID string, limit int) ([]core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return []core.Message{}, nil
	}
	return slices.Clone(lastN(s.messages, limit)), nil
}

// ClearSession removes everything stored for the session.
func (m *InMemoryStore) ClearSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Stats reports counts for the session.
func (m *InMemoryStore) Stats(_ context.Context, sessionID string) (core.MemoryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := core.MemoryStats{SessionID: sessionID}
	if s, ok := m.sessions[sessionID]; ok {
		stats.MessageCount = len(s.messages)
		stats.SemanticFactsCount = len(s.facts)
		stats.ProfileAttributes = len(s.profile)
		stats.PatternCount = len(s.patterns)
		stats.HasSummary = s.summary != ""
	}
	return stats, nil
}

// AddFact appends a semantic fact. Duplicates are ignored.
func (m *InMemoryStore) AddFact(_ context.Context, sessionID, fact string) error {
	if fact == "" {
		return core.NewValidationError("fact", fact, "must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(sessionID)
	if !slices.Contains(s.facts, fact) {
		s.facts = append(s.facts, fact)
	}
	return nil
}

// UpdateProfile merges attrs into the session profile.
func (m *InMemoryStore) UpdateProfile(_ context.Context, sessionID string, attrs map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.session(sessionID).profile, attrs)
	return nil
}

// SetSummary replaces the episodic summary.
func (m *InMemoryStore) SetSummary(_ context.Context, sessionID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(sessionID).summary = summary
	return nil
}

// AddPattern appends a procedural pattern. Duplicates are ignored.
func (m *InMemoryStore) AddPattern(_ context.Context, sessionID, pattern string) error {
	if pattern == "" {
		return core.NewValidationError("pattern", pattern, "must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(sessionID)
	if !slices.Contains(s.patterns, pattern) {
		s.patterns = append(s.patterns, pattern)
	}
	return nil
}

// SearchFacts returns facts matching query in insertion order up to limit.
// A limit <= 0 returns every match.
func (m *InMemoryStore) SearchFacts(_ context.Context, sessionID, query string, limit int) ([]core.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []core.Document{}
	s, ok := m.sessions[sessionID]
	if !ok {
		return results, nil
	}
	for i, f := range s.facts {
		if limit > 0 && len(results) >= limit {
			break
		}
		if matchesQuery(f, query) {
			results = append(results, core.Document{ID: fmt.Sprintf("fact_%d", i), Content: f, Score: 1.0})
		}
	}
	return results, nil
}

// Close is a no-op.
func (m *InMemoryStore) Close() error { return nil }

func lastN(msgs []core.Message, n int) []core.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

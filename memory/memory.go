package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentlab/core"
)

// DefaultWindowSize is the number of recent messages rendered as short-term context.
const DefaultWindowSize = 10

// Memory type names accepted by ToggleSet.
const (
	TypeSemantic   = "semantic"
	TypeEpisodic   = "episodic"
	TypeProfile    = "profile"
	TypeProcedural = "procedural"
)

// Toggles selects which long-term memory kinds GetContext returns. The
// short-term window is always included. LongTerm=false disables every
// long-term kind regardless of the individual switches.
type Toggles struct {
	Semantic   bool `json:"enable_semantic" yaml:"enable_semantic" toml:"enable_semantic"`
	Episodic   bool `json:"enable_episodic" yaml:"enable_episodic" toml:"enable_episodic"`
	Profile    bool `json:"enable_profile" yaml:"enable_profile" toml:"enable_profile"`
	Procedural bool `json:"enable_procedural" yaml:"enable_procedural" toml:"enable_procedural"`
	LongTerm   bool `json:"enable_long_term" yaml:"enable_long_term" toml:"enable_long_term"`
}

// AllToggles enables every memory kind.
func AllToggles() Toggles {
	return Toggles{Semantic: true, Episodic: true, Profile: true, Procedural: true, LongTerm: true}
}

// ToggleSet builds Toggles from memory type names. An empty list enables all.
func ToggleSet(types []string) (Toggles, error) {
	if len(types) == 0 {
		return AllToggles(), nil
	}
	t := Toggles{LongTerm: true}
	for _, name := range types {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case TypeSemantic:
			t.Semantic = true
		case TypeEpisodic:
			t.Episodic = true
		case TypeProfile:
			t.Profile = true
		case TypeProcedural:
			t.Procedural = true
		default:
			return Toggles{}, core.NewValidationError("memory_types", name, "unknown memory type")
		}
	}
	return t, nil
}

// Effective applies the LongTerm master switch.
func (t Toggles) Effective() Toggles {
	if !t.LongTerm {
		return Toggles{}
	}
	return t
}

// Intersect keeps only the kinds enabled in both t and o, including the
// LongTerm switch.
func (t Toggles) Intersect(o Toggles) Toggles {
	return Toggles{
		Semantic:   t.Semantic && o.Semantic,
		Episodic:   t.Episodic && o.Episodic,
		Profile:    t.Profile && o.Profile,
		Procedural: t.Procedural && o.Procedural,
		LongTerm:   t.LongTerm && o.LongTerm,
	}
}

// Provider is the memory collaborator consumed by the service.
type Provider interface {
	GetContext(ctx context.Context, sessionID string, toggles Toggles) (*core.MemorySnapshot, error)
}

// Store is a Provider that also records conversation turns and long-term items.
type Store interface {
	Provider
	AddMessage(ctx context.Context, sessionID string, msg core.Message) error
	// Messages returns up to limit most recent messages oldest first; limit <= 0 returns all.
	Messages(ctx context.Context, sessionID string, limit int) ([]core.Message, error)
	ClearSession(ctx context.Context, sessionID string) error
	Stats(ctx context.Context, sessionID string) (core.MemoryStats, error)
	AddFact(ctx context.Context, sessionID, fact string) error
	// UpdateProfile merges attrs into the session profile.
	UpdateProfile(ctx context.Context, sessionID string, attrs map[string]any) error
	SetSummary(ctx context.Context, sessionID, summary string) error
	AddPattern(ctx context.Context, sessionID, pattern string) error
	// SearchFacts returns facts containing query (case-insensitive).
	SearchFacts(ctx context.Context, sessionID, query string, limit int) ([]core.Document, error)
	Close() error
}

// renderWindow formats messages as "role: content" lines.
func renderWindow(msgs []core.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

func matchesQuery(content, query string) bool {
	return query == "" || strings.Contains(strings.ToLower(content), strings.ToLower(query))
}

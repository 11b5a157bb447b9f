package core

// MemorySnapshot is the memory collaborator's view of one session. A field is
// populated only if its toggle was enabled for the request.
type MemorySnapshot struct {
	SessionID          string         `json:"session_id"`
	ShortTermText      string         `json:"short_term_text"`
	SemanticFacts      []string       `json:"semantic_facts,omitempty"`
	UserProfile        map[string]any `json:"user_profile,omitempty"`
	EpisodicSummary    string         `json:"episodic_summary,omitempty"`
	ProceduralPatterns []string       `json:"procedural_patterns,omitempty"`
	TotalMessages      int            `json:"total_messages"`
}

// IsEmpty reports whether the snapshot carries no renderable content.
func (s *MemorySnapshot) IsEmpty() bool {
	if s == nil {
		return true
	}
	return s.ShortTermText == "" && len(s.SemanticFacts) == 0 && len(s.UserProfile) == 0 &&
		s.EpisodicSummary == "" && len(s.ProceduralPatterns) == 0
}

// MemoryStats summarizes what is stored for a session.
type MemoryStats struct {
	SessionID          string `json:"session_id"`
	MessageCount       int    `json:"message_count"`
	SemanticFactsCount int    `json:"semantic_facts_count"`
	ProfileAttributes  int    `json:"profile_attributes_count"`
	PatternCount       int    `json:"pattern_count"`
	HasSummary         bool   `json:"has_summary"`
}

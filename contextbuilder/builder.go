// Package contextbuilder assembles a token-budgeted prompt context from
// independent sources (recent conversation, long-term memory, retrieved
// documents and tool results) and renders it as prompt text.
//
// Build is deterministic and side-effect free: every present component is
// counted individually and TotalTokens is always the exact sum of the
// breakdown. A disabled or empty source contributes neither text nor tokens.
package contextbuilder

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/logging"
)

// Priority hints which sources matter most when the budget is exceeded.
type Priority string

const (
	PriorityMemory   Priority = "memory"
	PriorityRAG      Priority = "rag"
	PriorityBalanced Priority = "balanced"
)

// ParsePriority validates s. The empty string maps to PriorityBalanced.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityBalanced, nil
	case PriorityMemory, PriorityRAG, PriorityBalanced:
		return Priority(s), nil
	default:
		return "", core.NewValidationError("context_priority", s, "must be one of memory, rag, balanced")
	}
}

// Token breakdown component keys.
const (
	ComponentShortTerm          = "short_term"
	ComponentSemanticFacts      = "semantic_facts"
	ComponentUserProfile        = "user_profile"
	ComponentEpisodicSummary    = "episodic_summary"
	ComponentProceduralPatterns = "procedural_patterns"
	ComponentRAGDocuments       = "rag_documents"
	ComponentToolResults        = "tool_results"
)

// DefaultMaxTokens is the default context budget.
const DefaultMaxTokens = 4000

// CombinedContext is the annotated result of Build. It is a value snapshot:
// slices and maps are copies of the inputs.
type CombinedContext struct {
	ShortTermText      string            `json:"short_term_text"`
	SemanticFacts      []string          `json:"semantic_facts,omitempty"`
	UserProfile        map[string]any    `json:"user_profile,omitempty"`
	EpisodicSummary    string            `json:"episodic_summary,omitempty"`
	ProceduralPatterns []string          `json:"procedural_patterns,omitempty"`
	RAGDocuments       []core.Document   `json:"rag_documents,omitempty"`
	ToolResults        []core.ToolResult `json:"tool_results,omitempty"`
	TokenBreakdown     map[string]int    `json:"token_breakdown"`
	TotalTokens        int               `json:"total_tokens"`
	Truncated          bool              `json:"truncated"`
	TruncationStrategy Priority          `json:"truncation_strategy,omitempty"`
	Warnings           []string          `json:"warnings,omitempty"`
}

// Input bundles the sources for one Build call. Nil or empty fields are absent.
type Input struct {
	Memory       *core.MemorySnapshot
	RAGDocuments []core.Document
	ToolResults  []core.ToolResult
	Priority     Priority
}

// Options configures a Builder.
type Options struct {
	// MaxTokens is the context budget. Defaults to DefaultMaxTokens.
	MaxTokens int
	// Tokenizer counts tokens. Defaults to tiktoken cl100k_base.
	Tokenizer Tokenizer
	Logger    logging.Logger
}

// Builder combines context sources under a token budget.
type Builder struct {
	maxTokens int
	tokenizer Tokenizer
	logger    logging.Logger
}

// New creates a Builder.
func New(optFns ...func(o *Options)) (*Builder, error) {
	opts := Options{
		MaxTokens: DefaultMaxTokens,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxTokens <= 0 {
		return nil, core.NewValidationError("max_tokens", opts.MaxTokens, "must be positive")
	}

	if opts.Tokenizer == nil {
		tk, err := NewTiktokenTokenizer(DefaultEncoding)
		if err != nil {
			return nil, err
		}
		opts.Tokenizer = tk
	}

	return &Builder{maxTokens: opts.MaxTokens, tokenizer: opts.Tokenizer, logger: opts.Logger}, nil
}

// MaxTokens returns the configured budget.
func (b *Builder) MaxTokens() int { return b.maxTokens }

// WithMaxTokens returns a copy of b with a different budget.
func (b *Builder) WithMaxTokens(n int) *Builder {
	nb := *b
	nb.maxTokens = n
	return &nb
}

// Build merges the present sources of in into a CombinedContext.
//
// When TotalTokens exceeds the budget the context is flagged as truncated
// with the requested priority as strategy, and returned in full.
func (b *Builder) Build(in Input) *CombinedContext {
	cc := &CombinedContext{TokenBreakdown: map[string]int{}}

	if m := in.Memory; m != nil {
		cc.ShortTermText = m.ShortTermText
		cc.EpisodicSummary = m.EpisodicSummary
		if len(m.SemanticFacts) > 0 {
			cc.SemanticFacts = slices.Clone(m.SemanticFacts)
		}
		if len(m.UserProfile) > 0 {
			cc.UserProfile = maps.Clone(m.UserProfile)
		}
		if len(m.ProceduralPatterns) > 0 {
			cc.ProceduralPatterns = slices.Clone(m.ProceduralPatterns)
		}
	}
	if len(in.RAGDocuments) > 0 {
		cc.RAGDocuments = slices.Clone(in.RAGDocuments)
	}
	if len(in.ToolResults) > 0 {
		cc.ToolResults = slices.Clone(in.ToolResults)
	}

	b.count(cc, ComponentShortTerm, b.tokenizer.Count(cc.ShortTermText))
	b.count(cc, ComponentSemanticFacts, b.countEach(cc.SemanticFacts))
	b.count(cc, ComponentUserProfile, b.tokenizer.Count(profileTokenText(cc.UserProfile)))
	b.count(cc, ComponentEpisodicSummary, b.tokenizer.Count(cc.EpisodicSummary))
	b.count(cc, ComponentProceduralPatterns, b.countEach(cc.ProceduralPatterns))
	b.count(cc, ComponentRAGDocuments, b.tokenizer.Count(formatRAGDocuments(cc.RAGDocuments)))
	b.count(cc, ComponentToolResults, b.tokenizer.Count(formatToolResults(cc.ToolResults)))

	if cc.TotalTokens > b.maxTokens {
		priority := in.Priority
		if priority == "" {
			priority = PriorityBalanced
		}
		cc.Truncated = true
		cc.TruncationStrategy = priority
		cc.Warnings = append(cc.Warnings,
			fmt.Sprintf("Context exceeds %d tokens (estimated %d). Applying truncation.", b.maxTokens, cc.TotalTokens),
			"Smart truncation not yet implemented. Returning full context.",
		)
		b.logger.Warn("context.build.overflow", "max_tokens", b.maxTokens, "total_tokens", cc.TotalTokens, "priority", string(priority))
	}

	b.logger.Debug("context.build.complete", "total_tokens", cc.TotalTokens, "components", len(cc.TokenBreakdown))

	return cc
}

// count records n for component; absent components get no entry.
func (b *Builder) count(cc *CombinedContext, component string, n int) {
	if n == 0 {
		return
	}
	cc.TokenBreakdown[component] = n
	cc.TotalTokens += n
}

func (b *Builder) countEach(items []string) int {
	total := 0
	for _, it := range items {
		total += b.tokenizer.Count(it)
	}
	return total
}

// profileTokenText renders the profile as space separated "k: v" pairs with
// sorted keys.
func profileTokenText(profile map[string]any) string {
	if len(profile) == 0 {
		return ""
	}
	keys := sortedKeys(profile)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, profile[k]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package contextbuilder

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hupe1980/agentlab/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordTokenizer counts whitespace separated words, which keeps expected
// numbers readable.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int { return len(strings.Fields(text)) }

func newTestBuilder(t *testing.T, maxTokens int) *Builder {
	t.Helper()
	b, err := New(func(o *Options) {
		o.MaxTokens = maxTokens
		o.Tokenizer = wordTokenizer{}
	})
	require.NoError(t, err)
	return b
}

func sumBreakdown(cc *CombinedContext) int {
	total := 0
	for _, v := range cc.TokenBreakdown {
		total += v
	}
	return total
}

func fullMemory() *core.MemorySnapshot {
	return &core.MemorySnapshot{
		SessionID:          "s1",
		ShortTermText:      "user: hi\nassistant: hello",
		SemanticFacts:      []string{"likes go", "lives in berlin"},
		UserProfile:        map[string]any{"name": "Sam", "language": "en"},
		EpisodicSummary:    "greeted each other",
		ProceduralPatterns: []string{"asks short questions"},
	}
}

func docs(n int) []core.Document {
	out := make([]core.Document, n)
	for i := range out {
		out[i] = core.Document{
			ID:       fmt.Sprintf("d%d", i+1),
			Content:  fmt.Sprintf("content of document %d", i+1),
			Score:    1 - float64(i)/10,
			Metadata: map[string]any{core.MetadataNamespace: "kb"},
		}
	}
	return out
}

func TestBuild_Empty(t *testing.T) {
	b := newTestBuilder(t, 100)

	cc := b.Build(Input{})
	assert.Equal(t, 0, cc.TotalTokens)
	assert.Equal(t, 0, sumBreakdown(cc))
	assert.Empty(t, cc.TokenBreakdown)
	assert.False(t, cc.Truncated)
	assert.Equal(t, "", Format(cc))
}

func TestBuild_RAGWithoutMemory(t *testing.T) {
	b := newTestBuilder(t, 4000)

	cc := b.Build(Input{RAGDocuments: docs(5)})

	assert.Len(t, cc.RAGDocuments, 5)
	assert.Equal(t, "", cc.ShortTermText)
	assert.Empty(t, cc.SemanticFacts)
	assert.Empty(t, cc.UserProfile)
	for _, k := range []string{ComponentShortTerm, ComponentSemanticFacts, ComponentUserProfile, ComponentEpisodicSummary, ComponentProceduralPatterns} {
		assert.Zero(t, cc.TokenBreakdown[k], k)
	}
	assert.Positive(t, cc.TokenBreakdown[ComponentRAGDocuments])
	assert.Equal(t, cc.TotalTokens, sumBreakdown(cc))

	text := Format(cc)
	assert.NotContains(t, text, HeaderRecentConversation)
	assert.NotContains(t, text, HeaderKnownFacts)
	assert.Contains(t, text, HeaderKnowledgeBase)
}

func TestBuild_AllSourcesBreakdown(t *testing.T) {
	b := newTestBuilder(t, 4000)
	results := []core.ToolResult{
		{ToolCallID: "c1", ToolName: "get_current_datetime", Success: true, Result: map[string]any{"datetime": "2025-12-24T15:04:05Z"}},
		{ToolCallID: "c2", ToolName: "lookup", Success: false, Error: "tool 'lookup' not found"},
	}

	cc := b.Build(Input{Memory: fullMemory(), RAGDocuments: docs(2), ToolResults: results, Priority: PriorityMemory})

	assert.Equal(t, 4, cc.TokenBreakdown[ComponentShortTerm])
	assert.Equal(t, 5, cc.TokenBreakdown[ComponentSemanticFacts])
	assert.Equal(t, 4, cc.TokenBreakdown[ComponentUserProfile]) // "language: en name: Sam"
	assert.Equal(t, 3, cc.TokenBreakdown[ComponentEpisodicSummary])
	assert.Equal(t, 3, cc.TokenBreakdown[ComponentProceduralPatterns])
	assert.Positive(t, cc.TokenBreakdown[ComponentRAGDocuments])
	assert.Positive(t, cc.TokenBreakdown[ComponentToolResults])
	assert.Len(t, cc.TokenBreakdown, 7)
	assert.Equal(t, cc.TotalTokens, sumBreakdown(cc))
	assert.False(t, cc.Truncated)
	assert.Empty(t, cc.TruncationStrategy)
}

func TestBuild_OverflowKeepsFullContext(t *testing.T) {
	b := newTestBuilder(t, 5)
	mem := fullMemory()

	cc := b.Build(Input{Memory: mem, RAGDocuments: docs(3), Priority: PriorityRAG})

	require.True(t, cc.Truncated)
	assert.Equal(t, PriorityRAG, cc.TruncationStrategy)
	require.Len(t, cc.Warnings, 2)
	assert.Equal(t, fmt.Sprintf("Context exceeds 5 tokens (estimated %d). Applying truncation.", cc.TotalTokens), cc.Warnings[0])
	assert.Equal(t, "Smart truncation not yet implemented. Returning full context.", cc.Warnings[1])

	assert.Equal(t, mem.ShortTermText, cc.ShortTermText)
	assert.Len(t, cc.RAGDocuments, 3)
	assert.Equal(t, cc.TotalTokens, sumBreakdown(cc))

	text := Format(cc)
	assert.Contains(t, text, HeaderContextWarnings+"\n⚠️ Context exceeds 5 tokens")
}

func TestBuild_OverflowDefaultsToBalanced(t *testing.T) {
	b := newTestBuilder(t, 1)

	cc := b.Build(Input{Memory: fullMemory()})
	assert.True(t, cc.Truncated)
	assert.Equal(t, PriorityBalanced, cc.TruncationStrategy)
}

func TestBuild_DoesNotAliasInputs(t *testing.T) {
	b := newTestBuilder(t, 4000)
	mem := fullMemory()
	in := docs(1)

	cc := b.Build(Input{Memory: mem, RAGDocuments: in})
	mem.SemanticFacts[0] = "changed"
	mem.UserProfile["name"] = "Alex"
	in[0].Content = "changed"

	assert.Equal(t, "likes go", cc.SemanticFacts[0])
	assert.Equal(t, "Sam", cc.UserProfile["name"])
	assert.Equal(t, "content of document 1", cc.RAGDocuments[0].Content)
}

func TestFormat_SectionOrder(t *testing.T) {
	b := newTestBuilder(t, 1)
	results := []core.ToolResult{{ToolCallID: "c1", ToolName: "get_current_datetime", Success: true, Result: map[string]any{"success": true}}}

	text := Format(b.Build(Input{Memory: fullMemory(), RAGDocuments: docs(1), ToolResults: results}))

	order := []string{
		HeaderRecentConversation,
		HeaderKnowledgeBase,
		HeaderToolResults,
		HeaderKnownFacts,
		HeaderUserProfile,
		HeaderConversationSummary,
		HeaderInteractionPatterns,
		HeaderContextWarnings,
	}
	last := -1
	for _, h := range order {
		idx := strings.Index(text, h)
		require.GreaterOrEqual(t, idx, 0, h)
		assert.Greater(t, idx, last, h)
		last = idx
	}
	assert.Contains(t, text, "- language: en\n- name: Sam")
	assert.Contains(t, text, "- likes go\n- lives in berlin")
}

func TestFormat_Documents(t *testing.T) {
	cc := &CombinedContext{RAGDocuments: []core.Document{
		{ID: "chunk-7", Content: "Go is fun", Metadata: map[string]any{core.MetadataDocID: "d1", core.MetadataNamespace: "docs"}},
		{Content: "no metadata"},
	}}

	want := HeaderKnowledgeBase + "\n" +
		"### Document 1 (namespace: docs)\n**ID**: d1\n\nGo is fun" +
		"\n\n" +
		"### Document 2\n**ID**: doc_2\n\nno metadata"
	assert.Equal(t, want, Format(cc))
}

func TestFormat_ToolResults(t *testing.T) {
	cc := &CombinedContext{ToolResults: []core.ToolResult{
		{ToolCallID: "c1", ToolName: "get_current_datetime", Success: true, Result: map[string]any{"timezone": "UTC", "success": true}},
		{ToolCallID: "c2", ToolName: "explode", Error: "boom"},
	}}

	want := HeaderToolResults + "\n" +
		"### get_current_datetime (c1)\n**Status**: success\n{\"success\":true,\"timezone\":\"UTC\"}" +
		"\n\n" +
		"### explode (c2)\n**Status**: error\nboom"
	assert.Equal(t, want, Format(cc))
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityBalanced, p)

	p, err = ParsePriority("rag")
	require.NoError(t, err)
	assert.Equal(t, PriorityRAG, p)

	_, err = ParsePriority("speed")
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestNew_RejectsNonPositiveBudget(t *testing.T) {
	_, err := New(func(o *Options) {
		o.MaxTokens = 0
		o.Tokenizer = wordTokenizer{}
	})
	assert.Error(t, err)
}

func TestTiktokenTokenizer(t *testing.T) {
	tk, err := NewTiktokenTokenizer("")
	require.NoError(t, err)

	assert.Equal(t, 0, tk.Count(""))
	assert.Equal(t, 2, tk.Count("hello world"))

	b, err := New()
	require.NoError(t, err)
	cc := b.Build(Input{Memory: &core.MemorySnapshot{ShortTermText: "hello world"}})
	assert.Equal(t, 2, cc.TotalTokens)
}

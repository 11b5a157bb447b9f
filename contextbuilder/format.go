package contextbuilder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentlab/core"
)

// Section headers in render order. Present-turn evidence comes before
// derived memory.
const (
	HeaderRecentConversation  = "## Recent Conversation"
	HeaderKnowledgeBase       = "## Relevant Knowledge Base Documents"
	HeaderToolResults         = "## Tool Execution Results"
	HeaderKnownFacts          = "## Known Facts"
	HeaderUserProfile         = "## User Profile"
	HeaderConversationSummary = "## Conversation Summary"
	HeaderInteractionPatterns = "## Interaction Patterns"
	HeaderContextWarnings     = "## Context Warnings"
)

// Format renders cc as prompt text. Sections whose source is absent are
// omitted; an empty context renders as "".
func Format(cc *CombinedContext) string {
	if cc == nil {
		return ""
	}

	var sections []string
	add := func(header, body string) {
		if body != "" {
			sections = append(sections, header+"\n"+body)
		}
	}

	add(HeaderRecentConversation, cc.ShortTermText)
	add(HeaderKnowledgeBase, formatRAGDocuments(cc.RAGDocuments))
	add(HeaderToolResults, formatToolResults(cc.ToolResults))
	add(HeaderKnownFacts, bulletList(cc.SemanticFacts))
	add(HeaderUserProfile, formatProfile(cc.UserProfile))
	add(HeaderConversationSummary, cc.EpisodicSummary)
	add(HeaderInteractionPatterns, bulletList(cc.ProceduralPatterns))

	if len(cc.Warnings) > 0 {
		lines := make([]string, len(cc.Warnings))
		for i, w := range cc.Warnings {
			lines[i] = "⚠️ " + w
		}
		add(HeaderContextWarnings, strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

func formatProfile(profile map[string]any) string {
	if len(profile) == 0 {
		return ""
	}
	keys := sortedKeys(profile)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("- %s: %v", k, profile[k])
	}
	return strings.Join(lines, "\n")
}

func formatRAGDocuments(docs []core.Document) string {
	if len(docs) == 0 {
		return ""
	}
	entries := make([]string, len(docs))
	for i, d := range docs {
		n := i + 1
		header := fmt.Sprintf("### Document %d", n)
		if ns := d.Namespace(); ns != "" {
			header += fmt.Sprintf(" (namespace: %s)", ns)
		}
		id := d.DocID()
		if id == "" {
			id = fmt.Sprintf("doc_%d", n)
		}
		header += fmt.Sprintf("\n**ID**: %s\n", id)
		entries[i] = header + "\n" + d.Content
	}
	return strings.Join(entries, "\n\n")
}

func formatToolResults(results []core.ToolResult) string {
	if len(results) == 0 {
		return ""
	}
	entries := make([]string, len(results))
	for i, r := range results {
		header := fmt.Sprintf("### %s (%s)", r.ToolName, r.ToolCallID)
		if !r.Success {
			entries[i] = header + "\n**Status**: error\n" + r.Error
			continue
		}
		body, err := json.Marshal(r.Result)
		if err != nil {
			body = []byte(fmt.Sprintf("%v", r.Result))
		}
		entries[i] = header + "\n**Status**: success\n" + string(body)
	}
	return strings.Join(entries, "\n\n")
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hupe1980/agentlab"
	"github.com/hupe1980/agentlab/contextbuilder"
	"github.com/hupe1980/agentlab/core"
)

var (
	dimColor     = lipgloss.Color("7")
	accentColor  = lipgloss.Color("12")
	successColor = lipgloss.Color("10")
	warningColor = lipgloss.Color("11")
	dangerColor  = lipgloss.Color("9")

	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	StepStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1)
)

// renderTrace writes the steps of a response, one line per step.
func renderTrace(w io.Writer, resp *agentlab.ChatResponse) {
	if len(resp.AgentSteps) == 0 {
		return
	}
	fmt.Fprintln(w, TitleStyle.Render("Trace"))
	for _, s := range resp.AgentSteps {
		label := StepStyle.Render(fmt.Sprintf("%2d %s", s.StepNumber, s.Action))
		switch {
		case s.Action == core.ActionToolCall && s.ToolCall != nil:
			args, _ := json.Marshal(s.ToolCall.Args)
			fmt.Fprintf(w, "%s %s(%s)\n", label, s.ToolCall.Name, args)
			if r := s.ToolResult; r != nil {
				if r.Success {
					out, _ := json.Marshal(r.Result)
					fmt.Fprintf(w, "   %s\n", DimStyle.Render(string(out)))
				} else {
					fmt.Fprintf(w, "   %s\n", ErrorStyle.Render(r.Error))
				}
			}
		default:
			fmt.Fprintf(w, "%s %s\n", label, DimStyle.Render(s.Reasoning))
		}
	}
	fmt.Fprintln(w)
}

// renderBreakdown writes per-component token counts in a fixed order.
func renderBreakdown(w io.Writer, breakdown map[string]int, total int, truncated bool, warnings []string) {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%-20s %6d\n", k, breakdown[k])
	}
	fmt.Fprintf(&b, "%-20s %6d", "total", total)
	if truncated {
		b.WriteString("\n" + WarningStyle.Render("over budget"))
	}
	fmt.Fprintln(w, BoxStyle.Render(b.String()))

	for _, warn := range warnings {
		fmt.Fprintln(w, WarningStyle.Render("warning: "+warn))
	}
}

// renderContext writes the formatted context followed by its breakdown.
func renderContext(w io.Writer, cc *contextbuilder.CombinedContext) {
	text := contextbuilder.Format(cc)
	if text == "" {
		fmt.Fprintln(w, DimStyle.Render("(empty context)"))
	} else {
		fmt.Fprintln(w, text)
	}
	fmt.Fprintln(w)
	renderBreakdown(w, cc.TokenBreakdown, cc.TotalTokens, cc.Truncated, cc.Warnings)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

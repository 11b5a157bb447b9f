package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/hupe1980/agentlab"
	"github.com/hupe1980/agentlab/core"
	"github.com/spf13/cobra"
)

type chatFlags struct {
	message     string
	sessionID   string
	useTools    bool
	toolNames   []string
	useMemory   bool
	memoryTypes []string
	useRAG      bool
	namespaces  []string
	topK        int
	maxTokens   int
	priority    string
	trace       bool
	jsonOut     bool
	stream      bool
}

func (f *chatFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.message, "message", "m", "", "Single message to send (omit for REPL mode)")
	fs.StringVarP(&f.sessionID, "session", "s", "", "Session ID for memory (generated if empty)")
	fs.BoolVar(&f.useTools, "tools", false, "Let the model call tools")
	fs.StringSliceVar(&f.toolNames, "tool", nil, "Restrict tools to these names (repeatable)")
	fs.BoolVar(&f.useMemory, "memory", false, "Include session memory in the context")
	fs.StringSliceVar(&f.memoryTypes, "memory-type", nil, "Long-term memory kinds: semantic, episodic, profile, procedural")
	fs.BoolVar(&f.useRAG, "rag", false, "Include retrieved documents in the context")
	fs.StringSliceVar(&f.namespaces, "namespace", nil, "Retrieval namespaces (repeatable)")
	fs.IntVar(&f.topK, "top-k", 0, "Documents to retrieve (default from config)")
	fs.IntVar(&f.maxTokens, "max-context-tokens", 0, "Context token budget (default from config)")
	fs.StringVar(&f.priority, "priority", "", "Context priority: memory, rag or balanced")
}

func (f *chatFlags) request(messages []core.Message) agentlab.ChatRequest {
	return agentlab.ChatRequest{
		Messages:         messages,
		SessionID:        f.sessionID,
		UseTools:         f.useTools || len(f.toolNames) > 0,
		ToolNames:        f.toolNames,
		UseMemory:        f.useMemory,
		MemoryTypes:      f.memoryTypes,
		UseRAG:           f.useRAG,
		RAGNamespaces:    f.namespaces,
		RAGTopK:          f.topK,
		MaxContextTokens: f.maxTokens,
		ContextPriority:  f.priority,
	}
}

func newChatCmd() *cobra.Command {
	f := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in single message or REPL mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd.Context(), a, f, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&f.trace, "trace", false, "Print the agent steps")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print the full response as JSON")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "Print the answer as it is generated (ignored with --json)")
	return cmd
}

// streaming reports whether answers are printed chunk by chunk.
func (f *chatFlags) streaming() bool { return f.stream && !f.jsonOut }

// chatTurn runs one chat turn, streaming partial output to stdout when enabled.
func chatTurn(ctx context.Context, a *app, f *chatFlags, msgs []core.Message, stdout io.Writer) (*agentlab.ChatResponse, error) {
	req := f.request(msgs)
	if f.streaming() {
		req.OnPartial = func(text string) { fmt.Fprint(stdout, text) }
	}
	resp, err := a.service.Chat(ctx, req)
	if f.streaming() {
		fmt.Fprintln(stdout)
	}
	return resp, err
}

func runChat(ctx context.Context, a *app, f *chatFlags, stdin io.Reader, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Single message mode
	if f.message != "" {
		resp, err := chatTurn(ctx, a, f, []core.Message{core.NewMessage(core.RoleUser, f.message)}, stdout)
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		return printResponse(stdout, resp, f)
	}

	// REPL mode keeps one session so memory carries across turns.
	if f.sessionID == "" {
		f.sessionID = uuid.NewString()
	}
	fmt.Fprintln(stdout, TitleStyle.Render("agentlab chat")+DimStyle.Render(" (type 'exit' to quit, session "+f.sessionID+")"))

	var history []core.Message
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		// With memory on, the store supplies earlier turns.
		msgs := []core.Message{core.NewMessage(core.RoleUser, input)}
		if !f.useMemory {
			msgs = append(history, msgs...)
		}
		resp, err := chatTurn(ctx, a, f, msgs, stdout)
		if err != nil {
			fmt.Fprintln(stderr, ErrorStyle.Render("Error: "+err.Error()))
			continue
		}
		history = append(msgs, core.NewMessage(core.RoleAssistant, resp.ResponseText))

		if err := printResponse(stdout, resp, f); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func printResponse(w io.Writer, resp *agentlab.ChatResponse, f *chatFlags) error {
	if f.jsonOut {
		return writeJSON(w, resp)
	}
	if f.trace {
		renderTrace(w, resp)
		renderBreakdown(w, resp.TokenBreakdown, resp.ContextTokens, resp.ContextTruncated, resp.ContextWarnings)
		fmt.Fprintln(w)
	}
	if !f.streaming() {
		fmt.Fprintln(w, AssistantStyle.Render(resp.ResponseText))
	}
	return nil
}

func newContextCmd() *cobra.Command {
	f := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Preview the context a message would be answered with",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.message == "" {
				return fmt.Errorf("a message is required (-m)")
			}
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cc, err := a.service.BuildContext(cmd.Context(), f.request([]core.Message{core.NewMessage(core.RoleUser, f.message)}))
			if err != nil {
				return err
			}
			if f.jsonOut {
				return writeJSON(cmd.OutOrStdout(), cc)
			}
			renderContext(cmd.OutOrStdout(), cc)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print the combined context as JSON")
	return cmd
}

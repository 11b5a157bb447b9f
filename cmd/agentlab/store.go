package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/rag"
	"github.com/spf13/cobra"
)

func warnEphemeral(w io.Writer, what string) {
	fmt.Fprintln(w, WarningStyle.Render("warning: the "+what+" backend is in-memory; changes are lost when the command exits"))
}

func newRAGCmd() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "rag",
		Short: "Manage the retrieval index",
	}
	cmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", rag.DefaultNamespace, "Index namespace")

	var id string
	var files []string
	add := &cobra.Command{
		Use:   "add [text]",
		Short: "Index a document from text or files",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := documents(id, files, args)
			if err != nil {
				return err
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.persistentIndex() {
				warnEphemeral(cmd.ErrOrStderr(), "rag")
			}

			if err := a.index.Add(cmd.Context(), namespace, docs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d document(s) in namespace %q\n", len(docs), namespace)
			return nil
		},
	}
	add.Flags().StringVar(&id, "id", "", "Document ID for text input")
	add.Flags().StringSliceVarP(&files, "file", "f", nil, "Files to index; the file name is the ID")

	var topK int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank indexed documents against a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if topK == 0 {
				topK = a.cfg.RAG.TopK
			}
			docs, err := a.index.Retrieve(cmd.Context(), strings.Join(args, " "), topK, namespace)
			if err != nil {
				return err
			}
			for _, d := range docs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", StepStyle.Render(fmt.Sprintf("%.2f", d.Score)), TitleStyle.Render(d.ID), DimStyle.Render(firstLine(d.Content)))
			}
			return nil
		},
	}
	search.Flags().IntVarP(&topK, "top-k", "k", 0, "Documents to return (default from config)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.index.Delete(cmd.Context(), namespace, args[0])
		},
	}

	cmd.AddCommand(add, search, del)
	return cmd
}

func documents(id string, files, args []string) ([]core.Document, error) {
	var docs []core.Document
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		docs = append(docs, core.Document{
			ID:       filepath.Base(f),
			Content:  string(data),
			Metadata: map[string]any{"source": f},
		})
	}
	if text := strings.TrimSpace(strings.Join(args, " ")); text != "" {
		if id == "" {
			return nil, fmt.Errorf("--id is required for text input")
		}
		docs = append(docs, core.Document{ID: id, Content: text})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("nothing to index: pass text or --file")
	}
	return docs, nil
}

func newMemoryCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and seed session memory",
	}
	cmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "Session ID")
	_ = cmd.MarkPersistentFlagRequired("session")

	// withStore runs fn against the configured store.
	withStore := func(write bool, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if write && !a.persistentMemory() {
				warnEphemeral(cmd.ErrOrStderr(), "memory")
			}
			return fn(cmd, a, args)
		}
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show memory counts for a session",
		RunE: withStore(false, func(cmd *cobra.Command, a *app, _ []string) error {
			s, err := a.store.Stats(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		}),
	}

	fact := &cobra.Command{
		Use:   "fact <text>",
		Short: "Remember a semantic fact",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(true, func(cmd *cobra.Command, a *app, args []string) error {
			return a.store.AddFact(cmd.Context(), sessionID, strings.Join(args, " "))
		}),
	}

	pattern := &cobra.Command{
		Use:   "pattern <text>",
		Short: "Remember a procedural pattern",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(true, func(cmd *cobra.Command, a *app, args []string) error {
			return a.store.AddPattern(cmd.Context(), sessionID, strings.Join(args, " "))
		}),
	}

	summary := &cobra.Command{
		Use:   "summary <text>",
		Short: "Set the episodic summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(true, func(cmd *cobra.Command, a *app, args []string) error {
			return a.store.SetSummary(cmd.Context(), sessionID, strings.Join(args, " "))
		}),
	}

	profile := &cobra.Command{
		Use:   "profile <key=value>...",
		Short: "Merge attributes into the user profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(true, func(cmd *cobra.Command, a *app, args []string) error {
			attrs := make(map[string]any, len(args))
			for _, kv := range args {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid attribute %q: want key=value", kv)
				}
				attrs[k] = v
			}
			return a.store.UpdateProfile(cmd.Context(), sessionID, attrs)
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete everything stored for a session",
		RunE: withStore(true, func(cmd *cobra.Command, a *app, _ []string) error {
			return a.store.ClearSession(cmd.Context(), sessionID)
		}),
	}

	cmd.AddCommand(stats, fact, pattern, summary, profile, clearCmd)
	return cmd
}

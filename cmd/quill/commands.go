package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"quill/internal/rag"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <session> <file>...",
		Short: "Index documents into a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.cleanup()

			files, err := readFiles(args[1:])
			if err != nil {
				return err
			}

			report, err := a.engine.IndexDocuments(cmd.Context(), args[0], files)
			if err != nil {
				return err
			}
			printIndexReport(report)
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <session> <question>",
		Short: "Answer a question from a session's documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.cleanup()

			result, err := a.engine.Query(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(result.Answer)
			return nil
		},
	}
}

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <url>",
		Short: "Summarize a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.cleanup()

			summary, err := a.summarizer.SummarizeURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(summary)
			return nil
		},
	}
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List sessions",
			RunE: func(c *cobra.Command, _ []string) error {
				a, err := buildApp(c.Context())
				if err != nil {
					return err
				}
				defer a.cleanup()

				sessions, err := a.store.ListSessions(c.Context())
				if err != nil {
					return err
				}
				for _, s := range sessions {
					fmt.Printf("%s  %s  %s\n", cyan(s.ID), s.Name, gray(s.UpdatedAt.Format("2006-01-02 15:04")))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <session> <name>",
			Short: "Rename a session",
			Args:  cobra.ExactArgs(2),
			RunE: func(c *cobra.Command, args []string) error {
				a, err := buildApp(c.Context())
				if err != nil {
					return err
				}
				defer a.cleanup()
				return a.store.RenameSession(c.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "clear <session>",
			Short: "Delete a session's messages, keeping the session",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				a, err := buildApp(c.Context())
				if err != nil {
					return err
				}
				defer a.cleanup()
				return a.store.ClearMessages(c.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "delete <session>",
			Short: "Delete a session, its messages, and its document index",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				a, err := buildApp(c.Context())
				if err != nil {
					return err
				}
				defer a.cleanup()
				return a.engine.DeleteSession(c.Context(), args[0])
			},
		},
	)
	return cmd
}

// readFiles loads local paths into upload payloads.
func readFiles(paths []string) ([]rag.File, error) {
	files := make([]rag.File, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, rag.File{Name: filepath.Base(path), Data: data})
	}
	return files, nil
}

func printIndexReport(report *rag.IndexReport) {
	for _, f := range report.Files {
		if f.Err != nil {
			fmt.Printf("%s %s: %v\n", red("✗"), f.Name, f.Err)
			continue
		}
		fmt.Printf("%s %s: %d chunks\n", green("✓"), f.Name, f.Chunks)
	}
	fmt.Printf("indexed %d chunks total\n", report.TotalChunks)
}

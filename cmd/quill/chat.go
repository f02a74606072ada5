package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quill/internal/orchestrator"
	"quill/pkg/types"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func errorText(msg string) string {
	return red("error: " + msg)
}

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.cleanup()

			if sessionID == "" {
				sessionID = uuid.NewString()[:8]
			}
			return runChat(cmd, a, sessionID)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to continue (new session when empty)")
	return cmd
}

func runChat(cmd *cobra.Command, a *app, sessionID string) error {
	ctx := cmd.Context()

	fmt.Printf("%s session %s\n", bold("quill"), cyan(sessionID))
	fmt.Println(gray("Type a question, /upload <file> to index a document, /quit to exit."))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(bold("> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case strings.HasPrefix(line, "/upload "):
			uploadFiles(cmd, a, sessionID, strings.Fields(strings.TrimPrefix(line, "/upload ")))
			continue
		}

		result, err := a.engine.Route(ctx, sessionID, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Println(errorText(err.Error()))
			continue
		}

		printTrace(result.Steps)
		if result.Route == orchestrator.RouteRetrieval {
			fmt.Println(gray("[answered from session documents]"))
		}
		fmt.Printf("%s %s\n\n", green("assistant:"), result.Answer)
	}
}

func uploadFiles(cmd *cobra.Command, a *app, sessionID string, paths []string) {
	if len(paths) == 0 {
		fmt.Println(errorText("usage: /upload <file> [file...]"))
		return
	}

	files, err := readFiles(paths)
	if err != nil {
		fmt.Println(errorText(err.Error()))
		return
	}

	report, err := a.engine.IndexDocuments(cmd.Context(), sessionID, files)
	if err != nil {
		fmt.Println(errorText(err.Error()))
		return
	}
	printIndexReport(report)
}

func printTrace(steps []types.Step) {
	for i, step := range steps {
		fmt.Printf("%s %s\n", yellow(fmt.Sprintf("[step %d]", i+1)), step.Log)
		fmt.Printf("  %s %s(%s)\n", gray("call:"), step.Tool, step.Input)
		fmt.Printf("  %s %s\n", gray("seen:"), firstLine(step.Observation))
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx] + " ..."
	}
	return s
}

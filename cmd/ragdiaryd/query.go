package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragdiary/diaryengine/internal/queryplanner"
)

var (
	queryPromptPath string
	queryUserText   string
	queryAIText     string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Rewrite the placeholders in a system-prompt file",
	Long: `Read a system prompt containing retrieval placeholders, build the query
from --user and --ai, and print the rewritten prompt.`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryPromptPath, "prompt", "", "path to the system-prompt file (required)")
	queryCmd.Flags().StringVar(&queryUserText, "user", "", "the user turn text")
	queryCmd.Flags().StringVar(&queryAIText, "ai", "", "the prior assistant turn text")
	_ = queryCmd.MarkFlagRequired("prompt")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.logger.Sync() //nolint:errcheck

	prompt, err := os.ReadFile(queryPromptPath)
	if err != nil {
		return fmt.Errorf("reading prompt file: %w", err)
	}

	if err := eng.tags.Start(ctx); err != nil {
		return fmt.Errorf("starting tag index: %w", err)
	}
	defer eng.tags.Stop()
	if err := eng.tags.WaitInit(ctx); err != nil {
		return err
	}
	if err := eng.groups.Warm(ctx, eng.embedder); err != nil {
		eng.zlog.Warn("semantic group warmup failed, group enhancement disabled")
	}

	messages := []queryplanner.Message{
		{Role: "system", Content: string(prompt)},
	}
	if queryUserText != "" {
		messages = append(messages, queryplanner.Message{Role: "user", Content: queryUserText})
	}
	if queryAIText != "" {
		messages = append(messages, queryplanner.Message{Role: "assistant", Content: queryAIText})
	}

	out := eng.planner.ProcessSystemMessages(ctx, messages, queryplanner.Options{})
	fmt.Fprintln(cmd.OutOrStdout(), out[0].Content)
	return nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		topK        int
		showContext bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the indexed complaints",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is empty")
			}

			app, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.PrepareIndex(cmd.Context()); err != nil {
				return err
			}

			limit := app.QueryUC.TopK()
			if cmd.Flags().Changed("top-k") {
				limit = topK
			}
			answer := app.QueryUC.AnswerWithLimit(cmd.Context(), question, limit)
			if asJSON {
				return printJSON(cmd, answer)
			}
			printAnswer(cmd, answer, showContext)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "chunks to retrieve (default from config)")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the chunks the answer was based on")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	return cmd
}

func printAnswer(cmd *cobra.Command, answer domain.Answer, showContext bool) {
	cmd.Println(answer.Text)
	if answer.Failure != nil {
		cmd.PrintErrf("answer failed (%s): %s\n", answer.Failure.Kind, answer.Failure.Message)
		return
	}
	if !showContext {
		return
	}
	for i, chunk := range answer.SourceChunks {
		cmd.Printf("\n[%d] %s\n%s\n", i+1, chunk.ID, chunk.Content)
	}
}

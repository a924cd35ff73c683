package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"energyrag/internal/domain"
	"energyrag/internal/service"
)

var (
	askJSON     bool
	askNumDocs  int
	askEvidence bool
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the structured answer as JSON")
	askCmd.Flags().IntVarP(&askNumDocs, "num-docs", "k", 0, "number of snippets to retrieve (overrides retrieval.num_docs)")
	askCmd.Flags().BoolVar(&askEvidence, "evidence", false, "also print the retrieved snippets")
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

// askResult is the --json output.
type askResult struct {
	domain.StructuredAnswer
	Evidence []domain.ScoredChunk `json:"evidence,omitempty"`
	Model    string               `json:"model"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, buildOptions{generator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	q := domain.Query{Text: strings.Join(args, " "), NumDocs: askNumDocs}
	ans, err := a.svc.AskWithEvidence(ctx, q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askJSON {
		res := askResult{StructuredAnswer: ans.StructuredAnswer, Model: ans.Model}
		if askEvidence {
			res.Evidence = ans.Context.Items
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printAnswer(out, ans, askEvidence)
	return nil
}

func printAnswer(w io.Writer, a service.Answer, evidence bool) {
	fmt.Fprintln(w, a.AnswerText)
	if len(a.Citations) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, c := range a.Citations {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, c.DocumentTitle)
		}
	}
	if a.Caveats != "" {
		fmt.Fprintf(w, "\nCaveats: %s\n", a.Caveats)
	}
	if evidence {
		titles := a.Context.Titles()
		fmt.Fprintf(w, "\nEvidence from %d documents: %s\n", len(titles), strings.Join(titles, "; "))
		for i, it := range a.Context.Items {
			fmt.Fprintf(w, "  [%d] %s (score %.3f)\n      %s\n", i+1, it.Chunk.DocumentTitle, it.Score, it.Chunk.Text)
		}
	}
}

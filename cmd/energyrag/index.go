package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"energyrag/internal/domain"
)

var (
	indexDir   string
	indexReset bool
	indexJSON  bool
)

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&indexDir, "dir", "", "resource directory (overrides data.resource_dir)")
	indexCmd.Flags().BoolVar(&indexReset, "reset", false, "clear the index before indexing")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "print the indexing report as JSON")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the resource directory",
	Long: `Load every .txt, .md, .html and .pdf file under the resource directory,
split it into overlapping chunks, embed the chunks with the active embedding
model and upsert them into the active vector index.

Re-running is safe: chunk IDs are derived from the file path and position,
so unchanged documents overwrite themselves.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, buildOptions{reset: indexReset})
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.cfg.Data.ResourceDir
	if indexDir != "" {
		dir = indexDir
	}

	report, err := a.svc.IngestDirectory(ctx, dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if indexJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report)
	if len(report.Documents) == 0 && len(report.Failures) > 0 {
		return errors.New("no document could be indexed")
	}
	return nil
}

func printReport(w io.Writer, r domain.IndexReport) {
	fmt.Fprintf(w, "Indexed %d documents (%d chunks, %d duplicate chunks)\n", len(r.Documents), r.Chunks, r.DuplicateChunks)
	for _, d := range r.Documents {
		fmt.Fprintf(w, "  %-40s %4d chunks\n", d.Title, d.Chunks)
		if d.Summary != "" {
			fmt.Fprintf(w, "      %s\n", d.Summary)
		}
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "Failed %d documents\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.SourcePath, f.Error)
		}
	}
}

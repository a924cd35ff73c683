package main

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"energyrag/internal/logger"
	"energyrag/internal/tui"
)

func init() {
	rootCmd.AddCommand(tuiCmd)
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Ask questions interactively",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, buildOptions{generator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.svc.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		logger.Warn("the index is empty; run 'energyrag index' first")
	}

	// the UI owns the terminal while it runs; logs go to a file or nowhere
	if logger.IsVerbose() {
		f, err := tea.LogToFile("energyrag-debug.log", "")
		if err != nil {
			return err
		}
		defer f.Close()
		logger.SetOutput(f)
	} else {
		logger.SetOutput(io.Discard)
	}

	header := fmt.Sprintf("%d chunks · embeddings %s · model %s", count, a.svc.EmbeddingModel(), a.svc.GenerationModel())
	m := tui.New(ctx, a.svc, a.cfg.Retrieval.NumDocs, header)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

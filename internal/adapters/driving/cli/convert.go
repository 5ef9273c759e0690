package cli

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/miabe-ai/campusgpt/internal/connectors/web"
	"github.com/miabe-ai/campusgpt/internal/normalisers"
	"github.com/miabe-ai/campusgpt/internal/normalisers/docx"
	"github.com/miabe-ai/campusgpt/internal/normalisers/pdf"
)

var convertOutDir string

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Normalise crawled content into a Markdown corpus",
	Long: `Converts stored HTML pages and binary documents into Markdown
files, then removes files whose normalised content is identical.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutDir, "out", "o", "", "output directory (default: <data_dir>/markdown)")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	store, err := web.NewStore(cfg.Crawl.DataDir)
	if err != nil {
		return err
	}

	outDir := convertOutDir
	if outDir == "" {
		outDir = filepath.Join(cfg.Crawl.DataDir, "markdown")
	}

	pipeline := normalisers.NewPipeline(store, outDir, pdf.New(), docx.New())
	report, err := pipeline.Run(cmd.Context())
	if err != nil {
		return err
	}

	rows := [][]string{
		{"Converted", fmt.Sprintf("%d", report.Converted)},
		{"Skipped", fmt.Sprintf("%d", report.Skipped)},
		{"Errors", fmt.Sprintf("%d", report.Errors)},
		{"Duplicates removed", fmt.Sprintf("%d", report.DuplicatesRemoved)},
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers("Metric", "Value").
		Rows(rows...)
	cmd.Println(t)
	cmd.Printf("Markdown corpus written to %s\n", outDir)
	return nil
}

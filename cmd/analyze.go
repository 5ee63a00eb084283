package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shuangxiangkan/PyCTrace/internal/analyze"
	"github.com/shuangxiangkan/PyCTrace/internal/render"
)

var (
	analyzeOutput  string
	analyzeFormats []string
	analyzeWorkers int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dir>",
	Short: "Analyze a C source tree for Python C-API usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		if analyzeOutput != "" {
			cfg.Output.Dir = analyzeOutput
		}
		if len(analyzeFormats) > 0 {
			cfg.Output.Formats = analyzeFormats
		}

		report, err := analyze.Run(cmd.Context(), args[0], analyze.Options{
			Config:  cfg,
			Workers: analyzeWorkers,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		if cfg.Output.Dir == "-" {
			return render.Text(os.Stdout, report)
		}
		if err := render.WriteAll(cfg.Output.Dir, cfg.Output.Formats, report); err != nil {
			return err
		}
		logger.Info("report written", "dir", cfg.Output.Dir, "formats", cfg.Output.Formats)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", `output directory ("-" for text on stdout)`)
	analyzeCmd.Flags().StringSliceVar(&analyzeFormats, "format", nil, "output formats (text, json, dot, mermaid)")
	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0, "parser goroutines (0 = NumCPU)")
	rootCmd.AddCommand(analyzeCmd)
}

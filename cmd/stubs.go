package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shuangxiangkan/PyCTrace/internal/analyze"
	"github.com/shuangxiangkan/PyCTrace/internal/llm"
	"github.com/shuangxiangkan/PyCTrace/internal/stub"
)

var (
	stubsOutput string
	stubsUseLLM bool
)

var stubsCmd = &cobra.Command{
	Use:   "stubs <dir>",
	Short: "Generate .pyi stubs for extension modules registered in a C tree",
	Long: `Analyzes the tree, then writes one Python interface stub per recovered
module registration chain. By default signatures come from the method tables
and PyArg_ParseTuple format strings; with --llm the chain source is sent to a
model for richer parameter names and types.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		report, err := analyze.Run(cmd.Context(), args[0], analyze.Options{
			Config: cfg,
			Logger: logger,
		})
		if err != nil {
			return err
		}

		var infos []llm.ModuleInfo
		if stubsUseLLM {
			client, err := llm.NewClaudeClient(cfg.LLM)
			if err != nil {
				return err
			}
			infos = llm.Enrich(cmd.Context(), client, report.Chains, logger)
		} else {
			for _, chain := range report.Chains {
				infos = append(infos, llm.FromChain(chain))
			}
		}

		if err := stub.WriteStubs(stubsOutput, infos); err != nil {
			return err
		}
		logger.Info("stubs written", "dir", stubsOutput, "modules", len(infos))
		return nil
	},
}

func init() {
	stubsCmd.Flags().StringVarP(&stubsOutput, "output", "o", "stubs", "stub output directory")
	stubsCmd.Flags().BoolVar(&stubsUseLLM, "llm", false, "enrich signatures with the Anthropic API")
	rootCmd.AddCommand(stubsCmd)
}

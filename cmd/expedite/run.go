package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/expedite/internal/config"
	"github.com/JaimeStill/expedite/internal/pipeline"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	var variant string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch of pending cases",
		Long: `Acquire the variant lock, check the operating window and process every
pending case in order. A run that finds the lock held or the window closed
exits successfully without doing work.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !config.IsVariant(variant) {
				return fmt.Errorf("unknown variant %q: want one of %v", variant, config.Variants)
			}

			s, err := open(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer s.Close()

			rt, err := s.domain.Runtime(variant)
			if err != nil {
				return err
			}

			res, err := pipeline.NewRunner(rt).Run(cmd.Context())
			if res != nil {
				printResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "Pipeline variant: merge or folder")
	_ = cmd.MarkFlagRequired("variant")

	return cmd
}

func printResult(w io.Writer, res *pipeline.RunResult) {
	fmt.Fprintf(w, "run %s: %s", res.RunID, res.Status)
	if res.Reason != "" {
		fmt.Fprintf(w, " (%s)", res.Reason)
	}
	fmt.Fprintln(w)

	if res.Report == nil {
		return
	}
	t := res.Report.Tally()
	fmt.Fprintf(w, "total %d, succeeded %d, failed %d, pending %d, flagged %d\n",
		t.Total, t.Succeeded, t.Failed, t.Pending, t.Flagged)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and connectivity to every external system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd.Context(), opts.configPath, false)
			if err != nil {
				return err
			}
			defer s.Close()

			failed := 0
			w := cmd.OutOrStdout()
			for _, p := range s.domain.Check(cmd.Context()) {
				if p.Err != nil {
					failed++
					fmt.Fprintf(w, "%-10s FAIL  %v\n", p.Name, p.Err)
					continue
				}
				fmt.Fprintf(w, "%-10s ok\n", p.Name)
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

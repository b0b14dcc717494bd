package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/expedite/internal/config"
)

func newUnlockCommand(opts *rootOptions) *cobra.Command {
	var (
		variant string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Show or remove the execution lock of a variant",
		Long: `Print the current lock holder of a variant. With --force the lock is
deleted regardless of holder; use it only when the holding run is known to
be dead and waiting for the staleness ceiling is not acceptable.`,
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

			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			rec, held, err := s.domain.Locker.Inspect(ctx, variant)
			if err != nil {
				return err
			}
			if !held {
				fmt.Fprintf(w, "%s: not locked\n", variant)
				return nil
			}
			fmt.Fprintf(w, "%s: held by %s on %s for %s\n",
				variant, rec.Holder, rec.Host, rec.Age(time.Now()).Round(time.Second))

			if !force {
				return nil
			}
			if err := s.domain.Locker.ForceRelease(ctx, variant); err != nil {
				return err
			}
			fmt.Fprintf(w, "%s: lock removed\n", variant)
			return nil
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "Pipeline variant: merge or folder")
	cmd.Flags().BoolVar(&force, "force", false, "Delete the lock regardless of holder")
	_ = cmd.MarkFlagRequired("variant")

	return cmd
}

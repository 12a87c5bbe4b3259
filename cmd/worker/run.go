package main

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the delivery job consumers and the scheduled channel sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()
			return s.worker.Run(ctx, !noSync)
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Only consume jobs; leave channel sync to another process.")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxdesk/conversation-service/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	var (
		tenantID  int64
		channelID int64
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync pull-based channels once",
		Long:  "Without --channel every active pull-based channel is synced. With --channel, --tenant is required.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if channelID > 0 && tenantID <= 0 {
				return fmt.Errorf("--tenant is required with --channel")
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			var reports []syncer.Report
			if channelID > 0 {
				report, err := s.worker.Syncer.SyncChannel(ctx, tenantID, channelID)
				if err != nil && report.ChannelID == 0 {
					return err
				}
				reports = append(reports, report)
			} else {
				reports, err = s.worker.Syncer.SyncAll(ctx)
				if err != nil {
					return err
				}
			}

			failed := 0
			out := cmd.OutOrStdout()
			for _, r := range reports {
				status := "ok"
				switch {
				case r.Skipped:
					status = "skipped"
				case r.Err != nil:
					status = "error: " + r.Err.Error()
					failed++
				}
				fmt.Fprintf(out, "tenant=%d channel=%d fetched=%d ingested=%d duplicates=%d failed=%d %s\n",
					r.TenantID, r.ChannelID, r.Fetched, r.Ingested, r.Duplicates, r.Failed, status)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d channels failed to sync", failed, len(reports))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "Tenant id of --channel.")
	cmd.Flags().Int64Var(&channelID, "channel", 0, "Sync only this channel.")
	return cmd
}

package cmd

import (
	"fmt"

	"geo-refresh/feature/changesets"

	"github.com/spf13/cobra"
)

var pruneDays int

// changesetsCmd is the parent command for changeset artifact operations.
var changesetsCmd = &cobra.Command{
	Use:   "changesets",
	Short: "List and prune changeset spreadsheets",
}

var changesetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local and archived changesets",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := changesetService()
		if err != nil {
			return err
		}
		defer done()

		list, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("=== Local ===")
		for _, a := range list.Local {
			fmt.Printf("%s  %8d  %s\n", a.ModTime.Format("2006-01-02 15:04:05"), a.Size, a.Name)
		}
		if list.Archived != nil {
			fmt.Println("=== Archived ===")
			for _, a := range list.Archived {
				fmt.Printf("%s  %8d  %s\n", a.LastModified.Format("2006-01-02 15:04:05"), a.Size, a.Name)
			}
		}
		return nil
	},
}

var changesetsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove changesets older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := changesetService()
		if err != nil {
			return err
		}
		defer done()

		res, err := svc.Prune(cmd.Context(), pruneDays)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d local and %d archived changesets older than %s\n",
			len(res.Local), len(res.Archived), res.Cutoff.Format("2006-01-02 15:04:05"))
		return nil
	},
}

func changesetService() (*changesets.Service, func(), error) {
	rt, err := setup()
	if err != nil {
		return nil, nil, err
	}
	if rt.cfg.Refresh.ChangesetDir == "" {
		return nil, nil, fmt.Errorf("no changeset directory configured, set REFRESH_CHANGESET_DIR")
	}
	svc := changesets.NewService(rt.logger, rt.fs, rt.cfg.Refresh.ChangesetDir, rt.cfg.Refresh.ArtifactRetentionDays, rt.archive)
	return svc, func() { _ = rt.logger.Sync() }, nil
}

func init() {
	changesetsPruneCmd.Flags().IntVar(&pruneDays, "days", 0, "Age in days (default from refresh.artifact_retention_days)")

	changesetsCmd.AddCommand(changesetsListCmd)
	changesetsCmd.AddCommand(changesetsPruneCmd)
	RootCmd.AddCommand(changesetsCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docq/internal/models"
)

var (
	purgeDays    int
	purgeEnqueue bool
)

// purgeCmd represents the purge command
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete completed and failed jobs past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		if purgeEnqueue {
			payload, err := json.Marshal(models.MaintenancePayload{
				Action:        models.MaintenanceActionPurge,
				OlderThanDays: purgeDays,
			})
			if err != nil {
				return err
			}
			job, err := appInstance.Engine.Enqueue(cmd.Context(), models.QueueMaintenance, "", payload, models.PriorityLow, nil)
			if err != nil {
				return fmt.Errorf("failed to enqueue purge job: %w", err)
			}
			color.Green("Enqueued maintenance job %s", job.JobID)
			return nil
		}

		removed, err := appInstance.Engine.PurgeCompletedJobs(cmd.Context(), purgeDays)
		if err != nil {
			return err
		}
		color.Green("Purged %d jobs older than %d days", removed, purgeDays)
		return nil
	},
}

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Republish queued jobs whose broker message was lost",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		republished, err := appInstance.Engine.Reconcile(cmd.Context(), 0)
		if err != nil {
			return err
		}
		color.Green("Republished %d orphaned jobs", republished)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(reconcileCmd)
	purgeCmd.Flags().IntVar(&purgeDays, "days", 30, "delete terminal jobs older than this many days")
	purgeCmd.Flags().BoolVar(&purgeEnqueue, "enqueue", false, "run as a maintenance job instead of immediately")
}

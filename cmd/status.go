package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docq/internal/models"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job's state and result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		job, err := appInstance.Engine.GetJobStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		printJob(job)
		return nil
	},
}

// cancelCmd represents the cancel command
var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or processing job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		if err := appInstance.Engine.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		color.Yellow("Cancelled job %s", args[0])
		return nil
	},
}

func printJob(job *models.QueueJob) {
	fmt.Printf("Job:      %s\n", job.JobID)
	fmt.Printf("Queue:    %s\n", job.QueueType)
	fmt.Printf("Status:   %s\n", colorStatus(job.Status))
	fmt.Printf("Priority: %s\n", job.Priority)
	fmt.Printf("Retries:  %d/%d\n", job.RetryCount, job.MaxRetries)
	fmt.Printf("Created:  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.AssignedWorker != nil {
		fmt.Printf("Worker:   %s\n", *job.AssignedWorker)
	}
	if d := job.ProcessingDuration(); d > 0 {
		fmt.Printf("Duration: %s\n", d)
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", *job.ErrorMessage)
	}
	if len(job.Result) > 0 {
		pretty, err := json.MarshalIndent(json.RawMessage(job.Result), "", "  ")
		if err == nil {
			fmt.Printf("Result:\n%s\n", pretty)
		}
	}
}

func colorStatus(status models.JobStatus) string {
	switch status {
	case models.JobStatusCompleted, models.JobStatusApproved:
		return color.GreenString(string(status))
	case models.JobStatusFailed, models.JobStatusRejected:
		return color.RedString(string(status))
	case models.JobStatusProcessing:
		return color.CyanString(string(status))
	case models.JobStatusCancelled:
		return color.YellowString(string(status))
	}
	return string(status)
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
}

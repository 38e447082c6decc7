package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"docq/internal/models"
)

var (
	jobsUser   string
	jobsStatus string
	jobsLimit  int
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List a user's jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jobsUser == "" {
			return fmt.Errorf("--user is required")
		}

		var status *models.JobStatus
		if jobsStatus != "" {
			st := models.JobStatus(jobsStatus)
			if !st.Valid() {
				return fmt.Errorf("unknown status %q", jobsStatus)
			}
			status = &st
		}

		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		jobs, err := appInstance.Engine.GetUserJobs(cmd.Context(), jobsUser, status, jobsLimit)
		if err != nil {
			return fmt.Errorf("error listing jobs: %w", err)
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Job ID", "Queue", "Status", "Priority", "Retries", "Created", "Worker"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, job := range jobs {
			worker := ""
			if job.AssignedWorker != nil {
				worker = *job.AssignedWorker
			}
			table.Append([]string{
				job.JobID,
				string(job.QueueType),
				colorStatus(job.Status),
				job.Priority.String(),
				strconv.Itoa(job.RetryCount) + "/" + strconv.Itoa(job.MaxRetries),
				job.CreatedAt.Format("2006-01-02 15:04:05"),
				worker,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().StringVar(&jobsUser, "user", "", "user id to list jobs for")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum jobs to list")
}

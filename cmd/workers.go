package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// workersCmd represents the workers command
var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Show active workers inferred from in-flight jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		workers, err := appInstance.Engine.GetActiveWorkers(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing workers: %w", err)
		}

		if len(workers) == 0 {
			fmt.Println("No active workers.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Worker", "Active Jobs", "Oldest Job Started", "Longest Running"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, w := range workers {
			var longest time.Duration
			for _, j := range w.Jobs {
				if j.Elapsed > longest {
					longest = j.Elapsed
				}
			}
			table.Append([]string{
				w.WorkerID,
				strconv.Itoa(w.ActiveJobs),
				w.OldestJob.Format("2006-01-02 15:04:05"),
				longest.Round(time.Second).String(),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workersCmd)
}

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"docq/internal/models"
	"docq/internal/queue"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depths and job status counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		stats, err := appInstance.Engine.GetSystemStatistics(cmd.Context())
		if err != nil {
			return fmt.Errorf("error collecting statistics: %w", err)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Queue", "Visible", "In Flight", "Delayed", "DLQ", "Statuses", "Health"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, q := range stats.Queues {
			table.Append([]string{
				string(q.QueueType),
				strconv.Itoa(q.Depth.Visible),
				strconv.Itoa(q.Depth.InFlight),
				strconv.Itoa(q.Depth.Delayed),
				strconv.Itoa(q.Depth.DeadLetter),
				formatStatusCounts(q.StatusCounts),
				colorHealth(q.Health),
			})
		}
		table.Render()

		fmt.Printf("\nOverall health: %s\n", colorHealth(stats.OverallHealth))
		return nil
	},
}

func formatStatusCounts(counts map[models.JobStatus]int) string {
	if len(counts) == 0 {
		return "-"
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	out := ""
	for i, s := range statuses {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", s, counts[models.JobStatus(s)])
	}
	return out
}

func colorHealth(health string) string {
	if health == queue.HealthHealthy {
		return color.GreenString(health)
	}
	return color.YellowString(health)
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

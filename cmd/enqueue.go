package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docq/internal/models"
)

var (
	enqueueUser     string
	enqueuePriority string
	enqueueName     string
	enqueueURLs     []string
	enqueueEstimate int
)

func parsePriority(name string) (models.JobPriority, error) {
	switch name {
	case "low":
		return models.PriorityLow, nil
	case "normal", "":
		return models.PriorityNormal, nil
	case "high":
		return models.PriorityHigh, nil
	case "urgent":
		return models.PriorityUrgent, nil
	}
	return 0, fmt.Errorf("unknown priority %q (low, normal, high, urgent)", name)
}

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue [files...]",
	Short: "Enqueue a document-processing job",
	Long: `Submits files and/or URLs for processing. Files are read and carried
inside the job payload; URLs are fetched by the worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && len(enqueueURLs) == 0 {
			return fmt.Errorf("nothing to process: pass file paths or --url")
		}

		priority, err := parsePriority(enqueuePriority)
		if err != nil {
			return err
		}

		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		payload := models.DocumentPayload{
			JobName: enqueueName,
			URLs:    enqueueURLs,
		}
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			payload.Files = append(payload.Files, models.FileInput{
				Filename: filepath.Base(path),
				Content:  content,
			})
		}
		if err := payload.Validate(); err != nil {
			return err
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}

		var estimate *int
		if enqueueEstimate > 0 {
			estimate = &enqueueEstimate
		}
		job, err := appInstance.Engine.Enqueue(cmd.Context(), models.QueueDocumentProcessing, enqueueUser, raw, priority, estimate)
		if err != nil {
			return fmt.Errorf("failed to enqueue job: %w", err)
		}

		color.Green("Enqueued job %s", job.JobID)
		fmt.Printf("Queue:    %s\nPriority: %s\nInputs:   %d files, %d urls\n",
			job.QueueType, job.Priority, len(payload.Files), len(payload.URLs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().StringVar(&enqueueUser, "user", "", "user id to attribute the job to")
	enqueueCmd.Flags().StringVar(&enqueuePriority, "priority", "normal", "job priority (low, normal, high, urgent)")
	enqueueCmd.Flags().StringVar(&enqueueName, "name", "", "job name used in artifact keys")
	enqueueCmd.Flags().StringSliceVar(&enqueueURLs, "url", nil, "url to fetch and process (repeatable)")
	enqueueCmd.Flags().IntVar(&enqueueEstimate, "estimate", 0, "estimated duration hint in seconds")
}

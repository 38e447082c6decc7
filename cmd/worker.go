package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"docq/internal/worker"
)

var (
	workerConcurrency int
	workerQueues      []string
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background job worker",
	Long:  `Starts a worker process that polls the configured queues and processes document and maintenance jobs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		defer appInstance.Close()

		cfg := appInstance.Config
		if workerConcurrency > 0 {
			cfg.Worker.Concurrency = workerConcurrency
		}
		if len(workerQueues) > 0 {
			cfg.Worker.Queues = workerQueues
		}

		w, err := worker.New(appInstance.Engine, appInstance.Pipeline, cfg)
		if err != nil {
			return fmt.Errorf("failed to create worker: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			log.Info("Shutdown signal received, finishing in-flight jobs...")
		}()

		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "number of concurrent poll loops (overrides config)")
	workerCmd.Flags().StringSliceVar(&workerQueues, "queues", nil, "queues to poll (overrides config)")
}

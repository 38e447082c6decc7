package cmd

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"docq/internal/apihandlers"
)

var (
	serveAddr string
	servePort string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts an HTTP server exposing the queue (enqueue, status, cancel,
statistics, workers) and maintenance operations via a RESTful API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		router := gin.Default() // Includes logger and recovery middleware

		apiHandler := apihandlers.NewAPIHandler(appInstance)

		router.GET("/health", apiHandler.HealthHandler)

		v1 := router.Group("/api/v1")
		{
			jobsGroup := v1.Group("/jobs")
			{
				jobsGroup.POST("", apiHandler.EnqueueJobHandler)
				jobsGroup.GET("", apiHandler.ListJobsHandler)
				jobsGroup.GET("/:id", apiHandler.GetJobHandler)
				jobsGroup.DELETE("/:id", apiHandler.CancelJobHandler)
			}

			queuesGroup := v1.Group("/queues")
			{
				queuesGroup.GET("/stats", apiHandler.QueueStatsHandler)
			}

			v1.GET("/workers", apiHandler.ActiveWorkersHandler)

			maintenanceGroup := v1.Group("/maintenance")
			{
				maintenanceGroup.POST("/purge", apiHandler.PurgeJobsHandler)
				maintenanceGroup.POST("/reconcile", apiHandler.ReconcileHandler)
			}
		}

		addr := serveAddr
		if addr == "" {
			addr = appInstance.Config.Server.Addr
		}
		port := servePort
		if port == "" {
			port = appInstance.Config.Server.Port
		}

		listenAddr := fmt.Sprintf("%s:%s", addr, port)
		log.Infof("Starting API server on %s", listenAddr)
		if err := router.Run(listenAddr); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides config)")
}

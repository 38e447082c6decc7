package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docq/internal/models"
	"docq/internal/store"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity to the job store, broker, and object store",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		ctx := cmd.Context()
		failures := 0

		if err := appInstance.JobStore.Ping(ctx); err != nil {
			color.Red("job store:    FAIL (%v)", err)
			failures++
		} else {
			color.Green("job store:    ok")
		}

		for _, queue := range models.AllQueueTypes {
			depth, err := appInstance.Broker.Depth(ctx, queue)
			if err != nil {
				color.Red("broker %-22s FAIL (%v)", queue+":", err)
				failures++
				continue
			}
			color.Green("broker %-22s ok (visible=%d in-flight=%d delayed=%d dlq=%d)",
				queue+":", depth.Visible, depth.InFlight, depth.Delayed, depth.DeadLetter)
		}

		// A missing manifest is a healthy empty store; only transport
		// errors count.
		_, err = appInstance.ObjectStore.Get(ctx, appInstance.Config.Storage.ManifestKey)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			color.Red("object store: FAIL (%v)", err)
			failures++
		} else {
			color.Green("object store: ok")
		}

		provider := appInstance.Embedding.Provider()
		color.Green("embedding:    %s (%d dimensions)", provider.ModelName(), provider.Dimension())

		if failures > 0 {
			return fmt.Errorf("%d check(s) failed", failures)
		}
		fmt.Println("All checks passed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

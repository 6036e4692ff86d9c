package cli

import (
	"time"

	"github.com/spf13/cobra"

	"arena-quiz-service/internal/config"
)

// NewTickCmd runs a single scheduler pass and exits, for cron-style
// deployments and manual repair.
func NewTickCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			svc, err := buildServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.close()
			return svc.scheduler.RunPass(cmd.Context(), time.Now())
		},
	}
}

package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/cs244-team/sidekick/pkg"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the emulation",
	Long: `Build the emulated network, start it and launch the collaborators.
The network stays up until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		h, err := pkg.NewHarness(cfg)
		if err != nil {
			return err
		}

		// signals are caught for the whole run, so a Ctrl-C while the network
		// is being built still goes through Stop
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runUntilDone(ctx, h)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runUntilDone runs h and keeps the network up until ctx is done. A failed
// or cancelled Run has already torn the network down.
func runUntilDone(ctx context.Context, h *pkg.Harness) error {
	if err := h.Run(ctx); err != nil {
		return err
	}
	log.WithField("id", h.ID).Info("network is up, press Ctrl-C to stop")

	<-ctx.Done()
	log.Info("stopping")
	return h.Stop(context.WithoutCancel(ctx))
}

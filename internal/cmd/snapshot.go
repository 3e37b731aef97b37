package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/alesut/pixel-agents/internal/monitor"
	"github.com/alesut/pixel-agents/internal/ws"
)

var snapshotTimeout time.Duration

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the current agent snapshot as JSON",
	Long: `Run one discovery pass over the project's sessions and print the
resulting snapshot in the same shape /api/agents serves.`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().DurationVar(&snapshotTimeout, "timeout", 30*time.Second, "give up after this long")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx, cancel := contextWithTimeout(cmd, snapshotTimeout)
	defer cancel()

	broadcaster := ws.NewBroadcaster(cfg.Broadcast.Buffer)
	defer broadcaster.Close()

	mon := monitor.New(cfg, broadcaster)
	go mon.Start(ctx)
	defer func() {
		cancel()
		<-mon.Done()
	}()

	// The loop serves requests only after its bootstrap pass.
	snap, err := mon.Snapshot(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

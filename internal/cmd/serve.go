package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/alesut/pixel-agents/internal/log"
	"github.com/alesut/pixel-agents/internal/monitor"
	"github.com/alesut/pixel-agents/internal/ws"
)

var (
	servePort  int
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor and serve its event stream",
	Long: `Start the poller and an HTTP server exposing:

  /ws           snapshot followed by live session events
  /api/agents   current snapshot
  /api/rescan   discover new sessions now (POST)
  /api/health   poller health and running Codex processes`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override server port")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "override auth token")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveToken != "" {
		cfg.Server.AuthToken = serveToken
	}

	if cfg.Server.LockFile != "" {
		lock := flock.New(cfg.Server.LockFile)
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("locking %s: %w", cfg.Server.LockFile, err)
		}
		if !locked {
			return fmt.Errorf("another pixel-agents server holds %s", cfg.Server.LockFile)
		}
		defer lock.Unlock()
	}

	ctx, stop := signal.NotifyContext(background(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broadcaster := ws.NewBroadcaster(cfg.Broadcast.Buffer)
	defer broadcaster.Close()

	mon := monitor.New(cfg, broadcaster)
	go mon.Start(ctx)

	server := ws.NewServer(mon, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)
	err := ws.Serve(ctx, cfg.Addr(), server.Handler())

	stop()
	<-mon.Done()
	log.Info().Msg("shut down")
	return err
}

package cmd

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alesut/pixel-agents/internal/log"
	"github.com/alesut/pixel-agents/internal/monitor"
	"github.com/alesut/pixel-agents/internal/tui"
	"github.com/alesut/pixel-agents/internal/ws"
)

var (
	watchURL   string
	watchToken string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live terminal dashboard of the project's agents",
	Long: `Without --url, run the monitor in-process and render its events.
With --url, follow a running "pixel-agents serve" over its /ws stream.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "WebSocket URL of a pixel-agents server (e.g. ws://127.0.0.1:8787/ws)")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "auth token for --url")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Log lines would tear the alternate screen.
	if cfg.Log.File == "" {
		log.SetOutput(io.Discard)
	}

	ctx, cancel := context.WithCancel(background(cmd))
	defer cancel()

	var feed tui.Feed
	if watchURL != "" {
		feed = tui.NewRemoteFeed(watchURL, watchToken)
	} else {
		broadcaster := ws.NewBroadcaster(cfg.Broadcast.Buffer)
		defer broadcaster.Close()

		mon := monitor.New(cfg, broadcaster)
		go mon.Start(ctx)
		defer func() {
			cancel()
			<-mon.Done()
		}()
		feed = tui.NewLocalFeed(mon)
	}
	defer feed.Close()

	p := tea.NewProgram(tui.New(feed), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

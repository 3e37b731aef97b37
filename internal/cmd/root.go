// Package cmd implements the pixel-agents command line.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alesut/pixel-agents/internal/config"
	"github.com/alesut/pixel-agents/internal/log"
)

var (
	configPath   string
	projectRoot  string
	sessionsRoot string
	logLevel     string

	// cfg is loaded by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pixel-agents",
	Short: "Watch Codex sessions working in a project",
	Long: `pixel-agents follows the Codex CLI's rollout transcripts for one project
and reports, per session, whether the agent is working and which tools it
has in flight. Observers receive a snapshot and then a live event stream.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (.yaml or .toml)")
	flags.StringVarP(&projectRoot, "project", "p", "", "project root to watch (default is the working directory)")
	flags.StringVar(&sessionsRoot, "sessions-root", "", "Codex sessions directory (default is $CODEX_HOME/sessions)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if projectRoot != "" {
		c.ProjectRoot = projectRoot
	}
	if sessionsRoot != "" {
		c.SessionsRoot = sessionsRoot
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}

	if err := c.Validate(); err != nil {
		return err
	}
	if err := log.Configure(c.Log); err != nil {
		return err
	}

	cfg = c
	return nil
}

// background returns cmd's context, which cobra leaves nil when a command
// is invoked directly rather than through Execute.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(background(cmd))
	}
	return context.WithTimeout(background(cmd), d)
}

package commands

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentkernel/config"
	"github.com/spf13/cobra"
)

var (
	reactWatch    string
	reactDuration time.Duration
)

var reactCmd = &cobra.Command{
	Use:   "react",
	Short: "React to file changes in a directory",
	Long: `Watch a directory tree and let the model decide how to react to every
created, changed or deleted file: record it as knowledge, ignore it or
write a file. Runs until interrupted or --duration elapsed.`,
	Args: cobra.NoArgs,
	RunE: runReact,
}

func init() {
	reactCmd.Flags().StringVarP(&reactWatch, "watch", "w", "", "Directory to watch (overrides reactive.watch_path)")
	reactCmd.Flags().DurationVar(&reactDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")

	rootCmd.AddCommand(reactCmd)
}

func runReact(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, func(cfg *config.Config) {
		if reactWatch != "" {
			cfg.Reactive.WatchPath = reactWatch
			cfg.Agent.WorkingPath = reactWatch
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := withTimeout(s.ctx, reactDuration)
	defer cancel()

	_, reactions, err := s.kernel.React(ctx)

	w := cmd.OutOrStdout()
	for _, r := range reactions {
		fmt.Fprintf(w, "%s %-7s %-6s %s\n", r.At.Format(time.RFC3339), r.Event.Type, r.Action.Kind, r.Event.PayloadString("path"))
	}

	return err
}

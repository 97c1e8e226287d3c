package commands

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentkernel/config"
	"github.com/spf13/cobra"
)

var (
	proactiveDir      string
	proactiveDuration time.Duration
)

var proactiveCmd = &cobra.Command{
	Use:   "proactive",
	Short: "Pursue long-running goals, seize opportunities and record predictions",
	Long: `Run the goal pursuit, opportunity scan and prediction loops against a
working directory. Seized opportunities are appended to TODO.md or
IMPROVEMENT_REPORT.md, confident predictions to PREDICTIONS.md.
Runs until interrupted or --duration elapsed.`,
	Args: cobra.NoArgs,
	RunE: runProactive,
}

func init() {
	proactiveCmd.Flags().StringVarP(&proactiveDir, "dir", "d", "", "Working directory (overrides agent.working_path)")
	proactiveCmd.Flags().DurationVar(&proactiveDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")

	rootCmd.AddCommand(proactiveCmd)
}

func runProactive(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, func(cfg *config.Config) {
		if proactiveDir != "" {
			cfg.Agent.WorkingPath = proactiveDir
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := withTimeout(s.ctx, proactiveDuration)
	defer cancel()

	sn, err := s.kernel.Proactive(ctx)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "status: %s\n", sn.Status)

	for _, g := range sn.Goals {
		fmt.Fprintf(w, "goal %s: %.0f%%\n", g.ID, g.Progress*100)
	}

	fmt.Fprintf(w, "tasks completed: %d\n", len(sn.Graph.Completed))

	return err
}

package commands

import (
	"fmt"

	"github.com/hupe1980/agentkernel/config"
	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/state"
	"github.com/spf13/cobra"
)

var (
	runGoal          string
	runWorkingPath   string
	runMaxIterations int
	runOutput        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Plan and execute a goal autonomously",
	Long: `Plan a goal into a task graph and execute it until every task
completed, a ceiling was reached or the process was interrupted.

Examples:
  # Offline demo in a scratch directory
  agentkernel run --goal "build a CLI" --dir /tmp/demo

  # Use the configured provider and print the final state as JSON
  agentkernel run -c agentkernel.yaml --goal "write a parser" -o json`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runGoal, "goal", "g", "", "Goal to pursue (overrides agent.goal)")
	runCmd.Flags().StringVarP(&runWorkingPath, "dir", "d", "", "Working directory for file tools (overrides agent.working_path)")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Iteration ceiling (overrides agent.max_iterations)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "text", "Output format: text or json")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := checkOutput(runOutput); err != nil {
		return err
	}

	s, err := newSession(cmd, func(cfg *config.Config) {
		if runGoal != "" {
			cfg.Agent.Goal = runGoal
		}

		if runWorkingPath != "" {
			cfg.Agent.WorkingPath = runWorkingPath
		}

		if runMaxIterations > 0 {
			cfg.Agent.MaxIterations = runMaxIterations
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	if s.cfg.Agent.Goal == "" {
		return fmt.Errorf("a goal is required: pass --goal or set agent.goal")
	}

	sn, runErr := s.kernel.Run(s.ctx, s.cfg.Agent.Goal)

	if err := printSnapshot(cmd, sn, runOutput); err != nil {
		return err
	}

	return runErr
}

func checkOutput(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown output format %q: valid formats are text, json", format)
	}

	return nil
}

func printSnapshot(cmd *cobra.Command, sn state.Snapshot, format string) error {
	w := cmd.OutOrStdout()

	if format == "json" {
		return writeJSON(w, sn)
	}

	fmt.Fprintf(w, "status: %s\n", sn.Status)
	fmt.Fprintf(w, "iterations: %d\n", sn.Meta.Iteration)
	fmt.Fprintf(w, "completed: %d, failed: %d, pending: %d\n",
		len(sn.Graph.Completed), len(sn.Graph.Failed), len(sn.Graph.Active))

	for _, t := range sn.Graph.Completed {
		fmt.Fprintf(w, "  [x] %s %s\n", t.ID, t.Description)
	}

	for _, t := range sn.Graph.Failed {
		fmt.Fprintf(w, "  [!] %s %s%s\n", t.ID, t.Description, lastError(t))
	}

	return nil
}

func lastError(t *core.Task) string {
	if len(t.History) == 0 || t.History[len(t.History)-1].Error == "" {
		return ""
	}

	return ": " + t.History[len(t.History)-1].Error
}

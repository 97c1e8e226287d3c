package commands

import (
	"fmt"

	"github.com/hupe1980/agentkernel/config"
	"github.com/spf13/cobra"
)

var (
	teamOutput      string
	teamConcurrency int
)

var teamCmd = &cobra.Command{
	Use:   "team [TASK...]",
	Short: "Send tasks through an analyzer and a reviewer",
	Long: `Each task is analyzed, reviewed and summarized by a coordinator in its
own conversation on the message bus. Tasks run concurrently. Without
arguments the tasks listed under team.tasks are used.

Examples:
  agentkernel team "review parser.go" "review lexer.go"
  agentkernel team -o json "review main.go"`,
	RunE: runTeam,
}

func init() {
	teamCmd.Flags().StringVarP(&teamOutput, "output", "o", "text", "Output format: text or json")
	teamCmd.Flags().IntVar(&teamConcurrency, "concurrency", 0, "Maximum tasks in flight (overrides team.concurrency)")

	rootCmd.AddCommand(teamCmd)
}

func runTeam(cmd *cobra.Command, args []string) error {
	if err := checkOutput(teamOutput); err != nil {
		return err
	}

	s, err := newSession(cmd, func(cfg *config.Config) {
		if teamConcurrency > 0 {
			cfg.Team.Concurrency = teamConcurrency
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	tasks := args
	if len(tasks) == 0 {
		tasks = s.cfg.Team.Tasks
	}

	if len(tasks) == 0 {
		return fmt.Errorf("no tasks: pass them as arguments or set team.tasks")
	}

	reports, err := s.kernel.Team(s.ctx, tasks)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	if teamOutput == "json" {
		return writeJSON(w, reports)
	}

	for _, r := range reports {
		fmt.Fprintf(w, "== %s (score %d)\n", r.Task, r.OverallScore)
		fmt.Fprintf(w, "analysis: %s\n", r.Analysis)
		fmt.Fprintf(w, "review:   %s\n", r.Review)
		fmt.Fprintf(w, "summary:  %s\n\n", r.Summary)
	}

	return nil
}

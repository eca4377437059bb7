package cmd

import (
	"fmt"

	"github.com/ortelius/pdvd-enricher/internal/services"
	"github.com/ortelius/pdvd-enricher/triage"
	"github.com/spf13/cobra"
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Apply, reset and report auto-triage decisions",
}

// engine opens the store and returns the triage engine.
func engine(cmd *cobra.Command) (*env, *triage.Engine, error) {
	e, err := setup(cmd.Context(), false)
	if err != nil {
		return nil, nil, err
	}
	s, err := e.wire(cmd.Context(), false, services.Options{})
	if err != nil {
		return nil, nil, err
	}
	return e, s.Triage, nil
}

var triageApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Evaluate the rules and store the decisions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, eng, err := engine(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync() //nolint:errcheck

		stats, err := eng.Apply(cmd.Context(), triageOptions(cmd))
		if perr := printYAML(cmd.OutOrStdout(), stats); perr != nil {
			return perr
		}
		return err
	},
}

var triageResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stored decisions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, eng, err := engine(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync() //nolint:errcheck

		n, err := eng.Reset(cmd.Context(), triageOptions(cmd))
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), map[string]int{"reset": n})
	},
}

var triageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Decision breakdown over active findings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, eng, err := engine(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync() //nolint:errcheck

		stats, err := eng.Statistics(cmd.Context())
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), stats)
	},
}

// triage validate needs no store.
var triageValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the rule list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		problems := triage.ValidateRules(triage.DefaultRules())
		for _, rule := range triage.DefaultRules() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-12s %3d%%\n", rule.Name, rule.Decision, rule.Confidence)
		}
		if len(problems) > 0 {
			for _, p := range problems {
				fmt.Fprintln(cmd.ErrOrStderr(), p)
			}
			return fmt.Errorf("%d rule problems", len(problems))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "rules OK")
		return nil
	},
}

func init() {
	addScopeFlags(triageApplyCmd)
	triageApplyCmd.Flags().Bool("dry-run", false, "evaluate without writing")
	addScopeFlags(triageResetCmd)

	triageCmd.AddCommand(triageApplyCmd, triageResetCmd, triageStatsCmd, triageValidateCmd)
	rootCmd.AddCommand(triageCmd)
}

package cmd

import (
	"github.com/ortelius/pdvd-enricher/internal/services"
	"github.com/spf13/cobra"
)

var updateEPSSCmd = &cobra.Command{
	Use:   "update-epss",
	Short: "Refresh EPSS exploit scores on findings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := scoreOptions(cmd)
		async, _ := cmd.Flags().GetBool("async")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		coverageOnly, _ := cmd.Flags().GetBool("coverage")

		ctx := cmd.Context()
		e, err := setup(ctx, false)
		if err != nil {
			return err
		}
		defer e.logger.Sync() //nolint:errcheck
		if batchSize > 0 {
			e.cfg.EPSS.BatchSize = batchSize
			if err := e.cfg.ValidateTuning(); err != nil {
				return err
			}
		}
		s, err := e.wire(ctx, false, services.Options{Async: async})
		if err != nil {
			return err
		}
		defer s.Close()

		if coverageOnly {
			coverage, err := s.Scores.Coverage(ctx)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), coverage)
		}

		stats, err := s.Scores.Update(ctx, opts)
		if perr := printYAML(cmd.OutOrStdout(), stats); perr != nil {
			return perr
		}
		return err
	},
}

func init() {
	addScopeFlags(updateEPSSCmd)
	updateEPSSCmd.Flags().Bool("trigger-triage", false, "re-triage findings whose score changed significantly")
	updateEPSSCmd.Flags().Bool("async", false, "publish re-triage requests to Kafka instead of triaging in process")
	updateEPSSCmd.Flags().Int("batch-size", 0, "identifiers per EPSS request (default from configuration)")
	updateEPSSCmd.Flags().Bool("coverage", false, "only report score coverage")
	rootCmd.AddCommand(updateEPSSCmd)
}

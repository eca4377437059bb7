package cmd

import (
	"github.com/ortelius/pdvd-enricher/collector"
	"github.com/ortelius/pdvd-enricher/internal/services"
	"github.com/spf13/cobra"
)

var syncReposCmd = &cobra.Command{
	Use:   "sync-repos",
	Short: "Collect repository signals and classify business criticality",
	RunE: func(cmd *cobra.Command, _ []string) error {
		repository, _ := cmd.Flags().GetString("repository")
		incremental, _ := cmd.Flags().GetBool("incremental")
		useREST, _ := cmd.Flags().GetBool("use-rest")
		force, _ := cmd.Flags().GetBool("force")
		dormantDays, _ := cmd.Flags().GetInt("archive-dormant")

		if repository != "" {
			if _, _, err := collector.ParseIdentity(repository); err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		e, err := setup(ctx, true)
		if err != nil {
			return err
		}
		defer e.logger.Sync() //nolint:errcheck
		s, err := e.wire(ctx, true, services.Options{UseREST: useREST, Force: force})
		if err != nil {
			return err
		}
		defer s.Close()

		result := struct {
			Repository     string           `yaml:"repository,omitempty"`
			ProductCreated *bool            `yaml:"product_created,omitempty"`
			Stats          *collector.Stats `yaml:"stats,omitempty"`
			Archived       *int             `yaml:"archived,omitempty"`
		}{}

		if repository != "" {
			created, err := s.Collector.SyncOne(ctx, repository)
			if err != nil {
				return err
			}
			result.Repository = repository
			result.ProductCreated = &created
		} else {
			stats, err := s.Collector.SyncAll(ctx, incremental)
			result.Stats = &stats
			if err != nil {
				_ = printYAML(cmd.OutOrStdout(), result)
				return err
			}
		}

		if dormantDays > 0 {
			archived, err := s.Collector.ArchiveDormant(ctx, dormantDays)
			if err != nil {
				return err
			}
			result.Archived = &archived
		}
		return printYAML(cmd.OutOrStdout(), result)
	},
}

var syncAlertsCmd = &cobra.Command{
	Use:   "sync-alerts",
	Short: "Mirror Dependabot, code scanning and secret scanning alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := alertOptions(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		e, err := setup(ctx, true)
		if err != nil {
			return err
		}
		defer e.logger.Sync() //nolint:errcheck
		s, err := e.wire(ctx, true, services.Options{})
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.Alerts.Run(ctx, opts)
		if perr := printYAML(cmd.OutOrStdout(), stats); perr != nil {
			return perr
		}
		return err
	},
}

func init() {
	syncReposCmd.Flags().String("repository", "", "sync a single repository (owner/name or URL)")
	syncReposCmd.Flags().Bool("incremental", false, "only repositories updated since the last sync")
	syncReposCmd.Flags().Bool("use-rest", false, "skip the GraphQL transport")
	syncReposCmd.Flags().Bool("force", false, "re-fetch repositories that have not changed")
	syncReposCmd.Flags().Int("archive-dormant", 0, "after syncing, archive repositories without commits for this many days (0 disables)")

	syncAlertsCmd.Flags().String("repository-id", "", "sync only this repository key")
	syncAlertsCmd.Flags().Bool("force", false, "ignore the sync interval")
	syncAlertsCmd.Flags().Bool("dry-run", false, "fetch and count without writing")
	syncAlertsCmd.Flags().Int("limit", 0, "sync at most this many repositories (0 means all)")
	syncAlertsCmd.Flags().Bool("project", false, "project synced alerts into findings")

	rootCmd.AddCommand(syncReposCmd, syncAlertsCmd)
}

package cmd

import (
	"fmt"

	"github.com/ortelius/pdvd-enricher/findings"
	"github.com/ortelius/pdvd-enricher/internal/services"
	"github.com/ortelius/pdvd-enricher/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var projectFindingsCmd = &cobra.Command{
	Use:   "project-findings",
	Short: "Project mirrored alerts into findings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		repoKey, _ := cmd.Flags().GetString("repository-id")

		ctx := cmd.Context()
		e, err := setup(ctx, false)
		if err != nil {
			return err
		}
		defer e.logger.Sync() //nolint:errcheck
		s, err := e.wire(ctx, false, services.Options{})
		if err != nil {
			return err
		}

		var repos []*model.Repository
		if repoKey != "" {
			repo, found, err := e.store.GetRepository(ctx, repoKey)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("repository %s not found", repoKey)
			}
			repos = append(repos, repo)
		} else if repos, err = e.store.ListRepositories(ctx); err != nil {
			return err
		}

		var total findings.Stats
		for _, repo := range repos {
			stats, err := s.Projector.ProjectRepository(ctx, repo)
			if err != nil {
				e.logger.Warn("Projection failed", zap.String("repository", repo.FullName), zap.Error(err))
				total.Errors++
				continue
			}
			total.Add(stats)
		}
		return printYAML(cmd.OutOrStdout(), total)
	},
}

func init() {
	projectFindingsCmd.Flags().String("repository-id", "", "project only this repository key")
	rootCmd.AddCommand(projectFindingsCmd)
}

package cmd

import (
	"fmt"

	"github.com/ortelius/pdvd-enricher/alerts"
	"github.com/ortelius/pdvd-enricher/epss"
	"github.com/ortelius/pdvd-enricher/triage"
	"github.com/ortelius/pdvd-enricher/util"
	"github.com/spf13/cobra"
)

func alertOptions(cmd *cobra.Command) (alerts.Options, error) {
	var opts alerts.Options
	opts.RepositoryKey, _ = cmd.Flags().GetString("repository-id")
	opts.Force, _ = cmd.Flags().GetBool("force")
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	opts.Project, _ = cmd.Flags().GetBool("project")
	if opts.Limit < 0 {
		return opts, fmt.Errorf("--limit must not be negative, got %d", opts.Limit)
	}
	return opts, nil
}

func scoreOptions(cmd *cobra.Command) epss.Options {
	var opts epss.Options
	ids, _ := cmd.Flags().GetString("finding-ids")
	opts.FindingKeys = util.SplitList(ids)
	opts.ProductKey, _ = cmd.Flags().GetString("product-id")
	opts.ActiveOnly, _ = cmd.Flags().GetBool("active-only")
	opts.TriggerTriage, _ = cmd.Flags().GetBool("trigger-triage")
	return opts
}

func triageOptions(cmd *cobra.Command) triage.Options {
	var opts triage.Options
	ids, _ := cmd.Flags().GetString("finding-ids")
	opts.FindingKeys = util.SplitList(ids)
	opts.ProductKey, _ = cmd.Flags().GetString("product-id")
	opts.ActiveOnly, _ = cmd.Flags().GetBool("active-only")
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	return opts
}

// addScopeFlags registers the finding selection flags shared by update-epss and triage.
func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("finding-ids", "", "comma separated finding keys")
	cmd.Flags().String("product-id", "", "restrict to the findings of one product")
	cmd.Flags().Bool("active-only", false, "skip inactive findings")
}

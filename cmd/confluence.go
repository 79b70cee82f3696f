package cmd

import (
	"fmt"
	"strings"

	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/confluence"
	"github.com/danielolaszy/archprompt/internal/pipeline"
	"github.com/spf13/cobra"
)

var confluenceCmd = &cobra.Command{
	Use:   "confluence",
	Short: "Inspect the Confluence pages of an app",
}

var confluenceHeadingsCmd = &cobra.Command{
	Use:   "headings",
	Short: "List the headings of the arc42 page and the sections they map to",
	Long: `List every heading of the arc42 page of an app together with the
canonical arc42 section it is mapped to. Headings without a section are
shown with '-'; add them to confluence.arc42.section_map to include them.

Example:
  archprompt confluence headings -a billing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _ := cmd.Flags().GetString("app")
		if strings.TrimSpace(app) == "" {
			return configError("--app is required")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		creds := config.LoadCredentials(cfg)
		if err := config.ValidateConfluenceCredentials(cfg, creds); err != nil {
			return pipeline.Fail(pipeline.StageConfig, err)
		}

		client := confluence.NewFromConfig(cfg, creds)
		page, err := client.FetchArc42(cmd.Context(), cfg.AppLabel(app), cfg.Confluence.Labels.Arc42)
		if err != nil {
			return pipeline.Fail(pipeline.StageFetch, fmt.Errorf("failed to fetch arc42 page: %w", err))
		}
		if page == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "no arc42 page labeled %q and %q\n", cfg.AppLabel(app), cfg.Confluence.Labels.Arc42)
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n", page.Title)
		for _, h := range pipeline.Headings(cfg, page) {
			key := h.Key
			if key == "" {
				key = "-"
			}
			indent := strings.Repeat("  ", max(h.Level-1, 0))
			fmt.Fprintf(out, "%s%s -> %s\n", indent, h.Title, key)
		}
		return nil
	},
}

func init() {
	confluenceHeadingsCmd.Flags().StringP("app", "a", "", "Application key/name")
	confluenceCmd.AddCommand(confluenceHeadingsCmd)
}

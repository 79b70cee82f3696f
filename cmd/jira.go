package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/jira"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/internal/payload"
	"github.com/danielolaszy/archprompt/internal/pipeline"
	"github.com/spf13/cobra"
)

// jiraCmd groups the Jira diagnostics.
var jiraCmd = &cobra.Command{
	Use:   "jira",
	Short: "Inspect the Jira project of the manifest",
}

var jiraReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List the tickets that are ready for prompt generation",
	Long: `List the tickets of the configured project whose status matches
jira.ready_status. These are the candidates of '--tickets *'.

Example:
  archprompt jira ready -c docs/archprompt.project.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, err := jiraFromFlags(cmd)
		if err != nil {
			return err
		}

		result, err := client.FetchIssues(cmd.Context(), jira.Query{
			ProjectKey:    cfg.Jira.ProjectKey,
			ReadyStatus:   cfg.Jira.ReadyStatus,
			ProjectMode:   cfg.Jira.ProjectMode,
			EpicLinkField: cfg.Jira.EpicLinkField,
			Fields:        cfg.Jira.Fields,
		})
		if err != nil {
			return pipeline.Fail(pipeline.StageFetch, fmt.Errorf("failed to fetch jira issues: %w", err))
		}

		ready := payload.SelectIssues(result.Issues, payload.Selection{Wildcard: true},
			payload.ScopeTicketOnly, cfg.Jira.ProjectKey, cfg.Jira.ReadyStatus)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tTYPE\tEPIC\tSUMMARY")
		count := 0
		for _, issue := range ready {
			if issue.IsEpic() {
				continue
			}
			epic := issue.EpicKey
			if epic == "" {
				epic = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", issue.Key, issue.IssueType, epic, issue.Summary)
			count++
		}
		if err := w.Flush(); err != nil {
			return err
		}

		logging.Info("listed ready tickets",
			"project", cfg.Jira.ProjectKey,
			"project_mode", result.ProjectMode,
			"count", count)
		return nil
	},
}

var jiraPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the Jira credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, err := jiraFromFlags(cmd)
		if err != nil {
			return err
		}

		name, err := client.Ping(cmd.Context())
		if err != nil {
			return pipeline.Fail(pipeline.StageFetch, fmt.Errorf("failed to reach jira: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "connected to %s as %s\n", cfg.Jira.BaseURL, name)
		return nil
	},
}

func init() {
	jiraCmd.AddCommand(jiraReadyCmd)
	jiraCmd.AddCommand(jiraPingCmd)
}

// loadConfig reads the manifest named by --project-config.
func loadConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	path, _ := cmd.Flags().GetString("project-config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageConfig, err)
	}
	return cfg, nil
}

func jiraFromFlags(cmd *cobra.Command) (*config.ProjectConfig, *jira.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	client, err := newJiraClient(cfg, config.LoadCredentials(cfg))
	if err != nil {
		return nil, nil, pipeline.Fail(pipeline.StageConfig, err)
	}
	return cfg, client, nil
}

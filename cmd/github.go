package cmd

import (
	"fmt"
	"strings"

	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/github"
	"github.com/danielolaszy/archprompt/internal/pipeline"
	"github.com/danielolaszy/archprompt/internal/workspace"
	"github.com/spf13/cobra"
)

var githubCmd = &cobra.Command{
	Use:   "github",
	Short: "Inspect the repository of the manifest",
}

var githubFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the repository files that go into the context of an app",
	Long: `List the files below the app directory as they appear in the context
file. With github.repository set the tree is read from GitHub, otherwise
from the local checkout at project.monorepo_root.

Example:
  archprompt github files -a billing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ws := workspace.New(cfg.Project.MonorepoRoot)
		root := ""
		if app, _ := cmd.Flags().GetString("app"); strings.TrimSpace(app) != "" {
			root = ws.AppDir(cfg, app)
		}

		var lister pipeline.RepoLister = ws
		if cfg.GitHub.Repository != "" {
			client, err := github.NewFromConfig(cfg, config.LoadCredentials(cfg))
			if err != nil {
				return pipeline.Fail(pipeline.StageConfig, err)
			}
			lister = client
		}

		repo, err := lister.ListFiles(cmd.Context(), root)
		if err != nil {
			return pipeline.Fail(pipeline.StageFetch, err)
		}

		out := cmd.OutOrStdout()
		for _, f := range repo.Files {
			fmt.Fprintln(out, f)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d files from %s", len(repo.Files), repo.Source)
		if repo.Ref != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "@%s", repo.Ref)
		}
		fmt.Fprintln(cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	githubFilesCmd.Flags().StringP("app", "a", "", "Application key/name; empty lists the whole repository")
	githubCmd.AddCommand(githubFilesCmd)
}

// Package cmd provides the command-line interface for archprompt.
package cmd

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"

	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultProjectConfig = "docs/archprompt.project.yaml"

var loadDotEnv = godotenv.Load

var rootCmd = &cobra.Command{
	Use:   "archprompt",
	Short: "Archprompt turns arc42 docs, ADRs and Jira tickets into AI coding prompts",
	Long: `Archprompt collects the architecture context of an application and renders
prompts for AI coding assistants.

For the given app it fetches the arc42 page and the ADR pages from Confluence,
the ready tickets from Jira and the file list of the repository, writes them to
a JSON context file and prints a plan prompt or one implement prompt per ticket.

Credentials are read from the environment (CONFLUENCE_EMAIL, CONFLUENCE_TOKEN,
JIRA_EMAIL, JIRA_TOKEN, GITHUB_TOKEN); a .env file in the working directory is
loaded first.

Example:
  archprompt -a billing
  archprompt -a billing --mode implement --tickets SMP-15,SMP-16 --scope epic`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runGenerate,
}

// Execute adds all child commands to the root command and runs it until it
// finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Add persistent flags that will be available to all commands
	rootCmd.PersistentFlags().StringP("project-config", "c", defaultProjectConfig, "Path to the project manifest")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging and print the parsed arc42 headings")

	addGenerateFlags(rootCmd)

	rootCmd.AddCommand(confFetchCmd)
	rootCmd.AddCommand(jiraCmd)
	rootCmd.AddCommand(confluenceCmd)
	rootCmd.AddCommand(githubCmd)
}

// setup loads .env and configures logging before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	if err := loadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("failed to load .env file", "error", err)
	}

	level := logging.LevelFromEnv()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = logging.LevelDebug
	}
	logging.SetupLogger(cmd.ErrOrStderr(), level)
	return nil
}

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Credentials holds secrets read from the environment. They never live in
// the manifest; the manifest only names the variables.
type Credentials struct {
	ConfluenceEmail string
	ConfluenceToken string
	JiraEmail       string
	JiraToken       string
	GitHubToken     string
}

// LoadCredentials binds the credential environment variables named by the
// manifest (or the defaults CONFLUENCE_EMAIL, CONFLUENCE_TOKEN, JIRA_EMAIL,
// JIRA_TOKEN, GITHUB_TOKEN).
func LoadCredentials(cfg *ProjectConfig) *Credentials {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("confluence.email", envName(cfg.Confluence.EmailEnv, "CONFLUENCE_EMAIL"))
	v.BindEnv("confluence.token", envName(cfg.Confluence.TokenEnv, "CONFLUENCE_TOKEN"))
	v.BindEnv("jira.email", envName(cfg.Jira.EmailEnv, "JIRA_EMAIL"))
	v.BindEnv("jira.token", envName(cfg.Jira.TokenEnv, "JIRA_TOKEN"))
	v.BindEnv("github.token", envName(cfg.GitHub.TokenEnv, "GITHUB_TOKEN"))

	return &Credentials{
		ConfluenceEmail: v.GetString("confluence.email"),
		ConfluenceToken: v.GetString("confluence.token"),
		JiraEmail:       v.GetString("jira.email"),
		JiraToken:       v.GetString("jira.token"),
		GitHubToken:     v.GetString("github.token"),
	}
}

// ValidateConfluenceCredentials ensures Confluence credentials are present.
func ValidateConfluenceCredentials(cfg *ProjectConfig, creds *Credentials) error {
	var missingVars []string

	if creds.ConfluenceEmail == "" {
		missingVars = append(missingVars, envName(cfg.Confluence.EmailEnv, "CONFLUENCE_EMAIL"))
	}
	if creds.ConfluenceToken == "" {
		missingVars = append(missingVars, envName(cfg.Confluence.TokenEnv, "CONFLUENCE_TOKEN"))
	}

	if len(missingVars) > 0 {
		return configErrorf("missing required environment variables: %v", missingVars)
	}
	return nil
}

// ValidateJiraCredentials ensures Jira credentials are present.
func ValidateJiraCredentials(cfg *ProjectConfig, creds *Credentials) error {
	var missingVars []string

	if creds.JiraEmail == "" {
		missingVars = append(missingVars, envName(cfg.Jira.EmailEnv, "JIRA_EMAIL"))
	}
	if creds.JiraToken == "" {
		missingVars = append(missingVars, envName(cfg.Jira.TokenEnv, "JIRA_TOKEN"))
	}

	if len(missingVars) > 0 {
		return configErrorf("missing required environment variables: %v", missingVars)
	}
	return nil
}

func envName(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return configured
}

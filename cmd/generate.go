package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/danielolaszy/archprompt/internal/cache"
	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/confluence"
	"github.com/danielolaszy/archprompt/internal/github"
	"github.com/danielolaszy/archprompt/internal/jira"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/internal/normalize"
	"github.com/danielolaszy/archprompt/internal/payload"
	"github.com/danielolaszy/archprompt/internal/pipeline"
	"github.com/danielolaszy/archprompt/internal/prompt"
	"github.com/danielolaszy/archprompt/internal/workspace"
	"github.com/spf13/cobra"
)

const defaultOutDir = "archprompt/context"

// confFetchCmd runs the same pipeline as the root command.
var confFetchCmd = &cobra.Command{
	Use:   "conf-fetch",
	Short: "Fetch the app context and generate prompts",
	Long: `Fetch the arc42 page, the ADRs, the ready Jira tickets and the repository
files of an app, write the context file and print the generated prompts.

In plan mode a single prompt is printed. In implement mode one prompt is
printed per selected ticket; --tickets takes a comma separated list of keys
or '*' for every ready ticket.

Example:
  archprompt conf-fetch -c docs/archprompt.project.yaml -a billing --mode implement --tickets '*'`,
	RunE: runGenerate,
}

func init() {
	addGenerateFlags(confFetchCmd)
}

// addGenerateFlags registers the pipeline flags on cmd.
func addGenerateFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("app", "a", "", "Application key/name")
	flags.String("out", "", "Context file path (default "+defaultOutDir+"/<app>.json)")
	flags.String("mode", string(prompt.ModePlan), "Prompt mode: plan or implement")
	flags.String("tickets", "", "Comma separated ticket keys, e.g. 'SMP-1,SMP-2', or '*' for every ready ticket except epics")
	flags.String("stack", "", "Override the stack profile (e.g. django, java-selenium, generic)")
	flags.String("html-mode", string(normalize.ModeMarkdown), "Rendering of Confluence bodies: markdown, text or raw")
	flags.String("scope", string(payload.ScopeTicketOnly), "Change scope: ticket-only, epic or project")
	flags.String("allow", "", "Extra allowed paths (comma separated)")
	flags.String("forbid", "", "Forbidden paths (comma separated)")
	flags.Bool("base-setup", false, "Allow a minimal project bootstrap if missing")
	flags.Bool("no-base-setup", false, "Disallow project bootstrap changes")
	flags.Bool("include-jira", true, "Include Jira ticket candidates")
	flags.Bool("no-include-jira", false, "Skip Jira enrichment")
	flags.Bool("print-prompt", true, "Print the generated prompts")
	flags.Bool("no-print-prompt", false, "Do not print the generated prompts")
	flags.String("prompt-dir", "", "Directory with plan.yaml/implement.yaml overrides")
	flags.Bool("no-cache", false, "Bypass the fetch cache")
	flags.Bool("purge-cache", false, "Empty the fetch cache before fetching")
}

// generateFlags are the parsed values of addGenerateFlags.
type generateFlags struct {
	configPath  string
	out         string
	printPrompt bool
	cache       cacheFlags
	opts        pipeline.Options
}

// cacheFlags are --no-cache and --purge-cache.
type cacheFlags struct {
	bypass bool
	purge  bool
}

// toggle resolves a --name/--no-name pair. The negative flag wins.
func toggle(cmd *cobra.Command, name string) bool {
	if off, _ := cmd.Flags().GetBool("no-" + name); off {
		return false
	}
	on, _ := cmd.Flags().GetBool(name)
	return on
}

func configError(format string, args ...any) error {
	return pipeline.Fail(pipeline.StageConfig, fmt.Errorf("%w: %s", config.ErrConfig, fmt.Sprintf(format, args...)))
}

func parseGenerateFlags(cmd *cobra.Command) (*generateFlags, error) {
	flags := cmd.Flags()
	get := func(name string) string {
		v, _ := flags.GetString(name)
		return v
	}

	app := strings.TrimSpace(get("app"))
	if app == "" {
		return nil, configError("--app is required")
	}

	mode, err := prompt.ParseMode(get("mode"))
	if err != nil {
		return nil, configError("%v", err)
	}
	htmlMode, err := normalize.ParseMode(get("html-mode"))
	if err != nil {
		return nil, configError("%v", err)
	}
	scope, err := payload.ParseScope(get("scope"))
	if err != nil {
		return nil, configError("%v", err)
	}

	tickets := payload.ParseTickets(get("tickets"))
	if err := tickets.Validate(); err != nil {
		return nil, configError("%v", err)
	}

	out := get("out")
	if out == "" {
		out = filepath.Join(defaultOutDir, app+".json")
	}
	debug, _ := flags.GetBool("debug")
	noCache, _ := flags.GetBool("no-cache")
	purgeCache, _ := flags.GetBool("purge-cache")

	return &generateFlags{
		configPath:  get("project-config"),
		out:         out,
		printPrompt: toggle(cmd, "print-prompt"),
		cache:       cacheFlags{bypass: noCache, purge: purgeCache},
		opts: pipeline.Options{
			App:         app,
			Mode:        mode,
			Tickets:     tickets,
			Stack:       strings.TrimSpace(get("stack")),
			HTMLMode:    htmlMode,
			Scope:       scope,
			Allow:       prompt.ParseAllowList(get("allow")),
			Forbid:      prompt.ParseAllowList(get("forbid")),
			BaseSetup:   toggle(cmd, "base-setup"),
			Debug:       debug,
			IncludeJira: toggle(cmd, "include-jira"),
			PromptDir:   get("prompt-dir"),
		},
	}, nil
}

// runGenerate fetches the context of an app, writes the context file and
// prints the prompts.
func runGenerate(cmd *cobra.Command, args []string) error {
	gf, err := parseGenerateFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return pipeline.Fail(pipeline.StageConfig, err)
	}

	logging.Info("starting context fetch",
		"app", gf.opts.App,
		"mode", gf.opts.Mode,
		"tickets", gf.opts.Tickets.String(),
		"scope", gf.opts.Scope)

	ws := workspace.New(cfg.Project.MonorepoRoot)
	gf.opts.AppDir = ws.AppDir(cfg, gf.opts.App)

	fetchers, cleanup, err := newFetchers(cfg, ws, gf.opts.IncludeJira, gf.cache)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := pipeline.Run(cmd.Context(), cfg, gf.opts, fetchers)
	if err != nil {
		return err
	}

	if gf.opts.Debug {
		printHeadings(cmd.ErrOrStderr(), res)
	}

	if err := pipeline.Write(res, gf.out); err != nil {
		return err
	}

	if gf.printPrompt {
		printPrompts(cmd.OutOrStdout(), res.Prompts)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s\n", res.Summary, gf.out)
	return nil
}

// newFetchers creates the Confluence, Jira and repository clients of a run,
// wrapped by the fetch cache when one is configured. The returned cleanup
// function closes the cache.
func newFetchers(cfg *config.ProjectConfig, ws *workspace.Workspace, includeJira bool, cf cacheFlags) (pipeline.Fetchers, func(), error) {
	cleanup := func() {}
	creds := config.LoadCredentials(cfg)

	if err := config.ValidateConfluenceCredentials(cfg, creds); err != nil {
		return pipeline.Fetchers{}, cleanup, pipeline.Fail(pipeline.StageConfig, err)
	}
	var pages pipeline.PageFetcher = confluence.NewFromConfig(cfg, creds)

	var issues pipeline.IssueFetcher
	if includeJira {
		client, err := newJiraClient(cfg, creds)
		switch {
		case err != nil && cfg.Jira.Optional:
			logging.Warn("jira is not configured, continuing without candidates", "error", err)
		case err != nil:
			return pipeline.Fetchers{}, cleanup, pipeline.Fail(pipeline.StageConfig, err)
		default:
			issues = client
		}
	}

	var repo pipeline.RepoLister = ws
	if cfg.GitHub.Repository != "" {
		client, err := github.NewFromConfig(cfg, creds)
		if err != nil {
			return pipeline.Fetchers{}, cleanup, pipeline.Fail(pipeline.StageConfig, err)
		}
		repo = client
	}

	if cfg.Cache.Path != "" && (!cf.bypass || cf.purge) {
		store, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL)
		if err != nil {
			logging.Warn("fetch cache unavailable, continuing without it", "path", cfg.Cache.Path, "error", err)
			return pipeline.Fetchers{Pages: pages, Issues: issues, Repo: repo}, cleanup, nil
		}
		if cf.purge {
			if err := store.Purge(); err != nil {
				logging.Warn("failed to purge fetch cache", "path", cfg.Cache.Path, "error", err)
			} else {
				logging.Info("purged fetch cache", "path", cfg.Cache.Path)
			}
		}
		if cf.bypass {
			store.Close()
		} else {
			cleanup = func() { store.Close() }
			pages = cache.NewPages(pages, store, cfg.Confluence.BaseURL+"|"+cfg.Confluence.Space)
			if issues != nil {
				issues = cache.NewIssues(issues, store, cfg.Jira.BaseURL)
			}
		}
	}

	return pipeline.Fetchers{Pages: pages, Issues: issues, Repo: repo}, cleanup, nil
}

func newJiraClient(cfg *config.ProjectConfig, creds *config.Credentials) (*jira.Client, error) {
	if err := config.ValidateJiraConfig(cfg); err != nil {
		return nil, err
	}
	if err := config.ValidateJiraCredentials(cfg, creds); err != nil {
		return nil, err
	}
	client, err := jira.NewFromConfig(cfg, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jira client: %w", err)
	}
	return client, nil
}

func printPrompts(w io.Writer, prompts []prompt.Prompt) {
	for _, p := range prompts {
		if p.Mode == prompt.ModePlan {
			fmt.Fprintf(w, "\n=== GENERATED PLAN PROMPT ===\n\n%s\n\n=== END PLAN PROMPT ===\n\n", p.Text)
			continue
		}
		fmt.Fprintf(w, "\n=== GENERATED IMPLEMENT PROMPT: %s ===\n\n%s\n\n=== END PROMPT: %s ===\n\n", p.Key, p.Text, p.Key)
	}
}

func printHeadings(w io.Writer, res *pipeline.Result) {
	headings := res.Payload.Raw.Headings
	fmt.Fprintf(w, "Found %d headings:\n", len(headings))
	for _, h := range headings {
		key := h.Key
		if key == "" {
			key = "-"
		}
		fmt.Fprintf(w, "  - %s %s (%s)\n", strings.Repeat("#", h.Level), h.Title, key)
	}
}

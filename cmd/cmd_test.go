package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielolaszy/archprompt/internal/cache"
	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/confluence"
	"github.com/danielolaszy/archprompt/internal/github"
	"github.com/danielolaszy/archprompt/internal/normalize"
	"github.com/danielolaszy/archprompt/internal/payload"
	"github.com/danielolaszy/archprompt/internal/pipeline"
	"github.com/danielolaszy/archprompt/internal/prompt"
	"github.com/danielolaszy/archprompt/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGenerateCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	c.Flags().String("project-config", defaultProjectConfig, "")
	c.Flags().Bool("debug", false, "")
	addGenerateFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestToggle(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		flag     string
		expected bool
	}{
		{"Default on", nil, "include-jira", true},
		{"Default off", nil, "base-setup", false},
		{"Positive flag", []string{"--base-setup"}, "base-setup", true},
		{"Negative flag", []string{"--no-include-jira"}, "include-jira", false},
		{"Negative flag wins", []string{"--print-prompt", "--no-print-prompt"}, "print-prompt", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, toggle(newGenerateCmd(t, tc.args...), tc.flag))
		})
	}
}

func TestParseGenerateFlags(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		gf, err := parseGenerateFlags(newGenerateCmd(t, "-a", "billing"))
		require.NoError(t, err)

		assert.Equal(t, defaultProjectConfig, gf.configPath)
		assert.Equal(t, filepath.Join("archprompt", "context", "billing.json"), gf.out)
		assert.True(t, gf.printPrompt)
		assert.Equal(t, cacheFlags{}, gf.cache)
		assert.Equal(t, "billing", gf.opts.App)
		assert.Equal(t, prompt.ModePlan, gf.opts.Mode)
		assert.Equal(t, normalize.ModeMarkdown, gf.opts.HTMLMode)
		assert.Equal(t, payload.ScopeTicketOnly, gf.opts.Scope)
		assert.True(t, gf.opts.Tickets.Wildcard)
		assert.True(t, gf.opts.IncludeJira)
		assert.False(t, gf.opts.BaseSetup)
	})

	t.Run("Implement with tickets", func(t *testing.T) {
		gf, err := parseGenerateFlags(newGenerateCmd(t,
			"-a", "billing",
			"--mode", "implement",
			"--tickets", "smp-1, SMP-2",
			"--scope", "epic",
			"--html-mode", "text",
			"--allow", "docs/, scripts/",
			"--forbid", "infra/",
			"--stack", "django",
			"--out", "ctx.json",
			"--no-cache",
			"--purge-cache",
		))
		require.NoError(t, err)

		assert.Equal(t, "ctx.json", gf.out)
		assert.Equal(t, cacheFlags{bypass: true, purge: true}, gf.cache)
		assert.Equal(t, prompt.ModeImplement, gf.opts.Mode)
		assert.Equal(t, []string{"SMP-1", "SMP-2"}, gf.opts.Tickets.Keys)
		assert.Equal(t, payload.ScopeEpic, gf.opts.Scope)
		assert.Equal(t, normalize.ModeText, gf.opts.HTMLMode)
		assert.Equal(t, []string{"docs/", "scripts/"}, gf.opts.Allow)
		assert.Equal(t, []string{"infra/"}, gf.opts.Forbid)
		assert.Equal(t, "django", gf.opts.Stack)
	})

	errorCases := []struct {
		name string
		args []string
	}{
		{"Missing app", nil},
		{"Invalid mode", []string{"-a", "billing", "--mode", "review"}},
		{"Invalid html mode", []string{"-a", "billing", "--html-mode", "pdf"}},
		{"Invalid scope", []string{"-a", "billing", "--scope", "repo"}},
		{"Malformed ticket key", []string{"-a", "billing", "--tickets", "SMP-1) OR project = HR"}},
		{"Quoted ticket key", []string{"-a", "billing", "--tickets", `"SMP-1"`}},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseGenerateFlags(newGenerateCmd(t, tc.args...))
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrConfig))
			assert.Equal(t, 2, pipeline.ExitCode(err))
		})
	}
}

func TestTicketsHelpMentionsEpics(t *testing.T) {
	flag := newGenerateCmd(t).Flags().Lookup("tickets")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Usage, "every ready ticket except epics")
}

func TestPrintPrompts(t *testing.T) {
	var buf bytes.Buffer
	printPrompts(&buf, []prompt.Prompt{
		{Mode: prompt.ModePlan, Text: "plan text"},
		{Mode: prompt.ModeImplement, Key: "SMP-15", Text: "impl text"},
	})

	out := buf.String()
	assert.Contains(t, out, "=== GENERATED PLAN PROMPT ===\n\nplan text\n\n=== END PLAN PROMPT ===")
	assert.Contains(t, out, "=== GENERATED IMPLEMENT PROMPT: SMP-15 ===\n\nimpl text\n\n=== END PROMPT: SMP-15 ===")
}

const manifest = `
project:
  name: Shop
  monorepo_root: "."
confluence:
  base_url: "${TEST_CONFLUENCE_URL}"
  space: ENG
  labels:
    arc42: arc42
    adr: adr
    app_prefix: "app:"
`

func confluenceServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "nope", status)
			return
		}
		result := map[string]any{
			"id":    "2",
			"title": "ADR-1 Use PostgreSQL",
			"body":  map[string]any{"storage": map[string]any{"value": "<p>Use PostgreSQL.</p>"}},
		}
		if strings.Contains(r.URL.Query().Get("cql"), `label = "arc42"`) {
			result = map[string]any{
				"id":    "1",
				"title": "Billing arc42",
				"body": map[string]any{"storage": map[string]any{
					"value": "<h2>Goals</h2><p>Improve throughput.</p><h2>Constraints</h2><p>Must use existing DB.</p>",
				}},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"results": []any{result}}))
	}))
}

func setupProject(t *testing.T, serverURL string) string {
	t.Helper()
	t.Setenv("TEST_CONFLUENCE_URL", serverURL)
	t.Setenv("CONFLUENCE_EMAIL", "me@example.com")
	t.Setenv("CONFLUENCE_TOKEN", "secret")

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "apps", "billing"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "apps", "billing", "main.py"), []byte("print()\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archprompt.project.yaml"), []byte(manifest), 0o644))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestConfFetch(t *testing.T) {
	server := confluenceServer(t, http.StatusOK)
	defer server.Close()
	dir := setupProject(t, server.URL)
	out := filepath.Join(dir, "context", "billing.json")

	stdout, err := execute(t, "conf-fetch",
		"-c", filepath.Join(dir, "archprompt.project.yaml"),
		"-a", "billing",
		"--no-include-jira",
		"--out", out)
	require.NoError(t, err)

	assert.Contains(t, stdout, "=== GENERATED PLAN PROMPT ===")
	assert.Contains(t, stdout, "=== END PLAN PROMPT ===")

	p, err := payload.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "billing", p.Meta.App)
	goals, ok := p.Arc42.Get("goals")
	require.True(t, ok)
	assert.Equal(t, "Improve throughput.", goals)
	constraints, ok := p.Arc42.Get("constraints")
	require.True(t, ok)
	assert.Equal(t, "Must use existing DB.", constraints)
	require.Len(t, p.ADRs, 1)
	assert.Equal(t, "ADR-1 Use PostgreSQL", p.ADRs[0].Title)
	assert.Equal(t, []string{"apps/billing/main.py"}, p.Repository.Files)
}

func TestConfFetchErrors(t *testing.T) {
	t.Run("Confluence failure", func(t *testing.T) {
		server := confluenceServer(t, http.StatusUnauthorized)
		defer server.Close()
		dir := setupProject(t, server.URL)

		_, err := execute(t, "conf-fetch",
			"-c", filepath.Join(dir, "archprompt.project.yaml"),
			"-a", "billing",
			"--no-include-jira",
			"--out", filepath.Join(dir, "out.json"))
		require.Error(t, err)
		assert.Equal(t, 3, pipeline.ExitCode(err))
		assert.NoFileExists(t, filepath.Join(dir, "out.json"))
	})

	t.Run("Missing manifest", func(t *testing.T) {
		_, err := execute(t, "conf-fetch",
			"-c", filepath.Join(t.TempDir(), "missing.yaml"),
			"-a", "billing")
		require.Error(t, err)
		assert.Equal(t, 2, pipeline.ExitCode(err))
	})

	t.Run("Missing credentials", func(t *testing.T) {
		server := confluenceServer(t, http.StatusOK)
		defer server.Close()
		dir := setupProject(t, server.URL)
		t.Setenv("CONFLUENCE_TOKEN", "")

		_, err := execute(t, "conf-fetch",
			"-c", filepath.Join(dir, "archprompt.project.yaml"),
			"-a", "billing",
			"--no-include-jira")
		require.Error(t, err)
		assert.Equal(t, 2, pipeline.ExitCode(err))
		assert.Contains(t, err.Error(), "CONFLUENCE_TOKEN")
	})
}

func TestGithubFilesLocal(t *testing.T) {
	dir := setupProject(t, "https://wiki.example.com")

	stdout, err := execute(t, "github", "files",
		"-c", filepath.Join(dir, "archprompt.project.yaml"),
		"-a", "billing")
	require.NoError(t, err)
	assert.Equal(t, "apps/billing/main.py\n", stdout)
}

func fetcherConfig(t *testing.T) *config.ProjectConfig {
	t.Helper()
	t.Setenv("CONFLUENCE_EMAIL", "me@example.com")
	t.Setenv("CONFLUENCE_TOKEN", "secret")
	t.Setenv("JIRA_EMAIL", "")
	t.Setenv("JIRA_TOKEN", "")

	cfg := &config.ProjectConfig{}
	cfg.Confluence.BaseURL = "https://wiki.example.com"
	cfg.Confluence.Space = "ENG"
	cfg.Jira.BaseURL = "https://jira.example.com"
	cfg.Jira.ProjectKey = "SMP"
	cfg.Jira.PageSize = 100
	return cfg
}

func TestNewFetchers(t *testing.T) {
	ws := workspace.New(t.TempDir())

	t.Run("Plain clients", func(t *testing.T) {
		f, cleanup, err := newFetchers(fetcherConfig(t), ws, false, cacheFlags{})
		require.NoError(t, err)
		defer cleanup()

		assert.IsType(t, &confluence.Client{}, f.Pages)
		assert.Nil(t, f.Issues)
		assert.Same(t, ws, f.Repo)
	})

	t.Run("Cache and github", func(t *testing.T) {
		cfg := fetcherConfig(t)
		t.Setenv("JIRA_EMAIL", "me@example.com")
		t.Setenv("JIRA_TOKEN", "secret")
		cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
		cfg.Cache.TTL = time.Hour
		cfg.GitHub.Repository = "acme/shop"

		f, cleanup, err := newFetchers(cfg, ws, true, cacheFlags{})
		require.NoError(t, err)
		defer cleanup()

		assert.IsType(t, &cache.Pages{}, f.Pages)
		assert.IsType(t, &cache.Issues{}, f.Issues)
		assert.IsType(t, &github.Client{}, f.Repo)
	})

	t.Run("No cache flag", func(t *testing.T) {
		cfg := fetcherConfig(t)
		cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")

		f, cleanup, err := newFetchers(cfg, ws, false, cacheFlags{bypass: true})
		require.NoError(t, err)
		defer cleanup()

		assert.IsType(t, &confluence.Client{}, f.Pages)
		assert.NoFileExists(t, cfg.Cache.Path)
	})

	t.Run("Purge cache", func(t *testing.T) {
		cfg := fetcherConfig(t)
		cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
		cfg.Cache.TTL = time.Hour

		store, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL)
		require.NoError(t, err)
		require.NoError(t, store.Put("pages", "old", "stale"))
		require.NoError(t, store.Close())

		f, cleanup, err := newFetchers(cfg, ws, false, cacheFlags{bypass: true, purge: true})
		require.NoError(t, err)
		cleanup()
		assert.IsType(t, &confluence.Client{}, f.Pages)

		store, err = cache.Open(cfg.Cache.Path, cfg.Cache.TTL)
		require.NoError(t, err)
		defer store.Close()
		var v string
		found, err := store.Get("pages", "old", &v)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Jira credentials required", func(t *testing.T) {
		_, _, err := newFetchers(fetcherConfig(t), ws, true, cacheFlags{})
		require.Error(t, err)
		assert.Equal(t, 2, pipeline.ExitCode(err))
		assert.Contains(t, err.Error(), "JIRA_EMAIL")
	})

	t.Run("Optional jira is skipped", func(t *testing.T) {
		cfg := fetcherConfig(t)
		cfg.Jira.Optional = true

		f, cleanup, err := newFetchers(cfg, ws, true, cacheFlags{})
		require.NoError(t, err)
		defer cleanup()
		assert.Nil(t, f.Issues)
	})
}

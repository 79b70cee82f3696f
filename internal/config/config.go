// Package config provides centralized configuration management for the application.
//
// The project manifest is a YAML file read through viper. Values may reference
// environment variables as ${VAR} or ${VAR:default}; these are interpolated
// in the decoded values, after parsing. Once loaded, a ProjectConfig is treated as read-only and is
// passed explicitly to every stage that needs it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielolaszy/archprompt/internal/arc42"
	"github.com/danielolaszy/archprompt/pkg/models"
	"github.com/spf13/viper"
)

// ErrConfig is the sentinel wrapped by every configuration error.
var ErrConfig = errors.New("configuration error")

// DefaultReadyStatus is the Jira status marking tickets eligible for generation.
const DefaultReadyStatus = "READY FOR GENERATE"

// ProjectConfig holds the parsed project manifest.
type ProjectConfig struct {
	// Path is the absolute path of the manifest file.
	Path string `mapstructure:"-"`

	Project       ProjectSection       `mapstructure:"project"`
	Confluence    ConfluenceConfig     `mapstructure:"confluence"`
	Jira          JiraConfig           `mapstructure:"jira"`
	GitHub        GitHubConfig         `mapstructure:"github"`
	TechStack     map[string]any       `mapstructure:"tech_stack"`
	Apps          map[string]AppConfig `mapstructure:"apps"`
	ContextBudget ContextBudget        `mapstructure:"context_budget"`
	Cache         CacheConfig          `mapstructure:"cache"`
	Prompts       PromptsConfig        `mapstructure:"prompts"`
}

// ProjectSection holds project-wide settings.
type ProjectSection struct {
	Name         string `mapstructure:"name"`
	MonorepoRoot string `mapstructure:"monorepo_root"`
}

// ConfluenceConfig holds Confluence specific configuration.
type ConfluenceConfig struct {
	BaseURL    string           `mapstructure:"base_url"`
	Space      string           `mapstructure:"space"`
	EmailEnv   string           `mapstructure:"email_env"`
	TokenEnv   string           `mapstructure:"token_env"`
	BodyFormat string           `mapstructure:"body_format"`
	Timeout    time.Duration    `mapstructure:"timeout"`
	Labels     ConfluenceLabels `mapstructure:"labels"`
	Arc42      Arc42Config      `mapstructure:"arc42"`
	ADR        ADRConfig        `mapstructure:"adr"`
}

// ConfluenceLabels are the labels used to find pages for an app.
type ConfluenceLabels struct {
	Arc42     string `mapstructure:"arc42"`
	ADR       string `mapstructure:"adr"`
	AppPrefix string `mapstructure:"app_prefix"`
}

// Arc42Config controls arc42 section extraction.
type Arc42Config struct {
	SectionMap         map[string][]string `mapstructure:"section_map"`
	HeadingLevels      []int               `mapstructure:"heading_levels"`
	MaxCharsPerSection int                 `mapstructure:"max_chars_per_section"`
	Duplicates         string              `mapstructure:"duplicates"`
}

// ADRConfig limits how many ADR pages are included and how long they may be.
type ADRConfig struct {
	MaxItems int `mapstructure:"max_items"`
	MaxChars int `mapstructure:"max_chars"`
}

// JiraConfig holds JIRA specific configuration.
type JiraConfig struct {
	BaseURL       string            `mapstructure:"base_url"`
	ProjectKey    string            `mapstructure:"project_key"`
	ReadyStatus   string            `mapstructure:"ready_status"`
	ProjectMode   string            `mapstructure:"project_mode"`
	EpicLinkField string            `mapstructure:"epic_link_field"`
	PageSize      int               `mapstructure:"page_size"`
	EmailEnv      string            `mapstructure:"email_env"`
	TokenEnv      string            `mapstructure:"token_env"`
	Fields        map[string]string `mapstructure:"fields"`
	Optional      bool              `mapstructure:"optional"`
}

// GitHubConfig holds GitHub specific configuration. Repository is empty
// when repository listing should fall back to the local checkout.
type GitHubConfig struct {
	Repository string `mapstructure:"repository"`
	Ref        string `mapstructure:"ref"`
	Domain     string `mapstructure:"domain"`
	TokenEnv   string `mapstructure:"token_env"`
}

// AppConfig holds per-app overrides.
type AppConfig struct {
	Path      string         `mapstructure:"path"`
	TechStack map[string]any `mapstructure:"tech_stack"`
}

// ContextBudget caps the size of the prompt blocks, in characters.
type ContextBudget struct {
	MaxCharsTotal      int `mapstructure:"max_chars_total"`
	MaxCharsConfluence int `mapstructure:"max_chars_confluence"`
	MaxCharsRepo       int `mapstructure:"max_chars_repo"`
	MaxCharsJira       int `mapstructure:"max_chars_jira"`
	MaxCharsEpic       int `mapstructure:"max_chars_epic"`
}

// CacheConfig configures the optional on-disk fetch cache.
type CacheConfig struct {
	Path string        `mapstructure:"path"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// PromptsConfig points at a directory with prompt definition overrides.
type PromptsConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("project.name", "Archprompt Project")
	v.SetDefault("project.monorepo_root", configDir)

	v.SetDefault("confluence.email_env", "CONFLUENCE_EMAIL")
	v.SetDefault("confluence.token_env", "CONFLUENCE_TOKEN")
	v.SetDefault("confluence.body_format", models.BodyFormatStorage)
	v.SetDefault("confluence.timeout", 20*time.Second)
	v.SetDefault("confluence.arc42.heading_levels", []int{2, 3})
	v.SetDefault("confluence.arc42.max_chars_per_section", 10_000)
	v.SetDefault("confluence.arc42.duplicates", string(arc42.LastWins))
	v.SetDefault("confluence.adr.max_items", 10)
	v.SetDefault("confluence.adr.max_chars", 2_000)

	v.SetDefault("jira.ready_status", DefaultReadyStatus)
	v.SetDefault("jira.project_mode", "auto")
	v.SetDefault("jira.page_size", 100)
	v.SetDefault("jira.email_env", "JIRA_EMAIL")
	v.SetDefault("jira.token_env", "JIRA_TOKEN")

	v.SetDefault("github.domain", "github.com")
	v.SetDefault("github.token_env", "GITHUB_TOKEN")

	v.SetDefault("context_budget.max_chars_total", 24_000)
	v.SetDefault("context_budget.max_chars_confluence", 10_000)
	v.SetDefault("context_budget.max_chars_repo", 9_000)
	v.SetDefault("context_budget.max_chars_jira", 3_000)
	v.SetDefault("context_budget.max_chars_epic", 2_000)

	v.SetDefault("cache.ttl", time.Hour)
}

// Load reads the manifest at path, interpolates environment variables,
// applies defaults, resolves relative paths and validates required keys.
// Every returned error wraps ErrConfig.
func Load(path string) (*ProjectConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, configErrorf("invalid config path %s: %v", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, configErrorf("config file not found: %s", absPath)
		}
		return nil, configErrorf("failed to read config file %s: %v", absPath, err)
	}

	configDir := filepath.Dir(absPath)

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, configDir)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, configErrorf("malformed YAML in %s: %v", absPath, err)
	}

	cfg := &ProjectConfig{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, configErrorf("failed to decode %s: %v", absPath, err)
	}
	cfg.Path = absPath

	// A configured section map replaces the default vocabulary entirely.
	if len(cfg.Confluence.Arc42.SectionMap) == 0 {
		cfg.Confluence.Arc42.SectionMap = arc42.DefaultSectionMap()
	}

	cfg.resolvePaths(configDir)

	if err := validateRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolvePaths makes file system paths absolute, relative to the manifest.
func (c *ProjectConfig) resolvePaths(configDir string) {
	c.Project.MonorepoRoot = resolveAgainst(configDir, c.Project.MonorepoRoot)
	for name, app := range c.Apps {
		if app.Path != "" {
			app.Path = resolveAgainst(c.Project.MonorepoRoot, app.Path)
			c.Apps[name] = app
		}
	}
	if c.Cache.Path != "" {
		c.Cache.Path = resolveAgainst(configDir, c.Cache.Path)
	}
	if c.Prompts.Dir != "" {
		c.Prompts.Dir = resolveAgainst(configDir, c.Prompts.Dir)
	}
}

func resolveAgainst(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// validateRequired ensures that all values needed before the first
// network call are present and well formed.
func validateRequired(cfg *ProjectConfig) error {
	var missingKeys []string

	if cfg.Confluence.BaseURL == "" {
		missingKeys = append(missingKeys, "confluence.base_url")
	}
	if cfg.Confluence.Space == "" {
		missingKeys = append(missingKeys, "confluence.space")
	}
	if cfg.Confluence.Labels.Arc42 == "" {
		missingKeys = append(missingKeys, "confluence.labels.arc42")
	}
	if cfg.Confluence.Labels.ADR == "" {
		missingKeys = append(missingKeys, "confluence.labels.adr")
	}
	if cfg.Confluence.Labels.AppPrefix == "" {
		missingKeys = append(missingKeys, "confluence.labels.app_prefix")
	}

	if len(missingKeys) > 0 {
		return configErrorf("missing required keys: %v", missingKeys)
	}

	switch cfg.Confluence.BodyFormat {
	case models.BodyFormatStorage, models.BodyFormatADF:
	default:
		return configErrorf("confluence.body_format must be %q or %q, got %q",
			models.BodyFormatStorage, models.BodyFormatADF, cfg.Confluence.BodyFormat)
	}

	for _, level := range cfg.Confluence.Arc42.HeadingLevels {
		if level < 1 || level > 6 {
			return configErrorf("confluence.arc42.heading_levels must be between 1 and 6, got %d", level)
		}
	}

	if _, err := arc42.ParseDuplicatePolicy(cfg.Confluence.Arc42.Duplicates); err != nil {
		return configErrorf("confluence.arc42.duplicates: %v", err)
	}

	switch cfg.Jira.ProjectMode {
	case "auto", "company", "team":
	default:
		return configErrorf("jira.project_mode must be auto, company or team, got %q", cfg.Jira.ProjectMode)
	}

	if cfg.Confluence.Arc42.MaxCharsPerSection <= 0 || cfg.Confluence.ADR.MaxChars <= 0 || cfg.Confluence.ADR.MaxItems <= 0 {
		return configErrorf("confluence limits (max_chars_per_section, adr.max_items, adr.max_chars) must be positive")
	}

	if cfg.GitHub.Repository != "" && len(strings.Split(cfg.GitHub.Repository, "/")) != 2 {
		return configErrorf("invalid github.repository format: %s, expected format: owner/repo", cfg.GitHub.Repository)
	}

	return nil
}

// ValidateJiraConfig validates the JIRA section; it is only required when
// Jira enrichment is enabled.
func ValidateJiraConfig(cfg *ProjectConfig) error {
	var missingKeys []string

	if cfg.Jira.BaseURL == "" {
		missingKeys = append(missingKeys, "jira.base_url")
	}
	if cfg.Jira.ProjectKey == "" {
		missingKeys = append(missingKeys, "jira.project_key")
	}

	if len(missingKeys) > 0 {
		return configErrorf("missing required keys: %v", missingKeys)
	}

	if cfg.Jira.PageSize <= 0 {
		return configErrorf("jira.page_size must be positive, got %d", cfg.Jira.PageSize)
	}

	return nil
}

// App returns the per-app configuration. Keys are matched case-insensitively
// because viper lower-cases map keys.
func (c *ProjectConfig) App(name string) (AppConfig, bool) {
	app, ok := c.Apps[strings.ToLower(name)]
	return app, ok
}

// AppLabel is the Confluence label identifying pages of an app.
func (c *ProjectConfig) AppLabel(app string) string {
	return c.Confluence.Labels.AppPrefix + app
}

// DuplicatePolicy returns the parsed duplicate-heading policy.
func (c *ProjectConfig) DuplicatePolicy() arc42.DuplicatePolicy {
	policy, err := arc42.ParseDuplicatePolicy(c.Confluence.Arc42.Duplicates)
	if err != nil {
		return arc42.LastWins
	}
	return policy
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Package pipeline runs the stages that turn Confluence pages, Jira issues
// and repository files into a context payload and prompts.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danielolaszy/archprompt/internal/arc42"
	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/jira"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/internal/normalize"
	"github.com/danielolaszy/archprompt/internal/payload"
	"github.com/danielolaszy/archprompt/internal/prompt"
	"github.com/danielolaszy/archprompt/pkg/models"
)

// PageFetcher loads the arc42 page and the ADR pages of an app.
type PageFetcher interface {
	FetchArc42(ctx context.Context, appLabel, arc42Label string) (*models.RawPage, error)
	FetchADRs(ctx context.Context, appLabel, adrLabel string, maxItems int) ([]models.RawPage, error)
}

// IssueFetcher loads ready and requested Jira issues.
type IssueFetcher interface {
	FetchIssues(ctx context.Context, q jira.Query) (*jira.Result, error)
}

// RepoLister lists the files below a repository-relative directory.
type RepoLister interface {
	ListFiles(ctx context.Context, root string) (payload.Repository, error)
}

// Fetchers are the data sources of a run. Issues and Repo may be nil.
type Fetchers struct {
	Pages  PageFetcher
	Issues IssueFetcher
	Repo   RepoLister
}

// Options are the per-run settings, usually taken from flags.
type Options struct {
	App       string
	Mode      prompt.Mode
	Tickets   payload.Selection
	Stack     string
	HTMLMode  normalize.Mode
	Scope     payload.Scope
	Allow     []string
	Forbid    []string
	BaseSetup bool
	Debug     bool
	// IncludeJira enables Jira enrichment; it also needs Fetchers.Issues.
	IncludeJira bool
	PromptDir   string
	// AppDir is the app directory relative to the project root.
	AppDir string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Summary describes a finished run.
type Summary struct {
	App        string
	Arc42Found bool
	Sections   []string
	ADRs       int
	Candidates int
	Files      int
	Prompts    int
	JiraError  string
}

func (s Summary) String() string {
	sections := "none"
	if len(s.Sections) > 0 {
		sections = strings.Join(s.Sections, ", ")
	}
	out := fmt.Sprintf("app %s: arc42 sections [%s], %d ADRs, %d candidates, %d files, %d prompts",
		s.App, sections, s.ADRs, s.Candidates, s.Files, s.Prompts)
	if s.JiraError != "" {
		out += " (jira skipped: " + s.JiraError + ")"
	}
	return out
}

// Result is the outcome of Run.
type Result struct {
	Payload *payload.ContextPayload
	Prompts []prompt.Prompt
	Summary Summary
}

type fetched struct {
	arc42       *models.RawPage
	adrs        []models.RawPage
	issues      []models.RawIssue
	projectMode string
	jiraEnabled bool
	jiraError   string
	repository  payload.Repository
}

// Run executes the stages config, fetch, normalize, merge and build. Every
// returned error is a *StageError.
func Run(ctx context.Context, cfg *config.ProjectConfig, opts Options, f Fetchers) (*Result, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HTMLMode == "" {
		opts.HTMLMode = normalize.ModeMarkdown
	}
	if opts.Scope == "" {
		opts.Scope = payload.ScopeTicketOnly
	}
	if opts.Mode == "" {
		opts.Mode = prompt.ModePlan
	}

	// config
	if strings.TrimSpace(opts.App) == "" {
		return nil, Fail(StageConfig, fmt.Errorf("%w: app name is required", config.ErrConfig))
	}
	if f.Pages == nil {
		return nil, Fail(StageConfig, fmt.Errorf("%w: no confluence fetcher configured", config.ErrConfig))
	}
	if err := opts.Tickets.Validate(); err != nil {
		return nil, Fail(StageConfig, fmt.Errorf("%w: %v", config.ErrConfig, err))
	}
	stack, err := cfg.EffectiveStack(opts.App, opts.Stack)
	if err != nil {
		return nil, Fail(StageConfig, err)
	}
	promptDir := opts.PromptDir
	if promptDir == "" {
		promptDir = cfg.Prompts.Dir
	}
	logging.Debug("effective tech stack", "app", opts.App, "profile", stack.Profile)

	data, err := fetch(ctx, cfg, opts, f)
	if err != nil {
		return nil, Fail(StageFetch, err)
	}

	if err := checkpoint(ctx, StageNormalize); err != nil {
		return nil, err
	}
	sections, headings := extractSections(cfg, opts, data.arc42)

	if err := checkpoint(ctx, StageMerge); err != nil {
		return nil, err
	}
	p := payload.Merge(cfg, payload.MergeInput{
		App:         opts.App,
		GeneratedAt: opts.Now(),
		Mode:        string(opts.Mode),
		HTMLMode:    opts.HTMLMode,
		Scope:       opts.Scope,
		Selection:   opts.Tickets,
		TechStack:   stack,
		Arc42Page:   data.arc42,
		Arc42:       sections,
		Headings:    headings,
		ADRPages:    data.adrs,
		JiraEnabled: data.jiraEnabled,
		JiraError:   data.jiraError,
		Issues:      data.issues,
		ProjectMode: data.projectMode,
		Repository:  data.repository,
	})

	implOpts := prompt.ImplementOptions{
		Scope:          opts.Scope,
		AllowedPaths:   prompt.AllowedPaths(opts.Scope, stack.Profile, opts.AppDir, opts.Allow),
		ForbiddenPaths: opts.Forbid,
		BaseSetup:      opts.BaseSetup,
	}
	if err := checkpoint(ctx, StageBuild); err != nil {
		return nil, err
	}
	builder, err := prompt.NewBuilder(promptDir, cfg.ContextBudget)
	if err != nil {
		return nil, Fail(StageBuild, err)
	}
	prompts := builder.Build(p, opts.Mode, opts.Tickets, implOpts)
	if len(prompts) == 0 {
		logging.Warn("no tickets to implement", "tickets", opts.Tickets.String())
	}

	summary := Summary{
		App:        opts.App,
		Arc42Found: data.arc42 != nil,
		Sections:   sections.Keys(),
		ADRs:       len(p.ADRs),
		Candidates: len(p.Jira.Candidates),
		Files:      len(p.Repository.Files),
		Prompts:    len(prompts),
		JiraError:  data.jiraError,
	}
	logging.Info("run finished",
		"app", summary.App,
		"sections", len(summary.Sections),
		"adrs", summary.ADRs,
		"candidates", summary.Candidates,
		"prompts", summary.Prompts)

	return &Result{Payload: p, Prompts: prompts, Summary: summary}, nil
}

func fetch(ctx context.Context, cfg *config.ProjectConfig, opts Options, f Fetchers) (*fetched, error) {
	appLabel := cfg.AppLabel(opts.App)
	data := &fetched{repository: payload.Repository{Files: []string{}}}

	page, err := f.Pages.FetchArc42(ctx, appLabel, cfg.Confluence.Labels.Arc42)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch arc42 page: %w", err)
	}
	data.arc42 = page

	if data.adrs, err = f.Pages.FetchADRs(ctx, appLabel, cfg.Confluence.Labels.ADR, cfg.Confluence.ADR.MaxItems); err != nil {
		return nil, fmt.Errorf("failed to fetch ADR pages: %w", err)
	}

	if opts.IncludeJira && f.Issues != nil {
		data.jiraEnabled = true
		result, err := f.Issues.FetchIssues(ctx, jira.Query{
			ProjectKey:    cfg.Jira.ProjectKey,
			ReadyStatus:   cfg.Jira.ReadyStatus,
			ProjectMode:   cfg.Jira.ProjectMode,
			EpicLinkField: cfg.Jira.EpicLinkField,
			Fields:        cfg.Jira.Fields,
			Keys:          opts.Tickets.Keys,
			Siblings:      opts.Scope == payload.ScopeEpic,
		})
		switch {
		case err != nil && cfg.Jira.Optional:
			logging.Warn("jira fetch failed, continuing without candidates", "error", err)
			data.jiraError = err.Error()
		case err != nil:
			return nil, fmt.Errorf("failed to fetch jira issues: %w", err)
		default:
			data.issues = result.Issues
			data.projectMode = result.ProjectMode
		}
	} else {
		logging.Debug("jira enrichment disabled")
	}

	if f.Repo != nil {
		repo, err := f.Repo.ListFiles(ctx, opts.AppDir)
		if err != nil {
			logging.Warn("repository listing failed, continuing without files", "error", err)
		} else {
			data.repository = repo
		}
	}

	return data, nil
}

// extractSections normalizes the arc42 page and splits it into sections.
// A missing page yields no sections.
func extractSections(cfg *config.ProjectConfig, opts Options, page *models.RawPage) (arc42.Sections, []arc42.Heading) {
	if page == nil {
		logging.Warn("no arc42 page, continuing without architecture sections", "app", opts.App)
		return nil, nil
	}

	extractor := newExtractor(cfg, opts.Debug)
	format := pageFormat(page)

	if opts.HTMLMode == normalize.ModeRaw && format == normalize.FormatHTML {
		sections := extractor.ExtractHTML(page.Body)
		logging.Debug("extracted raw html sections", "keys", sections.Keys())
		return sections, nil
	}

	// Headings are found in the markdown rendering, where their levels
	// survive. ADF has no raw section form and is cut the same way.
	text := normalize.Normalize(page.Body, format, normalize.ModeMarkdown)
	sections := extractor.Extract(text)
	if opts.HTMLMode == normalize.ModeText {
		for i := range sections {
			sections[i].Body = normalize.StripMarkdown(sections[i].Body)
		}
	}

	var headings []arc42.Heading
	if opts.Debug {
		headings = extractor.Headings(text)
		for _, h := range headings {
			logging.Debug("arc42 heading", "level", h.Level, "title", h.Title, "key", h.Key)
		}
	}
	logging.Debug("extracted sections", "keys", sections.Keys())
	return sections, headings
}

// Headings lists the heading lines of an arc42 page with the canonical
// section key each one maps to.
func Headings(cfg *config.ProjectConfig, page *models.RawPage) []arc42.Heading {
	if page == nil {
		return nil
	}
	text := normalize.Normalize(page.Body, pageFormat(page), normalize.ModeMarkdown)
	return newExtractor(cfg, false).Headings(text)
}

func newExtractor(cfg *config.ProjectConfig, debug bool) *arc42.Extractor {
	sectionMap := cfg.Confluence.Arc42.SectionMap
	if len(sectionMap) == 0 {
		sectionMap = arc42.DefaultSectionMap()
	}
	return arc42.NewExtractor(arc42.NewVocabulary(sectionMap), arc42.Options{
		Levels:   cfg.Confluence.Arc42.HeadingLevels,
		MaxChars: cfg.Confluence.Arc42.MaxCharsPerSection,
		Policy:   cfg.DuplicatePolicy(),
		Debug:    debug,
	})
}

func pageFormat(page *models.RawPage) normalize.Format {
	if page.BodyFormat == models.BodyFormatADF {
		return normalize.FormatADF
	}
	return normalize.FormatHTML
}

// Write stores the payload at path.
func Write(res *Result, path string) error {
	if err := payload.WriteFile(path, res.Payload); err != nil {
		return Fail(StageOutput, err)
	}
	logging.Info("wrote context file", "path", path)
	return nil
}

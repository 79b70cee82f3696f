package payload

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/danielolaszy/archprompt/internal/arc42"
	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/internal/normalize"
	"github.com/danielolaszy/archprompt/pkg/models"
)

// AcceptanceCriteriaField is the logical field name split into a list of
// acceptance criteria.
const AcceptanceCriteriaField = "acceptance_criteria"

// MergeInput carries everything the merge stage combines.
type MergeInput struct {
	App         string
	GeneratedAt time.Time
	Mode        string
	HTMLMode    normalize.Mode
	Scope       Scope
	Selection   Selection
	TechStack   models.TechStack

	// Arc42Page is nil when no arc42 page was found.
	Arc42Page *models.RawPage
	Arc42     arc42.Sections
	Headings  []arc42.Heading
	ADRPages  []models.RawPage

	// JiraEnabled is false when Jira enrichment was switched off.
	JiraEnabled bool
	// JiraError is the message of an optional Jira fetch that failed.
	JiraError string
	// Issues are the fetched issues before selection. Epics among them
	// provide epic context even when they are not selected.
	Issues []models.RawIssue
	// ProjectMode is the resolved Jira project mode. The configured mode is
	// used when empty.
	ProjectMode string

	Repository Repository
}

// Merge combines the normalized documents and the selected issues into one
// payload.
func Merge(cfg *config.ProjectConfig, in MergeInput) *ContextPayload {
	mode := in.HTMLMode
	if mode == "" {
		mode = normalize.ModeMarkdown
	}
	sectionMap := cfg.Confluence.Arc42.SectionMap
	if len(sectionMap) == 0 {
		sectionMap = arc42.DefaultSectionMap()
	}

	projectMode := in.ProjectMode
	if projectMode == "" {
		projectMode = cfg.Jira.ProjectMode
	}

	p := &ContextPayload{
		Meta: Meta{
			App:         in.App,
			GeneratedAt: in.GeneratedAt.UTC().Format(time.RFC3339),
			Project:     cfg.Project.Name,
			Mode:        in.Mode,
			HTMLMode:    string(mode),
			Scope:       string(in.Scope),
			Tickets:     in.Selection.String(),
			Config: ConfigSummary{
				Path:               cfg.Path,
				HeadingLevels:      cfg.Confluence.Arc42.HeadingLevels,
				MaxCharsPerSection: cfg.Confluence.Arc42.MaxCharsPerSection,
				MappedSections:     arc42.NewVocabulary(sectionMap).Keys(),
				Duplicates:         string(cfg.DuplicatePolicy()),
				ADRMaxItems:        cfg.Confluence.ADR.MaxItems,
				ADRMaxChars:        cfg.Confluence.ADR.MaxChars,
			},
		},
		Metadata: Metadata{TechStack: in.TechStack},
		Jira: Jira{
			Enabled:     in.JiraEnabled,
			ProjectKey:  cfg.Jira.ProjectKey,
			ReadyStatus: cfg.Jira.ReadyStatus,
			ProjectMode: projectMode,
			Candidates:  []Candidate{},
			Error:       in.JiraError,
		},
		ADRs:       buildADRs(in.ADRPages, cfg.Confluence.ADR, mode),
		Repository: in.Repository,
	}
	if len(in.Arc42) > 0 {
		p.Arc42 = in.Arc42
	}
	if p.Repository.Files == nil {
		p.Repository.Files = []string{}
	}

	if in.JiraEnabled {
		p.Jira.Candidates = buildCandidates(cfg, in, mode)
	}

	p.Raw = Raw{ADRCount: len(p.ADRs)}
	if in.Arc42Page != nil {
		p.Raw.Arc42PageID = in.Arc42Page.ID
		p.Raw.Arc42Title = in.Arc42Page.Title
		p.Raw.Arc42URL = in.Arc42Page.URL
		p.Raw.Arc42BodyFormat = in.Arc42Page.BodyFormat
		p.Raw.Arc42BodyLen = len(in.Arc42Page.Body)
	}
	if len(in.Headings) > 0 {
		p.Raw.Headings = in.Headings
	}

	logging.Debug("merged context payload",
		"app", in.App,
		"sections", len(p.Arc42),
		"adrs", len(p.ADRs),
		"candidates", len(p.Jira.Candidates))
	return p
}

func buildADRs(pages []models.RawPage, cfg config.ADRConfig, mode normalize.Mode) []ADR {
	adrs := make([]ADR, 0, len(pages))
	for i, page := range pages {
		if cfg.MaxItems > 0 && i >= cfg.MaxItems {
			break
		}
		format := normalize.FormatHTML
		if page.BodyFormat == models.BodyFormatADF {
			format = normalize.FormatADF
		}
		adrs = append(adrs, ADR{
			Title:   page.Title,
			URL:     page.URL,
			Storage: normalize.Truncate(page.Body, cfg.MaxChars),
			Text:    normalize.Truncate(normalize.Normalize(page.Body, format, mode), cfg.MaxChars),
		})
	}
	return adrs
}

func buildCandidates(cfg *config.ProjectConfig, in MergeInput, mode normalize.Mode) []Candidate {
	epics := make(map[string]models.RawIssue)
	for _, issue := range in.Issues {
		if issue.IsEpic() {
			epics[strings.ToUpper(issue.Key)] = issue
		}
	}

	selected := SelectIssues(in.Issues, in.Selection, in.Scope, cfg.Jira.ProjectKey, cfg.Jira.ReadyStatus)

	candidates := make([]Candidate, 0, len(selected))
	for _, issue := range selected {
		// Epics become context for their children unless asked for by key.
		if issue.IsEpic() && !in.Selection.Contains(issue.Key) {
			continue
		}
		candidates = append(candidates, toCandidate(issue, epics, mode))
	}
	return candidates
}

func toCandidate(issue models.RawIssue, epics map[string]models.RawIssue, mode normalize.Mode) Candidate {
	c := Candidate{
		Key:         issue.Key,
		Summary:     issue.Summary,
		URL:         issue.URL,
		Description: describe(issue.Description, mode),
		Status:      issue.Status,
		IssueType:   issue.IssueType,
	}

	if issue.EpicKey != "" {
		ref := &EpicRef{Key: issue.EpicKey}
		if epic, ok := epics[strings.ToUpper(issue.EpicKey)]; ok {
			ref.Summary = epic.Summary
			ref.URL = epic.URL
			ref.Description = describe(epic.Description, mode)
		}
		c.Epic = ref
	}

	for name, raw := range issue.Fields {
		parts := fieldParts(raw, mode)
		if len(parts) == 0 {
			continue
		}
		if name == AcceptanceCriteriaField {
			c.AcceptanceCriteria = normalize.SplitAcceptanceCriteria(strings.Join(parts, "\n"))
			continue
		}
		if c.Fields == nil {
			c.Fields = make(map[string]string)
		}
		c.Fields[name] = strings.Join(parts, ", ")
	}
	return c
}

func describe(raw json.RawMessage, mode normalize.Mode) string {
	text := normalize.NormalizeJSON(raw, mode)
	if mode == normalize.ModeRaw {
		return text
	}
	return normalize.SanitizeWrapped(text)
}

// fieldParts flattens a custom field value: strings, numbers, option
// objects ({"value": ...}, {"name": ...}), ADF documents and lists of these.
func fieldParts(raw json.RawMessage, mode normalize.Mode) []string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return nil
	}

	switch t := v.(type) {
	case []any:
		var parts []string
		for _, item := range t {
			data, err := json.Marshal(item)
			if err != nil {
				continue
			}
			parts = append(parts, fieldParts(data, mode)...)
		}
		return parts
	case map[string]any:
		if kind, _ := t["type"].(string); kind == string(normalize.KindDoc) {
			if s := describe(raw, mode); s != "" {
				return []string{s}
			}
			return nil
		}
		for _, k := range []string{"value", "name", "text", "key"} {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				return []string{strings.TrimSpace(s)}
			}
		}
		return nil
	case string:
		if s := describe(raw, mode); s != "" {
			return []string{s}
		}
		return nil
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case bool:
		return []string{strconv.FormatBool(t)}
	}
	return nil
}

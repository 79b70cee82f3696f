// Package prompt renders plan and implement prompts from a context payload.
//
// Prompts are described by YAML definitions. The defaults are embedded in
// the binary; a directory configured under prompts.dir (or --prompt-dir) may
// override plan.yaml and implement.yaml.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/internal/payload"
)

//go:embed prompts/plan.yaml
var defaultPlanPrompt string

//go:embed prompts/implement.yaml
var defaultImplementPrompt string

// Mode selects which prompt is generated.
type Mode string

const (
	ModePlan      Mode = "plan"
	ModeImplement Mode = "implement"
)

// ParseMode validates a --mode value. Empty means plan.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModePlan, nil
	case ModePlan, ModeImplement:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q, use plan or implement", s)
	}
}

// ImplementOptions are the scope settings of implement prompts.
type ImplementOptions struct {
	Scope          payload.Scope
	AllowedPaths   []string
	ForbiddenPaths []string
	BaseSetup      bool
}

// Prompt is one rendered prompt. Key is the ticket key for implement
// prompts and empty for the plan prompt.
type Prompt struct {
	Mode Mode
	Key  string
	Text string
}

// Builder renders prompts within a context budget.
type Builder struct {
	plan      Def
	implement Def
	budget    config.ContextBudget
}

// NewBuilder loads the prompt definitions, preferring files in dir.
func NewBuilder(dir string, budget config.ContextBudget) (*Builder, error) {
	plan, err := loadDef(dir, "plan.yaml", defaultPlanPrompt)
	if err != nil {
		return nil, err
	}
	implement, err := loadDef(dir, "implement.yaml", defaultImplementPrompt)
	if err != nil {
		return nil, err
	}
	return &Builder{plan: plan, implement: implement, budget: budget}, nil
}

func (b *Builder) commonData(p *payload.ContextPayload) map[string]string {
	app := p.Meta.App
	if app == "" {
		app = "unknown"
	}
	return map[string]string{
		"app":          app,
		"project":      p.Meta.Project,
		"generated_at": p.Meta.GeneratedAt,
		"html_mode":    p.Meta.HTMLMode,
		"tech_stack":   renderTechStack(p.Metadata.TechStack),
		"arc42":        truncate(renderArc42(p.Arc42), b.budget.MaxCharsConfluence),
		"adrs":         truncate(renderADRs(p.ADRs), b.budget.MaxCharsConfluence),
	}
}

// Plan renders the plan prompt.
func (b *Builder) Plan(p *payload.ContextPayload) string {
	data := b.commonData(p)
	data["mode"] = string(ModePlan)
	data["candidates"] = truncate(renderCandidates(p.Jira.Candidates), b.budget.MaxCharsJira)
	return b.fit(b.plan.Render(data))
}

// Implement renders the implement prompt for one candidate.
func (b *Builder) Implement(p *payload.ContextPayload, c payload.Candidate, opts ImplementOptions) string {
	data := b.commonData(p)
	data["mode"] = string(ModeImplement)
	data["ticket"] = c.Key
	data["ticket_block"] = truncate(renderTicket(c), b.budget.MaxCharsJira)
	data["epic"] = truncate(renderEpic(c.Epic), b.budget.MaxCharsEpic)
	data["scope"] = renderScope(opts)
	data["repository"] = truncate(renderRepository(p.Repository), b.budget.MaxCharsRepo)
	return b.fit(b.implement.Render(data))
}

// Build renders the prompts for mode. In implement mode a wildcard selection
// yields one prompt per candidate; explicit keys missing from the candidates
// are skipped with a warning.
func (b *Builder) Build(p *payload.ContextPayload, mode Mode, sel payload.Selection, opts ImplementOptions) []Prompt {
	if mode != ModeImplement {
		return []Prompt{{Mode: ModePlan, Text: b.Plan(p)}}
	}

	keys := sel.Keys
	if sel.Wildcard || len(keys) == 0 {
		keys = make([]string, 0, len(p.Jira.Candidates))
		for _, c := range p.Jira.Candidates {
			keys = append(keys, c.Key)
		}
	}

	prompts := make([]Prompt, 0, len(keys))
	for _, key := range keys {
		c, ok := p.Candidate(key)
		if !ok {
			logging.Warn("ticket not found among candidates, skipping", "ticket", key)
			continue
		}
		prompts = append(prompts, Prompt{Mode: ModeImplement, Key: c.Key, Text: b.Implement(p, c, opts)})
	}
	return prompts
}

// fit applies the total budget to a rendered prompt.
func (b *Builder) fit(text string) string {
	if b.budget.MaxCharsTotal > 0 && utf8.RuneCountInString(text) > b.budget.MaxCharsTotal {
		logging.Debug("prompt exceeds total budget, truncating",
			"chars", utf8.RuneCountInString(text),
			"limit", b.budget.MaxCharsTotal)
	}
	return truncate(text, b.budget.MaxCharsTotal)
}

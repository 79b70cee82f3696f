package prompt

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/danielolaszy/archprompt/internal/arc42"
	"github.com/danielolaszy/archprompt/internal/normalize"
	"github.com/danielolaszy/archprompt/internal/payload"
	"github.com/danielolaszy/archprompt/pkg/models"
)

// TruncationMarker ends every block cut to fit the context budget.
const TruncationMarker = "[... truncated]"

var sectionTitles = map[string]string{
	"goals":                 "Goals",
	"constraints":           "Constraints",
	"context":               "Context",
	"solution_strategy":     "Solution Strategy",
	"building_blocks":       "Building Blocks",
	"runtime_view":          "Runtime View",
	"deployment_view":       "Deployment View",
	"crosscutting":          "Crosscutting Concepts",
	"decisions":             "Architecture Decisions",
	"quality_scenarios":     "Quality Scenarios",
	"risks_and_mitigations": "Risks and Mitigations",
	"glossary":              "Glossary",
}

// SectionTitle returns the display title of an arc42 key.
func SectionTitle(key string) string {
	if title, ok := sectionTitles[key]; ok {
		return title
	}
	return titleCase(key)
}

// truncate cuts s to max runes and appends the marker. max <= 0 disables
// the limit.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:max]), " \t\n") + "\n" + TruncationMarker
}

func renderStackItems(items []models.StackItem) []string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		parts := []string{it.Name}
		if it.Version != "" {
			parts = append(parts, it.Version)
		}
		if it.Role != "" {
			parts = append(parts, "· "+it.Role)
		}
		lines = append(lines, "- "+strings.Join(parts, " "))
	}
	return lines
}

func renderTechStack(ts models.TechStack) string {
	if ts.IsEmpty() {
		// --stack without a manifest tech_stack still names the profile.
		if ts.Profile == "" {
			return ""
		}
		return "Stack profile: " + ts.Profile
	}

	var groups []string
	add := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		groups = append(groups, "### "+title+"\n"+strings.Join(lines, "\n"))
	}
	bullets := func(items []string) []string {
		out := make([]string, 0, len(items))
		for _, s := range items {
			out = append(out, "- "+s)
		}
		return out
	}

	if ts.Name != "" {
		groups = append(groups, fmt.Sprintf("Stack: %s (profile %s)", ts.Name, ts.Profile))
	}
	add("Languages", renderStackItems(ts.Languages))
	add("Frameworks", renderStackItems(ts.Frameworks))
	add("Data Stores", renderStackItems(ts.DataStores))
	add("Testing", renderStackItems(ts.Testing))
	add("CI/CD", renderStackItems(ts.CICD))
	add("Constraints", bullets(ts.Constraints))
	add("Notes", bullets(ts.Notes))
	return strings.Join(groups, "\n\n")
}

func renderArc42(sections arc42.Sections) string {
	var out []string
	for _, sec := range sections.Ordered(arc42.CanonicalOrder) {
		body := strings.TrimSpace(sec.Body)
		if sec.Key == arc42.PreambleKey || body == "" {
			continue
		}
		out = append(out, "### "+SectionTitle(sec.Key)+"\n\n"+body)
	}
	return strings.Join(out, "\n\n")
}

func renderADRs(adrs []payload.ADR) string {
	var out []string
	for _, adr := range adrs {
		body := strings.TrimSpace(adr.Text)
		if body == "" {
			body = strings.TrimSpace(adr.Storage)
		}
		title := adr.Title
		if title == "" {
			title = "ADR"
		}
		block := "#### " + title
		if body != "" {
			block += "\n\n" + body
		}
		out = append(out, block)
	}
	return strings.Join(out, "\n\n")
}

// candidateSummaryChars bounds the one-line description shown per candidate.
const candidateSummaryChars = 200

func renderCandidates(candidates []payload.Candidate) string {
	lines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		line := fmt.Sprintf("- %s: %s", c.Key, c.Summary)
		if c.Status != "" {
			line += " (" + c.Status + ")"
		}
		if c.Epic != nil {
			line += ", epic " + c.Epic.Key
		}
		lines = append(lines, line)

		desc := strings.Join(strings.Fields(c.Description), " ")
		if cut := normalize.Truncate(desc, candidateSummaryChars); cut != desc {
			desc = strings.TrimSpace(cut) + "…"
		}
		if desc != "" {
			lines = append(lines, "  "+desc)
		}
	}
	return strings.Join(lines, "\n")
}

func renderTicket(c payload.Candidate) string {
	lines := []string{
		"- **Key**: " + c.Key,
		"- **Title**: " + c.Summary,
	}
	if c.URL != "" {
		lines = append(lines, "- **URL**: "+c.URL)
	}
	if c.IssueType != "" {
		lines = append(lines, "- **Type**: "+c.IssueType)
	}

	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- **%s**: %s", titleCase(name), c.Fields[name]))
	}

	if desc := strings.TrimSpace(c.Description); desc != "" {
		lines = append(lines, "", "**Description**", "", desc)
	}
	if len(c.AcceptanceCriteria) > 0 {
		lines = append(lines, "", "**Acceptance Criteria**")
		for _, ac := range c.AcceptanceCriteria {
			lines = append(lines, "- "+ac)
		}
	}
	return strings.Join(lines, "\n")
}

func renderEpic(epic *payload.EpicRef) string {
	if epic == nil || epic.Key == "" {
		return ""
	}
	lines := []string{"- **Key**: " + epic.Key}
	if epic.Summary != "" {
		lines = append(lines, "- **Title**: "+epic.Summary)
	}
	if epic.URL != "" {
		lines = append(lines, "- **URL**: "+epic.URL)
	}
	if desc := strings.TrimSpace(epic.Description); desc != "" {
		lines = append(lines, "", "**Epic Description**", "", desc)
	}
	return strings.Join(lines, "\n")
}

func renderScope(opts ImplementOptions) string {
	scope := opts.Scope
	if scope == "" {
		scope = payload.ScopeTicketOnly
	}
	lines := []string{
		fmt.Sprintf("- **Scope Mode**: `%s`", scope),
		fmt.Sprintf("- **Base Setup Allowed**: `%t`", opts.BaseSetup),
	}
	if len(opts.AllowedPaths) > 0 {
		lines = append(lines, "- **Allowed Paths** (create/modify):")
		for _, p := range opts.AllowedPaths {
			lines = append(lines, "  - `"+p+"`")
		}
	}
	if len(opts.ForbiddenPaths) > 0 {
		lines = append(lines, "- **Forbidden Paths** (do not create/modify):")
		for _, p := range opts.ForbiddenPaths {
			lines = append(lines, "  - `"+p+"`")
		}
	}
	lines = append(lines,
		"",
		"**Change Policy**",
		"- Deliver **only** the files that are actually changed or newly created.",
		"- **No** project boilerplate, global scaffolding or dummy files.",
		"- Create migrations **only** when the ticket requires database changes.",
		"- If a required prerequisite lies outside the allowed paths, stop generating code and "+
			"instead add a short section \"Prerequisites & Minimal Manual Steps\" without foreign code.",
		"- When `base_setup` is false, do **not** touch project settings, WSGI/ASGI entry points, manage.py and similar files.",
	)
	return strings.Join(lines, "\n")
}

func renderRepository(repo payload.Repository) string {
	if len(repo.Files) == 0 {
		return ""
	}
	var header []string
	if repo.Source != "" {
		src := "Source: " + repo.Source
		if repo.Ref != "" {
			src += " @ " + repo.Ref
		}
		header = append(header, src)
	}
	if repo.Root != "" {
		header = append(header, "Root: "+repo.Root)
	}

	lines := make([]string, 0, len(repo.Files))
	for _, f := range repo.Files {
		lines = append(lines, "- "+f)
	}
	files := strings.Join(lines, "\n")
	if len(header) == 0 {
		return files
	}
	return strings.Join(header, "\n") + "\n\n" + files
}

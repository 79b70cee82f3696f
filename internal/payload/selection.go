package payload

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/danielolaszy/archprompt/pkg/models"
)

// Scope controls how far ticket selection reaches beyond the requested keys.
type Scope string

const (
	// ScopeTicketOnly selects the requested tickets only.
	ScopeTicketOnly Scope = "ticket-only"
	// ScopeEpic adds the parent epics and siblings of the requested tickets.
	ScopeEpic Scope = "epic"
	// ScopeProject adds every issue of the project.
	ScopeProject Scope = "project"
)

// ParseScope validates a --scope value. Empty means ticket-only.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScopeTicketOnly, nil
	case ScopeTicketOnly, ScopeEpic, ScopeProject:
		return sc, nil
	default:
		return "", fmt.Errorf("invalid scope %q, expected ticket-only, epic or project", s)
	}
}

// Selection is the parsed --tickets value.
type Selection struct {
	// Wildcard selects every ready issue of the project.
	Wildcard bool
	Keys     []string
}

// ParseTickets parses "*", "" (both wildcard) or a comma separated list of
// issue keys. Keys are upper-cased and deduplicated, order preserved.
func ParseTickets(s string) Selection {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Selection{Wildcard: true}
	}

	var sel Selection
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		key := strings.ToUpper(strings.TrimSpace(part))
		if key == "" {
			continue
		}
		if key == "*" {
			return Selection{Wildcard: true}
		}
		if !seen[key] {
			seen[key] = true
			sel.Keys = append(sel.Keys, key)
		}
	}
	if len(sel.Keys) == 0 {
		return Selection{Wildcard: true}
	}
	return sel
}

// issueKey matches a Jira issue key such as SMP-12.
var issueKey = regexp.MustCompile(`^[A-Z][A-Z0-9_]*-\d+$`)

// Validate rejects keys that are not Jira issue keys. The keys end up in JQL,
// so nothing else may pass.
func (s Selection) Validate() error {
	var invalid []string
	for _, k := range s.Keys {
		if !issueKey.MatchString(k) {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid ticket keys %q, expected keys like SMP-12", invalid)
	}
	return nil
}

// Contains reports whether key was requested explicitly.
func (s Selection) Contains(key string) bool {
	key = strings.ToUpper(strings.TrimSpace(key))
	for _, k := range s.Keys {
		if k == key {
			return true
		}
	}
	return false
}

func (s Selection) String() string {
	if s.Wildcard {
		return "*"
	}
	return strings.Join(s.Keys, ",")
}

// IsReady compares an issue status with the ready status, ignoring case and
// surrounding whitespace.
func IsReady(status, readyStatus string) bool {
	return strings.EqualFold(strings.TrimSpace(status), strings.TrimSpace(readyStatus))
}

// ProjectOf returns the issue's project key, derived from the issue key when
// the fetcher did not set it.
func ProjectOf(issue models.RawIssue) string {
	if issue.ProjectKey != "" {
		return issue.ProjectKey
	}
	if i := strings.LastIndex(issue.Key, "-"); i > 0 {
		return issue.Key[:i]
	}
	return ""
}

// SelectIssues applies the scope breadth filter and then the status/key
// gate:
//
//   - breadth: with a wildcard every issue of the project is considered;
//     otherwise the requested keys, plus their parent epics and siblings
//     (epic scope) or every project issue (project scope);
//   - gate: explicitly requested keys pass regardless of status; every other
//     issue passes only when it is ready and belongs to the project.
//
// The result keeps the input order and contains each key once.
func SelectIssues(issues []models.RawIssue, sel Selection, scope Scope, projectKey, readyStatus string) []models.RawIssue {
	inProject := func(issue models.RawIssue) bool {
		return strings.EqualFold(ProjectOf(issue), projectKey)
	}

	considered := breadth(issues, sel, scope, inProject)

	var out []models.RawIssue
	seen := make(map[string]bool)
	for _, issue := range issues {
		key := strings.ToUpper(issue.Key)
		if seen[key] || !considered[key] {
			continue
		}
		explicit := !sel.Wildcard && sel.Contains(key)
		if explicit || (inProject(issue) && IsReady(issue.Status, readyStatus)) {
			seen[key] = true
			out = append(out, issue)
		}
	}
	return out
}

func breadth(issues []models.RawIssue, sel Selection, scope Scope, inProject func(models.RawIssue) bool) map[string]bool {
	considered := make(map[string]bool)

	if sel.Wildcard {
		for _, issue := range issues {
			if inProject(issue) {
				considered[strings.ToUpper(issue.Key)] = true
			}
		}
		return considered
	}

	for _, key := range sel.Keys {
		considered[key] = true
	}

	switch scope {
	case ScopeEpic:
		epics := make(map[string]bool)
		for _, issue := range issues {
			if !sel.Contains(issue.Key) {
				continue
			}
			if issue.EpicKey != "" {
				epics[strings.ToUpper(issue.EpicKey)] = true
			}
			if issue.IsEpic() {
				epics[strings.ToUpper(issue.Key)] = true
			}
		}
		for _, issue := range issues {
			key := strings.ToUpper(issue.Key)
			if epics[key] || epics[strings.ToUpper(issue.EpicKey)] {
				considered[key] = true
			}
		}
	case ScopeProject:
		for _, issue := range issues {
			if inProject(issue) {
				considered[strings.ToUpper(issue.Key)] = true
			}
		}
	}

	return considered
}

// Package models defines data structures shared across the application.
package models

import (
	"encoding/json"
	"strings"
)

// Body formats a Confluence page may be fetched in.
const (
	// BodyFormatStorage is Confluence storage format (XHTML).
	BodyFormatStorage = "storage"

	// BodyFormatADF is the Atlassian Document Format (JSON tree).
	BodyFormatADF = "atlas_doc_format"
)

// RawPage represents a Confluence page as returned by the fetcher,
// before any normalization.
type RawPage struct {
	// ID is the Confluence content id (e.g., "123456")
	ID string `json:"id"`

	// Title is the page title
	Title string `json:"title"`

	// Label is the label the page was selected by (arc42 or adr label)
	Label string `json:"label"`

	// Body is the page body in its source markup
	Body string `json:"body"`

	// BodyFormat is either BodyFormatStorage or BodyFormatADF
	BodyFormat string `json:"body_format"`

	// URL is the browser link to the page, if known
	URL string `json:"url,omitempty"`

	// Version is the page version number
	Version int `json:"version,omitempty"`
}

// RawIssue represents a Jira issue as returned by the fetcher.
type RawIssue struct {
	// Key is the full Jira issue key (e.g., "SMP-15")
	Key string `json:"key"`

	// Summary is the issue's summary field
	Summary string `json:"summary"`

	// Description is the raw description: ADF JSON for Jira Cloud v3,
	// a plain string for older servers, or null
	Description json.RawMessage `json:"description,omitempty"`

	// Status is the workflow status name (e.g., "READY FOR GENERATE")
	Status string `json:"status"`

	// IssueType is the issue type name (e.g., "Epic", "Story")
	IssueType string `json:"issue_type"`

	// ProjectKey is the key of the project the issue belongs to
	ProjectKey string `json:"project_key"`

	// EpicKey is the key of the parent epic, empty when the issue has none
	EpicKey string `json:"epic_key,omitempty"`

	// URL is the browse link of the issue
	URL string `json:"url,omitempty"`

	// Fields holds configured logical custom fields by logical name
	// (e.g., "acceptance_criteria"), raw as returned by Jira
	Fields map[string]json.RawMessage `json:"fields,omitempty"`
}

// IsEpic reports whether the issue is an epic.
func (i RawIssue) IsEpic() bool {
	return strings.EqualFold(strings.TrimSpace(i.IssueType), "epic")
}

// StackItem is a single tech stack entry. In the manifest it may be a
// plain string ("Go") or a mapping with name, version and role.
type StackItem struct {
	Name    string `json:"name" mapstructure:"name"`
	Version string `json:"version,omitempty" mapstructure:"version"`
	Role    string `json:"role,omitempty" mapstructure:"role"`
}

// TechStack is the resolved tech stack profile of an app.
type TechStack struct {
	// Name is the declared stack name (e.g., "django", "generic")
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Profile is the normalized profile name used for path defaults
	Profile string `json:"profile" mapstructure:"profile"`

	Languages   []StackItem `json:"languages,omitempty" mapstructure:"languages"`
	Frameworks  []StackItem `json:"frameworks,omitempty" mapstructure:"frameworks"`
	DataStores  []StackItem `json:"data_stores,omitempty" mapstructure:"data_stores"`
	Testing     []StackItem `json:"testing,omitempty" mapstructure:"testing"`
	CICD        []StackItem `json:"ci_cd,omitempty" mapstructure:"ci_cd"`
	Constraints []string    `json:"constraints,omitempty" mapstructure:"constraints"`
	Notes       []string    `json:"notes,omitempty" mapstructure:"notes"`
}

// IsEmpty reports whether no stack information was configured.
func (s TechStack) IsEmpty() bool {
	return s.Name == "" && len(s.Languages) == 0 && len(s.Frameworks) == 0 &&
		len(s.DataStores) == 0 && len(s.Testing) == 0 && len(s.CICD) == 0 &&
		len(s.Constraints) == 0 && len(s.Notes) == 0
}

// Package payload assembles the context payload: the single JSON document
// that carries arc42 sections, ADRs, Jira candidates and repository files
// from the fetch stage to the prompt builder.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielolaszy/archprompt/internal/arc42"
	"github.com/danielolaszy/archprompt/pkg/models"
)

// ContextPayload is the unit written to the context file and handed to the
// prompt builder. It is not mutated after Merge returns.
type ContextPayload struct {
	Meta       Meta           `json:"meta"`
	Metadata   Metadata       `json:"metadata"`
	Jira       Jira           `json:"jira"`
	Arc42      arc42.Sections `json:"arc42"`
	ADRs       []ADR          `json:"adrs"`
	Repository Repository     `json:"repository"`
	Raw        Raw            `json:"raw"`
}

// Meta describes the run that produced the payload.
type Meta struct {
	App string `json:"app"`
	// GeneratedAt is an RFC 3339 UTC timestamp.
	GeneratedAt string        `json:"generated_at"`
	Project     string        `json:"project,omitempty"`
	Mode        string        `json:"mode,omitempty"`
	HTMLMode    string        `json:"html_mode,omitempty"`
	Scope       string        `json:"scope,omitempty"`
	Tickets     string        `json:"tickets,omitempty"`
	Config      ConfigSummary `json:"config"`
}

// ConfigSummary records the extraction settings in effect.
type ConfigSummary struct {
	Path               string   `json:"path"`
	HeadingLevels      []int    `json:"heading_levels"`
	MaxCharsPerSection int      `json:"max_chars_per_section"`
	MappedSections     []string `json:"mapped_sections"`
	Duplicates         string   `json:"duplicates"`
	ADRMaxItems        int      `json:"adr_max_items"`
	ADRMaxChars        int      `json:"adr_max_chars"`
}

// Metadata carries the resolved tech stack.
type Metadata struct {
	TechStack models.TechStack `json:"tech_stack"`
}

// Jira holds the selected ticket candidates.
type Jira struct {
	Enabled     bool        `json:"enabled"`
	ProjectKey  string      `json:"project_key"`
	ReadyStatus string      `json:"ready_status"`
	ProjectMode string      `json:"project_mode,omitempty"`
	Candidates  []Candidate `json:"candidates"`
	// Error is set when an optional Jira fetch failed and candidates were
	// left empty.
	Error string `json:"error,omitempty"`
}

// Candidate is one ticket eligible for generation.
type Candidate struct {
	Key                string            `json:"key"`
	Summary            string            `json:"summary"`
	URL                string            `json:"url,omitempty"`
	Description        string            `json:"description"`
	Status             string            `json:"status"`
	IssueType          string            `json:"issue_type,omitempty"`
	AcceptanceCriteria []string          `json:"acceptance_criteria,omitempty"`
	Epic               *EpicRef          `json:"epic,omitempty"`
	Fields             map[string]string `json:"fields,omitempty"`
}

// EpicRef is the epic context attached to a candidate.
type EpicRef struct {
	Key         string `json:"key"`
	Summary     string `json:"summary,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// ADR is one architecture decision record page.
type ADR struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	// Storage is the source body, truncated to adr.max_chars.
	Storage string `json:"storage"`
	// Text is the normalized body, truncated to adr.max_chars.
	Text string `json:"text"`
}

// Repository lists files of the app's code base.
type Repository struct {
	// Source is "github", "local" or empty when no listing was made.
	Source string   `json:"source,omitempty"`
	Ref    string   `json:"ref,omitempty"`
	Root   string   `json:"root,omitempty"`
	Files  []string `json:"files"`
}

// Raw keeps diagnostics about the fetched source documents.
type Raw struct {
	Arc42PageID     string          `json:"arc42_page_id,omitempty"`
	Arc42Title      string          `json:"arc42_title,omitempty"`
	Arc42URL        string          `json:"arc42_url,omitempty"`
	Arc42BodyFormat string          `json:"arc42_body_format,omitempty"`
	Arc42BodyLen    int             `json:"arc42_body_len"`
	ADRCount        int             `json:"adr_count"`
	Headings        []arc42.Heading `json:"headings,omitempty"`
}

// Candidate returns the candidate with the given key.
func (p *ContextPayload) Candidate(key string) (Candidate, bool) {
	for _, c := range p.Jira.Candidates {
		if c.Key == key {
			return c, true
		}
	}
	return Candidate{}, false
}

// Encode renders the payload as indented JSON without HTML escaping.
func (p *ContextPayload) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode context payload: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes the payload to path, creating parent directories.
func WriteFile(path string, p *ContextPayload) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write context file %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a payload previously written by WriteFile.
func ReadFile(path string) (*ContextPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context file %s: %w", path, err)
	}
	var p ContextPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode context file %s: %w", path, err)
	}
	return &p, nil
}

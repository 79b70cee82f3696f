package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/pkg/models"
)

// keyChunk bounds the number of keys in a single "in (...)" clause.
const keyChunk = 100

// Query describes the issues a run needs.
type Query struct {
	ProjectKey  string
	ReadyStatus string
	// ProjectMode is auto, company or team.
	ProjectMode   string
	EpicLinkField string
	// Fields maps logical names to Jira field names or ids.
	Fields map[string]string
	// Keys are explicitly requested issues, fetched regardless of status.
	Keys []string
	// Siblings also loads the children of the requested issues' epics.
	Siblings bool
}

// Result is the outcome of FetchIssues.
type Result struct {
	Issues []models.RawIssue `json:"issues"`
	// ProjectMode is the resolved mode, company or team.
	ProjectMode string `json:"project_mode"`
}

type fetchState struct {
	mode      string
	epicField string
	fieldIDs  map[string]string
	request   []string
}

// FetchIssues loads the ready issues of the project, the explicitly
// requested ones, optionally the siblings of their epics, and finally every
// referenced epic so candidates can carry epic context.
func (c *Client) FetchIssues(ctx context.Context, q Query) (*Result, error) {
	mode, err := c.ProjectMode(ctx, q.ProjectKey, q.ProjectMode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project mode: %w", err)
	}
	st := &fetchState{mode: mode}

	if st.fieldIDs, err = c.ResolveFields(ctx, q.Fields); err != nil {
		return nil, fmt.Errorf("failed to resolve custom fields: %w", err)
	}
	if mode == ModeCompany {
		if st.epicField, err = c.EpicLinkField(ctx, q.EpicLinkField); err != nil {
			return nil, fmt.Errorf("failed to resolve epic link field: %w", err)
		}
		if st.epicField == "" {
			logging.Warn("no epic link field found, using parent for epics; set jira.epic_link_field to override")
		}
	}
	st.request = requestFields(st)
	logging.Debug("jira fetch", "project", q.ProjectKey, "mode", mode, "epic_field", st.epicField, "fields", st.fieldIDs)

	var issues []models.RawIssue
	seen := make(map[string]bool)
	add := func(batch []issueJSON) {
		for _, it := range batch {
			key := strings.ToUpper(it.Key)
			if seen[key] {
				continue
			}
			seen[key] = true
			issues = append(issues, c.toRawIssue(it, st))
		}
	}

	jql := fmt.Sprintf("project = %s AND status = %s", quoteJQL(q.ProjectKey), quoteJQL(q.ReadyStatus))
	ready, err := c.search(ctx, jql+" ORDER BY key", st.request)
	if err != nil {
		return nil, err
	}
	add(ready)

	if err := c.searchKeys(ctx, "key", missing(q.Keys, seen), st, add); err != nil {
		return nil, err
	}

	if q.Siblings {
		requested := make(map[string]bool, len(q.Keys))
		for _, k := range q.Keys {
			requested[strings.ToUpper(k)] = true
		}
		var epics []string
		for _, issue := range issues {
			if !requested[strings.ToUpper(issue.Key)] {
				continue
			}
			if issue.IsEpic() {
				epics = append(epics, issue.Key)
			} else if issue.EpicKey != "" {
				epics = append(epics, issue.EpicKey)
			}
		}
		clause := "parent"
		if mode == ModeCompany && st.epicField != "" {
			clause = `"Epic Link"`
		}
		if err := c.searchKeys(ctx, clause, dedupe(epics), st, add); err != nil {
			return nil, err
		}
	}

	var epicKeys []string
	for _, issue := range issues {
		if issue.EpicKey != "" {
			epicKeys = append(epicKeys, issue.EpicKey)
		}
	}
	if err := c.searchKeys(ctx, "key", missing(dedupe(epicKeys), seen), st, add); err != nil {
		return nil, err
	}

	logging.Info("fetched jira issues", "project", q.ProjectKey, "count", len(issues), "mode", mode)
	return &Result{Issues: issues, ProjectMode: mode}, nil
}

// searchKeys runs "<clause> in (...)" queries over keys in chunks.
func (c *Client) searchKeys(ctx context.Context, clause string, keys []string, st *fetchState, add func([]issueJSON)) error {
	for start := 0; start < len(keys); start += keyChunk {
		end := start + keyChunk
		if end > len(keys) {
			end = len(keys)
		}
		jql := fmt.Sprintf("%s in (%s) ORDER BY key", clause, strings.Join(keys[start:end], ","))
		batch, err := c.search(ctx, jql, st.request)
		if err != nil {
			return err
		}
		add(batch)
	}
	return nil
}

func requestFields(st *fetchState) []string {
	fields := []string{"summary", "status", "description", "issuetype", "project", "parent"}
	if st.epicField != "" {
		fields = append(fields, st.epicField)
	}
	ids := make([]string, 0, len(st.fieldIDs))
	for _, id := range st.fieldIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return append(fields, ids...)
}

type named struct {
	Name string `json:"name"`
}

type keyed struct {
	Key    string `json:"key"`
	Fields struct {
		IssueType named `json:"issuetype"`
	} `json:"fields"`
}

func (c *Client) toRawIssue(it issueJSON, st *fetchState) models.RawIssue {
	issue := models.RawIssue{
		Key: it.Key,
		URL: c.BrowseURL(it.Key),
	}

	decodeField(it.Fields, "summary", &issue.Summary)

	var status, issueType named
	decodeField(it.Fields, "status", &status)
	decodeField(it.Fields, "issuetype", &issueType)
	issue.Status = status.Name
	issue.IssueType = issueType.Name

	var project keyed
	decodeField(it.Fields, "project", &project)
	issue.ProjectKey = project.Key

	if raw, ok := it.Fields["description"]; ok && !isNull(raw) {
		issue.Description = raw
	}

	var parent keyed
	decodeField(it.Fields, "parent", &parent)
	switch {
	case st.mode == ModeTeam:
		issue.EpicKey = parent.Key
	case st.epicField != "" && epicLinkValue(it.Fields[st.epicField]) != "":
		issue.EpicKey = epicLinkValue(it.Fields[st.epicField])
	case strings.EqualFold(parent.Fields.IssueType.Name, "epic"):
		issue.EpicKey = parent.Key
	}

	for logical, id := range st.fieldIDs {
		raw, ok := it.Fields[id]
		if !ok || isNull(raw) {
			continue
		}
		if issue.Fields == nil {
			issue.Fields = make(map[string]json.RawMessage)
		}
		issue.Fields[logical] = raw
	}
	return issue
}

// epicLinkValue reads an epic link that is either a plain key or an object
// with a key.
func epicLinkValue(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var k keyed
	if err := json.Unmarshal(raw, &k); err == nil {
		return k.Key
	}
	return ""
}

func decodeField(fields map[string]json.RawMessage, name string, v any) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return
	}
	if err := json.Unmarshal(raw, v); err != nil {
		logging.Warn("failed to decode jira field", "field", name, "error", err)
	}
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func quoteJQL(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func dedupe(keys []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func missing(keys []string, have map[string]bool) []string {
	var out []string
	for _, k := range dedupe(keys) {
		if !have[k] {
			out = append(out, k)
		}
	}
	return out
}

// Package jira reads ready tickets, their epics and configured custom fields
// from the Jira REST API.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jira "github.com/andygrunwald/go-jira"
	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/logging"
)

const (
	searchJQLPath    = "rest/api/3/search/jql"
	searchLegacyPath = "rest/api/3/search"
)

// Project modes.
const (
	ModeAuto    = "auto"
	ModeCompany = "company"
	ModeTeam    = "team"
)

// Error is a non-2xx answer from Jira.
type Error struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("jira %s returned status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("jira %s returned status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client handles interactions with the JIRA API
type Client struct {
	client   *jira.Client
	baseURL  string
	pageSize int

	// legacySearch is set once search/jql answered 410 Gone.
	legacySearch bool
	fields       []jira.Field
}

// NewClient creates a new JIRA client with basic auth.
func NewClient(baseURL, email, token string, pageSize int) (*Client, error) {
	tp := jira.BasicAuthTransport{
		Username: email,
		Password: token,
	}

	client, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create JIRA client: %w", err)
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	return &Client{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
	}, nil
}

// NewFromConfig creates a client from the manifest and credentials.
func NewFromConfig(cfg *config.ProjectConfig, creds *config.Credentials) (*Client, error) {
	logging.Debug("creating jira client",
		"base_url", cfg.Jira.BaseURL,
		"email", creds.JiraEmail,
		"token", logging.MaskSensitive(creds.JiraToken))
	return NewClient(cfg.Jira.BaseURL, creds.JiraEmail, creds.JiraToken, cfg.Jira.PageSize)
}

// BrowseURL returns the browser link of an issue.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

// get performs a GET against path and decodes the JSON answer into v.
func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	urlStr := path
	if len(query) > 0 {
		urlStr += "?" + query.Encode()
	}
	req, err := c.client.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	resp, err := c.client.Do(req, v)
	return responseError(path, resp, err)
}

func responseError(path string, resp *jira.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp == nil || resp.Response == nil {
		return fmt.Errorf("failed to call jira %s: %w", path, err)
	}
	jerr := &Error{StatusCode: resp.StatusCode, Path: path}
	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		jerr.Body = strings.TrimSpace(string(body))
		if len(jerr.Body) > 200 {
			jerr.Body = jerr.Body[:200] + "..."
		}
	}
	if jerr.StatusCode < 400 {
		// Decoding failed on a successful answer.
		return fmt.Errorf("failed to decode jira %s: %w", path, err)
	}
	return jerr
}

// Ping checks the credentials and returns the display name of the user.
func (c *Client) Ping(ctx context.Context) (string, error) {
	user, resp, err := c.client.User.GetSelfWithContext(ctx)
	if err != nil {
		return "", responseError("rest/api/2/myself", resp, err)
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.EmailAddress, nil
}

// ProjectMode resolves "auto" by asking Jira whether the project is
// team-managed (simplified).
func (c *Client) ProjectMode(ctx context.Context, projectKey, configured string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(configured)) {
	case ModeCompany:
		return ModeCompany, nil
	case ModeTeam:
		return ModeTeam, nil
	}

	var project struct {
		Simplified bool   `json:"simplified"`
		Style      string `json:"style"`
	}
	if err := c.get(ctx, "rest/api/3/project/"+url.PathEscape(projectKey), nil, &project); err != nil {
		return "", err
	}
	if project.Simplified || strings.EqualFold(project.Style, "next-gen") {
		return ModeTeam, nil
	}
	return ModeCompany, nil
}

func (c *Client) fieldList(ctx context.Context) ([]jira.Field, error) {
	if c.fields != nil {
		return c.fields, nil
	}
	fields, resp, err := c.client.Field.GetListWithContext(ctx)
	if err != nil {
		return nil, responseError("rest/api/2/field", resp, err)
	}
	c.fields = fields
	return fields, nil
}

// ResolveFields maps logical field names to Jira field ids. Configured
// values are matched against field names case-insensitively, or taken as
// ids when they are one already. Unknown names are logged and skipped.
func (c *Client) ResolveFields(ctx context.Context, names map[string]string) (map[string]string, error) {
	out := make(map[string]string)
	if len(names) == 0 {
		return out, nil
	}
	fields, err := c.fieldList(ctx)
	if err != nil {
		return nil, err
	}

	for logical, name := range names {
		want := strings.ToLower(strings.TrimSpace(name))
		if want == "" {
			continue
		}
		for _, f := range fields {
			if strings.ToLower(strings.TrimSpace(f.Name)) == want || strings.EqualFold(f.ID, want) {
				out[logical] = f.ID
				break
			}
		}
		if _, ok := out[logical]; !ok {
			logging.Warn("jira field not found", "field", logical, "name", name)
		}
	}
	return out, nil
}

// EpicLinkField returns the configured epic link field id, or looks up the
// field named "Epic Link". An empty result means the instance has none.
func (c *Client) EpicLinkField(ctx context.Context, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	fields, err := c.fieldList(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range fields {
		if strings.EqualFold(strings.TrimSpace(f.Name), "epic link") {
			return f.ID, nil
		}
	}
	return "", nil
}

type searchResponse struct {
	Issues        []issueJSON `json:"issues"`
	StartAt       int         `json:"startAt"`
	Total         int         `json:"total"`
	NextPageToken string      `json:"nextPageToken"`
	IsLast        bool        `json:"isLast"`
}

type issueJSON struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// search runs a JQL query and returns every page of results. It uses the
// search/jql endpoint and falls back to the legacy search endpoint when the
// former answers 410 Gone.
func (c *Client) search(ctx context.Context, jql string, fields []string) ([]issueJSON, error) {
	var (
		out   []issueJSON
		start int
		token string
	)
	for {
		query := url.Values{}
		query.Set("jql", jql)
		query.Set("maxResults", strconv.Itoa(c.pageSize))
		if len(fields) > 0 {
			query.Set("fields", strings.Join(fields, ","))
		}

		var page searchResponse
		var err error
		if !c.legacySearch {
			if token != "" {
				query.Set("nextPageToken", token)
			} else {
				query.Set("startAt", strconv.Itoa(start))
			}
			err = c.get(ctx, searchJQLPath, query, &page)
			var jerr *Error
			if errors.As(err, &jerr) && jerr.StatusCode == http.StatusGone {
				logging.Warn("jira search/jql is gone, using legacy search endpoint")
				c.legacySearch = true
				continue
			}
		} else {
			query.Set("startAt", strconv.Itoa(start))
			err = c.get(ctx, searchLegacyPath, query, &page)
		}
		if err != nil {
			return nil, err
		}

		out = append(out, page.Issues...)
		logging.Debug("jira search batch", "size", len(page.Issues), "total", len(out))

		if len(page.Issues) == 0 || page.IsLast {
			break
		}
		if page.NextPageToken != "" && !c.legacySearch {
			token = page.NextPageToken
			continue
		}
		start += len(page.Issues)
		if start >= page.Total {
			break
		}
	}
	return out, nil
}

// Package confluence fetches arc42 and ADR pages from the Confluence REST API.
package confluence

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/pkg/models"
	"github.com/go-resty/resty/v2"
)

const searchPath = "/rest/api/content/search"

// Error is a non-2xx answer from Confluence.
type Error struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("confluence %s returned status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	Space      string
	Email      string
	Token      string
	BodyFormat string
	Timeout    time.Duration
	// PageSize is the search page size, 25 when zero.
	PageSize int
	// RetryCount is the number of retries on 429 and 5xx answers.
	RetryCount int
	RetryWait  time.Duration
}

// Client handles interactions with the Confluence API.
type Client struct {
	client     *resty.Client
	baseURL    string
	space      string
	bodyFormat string
	pageSize   int
}

// NewClient creates a Confluence client with basic auth and retries on
// rate limiting and server errors.
func NewClient(opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	if opts.BodyFormat == "" {
		opts.BodyFormat = models.BodyFormatStorage
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(opts.Email, opts.Token).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{log: logging.GetLogger().With("component", "confluence")}).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	return &Client{
		client:     client,
		baseURL:    baseURL,
		space:      opts.Space,
		bodyFormat: opts.BodyFormat,
		pageSize:   opts.PageSize,
	}
}

// NewFromConfig creates a client from the manifest and credentials.
func NewFromConfig(cfg *config.ProjectConfig, creds *config.Credentials) *Client {
	logging.Debug("creating confluence client",
		"base_url", cfg.Confluence.BaseURL,
		"email", creds.ConfluenceEmail,
		"token", logging.MaskSensitive(creds.ConfluenceToken))

	return NewClient(Options{
		BaseURL:    cfg.Confluence.BaseURL,
		Space:      cfg.Confluence.Space,
		Email:      creds.ConfluenceEmail,
		Token:      creds.ConfluenceToken,
		BodyFormat: cfg.Confluence.BodyFormat,
		Timeout:    cfg.Confluence.Timeout,
		RetryCount: 5,
		RetryWait:  600 * time.Millisecond,
	})
}

type searchResponse struct {
	Results []content `json:"results"`
	Links   struct {
		Base string `json:"base"`
	} `json:"_links"`
}

type content struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
		ADF struct {
			Value string `json:"value"`
		} `json:"atlas_doc_format"`
	} `json:"body"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

// Search runs a CQL query restricted to the configured space and follows
// pagination until a short page or max results. max <= 0 means no limit.
func (c *Client) Search(ctx context.Context, cql string, max int) ([]models.RawPage, error) {
	query := fmt.Sprintf("space = %s AND (%s)", quote(c.space), cql)
	expand := "body." + c.bodyFormat + ",version"
	logging.Debug("searching confluence", "cql", query, "expand", expand)

	var pages []models.RawPage
	for start := 0; ; start += c.pageSize {
		var result searchResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParam("cql", query).
			SetQueryParam("expand", expand).
			SetQueryParam("limit", strconv.Itoa(c.pageSize)).
			SetQueryParam("start", strconv.Itoa(start)).
			SetResult(&result).
			Get(searchPath)
		if err != nil {
			return nil, fmt.Errorf("failed to search confluence: %w", err)
		}
		if resp.IsError() {
			return nil, &Error{StatusCode: resp.StatusCode(), Path: searchPath, Body: snippet(resp.String())}
		}

		for _, ct := range result.Results {
			pages = append(pages, c.toRawPage(ct, result.Links.Base))
		}
		logging.Debug("confluence batch", "size", len(result.Results), "total", len(pages), "start", start)

		if len(result.Results) < c.pageSize || (max > 0 && len(pages) >= max) {
			break
		}
	}

	if max > 0 && len(pages) > max {
		pages = pages[:max]
	}
	return pages, nil
}

// FetchArc42 returns the first page carrying both the app label and the
// arc42 label, or nil when there is none.
func (c *Client) FetchArc42(ctx context.Context, appLabel, arc42Label string) (*models.RawPage, error) {
	pages, err := c.Search(ctx, labelQuery(appLabel, arc42Label), 1)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		logging.Warn("no arc42 page found", "app_label", appLabel, "label", arc42Label)
		return nil, nil
	}
	page := pages[0]
	page.Label = arc42Label
	return &page, nil
}

// FetchADRs returns up to maxItems ADR pages of the app.
func (c *Client) FetchADRs(ctx context.Context, appLabel, adrLabel string, maxItems int) ([]models.RawPage, error) {
	pages, err := c.Search(ctx, labelQuery(appLabel, adrLabel), maxItems)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		pages[i].Label = adrLabel
	}
	return pages, nil
}

func (c *Client) toRawPage(ct content, linkBase string) models.RawPage {
	page := models.RawPage{
		ID:         ct.ID,
		Title:      ct.Title,
		BodyFormat: c.bodyFormat,
		Version:    ct.Version.Number,
	}
	if c.bodyFormat == models.BodyFormatADF {
		page.Body = ct.Body.ADF.Value
	} else {
		page.Body = ct.Body.Storage.Value
	}
	if ct.Links.WebUI != "" {
		base := linkBase
		if base == "" {
			base = c.baseURL
		}
		page.URL = strings.TrimRight(base, "/") + ct.Links.WebUI
	}
	return page
}

func labelQuery(labels ...string) string {
	parts := []string{`type = "page"`}
	for _, l := range labels {
		parts = append(parts, "label = "+quote(l))
	}
	return strings.Join(parts, " AND ")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

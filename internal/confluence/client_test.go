package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(id, title, body string) map[string]any {
	return map[string]any{
		"id":      id,
		"title":   title,
		"body":    map[string]any{"storage": map[string]any{"value": body}},
		"version": map[string]any{"number": 3},
		"_links":  map[string]any{"webui": "/spaces/ENG/pages/" + id},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newTestClient(url string, pageSize int) *Client {
	return NewClient(Options{
		BaseURL:    url,
		Space:      "ENG",
		Email:      "me@example.com",
		Token:      "secret",
		PageSize:   pageSize,
		RetryCount: 2,
		RetryWait:  time.Millisecond,
	})
}

func TestFetchArc42(t *testing.T) {
	var query, expand string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, searchPath, r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "me@example.com", user)
		assert.Equal(t, "secret", pass)

		query = r.URL.Query().Get("cql")
		expand = r.URL.Query().Get("expand")
		writeJSON(t, w, map[string]any{
			"results": []any{page("1", "Billing arc42", "<h2>Goals</h2>")},
			"_links":  map[string]any{"base": "https://wiki.example.com/wiki"},
		})
	}))
	defer server.Close()

	got, err := newTestClient(server.URL, 25).FetchArc42(context.Background(), "app:billing", "arc42")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, `space = "ENG" AND (type = "page" AND label = "app:billing" AND label = "arc42")`, query)
	assert.Equal(t, "body.storage,version", expand)
	assert.Equal(t, models.RawPage{
		ID:         "1",
		Title:      "Billing arc42",
		Label:      "arc42",
		Body:       "<h2>Goals</h2>",
		BodyFormat: models.BodyFormatStorage,
		URL:        "https://wiki.example.com/wiki/spaces/ENG/pages/1",
		Version:    3,
	}, *got)
}

func TestFetchArc42NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"results": []any{}})
	}))
	defer server.Close()

	got, err := newTestClient(server.URL, 25).FetchArc42(context.Background(), "app:billing", "arc42")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFetchADRsPaginates(t *testing.T) {
	const total = 5
	var starts []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		starts = append(starts, start)

		var results []any
		for i := start; i < start+limit && i < total; i++ {
			results = append(results, page(strconv.Itoa(i), fmt.Sprintf("ADR-%d", i), "<p>x</p>"))
		}
		writeJSON(t, w, map[string]any{"results": results})
	}))
	defer server.Close()

	tests := []struct {
		name       string
		maxItems   int
		wantTitles []string
		wantStarts []int
	}{
		{name: "All pages", maxItems: 0, wantTitles: []string{"ADR-0", "ADR-1", "ADR-2", "ADR-3", "ADR-4"}, wantStarts: []int{0, 2, 4}},
		{name: "Limited", maxItems: 3, wantTitles: []string{"ADR-0", "ADR-1", "ADR-2"}, wantStarts: []int{0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starts = nil
			pages, err := newTestClient(server.URL, 2).FetchADRs(context.Background(), "app:billing", "adr", tt.maxItems)
			require.NoError(t, err)

			titles := []string{}
			for _, p := range pages {
				titles = append(titles, p.Title)
				assert.Equal(t, "adr", p.Label)
			}
			assert.Equal(t, tt.wantTitles, titles)
			assert.Equal(t, tt.wantStarts, starts)
		})
	}
}

func TestSearchADFBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "body.atlas_doc_format,version", r.URL.Query().Get("expand"))
		writeJSON(t, w, map[string]any{"results": []any{map[string]any{
			"id":    "7",
			"title": "ADF page",
			"body":  map[string]any{"atlas_doc_format": map[string]any{"value": `{"type":"doc"}`}},
		}}})
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Space: "ENG", BodyFormat: models.BodyFormatADF})
	pages, err := client.Search(context.Background(), `type = "page"`, 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, `{"type":"doc"}`, pages[0].Body)
	assert.Equal(t, models.BodyFormatADF, pages[0].BodyFormat)
	assert.Empty(t, pages[0].URL)
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, map[string]any{"results": []any{page("1", "arc42", "")}})
	}))
	defer server.Close()

	pages, err := newTestClient(server.URL, 25).Search(context.Background(), `type = "page"`, 0)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus int
	}{
		{name: "Unauthorized", status: http.StatusUnauthorized, wantStatus: http.StatusUnauthorized},
		{name: "Not found", status: http.StatusNotFound, wantStatus: http.StatusNotFound},
		{name: "Server error after retries", status: http.StatusBadGateway, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, 25).Search(context.Background(), `type = "page"`, 0)
			require.Error(t, err)

			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.wantStatus, cerr.StatusCode)
			assert.Equal(t, "nope", cerr.Body)
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.ProjectConfig{}
	cfg.Confluence.BaseURL = "https://wiki.example.com/"
	cfg.Confluence.Space = "ENG"

	client := NewFromConfig(cfg, &config.Credentials{ConfluenceEmail: "me", ConfluenceToken: "t"})
	assert.Equal(t, "https://wiki.example.com", client.baseURL)
	assert.Equal(t, models.BodyFormatStorage, client.bodyFormat)
	assert.Equal(t, 25, client.pageSize)
}

func TestLabelQuery(t *testing.T) {
	assert.Equal(t, `type = "page" AND label = "app:a\"b"`, labelQuery(`app:a"b`))
}

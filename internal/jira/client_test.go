package jira

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func issueDoc(key, status, issueType string, fields map[string]any) map[string]any {
	f := map[string]any{
		"summary":     "Summary of " + key,
		"status":      map[string]any{"name": status},
		"issuetype":   map[string]any{"name": issueType},
		"project":     map[string]any{"key": strings.Split(key, "-")[0]},
		"description": "Description of " + key,
	}
	for k, v := range fields {
		f[k] = v
	}
	return map[string]any{"key": key, "fields": f}
}

func newTestClient(t *testing.T, handler http.Handler, pageSize int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "me@example.com", "secret", pageSize)
	require.NoError(t, err)
	return client
}

func TestFetchIssuesCompanyManaged(t *testing.T) {
	var jqls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/project/SMP", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"key": "SMP", "simplified": false})
	})
	mux.HandleFunc("/rest/api/2/field", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": "summary", "name": "Summary"},
			{"id": "customfield_10014", "name": "Epic Link"},
			{"id": "customfield_10020", "name": "Acceptance Criteria"},
		})
	})
	mux.HandleFunc("/rest/api/3/search/jql", func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		assert.Equal(t, "me@example.com", user)

		jql := r.URL.Query().Get("jql")
		jqls = append(jqls, jql)
		assert.Contains(t, r.URL.Query().Get("fields"), "customfield_10014")
		assert.Contains(t, r.URL.Query().Get("fields"), "customfield_10020")

		var issues []any
		switch {
		case strings.Contains(jql, `status = "READY FOR GENERATE"`):
			issues = append(issues, issueDoc("SMP-15", "READY FOR GENERATE", "Story", map[string]any{
				"customfield_10014": "SMP-1",
				"customfield_10020": "- works",
			}))
		case strings.HasPrefix(jql, "key in (SMP-16)"):
			issues = append(issues, issueDoc("SMP-16", "In Progress", "Story", map[string]any{"customfield_10020": nil}))
		case strings.HasPrefix(jql, "key in (SMP-1)"):
			issues = append(issues, issueDoc("SMP-1", "Done", "Epic", nil))
		}
		writeJSON(w, map[string]any{"issues": issues, "isLast": true})
	})

	client := newTestClient(t, mux, 50)
	result, err := client.FetchIssues(context.Background(), Query{
		ProjectKey:  "SMP",
		ReadyStatus: "READY FOR GENERATE",
		ProjectMode: ModeAuto,
		Fields:      map[string]string{"acceptance_criteria": "acceptance criteria"},
		Keys:        []string{"smp-16"},
	})
	require.NoError(t, err)

	assert.Equal(t, ModeCompany, result.ProjectMode)
	require.Len(t, result.Issues, 3)

	smp15 := result.Issues[0]
	assert.Equal(t, "SMP-15", smp15.Key)
	assert.Equal(t, "SMP", smp15.ProjectKey)
	assert.Equal(t, "SMP-1", smp15.EpicKey)
	assert.Equal(t, "READY FOR GENERATE", smp15.Status)
	assert.Equal(t, client.baseURL+"/browse/SMP-15", smp15.URL)
	assert.JSONEq(t, `"Description of SMP-15"`, string(smp15.Description))
	assert.JSONEq(t, `"- works"`, string(smp15.Fields["acceptance_criteria"]))

	assert.Equal(t, "SMP-16", result.Issues[1].Key)
	assert.Nil(t, result.Issues[1].Fields)
	assert.Equal(t, "SMP-1", result.Issues[2].Key)
	assert.True(t, result.Issues[2].IsEpic())

	assert.Equal(t, []string{
		`project = "SMP" AND status = "READY FOR GENERATE" ORDER BY key`,
		"key in (SMP-16) ORDER BY key",
		"key in (SMP-1) ORDER BY key",
	}, jqls)
}

func TestFetchIssuesTeamManagedSiblings(t *testing.T) {
	var jqls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/project/TM", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"key": "TM", "simplified": true})
	})
	mux.HandleFunc("/rest/api/3/search/jql", func(w http.ResponseWriter, r *http.Request) {
		jql := r.URL.Query().Get("jql")
		jqls = append(jqls, jql)

		parent := map[string]any{"parent": map[string]any{"key": "TM-1"}}
		var issues []any
		switch {
		case strings.HasPrefix(jql, "project"):
		case strings.HasPrefix(jql, "key in (TM-3)"):
			issues = append(issues, issueDoc("TM-3", "To Do", "Story", parent))
		case strings.HasPrefix(jql, "parent in (TM-1)"):
			issues = append(issues,
				issueDoc("TM-2", "READY FOR GENERATE", "Story", parent),
				issueDoc("TM-3", "To Do", "Story", parent))
		case strings.HasPrefix(jql, "key in (TM-1)"):
			issues = append(issues, issueDoc("TM-1", "Open", "Epic", nil))
		}
		writeJSON(w, map[string]any{"issues": issues, "isLast": true})
	})

	client := newTestClient(t, mux, 50)
	result, err := client.FetchIssues(context.Background(), Query{
		ProjectKey:  "TM",
		ReadyStatus: "READY FOR GENERATE",
		Keys:        []string{"TM-3"},
		Siblings:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, ModeTeam, result.ProjectMode)
	keys := []string{}
	for _, i := range result.Issues {
		keys = append(keys, i.Key)
	}
	assert.Equal(t, []string{"TM-3", "TM-2", "TM-1"}, keys)
	assert.Equal(t, "TM-1", result.Issues[1].EpicKey)
	assert.Contains(t, jqls, "parent in (TM-1) ORDER BY key")
}

func TestSearchFallsBackOnGone(t *testing.T) {
	var starts []string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/search/jql", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessages":["gone"]}`, http.StatusGone)
	})
	mux.HandleFunc("/rest/api/3/search", func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		starts = append(starts, r.URL.Query().Get("startAt"))
		all := []any{
			issueDoc("SMP-1", "Ready", "Story", nil),
			issueDoc("SMP-2", "Ready", "Story", nil),
			issueDoc("SMP-3", "Ready", "Story", nil),
		}
		end := start + 2
		if end > len(all) {
			end = len(all)
		}
		writeJSON(w, map[string]any{"issues": all[start:end], "startAt": start, "total": len(all)})
	})

	client := newTestClient(t, mux, 2)
	issues, err := client.search(context.Background(), "project = SMP", nil)
	require.NoError(t, err)

	assert.Len(t, issues, 3)
	assert.Equal(t, []string{"0", "2"}, starts)
	assert.True(t, client.legacySearch)
}

func TestSearchFollowsNextPageToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/search/jql", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("nextPageToken") == "" {
			writeJSON(w, map[string]any{"issues": []any{issueDoc("SMP-1", "Ready", "Story", nil)}, "nextPageToken": "abc"})
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("nextPageToken"))
		writeJSON(w, map[string]any{"issues": []any{issueDoc("SMP-2", "Ready", "Story", nil)}, "isLast": true})
	})

	client := newTestClient(t, mux, 1)
	issues, err := client.search(context.Background(), "project = SMP", nil)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "SMP-2", issues[1].Key)
}

func TestSearchError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/search/jql", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad jql", http.StatusBadRequest)
	})

	_, err := newTestClient(t, mux, 10).search(context.Background(), "nonsense", nil)
	var jerr *Error
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, http.StatusBadRequest, jerr.StatusCode)
	assert.Equal(t, "bad jql", jerr.Body)
}

func TestPing(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/rest/api/2/myself", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"displayName": "Dana", "emailAddress": "dana@example.com"})
		})
		name, err := newTestClient(t, mux, 10).Ping(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Dana", name)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/rest/api/2/myself", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := newTestClient(t, mux, 10).Ping(context.Background())
		var jerr *Error
		require.True(t, errors.As(err, &jerr))
		assert.Equal(t, http.StatusUnauthorized, jerr.StatusCode)
	})
}

func TestProjectModeConfigured(t *testing.T) {
	// No handlers: a configured mode must not call Jira.
	client := newTestClient(t, http.NewServeMux(), 10)

	tests := []struct {
		configured string
		want       string
	}{
		{configured: "company", want: ModeCompany},
		{configured: " Team ", want: ModeTeam},
	}
	for _, tt := range tests {
		t.Run(tt.configured, func(t *testing.T) {
			got, err := client.ProjectMode(context.Background(), "SMP", tt.configured)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveFields(t *testing.T) {
	mux := http.NewServeMux()
	calls := 0
	mux.HandleFunc("/rest/api/2/field", func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, []map[string]any{
			{"id": "customfield_1", "name": "Acceptance Criteria"},
			{"id": "customfield_2", "name": "Team"},
		})
	})
	client := newTestClient(t, mux, 10)

	got, err := client.ResolveFields(context.Background(), map[string]string{
		"acceptance_criteria": " acceptance criteria ",
		"team":                "customfield_2",
		"unknown":             "Nope",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"acceptance_criteria": "customfield_1", "team": "customfield_2"}, got)

	epic, err := client.EpicLinkField(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "", epic)
	assert.Equal(t, 1, calls)
}

func TestEpicLinkValue(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: `"SMP-1"`, want: "SMP-1"},
		{raw: `{"key":"SMP-2"}`, want: "SMP-2"},
		{raw: `null`, want: ""},
		{raw: `42`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, epicLinkValue(json.RawMessage(tt.raw)))
		})
	}
}

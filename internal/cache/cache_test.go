package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielolaszy/archprompt/internal/jira"
	"github.com/danielolaszy/archprompt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreTTL(t *testing.T) {
	s := openStore(t, time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(pagesBucket, "k", []string{"a", "b"}))

	var got []string
	hit, err := s.Get(pagesBucket, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a", "b"}, got)

	now = now.Add(2 * time.Hour)
	hit, err = s.Get(pagesBucket, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = s.Get(pagesBucket, "missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	_, err = s.Get("nope", "k", &got)
	assert.Error(t, err)
}

func TestStorePurge(t *testing.T) {
	s := openStore(t, 0)
	require.NoError(t, s.Put(issuesBucket, "k", 1))
	require.NoError(t, s.Purge())

	var got int
	hit, err := s.Get(issuesBucket, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

type fakePages struct {
	arc42Calls int
	adrCalls   int
	page       *models.RawPage
	err        error
}

func (f *fakePages) FetchArc42(ctx context.Context, appLabel, arc42Label string) (*models.RawPage, error) {
	f.arc42Calls++
	return f.page, f.err
}

func (f *fakePages) FetchADRs(ctx context.Context, appLabel, adrLabel string, maxItems int) ([]models.RawPage, error) {
	f.adrCalls++
	return []models.RawPage{{ID: "9", Title: "ADR-1", Label: adrLabel}}, f.err
}

func TestPages(t *testing.T) {
	t.Run("Caches pages", func(t *testing.T) {
		next := &fakePages{page: &models.RawPage{ID: "1", Title: "arc42", Body: "<h2>Goals</h2>"}}
		pages := NewPages(next, openStore(t, time.Hour), "wiki|ENG")

		for i := 0; i < 2; i++ {
			page, err := pages.FetchArc42(context.Background(), "app:billing", "arc42")
			require.NoError(t, err)
			assert.Equal(t, "<h2>Goals</h2>", page.Body)

			adrs, err := pages.FetchADRs(context.Background(), "app:billing", "adr", 10)
			require.NoError(t, err)
			assert.Equal(t, "ADR-1", adrs[0].Title)
		}
		assert.Equal(t, 1, next.arc42Calls)
		assert.Equal(t, 1, next.adrCalls)
	})

	t.Run("Caches missing page", func(t *testing.T) {
		next := &fakePages{}
		pages := NewPages(next, openStore(t, time.Hour), "wiki|ENG")

		for i := 0; i < 2; i++ {
			page, err := pages.FetchArc42(context.Background(), "app:billing", "arc42")
			require.NoError(t, err)
			assert.Nil(t, page)
		}
		assert.Equal(t, 1, next.arc42Calls)
	})

	t.Run("Does not cache errors", func(t *testing.T) {
		next := &fakePages{err: errors.New("boom")}
		pages := NewPages(next, openStore(t, time.Hour), "wiki|ENG")

		for i := 0; i < 2; i++ {
			_, err := pages.FetchArc42(context.Background(), "app:billing", "arc42")
			assert.Error(t, err)
		}
		assert.Equal(t, 2, next.arc42Calls)
	})
}

type fakeIssues struct {
	calls int
}

func (f *fakeIssues) FetchIssues(ctx context.Context, q jira.Query) (*jira.Result, error) {
	f.calls++
	return &jira.Result{
		Issues:      []models.RawIssue{{Key: "SMP-15", Status: q.ReadyStatus}},
		ProjectMode: jira.ModeCompany,
	}, nil
}

func TestIssues(t *testing.T) {
	next := &fakeIssues{}
	issues := NewIssues(next, openStore(t, time.Hour), "https://jira")

	q := jira.Query{ProjectKey: "SMP", ReadyStatus: "READY", Keys: []string{"SMP-2", "smp-1"}}
	for i := 0; i < 2; i++ {
		got, err := issues.FetchIssues(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, "SMP-15", got.Issues[0].Key)
		assert.Equal(t, jira.ModeCompany, got.ProjectMode)
	}
	assert.Equal(t, 1, next.calls)

	// Same keys in another order share the entry; another status does not.
	_, err := issues.FetchIssues(context.Background(), jira.Query{ProjectKey: "SMP", ReadyStatus: "READY", Keys: []string{"SMP-1", "SMP-2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	_, err = issues.FetchIssues(context.Background(), jira.Query{ProjectKey: "SMP", ReadyStatus: "DONE"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

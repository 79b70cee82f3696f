package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/danielolaszy/archprompt/internal/jira"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/pkg/models"
)

// PageFetcher loads Confluence pages.
type PageFetcher interface {
	FetchArc42(ctx context.Context, appLabel, arc42Label string) (*models.RawPage, error)
	FetchADRs(ctx context.Context, appLabel, adrLabel string, maxItems int) ([]models.RawPage, error)
}

// IssueFetcher loads Jira issues.
type IssueFetcher interface {
	FetchIssues(ctx context.Context, q jira.Query) (*jira.Result, error)
}

// Pages caches a PageFetcher.
type Pages struct {
	next  PageFetcher
	store *Store
	scope string
}

// NewPages wraps next. scope separates entries of different sites and
// spaces in one cache file.
func NewPages(next PageFetcher, store *Store, scope string) *Pages {
	return &Pages{next: next, store: store, scope: scope}
}

// arc42Result wraps the page so a missing page is cached too.
type arc42Result struct {
	Page *models.RawPage `json:"page"`
}

func (p *Pages) FetchArc42(ctx context.Context, appLabel, arc42Label string) (*models.RawPage, error) {
	key := strings.Join([]string{p.scope, "arc42", appLabel, arc42Label}, "|")

	var cached arc42Result
	if hit := lookup(p.store, pagesBucket, key, &cached); hit {
		return cached.Page, nil
	}

	page, err := p.next.FetchArc42(ctx, appLabel, arc42Label)
	if err != nil {
		return nil, err
	}
	store(p.store, pagesBucket, key, arc42Result{Page: page})
	return page, nil
}

func (p *Pages) FetchADRs(ctx context.Context, appLabel, adrLabel string, maxItems int) ([]models.RawPage, error) {
	key := strings.Join([]string{p.scope, "adr", appLabel, adrLabel, fmt.Sprint(maxItems)}, "|")

	var cached []models.RawPage
	if hit := lookup(p.store, pagesBucket, key, &cached); hit {
		return cached, nil
	}

	pages, err := p.next.FetchADRs(ctx, appLabel, adrLabel, maxItems)
	if err != nil {
		return nil, err
	}
	store(p.store, pagesBucket, key, pages)
	return pages, nil
}

// Issues caches an IssueFetcher.
type Issues struct {
	next  IssueFetcher
	store *Store
	scope string
}

// NewIssues wraps next. scope separates entries of different Jira sites.
func NewIssues(next IssueFetcher, store *Store, scope string) *Issues {
	return &Issues{next: next, store: store, scope: scope}
}

func (i *Issues) FetchIssues(ctx context.Context, q jira.Query) (*jira.Result, error) {
	key := i.scope + "|" + queryKey(q)

	var cached jira.Result
	if hit := lookup(i.store, issuesBucket, key, &cached); hit {
		return &cached, nil
	}

	result, err := i.next.FetchIssues(ctx, q)
	if err != nil {
		return nil, err
	}
	store(i.store, issuesBucket, key, result)
	return result, nil
}

// queryKey is a stable rendering of q.
func queryKey(q jira.Query) string {
	keys := make([]string, len(q.Keys))
	for i, k := range q.Keys {
		keys[i] = strings.ToUpper(strings.TrimSpace(k))
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(q.Fields))
	for logical, name := range q.Fields {
		fields = append(fields, logical+"="+name)
	}
	sort.Strings(fields)

	return strings.Join([]string{
		q.ProjectKey,
		q.ReadyStatus,
		q.ProjectMode,
		q.EpicLinkField,
		strings.Join(fields, ","),
		strings.Join(keys, ","),
		fmt.Sprint(q.Siblings),
	}, "|")
}

// lookup and store never fail a run: cache problems are logged and the
// fetch goes to the network.
func lookup(s *Store, bucket, key string, v any) bool {
	hit, err := s.Get(bucket, key, v)
	if err != nil {
		logging.Warn("cache read failed", "bucket", bucket, "key", key, "error", err)
		return false
	}
	if hit {
		logging.Debug("cache hit", "bucket", bucket, "key", key)
	}
	return hit
}

func store(s *Store, bucket, key string, v any) {
	if err := s.Put(bucket, key, v); err != nil {
		logging.Warn("cache write failed", "bucket", bucket, "key", key, "error", err)
	}
}

// Package github lists repository files through the GitHub API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/internal/payload"
	"github.com/danielolaszy/archprompt/internal/workspace"
	"github.com/google/go-github/v41/github"
	"golang.org/x/oauth2"
)

// SourceGitHub marks listings made through the GitHub API.
const SourceGitHub = "github"

// Client encapsulates the GitHub API client and the repository it lists.
type Client struct {
	client *github.Client
	owner  string
	repo   string
	ref    string
}

// NewClient creates a GitHub client for repository ("owner/repo"). An empty
// token creates an unauthenticated client, enough for public repositories.
// domain selects a GitHub Enterprise host; a value with a scheme is used as
// the API URL as is.
func NewClient(repository, ref, domain, token string) (*Client, error) {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}

	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	} else {
		logging.Warn("no github token set, using unauthenticated requests")
	}
	client := github.NewClient(httpClient)

	apiURL := apiURLFor(domain)
	if apiURL != "" {
		parsedURL, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = parsedURL
		client.UploadURL = parsedURL
	}

	logging.Debug("github configuration",
		"repository", repository,
		"ref", ref,
		"api_url", client.BaseURL.String(),
		"token", logging.MaskSensitive(token))

	return &Client{client: client, owner: owner, repo: repo, ref: ref}, nil
}

// NewFromConfig creates a client from the manifest and credentials.
func NewFromConfig(cfg *config.ProjectConfig, creds *config.Credentials) (*Client, error) {
	return NewClient(cfg.GitHub.Repository, cfg.GitHub.Ref, cfg.GitHub.Domain, creds.GitHubToken)
}

// apiURLFor returns the API URL of domain, or "" for github.com.
func apiURLFor(domain string) string {
	domain = strings.TrimSpace(domain)
	switch {
	case domain == "" || domain == "github.com":
		return ""
	case strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://"):
		return strings.TrimRight(domain, "/") + "/api/v3/"
	default:
		return fmt.Sprintf("https://%s/api/v3/", domain)
	}
}

func splitRepository(repository string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(repository), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format: %s, expected format: owner/repo", repository)
	}
	return parts[0], parts[1], nil
}

// Ref returns the configured ref, or the default branch of the repository.
func (c *Client) Ref(ctx context.Context) (string, error) {
	if c.ref != "" {
		return c.ref, nil
	}
	repo, _, err := c.client.Repositories.Get(ctx, c.owner, c.repo)
	if err != nil {
		return "", fmt.Errorf("failed to get github repository %s/%s: %w", c.owner, c.repo, err)
	}
	c.ref = repo.GetDefaultBranch()
	logging.Debug("using default branch", "ref", c.ref)
	return c.ref, nil
}

// ListFiles lists the files below root (a repository-relative directory,
// empty for the whole repository) at the configured ref.
func (c *Client) ListFiles(ctx context.Context, root string) (payload.Repository, error) {
	ref, err := c.Ref(ctx)
	if err != nil {
		return payload.Repository{}, err
	}

	tree, _, err := c.client.Git.GetTree(ctx, c.owner, c.repo, ref, true)
	if err != nil {
		return payload.Repository{}, fmt.Errorf("failed to get github tree %s/%s@%s: %w", c.owner, c.repo, ref, err)
	}
	if tree.GetTruncated() {
		logging.Warn("github tree is truncated", "repository", c.owner+"/"+c.repo, "entries", len(tree.Entries))
	}

	prefix := cleanRoot(root)
	files := []string{}
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		p := entry.GetPath()
		if prefix != "" && !strings.HasPrefix(p, prefix+"/") {
			continue
		}
		if skipped(p) {
			continue
		}
		files = append(files, p)
	}

	logging.Info("listed github files", "repository", c.owner+"/"+c.repo, "ref", ref, "root", prefix, "count", len(files))
	return payload.Repository{
		Source: SourceGitHub,
		Ref:    ref,
		Root:   prefix,
		Files:  files,
	}, nil
}

func cleanRoot(root string) string {
	root = path.Clean("/" + strings.ReplaceAll(root, "\\", "/"))
	return strings.TrimPrefix(root, "/")
}

// skipped reports whether a path lies in a directory that is never listed.
func skipped(p string) bool {
	dirs := strings.Split(p, "/")
	for _, d := range dirs[:len(dirs)-1] {
		if workspace.SkipDir(d) {
			return true
		}
	}
	return false
}

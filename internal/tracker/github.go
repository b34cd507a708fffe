// Package tracker implements the alert channel against GitHub Issues.
// Deduplication relies on a machine-readable key line embedded in each
// alert body; finding an open issue that carries the key means the incident
// is already reported and nothing new is created.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/ironverse/guardian/internal/engine"
	"github.com/ironverse/guardian/internal/models"
)

// GitHub raises alerts as issues in a tracking repository. The tracking
// repository is normally the access-isolated guardian repo, not the
// monitored one, so an attacker with write access to the target cannot
// close or tamper with alerts.
type GitHub struct {
	client  *github.Client
	owner   string
	repo    string
	timeout time.Duration
}

// NewGitHub builds a tracker for owner/repo. An empty token yields an
// unauthenticated client; calls will fail at use time and surface as the
// non-fatal tracker-unavailable condition.
func NewGitHub(owner, repo, token string, timeout time.Duration) *GitHub {
	httpClient := oauth2.NewClient(context.Background(), nil)
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), src)
	}
	return &GitHub{
		client:  github.NewClient(httpClient),
		owner:   owner,
		repo:    repo,
		timeout: timeout,
	}
}

func (g *GitHub) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// FindOpen searches open issues whose body carries the dedup marker line.
func (g *GitHub) FindOpen(ctx context.Context, marker string) (*engine.Issue, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("repo:%s/%s is:issue is:open %q in:body", g.owner, g.repo, marker)
	result, _, err := g.client.Search.Issues(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}
	if len(result.Issues) == 0 {
		return nil, nil
	}
	issue := result.Issues[0]
	return &engine.Issue{
		Number: issue.GetNumber(),
		URL:    issue.GetHTMLURL(),
	}, nil
}

// Create opens a new alert issue.
func (g *GitHub) Create(ctx context.Context, record models.AlertRecord) (*engine.Issue, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	labels := record.Labels
	issue, _, err := g.client.Issues.Create(ctx, g.owner, g.repo, &github.IssueRequest{
		Title:  github.Ptr(record.Title),
		Body:   github.Ptr(record.Body),
		Labels: &labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	return &engine.Issue{
		Number: issue.GetNumber(),
		URL:    issue.GetHTMLURL(),
	}, nil
}

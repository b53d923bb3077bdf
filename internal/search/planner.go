package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/codetrawl/internal/logging"
	"github.com/fyrsmithlabs/codetrawl/internal/metrics"
)

// ErrRateLimited indicates the search rate budget is exhausted. The
// planner stops producing descriptors; tasks already admitted into the
// pipeline are unaffected.
var ErrRateLimited = errors.New("search rate limit exceeded")

// lowBudgetThreshold triggers a warning when the remaining search
// request budget drops below it.
const lowBudgetThreshold = 5

// Descriptor identifies one remote repository matched by the search.
type Descriptor struct {
	Owner    string
	Name     string
	CloneURL string
}

// ID returns the owner/name identity used for logging and admission.
func (d Descriptor) ID() string {
	return d.Owner + "/" + d.Name
}

// repositorySearcher is the slice of the GitHub API the planner needs.
// *github.SearchService satisfies it.
type repositorySearcher interface {
	Repositories(ctx context.Context, query string, opts *github.SearchOptions) (*github.RepositoriesSearchResult, *github.Response, error)
}

// Planner produces a lazy sequence of repository descriptors by paging
// through the GitHub repository search API. It is restartable from
// scratch but not resumable mid-stream.
type Planner struct {
	searcher repositorySearcher
	limiter  *rate.Limiter
	log      *logging.Logger
	query    string
	perPage  int
}

// NewPlanner builds a planner for the given filter. The query string is
// assembled eagerly so malformed filters fail before any repository
// work begins.
func NewPlanner(client *github.Client, f Filter, perPage int, log *logging.Logger) (*Planner, error) {
	query, err := f.QueryString()
	if err != nil {
		return nil, err
	}
	return &Planner{
		searcher: client.Search,
		// GitHub allows 30 search requests per minute.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		log:     log.Named("planner"),
		query:   query,
		perPage: perPage,
	}, nil
}

// Query returns the assembled search query string.
func (p *Planner) Query() string {
	return p.query
}

// Run pages through search results, sending one descriptor per matching
// repository to out. It stops when a page comes back empty, the context
// is canceled, or the rate budget is exhausted (ErrRateLimited). The
// caller owns the channel and closes it after Run returns.
//
// Descriptors are deduplicated by (owner, name): result pages can shift
// while a query runs, and each repository must enter the pipeline at
// most once.
func (p *Planner) Run(ctx context.Context, out chan<- Descriptor) error {
	opts := &github.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: p.perPage, Page: 1},
	}

	seen := make(map[string]bool)
	total := 0

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("canceled while pacing search requests: %w", err)
		}

		result, resp, err := p.searcher.Repositories(ctx, p.query, opts)
		if err != nil {
			if isRateLimitError(err, resp) {
				p.log.Warn("search rate limit exhausted, stopping pagination",
					zap.Int("descriptors_produced", total))
				return ErrRateLimited
			}
			return fmt.Errorf("repository search failed: %w", err)
		}

		metrics.SearchPages.Inc()
		p.logBudget(resp, opts.Page)

		if len(result.Repositories) == 0 {
			break
		}

		for _, repo := range result.Repositories {
			desc, ok := descriptorFromRepo(repo)
			if !ok {
				p.log.Warn("skipping repository with incomplete identity",
					zap.String("name", repo.GetFullName()))
				continue
			}
			if seen[desc.ID()] {
				continue
			}
			seen[desc.ID()] = true

			select {
			case out <- desc:
				total++
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	p.log.Info("search complete", zap.Int("repositories", total))
	return nil
}

// descriptorFromRepo extracts the identifying tuple from a search item.
func descriptorFromRepo(repo *github.Repository) (Descriptor, bool) {
	desc := Descriptor{
		Owner:    repo.GetOwner().GetLogin(),
		Name:     repo.GetName(),
		CloneURL: repo.GetCloneURL(),
	}
	if desc.Owner == "" || desc.Name == "" || desc.CloneURL == "" {
		return Descriptor{}, false
	}
	return desc, true
}

// logBudget reports the remaining search request budget after a page.
func (p *Planner) logBudget(resp *github.Response, page int) {
	if resp == nil {
		return
	}
	remaining := resp.Rate.Remaining
	p.log.Trace("fetched search page",
		zap.Int("page", page),
		zap.Int("budget_remaining", remaining))
	if remaining > 0 && remaining < lowBudgetThreshold {
		p.log.Warn("search request budget running low",
			zap.Int("remaining", remaining),
			zap.Time("reset", resp.Rate.Reset.Time))
	}
}

// isRateLimitError classifies primary and secondary rate limit
// responses from the search API.
func isRateLimitError(err error, resp *github.Response) bool {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var arle *github.AbuseRateLimitError
	if errors.As(err, &arle) {
		return true
	}
	if resp != nil && resp.Response != nil {
		code := resp.Response.StatusCode
		if code == http.StatusTooManyRequests {
			return true
		}
		// Forbidden with rate info is a secondary rate limit.
		if code == http.StatusForbidden && resp.Rate.Limit > 0 && resp.Rate.Remaining == 0 {
			return true
		}
	}
	return false
}

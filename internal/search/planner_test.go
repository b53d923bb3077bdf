package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/codetrawl/internal/logging"
)

type fakeSearcher struct {
	pages []searchPage
	calls int
}

type searchPage struct {
	repos    []*github.Repository
	nextPage int
	err      error
	resp     *github.Response
}

func (f *fakeSearcher) Repositories(ctx context.Context, query string, opts *github.SearchOptions) (*github.RepositoriesSearchResult, *github.Response, error) {
	if f.calls >= len(f.pages) {
		return nil, nil, fmt.Errorf("unexpected call %d", f.calls)
	}
	page := f.pages[f.calls]
	f.calls++

	if page.err != nil {
		return nil, page.resp, page.err
	}
	resp := page.resp
	if resp == nil {
		resp = &github.Response{NextPage: page.nextPage}
	}
	return &github.RepositoriesSearchResult{Repositories: page.repos}, resp, nil
}

func repo(owner, name string) *github.Repository {
	return &github.Repository{
		Owner:    &github.User{Login: github.String(owner)},
		Name:     github.String(name),
		CloneURL: github.String("https://github.com/" + owner + "/" + name + ".git"),
	}
}

func newTestPlanner(t *testing.T, searcher repositorySearcher) *Planner {
	t.Helper()
	return &Planner{
		searcher: searcher,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		log:      logging.NewTestLogger().Logger,
		query:    "mpi language:fortran",
		perPage:  100,
	}
}

func collect(t *testing.T, p *Planner) ([]Descriptor, error) {
	t.Helper()
	out := make(chan Descriptor, 100)
	err := p.Run(context.Background(), out)
	close(out)
	var descs []Descriptor
	for d := range out {
		descs = append(descs, d)
	}
	return descs, err
}

func TestPlannerPaginates(t *testing.T) {
	searcher := &fakeSearcher{pages: []searchPage{
		{repos: []*github.Repository{repo("alice", "solver"), repo("bob", "mesh")}, nextPage: 2},
		{repos: []*github.Repository{repo("carol", "fft")}, nextPage: 0},
	}}

	descs, err := collect(t, newTestPlanner(t, searcher))
	require.NoError(t, err)
	require.Len(t, descs, 3)
	assert.Equal(t, "alice/solver", descs[0].ID())
	assert.Equal(t, "bob/mesh", descs[1].ID())
	assert.Equal(t, "carol/fft", descs[2].ID())
	assert.Equal(t, 2, searcher.calls)
}

func TestPlannerDeduplicates(t *testing.T) {
	// Result pages can shift between requests; a repository seen on
	// page one may reappear on page two.
	searcher := &fakeSearcher{pages: []searchPage{
		{repos: []*github.Repository{repo("alice", "solver")}, nextPage: 2},
		{repos: []*github.Repository{repo("alice", "solver"), repo("bob", "mesh")}, nextPage: 0},
	}}

	descs, err := collect(t, newTestPlanner(t, searcher))
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "alice/solver", descs[0].ID())
	assert.Equal(t, "bob/mesh", descs[1].ID())
}

func TestPlannerStopsOnEmptyPage(t *testing.T) {
	searcher := &fakeSearcher{pages: []searchPage{
		{repos: []*github.Repository{repo("alice", "solver")}, nextPage: 2},
		{repos: nil, nextPage: 3},
	}}

	descs, err := collect(t, newTestPlanner(t, searcher))
	require.NoError(t, err)
	assert.Len(t, descs, 1)
	assert.Equal(t, 2, searcher.calls)
}

func TestPlannerSkipsIncompleteRepos(t *testing.T) {
	anon := &github.Repository{Name: github.String("orphan")}
	searcher := &fakeSearcher{pages: []searchPage{
		{repos: []*github.Repository{anon, repo("alice", "solver")}, nextPage: 0},
	}}

	descs, err := collect(t, newTestPlanner(t, searcher))
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "alice/solver", descs[0].ID())
}

func TestPlannerRateLimited(t *testing.T) {
	searcher := &fakeSearcher{pages: []searchPage{
		{repos: []*github.Repository{repo("alice", "solver")}, nextPage: 2},
		{err: &github.RateLimitError{}},
	}}

	descs, err := collect(t, newTestPlanner(t, searcher))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, descs, 1)
}

func TestPlannerSearchError(t *testing.T) {
	searcher := &fakeSearcher{pages: []searchPage{
		{err: errors.New("boom")},
	}}

	_, err := collect(t, newTestPlanner(t, searcher))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "repository search failed")
}

func TestPlannerContextCanceled(t *testing.T) {
	searcher := &fakeSearcher{pages: []searchPage{
		{repos: []*github.Repository{repo("alice", "solver")}, nextPage: 0},
	}}
	p := newTestPlanner(t, searcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Descriptor) // unbuffered, nobody receiving
	err := p.Run(ctx, out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRateLimitError(t *testing.T) {
	forbidden := &github.Response{
		Response: &http.Response{StatusCode: http.StatusForbidden},
		Rate:     github.Rate{Limit: 30, Remaining: 0},
	}
	tooMany := &github.Response{
		Response: &http.Response{StatusCode: http.StatusTooManyRequests},
	}
	plainForbidden := &github.Response{
		Response: &http.Response{StatusCode: http.StatusForbidden},
	}

	assert.True(t, isRateLimitError(&github.RateLimitError{}, nil))
	assert.True(t, isRateLimitError(&github.AbuseRateLimitError{}, nil))
	assert.True(t, isRateLimitError(errors.New("x"), tooMany))
	assert.True(t, isRateLimitError(errors.New("x"), forbidden))
	assert.False(t, isRateLimitError(errors.New("x"), plainForbidden))
	assert.False(t, isRateLimitError(errors.New("x"), nil))
}

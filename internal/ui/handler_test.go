package ui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	crawlinfo "github.com/thep200/repo-harvester/internal/crawl_info"
	"github.com/thep200/repo-harvester/internal/model"
	"github.com/thep200/repo-harvester/pkg/log"
)

type fixedStatus crawlinfo.Report

func (s fixedStatus) Snapshot() crawlinfo.Report { return crawlinfo.Report(s) }

type fakeRepos struct {
	repos  []model.Repository
	total  int64
	err    error
	limit  int
	offset int
	search string
}

func (f *fakeRepos) Top(_ context.Context, limit, offset int, search string) ([]model.Repository, error) {
	f.limit, f.offset, f.search = limit, offset, search
	return f.repos, f.err
}

func (f *fakeRepos) Count(context.Context, string) (int64, error) {
	return f.total, f.err
}

func newMux(status StatusSource, repos RepoLister) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(log.NopLogger{}, status, repos).RegisterRoutes(mux)
	return mux
}

func TestGetStatus(t *testing.T) {
	mux := newMux(fixedStatus{State: crawlinfo.StatePageActive, Target: 10, Persisted: 4}, &fakeRepos{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got crawlinfo.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, crawlinfo.StatePageActive, got.State)
	assert.Equal(t, 4, got.Persisted)
}

func TestGetRepos_PaginatesAndFilters(t *testing.T) {
	created := time.Date(2012, 5, 6, 0, 0, 0, 0, time.UTC)
	repos := &fakeRepos{
		repos: []model.Repository{{ID: 7, OwnerName: "golang", RepoName: "go", Stars: 120000, SourceCreatedAt: &created}},
		total: 51,
	}
	mux := newMux(fixedStatus{}, repos)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/repos?page=3&pageSize=10&search=go", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, repos.limit)
	assert.Equal(t, 20, repos.offset)
	assert.Equal(t, "go", repos.search)

	var got RepositoryList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Repositories, 1)
	assert.Equal(t, "golang", got.Repositories[0].Owner)
	assert.Equal(t, "2012-05-06", got.Repositories[0].CreatedAt)
	assert.EqualValues(t, 6, got.Pagination.TotalPages)
}

func TestGetRepos_DefaultsBadParameters(t *testing.T) {
	repos := &fakeRepos{}
	mux := newMux(fixedStatus{}, repos)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/repos?page=-1&pageSize=1000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultPageSize, repos.limit)
	assert.Zero(t, repos.offset)
}

func TestGetRepos_StoreError(t *testing.T) {
	mux := newMux(fixedStatus{}, &fakeRepos{err: errors.New("db down")})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/repos", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newMux(fixedStatus{}, &fakeRepos{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewServer_RejectsDisabledPort(t *testing.T) {
	_, err := NewServer(log.NopLogger{}, NewHandler(log.NopLogger{}, fixedStatus{}, &fakeRepos{}), 0)
	assert.Error(t, err)
}

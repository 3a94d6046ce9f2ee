package ui

import (
	"net/http"
	"strconv"
	"time"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

type Repository struct {
	ID          uint   `json:"id"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Stars       int    `json:"stars"`
	CreatedAt   string `json:"createdAt,omitempty"`
	LastUpdated string `json:"lastUpdated"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int64 `json:"totalPages"`
}

type RepositoryList struct {
	Repositories []Repository `json:"repositories"`
	Pagination   Pagination   `json:"pagination"`
}

func (h *Handler) getRepos(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	search := r.URL.Query().Get("search")
	offset := (page - 1) * pageSize

	repos, err := h.Repos.Top(r.Context(), pageSize, offset, search)
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to fetch repositories: %v", err)
		http.Error(w, "Failed to fetch repositories", http.StatusInternalServerError)
		return
	}

	total, err := h.Repos.Count(r.Context(), search)
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to count repositories: %v", err)
		http.Error(w, "Failed to count repositories", http.StatusInternalServerError)
		return
	}

	list := RepositoryList{
		Repositories: make([]Repository, 0, len(repos)),
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalCount: total,
			TotalPages: (total + int64(pageSize) - 1) / int64(pageSize),
		},
	}
	for _, repo := range repos {
		item := Repository{
			ID:          repo.ID,
			Owner:       repo.OwnerName,
			Name:        repo.RepoName,
			Stars:       repo.Stars,
			LastUpdated: repo.LastUpdated.UTC().Format(time.RFC3339),
		}
		if repo.SourceCreatedAt != nil {
			item.CreatedAt = repo.SourceCreatedAt.UTC().Format("2006-01-02")
		}
		list.Repositories = append(list.Repositories, item)
	}

	h.writeJSON(w, r, http.StatusOK, list)
}

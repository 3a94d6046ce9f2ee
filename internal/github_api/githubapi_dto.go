package githubapi

import "time"

// Pointer fields tell a missing key apart from a zero value.
type graphQLResponse struct {
	Data   *searchData    `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// GraphQLError is one entry of the top-level errors list. Path mixes field names and list
// indexes, e.g. ["search", 0, "name"].
type GraphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Path    []any  `json:"path"`
}

type searchData struct {
	Search *searchResult `json:"search"`
}

type searchResult struct {
	RepositoryCount *int               `json:"repositoryCount"`
	PageInfo        *pageInfo          `json:"pageInfo"`
	Nodes           *[]*repositoryNode `json:"nodes"`
}

type pageInfo struct {
	EndCursor   *string `json:"endCursor"`
	HasNextPage *bool   `json:"hasNextPage"`
}

type repositoryNode struct {
	Name           *string    `json:"name"`
	Owner          *ownerNode `json:"owner"`
	StargazerCount *int       `json:"stargazerCount"`
	CreatedAt      *time.Time `json:"createdAt"`
}

type ownerNode struct {
	Login *string `json:"login"`
}

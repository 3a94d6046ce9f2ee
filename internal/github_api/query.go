package githubapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/thep200/repo-harvester/internal/partition"
)

// searchDocument never changes between calls. Everything derived from input travels in
// the variables.
const searchDocument = `query SearchRepositories($q: String!, $first: Int!, $after: String) {
  search(query: $q, type: REPOSITORY, first: $first, after: $after) {
    repositoryCount
    pageInfo {
      endCursor
      hasNextPage
    }
    nodes {
      ... on Repository {
        name
        owner { login }
        stargazerCount
        createdAt
      }
    }
  }
}`

type QueryOptions struct {
	Filter   string
	PageSize int
}

type Variables struct {
	Q     string  `json:"q"`
	First int     `json:"first"`
	After *string `json:"after"`
}

type Query struct {
	Query     string    `json:"query"`
	Variables Variables `json:"variables"`
}

// BuildSearchQuery is pure: the same partition, cursor and options give the same query.
// An empty cursor asks for the first page.
func BuildSearchQuery(p partition.Partition, cursor string, opts QueryOptions) Query {
	q := Query{
		Query: searchDocument,
		Variables: Variables{
			Q:     SearchString(p, opts.Filter),
			First: opts.PageSize,
		},
	}
	if cursor != "" {
		after := cursor
		q.Variables.After = &after
	}
	return q
}

// SearchString restricts filter to repositories created inside [p.Start, p.End). The
// search range is inclusive, so the upper bound is the last second before End.
func SearchString(p partition.Partition, filter string) string {
	created := fmt.Sprintf("created:%s..%s",
		p.Start.UTC().Format(time.RFC3339),
		p.End.Add(-time.Second).UTC().Format(time.RFC3339))
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return created
	}
	return filter + " " + created
}

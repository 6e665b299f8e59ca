package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	// DefaultListLimit is used when the caller omits "limit".
	DefaultListLimit = 50
	// MaxListLimit is the upper bound the facade ever asks the upstream API for.
	MaxListLimit = 1000
)

// ListParams holds the parsed query parameters for a Kubernetes-native
// cursor-paged list: a page size and an opaque continue token handed back by
// the upstream API itself (unlike the teacher's own timestamp:uuid cursor,
// the cluster is the source of the cursor here — the facade never invents one).
type ListParams struct {
	Limit    int
	Continue string
}

// ParseListParams extracts list pagination parameters from the request.
func ParseListParams(r *http.Request) (ListParams, error) {
	p := ListParams{Limit: DefaultListLimit}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("limit must be a positive integer")
		}
		if n > MaxListLimit {
			n = MaxListLimit
		}
		p.Limit = n
	}

	p.Continue = r.URL.Query().Get("continue")
	return p, nil
}

// ListPage is the response envelope for a cursor-paged list.
type ListPage[T any] struct {
	Items    []T    `json:"items"`
	Continue string `json:"continue_token,omitempty"`
}

// --- Offset-based pagination; no route in this repository calls it ---

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// OffsetParams holds the parsed query parameters for offset-based pagination.
type OffsetParams struct {
	Page     int
	PageSize int
	Offset   int
}

// ParseOffsetParams extracts offset pagination parameters from the request.
func ParseOffsetParams(r *http.Request) (OffsetParams, error) {
	p := OffsetParams{Page: 1, PageSize: DefaultPageSize}

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("page must be a positive integer")
		}
		p.Page = n
	}

	if v := r.URL.Query().Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("page_size must be a positive integer")
		}
		if n > MaxPageSize {
			n = MaxPageSize
		}
		p.PageSize = n
	}

	p.Offset = (p.Page - 1) * p.PageSize
	return p, nil
}

// OffsetPage is the response envelope for offset-paginated results.
type OffsetPage[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewOffsetPage builds an OffsetPage from a result set and total count.
func NewOffsetPage[T any](items []T, params OffsetParams, totalItems int) OffsetPage[T] {
	totalPages := 0
	if params.PageSize > 0 {
		totalPages = (totalItems + params.PageSize - 1) / params.PageSize
	}

	return OffsetPage[T]{
		Items:      items,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

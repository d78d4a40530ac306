// Package pagination extracts and validates page/limit parameters from URL
// query strings and computes the offset used by store queries.
package pagination

import (
	"net/url"
	"strconv"
)

type Params struct {
	Page   int32
	Limit  int32
	Offset int32
}

const (
	MaxLimit     int32 = 100
	DefaultPage  int32 = 1
	DefaultLimit int32 = 50
)

// FromQuery reads "page" and "limit" from query values, clamping to sane
// bounds and computing the offset.
func FromQuery(q url.Values) Params {
	params := Params{
		Page:  DefaultPage,
		Limit: DefaultLimit,
	}

	if pageStr := q.Get("page"); pageStr != "" {
		if val, err := strconv.ParseInt(pageStr, 10, 64); err == nil && val > 0 {
			params.Page = int32(val)
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if val, err := strconv.ParseInt(limitStr, 10, 64); err == nil && val > 0 {
			params.Limit = int32(val)
		}
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	params.Offset = (params.Page - 1) * params.Limit
	return params
}

// HasNext reports whether more items exist beyond the current page.
func HasNext(offset, limit, count int32) bool {
	return (offset + limit) < count
}

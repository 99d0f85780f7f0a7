package filter

import "fmt"

// RequestBuilder provides a fluent API for assembling a FilterRequest in Go
// callers, mirroring the wire payload shape.
type RequestBuilder struct {
	request FilterRequest
	err     error
}

// NewRequestBuilder creates an empty builder.
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{request: FilterRequest{Filters: map[string]FilterDefinition{}}}
}

// Filter adds one atomic definition under the given key. The operator token
// may be a symbol, canonical code or custom code; the first invalid token
// sticks and surfaces from Build.
func (b *RequestBuilder) Filter(key, ref, op string, value any) *RequestBuilder {
	if b.err != nil {
		return b
	}
	if _, exists := b.request.Filters[key]; exists {
		b.err = &FilterDefinitionError{Key: key, Message: "duplicate filter key"}
		return b
	}
	def, err := NewDefinition(ref, op, value)
	if err != nil {
		b.err = err
		return b
	}
	b.request.Filters[key] = def
	return b
}

// CombineWith sets the boolean DSL expression over the filter keys.
func (b *RequestBuilder) CombineWith(expr string) *RequestBuilder {
	b.request.CombineWith = expr
	return b
}

// Project appends projection field specs.
func (b *RequestBuilder) Project(specs ...string) *RequestBuilder {
	b.request.Projection = append(b.request.Projection, specs...)
	return b
}

// Page sets the top-level pagination.
func (b *RequestBuilder) Page(page, size int) *RequestBuilder {
	if b.request.Pagination == nil {
		b.request.Pagination = &Pagination{}
	}
	b.request.Pagination.Page = page
	b.request.Pagination.Size = size
	return b
}

// SortBy appends a top-level sort key.
func (b *RequestBuilder) SortBy(field string, direction SortDirection) *RequestBuilder {
	if b.request.Pagination == nil {
		b.request.Pagination = &Pagination{Size: 20}
	}
	b.request.Pagination.Sort = append(b.request.Pagination.Sort, SortSpec{Field: field, Direction: direction})
	return b
}

// Build returns the assembled request or the first recorded error.
func (b *RequestBuilder) Build() (*FilterRequest, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.request.Filters) == 0 && b.request.CombineWith != "" {
		return nil, &FilterDefinitionError{Message: fmt.Sprintf("combineWith %q references no filters", b.request.CombineWith)}
	}
	if b.request.Pagination != nil {
		if b.request.Pagination.Page < 0 {
			return nil, &FilterDefinitionError{Message: "pagination page cannot be negative"}
		}
		if b.request.Pagination.Size < 1 {
			return nil, &FilterDefinitionError{Message: "pagination size must be at least 1"}
		}
	}
	return &b.request, nil
}

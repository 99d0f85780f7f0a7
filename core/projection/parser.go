// Package projection parses compact projection field specs into flat field
// lists and per-collection pagination options. A spec such as
//
//	books[size=10,page=0,sort=year:desc].title,year
//
// selects books.title and books.year while paginating the books collection
// inside each parent row.
package projection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cyfko/filterql/core/filter"
)

// DefinitionError reports a malformed projection spec or conflicting
// options declared for the same collection path.
type DefinitionError struct {
	Spec    string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.Spec == "" {
		return "projection: " + e.Message
	}
	return fmt.Sprintf("projection %q: %s", e.Spec, e.Message)
}

// Spec is the merged outcome of parsing a projection set: the expanded flat
// field paths (in first-appearance order, deduplicated) and one pagination
// per optioned collection path.
type Spec struct {
	Fields      []string
	Collections map[string]*filter.Pagination
}

// Has reports whether the field path was projected.
func (s *Spec) Has(path string) bool {
	for _, f := range s.Fields {
		if f == path {
			return true
		}
	}
	return false
}

// segment is one dot-separated piece of a spec with its bracket options.
type segment struct {
	name    string
	options *filter.Pagination
}

// ParseSet parses and merges a projection set. Options declared for the
// same collection path across entries must be identical; a disagreement is
// a conflicting-options error. maxPageSize bounds the per-collection size
// option; zero applies the default bound of 10000.
func ParseSet(specs []string, maxPageSize int) (*Spec, error) {
	if maxPageSize <= 0 {
		maxPageSize = 10000
	}
	merged := &Spec{Collections: map[string]*filter.Pagination{}}
	seen := map[string]struct{}{}
	for _, spec := range specs {
		fields, options, err := parseOne(spec, maxPageSize)
		if err != nil {
			return nil, err
		}
		for _, field := range fields {
			if _, dup := seen[field]; dup {
				continue
			}
			seen[field] = struct{}{}
			merged.Fields = append(merged.Fields, field)
		}
		for path, pagination := range options {
			if existing, ok := merged.Collections[path]; ok {
				if !existing.Equal(pagination) {
					return nil, &DefinitionError{Spec: spec, Message: fmt.Sprintf("conflicting options for collection %s", path)}
				}
				continue
			}
			merged.Collections[path] = pagination
		}
	}
	return merged, nil
}

// Parse parses a single projection entry into its expanded field paths and
// per-collection options.
func Parse(spec string, maxPageSize int) ([]string, map[string]*filter.Pagination, error) {
	if maxPageSize <= 0 {
		maxPageSize = 10000
	}
	return parseOne(spec, maxPageSize)
}

func parseOne(spec string, maxPageSize int) ([]string, map[string]*filter.Pagination, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil, &DefinitionError{Spec: spec, Message: "spec cannot be empty"}
	}

	parts, err := splitTopLevel(spec)
	if err != nil {
		return nil, nil, err
	}

	head := strings.TrimSpace(parts[0])
	segments, err := parseSegments(spec, head, maxPageSize)
	if err != nil {
		return nil, nil, err
	}

	options := map[string]*filter.Pagination{}
	var pathNames []string
	for _, seg := range segments {
		pathNames = append(pathNames, seg.name)
		if seg.options != nil {
			options[strings.Join(pathNames, ".")] = seg.options
		}
	}

	fields := []string{strings.Join(pathNames, ".")}

	// Remaining comma parts are sibling field names sharing the prefix of
	// the head path: "address.city,country" expands to address.city and
	// address.country.
	prefix := ""
	if len(pathNames) > 1 {
		prefix = strings.Join(pathNames[:len(pathNames)-1], ".") + "."
	}
	for _, part := range parts[1:] {
		name := strings.TrimSpace(part)
		if err := validateName(spec, name); err != nil {
			return nil, nil, err
		}
		fields = append(fields, prefix+name)
	}
	return fields, options, nil
}

// splitTopLevel splits on commas that sit outside bracket groups.
func splitTopLevel(spec string) ([]string, error) {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(spec); i++ {
		switch spec[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, &DefinitionError{Spec: spec, Message: "unbalanced bracket"}
			}
		case ',':
			if depth == 0 {
				parts = append(parts, spec[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, &DefinitionError{Spec: spec, Message: "unbalanced bracket"}
	}
	parts = append(parts, spec[start:])
	return parts, nil
}

func parseSegments(spec, head string, maxPageSize int) ([]segment, error) {
	var segments []segment
	depth := 0
	start := 0
	flush := func(raw string) error {
		seg, err := parseSegment(spec, raw, maxPageSize)
		if err != nil {
			return err
		}
		segments = append(segments, seg)
		return nil
	}
	for i := 0; i < len(head); i++ {
		switch head[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '.':
			if depth == 0 {
				if err := flush(head[start:i]); err != nil {
					return nil, err
				}
				start = i + 1
			}
		}
	}
	if err := flush(head[start:]); err != nil {
		return nil, err
	}
	return segments, nil
}

func parseSegment(spec, raw string, maxPageSize int) (segment, error) {
	raw = strings.TrimSpace(raw)
	open := strings.IndexByte(raw, '[')
	if open < 0 {
		if err := validateName(spec, raw); err != nil {
			return segment{}, err
		}
		return segment{name: raw}, nil
	}
	if !strings.HasSuffix(raw, "]") {
		return segment{}, &DefinitionError{Spec: spec, Message: "unbalanced bracket"}
	}
	name := strings.TrimSpace(raw[:open])
	if err := validateName(spec, name); err != nil {
		return segment{}, err
	}
	options, err := parseOptions(spec, raw[open+1:len(raw)-1], maxPageSize)
	if err != nil {
		return segment{}, err
	}
	return segment{name: name, options: options}, nil
}

// parseOptions parses the bracket body: comma-separated options where a
// token containing '=' starts a new option and bare tokens continue the
// sort list of a preceding sort option.
func parseOptions(spec, body string, maxPageSize int) (*filter.Pagination, error) {
	pagination := &filter.Pagination{}
	inSort := false
	for _, token := range strings.Split(body, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, &DefinitionError{Spec: spec, Message: "empty option"}
		}
		key, value, hasEq := strings.Cut(token, "=")
		if !hasEq {
			if !inSort {
				return nil, &DefinitionError{Spec: spec, Message: fmt.Sprintf("invalid option %q", token)}
			}
			sortSpec, err := parseSortSpec(spec, token)
			if err != nil {
				return nil, err
			}
			pagination.Sort = append(pagination.Sort, sortSpec)
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		inSort = false
		switch key {
		case "size":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return nil, &DefinitionError{Spec: spec, Message: fmt.Sprintf("size must be a positive integer, got %q", value)}
			}
			if n > maxPageSize {
				return nil, &DefinitionError{Spec: spec, Message: fmt.Sprintf("size %d exceeds maximum %d", n, maxPageSize)}
			}
			pagination.Size = n
		case "page":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, &DefinitionError{Spec: spec, Message: fmt.Sprintf("page must be a non-negative integer, got %q", value)}
			}
			pagination.Page = n
		case "sort":
			sortSpec, err := parseSortSpec(spec, value)
			if err != nil {
				return nil, err
			}
			pagination.Sort = append(pagination.Sort, sortSpec)
			inSort = true
		default:
			return nil, &DefinitionError{Spec: spec, Message: fmt.Sprintf("unknown option %q", key)}
		}
	}
	return pagination, nil
}

func parseSortSpec(spec, token string) (filter.SortSpec, error) {
	name, dir, hasDir := strings.Cut(token, ":")
	name = strings.TrimSpace(name)
	if err := validateName(spec, name); err != nil {
		return filter.SortSpec{}, err
	}
	direction := filter.SortAsc
	if hasDir {
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "asc":
			direction = filter.SortAsc
		case "desc":
			direction = filter.SortDesc
		default:
			return filter.SortSpec{}, &DefinitionError{Spec: spec, Message: fmt.Sprintf("invalid sort direction %q", dir)}
		}
	}
	return filter.SortSpec{Field: name, Direction: direction}, nil
}

func validateName(spec, name string) error {
	if name == "" {
		return &DefinitionError{Spec: spec, Message: "empty field name"}
	}
	for i, r := range name {
		valid := r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !valid {
			return &DefinitionError{Spec: spec, Message: fmt.Sprintf("invalid field name %q", name)}
		}
	}
	return nil
}

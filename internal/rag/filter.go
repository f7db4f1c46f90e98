package rag

// Filter is the metadata filter applied before nearest-neighbour ranking.
// All non-zero fields are combined conjunctively. Role is the one disjunctive
// case: a chunk matches when its role_visibility contains the role OR the
// wildcard "all". Implementations express that as a native OR where the
// backing index supports one.
type Filter struct {
	// DocumentID restricts retrieval to a single document when non-empty.
	// An explicit document pin ignores role and department scoping, so
	// callers building a pinned filter set only this field.
	DocumentID string

	// DocumentType restricts matches to one document type when non-empty.
	DocumentType string

	// Department restricts matches to one department when non-empty.
	Department string

	// Role restricts matches to chunks whose role_visibility contains this
	// role or "all". Empty means no role restriction.
	Role string
}

// IsZero reports whether the filter has no predicates at all.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// ForDocument returns a filter pinned to a single document. The pin overrides
// all scoping, so no other predicate is set.
func ForDocument(documentID string) Filter {
	return Filter{DocumentID: documentID}
}

// ForScope returns the role/department scoping filter used when no document
// is pinned. department may be empty when the originating module does not map
// to one.
func ForScope(role, department string) Filter {
	return Filter{Role: role, Department: department}
}

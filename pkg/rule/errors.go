package rule

import "errors"

var (
	// ErrUnknownPredicate indicates a predicate kind outside the dispatch table.
	ErrUnknownPredicate = errors.New("unknown predicate kind")

	// ErrRuleNotFound indicates the requested rule doesn't exist in the catalog.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateSlug indicates another rule already holds the slug. During
	// concurrent auto-generation this is a benign race, not a failure.
	ErrDuplicateSlug = errors.New("rule slug already exists")

	// ErrCategoryNotFound indicates an unknown rule category.
	ErrCategoryNotFound = errors.New("category not found")
)

package mssqllog

import (
	"fmt"
	"regexp"
)

// FilterOptions configures a post-reconstruction text search over recovered
// SQL rows.
type FilterOptions struct {
	Pattern       string
	CaseSensitive bool
	MaxResults    int
}

// Filter returns the subset of records whose Query text matches pattern, in
// original order, capped at MaxResults when positive. It exists so an
// operator recovering a large LDF can narrow the CSV output to rows
// mentioning a known table or value without re-running reconstruction.
func Filter(records []Reconstructed, opts FilterOptions) ([]Reconstructed, error) {
	pattern := opts.Pattern
	if !opts.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("mssqllog: invalid filter pattern: %w", err)
	}

	var matches []Reconstructed
	for _, r := range records {
		if !re.MatchString(r.Query) {
			continue
		}
		matches = append(matches, r)
		if opts.MaxResults > 0 && len(matches) >= opts.MaxResults {
			break
		}
	}
	return matches, nil
}

// QuickFilter is a convenience wrapper matching a literal substring,
// case-insensitively, with no result cap.
func QuickFilter(records []Reconstructed, literal string) ([]Reconstructed, error) {
	return Filter(records, FilterOptions{Pattern: regexp.QuoteMeta(literal)})
}

// Package scraper holds the types shared between the navigator and the
// session orchestrator: raw job cards, the tagged scrape error taxonomy, and
// the Navigator contract.
package scraper

import (
	"context"
	"errors"
	"fmt"
)

// JobCard is one raw listing as extracted from a search-result page, before
// scoring and normalization.
type JobCard struct {
	Title      string
	Company    string
	Location   string
	SalaryText string
	PostedText string
	DetailURL  string
	EasyApply  bool
	Promoted   bool
}

// Kind classifies a scrape failure. The orchestrator's retry/skip/abort
// decision is a match on this closed set, never on error message text.
type Kind string

const (
	KindNavigation Kind = "navigation"
	KindExtraction Kind = "extraction"
	KindRateLimit  Kind = "rate_limit"
	KindBlocked    Kind = "blocked"
	KindNetwork    Kind = "network"
	KindParsing    Kind = "parsing"
)

// Critical reports whether an error of this kind indicates detection or
// blocking by the scraped site. A critical error aborts the remaining pages
// of a session; non-critical kinds only cost the current page.
func (k Kind) Critical() bool {
	return k == KindBlocked || k == KindRateLimit
}

// Error is a scrape failure tagged at the point it is raised. Page is the
// 1-based target page when the failure is page-scoped, 0 otherwise.
type Error struct {
	Kind      Kind
	Page      int
	Retryable bool
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Page > 0 {
		return fmt.Sprintf("%s (page %d): %s", e.Kind, e.Page, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, page int, retryable bool, msg string, err error) *Error {
	return &Error{Kind: kind, Page: page, Retryable: retryable, Msg: msg, Err: err}
}

// AsError unwraps err into a tagged *Error, if it is one.
func AsError(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}

// IsRetryable reports whether err is a tagged scrape error marked retryable.
// Untagged errors are not retried.
func IsRetryable(err error) bool {
	se, ok := AsError(err)
	return ok && se.Retryable
}

// IsCritical reports whether err is a tagged scrape error of a critical kind.
func IsCritical(err error) bool {
	se, ok := AsError(err)
	return ok && se.Kind.Critical()
}

// Navigator drives a browser tab through search-result pages for the
// lifetime of one scraping session.
type Navigator interface {
	// NavigateToSearch loads the search URL under a fresh fingerprint and
	// verifies a results page was reached.
	NavigateToSearch(ctx context.Context, url string) error
	// DiscoverTotalPages inspects the pagination UI; returns 1 when no
	// pagination markers can be found.
	DiscoverTotalPages(ctx context.Context) int
	// GoToPage moves to the 1-based page n. No-op when already there.
	GoToPage(ctx context.Context, n int) error
	// HasNextPage reports whether an enabled "next" control is present.
	HasNextPage(ctx context.Context) bool
	// AdvanceToNextPage moves forward one page; false (not an error) when
	// there is no next page.
	AdvanceToNextPage(ctx context.Context) (bool, error)
	// ExtractJobCards pulls all job cards from the current page. Individual
	// malformed cards are skipped; a missing card container is an error.
	ExtractJobCards(ctx context.Context) ([]JobCard, error)
	// RotateFingerprint applies a fresh fingerprint to the underlying page.
	RotateFingerprint(ctx context.Context) error
}

// Package linkedin implements the search-result navigator: it drives a
// browser-automation page through LinkedIn job-search pages, humanizing every
// interaction through the anti-detection engine, and extracts raw job cards.
//
// The navigator classifies its own failures into the tagged scrape-error
// taxonomy but never decides what to do about them; retry, skip-page, and
// abort decisions belong to the session orchestrator.
package linkedin

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/antidetect"
	"github.com/adityawiguna/jobscout-api/internal/browser"
	"github.com/adityawiguna/jobscout-api/internal/scraper"
)

const (
	selResultsList  = "ul.jobs-search__results-list"
	selJobCard      = "div.base-card"
	selCardTitle    = "h3.base-search-card__title"
	selCardCompany  = "h4.base-search-card__subtitle"
	selCardLocation = "span.job-search-card__location"
	selCardPosted   = "time.job-search-card__listdate"
	selCardLink     = "a.base-card__full-link"
	selCardBenefits = "span.job-posting-benefits__text"
	selCardMetadata = "div.base-search-card__metadata"
	selSearchInput  = "input.jobs-search-box__text-input"
	selPagination   = "ul.artdeco-pagination__pages"
	selPageItem     = "ul.artdeco-pagination__pages li"
	selNextEnabled  = `button[aria-label="View next page"]:not([disabled])`
	selCaptcha      = "#captcha-internal"
	selAuthWall     = "div.authwall-join-form"
)

const defaultNavTimeout = 30 * time.Second

// State is the navigator's in-memory view of where it is. It is reset on
// every NavigateToSearch and discarded with the navigator; durable progress
// lives on the session record, not here.
type State struct {
	URL            string
	CurrentPage    int
	TotalPages     int
	HasNext        bool
	FiltersApplied bool
	LastCardIndex  int
}

type Navigator struct {
	page       browser.Page
	engine     *antidetect.Engine
	navTimeout time.Duration
	state      State
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithNavigationTimeout overrides the default 30s navigation/wait timeout.
func WithNavigationTimeout(d time.Duration) Option {
	return func(n *Navigator) {
		if d > 0 {
			n.navTimeout = d
		}
	}
}

// New creates a navigator for one scraping session. The engine must be the
// session's own instance; sharing one across sessions skews its counters.
func New(page browser.Page, engine *antidetect.Engine, opts ...Option) *Navigator {
	n := &Navigator{
		page:       page,
		engine:     engine,
		navTimeout: defaultNavTimeout,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// State returns a copy of the current navigation state.
func (n *Navigator) State() State { return n.state }

// NavigateToSearch loads the search URL under a fresh fingerprint, waits a
// human-like delay, and verifies a results page was actually reached. An
// unverifiable landing is the one non-retryable navigator failure.
func (n *Navigator) NavigateToSearch(ctx context.Context, searchURL string) error {
	n.state = State{URL: searchURL, CurrentPage: 1}

	if err := n.page.ApplyFingerprint(ctx, n.engine.Fingerprint()); err != nil {
		return scraper.NewError(scraper.KindNetwork, 0, true, "apply fingerprint", err)
	}

	resp, err := n.page.Navigate(ctx, searchURL, n.navTimeout)
	if err != nil {
		return scraper.NewError(scraper.KindNetwork, 0, true, "load search page", err)
	}
	if n.engine.IsRateLimited(resp.Elapsed, resp.Status) {
		return scraper.NewError(scraper.KindRateLimit, 0, true,
			fmt.Sprintf("search page load classified as rate limited (HTTP %d in %s)", resp.Status, resp.Elapsed), nil)
	}

	if err := n.sleep(ctx, n.engine.RandomDelay()); err != nil {
		return err
	}

	if err := n.checkBlocked(ctx); err != nil {
		return err
	}

	if n.onResultsPage(ctx) {
		return nil
	}

	// Some landings drop the query params and show a bare search box; apply
	// the keywords by typing before giving up.
	if n.applyKeywordFilter(ctx, searchURL) && n.onResultsPage(ctx) {
		return nil
	}

	return scraper.NewError(scraper.KindNavigation, 0, false, "landed page is not a job-search results page", nil)
}

func (n *Navigator) onResultsPage(ctx context.Context) bool {
	if cur, err := n.page.URL(ctx); err == nil && strings.Contains(cur, "/jobs") {
		if ok, err := n.page.Exists(ctx, selResultsList); err == nil && ok {
			return true
		}
	}
	return false
}

// applyKeywordFilter types the keyword query into the search box with
// humanized keystroke timing. Reports whether the filter was applied.
func (n *Navigator) applyKeywordFilter(ctx context.Context, searchURL string) bool {
	ok, err := n.page.Exists(ctx, selSearchInput)
	if err != nil || !ok {
		return false
	}

	keywords := keywordsFromURL(searchURL)
	if keywords == "" {
		return false
	}

	for _, pt := range n.engine.MouseMovements() {
		_ = n.page.MoveMouse(ctx, pt.X, pt.Y)
	}
	if err := n.page.Click(ctx, selSearchInput); err != nil {
		return false
	}
	if err := n.page.TypeText(ctx, selSearchInput, keywords+"\n", n.engine.TypingDelays(keywords)); err != nil {
		return false
	}
	if err := n.page.WaitVisible(ctx, selResultsList, n.navTimeout); err != nil {
		return false
	}

	n.state.FiltersApplied = true
	return true
}

// checkBlocked classifies explicit detection markers on the current page.
func (n *Navigator) checkBlocked(ctx context.Context) error {
	if ok, err := n.page.Exists(ctx, selCaptcha); err == nil && ok {
		return scraper.NewError(scraper.KindBlocked, n.state.CurrentPage, false, "captcha challenge presented", nil)
	}
	if ok, err := n.page.Exists(ctx, selAuthWall); err == nil && ok {
		return scraper.NewError(scraper.KindBlocked, n.state.CurrentPage, false, "login wall presented", nil)
	}
	return nil
}

// DiscoverTotalPages inspects the pagination control. A missing or
// unparsable control degrades to 1 page rather than failing the run.
func (n *Navigator) DiscoverTotalPages(ctx context.Context) int {
	n.state.TotalPages = 1

	ok, err := n.page.Exists(ctx, selPagination)
	if err != nil || !ok {
		return 1
	}
	items, err := n.page.Elements(ctx, selPageItem)
	if err != nil {
		return 1
	}

	maxPage := 1
	for _, item := range items {
		text, err := item.Text(ctx, "")
		if err != nil {
			continue
		}
		if p, err := strconv.Atoi(strings.TrimSpace(text)); err == nil && p > maxPage {
			maxPage = p
		}
	}

	n.state.TotalPages = maxPage
	return maxPage
}

// GoToPage moves to the 1-based page target. A no-op when already there.
// Prefers a humanized click on the pagination control, falling back to
// rewriting the page offset in the URL.
func (n *Navigator) GoToPage(ctx context.Context, target int) error {
	if target == n.state.CurrentPage {
		return nil
	}

	for _, pt := range n.engine.MouseMovements() {
		_ = n.page.MoveMouse(ctx, pt.X, pt.Y)
	}
	_ = n.page.ScrollBy(ctx, n.engine.ScrollAmount())

	clicked := true
	sel := fmt.Sprintf(`li[data-test-pagination-page-btn="%d"] button`, target)
	if err := n.page.Click(ctx, sel); err != nil {
		clicked = false
		slog.Debug("pagination control not clickable, rewriting URL", "page", target, "error", err)
		if _, err := n.page.Navigate(ctx, pageURL(n.state.URL, target), n.navTimeout); err != nil {
			return scraper.NewError(scraper.KindNavigation, target, true, "page control click and direct navigation both failed", err)
		}
	}

	if err := n.page.WaitVisible(ctx, selResultsList, n.navTimeout); err != nil {
		if blockErr := n.checkBlocked(ctx); blockErr != nil {
			return blockErr
		}
		return scraper.NewError(scraper.KindNavigation, target, true, "results did not reappear after page change", err)
	}

	if err := n.sleep(ctx, n.engine.RandomDelay()); err != nil {
		return err
	}

	n.state.CurrentPage = target
	if !clicked {
		n.state.URL = pageURL(n.state.URL, target)
	}
	return nil
}

// HasNextPage reports whether an enabled next-page control is present.
func (n *Navigator) HasNextPage(ctx context.Context) bool {
	ok, err := n.page.Exists(ctx, selNextEnabled)
	n.state.HasNext = err == nil && ok
	return n.state.HasNext
}

// AdvanceToNextPage moves forward one page; false, not an error, when there
// is no next page.
func (n *Navigator) AdvanceToNextPage(ctx context.Context) (bool, error) {
	if !n.HasNextPage(ctx) {
		return false, nil
	}
	if err := n.GoToPage(ctx, n.state.CurrentPage+1); err != nil {
		return false, err
	}
	return true, nil
}

// ExtractJobCards pulls every job card off the current page. A malformed
// card is logged and skipped; only a missing card container fails the page.
func (n *Navigator) ExtractJobCards(ctx context.Context) ([]scraper.JobCard, error) {
	page := n.state.CurrentPage

	if err := n.page.WaitVisible(ctx, selJobCard, n.navTimeout); err != nil {
		if blockErr := n.checkBlocked(ctx); blockErr != nil {
			return nil, blockErr
		}
		return nil, scraper.NewError(scraper.KindExtraction, page, true, "job cards never appeared", err)
	}

	elements, err := n.page.Elements(ctx, selJobCard)
	if err != nil {
		return nil, scraper.NewError(scraper.KindExtraction, page, true, "query job cards", err)
	}

	cards := make([]scraper.JobCard, 0, len(elements))
	for i, el := range elements {
		card, err := n.extractCard(ctx, el)
		if err != nil {
			slog.Warn("skipping malformed job card", "page", page, "index", i, "error", err)
			continue
		}
		if card.Title == "" && card.Company == "" {
			continue
		}
		cards = append(cards, card)
		n.state.LastCardIndex = i
	}
	return cards, nil
}

func (n *Navigator) extractCard(ctx context.Context, el browser.Element) (scraper.JobCard, error) {
	var card scraper.JobCard

	title, err := el.Text(ctx, selCardTitle)
	if err != nil {
		return card, fmt.Errorf("card title: %w", err)
	}
	card.Title = strings.TrimSpace(title)

	href, err := el.Attr(ctx, selCardLink, "href")
	if err != nil || strings.TrimSpace(href) == "" {
		return card, fmt.Errorf("card link: %w", err)
	}
	card.DetailURL = strings.TrimSpace(href)

	// Secondary fields are best-effort; their absence never drops the card.
	if company, err := el.Text(ctx, selCardCompany); err == nil {
		card.Company = strings.TrimSpace(company)
	}
	if location, err := el.Text(ctx, selCardLocation); err == nil {
		card.Location = strings.TrimSpace(location)
	}
	if posted, err := el.Text(ctx, selCardPosted); err == nil {
		card.PostedText = strings.TrimSpace(posted)
	}
	if benefits, err := el.Text(ctx, selCardBenefits); err == nil {
		card.EasyApply = strings.Contains(strings.ToLower(benefits), "easy apply")
	}
	if metadata, err := el.Text(ctx, selCardMetadata); err == nil {
		card.Promoted = strings.Contains(strings.ToLower(metadata), "promoted")
		card.SalaryText = salaryFromMetadata(metadata)
	}

	return card, nil
}

// RotateFingerprint applies a fresh identity to the page mid-session.
func (n *Navigator) RotateFingerprint(ctx context.Context) error {
	if err := n.page.ApplyFingerprint(ctx, n.engine.Fingerprint()); err != nil {
		return scraper.NewError(scraper.KindNetwork, n.state.CurrentPage, true, "rotate fingerprint", err)
	}
	return nil
}

func (n *Navigator) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// salaryFromMetadata pulls a salary-looking line out of the card metadata
// block, which mixes location, salary, and promotion markers.
func salaryFromMetadata(metadata string) string {
	for _, line := range strings.Split(metadata, "\n") {
		line = strings.TrimSpace(line)
		if strings.ContainsAny(line, "$") || strings.Contains(line, "Rp") || strings.Contains(line, "IDR") {
			return line
		}
	}
	return ""
}

func keywordsFromURL(searchURL string) string {
	u, err := url.Parse(searchURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("keywords")
}

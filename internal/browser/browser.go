// Package browser defines the abstract browser-automation handle the
// navigator drives. The concrete transport (a remote automation API, a local
// driver) is an implementation detail behind the Page interface.
package browser

import (
	"context"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/antidetect"
)

// Response describes the outcome of a navigation: the HTTP status of the
// document request and how long the load took. Both feed the rate-limit
// classifier.
type Response struct {
	Status  int
	Elapsed time.Duration
}

// Element is a handle to a single DOM element. Selectors passed to Text and
// Attr are resolved relative to the element; an empty selector targets the
// element itself.
type Element interface {
	Text(ctx context.Context, selector string) (string, error)
	Attr(ctx context.Context, selector, name string) (string, error)
}

// Page is one browser tab. All operations honor ctx cancellation.
type Page interface {
	ApplyFingerprint(ctx context.Context, fp antidetect.Fingerprint) error
	Navigate(ctx context.Context, url string, timeout time.Duration) (Response, error)
	URL(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	ScrollBy(ctx context.Context, pixels int) error
	MoveMouse(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, selector, text string, delays []time.Duration) error
	Text(ctx context.Context, selector string) (string, error)
	Elements(ctx context.Context, selector string) ([]Element, error)
	Close(ctx context.Context) error
}

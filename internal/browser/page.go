// Package browser drives the single Chrome tab a scrape run uses.
//
// Every lookup is locate-or-absent: a selector that matches nothing is
// reported through a false result, never through an error. Errors are
// reserved for a broken browser or a failed DevTools call.
package browser

import (
	"context"
	"time"
)

// Page is one browser tab.
type Page interface {
	// Navigate loads url and waits for the document to start rendering.
	Navigate(ctx context.Context, url string) error
	// WaitFor waits up to timeout for selector to match. It reports false
	// when nothing matched in time.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// Exists reports whether selector currently matches.
	Exists(ctx context.Context, selector string) (bool, error)
	// OuterHTML returns the markup of the first element matching selector.
	OuterHTML(ctx context.Context, selector string) (string, bool, error)
	// HTML returns the markup of the whole document.
	HTML(ctx context.Context) (string, error)
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) (bool, error)
	// ClickAll clicks every element matching selector and returns how many.
	ClickAll(ctx context.Context, selector string) (int, error)
	// ScrollBy scrolls the first element matching selector down by delta pixels.
	ScrollBy(ctx context.Context, selector string, delta int) (bool, error)
	// Title returns the document title.
	Title(ctx context.Context) (string, error)
	// Location returns the current URL.
	Location(ctx context.Context) (string, error)
}

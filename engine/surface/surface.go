package surface

import "context"

// Driver abstracts a single browser page. Implementations must be safe for
// concurrent use; callers bound every wait with a context deadline.
type Driver interface {
	// Navigate loads url in the page.
	Navigate(ctx context.Context, url string) error

	// Reload reloads the current document.
	Reload(ctx context.Context) error

	// WaitDOMReady blocks until the document has left the "loading" state.
	WaitDOMReady(ctx context.Context) error

	// WaitLoad blocks until the document readyState is "complete".
	WaitLoad(ctx context.Context) error

	// WaitNetworkIdle blocks until the page reports network quiescence.
	WaitNetworkIdle(ctx context.Context) error

	// WaitVisible blocks until the selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error

	// Exists reports whether the selector currently matches any element.
	Exists(ctx context.Context, selector string) (bool, error)

	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// Fill clears the element and injects text in bulk.
	Fill(ctx context.Context, selector, text string) error

	// Type focuses the element and emits per-character key events with a
	// randomized inter-key delay.
	Type(ctx context.Context, selector, text string) error

	// Text returns the visible text of the first matching element.
	Text(ctx context.Context, selector string) (string, error)

	// Evaluate runs a JavaScript expression in the page, awaiting promises,
	// and unmarshals the result into out when out is non-nil.
	Evaluate(ctx context.Context, expr string, out any) error

	// Location returns the page's current URL.
	Location(ctx context.Context) (string, error)

	// BringToFront raises the page's tab.
	BringToFront(ctx context.Context) error

	// Close closes this page. It never closes the browser itself.
	Close() error
}

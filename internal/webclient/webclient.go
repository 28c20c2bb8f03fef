// Package webclient fetches pages and API responses through interchangeable
// backends: plain net/http or a headless Chrome driven by chromedp.
package webclient

import "context"

// WebClient executes a single request. Implementations must be safe for
// concurrent use.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

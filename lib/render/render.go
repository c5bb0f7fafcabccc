// Package render drives a headless browser for catalogs that only produce
// their listings after client-side scripts have run.
package render

import (
	"context"
)

// Session is one live browser tab. Navigate returns the rendered HTML of the
// page once scripts have had a chance to run.
type Session interface {
	Navigate(url string) (string, error)
	Close() error
}

// Browser launches sessions. NewSession fails when no rendering capability
// is available on the host (e.g. no Chrome binary).
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

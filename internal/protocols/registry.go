package protocols

import (
	"fmt"

	"github.com/dmitrijs2005/extmedia/internal/common"
)

// Registry dispatches URLs to handlers in a fixed priority order.
type Registry struct {
	handlers []Handler
}

// NewRegistry keeps handlers in the given order; earlier handlers win.
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: handlers}
}

// Resolve returns the first handler compatible with rawURL.
func (r *Registry) Resolve(rawURL string) (Handler, error) {
	for _, h := range r.handlers {
		if h.IsURLCompatible(rawURL) {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", common.ErrNoHandler, common.RedactURL(rawURL))
}

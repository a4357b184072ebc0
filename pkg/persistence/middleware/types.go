// Package middleware wraps a ports.Journal to protect what it keeps at rest.
package middleware

import "github.com/aretw0/chequeflow/pkg/ports"

// Middleware allows wrapping a Journal to add behavior.
type Middleware func(ports.Journal) ports.Journal

// Chain applies mws to j so that the first middleware is the outermost.
func Chain(j ports.Journal, mws ...Middleware) ports.Journal {
	for i := len(mws) - 1; i >= 0; i-- {
		j = mws[i](j)
	}
	return j
}

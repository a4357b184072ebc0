package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/chequeflow/pkg/ports"
)

// Mask replaces masked payload values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.Journal
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks payload values whose key
// matches one of the patterns before the entry is stored.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.Journal) ports.Journal {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Append(ctx context.Context, entry ports.Entry) error {
	// Clone so the event shared with other hooks keeps its values.
	if entry.Payload != nil {
		entry.Payload = deepCopyMap(entry.Payload)
		maskMap(entry.Payload, m.patterns)
	}
	return m.next.Append(ctx, entry)
}

func (m *piiMiddleware) List(ctx context.Context, sessionID string) ([]ports.Entry, error) {
	return m.next.List(ctx, sessionID)
}

func (m *piiMiddleware) Sessions(ctx context.Context) ([]string, error) {
	return m.next.Sessions(ctx)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}

package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/chequeflow/internal/runtime"
	"github.com/aretw0/chequeflow/pkg/domain"
)

// GraphOverlay contains session state to highlight on the graph.
type GraphOverlay struct {
	Stack []domain.Screen
}

type edgeKey struct {
	from, to domain.Screen
	op       domain.Operation
}

// GenerateMermaid produces a Mermaid flowchart from the transition table.
// Shapes:
// - Start: ((Circle))
// - Delivery (completion point): ([Stadium])
// - Default: [Rectangle]
//
// Rows sharing a source, operation and target collapse into one edge. Rows that
// keep the screen are drawn as self loops. Every push gets a dotted back edge,
// since a committed rollback pops exactly one screen.
func GenerateMermaid(rows []runtime.Transition, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var screens []domain.Screen
	seen := make(map[domain.Screen]bool)
	addScreen := func(s domain.Screen) {
		if !seen[s] {
			seen[s] = true
			screens = append(screens, s)
		}
	}

	conditions := make(map[edgeKey][]string)
	var edges []edgeKey
	for _, t := range rows {
		addScreen(t.From)
		addScreen(t.To)
		k := edgeKey{from: t.From, to: t.To, op: t.Operation}
		if _, ok := conditions[k]; !ok {
			edges = append(edges, k)
		}
		conditions[k] = append(conditions[k], t.Condition)
	}

	for _, s := range screens {
		opener, closer := "[", "]"
		switch s {
		case domain.ScreenStart:
			opener, closer = "((", "))"
		case domain.ScreenDelivery:
			opener, closer = "([", "])"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(string(s)), opener, s, closer)
	}

	for _, e := range edges {
		from, to := sanitizeMermaidID(string(e.from)), sanitizeMermaidID(string(e.to))
		fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, edgeLabel(e.op, conditions[e]), to)
		if e.from != e.to {
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", to, domain.OpRollback, from)
		}
	}

	if overlay != nil && len(overlay.Stack) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		top := len(overlay.Stack) - 1
		visited := make(map[string]bool)
		for _, s := range overlay.Stack[:top] {
			id := sanitizeMermaidID(string(s))
			if !visited[id] && s != overlay.Stack[top] {
				visited[id] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", id)
			}
		}
		fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(string(overlay.Stack[top])))
	}

	return sb.String()
}

// edgeLabel names the operation and, when the edge has a single condition,
// the condition itself. Larger groups list their conditions compactly.
func edgeLabel(op domain.Operation, conds []string) string {
	var nonEmpty []string
	for _, c := range conds {
		if c != "" {
			nonEmpty = append(nonEmpty, strings.ReplaceAll(c, "\"", "'"))
		}
	}
	switch len(nonEmpty) {
	case 0:
		return string(op)
	case 1:
		return fmt.Sprintf("%s<br/>%s", op, nonEmpty[0])
	}
	sort.Strings(nonEmpty)
	return fmt.Sprintf("%s<br/>%d cases", op, len(nonEmpty))
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}

package domain

// ScreenStack is the navigation history of a workflow. Its top is the screen
// currently presented. While the workflow is active it is never empty and
// never holds two identical adjacent entries.
type ScreenStack struct {
	items []Screen
}

// NewScreenStack seeds a stack with the start screen.
func NewScreenStack(start Screen) *ScreenStack {
	return &ScreenStack{items: []Screen{start}}
}

// Push appends screen unless it is already on top.
func (s *ScreenStack) Push(screen Screen) bool {
	if len(s.items) > 0 && s.items[len(s.items)-1] == screen {
		return false
	}
	s.items = append(s.items, screen)
	return true
}

// Pop removes and returns the top screen.
// The last remaining screen is never removed; Pop reports false instead.
func (s *ScreenStack) Pop() (Screen, bool) {
	if len(s.items) <= 1 {
		return "", false
	}
	last := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return last, true
}

// Reset replaces the whole history with a single screen.
func (s *ScreenStack) Reset(screen Screen) {
	s.items = []Screen{screen}
}

// Clear empties the stack. Only used when the workflow is torn down.
func (s *ScreenStack) Clear() {
	s.items = nil
}

// Top returns the current screen, or "" for a torn-down stack.
func (s *ScreenStack) Top() Screen {
	if len(s.items) == 0 {
		return ""
	}
	return s.items[len(s.items)-1]
}

// Len returns the number of entries.
func (s *ScreenStack) Len() int {
	return len(s.items)
}

// Screens returns a copy of the history, bottom first.
func (s *ScreenStack) Screens() []Screen {
	return append([]Screen(nil), s.items...)
}

package domain

import "fmt"

// Screen identifies a step of the workflow.
// The set is closed: adding a screen requires updating the transition table
// and the resolver, otherwise the engine halts with a NoRouteError.
type Screen string

const (
	// ScreenStart is where the user selects the bank instrument type.
	ScreenStart Screen = "start"
	// ScreenSheets lists the instrument sheets and runs the status comparison.
	ScreenSheets Screen = "sheets"
	// ScreenInquiry shows the server-side validation step of the instrument.
	ScreenInquiry Screen = "inquiry"
	// ScreenDelivery shows where and when the instrument will be delivered.
	ScreenDelivery Screen = "delivery"
)

// Screens returns every screen in workflow order.
func Screens() []Screen {
	return []Screen{ScreenStart, ScreenSheets, ScreenInquiry, ScreenDelivery}
}

// Valid reports whether s belongs to the closed enumeration.
func (s Screen) Valid() bool {
	switch s {
	case ScreenStart, ScreenSheets, ScreenInquiry, ScreenDelivery:
		return true
	}
	return false
}

// ParseScreen converts a free-form identifier into a Screen.
func ParseScreen(v string) (Screen, error) {
	s := Screen(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown screen %q", v)
	}
	return s, nil
}

func (s Screen) String() string { return string(s) }

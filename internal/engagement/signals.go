package engagement

// SignalType is an interaction signal that counts as activity.
type SignalType string

const (
	SignalMouseDown  SignalType = "mousedown"
	SignalMouseUp    SignalType = "mouseup"
	SignalMouseMove  SignalType = "mousemove"
	SignalScroll     SignalType = "scroll"
	SignalTouchStart SignalType = "touchstart"
	SignalTouchEnter SignalType = "touchenter"
	SignalKeyDown    SignalType = "keydown"
	SignalKeyUp      SignalType = "keyup"
	SignalFocus      SignalType = "focus"
)

// ActivitySignals is the fixed set of monitored interaction signals.
var ActivitySignals = []SignalType{
	SignalFocus,
	SignalMouseDown,
	SignalMouseUp,
	SignalMouseMove,
	SignalScroll,
	SignalTouchStart,
	SignalTouchEnter,
	SignalKeyUp,
	SignalKeyDown,
}

// ParseSignalType reports whether name is one of the monitored signals.
func ParseSignalType(name string) (SignalType, bool) {
	for _, s := range ActivitySignals {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// Visibility is a foreground visibility transition.
type Visibility string

const (
	VisibilityShown  Visibility = "shown"
	VisibilityHidden Visibility = "hidden"
)

// ParseVisibility accepts "shown"/"hidden" and the browser's
// "visible"/"hidden" visibilityState values.
func ParseVisibility(name string) (Visibility, bool) {
	switch name {
	case "shown", "visible":
		return VisibilityShown, true
	case "hidden":
		return VisibilityHidden, true
	}
	return "", false
}

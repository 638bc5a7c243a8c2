package timeline

import "strings"

// Focus names the kind of control that holds keyboard focus, e.g. "INPUT" or "BUTTON".
type Focus string

const (
	FocusNone     Focus = ""
	FocusInput    Focus = "INPUT"
	FocusTextArea Focus = "TEXTAREA"
	FocusSelect   Focus = "SELECT"
)

// IsTextInput reports whether keystrokes in this control are typed text.
func (f Focus) IsTextInput() bool {
	switch Focus(strings.ToUpper(string(f))) {
	case FocusInput, FocusTextArea, FocusSelect:
		return true
	}
	return false
}

// IsPlayPauseKey reports whether key is the space bar.
func IsPlayPauseKey(key string) bool {
	switch strings.ToLower(key) {
	case " ", "space", "spacebar":
		return true
	}
	return false
}

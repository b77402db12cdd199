package termemu

// privateMode is a DEC private mode number tracked by the emulator.
type privateMode int

const (
	modeCursorVisible   privateMode = 25
	modeMouseX10        privateMode = 1000
	modeMouseButton     privateMode = 1002
	modeMouseAny        privateMode = 1003
	modeMouseSGR        privateMode = 1006
	modeBracketedPaste  privateMode = 2004
	modeFocusEvents     privateMode = 1004
	modeAltScreen       privateMode = 1049
)

// modeState tracks the DEC private modes the spec requires (§4.1): mouse
// reporting variants, bracketed paste, cursor visibility, focus events,
// and alt-screen.
type modeState struct {
	set map[privateMode]bool
}

func newModeState() *modeState {
	return &modeState{set: map[privateMode]bool{modeCursorVisible: true}}
}

func (m *modeState) enable(n int)  { m.set[privateMode(n)] = true }
func (m *modeState) disable(n int) { m.set[privateMode(n)] = false }
func (m *modeState) has(p privateMode) bool { return m.set[p] }

func (m *modeState) cursorVisible() bool  { return m.has(modeCursorVisible) }
func (m *modeState) focusEvents() bool    { return m.has(modeFocusEvents) }
func (m *modeState) bracketedPaste() bool { return m.has(modeBracketedPaste) }
func (m *modeState) altScreen() bool      { return m.has(modeAltScreen) }
func (m *modeState) mouseReportingEnabled() bool {
	return m.has(modeMouseX10) || m.has(modeMouseButton) || m.has(modeMouseAny)
}

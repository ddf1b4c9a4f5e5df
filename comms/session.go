package comms

// SessionState is the per-session memory of one actor. It lives as long as
// the session and is only touched from that session's command goroutine.
type SessionState struct {
	lastWhisper string
	hasWhisper  bool
}

// NewSessionState returns empty session memory.
func NewSessionState() *SessionState {
	return &SessionState{}
}

// LastWhisper returns the raw target list of the last successful whisper.
func (s *SessionState) LastWhisper() (string, bool) {
	return s.lastWhisper, s.hasWhisper
}

// SetLastWhisper records list after a successful whisper.
func (s *SessionState) SetLastWhisper(list string) {
	s.lastWhisper = list
	s.hasWhisper = true
}

// Reset forgets everything.
func (s *SessionState) Reset() {
	*s = SessionState{}
}

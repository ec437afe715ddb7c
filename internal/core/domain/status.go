package domain

// SessionStatus is the externally visible state of a playback test.
type SessionStatus string

const (
	StatusNotTested SessionStatus = "not_tested"
	StatusLoading   SessionStatus = "loading"
	StatusSuccess   SessionStatus = "success"
	StatusError     SessionStatus = "error"
)

// Terminal reports whether the status ends a session's active testing phase.
func (s SessionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

func (s SessionStatus) String() string {
	return string(s)
}

// SessionState is the internal lifecycle state of a playback session.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateInitializing SessionState = "initializing"
	StateActive       SessionState = "active"
	StateTearingDown  SessionState = "tearing_down"
)

package domain

import "time"

type PuzzleStatus string

const (
	StatusSuccess PuzzleStatus = "success"
	StatusFailed  PuzzleStatus = "failed"
)

// CasualSessionID namespaces state for sessions that are not tied to a competition.
const CasualSessionID = "casual"

// SessionState is the persisted progress of one session.
// SolvedCount always equals the number of StatusSuccess entries.
type SessionState struct {
	CurrentPuzzleIndex int                     `json:"currentPuzzleIndex"`
	TimeLeftSeconds    int                     `json:"timeLeftSeconds"`
	Score              int                     `json:"score"`
	SolvedCount        int                     `json:"solvedCount"`
	PuzzleStatuses     map[string]PuzzleStatus `json:"puzzleStatuses"`
	SavedAt            time.Time               `json:"savedAt"`
}

// Clone returns a deep copy so callers never share the status map.
func (s SessionState) Clone() SessionState {
	out := s
	out.PuzzleStatuses = make(map[string]PuzzleStatus, len(s.PuzzleStatuses))
	for k, v := range s.PuzzleStatuses {
		out.PuzzleStatuses[k] = v
	}
	return out
}

// CountSolved recomputes the success count from the status map.
func (s SessionState) CountSolved() int {
	n := 0
	for _, v := range s.PuzzleStatuses {
		if v == StatusSuccess {
			n++
		}
	}
	return n
}

// StateKey is the storage key for a session identifier.
func StateKey(sessionID string) string {
	if sessionID == "" {
		sessionID = CasualSessionID
	}
	return "puzzleState_" + sessionID
}

// PreferencesKey stores board Preferences.
const PreferencesKey = "boardPreferences"

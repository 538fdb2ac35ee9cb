package arenadto

import (
	"bytes"
	"encoding/json"
)

// Push channel event names.
const (
	EventConnect            = "connect"
	EventDisconnect         = "disconnect"
	EventLeaderboardUpdate  = "leaderboardUpdate"
	EventCompetitionEnded   = "competitionEnded"
	EventParticipantJoined  = "participantJoined"
	EventError              = "error"
	EventJoinCompetition    = "joinCompetition"
	EventRefreshLeaderboard = "refreshLeaderboard"
)

// Envelope frames every push message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinCompetition struct {
	CompetitionID string `json:"competitionId"`
	Username      string `json:"username"`
}

type RefreshLeaderboard struct {
	CompetitionID string `json:"competitionId"`
}

type LeaderboardUpdate struct {
	CompetitionID string             `json:"competitionId,omitempty"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
}

// UnmarshalJSON accepts either a bare entry array or {"leaderboard": [...]}.
func (u *LeaderboardUpdate) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		u.CompetitionID = ""
		return json.Unmarshal(trimmed, &u.Leaderboard)
	}
	type plain LeaderboardUpdate
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*u = LeaderboardUpdate(p)
	return nil
}

type CompetitionEnded struct {
	CompetitionID    string             `json:"competitionId,omitempty"`
	FinalLeaderboard []LeaderboardEntry `json:"finalLeaderboard"`
}

type ParticipantJoined struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

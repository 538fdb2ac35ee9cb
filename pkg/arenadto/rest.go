package arenadto

import "time"

type KidsTarget struct {
	Square string `json:"square"`
	Item   string `json:"item"`
}

type KidsConfig struct {
	Targets       []KidsTarget `json:"targets"`
	TrackedSquare string       `json:"trackedSquare,omitempty"`
}

type Puzzle struct {
	MongoID       string      `json:"_id,omitempty"`
	ID            string      `json:"id,omitempty"`
	FEN           string      `json:"fen"`
	SolutionMoves []string    `json:"solutionMoves"`
	Type          string      `json:"type,omitempty"`
	KidsConfig    *KidsConfig `json:"kidsConfig,omitempty"`
	Difficulty    string      `json:"difficulty,omitempty"`
	Title         string      `json:"title,omitempty"`
}

// Key returns whichever identifier the backend populated.
func (p Puzzle) Key() string {
	if p.MongoID != "" {
		return p.MongoID
	}
	return p.ID
}

type Competition struct {
	MongoID   string    `json:"_id,omitempty"`
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Puzzles   []Puzzle  `json:"puzzles"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	// Duration is in minutes.
	Duration float64 `json:"duration,omitempty"`
}

func (c Competition) Key() string {
	if c.MongoID != "" {
		return c.MongoID
	}
	return c.ID
}

// CompetitionResponse accepts either {"competition": {...}} or the bare document.
type CompetitionResponse struct {
	Success     *bool        `json:"success,omitempty"`
	Message     string       `json:"message,omitempty"`
	Competition *Competition `json:"competition,omitempty"`
}

type PuzzlesResponse struct {
	Success *bool    `json:"success,omitempty"`
	Message string   `json:"message,omitempty"`
	Puzzles []Puzzle `json:"puzzles"`
}

type SubmitRequest struct {
	Solution  []string `json:"solution"`
	TimeSpent int      `json:"timeSpent"`
}

type SubmitResponse struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message,omitempty"`
	ScoreEarned   *float64 `json:"scoreEarned,omitempty"`
	Points        *float64 `json:"points,omitempty"`
	TotalScore    *float64 `json:"totalScore,omitempty"`
	PuzzlesSolved *int     `json:"puzzlesSolved,omitempty"`
}

// Earned returns scoreEarned, falling back to points.
func (r SubmitResponse) Earned() float64 {
	if r.ScoreEarned != nil {
		return *r.ScoreEarned
	}
	if r.Points != nil {
		return *r.Points
	}
	return 0
}

type ParticipateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	UserID        string  `json:"userId"`
	Username      string  `json:"username"`
	Score         float64 `json:"score"`
	PuzzlesSolved int     `json:"puzzlesSolved"`
	TimeSpent     float64 `json:"timeSpent"`
}

type LeaderboardResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message,omitempty"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// ErrorResponse is the generic failure body.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

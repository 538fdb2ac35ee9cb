package domain

import "time"

type PuzzleType string

const (
	PuzzleNormal PuzzleType = "normal"
	PuzzleKids   PuzzleType = "kids"
)

type KidsItem string

const (
	ItemPizza     KidsItem = "pizza"
	ItemChocolate KidsItem = "chocolate"
)

// KidsTarget is a square the tracked piece has to reach. Squares use algebraic
// coordinates ("e5").
type KidsTarget struct {
	Square string
	Item   KidsItem
}

// KidsConfig configures the target-collection variant. TrackedSquare is optional;
// when empty any piece reaching a target counts.
type KidsConfig struct {
	Targets       []KidsTarget
	TrackedSquare string
}

// Puzzle is immutable once loaded.
type Puzzle struct {
	ID            string
	FEN           string
	SolutionMoves []string
	Type          PuzzleType
	Kids          *KidsConfig
	Difficulty    string
	Title         string
}

func (p Puzzle) IsKids() bool { return p.Type == PuzzleKids }

type Competition struct {
	ID        string
	Title     string
	Puzzles   []Puzzle
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

type LeaderboardEntry struct {
	Rank          int
	UserID        string
	Username      string
	Score         int
	PuzzlesSolved int
	TimeSpent     int
}

// Identity is the authenticated user threaded into the session engine and sync client.
type Identity struct {
	Token    string
	UserID   string
	Username string
}

func (i Identity) Authenticated() bool { return i.Token != "" }

// Preferences are cosmetic board settings read by the renderer.
type Preferences struct {
	Theme    string `json:"boardTheme"`
	PieceSet string `json:"pieceSet"`
}

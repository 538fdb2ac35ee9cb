package puzzle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/rules"
)

// Feedback delays driven by the table.
const (
	ReplyDelay = 300 * time.Millisecond
	ResetDelay = 600 * time.Millisecond
)

var (
	ErrBrokenSolution = errors.New("puzzle solution cannot be played")
	ErrNoReplyPending = errors.New("no reply pending")
)

type Verdict int

const (
	// VerdictIllegal means nothing changed.
	VerdictIllegal Verdict = iota
	VerdictCorrect
	VerdictIncorrect
	VerdictSolved
	// VerdictPlaying is a kids move that did not finish the puzzle.
	VerdictPlaying
)

func (v Verdict) String() string {
	switch v {
	case VerdictIllegal:
		return "illegal"
	case VerdictCorrect:
		return "correct"
	case VerdictIncorrect:
		return "incorrect"
	case VerdictSolved:
		return "solved"
	case VerdictPlaying:
		return "playing"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Outcome is the result of one move against the puzzle rules.
type Outcome struct {
	Verdict      Verdict
	Applied      *rules.Applied
	Position     rules.Position
	ReplyPending bool
}

// Rules is the per-puzzle variant, chosen once at load: *Matcher or *Kids.
type Rules interface {
	Kind() domain.PuzzleType
	// Human applies a human move. Illegal moves return VerdictIllegal with pos unchanged.
	Human(pos rules.Position, mv rules.Move) Outcome
	// Reply plays the scripted opponent move when ReplyPending.
	Reply(pos rules.Position) (Outcome, error)
	ReplyPending() bool
	Solved() bool
	Failed() bool
	// Restart returns the rules to the start of a fresh attempt.
	Restart()
	// Played is the list of moves made so far in SAN, human and reply alike.
	Played() []string
	sealed()
}

// NewRules dispatches on the puzzle type.
func NewRules(p domain.Puzzle, initial rules.Position) (Rules, error) {
	if p.IsKids() {
		if p.Kids == nil {
			return nil, fmt.Errorf("kids puzzle %s without config: %w", p.ID, ErrBrokenSolution)
		}
		return NewKids(*p.Kids, rules.Turn(initial))
	}
	return NewMatcher(p.SolutionMoves)
}

// Normalize strips check and mate decoration plus surrounding whitespace. Case is kept.
func Normalize(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "+# \t\r\n")
}

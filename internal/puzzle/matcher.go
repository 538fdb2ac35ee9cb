package puzzle

import (
	"fmt"

	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/rules"
)

type matcherState int

const (
	awaitingMove matcherState = iota
	awaitingReply
	stateIncorrect
	stateSolved
)

// Matcher follows a scripted solution line. It holds no timers; the caller
// schedules Reply and Restart.
type Matcher struct {
	solution []string
	cursor   int
	state    matcherState
	played   []string
}

func NewMatcher(solution []string) (*Matcher, error) {
	clean := make([]string, 0, len(solution))
	for _, s := range solution {
		if n := Normalize(s); n != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("empty solution: %w", ErrBrokenSolution)
	}
	return &Matcher{solution: clean}, nil
}

func (m *Matcher) sealed() {}

func (m *Matcher) Kind() domain.PuzzleType { return domain.PuzzleNormal }

// Cursor is the index of the next expected solution move.
func (m *Matcher) Cursor() int { return m.cursor }

func (m *Matcher) ReplyPending() bool { return m.state == awaitingReply }
func (m *Matcher) Solved() bool       { return m.state == stateSolved }
func (m *Matcher) Failed() bool       { return m.state == stateIncorrect }

func (m *Matcher) Played() []string { return append([]string(nil), m.played...) }

func (m *Matcher) Restart() {
	m.cursor = 0
	m.state = awaitingMove
	m.played = nil
}

func (m *Matcher) Human(pos rules.Position, mv rules.Move) Outcome {
	if m.state != awaitingMove {
		return Outcome{Verdict: VerdictIllegal, Position: pos}
	}
	applied, next := rules.Apply(pos, m.promotionFor(pos, mv))
	if applied == nil {
		return Outcome{Verdict: VerdictIllegal, Position: pos}
	}
	if !sameMove(pos, applied, m.solution[m.cursor]) {
		m.state = stateIncorrect
		return Outcome{Verdict: VerdictIncorrect, Applied: applied, Position: next}
	}
	m.played = append(m.played, applied.SAN)
	m.cursor++
	if m.cursor >= len(m.solution) || applied.Checkmate {
		m.state = stateSolved
		return Outcome{Verdict: VerdictSolved, Applied: applied, Position: next}
	}
	m.state = awaitingReply
	return Outcome{Verdict: VerdictCorrect, Applied: applied, Position: next, ReplyPending: true}
}

func (m *Matcher) Reply(pos rules.Position) (Outcome, error) {
	if m.state != awaitingReply {
		return Outcome{Verdict: VerdictIllegal, Position: pos}, ErrNoReplyPending
	}
	text := m.solution[m.cursor]
	mv, err := rules.ParseMove(pos, text)
	if err != nil {
		return Outcome{Verdict: VerdictIllegal, Position: pos}, fmt.Errorf("reply %q: %v: %w", text, err, ErrBrokenSolution)
	}
	applied, next := rules.Apply(pos, mv)
	if applied == nil {
		return Outcome{Verdict: VerdictIllegal, Position: pos}, fmt.Errorf("reply %q illegal: %w", text, ErrBrokenSolution)
	}
	m.played = append(m.played, applied.SAN)
	m.cursor++
	if m.cursor >= len(m.solution) || applied.Checkmate {
		m.state = stateSolved
		return Outcome{Verdict: VerdictSolved, Applied: applied, Position: next}, nil
	}
	m.state = awaitingMove
	return Outcome{Verdict: VerdictCorrect, Applied: applied, Position: next}, nil
}

// promotionFor fills a missing promotion piece from the expected entry when the
// squares match, so a click or drag can play an underpromotion. An explicit
// piece is never changed.
func (m *Matcher) promotionFor(pos rules.Position, mv rules.Move) rules.Move {
	if mv.Promotion != rules.NoPieceType {
		return mv
	}
	want, err := rules.ParseMove(pos, Normalize(m.solution[m.cursor]))
	if err != nil || want.From != mv.From || want.To != mv.To {
		return mv
	}
	mv.Promotion = want.Promotion
	return mv
}

// sameMove compares cleaned SAN first. When the text differs it decodes the
// expected entry against the pre-move position, which covers coordinate-authored
// entries and SAN formatted differently from the engine's output.
func sameMove(before rules.Position, applied *rules.Applied, expected string) bool {
	if Normalize(applied.SAN) == Normalize(expected) {
		return true
	}
	want, err := rules.ParseMove(before, Normalize(expected))
	if err != nil {
		return false
	}
	if want.From != applied.From || want.To != applied.To {
		return false
	}
	if want.Promotion == applied.Promotion {
		return true
	}
	return want.Promotion == rules.NoPieceType && applied.Promotion == rules.Queen
}

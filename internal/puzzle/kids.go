package puzzle

import (
	"fmt"

	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/rules"
)

// Kids is the target-collection variant. There is no opponent: after every move the
// side to move is forced back to the human.
type Kids struct {
	human          rules.Color
	targets        []rules.Square
	items          map[rules.Square]domain.KidsItem
	initialTracked rules.Square
	tracked        rules.Square
	captured       []rules.Square
	played         []string
}

func NewKids(cfg domain.KidsConfig, human rules.Color) (*Kids, error) {
	if human != rules.White && human != rules.Black {
		return nil, fmt.Errorf("kids puzzle without side to move: %w", ErrBrokenSolution)
	}
	k := &Kids{
		human:          human,
		items:          make(map[rules.Square]domain.KidsItem, len(cfg.Targets)),
		initialTracked: rules.NoSquare,
	}
	for _, t := range cfg.Targets {
		sq, err := rules.ParseSquare(t.Square)
		if err != nil {
			return nil, fmt.Errorf("kids target: %v: %w", err, ErrBrokenSolution)
		}
		if _, dup := k.items[sq]; dup {
			continue
		}
		k.items[sq] = t.Item
		k.targets = append(k.targets, sq)
	}
	if cfg.TrackedSquare != "" {
		sq, err := rules.ParseSquare(cfg.TrackedSquare)
		if err != nil {
			return nil, fmt.Errorf("kids tracked piece: %v: %w", err, ErrBrokenSolution)
		}
		k.initialTracked = sq
	}
	k.tracked = k.initialTracked
	return k, nil
}

func (k *Kids) sealed() {}

func (k *Kids) Kind() domain.PuzzleType { return domain.PuzzleKids }

func (k *Kids) ReplyPending() bool { return false }
func (k *Kids) Failed() bool       { return false }
func (k *Kids) Solved() bool       { return len(k.captured) >= len(k.targets) && len(k.played) > 0 }

func (k *Kids) Played() []string { return append([]string(nil), k.played...) }

func (k *Kids) Reply(pos rules.Position) (Outcome, error) {
	return Outcome{Verdict: VerdictIllegal, Position: pos}, ErrNoReplyPending
}

func (k *Kids) Restart() {
	k.captured = nil
	k.played = nil
	k.tracked = k.initialTracked
}

// Targets lists every target with its item, captured or not.
func (k *Kids) Targets() map[rules.Square]domain.KidsItem {
	out := make(map[rules.Square]domain.KidsItem, len(k.items))
	for sq, it := range k.items {
		out[sq] = it
	}
	return out
}

// Captured returns captured targets in capture order.
func (k *Kids) Captured() []rules.Square { return append([]rules.Square(nil), k.captured...) }

// Tracked is the current square of the tracked piece, NoSquare when any piece counts.
func (k *Kids) Tracked() rules.Square { return k.tracked }

func (k *Kids) Human(pos rules.Position, mv rules.Move) Outcome {
	if k.Solved() {
		return Outcome{Verdict: VerdictIllegal, Position: pos}
	}
	applied, next := rules.Apply(pos, mv)
	if applied == nil {
		return Outcome{Verdict: VerdictIllegal, Position: pos}
	}
	counts := k.tracked == rules.NoSquare || applied.From == k.tracked
	if k.tracked != rules.NoSquare && applied.From == k.tracked {
		k.tracked = applied.To
	}
	if counts {
		if _, isTarget := k.items[applied.To]; isTarget && !k.isCaptured(applied.To) {
			k.captured = append(k.captured, applied.To)
		}
	}
	k.played = append(k.played, applied.SAN)
	next = rules.WithTurn(next, k.human)
	if len(k.captured) >= len(k.targets) {
		return Outcome{Verdict: VerdictSolved, Applied: applied, Position: next}
	}
	return Outcome{Verdict: VerdictPlaying, Applied: applied, Position: next}
}

func (k *Kids) isCaptured(sq rules.Square) bool {
	for _, c := range k.captured {
		if c == sq {
			return true
		}
	}
	return false
}

package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-arena-client/internal/board"
	"github.com/park285/chess-arena-client/internal/clock"
	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/puzzle"
	"github.com/park285/chess-arena-client/internal/rules"
)

// Recorder is where a table reports attempts. *Engine implements it.
type Recorder interface {
	CompletePuzzle(ctx context.Context, puzzleID string, solution []string) error
	MarkFailed(puzzleID string)
}

type TableConfig struct {
	Recorder Recorder
	Clock    clock.Clock
	Logger   *zap.Logger
	// Go runs the submission; defaults to a new goroutine.
	Go func(func())

	OnChange func(TableView)
	OnNotice func(domain.Notice)
}

// TableView is what the board renderer needs for the current attempt.
type TableView struct {
	Puzzle       *domain.Puzzle
	Position     rules.Position
	Human        rules.Color
	Board        board.View
	Targets      map[rules.Square]board.Target
	Solved       bool
	Failed       bool
	Busy         bool
	Unrenderable error
}

// Table drives one puzzle attempt: the board controller, the rules variant and
// the reply and reset delays.
type Table struct {
	rec    Recorder
	clk    clock.Clock
	logger *zap.Logger
	run    func(func())

	onChange func(TableView)
	onNotice func(domain.Notice)

	ctrl *board.Controller

	mu         sync.Mutex
	puzzle     *domain.Puzzle
	initial    rules.Position
	pos        rules.Position
	rules      puzzle.Rules
	human      rules.Color
	renderErr  error
	busy       bool
	gen        uint64
	replyTimer clock.Timer
	resetTimer clock.Timer
}

func NewTable(cfg TableConfig) (*Table, error) {
	if cfg.Recorder == nil {
		return nil, errors.New("session: table recorder is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Go == nil {
		cfg.Go = func(f func()) { go f() }
	}
	t := &Table{
		rec:      cfg.Recorder,
		clk:      cfg.Clock,
		logger:   cfg.Logger,
		run:      cfg.Go,
		onChange: cfg.OnChange,
		onNotice: cfg.OnNotice,
	}
	ctrl, err := board.NewController(cfg.Clock, board.MoveTargetFunc(t.AttemptMove), cfg.Logger)
	if err != nil {
		return nil, err
	}
	t.ctrl = ctrl
	return t, nil
}

// Controller exposes the gesture entry points.
func (t *Table) Controller() *board.Controller { return t.ctrl }

// Load starts a fresh attempt. A puzzle that cannot be set up is kept in a
// non-interactive state and its error is returned for reporting only.
func (t *Table) Load(p domain.Puzzle) error {
	t.mu.Lock()
	t.gen++
	t.stopTimersLocked()
	t.busy = false
	t.puzzle = &p
	t.rules = nil
	t.renderErr = nil

	pos, err := rules.NewPosition(p.FEN)
	var rs puzzle.Rules
	if err == nil {
		rs, err = puzzle.NewRules(p, pos)
	}
	if err != nil {
		t.renderErr = err
		t.initial, t.pos = "", ""
		t.mu.Unlock()
		t.ctrl.Load("", rules.NoColor)
		t.ctrl.SetEnabled(false)
		t.logger.Warn("table_puzzle_unplayable", zap.String("puzzle_id", p.ID), zap.Error(err))
		t.notice(domain.NewNotice(domain.NoticeWarn, domain.NoticeCannotRender, "puzzle", p.ID))
		t.changed()
		return err
	}
	t.initial, t.pos = pos, pos
	t.rules = rs
	t.human = rules.Turn(pos)
	t.mu.Unlock()

	t.ctrl.Load(pos, t.human)
	t.changed()
	return nil
}

// AttemptMove is the single entry point for both gesture paths and typed moves.
// A move without a promotion piece lets the rules pick one.
func (t *Table) AttemptMove(mv rules.Move) {
	t.mu.Lock()
	if t.rules == nil || t.busy || t.rules.Solved() || t.rules.Failed() || t.rules.ReplyPending() {
		t.mu.Unlock()
		return
	}
	before := t.pos
	out := t.rules.Human(before, mv)
	if out.Verdict == puzzle.VerdictIllegal {
		t.mu.Unlock()
		return
	}
	t.pos = out.Position
	gen := t.gen
	var last *rules.Move
	if out.Applied != nil {
		m := out.Applied.Move()
		last = &m
	}
	p := *t.puzzle

	switch out.Verdict {
	case puzzle.VerdictCorrect:
		t.replyTimer = t.clk.AfterFunc(puzzle.ReplyDelay, func() { t.onReply(gen) })
	case puzzle.VerdictIncorrect:
		t.resetTimer = t.clk.AfterFunc(puzzle.ResetDelay, func() { t.onReset(gen) })
	case puzzle.VerdictSolved:
		t.busy = true
	}
	verdict := out.Verdict
	played := t.rules.Played()
	pos := t.pos
	t.mu.Unlock()

	t.ctrl.SetPosition(pos)
	t.ctrl.SetLastMove(last)
	switch verdict {
	case puzzle.VerdictCorrect:
		t.ctrl.SetEnabled(false)
	case puzzle.VerdictIncorrect:
		t.ctrl.SetEnabled(false)
		t.rec.MarkFailed(p.ID)
		t.notice(domain.NewNotice(domain.NoticeWarn, domain.NoticeIncorrect, "puzzle", p.ID))
	case puzzle.VerdictSolved:
		t.ctrl.SetEnabled(false)
		t.submit(gen, p.ID, played)
	}
	t.changed()
}

func (t *Table) onReply(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.rules == nil || !t.rules.ReplyPending() {
		t.mu.Unlock()
		return
	}
	t.replyTimer = nil
	out, err := t.rules.Reply(t.pos)
	if err != nil {
		t.renderErr = err
		id := t.puzzle.ID
		t.mu.Unlock()
		t.logger.Error("table_reply_failed", zap.String("puzzle_id", id), zap.Error(err))
		t.notice(domain.NewNotice(domain.NoticeWarn, domain.NoticeCannotRender, "puzzle", id))
		t.changed()
		return
	}
	t.pos = out.Position
	solved := out.Verdict == puzzle.VerdictSolved
	if solved {
		t.busy = true
	}
	played := t.rules.Played()
	id := t.puzzle.ID
	pos := t.pos
	t.mu.Unlock()

	t.ctrl.SetPosition(pos)
	if out.Applied != nil {
		m := out.Applied.Move()
		t.ctrl.SetLastMove(&m)
	}
	if solved {
		t.submit(gen, id, played)
	} else {
		t.ctrl.SetEnabled(true)
	}
	t.changed()
}

func (t *Table) onReset(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.rules == nil {
		t.mu.Unlock()
		return
	}
	t.resetTimer = nil
	t.restartLocked()
	pos := t.pos
	t.mu.Unlock()
	t.ctrl.Reset(pos)
	t.ctrl.SetEnabled(true)
	t.changed()
}

func (t *Table) restartLocked() {
	t.rules.Restart()
	t.pos = t.initial
}

// submit reports a solved attempt. Input stays disabled until the recorder
// answers; on failure the attempt starts over so the user can solve it again.
func (t *Table) submit(gen uint64, puzzleID string, played []string) {
	t.run(func() {
		err := t.rec.CompletePuzzle(context.Background(), puzzleID, played)
		t.mu.Lock()
		if gen != t.gen {
			t.mu.Unlock()
			return
		}
		t.busy = false
		if err == nil {
			t.mu.Unlock()
			t.changed()
			return
		}
		t.restartLocked()
		pos := t.pos
		t.mu.Unlock()
		t.logger.Debug("table_submit_failed", zap.String("puzzle_id", puzzleID), zap.Error(err))
		t.ctrl.Reset(pos)
		t.ctrl.SetEnabled(true)
		t.changed()
	})
}

// Stop cancels reply, reset and drag timers.
func (t *Table) Stop() {
	t.mu.Lock()
	t.gen++
	t.stopTimersLocked()
	t.mu.Unlock()
	t.ctrl.Stop()
	t.ctrl.SetEnabled(false)
}

func (t *Table) stopTimersLocked() {
	if t.replyTimer != nil {
		t.replyTimer.Stop()
		t.replyTimer = nil
	}
	if t.resetTimer != nil {
		t.resetTimer.Stop()
		t.resetTimer = nil
	}
}

func (t *Table) View() TableView {
	t.mu.Lock()
	v := TableView{
		Position:     t.pos,
		Human:        t.human,
		Busy:         t.busy,
		Unrenderable: t.renderErr,
	}
	if t.puzzle != nil {
		p := *t.puzzle
		v.Puzzle = &p
	}
	if t.rules != nil {
		v.Solved = t.rules.Solved()
		v.Failed = t.rules.Failed()
		if k, ok := t.rules.(*puzzle.Kids); ok {
			v.Targets = make(map[rules.Square]board.Target)
			for sq, item := range k.Targets() {
				v.Targets[sq] = board.Target{Item: item}
			}
			for _, sq := range k.Captured() {
				tg := v.Targets[sq]
				tg.Captured = true
				v.Targets[sq] = tg
			}
		}
	}
	t.mu.Unlock()
	v.Board = t.ctrl.View()
	return v
}

func (t *Table) changed() {
	if t.onChange != nil {
		t.onChange(t.View())
	}
}

func (t *Table) notice(n domain.Notice) {
	if t.onNotice != nil {
		t.onNotice(n)
	}
}

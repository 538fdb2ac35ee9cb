package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena-client/internal/api"
	"github.com/park285/chess-arena-client/internal/clock"
	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/store"
)

const (
	TickInterval   = time.Second
	AdvanceDelay   = time.Second
	ExitDelay      = 3 * time.Second
	CasualDuration = 600 * time.Second
	CasualPoints   = 10
)

var (
	ErrNoPuzzles          = errors.New("session: no puzzles to play")
	ErrNotActive          = errors.New("session: not active")
	ErrNotCurrent         = errors.New("session: puzzle is not the current one")
	ErrSubmissionInFlight = errors.New("session: submission already in flight")
	ErrLastPuzzle         = errors.New("session: no puzzle after this one")
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseActive    Phase = "active"
	PhaseCompleted Phase = "completed"
	PhaseTimedOut  Phase = "timed_out"
	PhaseEnded     Phase = "ended"
	PhaseStopped   Phase = "stopped"
)

// Backend is the REST surface the engine uses. *api.Client implements it.
type Backend interface {
	Competition(ctx context.Context, id string) (*domain.Competition, error)
	CasualPuzzles(ctx context.Context) ([]domain.Puzzle, error)
	Submit(ctx context.Context, competitionID, puzzleID string, solution []string, timeSpent int) (*api.SubmitResult, error)
}

type Config struct {
	// CompetitionID selects the competition; empty plays the casual pool.
	CompetitionID string
	// ConfirmationRequired commits only after the backend scores the submission.
	ConfirmationRequired bool
	Identity             domain.Identity
	Backend              Backend
	Store                store.KV
	Clock                clock.Clock
	Logger               *zap.Logger

	CasualDuration time.Duration
	CasualPoints   int

	OnChange func(Snapshot)
	OnNotice func(domain.Notice)
	// OnExit fires once the timed out session should be left.
	OnExit func()
}

// Snapshot is a read-only copy of the engine for observers.
type Snapshot struct {
	Phase                Phase
	SessionID            string
	Title                string
	Puzzle               *domain.Puzzle
	Index                int
	Total                int
	State                domain.SessionState
	Submitting           bool
	ConfirmationRequired bool
}

// Engine owns the puzzle sequence, progress and countdown of one session.
// It is the only writer of the persisted session state.
type Engine struct {
	cfg       Config
	sessionID string
	key       string
	clk       clock.Clock
	logger    *zap.Logger

	mu          sync.Mutex
	phase       Phase
	title       string
	puzzles     []domain.Puzzle
	endTime     time.Time
	state       domain.SessionState
	loaded      bool
	cleared     bool
	inflight    string
	puzzleStart time.Time
	gen         uint64
	tick        clock.Timer
	advance     clock.Timer
	exit        clock.Timer

	// saveMu orders writes so the last persisted copy is the latest state.
	saveMu sync.Mutex
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, errors.New("session: backend is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CasualDuration <= 0 {
		cfg.CasualDuration = CasualDuration
	}
	if cfg.CasualPoints <= 0 {
		cfg.CasualPoints = CasualPoints
	}
	cfg.CompetitionID = strings.TrimSpace(cfg.CompetitionID)
	id := cfg.CompetitionID
	if id == "" {
		id = domain.CasualSessionID
	}
	return &Engine{
		cfg:       cfg,
		sessionID: id,
		key:       domain.StateKey(id),
		clk:       cfg.Clock,
		logger:    cfg.Logger.With(zap.String("session_id", id)),
		phase:     PhaseIdle,
	}, nil
}

func (e *Engine) SessionID() string { return e.sessionID }

// Load resolves the puzzle source and restores persisted progress.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.phase != PhaseIdle {
		e.mu.Unlock()
		return fmt.Errorf("session: load in phase %s", e.phase)
	}
	e.phase = PhaseLoading
	gen := e.gen
	e.mu.Unlock()

	title, puzzles, endTime, err := e.resolve(ctx)
	if err == nil && len(puzzles) == 0 {
		err = ErrNoPuzzles
	}
	if err != nil {
		e.mu.Lock()
		if e.gen == gen {
			e.phase = PhaseIdle
		}
		e.mu.Unlock()
		e.logger.Warn("session_load_failed", zap.Error(err))
		return err
	}

	var saved domain.SessionState
	found, err := store.GetJSON(ctx, e.cfg.Store, e.key, &saved)
	if err != nil {
		// unreadable state is replaced by a fresh one
		e.logger.Warn("session_restore_failed", zap.Error(err))
		found = false
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return ErrNotActive
	}
	now := e.clk.Now()
	e.title = title
	e.puzzles = puzzles
	e.endTime = endTime
	done := false
	if found {
		e.state, done = e.restoreLocked(saved, now)
	} else {
		e.state = domain.SessionState{
			TimeLeftSeconds: e.seedLocked(now),
			PuzzleStatuses:  map[string]domain.PuzzleStatus{},
		}
	}
	e.state.SavedAt = now
	e.puzzleStart = now
	e.loaded = true
	e.phase = PhaseActive
	if done {
		e.phase = PhaseCompleted
		e.cleared = true
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Info("session_loaded",
		zap.Int("puzzles", len(puzzles)),
		zap.Bool("restored", found),
		zap.Int("index", snap.Index),
		zap.Int("time_left", snap.State.TimeLeftSeconds),
	)
	if done {
		e.logger.Info("session_completed", zap.Int("score", snap.State.Score), zap.Int("solved", snap.State.SolvedCount))
		e.clear()
	} else {
		e.save()
	}
	e.emit(snap)
	return nil
}

func (e *Engine) resolve(ctx context.Context) (string, []domain.Puzzle, time.Time, error) {
	if e.cfg.CompetitionID == "" {
		ps, err := e.cfg.Backend.CasualPuzzles(ctx)
		if err != nil {
			return "", nil, time.Time{}, fmt.Errorf("load casual puzzles: %w", err)
		}
		return "Casual", ps, time.Time{}, nil
	}
	comp, err := e.cfg.Backend.Competition(ctx, e.cfg.CompetitionID)
	if err != nil {
		return "", nil, time.Time{}, fmt.Errorf("load competition %s: %w", e.cfg.CompetitionID, err)
	}
	return comp.Title, comp.Puzzles, comp.EndTime, nil
}

func (e *Engine) seedLocked(now time.Time) int {
	if e.cfg.CompetitionID == "" {
		return int(e.cfg.CasualDuration / time.Second)
	}
	return remainingSeconds(e.endTime, now)
}

// restoreLocked carries saved progress forward by the wall-clock time elapsed
// since it was written. A solved current puzzle means the advance never ran,
// so the index moves on; done reports that the last puzzle was already solved.
func (e *Engine) restoreLocked(saved domain.SessionState, now time.Time) (domain.SessionState, bool) {
	st := saved.Clone()
	if !saved.SavedAt.IsZero() && now.After(saved.SavedAt) {
		st.TimeLeftSeconds -= int(now.Sub(saved.SavedAt) / time.Second)
	}
	if e.cfg.CompetitionID != "" && !e.endTime.IsZero() {
		if limit := remainingSeconds(e.endTime, now); st.TimeLeftSeconds > limit {
			st.TimeLeftSeconds = limit
		}
	}
	if st.TimeLeftSeconds < 0 {
		st.TimeLeftSeconds = 0
	}
	if st.CurrentPuzzleIndex < 0 || st.CurrentPuzzleIndex >= len(e.puzzles) {
		st.CurrentPuzzleIndex = 0
	}
	for st.PuzzleStatuses[e.puzzles[st.CurrentPuzzleIndex].ID] == domain.StatusSuccess {
		if st.CurrentPuzzleIndex >= len(e.puzzles)-1 {
			st.SolvedCount = st.CountSolved()
			return st, true
		}
		st.CurrentPuzzleIndex++
	}
	st.SolvedCount = st.CountSolved()
	return st, false
}

func remainingSeconds(end, now time.Time) int {
	if end.IsZero() || !end.After(now) {
		return 0
	}
	return int(end.Sub(now) / time.Second)
}

// Start begins the 1Hz countdown. A session restored as completed has nothing
// to count down.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.phase == PhaseCompleted && e.loaded {
		e.mu.Unlock()
		return nil
	}
	if e.phase != PhaseActive {
		e.mu.Unlock()
		return ErrNotActive
	}
	if e.tick != nil {
		e.mu.Unlock()
		return nil
	}
	if e.state.TimeLeftSeconds <= 0 {
		snap := e.timeoutLocked()
		e.mu.Unlock()
		e.afterTimeout(snap)
		return nil
	}
	gen := e.gen
	e.tick = e.clk.AfterFunc(TickInterval, func() { e.onTick(gen) })
	e.mu.Unlock()
	return nil
}

func (e *Engine) onTick(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseActive {
		e.mu.Unlock()
		return
	}
	e.state.TimeLeftSeconds--
	e.state.SavedAt = e.clk.Now()
	if e.state.TimeLeftSeconds <= 0 {
		snap := e.timeoutLocked()
		e.mu.Unlock()
		e.afterTimeout(snap)
		return
	}
	e.tick = e.clk.AfterFunc(TickInterval, func() { e.onTick(gen) })
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.save()
	e.emit(snap)
}

func (e *Engine) timeoutLocked() Snapshot {
	e.state.TimeLeftSeconds = 0
	e.phase = PhaseTimedOut
	e.stopTimersLocked()
	gen := e.gen
	e.exit = e.clk.AfterFunc(ExitDelay, func() { e.onExit(gen) })
	return e.snapshotLocked()
}

// afterTimeout persists the final countdown; the key is kept for a later reload.
func (e *Engine) afterTimeout(snap Snapshot) {
	e.logger.Info("session_timed_out", zap.Int("score", snap.State.Score), zap.Int("solved", snap.State.SolvedCount))
	e.save()
	e.emit(snap)
	e.notice(domain.NewNotice(domain.NoticeWarn, domain.NoticeTimedOut, "score", snap.State.Score))
}

func (e *Engine) onExit(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.exit = nil
	e.mu.Unlock()
	if e.cfg.OnExit != nil {
		e.cfg.OnExit()
	}
}

// CompletePuzzle records a solved attempt. With confirmation the backend has to
// score it first; a failed submission leaves the state untouched. A puzzle that
// is already a success is ignored.
func (e *Engine) CompletePuzzle(ctx context.Context, puzzleID string, solution []string) error {
	e.mu.Lock()
	if e.phase != PhaseActive {
		e.mu.Unlock()
		return ErrNotActive
	}
	cur := e.puzzles[e.state.CurrentPuzzleIndex]
	if cur.ID != puzzleID {
		e.mu.Unlock()
		return ErrNotCurrent
	}
	if e.state.PuzzleStatuses[puzzleID] == domain.StatusSuccess {
		e.mu.Unlock()
		e.logger.Debug("session_already_solved", zap.String("puzzle_id", puzzleID))
		return nil
	}
	if e.inflight != "" {
		e.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if !e.cfg.ConfirmationRequired {
		snap, completed := e.commitLocked(puzzleID, e.cfg.CasualPoints)
		e.mu.Unlock()
		e.afterCommit(snap, completed, e.cfg.CasualPoints)
		return nil
	}
	gen := e.gen
	spent := int(e.clk.Now().Sub(e.puzzleStart) / time.Second)
	e.inflight = puzzleID
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)

	res, err := e.cfg.Backend.Submit(ctx, e.cfg.CompetitionID, puzzleID, solution, spent)

	e.mu.Lock()
	if gen != e.gen {
		// left while the call was out; nothing to apply
		e.mu.Unlock()
		return ErrNotActive
	}
	e.inflight = ""
	if err != nil {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap)
		e.submitFailed(puzzleID, err)
		return err
	}
	snap, completed := e.commitLocked(puzzleID, res.ScoreEarned)
	e.mu.Unlock()
	e.logger.Info("session_submit_confirmed",
		zap.String("puzzle_id", puzzleID),
		zap.Int("score_earned", res.ScoreEarned),
		zap.String("request_id", res.RequestID),
	)
	e.afterCommit(snap, completed, res.ScoreEarned)
	return nil
}

func (e *Engine) submitFailed(puzzleID string, err error) {
	var rej *api.SubmissionRejectedError
	switch {
	case errors.Is(err, api.ErrAuthRequired):
		e.logger.Warn("session_submit_unauthenticated", zap.String("puzzle_id", puzzleID))
		e.notice(domain.NewNotice(domain.NoticeError, domain.NoticeAuthRequired))
	case errors.As(err, &rej):
		e.logger.Warn("session_submit_rejected", zap.String("puzzle_id", puzzleID), zap.String("message", rej.Message))
		e.notice(domain.NewNotice(domain.NoticeError, domain.NoticeSubmitRejected, "message", rej.Message))
	default:
		e.logger.Warn("session_submit_failed", zap.String("puzzle_id", puzzleID), zap.Error(err))
		e.notice(domain.NewNotice(domain.NoticeError, domain.NoticeSubmitFailed, "error", err.Error()))
	}
}

// commitLocked applies a confirmed success and schedules the advance.
func (e *Engine) commitLocked(puzzleID string, points int) (Snapshot, bool) {
	e.state.PuzzleStatuses[puzzleID] = domain.StatusSuccess
	e.state.Score += points
	e.state.SolvedCount = e.state.CountSolved()
	e.state.SavedAt = e.clk.Now()
	completed := e.state.CurrentPuzzleIndex >= len(e.puzzles)-1
	if completed {
		e.phase = PhaseCompleted
		e.stopTimersLocked()
		e.cleared = true
	} else {
		gen := e.gen
		e.advance = e.clk.AfterFunc(AdvanceDelay, func() { e.onAdvance(gen) })
	}
	return e.snapshotLocked(), completed
}

func (e *Engine) afterCommit(snap Snapshot, completed bool, points int) {
	e.notice(domain.NewNotice(domain.NoticeInfo, domain.NoticeSolved, "points", points, "score", snap.State.Score))
	if completed {
		e.logger.Info("session_completed", zap.Int("score", snap.State.Score), zap.Int("solved", snap.State.SolvedCount))
		e.clear()
		e.emit(snap)
		e.notice(domain.NewNotice(domain.NoticeInfo, domain.NoticeCompleted, "score", snap.State.Score, "solved", snap.State.SolvedCount))
		return
	}
	e.save()
	e.emit(snap)
}

func (e *Engine) onAdvance(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseActive {
		e.mu.Unlock()
		return
	}
	e.advance = nil
	e.state.CurrentPuzzleIndex++
	e.state.SavedAt = e.clk.Now()
	e.puzzleStart = e.clk.Now()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.save()
	e.emit(snap)
}

// MarkFailed records a wrong attempt. The puzzle stays current and can be retried.
func (e *Engine) MarkFailed(puzzleID string) {
	e.mu.Lock()
	if e.phase != PhaseActive || e.state.PuzzleStatuses[puzzleID] == domain.StatusSuccess {
		e.mu.Unlock()
		return
	}
	if e.state.PuzzleStatuses[puzzleID] == domain.StatusFailed {
		e.mu.Unlock()
		return
	}
	e.state.PuzzleStatuses[puzzleID] = domain.StatusFailed
	e.state.SolvedCount = e.state.CountSolved()
	e.state.SavedAt = e.clk.Now()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.save()
	e.emit(snap)
}

// Skip moves past the current puzzle without solving it. An unsolved puzzle is
// recorded as failed. The last puzzle cannot be skipped.
func (e *Engine) Skip() error {
	e.mu.Lock()
	if e.phase != PhaseActive {
		e.mu.Unlock()
		return ErrNotActive
	}
	if e.inflight != "" {
		e.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if e.state.CurrentPuzzleIndex >= len(e.puzzles)-1 {
		e.mu.Unlock()
		return ErrLastPuzzle
	}
	id := e.puzzles[e.state.CurrentPuzzleIndex].ID
	if e.state.PuzzleStatuses[id] != domain.StatusSuccess {
		e.state.PuzzleStatuses[id] = domain.StatusFailed
	}
	if e.advance != nil {
		e.advance.Stop()
		e.advance = nil
	}
	e.state.CurrentPuzzleIndex++
	e.state.SolvedCount = e.state.CountSolved()
	e.state.SavedAt = e.clk.Now()
	e.puzzleStart = e.state.SavedAt
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.logger.Info("session_puzzle_skipped", zap.String("puzzle_id", id))
	e.save()
	e.emit(snap)
	return nil
}

// End finishes the session on purpose and drops its persisted state.
func (e *Engine) End() {
	e.mu.Lock()
	e.gen++
	e.stopTimersLocked()
	e.inflight = ""
	e.phase = PhaseEnded
	e.cleared = true
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.logger.Info("session_ended")
	e.clear()
	e.emit(snap)
}

// Stop leaves the session. Timers are cancelled, in-flight continuations become
// no-ops and the persisted state is kept for the next visit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.phase == PhaseStopped || e.phase == PhaseEnded {
		e.mu.Unlock()
		return
	}
	e.gen++
	e.stopTimersLocked()
	e.inflight = ""
	wasActive := e.phase == PhaseActive
	if e.loaded && wasActive {
		e.state.SavedAt = e.clk.Now()
	}
	e.phase = PhaseStopped
	e.mu.Unlock()
	if wasActive {
		e.save()
	}
}

func (e *Engine) stopTimersLocked() {
	for _, t := range []*clock.Timer{&e.tick, &e.advance, &e.exit} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:                e.phase,
		SessionID:            e.sessionID,
		Title:                e.title,
		Index:                e.state.CurrentPuzzleIndex,
		Total:                len(e.puzzles),
		State:                e.state.Clone(),
		Submitting:           e.inflight != "",
		ConfirmationRequired: e.cfg.ConfirmationRequired,
	}
	if e.loaded && s.Index < len(e.puzzles) {
		p := e.puzzles[s.Index]
		s.Puzzle = &p
	}
	return s
}

func (e *Engine) save() {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	e.mu.Lock()
	if !e.loaded || e.cleared {
		e.mu.Unlock()
		return
	}
	st := e.state.Clone()
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.SetJSON(ctx, e.cfg.Store, e.key, st); err != nil {
		e.logger.Warn("session_persist_failed", zap.Error(err))
	}
}

func (e *Engine) clear() {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.cfg.Store.Delete(ctx, e.key); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("session_clear_failed", zap.Error(err))
	}
}

func (e *Engine) emit(s Snapshot) {
	if e.cfg.OnChange != nil {
		e.cfg.OnChange(s)
	}
}

func (e *Engine) notice(n domain.Notice) {
	if e.cfg.OnNotice != nil {
		e.cfg.OnNotice(n)
	}
}

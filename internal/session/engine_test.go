package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-arena-client/internal/api"
	"github.com/park285/chess-arena-client/internal/clock"
	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/store"
)

type submitCall struct {
	puzzleID  string
	solution  []string
	timeSpent int
}

type fakeBackend struct {
	mu       sync.Mutex
	comp     *domain.Competition
	casual   []domain.Puzzle
	submits  []submitCall
	submitFn func(puzzleID string) (*api.SubmitResult, error)
}

func (b *fakeBackend) Competition(ctx context.Context, id string) (*domain.Competition, error) {
	if b.comp == nil {
		return nil, &api.StatusError{Status: 404, Message: "Competition not found"}
	}
	c := *b.comp
	return &c, nil
}

func (b *fakeBackend) CasualPuzzles(ctx context.Context) ([]domain.Puzzle, error) {
	return b.casual, nil
}

func (b *fakeBackend) Submit(ctx context.Context, competitionID, puzzleID string, solution []string, timeSpent int) (*api.SubmitResult, error) {
	b.mu.Lock()
	b.submits = append(b.submits, submitCall{puzzleID: puzzleID, solution: solution, timeSpent: timeSpent})
	fn := b.submitFn
	b.mu.Unlock()
	if fn == nil {
		return &api.SubmitResult{ScoreEarned: 20, RequestID: "req"}, nil
	}
	return fn(puzzleID)
}

func (b *fakeBackend) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submits)
}

var start = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func twoPuzzles() []domain.Puzzle {
	return []domain.Puzzle{
		{ID: "p1", FEN: "2q3k1/8/8/5N2/6P1/7K/8/8 w - - 0 1", SolutionMoves: []string{"Ne7+", "Kf7", "Nxc8"}},
		{ID: "p2", FEN: rulesStart, SolutionMoves: []string{"e4"}},
	}
}

const rulesStart = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type harness struct {
	engine  *Engine
	backend *fakeBackend
	kv      *store.Memory
	clk     *clock.Fake
	notices []domain.Notice
	exits   int
}

func newCompetitionHarness(t *testing.T, end time.Time) *harness {
	t.Helper()
	h := &harness{
		backend: &fakeBackend{comp: &domain.Competition{ID: "c1", Title: "Arena", Puzzles: twoPuzzles(), StartTime: start, EndTime: end}},
		kv:      store.NewMemory(),
		clk:     clock.NewFake(start),
	}
	h.engine = h.newEngine(t, "c1", true)
	return h
}

func (h *harness) newEngine(t *testing.T, competitionID string, confirm bool) *Engine {
	t.Helper()
	e, err := NewEngine(Config{
		CompetitionID:        competitionID,
		ConfirmationRequired: confirm,
		Identity:             domain.Identity{Token: "tok", Username: "ann"},
		Backend:              h.backend,
		Store:                h.kv,
		Clock:                h.clk,
		OnNotice:             func(n domain.Notice) { h.notices = append(h.notices, n) },
		OnExit:               func() { h.exits++ },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func (h *harness) persisted(t *testing.T, id string) (domain.SessionState, bool) {
	t.Helper()
	var st domain.SessionState
	ok, err := store.GetJSON(context.Background(), h.kv, domain.StateKey(id), &st)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	return st, ok
}

func (h *harness) lastNotice() domain.Notice {
	if len(h.notices) == 0 {
		return domain.Notice{}
	}
	return h.notices[len(h.notices)-1]
}

func mustLoad(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadSeedsCompetitionCountdown(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(30*time.Minute))
	mustLoad(t, h.engine)
	snap := h.engine.Snapshot()
	if snap.Phase != PhaseActive || snap.Total != 2 || snap.Puzzle.ID != "p1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.State.TimeLeftSeconds != 1800 {
		t.Fatalf("expected 1800s left, got %d", snap.State.TimeLeftSeconds)
	}
	if _, ok := h.persisted(t, "c1"); !ok {
		t.Fatalf("state should be persisted once loaded")
	}
}

func TestConfirmedSubmissionCommitsThenAdvances(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(30*time.Minute))
	mustLoad(t, h.engine)
	h.clk.Advance(12 * time.Second)

	if err := h.engine.CompletePuzzle(context.Background(), "p1", []string{"Ne7+", "Kf7", "Nxc8"}); err != nil {
		t.Fatalf("CompletePuzzle: %v", err)
	}
	snap := h.engine.Snapshot()
	if snap.State.Score != 20 || snap.State.SolvedCount != 1 || snap.State.PuzzleStatuses["p1"] != domain.StatusSuccess {
		t.Fatalf("commit not applied: %+v", snap.State)
	}
	if snap.Index != 0 {
		t.Fatalf("advance must wait for the delay, index=%d", snap.Index)
	}
	if got := h.backend.submits[0]; got.timeSpent != 12 || len(got.solution) != 3 {
		t.Fatalf("unexpected submit call %+v", got)
	}

	h.clk.Advance(AdvanceDelay)
	snap = h.engine.Snapshot()
	if snap.Index != 1 || snap.Puzzle.ID != "p2" {
		t.Fatalf("expected to advance to p2, got index %d", snap.Index)
	}
	st, _ := h.persisted(t, "c1")
	if st.CurrentPuzzleIndex != 1 || st.Score != 20 || st.SolvedCount != 1 {
		t.Fatalf("persisted state out of date: %+v", st)
	}
}

func TestFailedSubmissionLeavesStateUnchanged(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"network", &api.TransportError{Op: "POST submit", Err: errors.New("connection refused")}, domain.NoticeSubmitFailed},
		{"rejected", &api.SubmissionRejectedError{PuzzleID: "p1", Status: 400, Message: "Incorrect solution"}, domain.NoticeSubmitRejected},
		{"auth", api.ErrAuthRequired, domain.NoticeAuthRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newCompetitionHarness(t, start.Add(30*time.Minute))
			h.backend.submitFn = func(string) (*api.SubmitResult, error) { return nil, tc.err }
			mustLoad(t, h.engine)
			before := h.engine.Snapshot().State

			err := h.engine.CompletePuzzle(context.Background(), "p1", []string{"Ne7+"})
			if !errors.Is(err, tc.err) && !errors.As(err, new(*api.SubmissionRejectedError)) {
				t.Fatalf("expected the submission error, got %v", err)
			}
			h.clk.Advance(5 * AdvanceDelay)
			after := h.engine.Snapshot().State
			if after.Score != before.Score || after.SolvedCount != before.SolvedCount || after.CurrentPuzzleIndex != before.CurrentPuzzleIndex {
				t.Fatalf("state changed after failed submission: %+v -> %+v", before, after)
			}
			if _, ok := after.PuzzleStatuses["p1"]; ok {
				t.Fatalf("status must not be recorded")
			}
			if h.lastNotice().Code != tc.code {
				t.Fatalf("expected %s notice, got %+v", tc.code, h.lastNotice())
			}
			if h.engine.Snapshot().Submitting {
				t.Fatalf("submission flag must clear")
			}
		})
	}
}

func TestSuccessIsRecordedOnce(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(30*time.Minute))
	mustLoad(t, h.engine)
	ctx := context.Background()
	if err := h.engine.CompletePuzzle(ctx, "p1", nil); err != nil {
		t.Fatalf("CompletePuzzle: %v", err)
	}
	if err := h.engine.CompletePuzzle(ctx, "p1", nil); err != nil {
		t.Fatalf("repeat should be a no-op, got %v", err)
	}
	if n := h.backend.submitCount(); n != 1 {
		t.Fatalf("repeat must not resubmit, got %d calls", n)
	}
	if st := h.engine.Snapshot().State; st.Score != 20 || st.SolvedCount != 1 {
		t.Fatalf("score counted twice: %+v", st)
	}
	h.engine.MarkFailed("p1")
	if h.engine.Snapshot().State.PuzzleStatuses["p1"] != domain.StatusSuccess {
		t.Fatalf("a success must not be downgraded")
	}
}

func TestSecondSubmissionWhileInFlight(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(30*time.Minute))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.submitFn = func(string) (*api.SubmitResult, error) {
		close(entered)
		<-release
		return &api.SubmitResult{ScoreEarned: 20}, nil
	}
	mustLoad(t, h.engine)

	done := make(chan error, 1)
	go func() { done <- h.engine.CompletePuzzle(context.Background(), "p1", nil) }()
	<-entered
	if !h.engine.Snapshot().Submitting {
		t.Fatalf("snapshot should report the submission")
	}
	if err := h.engine.CompletePuzzle(context.Background(), "p1", nil); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if n := h.backend.submitCount(); n != 1 {
		t.Fatalf("expected one call, got %d", n)
	}
}

func TestStopDuringSubmissionIsNoOp(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(30*time.Minute))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.submitFn = func(string) (*api.SubmitResult, error) {
		close(entered)
		<-release
		return &api.SubmitResult{ScoreEarned: 20}, nil
	}
	mustLoad(t, h.engine)

	done := make(chan error, 1)
	go func() { done <- h.engine.CompletePuzzle(context.Background(), "p1", nil) }()
	<-entered
	h.engine.Stop()
	close(release)
	if err := <-done; !errors.Is(err, ErrNotActive) {
		t.Fatalf("late continuation should report ErrNotActive, got %v", err)
	}
	if st := h.engine.Snapshot().State; st.Score != 0 || st.SolvedCount != 0 {
		t.Fatalf("late confirmation must not mutate state: %+v", st)
	}
	if h.clk.Pending() != 0 {
		t.Fatalf("no timers may survive Stop, pending=%d", h.clk.Pending())
	}
}

func TestCasualCommitsImmediatelyAndCompletes(t *testing.T) {
	h := &harness{
		backend: &fakeBackend{casual: twoPuzzles()},
		kv:      store.NewMemory(),
		clk:     clock.NewFake(start),
	}
	e := h.newEngine(t, "", false)
	mustLoad(t, e)
	if st := e.Snapshot().State; st.TimeLeftSeconds != int(CasualDuration/time.Second) {
		t.Fatalf("casual sessions seed the default duration, got %d", st.TimeLeftSeconds)
	}
	ctx := context.Background()
	if err := e.CompletePuzzle(ctx, "p1", nil); err != nil {
		t.Fatalf("CompletePuzzle: %v", err)
	}
	if h.backend.submitCount() != 0 {
		t.Fatalf("casual sessions must not submit")
	}
	if st := e.Snapshot().State; st.Score != CasualPoints || st.SolvedCount != 1 {
		t.Fatalf("casual commit not applied: %+v", st)
	}
	h.clk.Advance(AdvanceDelay)
	if err := e.CompletePuzzle(ctx, "p2", nil); err != nil {
		t.Fatalf("CompletePuzzle p2: %v", err)
	}
	if e.Snapshot().Phase != PhaseCompleted {
		t.Fatalf("expected completed, got %s", e.Snapshot().Phase)
	}
	if _, ok := h.persisted(t, domain.CasualSessionID); ok {
		t.Fatalf("completion must clear the persisted state")
	}
	if h.lastNotice().Code != domain.NoticeCompleted {
		t.Fatalf("expected completed notice, got %+v", h.lastNotice())
	}
}

func TestRestoreSubtractsElapsedTime(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(time.Hour))
	saved := domain.SessionState{
		CurrentPuzzleIndex: 1,
		TimeLeftSeconds:    300,
		Score:              20,
		SolvedCount:        1,
		PuzzleStatuses:     map[string]domain.PuzzleStatus{"p1": domain.StatusSuccess},
		SavedAt:            start.Add(-30 * time.Second),
	}
	if err := store.SetJSON(context.Background(), h.kv, domain.StateKey("c1"), saved); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	mustLoad(t, h.engine)
	st := h.engine.Snapshot().State
	if st.CurrentPuzzleIndex != 1 || st.Score != 20 || st.SolvedCount != 1 || st.PuzzleStatuses["p1"] != domain.StatusSuccess {
		t.Fatalf("restored state differs: %+v", st)
	}
	if st.TimeLeftSeconds != 270 {
		t.Fatalf("expected 270s after 30s away, got %d", st.TimeLeftSeconds)
	}
}

func TestRestoreMovesPastSolvedPuzzle(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(time.Hour))
	mustLoad(t, h.engine)
	if err := h.engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.engine.CompletePuzzle(context.Background(), "p1", []string{"Ne7+", "Kf7", "Nxc8"}); err != nil {
		t.Fatalf("CompletePuzzle: %v", err)
	}
	// leave before the advance timer fires
	h.engine.Stop()
	if st, ok := h.persisted(t, "c1"); !ok || st.CurrentPuzzleIndex != 0 {
		t.Fatalf("expected saved index 0, got %+v (found %v)", st, ok)
	}

	again := h.newEngine(t, "c1", true)
	mustLoad(t, again)
	if err := again.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := again.Snapshot()
	if snap.Phase != PhaseActive || snap.Index != 1 || snap.Puzzle.ID != "p2" {
		t.Fatalf("expected to resume on p2, got phase=%s index=%d", snap.Phase, snap.Index)
	}
	if snap.State.PuzzleStatuses["p1"] != domain.StatusSuccess || snap.State.Score != 20 {
		t.Fatalf("restored progress lost: %+v", snap.State)
	}
	if err := again.CompletePuzzle(context.Background(), "p2", []string{"e4"}); err != nil {
		t.Fatalf("CompletePuzzle p2: %v", err)
	}
	if again.Snapshot().Phase != PhaseCompleted {
		t.Fatalf("expected completion after p2, got %s", again.Snapshot().Phase)
	}
}

func TestRestoreWithLastPuzzleSolvedCompletes(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(time.Hour))
	saved := domain.SessionState{
		CurrentPuzzleIndex: 1,
		TimeLeftSeconds:    300,
		Score:              40,
		PuzzleStatuses:     map[string]domain.PuzzleStatus{"p1": domain.StatusSuccess, "p2": domain.StatusSuccess},
		SavedAt:            start,
	}
	if err := store.SetJSON(context.Background(), h.kv, domain.StateKey("c1"), saved); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	mustLoad(t, h.engine)
	if err := h.engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := h.engine.Snapshot()
	if snap.Phase != PhaseCompleted || snap.State.SolvedCount != 2 {
		t.Fatalf("expected completed session, got phase=%s %+v", snap.Phase, snap.State)
	}
	if _, ok := h.persisted(t, "c1"); ok {
		t.Fatalf("completed session should drop its saved state")
	}
	if h.clk.Pending() != 0 {
		t.Fatalf("no countdown for a completed session, pending=%d", h.clk.Pending())
	}
}

func TestRestoreClampsToCompetitionEnd(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(time.Minute))
	saved := domain.SessionState{TimeLeftSeconds: 900, PuzzleStatuses: map[string]domain.PuzzleStatus{}, SavedAt: start}
	_ = store.SetJSON(context.Background(), h.kv, domain.StateKey("c1"), saved)
	mustLoad(t, h.engine)
	if got := h.engine.Snapshot().State.TimeLeftSeconds; got != 60 {
		t.Fatalf("expected clamp to 60s, got %d", got)
	}
}

func TestCountdownTimesOutAndKeepsState(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(3*time.Second))
	mustLoad(t, h.engine)
	if err := h.engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clk.Advance(2 * time.Second)
	if got := h.engine.Snapshot().State.TimeLeftSeconds; got != 1 {
		t.Fatalf("expected 1s left, got %d", got)
	}
	h.clk.Advance(time.Second)
	if h.engine.Snapshot().Phase != PhaseTimedOut {
		t.Fatalf("expected timed out, got %s", h.engine.Snapshot().Phase)
	}
	if h.lastNotice().Code != domain.NoticeTimedOut {
		t.Fatalf("expected timeout notice, got %+v", h.lastNotice())
	}
	if h.exits != 0 {
		t.Fatalf("exit must wait for the delay")
	}
	h.clk.Advance(ExitDelay)
	if h.exits != 1 {
		t.Fatalf("expected exit after the delay, got %d", h.exits)
	}
	st, ok := h.persisted(t, "c1")
	if !ok || st.TimeLeftSeconds != 0 {
		t.Fatalf("timeout keeps the persisted state, got ok=%v %+v", ok, st)
	}
	if err := h.engine.CompletePuzzle(context.Background(), "p1", nil); !errors.Is(err, ErrNotActive) {
		t.Fatalf("no submissions after timeout, got %v", err)
	}
}

func TestStopCancelsAllTimers(t *testing.T) {
	h := &harness{
		backend: &fakeBackend{casual: twoPuzzles()},
		kv:      store.NewMemory(),
		clk:     clock.NewFake(start),
	}
	e := h.newEngine(t, "", false)
	mustLoad(t, e)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.CompletePuzzle(context.Background(), "p1", nil); err != nil {
		t.Fatalf("CompletePuzzle: %v", err)
	}
	if h.clk.Pending() != 2 {
		t.Fatalf("expected tick and advance timers, pending=%d", h.clk.Pending())
	}
	e.Stop()
	if h.clk.Pending() != 0 {
		t.Fatalf("Stop must cancel every timer, pending=%d", h.clk.Pending())
	}
	h.clk.Advance(time.Minute)
	if e.Snapshot().Index != 0 {
		t.Fatalf("no advance after Stop")
	}
	if _, ok := h.persisted(t, domain.CasualSessionID); !ok {
		t.Fatalf("Stop keeps persisted state")
	}
}

func TestEndClearsState(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(time.Hour))
	mustLoad(t, h.engine)
	h.engine.End()
	if _, ok := h.persisted(t, "c1"); ok {
		t.Fatalf("End must clear persisted state")
	}
	h.engine.MarkFailed("p1")
	if _, ok := h.persisted(t, "c1"); ok {
		t.Fatalf("no writes after End")
	}
}

func TestMarkFailedAllowsRetry(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(time.Hour))
	mustLoad(t, h.engine)
	h.engine.MarkFailed("p1")
	snap := h.engine.Snapshot()
	if snap.State.PuzzleStatuses["p1"] != domain.StatusFailed || snap.Index != 0 {
		t.Fatalf("failed puzzle must stay current: %+v", snap)
	}
	if err := h.engine.CompletePuzzle(context.Background(), "p1", nil); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st := h.engine.Snapshot().State; st.PuzzleStatuses["p1"] != domain.StatusSuccess || st.SolvedCount != 1 {
		t.Fatalf("retry should succeed: %+v", st)
	}
}

func TestSkipRecordsFailureAndAdvances(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(time.Hour))
	mustLoad(t, h.engine)
	if err := h.engine.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	snap := h.engine.Snapshot()
	if snap.Index != 1 || snap.State.PuzzleStatuses["p1"] != domain.StatusFailed {
		t.Fatalf("unexpected state after skip: %+v", snap.State)
	}
	if err := h.engine.Skip(); !errors.Is(err, ErrLastPuzzle) {
		t.Fatalf("expected ErrLastPuzzle, got %v", err)
	}
}

func TestCompleteRejectsOtherPuzzle(t *testing.T) {
	h := newCompetitionHarness(t, start.Add(time.Hour))
	mustLoad(t, h.engine)
	if err := h.engine.CompletePuzzle(context.Background(), "p2", nil); !errors.Is(err, ErrNotCurrent) {
		t.Fatalf("expected ErrNotCurrent, got %v", err)
	}
}

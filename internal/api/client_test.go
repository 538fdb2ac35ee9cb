package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/pkg/arenadto"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, append([]Option{WithTimeout(2 * time.Second)}, opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCompetitionWrappedAndBare(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	doc := map[string]any{
		"_id":       "c1",
		"title":     "Spring Arena",
		"startTime": start,
		"duration":  30,
		"puzzles": []map[string]any{
			{"_id": "p1", "fen": "8/8/8/8/8/8/8/8 w - - 0 1", "solutionMoves": []string{"e4"}},
			{"_id": "p2", "type": "kids", "kidsConfig": map[string]any{"targets": []map[string]string{{"square": "e5", "item": "chocolate"}}}},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/competition/c1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"success": true, "competition": doc})
	})
	mux.HandleFunc("/competition/c2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, doc)
	})
	c, _ := newTestClient(t, mux)

	for _, id := range []string{"c1", "c2"} {
		comp, err := c.Competition(context.Background(), id)
		if err != nil {
			t.Fatalf("Competition(%s): %v", id, err)
		}
		if len(comp.Puzzles) != 2 || comp.Puzzles[0].ID != "p1" {
			t.Fatalf("unexpected puzzles %+v", comp.Puzzles)
		}
		if !comp.EndTime.Equal(start.Add(30 * time.Minute)) {
			t.Fatalf("end time should derive from duration, got %v", comp.EndTime)
		}
		kids := comp.Puzzles[1]
		if kids.Type != domain.PuzzleKids || kids.Kids == nil || kids.Kids.Targets[0].Item != domain.ItemChocolate {
			t.Fatalf("kids puzzle not mapped: %+v", kids)
		}
	}
}

func TestSubmitConfirmed(t *testing.T) {
	var gotAuth, gotReqID string
	var gotBody arenadto.SubmitRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/competition/c1/puzzles/p1/submit", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-Id")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, 200, map[string]any{"success": true, "scoreEarned": 20, "totalScore": 40, "puzzlesSolved": 2})
	})
	c, _ := newTestClient(t, mux, WithToken("tok"))

	res, err := c.Submit(context.Background(), "c1", "p1", []string{"Ne7+", "Kf7", "Nxc8"}, 42)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.ScoreEarned != 20 || res.TotalScore == nil || *res.TotalScore != 40 {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotReqID == "" || gotReqID != res.RequestID {
		t.Fatalf("request id not propagated: %q vs %q", gotReqID, res.RequestID)
	}
	if gotBody.TimeSpent != 42 || len(gotBody.Solution) != 3 {
		t.Fatalf("unexpected body %+v", gotBody)
	}
}

func TestSubmitRejections(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/competition/c1/puzzles/zero/submit", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"success": true, "scoreEarned": 0})
	})
	mux.HandleFunc("/competition/c1/puzzles/bad/submit", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]any{"success": false, "message": "Incorrect solution"})
	})
	mux.HandleFunc("/competition/c1/puzzles/auth/submit", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]any{"success": false})
	})
	c, _ := newTestClient(t, mux, WithToken("tok"))
	ctx := context.Background()

	var rej *SubmissionRejectedError
	if _, err := c.Submit(ctx, "c1", "zero", nil, 1); !errors.As(err, &rej) {
		t.Fatalf("zero score should be rejected, got %v", err)
	}
	if _, err := c.Submit(ctx, "c1", "bad", nil, 1); !errors.As(err, &rej) || rej.Message != "Incorrect solution" || rej.Status != 400 {
		t.Fatalf("400 should be a rejection with message, got %v", err)
	}
	if _, err := c.Submit(ctx, "c1", "auth", nil, 1); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("401 should map to ErrAuthRequired, got %v", err)
	}

	anon, _ := newTestClient(t, mux)
	if _, err := anon.Submit(ctx, "c1", "zero", nil, 1); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("missing token should fail early, got %v", err)
	}
}

func TestSubmitTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	c, err := NewClient(addr, WithToken("tok"), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Submit(context.Background(), "c1", "p1", nil, 1)
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestParticipateToleratesAlreadyParticipating(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/competition/c1/participate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]any{"success": false, "message": "User is already participating in this competition"})
	})
	mux.HandleFunc("/competition/c2/participate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"success": true})
	})
	mux.HandleFunc("/competition/c3/participate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, map[string]any{"success": false, "message": "Competition not found"})
	})
	c, _ := newTestClient(t, mux, WithToken("tok"))
	ctx := context.Background()

	already, err := c.Participate(ctx, "c1")
	if err != nil || !already {
		t.Fatalf("expected tolerated rejection, got already=%v err=%v", already, err)
	}
	already, err = c.Participate(ctx, "c2")
	if err != nil || already {
		t.Fatalf("expected fresh participation, got already=%v err=%v", already, err)
	}
	if _, err := c.Participate(ctx, "c3"); err == nil {
		t.Fatalf("other rejections must surface")
	}
}

func TestLeaderboardRetriesServerErrors(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/competition/c1/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeJSON(w, 503, map[string]any{"success": false})
			return
		}
		writeJSON(w, 200, map[string]any{"success": true, "leaderboard": []map[string]any{
			{"rank": 1, "userId": "u2", "username": "bo", "score": 40, "puzzlesSolved": 2, "timeSpent": 90},
			{"rank": 2, "userId": "u1", "username": "ann", "score": 20, "puzzlesSolved": 1, "timeSpent": 30},
		}})
	})
	c, _ := newTestClient(t, mux)
	lb, err := c.Leaderboard(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected a retry, got %d calls", calls)
	}
	if len(lb) != 2 || lb[0].Username != "bo" || lb[1].Rank != 2 {
		t.Fatalf("order must be kept as sent: %+v", lb)
	}
}

func TestCasualPuzzles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/puzzle/get-puzzles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"success": true, "puzzles": []map[string]any{
			{"id": "p9", "fen": "8/8/8/8/8/8/8/8 w - - 0 1", "solutionMoves": []string{"Qh5"}, "title": "Warmup"},
		}})
	})
	c, _ := newTestClient(t, mux)
	ps, err := c.CasualPuzzles(context.Background())
	if err != nil {
		t.Fatalf("CasualPuzzles: %v", err)
	}
	if len(ps) != 1 || ps[0].ID != "p9" || ps[0].Type != domain.PuzzleNormal {
		t.Fatalf("unexpected pool %+v", ps)
	}
}

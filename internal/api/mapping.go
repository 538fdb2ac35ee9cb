package api

import (
	"math"
	"strings"
	"time"

	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/pkg/arenadto"
)

func PuzzleFromDTO(p arenadto.Puzzle) domain.Puzzle {
	out := domain.Puzzle{
		ID:            p.Key(),
		FEN:           strings.TrimSpace(p.FEN),
		SolutionMoves: append([]string(nil), p.SolutionMoves...),
		Type:          domain.PuzzleNormal,
		Difficulty:    p.Difficulty,
		Title:         p.Title,
	}
	if strings.EqualFold(strings.TrimSpace(p.Type), string(domain.PuzzleKids)) {
		out.Type = domain.PuzzleKids
	}
	if p.KidsConfig != nil {
		cfg := &domain.KidsConfig{TrackedSquare: strings.TrimSpace(p.KidsConfig.TrackedSquare)}
		for _, t := range p.KidsConfig.Targets {
			item := domain.KidsItem(strings.ToLower(strings.TrimSpace(t.Item)))
			if item != domain.ItemChocolate {
				item = domain.ItemPizza
			}
			cfg.Targets = append(cfg.Targets, domain.KidsTarget{Square: strings.TrimSpace(t.Square), Item: item})
		}
		out.Kids = cfg
	}
	return out
}

func CompetitionFromDTO(c arenadto.Competition) domain.Competition {
	out := domain.Competition{
		ID:        c.Key(),
		Title:     c.Title,
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
		Duration:  time.Duration(c.Duration * float64(time.Minute)),
	}
	if out.EndTime.IsZero() && !out.StartTime.IsZero() && out.Duration > 0 {
		out.EndTime = out.StartTime.Add(out.Duration)
	}
	for _, p := range c.Puzzles {
		out.Puzzles = append(out.Puzzles, PuzzleFromDTO(p))
	}
	return out
}

func LeaderboardFromDTO(entries []arenadto.LeaderboardEntry) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.LeaderboardEntry{
			Rank:          e.Rank,
			UserID:        e.UserID,
			Username:      e.Username,
			Score:         int(math.Round(e.Score)),
			PuzzlesSolved: e.PuzzlesSolved,
			TimeSpent:     int(math.Round(e.TimeSpent)),
		})
	}
	return out
}

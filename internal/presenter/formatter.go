package presenter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/park285/chess-arena-client/internal/board"
	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/livesync"
	"github.com/park285/chess-arena-client/internal/msgcat"
	"github.com/park285/chess-arena-client/internal/rules"
	"github.com/park285/chess-arena-client/internal/session"
)

// RequiredKeys lists every catalog key the formatter renders.
func RequiredKeys() []string {
	keys := []string{
		"status.line", "status.submitting", "status.timed_out", "status.completed",
		"leaderboard.header", "leaderboard.empty", "leaderboard.row",
		"board.saved", "board.unrenderable", "board.turn", "help.commands",
	}
	for _, code := range domain.NoticeCodes {
		keys = append(keys, "notice."+code)
	}
	return keys
}

// Formatter renders session, leaderboard and notice data into terminal text.
type Formatter struct {
	cat *msgcat.Catalog
}

func NewFormatter(cat *msgcat.Catalog) *Formatter {
	return &Formatter{cat: cat}
}

// Notice falls back to the code and its arguments when no template matches.
func (f *Formatter) Notice(n domain.Notice) string {
	return f.catalog().RenderOr("notice."+n.Code, n.Args, fallbackNotice(n))
}

func fallbackNotice(n domain.Notice) string {
	if len(n.Args) == 0 {
		return n.Code
	}
	keys := make([]string, 0, len(n.Args))
	for k := range n.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, n.Args[k]))
	}
	return n.Code + " (" + strings.Join(parts, ", ") + ")"
}

func (f *Formatter) Status(s session.Snapshot) string {
	switch s.Phase {
	case session.PhaseTimedOut:
		return f.catalog().RenderOr("status.timed_out", nil, "time is up") + " | score " + fmt.Sprint(s.State.Score)
	case session.PhaseCompleted:
		return f.catalog().RenderOr("status.completed", nil, "completed") + " | score " + fmt.Sprint(s.State.Score)
	}
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = "Puzzles"
	}
	data := map[string]any{
		"title":  title,
		"index":  s.Index + 1,
		"total":  s.Total,
		"clock":  FormatClock(s.State.TimeLeftSeconds),
		"score":  s.State.Score,
		"solved": s.State.SolvedCount,
	}
	line := f.catalog().RenderOr("status.line", data,
		fmt.Sprintf("%s | %d/%d | %s | %d", title, s.Index+1, s.Total, FormatClock(s.State.TimeLeftSeconds), s.State.Score))
	if s.Submitting {
		line += " | " + f.catalog().RenderOr("status.submitting", nil, "submitting...")
	}
	return line
}

// Leaderboard lists entries in backend order. recent marks a board refreshed
// within the last moments.
func (f *Formatter) Leaderboard(s livesync.Snapshot, recent bool) string {
	cat := f.catalog()
	var sb strings.Builder
	sb.WriteString(cat.RenderOr("leaderboard.header", map[string]any{"final": s.Final, "recent": recent}, "Leaderboard"))
	if len(s.Entries) == 0 {
		sb.WriteString("\n")
		sb.WriteString(cat.RenderOr("leaderboard.empty", nil, "No standings yet."))
		return sb.String()
	}
	for i, e := range s.Entries {
		rank := e.Rank
		if rank <= 0 {
			rank = i + 1
		}
		name := e.Username
		if name == "" {
			name = e.UserID
		}
		row := map[string]any{
			"rank":     rank,
			"username": name,
			"score":    e.Score,
			"solved":   e.PuzzlesSolved,
			"time":     FormatClock(e.TimeSpent),
		}
		sb.WriteString("\n")
		sb.WriteString(cat.RenderOr("leaderboard.row", row, fmt.Sprintf("%d. %s %d", rank, name, e.Score)))
	}
	return sb.String()
}

func (f *Formatter) Turn(c rules.Color) string {
	name := "White"
	if c == rules.Black {
		name = "Black"
	}
	return f.catalog().RenderOr("board.turn", map[string]any{"color": name}, name+" to move")
}

func (f *Formatter) Help() string {
	data := map[string]any{
		"themes": strings.Join(board.ThemeNames, ", "),
		"sets":   strings.Join(board.PieceSets, ", "),
	}
	return strings.TrimRight(f.catalog().RenderOr("help.commands", data, "commands: click drag move board lb refresh status skip theme pieces end quit"), "\n")
}

// Text renders an arbitrary catalog key, returning def when it is missing.
func (f *Formatter) Text(key string, data any, def string) string {
	return f.catalog().RenderOr(key, data, def)
}

func (f *Formatter) catalog() *msgcat.Catalog {
	if f == nil {
		return nil
	}
	return f.cat
}

// FormatClock renders seconds as mm:ss; negative values show as 00:00.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

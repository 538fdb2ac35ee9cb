package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/park285/chess-arena-client/internal/appbuilder"
	"github.com/park285/chess-arena-client/internal/board"
	appcfg "github.com/park285/chess-arena-client/internal/config"
	"github.com/park285/chess-arena-client/internal/obslog"
	"github.com/park285/chess-arena-client/internal/rules"
	"github.com/park285/chess-arena-client/internal/session"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	_ = os.MkdirAll(cfg.StateDir, 0o755)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "puzzle> ",
		HistoryFile:     filepath.Join(cfg.StateDir, ".history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		log.Fatalf("readline error: %v", err)
	}
	defer rl.Close()
	out := rl.Stdout()

	say := func(m string) error {
		_, err := fmt.Fprintln(out, m)
		return err
	}
	exitCh := make(chan struct{}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	app, err := appbuilder.New(ctx, cfg, appbuilder.Hooks{
		SendMessage: say,
		SendImage:   func(png []byte) error { return writeBoard(cfg.BoardOut, png) },
		OnExit: func() {
			select {
			case exitCh <- struct{}{}:
			default:
			}
		},
	}, logger)
	if err != nil {
		cancel()
		log.Fatalf("init error: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		cancel()
		_ = app.Close()
		log.Fatalf("session start error: %v", err)
	}
	cancel()
	logger.Info("client_started", zap.String("session_id", app.Engine.SessionID()), zap.Bool("casual", cfg.Casual()))

	_ = say(app.Status())
	_ = say(app.Presenter.Formatter().Help())

	// Timeout exit and signals both end the read loop.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-exitCh:
		}
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err == io.EOF || errors.Is(err, readline.ErrInterrupt) {
			break
		}
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if quit := handleCommand(app, cfg, line, say); quit {
			break
		}
	}

	if err := app.Close(); err != nil {
		logger.Warn("client_close_failed", zap.Error(err))
	}
}

// handleCommand runs one input line and reports whether the loop should end.
func handleCommand(app *appbuilder.App, cfg *appcfg.AppConfig, line string, say func(string) error) bool {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer cancel()
	f := app.Presenter.Formatter()

	switch cmd {
	case "help", "?":
		_ = say(f.Help())
	case "click":
		sq, ok := squareArg(args, 0, say)
		if !ok {
			return false
		}
		app.Table.Controller().Click(sq)
		if v := app.Table.View(); v.Board.Selected.Valid() {
			_ = say(fmt.Sprintf("selected %s: %s", v.Board.Selected, joinSquares(v.Board.Legal)))
		}
	case "drag":
		from, ok := squareArg(args, 0, say)
		if !ok {
			return false
		}
		to, ok := squareArg(args, 1, say)
		if !ok {
			return false
		}
		drag(app.Table.Controller(), from, to)
	case "move", "m":
		if len(args) == 0 {
			_ = say("usage: move <san|uci>")
			return false
		}
		if err := app.TypeMove(args[0]); err != nil {
			_ = say(err.Error())
		}
	case "board", "b":
		if err := app.RenderBoard(ctx); err == nil {
			_ = say(f.Text("board.saved", map[string]any{"path": cfg.BoardOut}, "board written to "+cfg.BoardOut))
		}
	case "lb", "leaderboard":
		_ = say(app.Leaderboard())
	case "refresh":
		if err := app.Refresh(ctx); err != nil {
			_ = say(err.Error())
		}
		_ = say(app.Leaderboard())
	case "status", "s":
		_ = say(app.Status())
	case "skip":
		if err := app.Engine.Skip(); err != nil {
			_ = say(err.Error())
		}
	case "theme":
		name := firstArg(args)
		if !board.ValidTheme(name) {
			_ = say(f.Text("board.unknown_theme", map[string]any{"theme": name, "options": strings.Join(board.ThemeNames, ", ")}, "unknown theme"))
			return false
		}
		prefs := app.Presenter.Preferences()
		prefs.Theme = name
		if _, err := app.SetPreferences(ctx, prefs); err != nil {
			_ = say(err.Error())
		}
		_ = say(f.Text("board.theme_set", map[string]any{"theme": name}, "theme set"))
	case "pieces":
		name := firstArg(args)
		if !board.ValidPieceSet(name) {
			_ = say(f.Text("board.unknown_pieces", map[string]any{"set": name, "options": strings.Join(board.PieceSets, ", ")}, "unknown piece set"))
			return false
		}
		prefs := app.Presenter.Preferences()
		prefs.PieceSet = name
		if _, err := app.SetPreferences(ctx, prefs); err != nil {
			_ = say(err.Error())
		}
		_ = say(f.Text("board.pieces_set", map[string]any{"set": name}, "piece set changed"))
	case "end":
		app.End()
		return true
	case "quit", "exit", "q":
		return true
	default:
		_ = say("Unknown command. Try 'help'.")
	}
	if snap := app.Engine.Snapshot(); snap.Phase == session.PhaseTimedOut || snap.Phase == session.PhaseCompleted {
		_ = say(f.Status(snap))
	}
	return false
}

// drag replays a press, hold and drop with real pointer timing.
func drag(ctrl *board.Controller, from, to rules.Square) {
	geom := ctrl.Geometry()
	p, q := geom.Center(from), geom.Center(to)
	ctrl.PointerDown(p.X, p.Y)
	time.Sleep(board.DragDelay + 20*time.Millisecond)
	ctrl.PointerMove(q.X, q.Y)
	ctrl.PointerUp(q.X, q.Y)
}

func squareArg(args []string, i int, say func(string) error) (rules.Square, bool) {
	if i >= len(args) {
		_ = say("missing square")
		return rules.NoSquare, false
	}
	sq, err := rules.ParseSquare(strings.ToLower(args[i]))
	if err != nil {
		_ = say(err.Error())
		return rules.NoSquare, false
	}
	return sq, true
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(args[0]))
}

func joinSquares(sqs []rules.Square) string {
	parts := make([]string, 0, len(sqs))
	for _, s := range sqs {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " ")
}

// writeBoard replaces the PNG atomically so viewers never read a partial file.
func writeBoard(path string, png []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

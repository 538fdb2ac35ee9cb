package presenter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-arena-client/internal/board"
	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/rules"
	"github.com/park285/chess-arena-client/internal/session"
)

var ErrUnrenderable = errors.New("presenter: puzzle cannot be rendered")

// Presenter delivers formatted text and board images without coupling to the command layer.
type Presenter struct {
	renderer    board.Renderer
	format      *Formatter
	sendMessage func(message string) error
	sendImage   func(png []byte) error
	logger      *zap.Logger

	mu    sync.Mutex
	prefs domain.Preferences
}

func NewPresenter(renderer board.Renderer, format *Formatter, sendMessage func(string) error, sendImage func([]byte) error, logger *zap.Logger) *Presenter {
	if renderer == nil {
		renderer = board.NewRenderer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{
		renderer:    renderer,
		format:      format,
		sendMessage: sendMessage,
		sendImage:   sendImage,
		logger:      logger,
		prefs:       domain.Preferences{Theme: board.DefaultTheme, PieceSet: board.PieceSetClassic},
	}
}

func (p *Presenter) Formatter() *Formatter { return p.format }

// SetPreferences ignores unknown theme or piece set names.
func (p *Presenter) SetPreferences(prefs domain.Preferences) domain.Preferences {
	p.mu.Lock()
	defer p.mu.Unlock()
	if board.ValidTheme(prefs.Theme) {
		p.prefs.Theme = prefs.Theme
	}
	if board.ValidPieceSet(prefs.PieceSet) {
		p.prefs.PieceSet = prefs.PieceSet
	}
	return p.prefs
}

func (p *Presenter) Preferences() domain.Preferences {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prefs
}

func (p *Presenter) Message(message string) error {
	if p == nil || p.sendMessage == nil {
		return nil
	}
	if strings.TrimSpace(message) == "" {
		return nil
	}
	return p.sendMessage(message)
}

func (p *Presenter) Notice(n domain.Notice) error {
	return p.Message(p.format.Notice(n))
}

// Board renders the attempt with the session HUD and hands the PNG to sendImage.
func (p *Presenter) Board(ctx context.Context, view session.TableView, snap session.Snapshot) error {
	if view.Unrenderable != nil || view.Puzzle == nil {
		if err := p.Message(p.format.Text("board.unrenderable", nil, "This puzzle cannot be rendered.")); err != nil {
			return err
		}
		return ErrUnrenderable
	}
	b, err := rules.Board(view.Position)
	if err != nil {
		return fmt.Errorf("presenter: board: %w", err)
	}

	prefs := p.Preferences()
	opts := board.OptionsFromView(view.Board)
	opts.Theme = prefs.Theme
	opts.PieceSet = prefs.PieceSet
	opts.Targets = view.Targets
	opts.HUDHeader = hudTitle(view.Puzzle, snap)
	opts.HUDTimer = FormatClock(snap.State.TimeLeftSeconds)
	opts.HUDScore = fmt.Sprintf("%d pts", snap.State.Score)

	png, err := p.renderer.RenderPNG(ctx, b, opts)
	if err != nil {
		p.logger.Warn("board_render_failed", zap.String("puzzle_id", view.Puzzle.ID), zap.Error(err))
		return fmt.Errorf("presenter: render: %w", err)
	}
	if p.sendImage != nil {
		if err := p.sendImage(png); err != nil {
			return err
		}
	}
	return p.Message(p.format.Turn(rules.Turn(view.Position)))
}

func hudTitle(pz *domain.Puzzle, snap session.Snapshot) string {
	title := strings.TrimSpace(pz.Title)
	if title == "" {
		title = strings.TrimSpace(snap.Title)
	}
	if title == "" {
		title = "Puzzle"
	}
	if snap.Total > 0 {
		return fmt.Sprintf("%s %d/%d", title, snap.Index+1, snap.Total)
	}
	return title
}

package appbuilder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-arena-client/internal/api"
	"github.com/park285/chess-arena-client/internal/board"
	"github.com/park285/chess-arena-client/internal/clock"
	"github.com/park285/chess-arena-client/internal/config"
	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/livesync"
	"github.com/park285/chess-arena-client/internal/msgcat"
	"github.com/park285/chess-arena-client/internal/presenter"
	"github.com/park285/chess-arena-client/internal/push"
	"github.com/park285/chess-arena-client/internal/rules"
	"github.com/park285/chess-arena-client/internal/session"
	"github.com/park285/chess-arena-client/internal/store"
)

var ErrInputLocked = errors.New("board is not accepting moves right now")

// Hooks are the outer surfaces the app reports to. All are optional.
type Hooks struct {
	SendMessage   func(string) error
	SendImage     func([]byte) error
	OnLeaderboard func(livesync.Snapshot)
	OnExit        func()

	// Overrides for tests.
	Clock    clock.Clock
	Go       func(func())
	Store    store.KV
	Backend  session.Backend
	SyncAPI  livesync.API
	Channel  push.Channel
	Renderer board.Renderer
}

// App is the wired client: one session, its board and the optional live leaderboard.
type App struct {
	Config    *config.AppConfig
	Store     store.KV
	API       *api.Client
	Sync      *livesync.Client
	Engine    *session.Engine
	Table     *session.Table
	Presenter *presenter.Presenter

	logger *zap.Logger
	hooks  Hooks

	mu        sync.Mutex
	loadedID  string
	loadedIdx int
	closed    bool
	// syncEnded is set once the competition closes; no attempt is loaded after it.
	syncEnded bool
}

func New(ctx context.Context, cfg *config.AppConfig, hooks Hooks, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if hooks.Clock == nil {
		hooks.Clock = clock.Real()
	}
	a := &App{Config: cfg, logger: logger, hooks: hooks, loadedIdx: -1}

	// State store
	kv := hooks.Store
	if kv == nil {
		var err error
		kv, err = store.Open(ctx, store.Options{
			Kind:        cfg.StateStore,
			Dir:         cfg.StateDir,
			RedisURL:    cfg.RedisURL,
			DatabaseURL: cfg.DatabaseURL,
			TTL:         cfg.StateTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("open state store: %w", err)
		}
	}
	a.Store = kv

	// REST
	backend := hooks.Backend
	syncAPI := hooks.SyncAPI
	if backend == nil || syncAPI == nil {
		client, err := api.NewClient(cfg.APIURL,
			api.WithToken(cfg.Token),
			api.WithTimeout(cfg.HTTPTimeout),
			api.WithLogger(logger),
		)
		if err != nil {
			_ = kv.Close()
			return nil, fmt.Errorf("init api client: %w", err)
		}
		a.API = client
		if backend == nil {
			backend = client
		}
		if syncAPI == nil {
			syncAPI = client
		}
	}

	// Presentation
	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if err := cat.Validate(presenter.RequiredKeys()); err != nil {
		_ = kv.Close()
		return nil, err
	}
	a.Presenter = presenter.NewPresenter(hooks.Renderer, presenter.NewFormatter(cat), hooks.SendMessage, hooks.SendImage, logger)
	a.Presenter.SetPreferences(domain.Preferences{Theme: cfg.BoardTheme, PieceSet: cfg.PieceSet})

	identity := domain.Identity{Token: cfg.Token, UserID: cfg.UserID, Username: cfg.Username}

	engine, err := session.NewEngine(session.Config{
		CompetitionID:        cfg.CompetitionID,
		ConfirmationRequired: !cfg.Casual(),
		Identity:             identity,
		Backend:              backend,
		Store:                kv,
		Clock:                hooks.Clock,
		Logger:               logger.Named("session"),
		CasualDuration:       cfg.CasualDuration,
		CasualPoints:         cfg.CasualPoints,
		OnChange:             a.onSession,
		OnNotice:             a.onNotice,
		OnExit:               a.onExit,
	})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	a.Engine = engine

	table, err := session.NewTable(session.TableConfig{
		Recorder: engine,
		Clock:    hooks.Clock,
		Logger:   logger.Named("table"),
		Go:       hooks.Go,
		OnNotice: a.onNotice,
	})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	a.Table = table

	// Live leaderboard (competitions only)
	if !cfg.Casual() {
		ch := hooks.Channel
		if ch == nil {
			ws, err := push.NewWebSocket(cfg.WSURL,
				push.WithToken(cfg.Token),
				push.WithLogger(logger.Named("push")),
			)
			if err != nil {
				_ = kv.Close()
				return nil, fmt.Errorf("init push channel: %w", err)
			}
			ch = ws
		}
		syncClient, err := livesync.New(livesync.Config{
			CompetitionID: cfg.CompetitionID,
			Identity:      identity,
			API:           syncAPI,
			Channel:       ch,
			Clock:         hooks.Clock,
			Logger:        logger.Named("livesync"),
			OnSnapshot:    hooks.OnLeaderboard,
			OnNotice:      a.onNotice,
			OnState:       a.onSyncState,
		})
		if err != nil {
			_ = kv.Close()
			return nil, err
		}
		a.Sync = syncClient
	}

	return a, nil
}

// Start restores preferences and progress, joins the live leaderboard and
// starts the countdown. A failed live connection is reported but not fatal.
func (a *App) Start(ctx context.Context) error {
	var prefs domain.Preferences
	if ok, err := store.GetJSON(ctx, a.Store, domain.PreferencesKey, &prefs); err != nil {
		a.logger.Warn("preferences_load_failed", zap.Error(err))
	} else if ok {
		a.Presenter.SetPreferences(prefs)
	}

	if err := a.Engine.Load(ctx); err != nil {
		return err
	}
	if a.Sync != nil {
		if err := a.Sync.Connect(ctx); err != nil {
			if errors.Is(err, livesync.ErrAuthRequired) {
				a.onNotice(domain.NewNotice(domain.NoticeWarn, domain.NoticeAuthRequired))
			} else {
				a.logger.Warn("livesync_connect_failed", zap.Error(err))
			}
		}
	}
	return a.Engine.Start()
}

// SetPreferences applies and persists board cosmetics.
func (a *App) SetPreferences(ctx context.Context, prefs domain.Preferences) (domain.Preferences, error) {
	applied := a.Presenter.SetPreferences(prefs)
	if err := store.SetJSON(ctx, a.Store, domain.PreferencesKey, applied); err != nil {
		return applied, fmt.Errorf("save preferences: %w", err)
	}
	return applied, nil
}

// RenderBoard draws the current attempt.
func (a *App) RenderBoard(ctx context.Context) error {
	return a.Presenter.Board(ctx, a.Table.View(), a.Engine.Snapshot())
}

func (a *App) Status() string {
	return a.Presenter.Formatter().Status(a.Engine.Snapshot())
}

func (a *App) Leaderboard() string {
	if a.Sync == nil {
		return a.Presenter.Formatter().Text("leaderboard.empty", nil, "No standings yet.")
	}
	return a.Presenter.Formatter().Leaderboard(a.Sync.Snapshot(), a.Sync.Recent(a.hooks.Clock.Now()))
}

func (a *App) Refresh(ctx context.Context) error {
	if a.Sync == nil {
		return nil
	}
	return a.Sync.Refresh(ctx)
}

// TypeMove plays a move typed as SAN ("Nf3") or coordinates ("g1f3").
func (a *App) TypeMove(text string) error {
	v := a.Table.View()
	if v.Puzzle == nil || v.Unrenderable != nil {
		return presenter.ErrUnrenderable
	}
	if !v.Board.Enabled {
		return ErrInputLocked
	}
	mv, err := rules.ParseMove(v.Position, text)
	if err != nil {
		return err
	}
	a.Table.AttemptMove(mv)
	return nil
}

// End finishes the session and clears its progress.
func (a *App) End() {
	a.Engine.End()
	a.Table.Stop()
}

// Close leaves the session with progress kept and releases every connection.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.Engine.Stop()
	a.Table.Stop()
	var errs []error
	if a.Sync != nil {
		if err := a.Sync.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// onSession loads a new attempt whenever the current puzzle changes and
// freezes the board once the session is over.
func (a *App) onSession(s session.Snapshot) {
	switch s.Phase {
	case session.PhaseCompleted, session.PhaseTimedOut, session.PhaseEnded:
		a.Table.Stop()
		return
	case session.PhaseActive:
	default:
		return
	}
	if s.Puzzle == nil {
		return
	}
	a.mu.Lock()
	if a.syncEnded {
		a.mu.Unlock()
		return
	}
	same := a.loadedIdx == s.Index && a.loadedID == s.Puzzle.ID
	if !same {
		a.loadedIdx, a.loadedID = s.Index, s.Puzzle.ID
	}
	a.mu.Unlock()
	if same {
		return
	}
	if err := a.Table.Load(*s.Puzzle); err != nil {
		a.logger.Debug("puzzle_unplayable", zap.String("puzzle_id", s.Puzzle.ID), zap.Error(err))
	}
}

// onSyncState freezes the board when the competition ends so nothing more is
// solved or submitted.
func (a *App) onSyncState(s livesync.State) {
	if s != livesync.StateEnded {
		return
	}
	a.mu.Lock()
	a.syncEnded = true
	a.mu.Unlock()
	a.logger.Info("board_frozen_competition_ended", zap.String("competition_id", a.Config.CompetitionID))
	a.Table.Stop()
}

func (a *App) onNotice(n domain.Notice) {
	if err := a.Presenter.Notice(n); err != nil {
		a.logger.Warn("notice_delivery_failed", zap.String("code", n.Code), zap.Error(err))
	}
}

func (a *App) onExit() {
	if a.hooks.OnExit != nil {
		a.hooks.OnExit()
	}
}

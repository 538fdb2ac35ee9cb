package livesync

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
	"github.com/park285/chess-arena-client/internal/push"
	"github.com/park285/chess-arena-client/pkg/arenadto"
)

const (
	// EndedGrace is how long the channel stays open after competitionEnded.
	EndedGrace = 10 * time.Second
	// RecentWindow is how long an update counts as fresh for highlighting.
	RecentWindow = 2 * time.Second
)

var (
	ErrAuthRequired = api.ErrAuthRequired
	ErrClosed       = errors.New("livesync: client closed")
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateJoined       State = "joined"
	StateEnded        State = "ended"
)

// Snapshot is the last applied leaderboard. Entries keep the backend order.
type Snapshot struct {
	Entries   []domain.LeaderboardEntry
	UpdatedAt time.Time
	Final     bool
}

func (s Snapshot) clone() Snapshot {
	s.Entries = append([]domain.LeaderboardEntry(nil), s.Entries...)
	return s
}

// API is the REST surface the client needs.
type API interface {
	Participate(ctx context.Context, competitionID string) (bool, error)
	Leaderboard(ctx context.Context, competitionID string) ([]domain.LeaderboardEntry, error)
}

type Config struct {
	CompetitionID string
	Identity      domain.Identity
	API           API
	Channel       push.Channel
	Clock         clock.Clock
	Logger        *zap.Logger

	OnSnapshot func(Snapshot)
	OnNotice   func(domain.Notice)
	OnState    func(State)
}

// Client keeps one competition's leaderboard in sync over the push channel with
// REST snapshots as fallback.
type Client struct {
	competitionID string
	identity      domain.Identity
	api           API
	channel       push.Channel
	clk           clock.Clock
	logger        *zap.Logger

	onSnapshot func(Snapshot)
	onNotice   func(domain.Notice)
	onState    func(State)

	mu       sync.Mutex
	state    State
	snap     Snapshot
	pushSeen bool
	cbID     int
	grace    clock.Timer
	closed   bool
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.CompetitionID) == "" {
		return nil, errors.New("livesync: competition id is required")
	}
	if cfg.API == nil {
		return nil, errors.New("livesync: api is required")
	}
	if cfg.Channel == nil {
		return nil, errors.New("livesync: push channel is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		competitionID: strings.TrimSpace(cfg.CompetitionID),
		identity:      cfg.Identity,
		api:           cfg.API,
		channel:       cfg.Channel,
		clk:           cfg.Clock,
		logger:        cfg.Logger,
		onSnapshot:    cfg.OnSnapshot,
		onNotice:      cfg.OnNotice,
		onState:       cfg.OnState,
		state:         StateDisconnected,
	}, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// Recent reports whether the last update landed within RecentWindow of now.
func (c *Client) Recent(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.UpdatedAt.IsZero() {
		return false
	}
	d := now.Sub(c.snap.UpdatedAt)
	return d >= 0 && d < RecentWindow
}

// Connect registers the user, opens the push channel and loads an initial
// snapshot. Calling it while connecting or joined is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if !c.identity.Authenticated() {
		return ErrAuthRequired
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	if c.cbID == 0 {
		c.cbID = c.channel.OnEvent(c.handleEvent)
	}
	c.mu.Unlock()
	c.emitState(StateConnecting)

	already, err := c.api.Participate(ctx, c.competitionID)
	if err != nil {
		c.setState(StateDisconnected)
		c.logger.Warn("livesync_participate_failed", zap.String("competition_id", c.competitionID), zap.Error(err))
		return fmt.Errorf("participate: %w", err)
	}
	c.logger.Info("livesync_participating", zap.String("competition_id", c.competitionID), zap.Bool("already", already))

	var connErr error
	if err := c.channel.Connect(ctx); err != nil {
		connErr = fmt.Errorf("open push channel: %w", err)
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		c.emitState(c.State())
		c.logger.Warn("livesync_channel_failed", zap.Error(err))
		c.notice(domain.NewNotice(domain.NoticeWarn, domain.NoticeSyncUnavailable))
	}

	c.mu.Lock()
	need := !c.pushSeen
	c.mu.Unlock()
	if need {
		if err := c.fetch(ctx, false); err != nil && len(c.Snapshot().Entries) == 0 {
			c.notice(domain.NewNotice(domain.NoticeWarn, domain.NoticeLeaderboardStale))
		}
	}
	return connErr
}

// Refresh asks the backend to rebroadcast and loads a REST snapshot. REST
// failures keep the last known leaderboard.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	state := c.state
	c.mu.Unlock()
	if state == StateEnded {
		return nil
	}
	if state == StateJoined {
		if err := c.channel.Emit(ctx, arenadto.EventRefreshLeaderboard, arenadto.RefreshLeaderboard{CompetitionID: c.competitionID}); err != nil {
			c.logger.Debug("livesync_refresh_emit_failed", zap.Error(err))
		}
	}
	_ = c.fetch(ctx, true)
	return nil
}

// Close cancels the grace timer and closes the channel. Safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
	id := c.cbID
	c.cbID = 0
	changed := c.state != StateEnded && c.state != StateDisconnected
	if changed {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if id != 0 {
		c.channel.RemoveEventCallback(id)
	}
	if changed {
		c.emitState(StateDisconnected)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.channel.Close(ctx)
}

// fetch loads a REST snapshot. force replaces a push snapshot too. A failure
// is only logged; the last known snapshot stays on display.
func (c *Client) fetch(ctx context.Context, force bool) error {
	entries, err := c.api.Leaderboard(ctx, c.competitionID)
	if err != nil {
		c.logger.Warn("livesync_snapshot_failed", zap.String("competition_id", c.competitionID), zap.Error(err))
		return err
	}
	c.mu.Lock()
	if c.closed || c.state == StateEnded || (!force && c.pushSeen) {
		c.mu.Unlock()
		return nil
	}
	c.snap = Snapshot{Entries: entries, UpdatedAt: c.clk.Now()}
	snap := c.snap.clone()
	c.mu.Unlock()
	c.emitSnapshot(snap)
	return nil
}

func (c *Client) handleEvent(ev push.Event) {
	switch ev.Name {
	case arenadto.EventConnect:
		c.onConnected()
	case arenadto.EventDisconnect:
		c.mu.Lock()
		changed := c.state == StateJoined || c.state == StateConnecting
		if changed {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		if changed {
			c.logger.Info("livesync_disconnected", zap.String("competition_id", c.competitionID))
			c.emitState(StateDisconnected)
		}
	case arenadto.EventLeaderboardUpdate:
		var u arenadto.LeaderboardUpdate
		if err := ev.Decode(&u); err != nil {
			c.logger.Warn("livesync_bad_payload", zap.String("event", ev.Name), zap.Error(err))
			return
		}
		c.applyUpdate(u)
	case arenadto.EventCompetitionEnded:
		var e arenadto.CompetitionEnded
		if len(ev.Data) > 0 {
			if err := ev.Decode(&e); err != nil {
				c.logger.Warn("livesync_bad_payload", zap.String("event", ev.Name), zap.Error(err))
			}
		}
		c.applyEnded(e)
	case arenadto.EventParticipantJoined:
		var p arenadto.ParticipantJoined
		_ = ev.Decode(&p)
		c.notice(domain.NewNotice(domain.NoticeInfo, domain.NoticeParticipantJoined, "username", p.Username))
	case arenadto.EventError:
		var e arenadto.ErrorEvent
		_ = ev.Decode(&e)
		c.logger.Warn("livesync_server_error", zap.String("message", e.Message))
		c.notice(domain.NewNotice(domain.NoticeWarn, domain.NoticeSyncError, "message", e.Message))
	default:
		c.logger.Debug("livesync_unknown_event", zap.String("event", ev.Name))
	}
}

// onConnected runs on every transport connect, so rejoining after a reconnect
// needs no extra bookkeeping.
func (c *Client) onConnected() {
	c.mu.Lock()
	if c.closed || c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	c.state = StateJoined
	c.mu.Unlock()
	c.emitState(StateJoined)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	join := arenadto.JoinCompetition{CompetitionID: c.competitionID, Username: c.identity.Username}
	if err := c.channel.Emit(ctx, arenadto.EventJoinCompetition, join); err != nil {
		c.logger.Warn("livesync_join_failed", zap.String("competition_id", c.competitionID), zap.Error(err))
		return
	}
	c.logger.Info("livesync_joined", zap.String("competition_id", c.competitionID))
}

func (c *Client) applyUpdate(u arenadto.LeaderboardUpdate) {
	if u.CompetitionID != "" && u.CompetitionID != c.competitionID {
		return
	}
	c.mu.Lock()
	if c.closed || c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	c.pushSeen = true
	c.snap = Snapshot{Entries: api.LeaderboardFromDTO(u.Leaderboard), UpdatedAt: c.clk.Now()}
	snap := c.snap.clone()
	c.mu.Unlock()
	c.logger.Debug("livesync_leaderboard_update", zap.Int("entries", len(snap.Entries)))
	c.emitSnapshot(snap)
}

func (c *Client) applyEnded(e arenadto.CompetitionEnded) {
	if e.CompetitionID != "" && e.CompetitionID != c.competitionID {
		return
	}
	c.mu.Lock()
	if c.closed || c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	c.state = StateEnded
	if e.FinalLeaderboard != nil {
		c.snap.Entries = api.LeaderboardFromDTO(e.FinalLeaderboard)
	}
	c.snap.UpdatedAt = c.clk.Now()
	c.snap.Final = true
	snap := c.snap.clone()
	c.grace = c.clk.AfterFunc(EndedGrace, c.endGrace)
	c.mu.Unlock()

	c.logger.Info("livesync_competition_ended", zap.String("competition_id", c.competitionID), zap.Int("entries", len(snap.Entries)))
	c.emitState(StateEnded)
	c.emitSnapshot(snap)
	c.notice(domain.NewNotice(domain.NoticeInfo, domain.NoticeCompetitionEnded))
}

func (c *Client) endGrace() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.grace = nil
	c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.channel.Close(ctx); err != nil {
		c.logger.Debug("livesync_channel_close_failed", zap.Error(err))
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.emitState(s)
}

func (c *Client) emitState(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *Client) emitSnapshot(s Snapshot) {
	if c.onSnapshot != nil {
		c.onSnapshot(s)
	}
}

func (c *Client) notice(n domain.Notice) {
	if c.onNotice != nil {
		c.onNotice(n)
	}
}

package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena-client/pkg/arenadto"
)

type callbackEntry struct {
	id       int
	callback EventCallback
}

// WebSocket is a reconnecting JSON-envelope channel.
type WebSocket struct {
	wsURL    string
	token    string
	clientID string
	logger   *zap.Logger

	conn  *websocket.Conn
	state State
	connM sync.RWMutex
	// writeM serializes frames; wsjson.Write is not safe for concurrent use.
	writeM sync.Mutex

	cbs    []callbackEntry
	nextID int
	cbM    sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type Option func(*WebSocket)

func WithToken(token string) Option {
	return func(ws *WebSocket) { ws.token = strings.TrimSpace(token) }
}

func WithReconnect(maxAttempts int) Option {
	return func(ws *WebSocket) { ws.maxReconnectAttempts = maxAttempts }
}

func WithPingInterval(d time.Duration) Option {
	return func(ws *WebSocket) {
		if d > 0 {
			ws.pingInterval = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(ws *WebSocket) {
		if l != nil {
			ws.logger = l
		}
	}
}

func NewWebSocket(wsURL string, opts ...Option) (*WebSocket, error) {
	wsURL = strings.TrimSpace(wsURL)
	if wsURL == "" {
		return nil, errors.New("push: websocket url is required")
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	ws := &WebSocket{
		wsURL:                wsURL,
		clientID:             uuid.NewString(),
		logger:               zap.NewNop(),
		state:                StateDisconnected,
		maxReconnectAttempts: 5,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              rootCtx,
		rootCancel:           rootCancel,
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws, nil
}

func (ws *WebSocket) State() State {
	ws.connM.RLock()
	defer ws.connM.RUnlock()
	return ws.state
}

func (ws *WebSocket) Connect(ctx context.Context) error {
	if ws.isStopping() {
		return errors.New("push: channel closed")
	}
	ws.connM.Lock()
	if ws.state == StateConnected || ws.state == StateConnecting || ws.state == StateReconnecting {
		ws.connM.Unlock()
		return nil
	}
	ws.state = StateConnecting
	ws.connM.Unlock()

	conn, err := ws.dial(ctx)
	if err != nil {
		ws.setState(StateFailed)
		ws.logger.Warn("push_connect_failed", zap.String("url", ws.wsURL), zap.Error(err))
		ws.scheduleReconnect()
		return err
	}
	ws.attach(conn)
	return nil
}

func (ws *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ws.buildHeaders(),
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ws.wsURL, err)
	}
	return conn, nil
}

func (ws *WebSocket) attach(conn *websocket.Conn) {
	ws.connM.Lock()
	ws.conn = conn
	ws.state = StateConnected
	ws.connM.Unlock()
	ws.logger.Info("push_connected", zap.String("client_id", ws.clientID))

	// connect is delivered before the reader can observe a drop.
	ws.dispatch(Event{Name: arenadto.EventConnect})
	ws.wg.Add(2)
	go ws.listen(conn)
	go ws.pingLoop(conn)
}

func (ws *WebSocket) listen(conn *websocket.Conn) {
	defer ws.wg.Done()
	for {
		var env arenadto.Envelope
		if err := wsjson.Read(ws.rootCtx, conn, &env); err != nil {
			if ws.isStopping() {
				return
			}
			ws.logger.Warn("push_read_failed", zap.Error(err))
			ws.dropConn(conn, "reconnect")
			return
		}
		if strings.TrimSpace(env.Event) == "" {
			continue
		}
		ws.dispatch(Event{Name: env.Event, Data: env.Data})
	}
}

func (ws *WebSocket) pingLoop(conn *websocket.Conn) {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ws.stopCh:
			return
		case <-t.C:
			if !ws.isCurrent(conn) {
				return
			}
			ctx, cancel := context.WithTimeout(ws.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				ws.dropConn(conn, "ping failure")
				return
			}
		}
	}
}

// dropConn tears down conn if it is still current, emits disconnect and starts
// reconnecting.
func (ws *WebSocket) dropConn(conn *websocket.Conn, reason string) {
	ws.connM.Lock()
	if ws.conn != conn {
		ws.connM.Unlock()
		return
	}
	ws.conn = nil
	ws.state = StateDisconnected
	ws.connM.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, reason)
	ws.dispatch(Event{Name: arenadto.EventDisconnect})
	ws.scheduleReconnect()
}

func (ws *WebSocket) scheduleReconnect() {
	if ws.maxReconnectAttempts <= 0 || ws.isStopping() {
		return
	}
	ws.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= ws.maxReconnectAttempts; attempt++ {
			select {
			case <-ws.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			conn, err := ws.dial(ws.rootCtx)
			if err != nil {
				ws.logger.Debug("push_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if ws.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			ws.attach(conn)
			return
		}
		ws.setState(StateFailed)
		ws.logger.Warn("push_reconnect_exhausted", zap.Int("attempts", ws.maxReconnectAttempts))
	}()
}

// Emit writes one envelope.
func (ws *WebSocket) Emit(ctx context.Context, event string, data any) error {
	ws.connM.RLock()
	conn := ws.conn
	ws.connM.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("push: marshal %s: %w", event, err)
	}
	dctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	ws.writeM.Lock()
	defer ws.writeM.Unlock()
	return wsjson.Write(dctx, conn, arenadto.Envelope{Event: event, Data: raw})
}

func (ws *WebSocket) OnEvent(cb EventCallback) int {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	ws.nextID++
	ws.cbs = append(ws.cbs, callbackEntry{id: ws.nextID, callback: cb})
	return ws.nextID
}

func (ws *WebSocket) RemoveEventCallback(id int) {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	for i, cb := range ws.cbs {
		if cb.id == id {
			ws.cbs = append(ws.cbs[:i], ws.cbs[i+1:]...)
			break
		}
	}
}

func (ws *WebSocket) dispatch(ev Event) {
	ws.cbM.RLock()
	callbacks := make([]callbackEntry, len(ws.cbs))
	copy(callbacks, ws.cbs)
	ws.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(ev)
		}
	}
}

func (ws *WebSocket) setState(state State) {
	ws.connM.Lock()
	ws.state = state
	ws.connM.Unlock()
}

func (ws *WebSocket) isCurrent(conn *websocket.Conn) bool {
	ws.connM.RLock()
	defer ws.connM.RUnlock()
	return ws.conn == conn
}

// Close stops reconnecting and waits for the reader and pinger to exit.
func (ws *WebSocket) Close(ctx context.Context) error {
	ws.stopOnce.Do(func() { close(ws.stopCh) })
	ws.connM.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.state = StateClosed
	ws.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	ws.rootCancel()

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (ws *WebSocket) isStopping() bool {
	select {
	case <-ws.stopCh:
		return true
	default:
		return false
	}
}

func (ws *WebSocket) buildHeaders() http.Header {
	hdr := http.Header{}
	if ws.token != "" {
		hdr.Set("Authorization", "Bearer "+ws.token)
	}
	hdr.Set("X-Client-Id", ws.clientID)
	return hdr
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

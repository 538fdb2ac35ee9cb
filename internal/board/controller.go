package board

import (
	"errors"
	"image"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena-client/internal/clock"
	"github.com/park285/chess-arena-client/internal/rules"
)

// DragDelay separates a press that becomes a drag from a click.
const DragDelay = 150 * time.Millisecond

var ErrNilTarget = errors.New("board: nil move target")

// MoveTarget receives move attempts. Destinations are already filtered against the
// legal set; the engine's Apply stays the final authority. Gestures never name a
// promotion piece.
type MoveTarget interface {
	AttemptMove(mv rules.Move)
}

// MoveTargetFunc adapts a function to MoveTarget.
type MoveTargetFunc func(mv rules.Move)

func (f MoveTargetFunc) AttemptMove(mv rules.Move) { f(mv) }

// View is a render snapshot of the controller.
type View struct {
	Orientation Orientation
	Enabled     bool
	Selected    rules.Square
	Legal       []rules.Square
	Dragging    bool
	DragFrom    rules.Square
	DragPoint   image.Point
	Hover       rules.Square
	LastMove    *rules.Move
}

// Controller turns clicks, pointer gestures and keyboard commands into move attempts.
type Controller struct {
	mu     sync.Mutex
	clk    clock.Clock
	target MoveTarget
	logger *zap.Logger

	geom    Geometry
	human   rules.Color
	pos     rules.Position
	enabled bool

	selected rules.Square
	legal    map[rules.Square]struct{}

	pressing   bool
	pressSq    rules.Square
	pressGen   uint64
	pressTimer clock.Timer

	dragging  bool
	dragPoint image.Point
	hover     rules.Square

	lastMove *rules.Move
}

func NewController(clk clock.Clock, target MoveTarget, logger *zap.Logger) (*Controller, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		clk:      clk,
		target:   target,
		logger:   logger,
		geom:     Geometry{SquareSize: DefaultSquareSize},
		selected: rules.NoSquare,
		pressSq:  rules.NoSquare,
		hover:    rules.NoSquare,
	}, nil
}

// Load prepares the controller for a new puzzle. Orientation is fixed here from the
// human side and stays until the next Load.
func (c *Controller) Load(pos rules.Position, human rules.Color) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearGestureLocked()
	c.lastMove = nil
	c.pos = pos
	c.human = human
	c.geom.Orientation = OrientationFor(human)
	c.enabled = true
}

// SetPosition swaps the position without touching orientation. Any selection
// computed against the old position is dropped.
func (c *Controller) SetPosition(pos rules.Position) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = pos
	c.clearGestureLocked()
}

func (c *Controller) SetLastMove(mv *rules.Move) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if mv == nil {
		c.lastMove = nil
		return
	}
	cp := *mv
	c.lastMove = &cp
}

// SetEnabled blocks or unblocks input. Disabling cancels any gesture in progress.
func (c *Controller) SetEnabled(enabled bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.clearGestureLocked()
	}
}

// Cancel drops the selection and any press or drag (Escape).
func (c *Controller) Cancel() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearGestureLocked()
}

// Reset clears selection and highlights.
func (c *Controller) Reset(pos rules.Position) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearGestureLocked()
	c.lastMove = nil
	c.pos = pos
}

// Stop cancels the pending drag timer.
func (c *Controller) Stop() {
	c.Cancel()
}

func (c *Controller) Geometry() Geometry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geom
}

// SetSquareSize changes the hit-test cell size.
func (c *Controller) SetSquareSize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.geom.SquareSize = size
}

// Click handles the click path.
func (c *Controller) Click(sq rules.Square) {
	if c == nil || !sq.Valid() {
		return
	}
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	if c.selected.Valid() {
		switch {
		case sq == c.selected:
			c.deselectLocked()
			c.mu.Unlock()
			return
		case c.isLegalLocked(sq):
			from := c.selected
			c.deselectLocked()
			c.mu.Unlock()
			c.target.AttemptMove(rules.Move{From: from, To: sq})
			return
		case c.friendlyLocked(sq):
			c.selectLocked(sq)
			c.mu.Unlock()
			return
		default:
			c.deselectLocked()
			c.mu.Unlock()
			return
		}
	}
	if c.friendlyLocked(sq) {
		c.selectLocked(sq)
	}
	c.mu.Unlock()
}

// PointerDown starts the drag debounce when pressed on a friendly piece.
func (c *Controller) PointerDown(x, y int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	sq := c.geom.SquareAt(x, y)
	if !sq.Valid() || !c.friendlyLocked(sq) {
		return
	}
	c.stopPressTimerLocked()
	c.pressing = true
	c.pressSq = sq
	c.pressGen++
	gen := c.pressGen
	c.dragPoint = image.Pt(x, y)
	c.pressTimer = c.clk.AfterFunc(DragDelay, func() { c.beginDrag(gen) })
}

func (c *Controller) beginDrag(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pressing || gen != c.pressGen || !c.enabled {
		return
	}
	c.pressTimer = nil
	c.dragging = true
	c.selectLocked(c.pressSq)
	c.hover = c.pressSq
}

// PointerMove tracks the floating piece while dragging.
func (c *Controller) PointerMove(x, y int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dragging {
		return
	}
	c.dragPoint = image.Pt(x, y)
	c.hover = c.geom.SquareAt(x, y)
}

// PointerUp resolves the drop. A release before the drag started does nothing.
func (c *Controller) PointerUp(x, y int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if !c.pressing && !c.dragging {
		c.mu.Unlock()
		return
	}
	if !c.dragging {
		c.stopPressTimerLocked()
		c.pressing = false
		c.pressSq = rules.NoSquare
		c.mu.Unlock()
		return
	}
	from := c.pressSq
	to := c.geom.SquareAt(x, y)
	ok := to.Valid() && to != from && c.isLegalLocked(to)
	c.clearGestureLocked()
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("board_drop_ignored", zap.String("from", from.String()), zap.String("to", to.String()))
		return
	}
	c.target.AttemptMove(rules.Move{From: from, To: to})
}

// View snapshots the state for rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Orientation: c.geom.Orientation,
		Enabled:     c.enabled,
		Selected:    c.selected,
		Dragging:    c.dragging,
		DragFrom:    rules.NoSquare,
		DragPoint:   c.dragPoint,
		Hover:       c.hover,
	}
	if c.dragging {
		v.DragFrom = c.pressSq
	}
	for sq := range c.legal {
		v.Legal = append(v.Legal, sq)
	}
	sort.Slice(v.Legal, func(i, j int) bool { return v.Legal[i] < v.Legal[j] })
	if c.lastMove != nil {
		cp := *c.lastMove
		v.LastMove = &cp
	}
	return v
}

func (c *Controller) friendlyLocked(sq rules.Square) bool {
	p, ok := rules.PieceAt(c.pos, sq)
	return ok && p.Color == c.human && rules.Turn(c.pos) == c.human
}

func (c *Controller) selectLocked(sq rules.Square) {
	c.selected = sq
	c.legal = make(map[rules.Square]struct{})
	for _, to := range rules.LegalMoves(c.pos, sq) {
		c.legal[to] = struct{}{}
	}
}

func (c *Controller) deselectLocked() {
	c.selected = rules.NoSquare
	c.legal = nil
}

func (c *Controller) isLegalLocked(sq rules.Square) bool {
	_, ok := c.legal[sq]
	return ok
}

func (c *Controller) stopPressTimerLocked() {
	if c.pressTimer != nil {
		c.pressTimer.Stop()
		c.pressTimer = nil
	}
}

func (c *Controller) clearGestureLocked() {
	c.stopPressTimerLocked()
	c.pressGen++
	c.pressing = false
	c.pressSq = rules.NoSquare
	c.dragging = false
	c.hover = rules.NoSquare
	c.deselectLocked()
}

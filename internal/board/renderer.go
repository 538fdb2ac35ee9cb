package board

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/internal/rules"
)

// Target is a kids-mode marker.
type Target struct {
	Item     domain.KidsItem
	Captured bool
}

// RenderOptions carries everything drawn on top of the pieces.
type RenderOptions struct {
	Orientation Orientation
	Theme       string
	PieceSet    string
	LastMove    *rules.Move
	Selected    rules.Square
	Legal       []rules.Square
	Targets     map[rules.Square]Target
	// Drag hides the piece on DragFrom and draws it centered on DragPoint.
	Dragging  bool
	DragFrom  rules.Square
	DragPoint image.Point
	HUDHeader string
	HUDTimer  string
	HUDScore  string
}

// OptionsFromView copies the controller snapshot into render options.
func OptionsFromView(v View) RenderOptions {
	return RenderOptions{
		Orientation: v.Orientation,
		LastMove:    v.LastMove,
		Selected:    v.Selected,
		Legal:       v.Legal,
		Dragging:    v.Dragging,
		DragFrom:    v.DragFrom,
		DragPoint:   v.DragPoint,
	}
}

type Renderer interface {
	RenderPNG(ctx context.Context, board *nchess.Board, opts RenderOptions) ([]byte, error)
}

// Layout constants shared by the renderer and pointer hit-testing.
const (
	squareSize   = DefaultSquareSize
	boardSquares = 8
	boardSize    = squareSize * boardSquares
	sideMargin   = 36
	topMargin    = 96
	bottomMargin = 36
)

// BoardOrigin is where the board's top-left corner sits in the rendered image.
var BoardOrigin = image.Point{X: sideMargin, Y: topMargin}

type pngRenderer struct {
	face font.Face
}

func NewRenderer() Renderer {
	return &pngRenderer{face: basicfont.Face7x13}
}

func (r *pngRenderer) RenderPNG(ctx context.Context, board *nchess.Board, opts RenderOptions) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}

	const (
		panelHeight   = 30
		panelRadius   = 10
		panelPaddingX = 18
		panelMinWidth = 96
		gapToBoard    = 18
		shadowOffsetY = 5
	)

	totalWidth := boardSize + sideMargin*2
	totalHeight := boardSize + topMargin + bottomMargin
	boardRect := image.Rectangle{Min: BoardOrigin, Max: BoardOrigin.Add(image.Pt(boardSize, boardSize))}
	geom := Geometry{SquareSize: squareSize, Orientation: opts.Orientation}
	theme := ThemeByName(opts.Theme)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, totalWidth, totalHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(theme.Background), image.Point{}, imagedraw.Src)

	r.drawHUD(img, opts, boardRect, hudLayout{
		height:   panelHeight,
		radius:   panelRadius,
		paddingX: panelPaddingX,
		minWidth: panelMinWidth,
		gap:      gapToBoard,
		shadow:   shadowOffsetY,
	})
	drawBoardShadow(img, boardRect)
	drawSquares(img, geom, theme)
	drawLastMove(img, geom, opts.LastMove, theme)
	drawSelection(img, geom, opts.Selected, theme)
	drawTargets(img, geom, opts.Targets)
	if err := drawPieces(img, board, geom, opts); err != nil {
		return nil, err
	}
	drawLegal(img, board, geom, opts.Legal, theme)
	if err := drawDragged(img, board, opts); err != nil {
		return nil, err
	}
	r.drawCoordinates(img, geom, theme)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

var (
	hudPanelColor    = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudShadowColor   = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary   = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTextSecondary = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	boardShadowColor = color.NRGBA{0, 0, 0, 60}
	pizzaColor       = color.NRGBA{R: 242, G: 140, B: 40, A: 230}
	pizzaCrustColor  = color.NRGBA{R: 196, G: 92, B: 28, A: 230}
	chocolateColor   = color.NRGBA{R: 104, G: 58, B: 34, A: 235}
	capturedTint     = color.NRGBA{R: 255, G: 255, B: 255, A: 110}
)

func squareOrigin(geom Geometry, sq rules.Square) image.Point {
	return geom.Origin(sq).Add(BoardOrigin)
}

func squareRect(geom Geometry, sq rules.Square) image.Rectangle {
	return geom.Rect(sq).Add(BoardOrigin)
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadowRect := image.Rect(
		boardRect.Min.X+4,
		boardRect.Min.Y+8,
		boardRect.Max.X+10,
		boardRect.Max.Y+12,
	)
	imagedraw.Draw(img, shadowRect, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(dst imagedraw.Image, geom Geometry, theme Theme) {
	for i := 0; i < 64; i++ {
		sq := rules.Square(i)
		clr := theme.Light
		if (sq.File()+sq.Rank())%2 == 0 {
			clr = theme.Dark
		}
		imagedraw.Draw(dst, squareRect(geom, sq), image.NewUniform(clr), image.Point{}, imagedraw.Src)
	}
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, geom Geometry, opts RenderOptions) error {
	boardMap := board.SquareMap()
	for i := 0; i < 64; i++ {
		sq := rules.Square(i)
		if opts.Dragging && sq == opts.DragFrom {
			continue
		}
		piece := boardMap[rules.EngineSquare(sq)]
		if piece == nchess.NoPiece {
			continue
		}
		img, err := renderPieceImage(piece, opts.PieceSet, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, squareRect(geom, sq), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

func drawDragged(dst imagedraw.Image, board *nchess.Board, opts RenderOptions) error {
	if !opts.Dragging || !opts.DragFrom.Valid() {
		return nil
	}
	piece := board.Piece(rules.EngineSquare(opts.DragFrom))
	if piece == nchess.NoPiece {
		return nil
	}
	img, err := renderPieceImage(piece, opts.PieceSet, squareSize)
	if err != nil {
		return err
	}
	at := BoardOrigin.Add(opts.DragPoint).Sub(image.Pt(squareSize/2, squareSize/2))
	imagedraw.Draw(dst, image.Rect(at.X, at.Y, at.X+squareSize, at.Y+squareSize), img, image.Point{}, imagedraw.Over)
	return nil
}

func drawLastMove(img *image.RGBA, geom Geometry, mv *rules.Move, theme Theme) {
	if mv == nil || !mv.From.Valid() || !mv.To.Valid() {
		return
	}
	drawSquareOverlay(img, squareRect(geom, mv.From), theme.LastMove)
	drawSquareOverlay(img, squareRect(geom, mv.To), theme.LastMove)
}

func drawSelection(img *image.RGBA, geom Geometry, sq rules.Square, theme Theme) {
	if !sq.Valid() {
		return
	}
	drawSquareOverlay(img, squareRect(geom, sq), theme.Selected)
}

// drawLegal marks empty destinations with a dot and captures with a ring.
func drawLegal(img *image.RGBA, board *nchess.Board, geom Geometry, legal []rules.Square, theme Theme) {
	for _, sq := range legal {
		if !sq.Valid() {
			continue
		}
		center := geom.Center(sq).Add(BoardOrigin)
		if board.Piece(rules.EngineSquare(sq)) != nchess.NoPiece {
			drawRing(img, center, squareSize/2-2, 5, theme.Legal)
			continue
		}
		drawDisc(img, center, squareSize/7, theme.Legal)
	}
}

func drawTargets(img *image.RGBA, geom Geometry, targets map[rules.Square]Target) {
	for sq, t := range targets {
		if !sq.Valid() {
			continue
		}
		center := geom.Center(sq).Add(BoardOrigin)
		switch t.Item {
		case domain.ItemChocolate:
			half := squareSize / 4
			rect := image.Rect(center.X-half, center.Y-half*3/4, center.X+half, center.Y+half*3/4)
			drawRoundedPanel(img, rect, 4, chocolateColor)
		default:
			drawDisc(img, center, squareSize/4+2, pizzaCrustColor)
			drawDisc(img, center, squareSize/4-2, pizzaColor)
		}
		if t.Captured {
			drawSquareOverlay(img, squareRect(geom, sq), capturedTint)
		}
	}
}

func drawSquareOverlay(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

type hudPanel struct {
	rect image.Rectangle
	text string
	clr  color.Color
}

type hudLayout struct {
	height   int
	radius   int
	paddingX int
	minWidth int
	gap      int
	shadow   int
}

// drawHUD lays out title on the left, timer centered and score on the right, all in
// one row above the board.
func (r *pngRenderer) drawHUD(img *image.RGBA, opts RenderOptions, boardRect image.Rectangle, l hudLayout) {
	drawer := &font.Drawer{Dst: img, Face: r.face}

	title := strings.TrimSpace(opts.HUDHeader)
	if title == "" {
		title = "Puzzle"
	}
	timer := strings.TrimSpace(opts.HUDTimer)
	score := strings.TrimSpace(opts.HUDScore)

	bottom := boardRect.Min.Y - l.gap
	top := bottom - l.height

	width := func(text string) int {
		w := drawer.MeasureString(text).Round() + l.paddingX*2
		if w < l.minWidth {
			w = l.minWidth
		}
		return w
	}

	scoreWidth := 0
	if score != "" {
		scoreWidth = width(score)
	}
	timerWidth := 0
	if timer != "" {
		timerWidth = width(timer)
	}
	titleWidth := width(title)
	maxTitle := boardRect.Dx() - scoreWidth - timerWidth - 24
	if maxTitle < l.minWidth {
		maxTitle = l.minWidth
	}
	if titleWidth > maxTitle {
		titleWidth = maxTitle
	}

	titleRect := image.Rect(boardRect.Min.X, top, boardRect.Min.X+titleWidth, bottom)
	panels := []hudPanel{
		{titleRect, truncateWithEllipsis(r.face, title, titleRect.Dx()-l.paddingX*2), hudTextPrimary},
	}
	if timerWidth > 0 {
		left := boardRect.Min.X + (boardRect.Dx()-timerWidth)/2
		if left < titleRect.Max.X+8 {
			left = titleRect.Max.X + 8
		}
		panels = append(panels, hudPanel{image.Rect(left, top, left+timerWidth, bottom), timer, hudTextSecondary})
	}
	if scoreWidth > 0 {
		panels = append(panels, hudPanel{image.Rect(boardRect.Max.X-scoreWidth, top, boardRect.Max.X, bottom), score, hudTextPrimary})
	}

	for _, p := range panels {
		drawRoundedPanel(img, p.rect.Add(image.Pt(0, l.shadow)), l.radius, hudShadowColor)
	}
	for _, p := range panels {
		drawRoundedPanel(img, p.rect, l.radius, hudPanelColor)
		drawCenteredString(drawer, p.rect, p.text, p.clr)
	}
}

func (r *pngRenderer) drawCoordinates(dst imagedraw.Image, geom Geometry, theme Theme) {
	drawer := &font.Drawer{Dst: dst, Face: r.face, Src: image.NewUniform(theme.Coordinates)}
	ascent := r.face.Metrics().Ascent.Ceil()
	boardEndY := BoardOrigin.Y + boardSize

	for i := 0; i < 8; i++ {
		rankSq := rules.SquareOf(0, i)
		rankCenter := squareOrigin(geom, rankSq).Y + squareSize/2
		drawCenteredText(drawer, string(rune('1'+i)), BoardOrigin.X-sideMargin/2, rankCenter+ascent/2)

		fileSq := rules.SquareOf(i, 0)
		fileCenter := squareOrigin(geom, fileSq).X + squareSize/2
		drawCenteredText(drawer, string(rune('a'+i)), fileCenter, boardEndY+ascent+6)
	}
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || face == nil {
		return trimmed
	}

	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}

	ellipsis := "..."
	if drawer.MeasureString(ellipsis).Round() > maxWidth {
		return ""
	}

	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if img == nil || rect.Empty() {
		return
	}
	if radius < 0 {
		radius = 0
	}
	maxRadius := rect.Dx() / 2
	if r := rect.Dy() / 2; r < maxRadius {
		maxRadius = r
	}
	if radius > maxRadius {
		radius = maxRadius
	}
	fill := image.NewUniform(clr)
	if radius == 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}

	// Cross of two rectangles plus four corner discs.
	horizontal := image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius)
	vertical := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y)
	imagedraw.Draw(img, horizontal, fill, image.Point{}, imagedraw.Over)
	for _, part := range []image.Rectangle{
		image.Rect(vertical.Min.X, vertical.Min.Y, vertical.Max.X, horizontal.Min.Y),
		image.Rect(vertical.Min.X, horizontal.Max.Y, vertical.Max.X, vertical.Max.Y),
	} {
		if !part.Empty() {
			imagedraw.Draw(img, part, fill, image.Point{}, imagedraw.Over)
		}
	}

	corners := []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	}
	for _, center := range corners {
		drawCorner(img, center, radius, rect, horizontal, vertical, clr)
	}
}

// drawCorner fills the quarter disc outside the cross so overlapping alpha is not doubled.
func drawCorner(img *image.RGBA, center image.Point, radius int, bounds, horizontal, vertical image.Rectangle, clr color.Color) {
	rSquared := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > rSquared {
				continue
			}
			p := image.Pt(center.X+x, center.Y+y)
			if !p.In(bounds) || p.In(horizontal) || p.In(vertical) {
				continue
			}
			blendPixel(img, p.X, p.Y, clr)
		}
	}
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if drawer == nil || text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	if radius <= 0 {
		blendPixel(img, center.X, center.Y, clr)
		return
	}
	rSquared := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > rSquared {
				continue
			}
			blendPixel(img, center.X+x, center.Y+y, clr)
		}
	}
}

func drawRing(img *image.RGBA, center image.Point, radius, thickness int, clr color.Color) {
	outer := float64(radius)
	inner := math.Max(0, float64(radius-thickness))
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			d := math.Hypot(float64(x), float64(y))
			if d > outer || d < inner {
				continue
			}
			blendPixel(img, center.X+x, center.Y+y, clr)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if img == nil {
		return
	}
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}

	sr, sg, sb, sa := clr.RGBA()
	srcA := float64(sa) / 65535.0
	if srcA <= 0 {
		return
	}
	// RGBA() is premultiplied.
	srcR := float64(sr) / 65535.0
	srcG := float64(sg) / 65535.0
	srcB := float64(sb) / 65535.0

	dst := img.RGBAAt(x, y)
	dstA := float64(dst.A) / 255.0
	dstR := float64(dst.R) / 255.0
	dstG := float64(dst.G) / 255.0
	dstB := float64(dst.B) / 255.0

	outA := srcA + dstA*(1-srcA)
	img.SetRGBA(x, y, color.RGBA{
		R: floatToUint8((srcR + dstR*(1-srcA)) * 255.0),
		G: floatToUint8((srcG + dstG*(1-srcA)) * 255.0),
		B: floatToUint8((srcB + dstB*(1-srcA)) * 255.0),
		A: floatToUint8(outA * 255.0),
	})
}

func floatToUint8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

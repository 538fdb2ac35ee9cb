package board

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece sets.
const (
	PieceSetClassic = "classic"
	PieceSetFlat    = "flat"
)

// PieceSets lists the supported sets in display order.
var PieceSets = []string{PieceSetClassic, PieceSetFlat}

// Glyph outlines on a 45x45 canvas.
var pieceOutlines = map[nchess.PieceType]string{
	nchess.Pawn:   `<circle cx="22.5" cy="13" r="5"/><path d="M14 37 H31 L28 25 Q22.5 19 17 25 Z"/>`,
	nchess.Rook:   `<path d="M11 37 H34 V33 H31 V19 H34 V10 H30 V14 H26 V10 H19 V14 H15 V10 H11 V19 H14 V33 H11 Z"/>`,
	nchess.Knight: `<path d="M12 37 H34 V33 Q33 20 26 12 L24 7 L21 12 Q14 14 10 22 L13 26 L19 21 Q19 28 15 33 H12 Z"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="7.5" r="2.5"/><path d="M13 37 H32 V33 H26 Q31 26 28 18 L22.5 10 L17 18 Q14 26 19 33 H13 Z"/>`,
	nchess.Queen:  `<path d="M10 37 H35 L33 28 L38 13 L29 22 L27 9 L22.5 21 L18 9 L16 22 L7 13 L12 28 Z"/>`,
	nchess.King:   `<path d="M11 37 H34 L32 26 Q35 18 27 17 H24 V13 H27 V10 H24 V6 H21 V10 H18 V13 H21 V17 H18 Q10 18 13 26 Z"/>`,
}

type pieceStyle struct {
	fill        string
	stroke      string
	strokeWidth string
	base        string
}

func styleFor(set string, c nchess.Color) pieceStyle {
	switch set {
	case PieceSetFlat:
		if c == nchess.White {
			return pieceStyle{fill: "#f4efe6", stroke: "#f4efe6", strokeWidth: "0", base: "#9a8f80"}
		}
		return pieceStyle{fill: "#2e2b29", stroke: "#2e2b29", strokeWidth: "0", base: "#6b6259"}
	default:
		if c == nchess.White {
			return pieceStyle{fill: "#ffffff", stroke: "#000000", strokeWidth: "1.5"}
		}
		return pieceStyle{fill: "#000000", stroke: "#000000", strokeWidth: "1.5"}
	}
}

// pieceSVG builds the icon markup for piece in the given set.
func pieceSVG(piece nchess.Piece, set string) ([]byte, error) {
	outline, ok := pieceOutlines[piece.Type()]
	if !ok {
		return nil, fmt.Errorf("no outline for piece %v", piece)
	}
	st := styleFor(set, piece.Color())
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">`)
	if st.base != "" {
		fmt.Fprintf(&b, `<ellipse cx="22.5" cy="38.5" rx="13" ry="3" style="fill: %s"/>`, st.base)
	}
	fmt.Fprintf(&b, `<g style="fill: %s; stroke: %s; stroke-width:%s; stroke-linejoin:round">%s</g>`, st.fill, st.stroke, st.strokeWidth, outline)
	b.WriteString(`</svg>`)
	return []byte(b.String()), nil
}

type pieceCacheKey struct {
	piece nchess.Piece
	set   string
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(piece nchess.Piece, set string, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, set: set, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	data, err := pieceSVG(piece, set)
	if err != nil {
		return nil, err
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(size)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(size)
	}

	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}

// sanitizeSVG normalizes style declarations the oksvg parser is strict about.
func sanitizeSVG(svg []byte) []byte {
	fixed := bytes.ReplaceAll(svg, []byte("fill:000000"), []byte("fill:#000000"))
	fixed = bytes.ReplaceAll(fixed, []byte("fill: #"), []byte("fill:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: #"), []byte("stroke:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("; "), []byte(";"))
	return fixed
}

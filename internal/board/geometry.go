package board

import (
	"image"

	"github.com/park285/chess-arena-client/internal/rules"
)

// Orientation says which side sits at the bottom of the board.
type Orientation int

const (
	WhiteBottom Orientation = iota
	BlackBottom
)

// OrientationFor puts the human side at the bottom.
func OrientationFor(human rules.Color) Orientation {
	if human == rules.Black {
		return BlackBottom
	}
	return WhiteBottom
}

func (o Orientation) String() string {
	if o == BlackBottom {
		return "black"
	}
	return "white"
}

// DefaultSquareSize matches the renderer's square size.
const DefaultSquareSize = 72

// Geometry maps pixel offsets relative to the board's top-left corner to squares.
// Rendering and hit-testing share it, so both flip together.
type Geometry struct {
	SquareSize  int
	Orientation Orientation
}

func (g Geometry) size() int {
	if g.SquareSize <= 0 {
		return DefaultSquareSize
	}
	return g.SquareSize
}

// SquareAt returns the square under the pixel, or NoSquare off the board.
func (g Geometry) SquareAt(x, y int) rules.Square {
	size := g.size()
	if x < 0 || y < 0 {
		return rules.NoSquare
	}
	col, row := x/size, y/size
	if col > 7 || row > 7 {
		return rules.NoSquare
	}
	if g.Orientation == BlackBottom {
		return rules.SquareOf(7-col, row)
	}
	return rules.SquareOf(col, 7-row)
}

// Origin is the top-left pixel of sq.
func (g Geometry) Origin(sq rules.Square) image.Point {
	col, row := g.cell(sq)
	size := g.size()
	return image.Point{X: col * size, Y: row * size}
}

// Center is the middle pixel of sq.
func (g Geometry) Center(sq rules.Square) image.Point {
	size := g.size()
	return g.Origin(sq).Add(image.Pt(size/2, size/2))
}

// Rect is the pixel rectangle of sq.
func (g Geometry) Rect(sq rules.Square) image.Rectangle {
	o := g.Origin(sq)
	size := g.size()
	return image.Rect(o.X, o.Y, o.X+size, o.Y+size)
}

func (g Geometry) cell(sq rules.Square) (col, row int) {
	if g.Orientation == BlackBottom {
		return 7 - sq.File(), sq.Rank()
	}
	return sq.File(), 7 - sq.Rank()
}

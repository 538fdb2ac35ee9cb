package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPosition marks a position string that does not decode to a board.
var ErrInvalidPosition = errors.New("invalid position")

// InvalidPositionError carries the rejected encoding and the reason.
type InvalidPositionError struct {
	FEN    string
	Reason string
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position %q: %s", e.FEN, e.Reason)
}

func (e *InvalidPositionError) Unwrap() error { return ErrInvalidPosition }

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is an immutable FEN snapshot. Every applied move yields a new value.
type Position string

func (p Position) String() string { return string(p) }

// Color is the side to move, encoded as in FEN.
type Color byte

const (
	NoColor Color = 0
	White   Color = 'w'
	Black   Color = 'b'
)

func (c Color) String() string {
	switch c {
	case White:
		return "w"
	case Black:
		return "b"
	default:
		return "-"
	}
}

// Other returns the opposing side.
func (c Color) Other() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

// PieceType mirrors FEN piece letters (lowercase).
type PieceType byte

const (
	NoPieceType PieceType = 0
	Pawn        PieceType = 'p'
	Knight      PieceType = 'n'
	Bishop      PieceType = 'b'
	Rook        PieceType = 'r'
	Queen       PieceType = 'q'
	King        PieceType = 'k'
)

func (t PieceType) String() string {
	if t == NoPieceType {
		return ""
	}
	return string(rune(t))
}

// Piece is a colored piece on the board.
type Piece struct {
	Color Color
	Type  PieceType
}

// Square indexes the board as file + 8*rank, a1 = 0 and h8 = 63.
type Square int8

const NoSquare Square = -1

// SquareOf builds a square from zero-based file and rank. Out of range yields NoSquare.
func SquareOf(file, rank int) Square {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare
	}
	return Square(file + rank*8)
}

// ParseSquare decodes algebraic coordinates like "e4".
func ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return NoSquare, fmt.Errorf("bad square %q", s)
	}
	sq := SquareOf(int(s[0]-'a'), int(s[1]-'1'))
	if sq == NoSquare {
		return NoSquare, fmt.Errorf("bad square %q", s)
	}
	return sq, nil
}

// MustSquare is ParseSquare for literals.
func MustSquare(s string) Square {
	sq, err := ParseSquare(s)
	if err != nil {
		panic(err)
	}
	return sq
}

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) Valid() bool { return s >= 0 && s < 64 }

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// Move is a single from/to displacement with an optional promotion piece.
type Move struct {
	From      Square
	To        Square
	Promotion PieceType
}

// UCI renders the move in coordinate notation.
func (m Move) UCI() string {
	return m.From.String() + m.To.String() + m.Promotion.String()
}

func (m Move) String() string { return m.UCI() }

// Applied describes a move the engine accepted.
type Applied struct {
	SAN       string
	From      Square
	To        Square
	Promotion PieceType
	Checkmate bool
}

// Move returns the coordinate form of the applied move.
func (a *Applied) Move() Move {
	return Move{From: a.From, To: a.To, Promotion: a.Promotion}
}

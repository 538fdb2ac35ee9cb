package rules

import (
	"fmt"
	"regexp"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var coordinateMove = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbnQRBN]?$`)

// NewPosition validates a FEN and returns it as a Position. An empty string
// yields the standard starting position.
func NewPosition(fen string) (Position, error) {
	fen = strings.Join(strings.Fields(fen), " ")
	if fen == "" {
		return Position(StartFEN), nil
	}
	if reason := checkFEN(fen); reason != "" {
		return "", &InvalidPositionError{FEN: fen, Reason: reason}
	}
	if _, err := nchess.FEN(fen); err != nil {
		return "", &InvalidPositionError{FEN: fen, Reason: err.Error()}
	}
	return Position(fen), nil
}

// checkFEN verifies field count and the placement grid before the engine sees the string.
func checkFEN(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		return fmt.Sprintf("expected 6 fields, got %d", len(fields))
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return fmt.Sprintf("expected 8 ranks, got %d", len(ranks))
	}
	for i, r := range ranks {
		width := 0
		for _, ch := range r {
			switch {
			case ch >= '1' && ch <= '8':
				width += int(ch - '0')
			case strings.ContainsRune("pnbrqkPNBRQK", ch):
				width++
			default:
				return fmt.Sprintf("rank %d: unexpected %q", 8-i, ch)
			}
		}
		if width != 8 {
			return fmt.Sprintf("rank %d: width %d", 8-i, width)
		}
	}
	if fields[1] != "w" && fields[1] != "b" {
		return fmt.Sprintf("bad side to move %q", fields[1])
	}
	return ""
}

func gameFrom(pos Position) (*nchess.Game, error) {
	opt, err := nchess.FEN(string(pos))
	if err != nil {
		return nil, &InvalidPositionError{FEN: string(pos), Reason: err.Error()}
	}
	return nchess.NewGame(opt), nil
}

// Turn returns the side to move.
func Turn(pos Position) Color {
	fields := strings.Fields(string(pos))
	if len(fields) < 2 {
		return NoColor
	}
	switch fields[1] {
	case "w":
		return White
	case "b":
		return Black
	default:
		return NoColor
	}
}

// WithTurn rewrites the side-to-move field. En passant is cleared since it is only
// meaningful for the side that was about to move.
func WithTurn(pos Position, c Color) Position {
	fields := strings.Fields(string(pos))
	if len(fields) != 6 || (c != White && c != Black) {
		return pos
	}
	fields[1] = c.String()
	fields[3] = "-"
	return Position(strings.Join(fields, " "))
}

// PieceAt reads the piece on sq.
func PieceAt(pos Position, sq Square) (Piece, bool) {
	if !sq.Valid() {
		return Piece{}, false
	}
	fields := strings.Fields(string(pos))
	if len(fields) == 0 {
		return Piece{}, false
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return Piece{}, false
	}
	row := ranks[7-sq.Rank()]
	file := 0
	for _, ch := range row {
		if ch >= '1' && ch <= '8' {
			file += int(ch - '0')
			continue
		}
		if file == sq.File() {
			p := Piece{Type: PieceType(toLower(byte(ch)))}
			if ch >= 'A' && ch <= 'Z' {
				p.Color = White
			} else {
				p.Color = Black
			}
			return p, true
		}
		file++
	}
	return Piece{}, false
}

// LegalMoves lists destinations for the piece on sq. Empty squares and pieces of the
// side not to move yield nothing.
func LegalMoves(pos Position, sq Square) []Square {
	p, ok := PieceAt(pos, sq)
	if !ok || p.Color != Turn(pos) {
		return nil
	}
	game, err := gameFrom(pos)
	if err != nil {
		return nil
	}
	from := toEngineSquare(sq)
	seen := make(map[Square]struct{})
	var out []Square
	for _, m := range game.ValidMoves() {
		if m.S1() != from {
			continue
		}
		to := fromEngineSquare(m.S2())
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	return out
}

// Apply plays mv on pos. Illegal moves return nil and the unchanged position.
func Apply(pos Position, mv Move) (*Applied, Position) {
	game, err := gameFrom(pos)
	if err != nil {
		return nil, pos
	}
	if !mv.From.Valid() || !mv.To.Valid() {
		return nil, pos
	}
	mv = withDefaultPromotion(pos, mv)
	before := game.Position()
	decoded, err := nchess.UCINotation{}.Decode(before, mv.UCI())
	if err != nil {
		return nil, pos
	}
	if err := game.Move(decoded, nil); err != nil {
		return nil, pos
	}
	moves := game.Moves()
	if len(moves) == 0 {
		return nil, pos
	}
	last := moves[len(moves)-1]
	applied := &Applied{
		SAN:       nchess.AlgebraicNotation{}.Encode(before, last),
		From:      mv.From,
		To:        mv.To,
		Promotion: mv.Promotion,
		Checkmate: game.Method() == nchess.Checkmate,
	}
	return applied, Position(game.FEN())
}

// IsCheckmate reports whether the side to move in pos is mated.
func IsCheckmate(pos Position) bool {
	game, err := gameFrom(pos)
	if err != nil {
		return false
	}
	return game.Position().Status() == nchess.Checkmate
}

// ParseMove decodes text against pos: SAN first, then 4-5 character coordinate
// notation with an optional promotion letter.
func ParseMove(pos Position, text string) (Move, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Move{}, fmt.Errorf("empty move")
	}
	game, err := gameFrom(pos)
	if err != nil {
		return Move{}, err
	}
	before := game.Position()
	// The decoder matches the encoded form exactly, so try the text with and
	// without check decoration.
	bare := strings.TrimRight(text, "+#!?")
	for _, candidate := range []string{text, bare, bare + "+", bare + "#"} {
		m, err := nchess.AlgebraicNotation{}.Decode(before, candidate)
		if err != nil || m == nil {
			continue
		}
		return Move{
			From:      fromEngineSquare(m.S1()),
			To:        fromEngineSquare(m.S2()),
			Promotion: fromEnginePieceType(m.Promo()),
		}, nil
	}
	if !coordinateMove.MatchString(text) {
		return Move{}, fmt.Errorf("unparseable move %q", text)
	}
	lower := strings.ToLower(text)
	from, _ := ParseSquare(lower[0:2])
	to, _ := ParseSquare(lower[2:4])
	mv := Move{From: from, To: to}
	if len(lower) == 5 {
		mv.Promotion = PieceType(lower[4])
	}
	return mv, nil
}

// withDefaultPromotion queens a pawn that reaches the last rank without an explicit piece.
func withDefaultPromotion(pos Position, mv Move) Move {
	if mv.Promotion != NoPieceType {
		return mv
	}
	p, ok := PieceAt(pos, mv.From)
	if !ok || p.Type != Pawn {
		return mv
	}
	if (p.Color == White && mv.To.Rank() == 7) || (p.Color == Black && mv.To.Rank() == 0) {
		mv.Promotion = Queen
	}
	return mv
}

// Board exposes the engine board for rendering.
func Board(pos Position) (*nchess.Board, error) {
	game, err := gameFrom(pos)
	if err != nil {
		return nil, err
	}
	return game.Position().Board(), nil
}

// EngineSquare converts to the engine's square type.
func EngineSquare(sq Square) nchess.Square { return toEngineSquare(sq) }

func toEngineSquare(sq Square) nchess.Square {
	return nchess.NewSquare(nchess.File(sq.File()), nchess.Rank(sq.Rank()))
}

func fromEngineSquare(sq nchess.Square) Square {
	return SquareOf(int(sq.File()), int(sq.Rank()))
}

func fromEnginePieceType(t nchess.PieceType) PieceType {
	switch t {
	case nchess.Queen:
		return Queen
	case nchess.Rook:
		return Rook
	case nchess.Bishop:
		return Bishop
	case nchess.Knight:
		return Knight
	default:
		return NoPieceType
	}
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

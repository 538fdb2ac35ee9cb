package rules

import (
	"errors"
	"testing"
)

const knightFork = "2q3k1/8/8/5N2/6P1/7K/8/8 w - - 0 1"

func TestNewPositionDefaultsToStart(t *testing.T) {
	pos, err := NewPosition("  ")
	if err != nil {
		t.Fatalf("NewPosition: %v", err)
	}
	if pos.String() != StartFEN {
		t.Fatalf("expected start position, got %q", pos)
	}
}

func TestNewPositionRejectsMalformed(t *testing.T) {
	cases := []string{
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0",
		"rnbqkbnr/pppppppp/9/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/ppppxppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1",
		"not a position",
	}
	for _, fen := range cases {
		_, err := NewPosition(fen)
		if err == nil {
			t.Fatalf("expected error for %q", fen)
		}
		var ipe *InvalidPositionError
		if !errors.As(err, &ipe) {
			t.Fatalf("expected InvalidPositionError for %q, got %T", fen, err)
		}
		if !errors.Is(err, ErrInvalidPosition) {
			t.Fatalf("expected ErrInvalidPosition for %q", fen)
		}
	}
}

func TestLegalMovesEmptyAndWrongSide(t *testing.T) {
	pos := Position(StartFEN)
	if got := LegalMoves(pos, MustSquare("e4")); len(got) != 0 {
		t.Fatalf("empty square should have no moves, got %v", got)
	}
	if got := LegalMoves(pos, MustSquare("e7")); len(got) != 0 {
		t.Fatalf("black pawn should not move on white's turn, got %v", got)
	}
	got := LegalMoves(pos, MustSquare("e2"))
	if len(got) != 2 {
		t.Fatalf("expected e3 and e4, got %v", got)
	}
}

func TestApplyLegalAndIllegal(t *testing.T) {
	pos := Position(StartFEN)
	applied, next := Apply(pos, Move{From: MustSquare("e2"), To: MustSquare("e5")})
	if applied != nil || next != pos {
		t.Fatalf("illegal move must return nil and the same position")
	}
	applied, next = Apply(pos, Move{From: MustSquare("e2"), To: MustSquare("e4")})
	if applied == nil {
		t.Fatalf("expected e2e4 to apply")
	}
	if applied.SAN != "e4" {
		t.Fatalf("expected SAN e4, got %q", applied.SAN)
	}
	if Turn(next) != Black {
		t.Fatalf("expected black to move after e4")
	}
	if Turn(pos) != White {
		t.Fatalf("original position must stay untouched")
	}
}

func TestApplyReportsCheckAndCapture(t *testing.T) {
	pos := Position(knightFork)
	applied, next := Apply(pos, Move{From: MustSquare("f5"), To: MustSquare("e7")})
	if applied == nil {
		t.Fatalf("expected Ne7 to apply")
	}
	if applied.SAN != "Ne7+" {
		t.Fatalf("expected Ne7+, got %q", applied.SAN)
	}
	reply, next := Apply(next, Move{From: MustSquare("g8"), To: MustSquare("f7")})
	if reply == nil || reply.SAN != "Kf7" {
		t.Fatalf("expected Kf7 reply, got %+v", reply)
	}
	capture, _ := Apply(next, Move{From: MustSquare("e7"), To: MustSquare("c8")})
	if capture == nil || capture.SAN != "Nxc8" {
		t.Fatalf("expected Nxc8, got %+v", capture)
	}
}

func TestApplyAutoQueens(t *testing.T) {
	pos := Position("8/4P3/8/8/8/8/k7/4K3 w - - 0 1")
	applied, next := Apply(pos, Move{From: MustSquare("e7"), To: MustSquare("e8")})
	if applied == nil {
		t.Fatalf("expected promotion to apply")
	}
	if applied.Promotion != Queen {
		t.Fatalf("expected auto queen, got %q", applied.Promotion)
	}
	p, ok := PieceAt(next, MustSquare("e8"))
	if !ok || p.Type != Queen || p.Color != White {
		t.Fatalf("expected white queen on e8, got %+v", p)
	}
}

func TestIsCheckmate(t *testing.T) {
	// Fool's mate.
	mated := Position("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	if !IsCheckmate(mated) {
		t.Fatalf("expected checkmate")
	}
	if IsCheckmate(Position(StartFEN)) {
		t.Fatalf("start position is not mate")
	}
}

func TestParseMoveSANThenCoordinate(t *testing.T) {
	pos := Position(knightFork)
	mv, err := ParseMove(pos, "Ne7+")
	if err != nil {
		t.Fatalf("ParseMove SAN: %v", err)
	}
	if mv.From != MustSquare("f5") || mv.To != MustSquare("e7") {
		t.Fatalf("unexpected SAN decode %v", mv)
	}
	mv, err = ParseMove(pos, "f5e7")
	if err != nil {
		t.Fatalf("ParseMove coordinate: %v", err)
	}
	if mv.UCI() != "f5e7" {
		t.Fatalf("unexpected coordinate decode %v", mv)
	}
	mv, err = ParseMove(Position("8/4P3/8/8/8/8/k7/4K3 w - - 0 1"), "e7e8n")
	if err != nil || mv.Promotion != Knight {
		t.Fatalf("expected knight promotion, got %v (%v)", mv, err)
	}
	if _, err := ParseMove(pos, "zz9"); err == nil {
		t.Fatalf("expected error for garbage")
	}
}

func TestWithTurn(t *testing.T) {
	pos := Position("8/8/8/8/4P3/8/8/4K3 b - e3 0 1")
	got := WithTurn(pos, White)
	if Turn(got) != White {
		t.Fatalf("expected white to move, got %q", got)
	}
	if got != Position("8/8/8/8/4P3/8/8/4K3 w - - 0 1") {
		t.Fatalf("unexpected rewrite %q", got)
	}
}

func TestSquareRoundTrip(t *testing.T) {
	for i := 0; i < 64; i++ {
		sq := Square(i)
		back, err := ParseSquare(sq.String())
		if err != nil || back != sq {
			t.Fatalf("square %d round trip failed: %v %v", i, back, err)
		}
		if fromEngineSquare(toEngineSquare(sq)) != sq {
			t.Fatalf("engine square mapping broken for %s", sq)
		}
	}
	if SquareOf(8, 0) != NoSquare {
		t.Fatalf("expected NoSquare out of range")
	}
}

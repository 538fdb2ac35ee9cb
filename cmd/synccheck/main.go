package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/chess-arena-client/internal/api"
	"github.com/park285/chess-arena-client/internal/push"
	"github.com/park285/chess-arena-client/pkg/arenadto"
)

func main() {
	baseURL := os.Getenv("ARENA_API_URL")
	wsURL := os.Getenv("ARENA_WS_URL")
	token := os.Getenv("ARENA_TOKEN")
	competitionID := os.Getenv("ARENA_COMPETITION_ID")

	if baseURL == "" {
		log.Fatal("ARENA_API_URL is required")
	}

	client, err := api.NewClient(baseURL,
		api.WithToken(token),
		api.WithTimeout(8*time.Second),
	)
	if err != nil {
		log.Fatalf("api client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if competitionID == "" {
		ps, err := client.CasualPuzzles(ctx)
		if err != nil {
			log.Printf("/puzzles error: %v", err)
		} else {
			log.Printf("/puzzles ok: %d puzzles", len(ps))
		}
		log.Println("ARENA_COMPETITION_ID not set; skipping WS check")
		return
	}

	comp, err := client.Competition(ctx, competitionID)
	if err != nil {
		log.Printf("/competitions error: %v", err)
	} else {
		log.Printf("/competitions ok: title=%q puzzles=%d ends=%s", comp.Title, len(comp.Puzzles), comp.EndTime.Format(time.RFC3339))
	}
	if entries, err := client.Leaderboard(ctx, competitionID); err != nil {
		log.Printf("/leaderboard error: %v", err)
	} else {
		log.Printf("/leaderboard ok: %d entries", len(entries))
	}

	if wsURL == "" {
		log.Println("ARENA_WS_URL not set; skipping WS check")
		return
	}

	ws, err := push.NewWebSocket(wsURL, push.WithToken(token), push.WithReconnect(2))
	if err != nil {
		log.Fatalf("ws init: %v", err)
	}
	ws.OnEvent(func(ev push.Event) {
		fmt.Printf("WS event=%s state=%s data=%s\n", ev.Name, ws.State(), string(ev.Data))
		if ev.Name == arenadto.EventConnect {
			jctx, jcancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer jcancel()
			join := arenadto.JoinCompetition{CompetitionID: competitionID}
			if err := ws.Emit(jctx, arenadto.EventJoinCompetition, join); err != nil {
				log.Printf("WS join error: %v", err)
			}
		}
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	// Observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = ws.Close(context.Background())
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	APIURL string
	WSURL  string

	Token    string
	UserID   string
	Username string

	// CompetitionID selects a competition; empty plays casual puzzles.
	CompetitionID string

	StateStore  string
	StateDir    string
	RedisURL    string
	DatabaseURL string
	StateTTL    time.Duration

	CasualDuration time.Duration
	CasualPoints   int

	BoardTheme  string
	PieceSet    string
	BoardOut    string
	MessagesDir string

	HTTPTimeout time.Duration
}

// Casual reports whether the session is not tied to a competition.
func (c *AppConfig) Casual() bool { return c.CompetitionID == "" }

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		StateStore:     "file",
		StateDir:       ".puzzle-state",
		CasualDuration: 600 * time.Second,
		CasualPoints:   10,
		BoardTheme:     "brown",
		PieceSet:       "classic",
		BoardOut:       "board.png",
		HTTPTimeout:    10 * time.Second,
	}

	cfg.APIURL = strings.TrimSpace(os.Getenv("ARENA_API_URL"))
	cfg.WSURL = strings.TrimSpace(os.Getenv("ARENA_WS_URL"))

	cfg.Token = strings.TrimSpace(os.Getenv("ARENA_TOKEN"))
	cfg.UserID = strings.TrimSpace(os.Getenv("ARENA_USER_ID"))
	cfg.Username = strings.TrimSpace(os.Getenv("ARENA_USERNAME"))
	cfg.CompetitionID = strings.TrimSpace(os.Getenv("ARENA_COMPETITION_ID"))

	if v := strings.TrimSpace(os.Getenv("STATE_STORE")); v != "" {
		cfg.StateStore = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("STATE_DIR")); v != "" {
		cfg.StateDir = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("STATE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StateTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("CASUAL_DURATION_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CasualDuration = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("CASUAL_POINTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CasualPoints = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPTimeout = time.Duration(n) * time.Second
		}
	}

	if v := strings.TrimSpace(os.Getenv("BOARD_THEME")); v != "" {
		cfg.BoardTheme = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("PIECE_SET")); v != "" {
		cfg.PieceSet = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("BOARD_OUT")); v != "" {
		cfg.BoardOut = v
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if cfg.APIURL == "" {
		return nil, errors.New("ARENA_API_URL is required")
	}
	if !cfg.Casual() && cfg.WSURL == "" {
		return nil, errors.New("ARENA_WS_URL is required for competitions")
	}
	switch cfg.StateStore {
	case "memory", "file":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for STATE_STORE=redis")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for STATE_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STATE_STORE %q", cfg.StateStore)
	}

	return cfg, nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-arena-client/internal/domain"
	"github.com/park285/chess-arena-client/pkg/arenadto"
)

// TokenProvider returns the current session token.
type TokenProvider func() string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	token   TokenProvider
	logger  *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = func() string { return token } }
}

func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) { c.token = p }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	c := &Client{
		baseURL:        baseURL,
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		token:          func() string { return "" },
		logger:         zap.NewNop(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) currentToken() string {
	if c.token == nil {
		return ""
	}
	return strings.TrimSpace(c.token())
}

// Competition fetches the full competition document with its ordered puzzles.
func (c *Client) Competition(ctx context.Context, id string) (*domain.Competition, error) {
	raw, err := c.doRaw(ctx, fasthttp.MethodGet, "/competition/"+url.PathEscape(id), nil, true, nil)
	if err != nil {
		return nil, err
	}
	var wrapped arenadto.CompetitionResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode competition: %w", err)
	}
	doc := wrapped.Competition
	if doc == nil {
		var bare arenadto.Competition
		if err := json.Unmarshal(raw, &bare); err != nil {
			return nil, fmt.Errorf("decode competition: %w", err)
		}
		doc = &bare
	}
	comp := CompetitionFromDTO(*doc)
	if comp.ID == "" {
		comp.ID = id
	}
	return &comp, nil
}

// CasualPuzzles fetches the undifferentiated casual pool.
func (c *Client) CasualPuzzles(ctx context.Context) ([]domain.Puzzle, error) {
	var resp arenadto.PuzzlesResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/puzzle/get-puzzles", nil, &resp, true, nil); err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, &StatusError{Status: fasthttp.StatusOK, Message: resp.Message}
	}
	out := make([]domain.Puzzle, 0, len(resp.Puzzles))
	for _, p := range resp.Puzzles {
		out = append(out, PuzzleFromDTO(p))
	}
	return out, nil
}

// Leaderboard fetches a REST snapshot. Order is the backend's.
func (c *Client) Leaderboard(ctx context.Context, competitionID string) ([]domain.LeaderboardEntry, error) {
	var resp arenadto.LeaderboardResponse
	path := "/competition/" + url.PathEscape(competitionID) + "/leaderboard"
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true, nil); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &StatusError{Status: fasthttp.StatusOK, Message: resp.Message}
	}
	return LeaderboardFromDTO(resp.Leaderboard), nil
}

// Participate registers the user. Already participating is not an error; the bool
// reports it.
func (c *Client) Participate(ctx context.Context, competitionID string) (bool, error) {
	if c.currentToken() == "" {
		return false, ErrAuthRequired
	}
	var resp arenadto.ParticipateResponse
	path := "/competition/" + url.PathEscape(competitionID) + "/participate"
	err := c.doJSON(ctx, fasthttp.MethodPost, path, struct{}{}, &resp, false, nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && alreadyParticipating(se.Message+" "+se.Body) {
			return true, nil
		}
		return false, err
	}
	if !resp.Success {
		if alreadyParticipating(resp.Message) {
			return true, nil
		}
		return false, &StatusError{Status: fasthttp.StatusOK, Message: resp.Message}
	}
	return false, nil
}

func alreadyParticipating(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "already participating") || strings.Contains(msg, "already joined") || strings.Contains(msg, "already registered")
}

// SubmitResult is a confirmed submission.
type SubmitResult struct {
	ScoreEarned   int
	TotalScore    *int
	PuzzlesSolved *int
	RequestID     string
}

// Submit posts a solved puzzle. The result is only returned when the backend
// confirms with a positive score; everything else is a SubmissionRejectedError,
// a TransportError or ErrAuthRequired.
func (c *Client) Submit(ctx context.Context, competitionID, puzzleID string, solution []string, timeSpent int) (*SubmitResult, error) {
	if c.currentToken() == "" {
		return nil, ErrAuthRequired
	}
	reqID := uuid.NewString()
	path := "/competition/" + url.PathEscape(competitionID) + "/puzzles/" + url.PathEscape(puzzleID) + "/submit"
	body := arenadto.SubmitRequest{Solution: solution, TimeSpent: timeSpent}
	var resp arenadto.SubmitResponse
	err := c.doJSON(ctx, fasthttp.MethodPost, path, body, &resp, false, map[string]string{"X-Request-Id": reqID})
	if err != nil {
		var se *StatusError
		if !IsTransport(err) && errors.As(err, &se) {
			return nil, &SubmissionRejectedError{PuzzleID: puzzleID, Status: se.Status, Message: se.Message}
		}
		return nil, err
	}
	earned := int(resp.Earned() + 0.5)
	if !resp.Success || earned <= 0 {
		c.logger.Warn("api_submit_not_scored",
			zap.String("puzzle_id", puzzleID),
			zap.Bool("success", resp.Success),
			zap.String("request_id", reqID),
		)
		return nil, &SubmissionRejectedError{PuzzleID: puzzleID, Message: resp.Message}
	}
	out := &SubmitResult{ScoreEarned: earned, PuzzlesSolved: resp.PuzzlesSolved, RequestID: reqID}
	if resp.TotalScore != nil {
		total := int(*resp.TotalScore + 0.5)
		out.TotalScore = &total
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool, extra map[string]string) error {
	raw, err := c.doRaw(ctx, method, path, in, retry, extra)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, in any, retry bool, extra map[string]string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	if tok := c.currentToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range extra {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	op := method + " " + path
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = &TransportError{Op: op, Err: err}
			if attempt == attempts {
				break
			}
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusUnauthorized {
			return nil, ErrAuthRequired
		}
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			serr := &StatusError{Status: status, Message: errorMessage(resp.Body()), Body: truncate(body, 512)}
			if !shouldRetryStatus(status) {
				return nil, serr
			}
			lastErr = &TransportError{Op: op, Err: serr}
			if attempt == attempts {
				break
			}
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		return append([]byte(nil), resp.Body()...), nil
	}

	if lastErr == nil {
		lastErr = &TransportError{Op: op, Err: errors.New("unknown error")}
	}
	c.logger.Warn("api_request_failed", zap.String("op", op), zap.Int("attempts", attempts), zap.Error(lastErr))
	return nil, lastErr
}

func errorMessage(body []byte) string {
	var er arenadto.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return ""
	}
	if er.Message != "" {
		return er.Message
	}
	return er.Error
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

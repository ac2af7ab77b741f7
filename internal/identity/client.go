package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrPlayerNotFound = errors.New("player not found in identity service")

// StatusError is returned for unexpected responses from the identity service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity service returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether repeating the request could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client talks to the identity service that owns player ratings.
type Client struct {
	baseURL    string
	token      string
	rdb        *redis.Client
	cacheTTL   time.Duration
	httpClient *http.Client
}

// NewClient creates an identity client. rdb may be nil to disable the
// rating cache.
func NewClient(baseURL, token string, rdb *redis.Client, cacheTTL time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		rdb:        rdb,
		cacheTTL:   cacheTTL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func eloCacheKey(playerID string) string {
	return "player:" + playerID + ":elo"
}

// GetPlayerElo returns the player's current rating, served from Redis when
// a fresh copy is cached.
func (c *Client) GetPlayerElo(ctx context.Context, playerID string) (int, error) {
	if c.rdb != nil {
		if v, err := c.rdb.Get(ctx, eloCacheKey(playerID)).Int(); err == nil {
			return v, nil
		} else if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("player_id", playerID).Msg("[IDENTITY] ELO cache read failed")
		}
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/players/"+url.PathEscape(playerID)+"/elo", nil)
	if err != nil {
		return 0, err
	}

	var body struct {
		Elo int `json:"elo"`
	}
	if err := c.do(req, &body); err != nil {
		return 0, fmt.Errorf("get elo for %s: %w", playerID, err)
	}

	if c.rdb != nil && c.cacheTTL > 0 {
		if err := c.rdb.Set(ctx, eloCacheKey(playerID), strconv.Itoa(body.Elo), c.cacheTTL).Err(); err != nil {
			log.Warn().Err(err).Str("player_id", playerID).Msg("[IDENTITY] ELO cache write failed")
		}
	}
	return body.Elo, nil
}

// ReportMatchResult posts a rating delta for one player. It makes a single
// attempt; callers own retries.
func (c *Client) ReportMatchResult(ctx context.Context, playerID, matchID string, delta int) error {
	payload, err := json.Marshal(map[string]any{"match_id": matchID, "delta": delta})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/players/"+url.PathEscape(playerID)+"/match-results", payload)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("report result for %s: %w", playerID, err)
	}

	if c.rdb != nil {
		c.rdb.Del(ctx, eloCacheKey(playerID))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, into any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPlayerNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if into == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

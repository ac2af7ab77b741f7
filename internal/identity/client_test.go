package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlayerElo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/players/alice/elo", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"elo": 1234}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "svc-token", nil, 0)
	elo, err := c.GetPlayerElo(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, 1234, elo)
}

func TestGetPlayerEloNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil, 0)
	_, err := c.GetPlayerElo(context.Background(), "ghost")

	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestReportMatchResult(t *testing.T) {
	var got struct {
		MatchID string `json:"match_id"`
		Delta   int    `json:"delta"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/players/bob/match-results", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "svc-token", nil, 0)
	err := c.ReportMatchResult(context.Background(), "bob", "match-9", -16)

	require.NoError(t, err)
	assert.Equal(t, "match-9", got.MatchID)
	assert.Equal(t, -16, got.Delta)
}

func TestServerErrorsAreRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil, 0)
	err := c.ReportMatchResult(context.Background(), "bob", "match-9", 5)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.True(t, se.Retryable())
	assert.Equal(t, "maintenance", se.Body)
}

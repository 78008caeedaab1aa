package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method   string
	path     string
	query    string
	operator string
	auth     string
	body     string
}

func newTestServer(t *testing.T, status int, response any) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		*c = captured{
			method:   r.Method,
			path:     r.URL.EscapedPath(),
			query:    r.URL.RawQuery,
			operator: r.Header.Get(OperatorHeader),
			auth:     r.Header.Get("Authorization"),
			body:     string(raw),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if response != nil {
			_ = json.NewEncoder(w).Encode(response)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestClientLock(t *testing.T) {
	srv, c := newTestServer(t, http.StatusOK, Player{Name: "Steve", Locked: true, LockReason: "grief"})
	client := NewClient(srv.URL+"/", "alice", "s3cret")

	p, err := client.Lock(context.Background(), "Steve", "grief")

	require.NoError(t, err)
	assert.True(t, p.Locked)
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/api/v1/players/Steve/lock", c.path)
	assert.Equal(t, "alice", c.operator)
	assert.Equal(t, "Bearer s3cret", c.auth)
	assert.JSONEq(t, `{"reason":"grief"}`, c.body)
}

func TestClientListQuery(t *testing.T) {
	srv, c := newTestServer(t, http.StatusOK, PlayerList{Total: 7})
	client := NewClient(srv.URL, "", "")

	list, err := client.ListPlayers(context.Background(), 10, 20)

	require.NoError(t, err)
	assert.Equal(t, 7, list.Total)
	assert.Equal(t, http.MethodGet, c.method)
	assert.Equal(t, "limit=10&offset=20", c.query)
	assert.Empty(t, c.operator)
	assert.Empty(t, c.auth)
}

func TestClientUnauthorized(t *testing.T) {
	srv, c := newTestServer(t, http.StatusUnauthorized, Error{Error: "unauthorized"})
	client := NewClient(srv.URL, "", "wrong")

	_, err := client.UnlockAll(context.Background())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Equal(t, "Bearer wrong", c.auth)
}

func TestClientEscapesName(t *testing.T) {
	srv, c := newTestServer(t, http.StatusOK, Player{})
	client := NewClient(srv.URL, "", "")

	_, err := client.GetPlayer(context.Background(), "a b")

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/players/a%20b", c.path)
}

func TestClientStatusError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusNotFound, Error{Error: "player not found"})
	client := NewClient(srv.URL, "", "")

	_, err := client.GetPlayer(context.Background(), "ghost")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, "player not found", statusErr.Message)
}

func TestClientReloadNoContent(t *testing.T) {
	srv, c := newTestServer(t, http.StatusNoContent, nil)
	client := NewClient(srv.URL, "", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Reload(ctx))
	assert.Equal(t, "/api/v1/reload", c.path)
	assert.Empty(t, c.body)
}

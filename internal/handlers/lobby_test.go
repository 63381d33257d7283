// internal/handlers/lobby_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/cache/cachetest"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/orchestrator"
	"github.com/jason-s-yu/lobbyd/internal/player"
	"github.com/jason-s-yu/lobbyd/internal/ratelimit"
	"github.com/jason-s-yu/lobbyd/internal/sequence"
	"github.com/jason-s-yu/lobbyd/internal/token"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverToken = "game-server-secret"

func newTestRouter(t *testing.T, ceiling int) http.Handler {
	t.Helper()
	return newTestServer(t, ceiling).Routes()
}

// newTestServer wires the real stack against an in-process Redis.
func newTestServer(t *testing.T, ceiling int) *APIServer {
	t.Helper()
	store, _ := cachetest.New(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	tokens, err := token.NewService("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	seq := sequence.NewAllocator(store)
	o := orchestrator.New(
		ratelimit.NewLimiter(store, ceiling, time.Minute, log),
		tokens,
		lobby.NewLobbyStore(store, seq),
		player.NewDirectory(store, seq),
		orchestrator.Settings{Server: models.ServerConnection{Host: "10.0.0.5", Port: 9000}},
		log,
	)
	return NewAPIServer(o, serverToken, log)
}

func do(t *testing.T, h http.Handler, method, path, body string, server bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:54321"
	if server {
		req.Header.Set("Authorization", "Bearer "+serverToken)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

// TestLobbyCreate checks that /lobby/new-lobby clamps settings and returns a usable token.
func TestLobbyCreate(t *testing.T) {
	h := newTestRouter(t, 5)

	w := do(t, h, http.MethodPost, "/lobby/new-lobby", `{"creatorName":"Alice","maxPlayers":2,"playTime":1000}`, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[orchestrator.CreateResult](t, w)
	assert.NotEmpty(t, created.Token)
	assert.EqualValues(t, 1, created.LobbyID)
	assert.Equal(t, models.ServerConnection{Host: "10.0.0.5", Port: 9000}, created.Server)

	w = do(t, h, http.MethodGet, fmt.Sprintf("/lobby/%d", created.LobbyID), "", true)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[map[string]any](t, w)
	assert.EqualValues(t, 3, view["maxPlayers"])
	assert.EqualValues(t, 300, view["playTime"])
	assert.EqualValues(t, 1, view["playerCount"])
	assert.Equal(t, "PENDING", view["status"])
}

func TestLobbyCreateBadBody(t *testing.T) {
	h := newTestRouter(t, 5)
	w := do(t, h, http.MethodPost, "/lobby/new-lobby", `{"creatorName":`, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLobbyCreateRateLimited(t *testing.T) {
	h := newTestRouter(t, 1)
	body := `{"creatorName":"Alice","maxPlayers":4,"playTime":30}`

	w := do(t, h, http.MethodPost, "/lobby/new-lobby", body, false)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/lobby/new-lobby", body, false)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func createFrom(t *testing.T, h http.Handler, remote, forwardedFor string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/lobby/new-lobby",
		bytes.NewBufferString(`{"creatorName":"Alice","maxPlayers":4,"playTime":30}`))
	req.RemoteAddr = remote
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	req.Header.Set("X-Real-IP", forwardedFor)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestForwardedForFromUntrustedPeerIsIgnored(t *testing.T) {
	h := newTestRouter(t, 1)

	admitted := 0
	for i := 0; i < 10; i++ {
		if createFrom(t, h, "192.0.2.10:54321", fmt.Sprintf("10.9.9.%d", i)) == http.StatusOK {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)
}

func TestForwardedForFromTrustedProxy(t *testing.T) {
	s := newTestServer(t, 1)
	s.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	h := s.Routes()

	// each client behind the proxy has its own budget
	assert.Equal(t, http.StatusOK, createFrom(t, h, "10.0.0.2:4000", "203.0.113.1"))
	assert.Equal(t, http.StatusOK, createFrom(t, h, "10.0.0.2:4000", "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, createFrom(t, h, "10.0.0.2:4000", "203.0.113.1"))

	// a client cannot hide behind a spoofed hop prepended to the chain
	assert.Equal(t, http.StatusTooManyRequests, createFrom(t, h, "10.0.0.2:4000", "198.51.100.99, 203.0.113.1"))

	// a peer outside the trusted range is charged as itself
	assert.Equal(t, http.StatusOK, createFrom(t, h, "192.0.2.50:4000", "203.0.113.3"))
	assert.Equal(t, http.StatusTooManyRequests, createFrom(t, h, "192.0.2.50:4000", "203.0.113.4"))
}

func TestLobbyFullFlow(t *testing.T) {
	h := newTestRouter(t, 5)

	w := do(t, h, http.MethodPost, "/lobby/new-lobby", `{"creatorName":"Alice","maxPlayers":3,"playTime":30}`, false)
	require.Equal(t, http.StatusOK, w.Code)
	created := decode[orchestrator.CreateResult](t, w)

	// pending lobbies cannot be joined
	joinBody := fmt.Sprintf(`{"lobbyId":%d,"playerName":"Bob"}`, created.LobbyID)
	w = do(t, h, http.MethodPost, "/lobby/join-lobby", joinBody, false)
	assert.Equal(t, http.StatusConflict, w.Code)

	// a stranger cannot confirm
	w = do(t, h, http.MethodPost, "/game-server/confirm-lobby", fmt.Sprintf(`{"lobbyId":%d,"playerId":%d}`, created.LobbyID, created.PlayerID+1), true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/game-server/confirm-lobby", fmt.Sprintf(`{"lobbyId":%d,"playerId":%d}`, created.LobbyID, created.PlayerID), true)
	require.Equal(t, http.StatusOK, w.Code)
	cfg := decode[orchestrator.LobbyConfig](t, w)
	assert.Equal(t, orchestrator.LobbyConfig{LobbyID: created.LobbyID, CreatorID: created.PlayerID, PlayTime: 30, MaxPlayers: 3}, cfg)

	var joined orchestrator.JoinResult
	for _, name := range []string{"Bob", "Carol"} {
		w = do(t, h, http.MethodPost, "/lobby/join-lobby", fmt.Sprintf(`{"lobbyId":%d,"playerName":%q}`, created.LobbyID, name), false)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		joined = decode[orchestrator.JoinResult](t, w)
	}

	w = do(t, h, http.MethodPost, "/lobby/join-lobby", fmt.Sprintf(`{"lobbyId":%d,"playerName":"Dave"}`, created.LobbyID), false)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/game-server/auth", fmt.Sprintf(`{"jwt":%q}`, joined.Token), true)
	require.Equal(t, http.StatusOK, w.Code)
	auth := decode[map[string]any](t, w)
	assert.Equal(t, true, auth["valid"])
	assert.EqualValues(t, joined.PlayerID, auth["playerId"])
	assert.EqualValues(t, created.LobbyID, auth["lobbyId"])
	assert.Equal(t, "Carol", auth["playerName"])

	w = do(t, h, http.MethodPost, fmt.Sprintf("/game-server/close-lobby?lobbyId=%d", created.LobbyID), "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, fmt.Sprintf("/lobby/%d", created.LobbyID), "", true)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[map[string]any](t, w)
	assert.Equal(t, "CLOSED", view["status"])
	assert.Len(t, view["players"], 3)

	w = do(t, h, http.MethodDelete, fmt.Sprintf("/lobby/%d", created.LobbyID), "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodGet, fmt.Sprintf("/lobby/%d", created.LobbyID), "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinUnknownLobby(t *testing.T) {
	h := newTestRouter(t, 5)
	w := do(t, h, http.MethodPost, "/lobby/join-lobby", `{"lobbyId":404,"playerName":"Bob"}`, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/lobby/join-lobby", `{"playerName":"Bob"}`, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthInvalidToken(t *testing.T) {
	h := newTestRouter(t, 5)
	w := do(t, h, http.MethodPost, "/game-server/auth", `{"jwt":"garbage"}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())
}

func TestServerRoutesRequireToken(t *testing.T) {
	h := newTestRouter(t, 5)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/game-server/auth"},
		{http.MethodPost, "/game-server/confirm-lobby"},
		{http.MethodPost, "/game-server/close-lobby?lobbyId=1"},
		{http.MethodGet, "/lobby/1"},
		{http.MethodDelete, "/lobby/1"},
	} {
		w := do(t, h, tc.method, tc.path, `{}`, false)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", tc.method, tc.path)

		req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(`{}`))
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestCloseUnknownLobbyIsOK(t *testing.T) {
	h := newTestRouter(t, 5)
	w := do(t, h, http.MethodPost, "/game-server/close-lobby?lobbyId=77", "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/game-server/close-lobby?lobbyId=abc", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t, 5)
	w := do(t, h, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}

// brokenLobbies fails every call the way an unreachable store would.
type brokenLobbies struct{ LobbyService }

var errStoreDown = errors.New("dial tcp: connection refused")

func (brokenLobbies) CreateLobby(context.Context, orchestrator.CreateRequest) (*orchestrator.CreateResult, error) {
	return nil, errStoreDown
}

func TestStoreFailureIsInternalError(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := NewAPIServer(brokenLobbies{}, serverToken, log).Routes()

	w := do(t, h, http.MethodPost, "/lobby/new-lobby", `{"creatorName":"Alice"}`, false)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer abc"))
	assert.Equal(t, "", extractBearerToken("Basic abc"))
	assert.Equal(t, "", extractBearerToken(""))
}

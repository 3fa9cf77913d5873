package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wc-reservation-backend/config"
	"wc-reservation-backend/internal/client"
	"wc-reservation-backend/internal/engine"
	"wc-reservation-backend/internal/gateway"
	"wc-reservation-backend/internal/model"
	"wc-reservation-backend/internal/server"
	"wc-reservation-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(dir, "wc.db")},
		Avatar:   config.AvatarConfig{Backend: "local", Dir: filepath.Join(dir, "uploads"), URLPath: "/uploads", MaxBytes: 1 << 20},
		Server:   config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000},
	}
}

// startServer runs the full backend against dir and returns its base URL.
func startServer(t *testing.T, dir string, mock *clock.Mock) (*server.Server, string) {
	t.Helper()
	srv, err := server.New(context.Background(), testConfig(t, dir), zerolog.Nop(),
		server.WithEngineOptions(engine.WithClock(mock)))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, ts.URL
}

func createUser(t *testing.T, baseURL, handle, glyph string) model.User {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"handle": handle, "glyph": glyph})
	resp, err := http.Post(baseURL+"/api/users", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var u model.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
	return u
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func dialWS(t *testing.T, baseURL string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, "ws"+strings.TrimPrefix(baseURL, "http")+"/ws")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	// The status reply proves the hub has registered the connection.
	require.NoError(t, c.GetStatus())
	waitFor(t, c, gateway.EventStatus)
	return c
}

func waitFor(t *testing.T, c *client.Client, names ...string) client.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := c.WaitFor(ctx, names...)
	require.NoError(t, err)
	return ev
}

// TestReservationLifecycle walks one visit end to end: a user registers over
// REST, reserves and releases over the websocket, and the visit shows up in
// history and stats.
func TestReservationLifecycle(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	_, baseURL := startServer(t, t.TempDir(), mock)

	alice := createUser(t, baseURL, "alice", "🦄")
	bob := createUser(t, baseURL, "bob", "🐙")

	holder := dialWS(t, baseURL)
	watcher := dialWS(t, baseURL)

	require.NoError(t, holder.Reserve(alice.ID))
	ev := waitFor(t, watcher, gateway.EventStatus)
	require.NotNil(t, ev.Status)
	assert.True(t, ev.Status.Status.Occupied)
	assert.Equal(t, "alice", *ev.Status.Status.Handle)
	ev = waitFor(t, holder, gateway.EventReserved)
	assert.True(t, ev.Ack.Success)

	// A second reservation is refused and the holder is unchanged.
	require.NoError(t, watcher.Reserve(bob.ID))
	ev = waitFor(t, watcher, gateway.EventError)
	assert.Equal(t, gateway.ErrMsgAlreadyOccupied, ev.Error)

	var status gateway.StatusPayload
	getJSON(t, baseURL+"/api/wc/status", &status)
	require.NotNil(t, status.Status.HolderID)
	assert.Equal(t, alice.ID, *status.Status.HolderID)

	mock.Add(4 * time.Minute)
	require.NoError(t, holder.Release(alice.ID))
	ev = waitFor(t, watcher, gateway.EventReleased)
	assert.Equal(t, &gateway.ReleasedPayload{UserID: alice.ID, Handle: "alice", Glyph: "🦄", Duration: 4}, ev.Released)
	ev = waitFor(t, holder, gateway.EventReleasedSuccess)
	assert.True(t, ev.Ack.Success)

	var history []store.HistoryEntry
	getJSON(t, baseURL+"/api/history", &history)
	require.Len(t, history, 1)
	assert.Equal(t, alice.ID, history[0].UserID)
	assert.Equal(t, 4, history[0].DurationMinutes)
	assert.False(t, history[0].AutoReleased)

	var stats store.UserStats
	getJSON(t, baseURL+"/api/users/alice/stats", &stats)
	assert.Equal(t, int64(1), stats.VisitCount)
	assert.Equal(t, int64(4), stats.TotalDuration)
}

func TestReservationAutoRelease(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	_, baseURL := startServer(t, t.TempDir(), mock)

	alice := createUser(t, baseURL, "alice", "🦄")
	c := dialWS(t, baseURL)

	require.NoError(t, c.Reserve(alice.ID))
	waitFor(t, c, gateway.EventReserved)

	mock.Add(engine.DefaultTimeout)
	ev := waitFor(t, c, gateway.EventAutoReleased)
	assert.Equal(t, &gateway.AutoReleasedPayload{UserID: alice.ID, Duration: 10}, ev.AutoReleased)

	var history []store.HistoryEntry
	getJSON(t, baseURL+"/api/history", &history)
	require.Len(t, history, 1)
	assert.True(t, history[0].AutoReleased)
}

// TestReservationSurvivesRestart checks that an open reservation is restored
// from the database, and released at startup once it has outlived the
// timeout.
func TestReservationSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock := clock.NewMock()
	mock.Set(start)
	first, baseURL := startServer(t, dir, mock)
	alice := createUser(t, baseURL, "alice", "🦄")
	c := dialWS(t, baseURL)
	require.NoError(t, c.Reserve(alice.ID))
	waitFor(t, c, gateway.EventReserved)
	require.NoError(t, first.Shutdown(context.Background()))

	// Within the timeout the holder is kept.
	mock = clock.NewMock()
	mock.Set(start.Add(3 * time.Minute))
	second, baseURL := startServer(t, dir, mock)
	var status gateway.StatusPayload
	getJSON(t, baseURL+"/api/wc/status", &status)
	assert.True(t, status.Status.Occupied)
	require.NoError(t, second.Shutdown(context.Background()))

	// Past it the reservation is closed as auto-released.
	mock = clock.NewMock()
	mock.Set(start.Add(engine.DefaultTimeout + time.Minute))
	_, baseURL = startServer(t, dir, mock)
	getJSON(t, baseURL+"/api/wc/status", &status)
	assert.False(t, status.Status.Occupied)

	var history []store.HistoryEntry
	getJSON(t, baseURL+"/api/history", &history)
	require.Len(t, history, 1)
	assert.True(t, history[0].AutoReleased)
	assert.Equal(t, alice.ID, history[0].UserID)
}

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gitlab.com/ranfdev/notifyd/internal/cache"
	"gitlab.com/ranfdev/notifyd/internal/db"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
	"gitlab.com/ranfdev/notifyd/internal/notifications"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, pingers map[string]Pinger) *testServer {
	t.Helper()
	return newTestServerWithConfig(t, &models.EnvConfig{}, pingers)
}

func newTestServerWithConfig(t *testing.T, config *models.EnvConfig, pingers map[string]Pinger) *testServer {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	c := cache.New(rdb, domain.TTLs{Message: time.Hour, AllSet: time.Hour, UnreadSet: time.Hour})

	parser, err := notifications.LoadTemplateParser(context.Background(), store, false)
	require.Nil(t, err)
	log := zerolog.Nop()
	inbox := notifications.NewSharedInbox(
		notifications.NewManager(store, c, parser, log),
		notifications.NewSender(store, c, log),
	)
	if pingers == nil {
		pingers = map[string]Pinger{"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() }}
	}
	return &testServer{t: t, handler: NewRouter(config, inbox, log, pingers)}
}

func (s *testServer) do(method, path string, user int64, perms models.Perms, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.Nil(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != 0 {
		req.Header.Set(UserIDHeader, fmt.Sprint(user))
		req.Header.Set(UserPermsHeader, perms.String())
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.Nil(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

const service = 2

func (s *testServer) send(to int64) int64 {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/notifications", service, models.PermsService, SendRequest{
		ToID:         to,
		CategoryID:   1,
		URL:          "https://example.com/u/pippo",
		ExtraContent: map[string]any{"user.name": "Pippo"},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[struct{ ID int64 }](s.t, rec).ID
}

func TestMissingIdentity(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/notifications", 0, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotificationLifecycle(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, nil)
	id := s.send(7)
	s.send(7)

	rec := s.do(http.MethodGet, fmt.Sprintf("/notifications/%d", id), 7, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	view := decode[models.NotifView](t, rec)
	require.Equal(id, view.ID)
	require.Equal("Pippo started following you", view.Content)
	require.Equal(int64(service), view.FromID)
	require.False(view.Read)

	rec = s.do(http.MethodGet, "/notifications/unread/count", 7, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(int64(2), decode[struct{ Count int64 }](t, rec).Count)

	rec = s.do(http.MethodPut, fmt.Sprintf("/notifications/%d/read", id), 7, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(int64(1), decode[affected](t, rec).Affected)

	rec = s.do(http.MethodGet, "/notifications?limit=1&page=2&order=desc&summary=true", 7, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	list := decode[struct{ Notifications []models.NotifView }](t, rec).Notifications
	require.Len(list, 1)
	require.Equal(id, list[0].ID)
	require.True(list[0].Read)
	require.Empty(list[0].Content)

	rec = s.do(http.MethodPut, "/notifications/read?to=7", 7, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(int64(1), decode[affected](t, rec).Affected)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/notifications/%d", id), 7, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	require.True(decode[deleted](t, rec).Deleted)

	rec = s.do(http.MethodGet, fmt.Sprintf("/notifications/%d", id), 7, models.PermsUser, nil)
	require.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/notifications", 7, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/notifications", 7, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Empty(decode[struct{ Notifications []models.NotifView }](t, rec).Notifications)
}

func TestForbidden(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, nil)
	id := s.send(7)

	// Another user's notification answers like a missing one
	rec := s.do(http.MethodGet, fmt.Sprintf("/notifications/%d", id), 8, models.PermsUser, nil)
	require.Equal(http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodDelete, fmt.Sprintf("/notifications/%d", id), 8, models.PermsUser, nil)
	require.Equal(http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, "/notifications/999", 8, models.PermsUser, nil)
	require.Equal(http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, "/notifications?to=7", 8, models.PermsUser, nil)
	require.Equal(http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPost, "/notifications", 7, models.PermsUser, SendRequest{ToID: 8, CategoryID: 1})
	require.Equal(http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPost, "/notifications/batch", service, models.PermsService, SendRequest{ToIDs: []int64{7, 8}, CategoryID: 1})
	require.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/notifications?to=7", 1, models.PermsAdmin, nil)
	require.Equal(http.StatusOK, rec.Code)
}

func TestBadRequests(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, nil)

	rec := s.do(http.MethodGet, "/notifications?order=sideways", 7, models.PermsUser, nil)
	require.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodGet, "/notifications?limit=-1", 7, models.PermsUser, nil)
	require.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodGet, "/notifications?to=abc", 7, models.PermsUser, nil)
	require.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/notifications", service, models.PermsService, map[string]any{"unknown": 1})
	require.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/notifications", service, models.PermsService, SendRequest{ToID: 7})
	require.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/notifications/batch", 1, models.PermsAdmin, SendRequest{CategoryID: 1})
	require.Equal(http.StatusBadRequest, rec.Code)
}

func TestBatch(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, nil)

	rec := s.do(http.MethodPost, "/notifications/batch", 1, models.PermsAdmin, SendRequest{
		ToIDs:        []int64{7, 8},
		Category:     models.KindBroadcast,
		CategoryID:   1,
		ExtraContent: map[string]any{"user": map[string]any{"date": "Monday"}},
		StackID:      5,
	})
	require.Equal(http.StatusCreated, rec.Code, rec.Body.String())
	ids := decode[struct{ IDs []int64 }](t, rec).IDs
	require.Len(ids, 2)

	rec = s.do(http.MethodGet, fmt.Sprintf("/notifications/%d", ids[1]), 8, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	view := decode[models.NotifView](t, rec)
	require.Equal("Scheduled maintenance", view.Title)
	require.Equal("The service will be unavailable on Monday", view.Content)
}

func TestHealth(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/health", 0, nil, nil)
	require.Equal(http.StatusOK, rec.Code)

	s = newTestServer(t, map[string]Pinger{
		"store": func(ctx context.Context) error { return errors.New("down") },
	})
	rec = s.do(http.MethodGet, "/health", 0, nil, nil)
	require.Equal(http.StatusServiceUnavailable, rec.Code)
	require.Equal("down", decode[map[string]string](t, rec)["store"])
}

func TestRequestTimeout(t *testing.T) {
	require := require.New(t)
	s := newTestServerWithConfig(t, &models.EnvConfig{RequestTimeout: 20 * time.Millisecond}, map[string]Pinger{
		"store": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	rec := s.do(http.MethodGet, "/health", 0, nil, nil)
	require.Equal(http.StatusServiceUnavailable, rec.Code)
}

func TestHugePage(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, nil)
	s.send(7)
	s.send(7)

	rec := s.do(http.MethodGet, "/notifications?limit=4&page=4611686018427387905", 7, models.PermsUser, nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Empty(decode[struct{ Notifications []models.NotifView }](t, rec).Notifications)
}

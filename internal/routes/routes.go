package routes

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"gitlab.com/ranfdev/notifyd/internal/models"
	"gitlab.com/ranfdev/notifyd/internal/notifications"
	"gitlab.com/ranfdev/notifyd/internal/render"
)

type ContextKey int

const (
	InboxHCtxKey ContextKey = iota
)

const (
	UserIDHeader    = "X-User-ID"
	UserPermsHeader = "X-User-Perms"
)

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

type Routes struct {
	envConfig *models.EnvConfig
	inbox     *notifications.SharedInbox
	log       zerolog.Logger
	pingers   map[string]Pinger
}

func NewRouter(
	config *models.EnvConfig,
	inbox *notifications.SharedInbox,
	log zerolog.Logger,
	pingers map[string]Pinger,
) chi.Router {
	r := chi.NewRouter()
	routes := &Routes{
		envConfig: config,
		inbox:     inbox,
		log:       log,
		pingers:   pingers,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Send()
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(routes.requestTimeout()))

	r.Get("/health", routes.AppHandler(routes.GetHealth))
	r.With(routes.InboxHCtx).Route("/notifications", routes.NotificationsRouter)
	return r
}

const defaultRequestTimeout = 30 * time.Second

func (routes *Routes) requestTimeout() time.Duration {
	if routes.envConfig == nil || routes.envConfig.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return routes.envConfig.RequestTimeout
}

func (routes *Routes) AppHandler(handler func(w http.ResponseWriter, r *http.Request) AppError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := handler(w, r)
		if err == nil {
			return
		}
		routes.respondErr(w, r, err)
	}
}

func (routes *Routes) respondErr(w http.ResponseWriter, r *http.Request, err AppError) {
	event := hlog.FromRequest(r).Warn()
	if err.Status() >= http.StatusInternalServerError {
		event = hlog.FromRequest(r).Error()
	}
	event.
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", err.Status()).
		Err(err).
		Msg(err.Message())
	render.Error(w, err.Status(), err.Message())
}

// InboxHCtx builds the caller's inbox handle from the identity headers set
// by the gateway.
func (routes *Routes) InboxHCtx(next http.Handler) http.Handler {
	return routes.AppHandler(func(w http.ResponseWriter, r *http.Request) AppError {
		userID, err := strconv.ParseInt(r.Header.Get(UserIDHeader), 10, 64)
		if err != nil || userID <= 0 {
			return &ErrUnauthorized{Err: err}
		}
		user := models.User{
			ID:    userID,
			Perms: models.ParsePerms(r.Header.Get(UserPermsHeader)),
		}
		inboxH := routes.inbox.GetInboxH(user)
		ctx := context.WithValue(r.Context(), InboxHCtxKey, inboxH)
		next.ServeHTTP(w, r.WithContext(ctx))
		return nil
	})
}

func GetInboxH(r *http.Request) notifications.InboxH {
	return r.Context().Value(InboxHCtxKey).(notifications.InboxH)
}

func (routes *Routes) GetHealth(w http.ResponseWriter, r *http.Request) AppError {
	status := map[string]string{}
	healthy := true
	for name, ping := range routes.pingers {
		if err := ping(r.Context()); err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("service", name).Msg("health check failed")
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	render.JSON(w, code, status)
	return nil
}

package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
	"gitlab.com/ranfdev/notifyd/internal/notifications"
	"gitlab.com/ranfdev/notifyd/internal/render"
)

const maxBodySize = 1 << 20

func (routes *Routes) NotificationsRouter(r chi.Router) {
	r.Get("/", routes.AppHandler(routes.GetNotifications))
	r.Delete("/", routes.AppHandler(routes.DeleteNotifications))
	r.Post("/", routes.AppHandler(routes.PostNotification))
	r.Post("/batch", routes.AppHandler(routes.PostNotificationBatch))
	r.Get("/unread/count", routes.AppHandler(routes.GetUnreadCount))
	r.Put("/read", routes.AppHandler(routes.ReadNotifications))

	r.Get("/{notifID:[0-9]+}", routes.AppHandler(routes.GetNotification))
	r.Delete("/{notifID:[0-9]+}", routes.AppHandler(routes.DeleteNotification))
	r.Put("/{notifID:[0-9]+}/read", routes.AppHandler(routes.ReadNotification))
}

func notifID(r *http.Request) (int64, AppError) {
	id, err := strconv.ParseInt(chi.URLParam(r, "notifID"), 10, 64)
	if err != nil {
		return 0, &ErrBadRequest{Msg: "Invalid notification id", Err: err}
	}
	return id, nil
}

// recipient reads ?to=, defaulting to the caller.
func recipient(r *http.Request) (int64, AppError) {
	to := r.URL.Query().Get("to")
	if to == "" {
		return GetInboxH(r).User().ID, nil
	}
	id, err := strconv.ParseInt(to, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ErrBadRequest{Msg: "Invalid recipient", Err: err}
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, AppError) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, &ErrBadRequest{Msg: "Invalid " + key, Err: err}
	}
	return v, nil
}

func summary(v models.NotifView) models.NotifView {
	v.Content = ""
	return v
}

func (routes *Routes) GetNotifications(w http.ResponseWriter, r *http.Request) AppError {
	toID, appErr := recipient(r)
	if appErr != nil {
		return appErr
	}
	limit, appErr := queryInt(r, "limit", 20)
	if appErr != nil {
		return appErr
	}
	page, appErr := queryInt(r, "page", 1)
	if appErr != nil {
		return appErr
	}
	order := domain.Order(r.URL.Query().Get("order"))
	switch order {
	case "":
		order = domain.OrderDesc
	case domain.OrderAsc, domain.OrderDesc:
	default:
		return &ErrBadRequest{Msg: "Invalid order"}
	}
	var filter notifications.Filter
	if r.URL.Query().Get("summary") == "true" {
		filter = summary
	}

	views, err := GetInboxH(r).GetAll(r.Context(), toID, notifications.Page{
		Limit: limit,
		Page:  page,
		Order: order,
	}, filter)
	if err != nil {
		return toAppError(err)
	}
	render.JSON(w, http.StatusOK, struct {
		Notifications []models.NotifView `json:"notifications"`
	}{views})
	return nil
}

func (routes *Routes) GetUnreadCount(w http.ResponseWriter, r *http.Request) AppError {
	toID, appErr := recipient(r)
	if appErr != nil {
		return appErr
	}
	count, err := GetInboxH(r).CountNotRead(r.Context(), toID)
	if err != nil {
		return toAppError(err)
	}
	render.JSON(w, http.StatusOK, struct {
		Count int64 `json:"count"`
	}{count})
	return nil
}

func (routes *Routes) GetNotification(w http.ResponseWriter, r *http.Request) AppError {
	id, appErr := notifID(r)
	if appErr != nil {
		return appErr
	}
	view, err := GetInboxH(r).Find(r.Context(), id)
	if err != nil {
		return toAppError(err)
	}
	render.JSON(w, http.StatusOK, view)
	return nil
}

type affected struct {
	Affected int64 `json:"affected"`
}

func (routes *Routes) ReadNotification(w http.ResponseWriter, r *http.Request) AppError {
	id, appErr := notifID(r)
	if appErr != nil {
		return appErr
	}
	n, err := GetInboxH(r).ReadOne(r.Context(), id)
	if err != nil {
		return toAppError(err)
	}
	render.JSON(w, http.StatusOK, affected{n})
	return nil
}

func (routes *Routes) ReadNotifications(w http.ResponseWriter, r *http.Request) AppError {
	toID, appErr := recipient(r)
	if appErr != nil {
		return appErr
	}
	n, err := GetInboxH(r).ReadAll(r.Context(), toID)
	if err != nil {
		return toAppError(err)
	}
	render.JSON(w, http.StatusOK, affected{n})
	return nil
}

type deleted struct {
	Deleted bool `json:"deleted"`
}

func (routes *Routes) DeleteNotification(w http.ResponseWriter, r *http.Request) AppError {
	id, appErr := notifID(r)
	if appErr != nil {
		return appErr
	}
	ok, err := GetInboxH(r).Delete(r.Context(), id)
	if err != nil {
		return toAppError(err)
	}
	render.JSON(w, http.StatusOK, deleted{ok})
	return nil
}

func (routes *Routes) DeleteNotifications(w http.ResponseWriter, r *http.Request) AppError {
	toID, appErr := recipient(r)
	if appErr != nil {
		return appErr
	}
	ok, err := GetInboxH(r).DeleteAll(r.Context(), toID)
	if err != nil {
		return toAppError(err)
	}
	render.JSON(w, http.StatusOK, deleted{ok})
	return nil
}

// SendRequest is the body of POST /notifications. Batches use ToIDs and
// leave ToID empty.
type SendRequest struct {
	FromID       int64          `json:"from_id"`
	ToID         int64          `json:"to_id"`
	ToIDs        []int64        `json:"to_ids"`
	Category     models.Kind    `json:"category"`
	CategoryID   int64          `json:"category_id"`
	URL          string         `json:"url"`
	ExtraTitle   map[string]any `json:"extra_title"`
	ExtraContent map[string]any `json:"extra_content"`
	StackID      int64          `json:"stack_id"`
}

func (req SendRequest) builder(caller int64) *notifications.Builder {
	b := notifications.NewBuilder().
		URL(req.URL).
		ExtraTitle(req.ExtraTitle).
		ExtraContent(req.ExtraContent)
	from := req.FromID
	if from == 0 {
		from = caller
	}
	b.From(from)
	if req.Category == models.KindBroadcast {
		b.Broadcast(req.CategoryID)
	} else {
		b.Category(req.CategoryID)
	}
	if req.StackID > 0 {
		b.Stack(req.StackID)
	}
	return b
}

func decodeSendRequest(w http.ResponseWriter, r *http.Request) (SendRequest, AppError) {
	var req SendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, &ErrBadRequest{Msg: "Invalid JSON body", Err: err}
	}
	return req, nil
}

func (routes *Routes) PostNotification(w http.ResponseWriter, r *http.Request) AppError {
	req, appErr := decodeSendRequest(w, r)
	if appErr != nil {
		return appErr
	}
	inboxH := GetInboxH(r)
	n, err := req.builder(inboxH.User().ID).To(req.ToID).Build()
	if err != nil {
		return toAppError(err)
	}
	id, err := inboxH.SendOne(r.Context(), n)
	if err != nil {
		return toAppError(err)
	}
	render.JSON(w, http.StatusCreated, struct {
		ID int64 `json:"id"`
	}{id})
	return nil
}

func (routes *Routes) PostNotificationBatch(w http.ResponseWriter, r *http.Request) AppError {
	req, appErr := decodeSendRequest(w, r)
	if appErr != nil {
		return appErr
	}
	if len(req.ToIDs) == 0 {
		return &ErrBadRequest{Msg: "to_ids is required", Err: errors.New("empty batch")}
	}
	inboxH := GetInboxH(r)
	ns, err := req.builder(inboxH.User().ID).BuildMultiple(req.ToIDs)
	if err != nil {
		return toAppError(err)
	}
	ids, err := inboxH.SendMultiple(r.Context(), ns)
	if err != nil {
		return toAppError(err)
	}
	render.JSON(w, http.StatusCreated, struct {
		IDs []int64 `json:"ids"`
	}{ids})
	return nil
}

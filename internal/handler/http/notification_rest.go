package httphandler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/middleware"
	"collab-realtime/internal/usecase"
	"collab-realtime/pkg/response"
	"collab-realtime/pkg/xerrors"
)

type NotificationHandler struct {
	uc *usecase.NotificationUsecase
}

func NewNotificationHandler(uc *usecase.NotificationUsecase) *NotificationHandler {
	return &NotificationHandler{uc: uc}
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.uc.ListForUser(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[REST] list notifications for %s: %v", userID, err)
		response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
		return
	}
	response.JSON(w, http.StatusOK, items)
}

// CreateNotification is the ingress for domain actions and moderators;
// feed subscribers receive the Insert event.
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var n domain.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	created, err := h.uc.CreateNotification(r.Context(), &n)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrInvalidInput):
			response.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, xerrors.ErrInvalidRequest):
			response.Error(w, http.StatusConflict, "notification already exists")
		default:
			log.Printf("[REST] create notification: %v", err)
			response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
		}
		return
	}
	response.JSON(w, http.StatusCreated, created)
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := middleware.UserID(r.Context())

	if err := h.uc.MarkAsRead(r.Context(), id, userID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "notification not found")
			return
		}
		log.Printf("[REST] mark read %s for %s: %v", id, userID, err)
		response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
		return
	}
	response.NoContent(w)
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	if err := h.uc.MarkAllAsRead(r.Context(), userID); err != nil {
		log.Printf("[REST] mark all read for %s: %v", userID, err)
		response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
		return
	}
	response.NoContent(w)
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := middleware.UserID(r.Context())

	if err := h.uc.Delete(r.Context(), id, userID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "notification not found")
			return
		}
		log.Printf("[REST] delete %s for %s: %v", id, userID, err)
		response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
		return
	}
	response.NoContent(w)
}

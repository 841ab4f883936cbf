package httphandler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/middleware"
	"collab-realtime/internal/usecase"
	"collab-realtime/pkg/response"
	"collab-realtime/pkg/xerrors"
)

type PresenceHandler struct {
	uc *usecase.PresenceUsecase
}

func NewPresenceHandler(uc *usecase.PresenceUsecase) *PresenceHandler {
	return &PresenceHandler{uc: uc}
}

// ListSettings returns every user's visibility row so clients can compute
// who is visible.
func (h *PresenceHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	items, err := h.uc.ListSettings(r.Context())
	if err != nil {
		log.Printf("[REST] list presence settings: %v", err)
		response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
		return
	}
	response.JSON(w, http.StatusOK, items)
}

func (h *PresenceHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	settings, err := h.uc.GetSettings(r.Context(), userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "settings not found")
			return
		}
		log.Printf("[REST] get presence settings for %s: %v", userID, err)
		response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
		return
	}
	response.JSON(w, http.StatusOK, settings)
}

func (h *PresenceHandler) UpsertSettings(w http.ResponseWriter, r *http.Request) {
	var patch domain.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	userID := middleware.UserID(r.Context())

	settings, err := h.uc.UpsertSettings(r.Context(), userID, patch)
	if err != nil {
		if errors.Is(err, xerrors.ErrInvalidInput) {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[REST] upsert presence settings for %s: %v", userID, err)
		response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
		return
	}
	response.JSON(w, http.StatusOK, settings)
}

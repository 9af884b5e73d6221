package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"innkeep/internal/waitlist/service"
	apperrors "innkeep/pkg/errors"
	httputil "innkeep/pkg/http"
	"innkeep/pkg/logger"
)

type WaitlistHandler struct {
	service service.WaitlistService
	log     *logger.Logger
}

func NewWaitlistHandler(service service.WaitlistService, log *logger.Logger) *WaitlistHandler {
	return &WaitlistHandler{
		service: service,
		log:     log,
	}
}

type convertPayload struct {
	Rooms      int   `json:"rooms"`
	TotalPrice int64 `json:"total_price"`
}

func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req service.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Join", apperrors.InvalidInput("Invalid request body"))
		return
	}

	entry, err := h.service.Join(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Join", err)
		return
	}

	if err := httputil.WriteCreated(w, entry); err != nil {
		h.log.Error("failed to write created response", "handler", "Join", "error", err)
	}
}

func (h *WaitlistHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entry, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, entry); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "error", err)
	}
}

func (h *WaitlistHandler) GetByUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	userID := query.Get("user_id")
	if userID == "" {
		h.writeError(w, "GetByUser", apperrors.InvalidInput("user_id query parameter is required"))
		return
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			h.writeError(w, "GetByUser", apperrors.InvalidInput(fmt.Sprintf("invalid limit parameter: %s", limitStr)))
			return
		}
	}

	var offset int64
	if offsetStr := query.Get("offset"); offsetStr != "" {
		var err error
		offset, err = strconv.ParseInt(offsetStr, 10, 64)
		if err != nil {
			h.writeError(w, "GetByUser", apperrors.InvalidInput(fmt.Sprintf("invalid offset parameter: %s", offsetStr)))
			return
		}
	}

	entries, total, err := h.service.GetByUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, "GetByUser", err)
		return
	}

	if err := httputil.WritePaginated(w, entries, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetByUser", "error", err)
	}
}

func (h *WaitlistHandler) Position(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	position, err := h.service.Position(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Position", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]int64{"position": position}); err != nil {
		h.log.Error("failed to write success response", "handler", "Position", "error", err)
	}
}

func (h *WaitlistHandler) Convert(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var payload convertPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, "Convert", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.Convert(r.Context(), ps.ByName("id"), payload.Rooms, payload.TotalPrice)
	if err != nil {
		h.writeError(w, "Convert", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Convert", "error", err)
	}
}

func (h *WaitlistHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := r.Header.Get("X-User-ID")

	if err := h.service.Cancel(r.Context(), ps.ByName("id"), userID); err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *WaitlistHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "error", writeErr)
	}
}

func (h *WaitlistHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/waitlist", h.Join)
	router.GET("/api/v1/waitlist", h.GetByUser)
	router.GET("/api/v1/waitlist/id/:id", h.GetByID)
	router.GET("/api/v1/waitlist/id/:id/position", h.Position)
	router.POST("/api/v1/waitlist/id/:id/convert", h.Convert)
	router.DELETE("/api/v1/waitlist/id/:id", h.Cancel)
}

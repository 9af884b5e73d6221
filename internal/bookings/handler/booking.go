package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"innkeep/internal/bookings/repository"
	"innkeep/internal/bookings/service"
	apperrors "innkeep/pkg/errors"
	httputil "innkeep/pkg/http"
	"innkeep/pkg/logger"
)

type BookingHandler struct {
	service service.LifecycleService
	log     *logger.Logger
}

func NewBookingHandler(service service.LifecycleService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

type paymentWebhookPayload struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

type cancelResponse struct {
	Status       string `json:"status"`
	RefundAmount int64  `json:"refund_amount"`
	FeeAmount    int64  `json:"fee_amount"`
	FeePercent   int    `json:"fee_percent"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req service.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, decision, err := h.service.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, map[string]any{
		"booking":  booking,
		"warnings": decision.Warnings,
	}); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "error", err)
	}
}

// Validate runs the booking rules without reserving anything.
func (h *BookingHandler) Validate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req service.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Validate", apperrors.InvalidInput("Invalid request body"))
		return
	}

	decision, err := h.service.ValidateStay(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Validate", err)
		return
	}

	if err := httputil.WriteSuccess(w, decision); err != nil {
		h.log.Error("failed to write success response", "handler", "Validate", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "error", err)
	}
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			h.writeError(w, "GetAll", apperrors.InvalidInput(fmt.Sprintf("invalid limit parameter: %s", limitStr)))
			return
		}
	}

	var offset int64
	if offsetStr := query.Get("offset"); offsetStr != "" {
		var err error
		offset, err = strconv.ParseInt(offsetStr, 10, 64)
		if err != nil {
			h.writeError(w, "GetAll", apperrors.InvalidInput(fmt.Sprintf("invalid offset parameter: %s", offsetStr)))
			return
		}
	}

	filter := repository.BookingFilter{
		UserID: query.Get("user_id"),
		Status: query.Get("status"),
	}

	bookings, total, err := h.service.GetAll(r.Context(), filter, limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := h.service.Cancel(r.Context(), ps.ByName("id"), actorFrom(r))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	response := cancelResponse{Status: result.Booking.Status}
	if result.Refund != nil {
		response.RefundAmount = result.Refund.RefundAmount
		response.FeeAmount = result.Refund.FeeAmount
		response.FeePercent = result.Refund.FeePercent
	}

	if err := httputil.WriteSuccess(w, response); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "error", err)
	}
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.Complete(r.Context(), ps.ByName("id")); err != nil {
		h.writeError(w, "Complete", err)
		return
	}

	httputil.WriteNoContent(w)
}

// RefundQuote previews the refund for an active booking without cancelling
// it. The quote is advisory; only Cancel charges anything.
func (h *BookingHandler) RefundQuote(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	quote, err := h.service.RefundQuote(r.Context(), ps.ByName("id"), time.Now())
	if err != nil {
		h.writeError(w, "RefundQuote", err)
		return
	}

	if err := httputil.WriteSuccess(w, quote); err != nil {
		h.log.Error("failed to write success response", "handler", "RefundQuote", "error", err)
	}
}

// PaymentWebhook receives gateway callbacks. The signature middleware has
// already authenticated the payload by the time this runs.
func (h *BookingHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload paymentWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, "PaymentWebhook", apperrors.InvalidInput("Invalid webhook payload"))
		return
	}
	if payload.BookingID == "" {
		h.writeError(w, "PaymentWebhook", apperrors.InvalidInput("booking_id is required"))
		return
	}

	switch payload.Status {
	case "succeeded":
		booking, err := h.service.Confirm(r.Context(), payload.BookingID, "payment-gateway", payload.Amount)
		if err != nil {
			h.writeError(w, "PaymentWebhook", err)
			return
		}
		if err := httputil.WriteSuccess(w, booking); err != nil {
			h.log.Error("failed to write success response", "handler", "PaymentWebhook", "error", err)
		}
	case "failed":
		if err := h.service.FailPayment(r.Context(), payload.BookingID); err != nil {
			h.writeError(w, "PaymentWebhook", err)
			return
		}
		httputil.WriteNoContent(w)
	default:
		h.writeError(w, "PaymentWebhook", apperrors.InvalidInput(fmt.Sprintf("unknown payment status: %s", payload.Status)))
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "error", writeErr)
	}
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-User-ID"); actor != "" {
		return actor
	}
	return "anonymous"
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.POST("/api/v1/bookings/validate", h.Validate)
	router.GET("/api/v1/bookings", h.GetAll)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.POST("/api/v1/bookings/id/:id/complete", h.Complete)
	router.GET("/api/v1/bookings/id/:id/refund-quote", h.RefundQuote)
	router.POST("/api/v1/payments/webhook", h.PaymentWebhook)
}

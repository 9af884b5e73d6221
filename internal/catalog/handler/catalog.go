package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"innkeep/internal/catalog/service"
	apperrors "innkeep/pkg/errors"
	httputil "innkeep/pkg/http"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

type CatalogHandler struct {
	service service.CatalogService
	log     *logger.Logger
}

func NewCatalogHandler(service service.CatalogService, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		log:     log,
	}
}

func (h *CatalogHandler) UpsertRuleSet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var ruleSet model.RuleSet
	if err := json.NewDecoder(r.Body).Decode(&ruleSet); err != nil {
		h.writeError(w, "UpsertRuleSet", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.UpsertRuleSet(r.Context(), &ruleSet); err != nil {
		h.writeError(w, "UpsertRuleSet", err)
		return
	}

	if err := httputil.WriteSuccess(w, ruleSet); err != nil {
		h.log.Error("failed to write success response", "handler", "UpsertRuleSet", "error", err)
	}
}

func (h *CatalogHandler) ListRuleSets(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ruleSets, err := h.service.ListRuleSets(r.Context())
	if err != nil {
		h.writeError(w, "ListRuleSets", err)
		return
	}

	if err := httputil.WriteSuccess(w, ruleSets); err != nil {
		h.log.Error("failed to write success response", "handler", "ListRuleSets", "error", err)
	}
}

func (h *CatalogHandler) CreateDepositPolicy(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var policy model.DepositPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		h.writeError(w, "CreateDepositPolicy", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.CreateDepositPolicy(r.Context(), &policy); err != nil {
		h.writeError(w, "CreateDepositPolicy", err)
		return
	}

	if err := httputil.WriteCreated(w, policy); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateDepositPolicy", "error", err)
	}
}

func (h *CatalogHandler) ListDepositPolicies(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	activeOnly := r.URL.Query().Get("active") == "true"

	policies, err := h.service.ListDepositPolicies(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, "ListDepositPolicies", err)
		return
	}

	if err := httputil.WriteSuccess(w, policies); err != nil {
		h.log.Error("failed to write success response", "handler", "ListDepositPolicies", "error", err)
	}
}

func (h *CatalogHandler) DeactivateDepositPolicy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.DeactivateDepositPolicy(r.Context(), ps.ByName("id")); err != nil {
		h.writeError(w, "DeactivateDepositPolicy", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *CatalogHandler) CreateSpecialDay(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var day model.SpecialDay
	if err := json.NewDecoder(r.Body).Decode(&day); err != nil {
		h.writeError(w, "CreateSpecialDay", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.CreateSpecialDay(r.Context(), &day); err != nil {
		h.writeError(w, "CreateSpecialDay", err)
		return
	}

	if err := httputil.WriteCreated(w, day); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateSpecialDay", "error", err)
	}
}

func (h *CatalogHandler) ListSpecialDays(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	var from, to time.Time
	if fromStr := query.Get("from"); fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			h.writeError(w, "ListSpecialDays", apperrors.InvalidInput("invalid from date, want YYYY-MM-DD"))
			return
		}
		from = parsed
	}
	if toStr := query.Get("to"); toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			h.writeError(w, "ListSpecialDays", apperrors.InvalidInput("invalid to date, want YYYY-MM-DD"))
			return
		}
		to = parsed
	}

	days, err := h.service.ListSpecialDays(r.Context(), from, to)
	if err != nil {
		h.writeError(w, "ListSpecialDays", err)
		return
	}

	if err := httputil.WriteSuccess(w, days); err != nil {
		h.log.Error("failed to write success response", "handler", "ListSpecialDays", "error", err)
	}
}

func (h *CatalogHandler) DeactivateSpecialDay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.DeactivateSpecialDay(r.Context(), ps.ByName("id")); err != nil {
		h.writeError(w, "DeactivateSpecialDay", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *CatalogHandler) SetCapacity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req service.CapacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "SetCapacity", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.SetCapacity(r.Context(), &req); err != nil {
		h.writeError(w, "SetCapacity", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *CatalogHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "error", writeErr)
	}
}

func (h *CatalogHandler) RegisterRoutes(router *httprouter.Router) {
	router.PUT("/api/v1/catalog/rule-sets", h.UpsertRuleSet)
	router.GET("/api/v1/catalog/rule-sets", h.ListRuleSets)
	router.POST("/api/v1/catalog/deposit-policies", h.CreateDepositPolicy)
	router.GET("/api/v1/catalog/deposit-policies", h.ListDepositPolicies)
	router.DELETE("/api/v1/catalog/deposit-policies/:id", h.DeactivateDepositPolicy)
	router.POST("/api/v1/catalog/special-days", h.CreateSpecialDay)
	router.GET("/api/v1/catalog/special-days", h.ListSpecialDays)
	router.DELETE("/api/v1/catalog/special-days/:id", h.DeactivateSpecialDay)
	router.PUT("/api/v1/catalog/capacity", h.SetCapacity)
}

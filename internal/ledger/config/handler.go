package config

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/andino-erp/andino/internal/coa"
)

// Handler exposes the configuration store over JSON.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/config", h.Get)
	r.Put("/config", h.Upsert)
	r.Get("/config/validate", h.Validate)
}

type upsertRequest struct {
	Roles map[string]int64 `json:"roles" validate:"required,min=1"`
}

type accountResponse struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type configResponse struct {
	Roles    map[string]int64           `json:"roles"`
	Accounts map[string]accountResponse `json:"accounts,omitempty"`
}

func toConfigResponse(cfg Config) configResponse {
	resp := configResponse{Roles: map[string]int64{}, Accounts: map[string]accountResponse{}}
	for role, id := range cfg.Roles {
		resp.Roles[string(role)] = id
	}
	for role, account := range cfg.Accounts {
		resp.Accounts[string(role)] = accountResponse{ID: account.ID, Code: account.Code, Name: account.Name}
	}
	return resp
}

func tenantFrom(r *http.Request) (int64, bool) {
	tenantID, err := strconv.ParseInt(r.Header.Get("X-Tenant-ID"), 10, 64)
	return tenantID, err == nil && tenantID != 0
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant id required")
		return
	}
	cfg, err := h.service.Get(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("get config", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, toConfigResponse(cfg))
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant id required")
		return
	}
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch := Patch{}
	for role, accountID := range req.Roles {
		patch[Role(role)] = accountID
	}
	cfg, err := h.service.Upsert(r.Context(), tenantID, patch)
	if err != nil {
		if errors.Is(err, coa.ErrAccountNotFound) || errors.Is(err, ErrUnknownRole) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("upsert config", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, toConfigResponse(cfg))
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant id required")
		return
	}
	result, err := h.service.Validate(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("validate config", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	missing := make([]string, 0, len(result.MissingRoles))
	for _, role := range result.MissingRoles {
		missing = append(missing, string(role))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_valid":      result.IsValid,
		"missing_roles": missing,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler exposes the journal service as a JSON API. Tenant and user
// identity arrive in headers; session handling lives outside this
// subsystem.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type lineRequest struct {
	AccountID       int64   `json:"account_id" validate:"required"`
	Debit           float64 `json:"debit" validate:"gte=0"`
	Credit          float64 `json:"credit" validate:"gte=0"`
	ThirdPartyID    *int64  `json:"third_party_id,omitempty"`
	ThirdPartyName  *string `json:"third_party_name,omitempty"`
	ThirdPartyTaxID *string `json:"third_party_tax_id,omitempty"`
}

type createEntryRequest struct {
	Date        string        `json:"date" validate:"required,datetime=2006-01-02"`
	Type        string        `json:"type" validate:"required,oneof=INCOME EXPENSE COST_SALES JOURNAL COMPROBANTE_EGRESO"`
	Description string        `json:"description" validate:"required"`
	Reference   string        `json:"reference"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type entryResponse struct {
	ID          int64          `json:"id"`
	Number      string         `json:"number"`
	Date        string         `json:"date"`
	Period      string         `json:"period"`
	Type        EntryType      `json:"type"`
	Description string         `json:"description"`
	Reference   string         `json:"reference,omitempty"`
	Status      EntryStatus    `json:"status"`
	TotalDebit  float64        `json:"total_debit"`
	TotalCredit float64        `json:"total_credit"`
	SourceType  string         `json:"source_type,omitempty"`
	ApprovedBy  *int64         `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time     `json:"approved_at,omitempty"`
	Lines       []lineResponse `json:"lines,omitempty"`
}

type lineResponse struct {
	AccountID       int64   `json:"account_id"`
	AccountCode     string  `json:"account_code,omitempty"`
	AccountName     string  `json:"account_name,omitempty"`
	Debit           float64 `json:"debit"`
	Credit          float64 `json:"credit"`
	ThirdPartyID    *int64  `json:"third_party_id,omitempty"`
	ThirdPartyName  *string `json:"third_party_name,omitempty"`
	ThirdPartyTaxID *string `json:"third_party_tax_id,omitempty"`
}

func toEntryResponse(entry JournalEntry, withLines bool) entryResponse {
	resp := entryResponse{
		ID:          entry.ID,
		Number:      entry.Number,
		Date:        entry.Date.Format("2006-01-02"),
		Period:      entry.Period,
		Type:        entry.Type,
		Description: entry.Description,
		Reference:   entry.Reference,
		Status:      entry.Status,
		TotalDebit:  entry.TotalDebit,
		TotalCredit: entry.TotalCredit,
		SourceType:  entry.SourceType,
		ApprovedBy:  entry.ApprovedBy,
		ApprovedAt:  entry.ApprovedAt,
	}
	if withLines {
		for _, line := range entry.Lines {
			resp.Lines = append(resp.Lines, lineResponse{
				AccountID:       line.AccountID,
				AccountCode:     line.AccountCode,
				AccountName:     line.AccountName,
				Debit:           line.Debit,
				Credit:          line.Credit,
				ThirdPartyID:    line.ThirdPartyID,
				ThirdPartyName:  line.ThirdPartyName,
				ThirdPartyTaxID: line.ThirdPartyTaxID,
			})
		}
	}
	return resp
}

// Identity extracts tenant and user ids from request headers.
func Identity(r *http.Request) (tenantID, userID int64, ok bool) {
	tenantID, err := strconv.ParseInt(r.Header.Get("X-Tenant-ID"), 10, 64)
	if err != nil || tenantID == 0 {
		return 0, 0, false
	}
	userID, _ = strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	return tenantID, userID, true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, ok := Identity(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant id required")
		return
	}
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	input := EntryInput{
		Date:        date,
		Type:        EntryType(req.Type),
		Description: req.Description,
		Reference:   req.Reference,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			AccountID:       line.AccountID,
			Debit:           line.Debit,
			Credit:          line.Credit,
			ThirdPartyID:    line.ThirdPartyID,
			ThirdPartyName:  line.ThirdPartyName,
			ThirdPartyTaxID: line.ThirdPartyTaxID,
		})
	}
	entry, err := h.service.CreateEntry(r.Context(), tenantID, userID, input)
	if err != nil {
		h.respondServiceError(w, "create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry, true))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, ok := Identity(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant id required")
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	entry, err := h.service.ApproveEntry(r.Context(), tenantID, entryID, userID)
	if err != nil {
		h.respondServiceError(w, "approve entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry, false))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := Identity(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant id required")
		return
	}
	var filter Filter
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		filter.Status = EntryStatus(status)
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.DateFrom = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filter.DateTo = t
		}
	}
	entries, err := h.service.ListEntries(r.Context(), tenantID, filter)
	if err != nil {
		h.respondServiceError(w, "list entries", err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toEntryResponse(entry, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := Identity(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant id required")
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), tenantID, entryID)
	if err != nil {
		h.respondServiceError(w, "get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry, true))
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	var balance *BalanceError
	switch {
	case errors.Is(err, ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotDraft):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &balance):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNoLines):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

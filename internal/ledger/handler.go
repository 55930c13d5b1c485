package ledger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/periods"
	"github.com/openbooks-erp/openbooks/internal/platform/httpx"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Handler exposes manual journal entries over HTTP. Document postings go
// through their own pipelines; this endpoint is for adjustments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    periods.Guard
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard periods.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/journal-entries", h.postEntry)
}

type journalLineRequest struct {
	AccountID int64       `json:"accountId" validate:"required"`
	Debit     money.Money `json:"debit"`
	Credit    money.Money `json:"credit"`
}

type postEntryRequest struct {
	JournalDate string               `json:"journalDate" validate:"required,datetime=2006-01-02"`
	Reference   string               `json:"reference"`
	Lines       []journalLineRequest `json:"lines" validate:"min=2,dive"`
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	actorID, _ := shared.ActorFromContext(r.Context())
	journalDate, _ := time.Parse(time.DateOnly, req.JournalDate)

	if err := h.guard.AssertPostable(r.Context(), tenantID, journalDate); err != nil {
		h.logger.Warn("journal entry blocked", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	in := PostingInput{
		TenantID:    tenantID,
		JournalDate: journalDate,
		Reference:   req.Reference,
		CreatedByID: actorID,
		PostedByID:  actorID,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}

	entry, err := h.service.PostEntry(r.Context(), in)
	if err != nil {
		h.logger.Warn("journal entry rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

type journalLineResponse struct {
	AccountID int64       `json:"accountId"`
	Debit     money.Money `json:"debit"`
	Credit    money.Money `json:"credit"`
}

type entryResponse struct {
	ID          int64                 `json:"id"`
	JournalDate string                `json:"journalDate"`
	Reference   string                `json:"reference,omitempty"`
	Status      EntryStatus           `json:"status"`
	Lines       []journalLineResponse `json:"lines"`
}

func toEntryResponse(entry JournalEntry) entryResponse {
	resp := entryResponse{
		ID:          entry.ID,
		JournalDate: entry.JournalDate.Format(time.DateOnly),
		Reference:   entry.Reference,
		Status:      entry.Status,
	}
	for _, line := range entry.Lines {
		resp.Lines = append(resp.Lines, journalLineResponse{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	return resp
}

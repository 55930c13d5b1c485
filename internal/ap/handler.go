package ap

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/platform/httpx"
	"github.com/openbooks-erp/openbooks/internal/shared"
	"github.com/openbooks-erp/openbooks/internal/taxes"
)

// Handler exposes the supplier invoice operations over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers AP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Post("/invoices/{id}/submit", h.submitInvoice)
	r.Post("/invoices/{id}/approve", h.approveInvoice)
	r.Post("/invoices/{id}/post", h.postInvoice)
	r.Get("/aging", h.aging)
}

type lineRequest struct {
	AccountID   int64       `json:"accountId" validate:"required"`
	Description string      `json:"description"`
	Amount      money.Money `json:"amount"`
}

type taxLineRequest struct {
	TaxRateID     int64       `json:"taxRateId" validate:"required"`
	TaxableAmount money.Money `json:"taxableAmount"`
	TaxAmount     money.Money `json:"taxAmount"`
}

type createInvoiceRequest struct {
	SupplierName string           `json:"supplierName" validate:"required"`
	InvoiceDate  string           `json:"invoiceDate" validate:"required,datetime=2006-01-02"`
	DueDate      string           `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	TotalAmount  money.Money      `json:"totalAmount"`
	Lines        []lineRequest    `json:"lines" validate:"required,min=1,dive"`
	TaxLines     []taxLineRequest `json:"taxLines" validate:"dive"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
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

	invoiceDate, _ := time.Parse(time.DateOnly, req.InvoiceDate)
	in := CreateInput{
		TenantID:     tenantID,
		SupplierName: req.SupplierName,
		InvoiceDate:  invoiceDate,
		TotalAmount:  req.TotalAmount,
		CreatedByID:  actorID,
	}
	if req.DueDate != "" {
		in.DueDate, _ = time.Parse(time.DateOnly, req.DueDate)
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput{AccountID: line.AccountID, Description: line.Description, Amount: line.Amount})
	}
	for _, tl := range req.TaxLines {
		in.TaxLines = append(in.TaxLines, taxes.LineInput{TaxRateID: tl.TaxRateID, TaxableAmount: tl.TaxableAmount, TaxAmount: tl.TaxAmount})
	}

	inv, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Warn("ap invoice create rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	inv, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) submitInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit", h.service.Submit)
}

func (h *Handler) approveInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve", h.service.Approve)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string,
	fn func(ctx context.Context, tenantID uuid.UUID, invoiceID, actorID int64) (SupplierInvoice, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	actorID, _ := shared.ActorFromContext(r.Context())

	inv, err := fn(r.Context(), tenantID, id, actorID)
	if err != nil {
		h.logger.Warn("ap invoice transition rejected",
			slog.String("action", action), slog.Int64("invoice", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

type postRequest struct {
	ControlAccountCode string `json:"controlAccountCode"`
}

func (h *Handler) postInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req postRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	actorID, _ := shared.ActorFromContext(r.Context())

	inv, err := h.service.Post(r.Context(), PostInput{
		TenantID:           tenantID,
		InvoiceID:          id,
		ActorID:            actorID,
		ControlAccountCode: req.ControlAccountCode,
	})
	if err != nil {
		h.logger.Warn("ap invoice post rejected", slog.Int64("invoice", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

type agingBucketResponse struct {
	Label string      `json:"label"`
	Count int         `json:"count"`
	Total money.Money `json:"total"`
}

type agingResponse struct {
	AsOf      string                `json:"asOf"`
	Buckets   []agingBucketResponse `json:"buckets"`
	TotalOpen money.Money           `json:"totalOpen"`
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "asOf must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	tenantID, _ := shared.TenantFromContext(r.Context())

	summary, err := h.service.Aging(r.Context(), tenantID, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := agingResponse{AsOf: summary.AsOf.Format(time.DateOnly), TotalOpen: summary.TotalOpen}
	for _, b := range summary.Buckets {
		resp.Buckets = append(resp.Buckets, agingBucketResponse{Label: b.Label, Count: b.Count, Total: b.Total})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type invoiceLineResponse struct {
	ID          int64       `json:"id"`
	AccountID   int64       `json:"accountId"`
	Description string      `json:"description"`
	Amount      money.Money `json:"amount"`
}

type taxLineResponse struct {
	TaxRateID     int64       `json:"taxRateId"`
	TaxableAmount money.Money `json:"taxableAmount"`
	TaxAmount     money.Money `json:"taxAmount"`
}

type invoiceResponse struct {
	ID           int64                 `json:"id"`
	Number       string                `json:"number"`
	SupplierName string                `json:"supplierName"`
	InvoiceDate  string                `json:"invoiceDate"`
	DueDate      string                `json:"dueDate,omitempty"`
	TotalAmount  money.Money           `json:"totalAmount"`
	Status       Status                `json:"status"`
	JournalID    int64                 `json:"journalEntryId,omitempty"`
	Lines        []invoiceLineResponse `json:"lines"`
	TaxLines     []taxLineResponse     `json:"taxLines,omitempty"`
}

func toInvoiceResponse(inv SupplierInvoice) invoiceResponse {
	resp := invoiceResponse{
		ID:           inv.ID,
		Number:       inv.Number,
		SupplierName: inv.SupplierName,
		InvoiceDate:  inv.InvoiceDate.Format(time.DateOnly),
		TotalAmount:  inv.TotalAmount,
		Status:       inv.Status,
		JournalID:    inv.JournalID,
	}
	if !inv.DueDate.IsZero() {
		resp.DueDate = inv.DueDate.Format(time.DateOnly)
	}
	for _, line := range inv.Lines {
		resp.Lines = append(resp.Lines, invoiceLineResponse{
			ID: line.ID, AccountID: line.AccountID, Description: line.Description, Amount: line.Amount,
		})
	}
	for _, tl := range inv.TaxLines {
		resp.TaxLines = append(resp.TaxLines, taxLineResponse{
			TaxRateID: tl.TaxRateID, TaxableAmount: tl.TaxableAmount, TaxAmount: tl.TaxAmount,
		})
	}
	return resp
}

package payments

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/platform/httpx"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Handler exposes the payment operations over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createPayment)
	r.Get("/{id}", h.getPayment)
	r.Post("/{id}/approve", h.approvePayment)
	r.Post("/{id}/post", h.postPayment)
}

type allocationRequest struct {
	SourceID int64       `json:"sourceId" validate:"required"`
	Amount   money.Money `json:"amount"`
}

type createPaymentRequest struct {
	Type          Type                `json:"type" validate:"required,oneof=SUPPLIER_PAYMENT CUSTOMER_RECEIPT"`
	BankAccountID int64               `json:"bankAccountId" validate:"required"`
	Amount        money.Money         `json:"amount"`
	PaymentDate   string              `json:"paymentDate" validate:"required,datetime=2006-01-02"`
	Allocations   []allocationRequest `json:"allocations" validate:"dive"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
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

	paymentDate, _ := time.Parse(time.DateOnly, req.PaymentDate)
	in := CreateInput{
		TenantID:      tenantID,
		Type:          req.Type,
		BankAccountID: req.BankAccountID,
		Amount:        req.Amount,
		PaymentDate:   paymentDate,
		CreatedByID:   actorID,
	}
	for _, alloc := range req.Allocations {
		in.Allocations = append(in.Allocations, AllocationInput{SourceID: alloc.SourceID, Amount: alloc.Amount})
	}

	p, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Warn("payment create rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	p, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) approvePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	actorID, _ := shared.ActorFromContext(r.Context())

	p, err := h.service.Approve(r.Context(), tenantID, id, actorID)
	if err != nil {
		h.logger.Warn("payment approve rejected", slog.Int64("payment", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(p))
}

type postPaymentRequest struct {
	ControlAccountCode string `json:"controlAccountCode"`
}

func (h *Handler) postPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	var req postPaymentRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	actorID, _ := shared.ActorFromContext(r.Context())

	p, err := h.service.Post(r.Context(), PostInput{
		TenantID:           tenantID,
		PaymentID:          id,
		ActorID:            actorID,
		ControlAccountCode: req.ControlAccountCode,
	})
	if err != nil {
		h.logger.Warn("payment post rejected", slog.Int64("payment", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(p))
}

type allocationResponse struct {
	SourceType string      `json:"sourceType"`
	SourceID   int64       `json:"sourceId"`
	Amount     money.Money `json:"amount"`
}

type paymentResponse struct {
	ID            int64                `json:"id"`
	Number        string               `json:"number"`
	Type          Type                 `json:"type"`
	BankAccountID int64                `json:"bankAccountId"`
	Amount        money.Money          `json:"amount"`
	PaymentDate   string               `json:"paymentDate"`
	Status        Status               `json:"status"`
	JournalID     int64                `json:"journalEntryId,omitempty"`
	Allocations   []allocationResponse `json:"allocations,omitempty"`
}

func toPaymentResponse(p Payment) paymentResponse {
	resp := paymentResponse{
		ID:            p.ID,
		Number:        p.Number,
		Type:          p.Type,
		BankAccountID: p.BankAccountID,
		Amount:        p.Amount,
		PaymentDate:   p.PaymentDate.Format(time.DateOnly),
		Status:        p.Status,
		JournalID:     p.JournalID,
	}
	for _, alloc := range p.Allocations {
		resp.Allocations = append(resp.Allocations, allocationResponse{
			SourceType: alloc.SourceType, SourceID: alloc.SourceID, Amount: alloc.Amount,
		})
	}
	return resp
}

package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/openbooks-erp/openbooks/internal/platform/httpx"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Handler exposes the financial statements over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the statement routes. Statement builds scan the
// journal, so the group carries its own rate limit on top of the router-wide
// one.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/profit-and-loss", h.profitAndLoss)
		r.Get("/balance-sheet", h.balanceSheet)
		r.Get("/changes-in-equity", h.changesInEquity)
		r.Get("/cash-flow", h.cashFlow)
	})
}

func rangeParams(r *http.Request) (time.Time, time.Time, bool) {
	from, err := time.Parse(time.DateOnly, r.URL.Query().Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.DateOnly, r.URL.Query().Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from and to must be YYYY-MM-DD dates")
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	tb, err := h.service.TrialBalance(r.Context(), tenantID, from, to)
	if err != nil {
		h.logger.Warn("trial balance rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from and to must be YYYY-MM-DD dates")
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	pl, err := h.service.ProfitAndLoss(r.Context(), tenantID, from, to)
	if err != nil {
		h.logger.Warn("profit and loss rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := time.Parse(time.DateOnly, r.URL.Query().Get("asOf"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "asOf must be a YYYY-MM-DD date")
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	bs, err := h.service.BalanceSheet(r.Context(), tenantID, asOf)
	if err != nil {
		h.logger.Warn("balance sheet rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) changesInEquity(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from and to must be YYYY-MM-DD dates")
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	soce, err := h.service.ChangesInEquity(r.Context(), tenantID, from, to)
	if err != nil {
		h.logger.Warn("changes in equity rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, soce)
}

func (h *Handler) cashFlow(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from and to must be YYYY-MM-DD dates")
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	cf, err := h.service.CashFlow(r.Context(), tenantID, from, to)
	if err != nil {
		h.logger.Warn("cash flow rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cf)
}

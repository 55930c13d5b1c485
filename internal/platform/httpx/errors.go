package httpx

import (
	"errors"
	"net/http"

	"github.com/openbooks-erp/openbooks/internal/shared"
)

// RespondError maps the shared error taxonomy to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validation *shared.ValidationError
		notFound   *shared.NotFoundError
		authz      *shared.AuthorizationError
		period     *shared.PeriodControlError
		conflict   *shared.ConflictError
		downstream *shared.DownstreamError
	)
	switch {
	case errors.As(err, &validation):
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Title:    "Validation Failed",
			Status:   http.StatusUnprocessableEntity,
			Detail:   validation.Message,
			Reason:   validation.Code,
			Expected: validation.Expected,
			Actual:   validation.Actual,
		})
	case errors.As(err, &notFound):
		JSON(w, http.StatusNotFound, ProblemDetail{
			Title:  "Not Found",
			Status: http.StatusNotFound,
			Detail: notFound.Error(),
			Reason: "NOT_FOUND",
		})
	case errors.As(err, &authz):
		JSON(w, http.StatusForbidden, ProblemDetail{
			Title:  "Forbidden",
			Status: http.StatusForbidden,
			Detail: authz.Message,
			Reason: authz.Rule,
		})
	case errors.As(err, &period):
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Title:  "Period Control",
			Status: http.StatusUnprocessableEntity,
			Detail: period.Message,
			Reason: string(period.Kind),
		})
	case errors.As(err, &conflict):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:  "Conflict",
			Status: http.StatusConflict,
			Detail: conflict.Message,
			Reason: "CONFLICT",
		})
	case errors.As(err, &downstream):
		JSON(w, http.StatusBadGateway, ProblemDetail{
			Title:  "Downstream Failure",
			Status: http.StatusBadGateway,
			Reason: "DOWNSTREAM",
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

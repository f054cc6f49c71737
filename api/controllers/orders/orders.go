package orders

import (
	"net/http"
	"strings"

	"github.com/clubemecanico/courses-backend/api/middleware"
	"github.com/clubemecanico/courses-backend/api/responses"
	"github.com/clubemecanico/courses-backend/api/validators"
	internalorders "github.com/clubemecanico/courses-backend/internal/orders"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/pagination"
)

// studentQuery answers a read for the signed-in student.
type studentQuery func(r *http.Request, svc internalorders.Service, userID int64) (any, error)

// List returns the caller's order history, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, svc internalorders.Service, userID int64) (any, error) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return nil, err
		}
		return svc.List(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
	})
}

// Detail returns a single order owned by the caller.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, svc internalorders.Service, userID int64) (any, error) {
		orderID, err := validators.ParseIDParam(r, "orderId")
		if err != nil {
			return nil, err
		}
		return svc.Get(r.Context(), userID, orderID)
	})
}

// PaymentStatus answers the storefront poll and expires overdue pix/boleto payments on read.
func PaymentStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, svc internalorders.Service, userID int64) (any, error) {
		orderID, err := validators.ParseIDParam(r, "orderId")
		if err != nil {
			return nil, err
		}
		return svc.PaymentStatus(r.Context(), userID, orderID)
	})
}

func serve(svc internalorders.Service, logg *logger.Logger, query studentQuery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		body, err := query(r, svc, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, body)
	}
}

package controllers

import (
	"net/http"

	"github.com/clubemecanico/courses-backend/api/middleware"
	"github.com/clubemecanico/courses-backend/api/responses"
	"github.com/clubemecanico/courses-backend/api/validators"
	checkoutsvc "github.com/clubemecanico/courses-backend/internal/checkout"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
)

const maxCouponLength = 64

type checkoutRequest struct {
	CouponCode    string `json:"couponCode" validate:"omitempty,max=64,coupon"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,payment_method"`
}

// Checkout turns the caller's cart into a pending order and returns the redirect URL.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOrder(r.Context(), checkoutsvc.CreateOrderInput{
			UserID:        userID,
			CouponCode:    validators.SanitizeString(payload.CouponCode, maxCouponLength),
			PaymentMethod: payload.PaymentMethod,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

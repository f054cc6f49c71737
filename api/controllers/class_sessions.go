package controllers

import (
	"net/http"

	"github.com/clubemecanico/courses-backend/api/responses"
	"github.com/clubemecanico/courses-backend/api/validators"
	"github.com/clubemecanico/courses-backend/internal/sessions"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
)

// ClassSessionAvailability reports whether a class session can still take an enrollment.
func ClassSessionAvailability(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "class session service unavailable"))
			return
		}

		sessionID, err := validators.ParseIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		availability, err := svc.Availability(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, availability)
	}
}

package webhooks

import (
	"net/http"
	"strings"

	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/mercadopago"
)

// verifySignature checks x-signature against the query data.id, falling back to
// the id decoded from the body.
func verifySignature(r *http.Request, resourceID, secret string) error {
	header := strings.TrimSpace(r.Header.Get("X-Signature"))
	if header == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}

	dataID := r.URL.Query().Get("data.id")
	if dataID == "" {
		dataID = resourceID
	}

	if err := mercadopago.VerifySignature(secret, header, r.Header.Get("X-Request-Id"), dataID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature")
	}
	return nil
}

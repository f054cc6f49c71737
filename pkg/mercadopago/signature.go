package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSignature is returned when an x-signature header does not match the payload.
var ErrInvalidSignature = errors.New("mercadopago: invalid webhook signature")

// VerifySignature checks the x-signature header (`ts=...,v1=...`) against the manifest
// `id:<data.id>;request-id:<x-request-id>;ts:<ts>;` signed with the webhook secret.
func VerifySignature(secret, header, requestID, dataID string) error {
	ts, v1 := parseSignatureHeader(header)
	if ts == "" || v1 == "" {
		return ErrInvalidSignature
	}
	expected := Sign(secret, manifest(dataID, requestID, ts))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v1))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of message.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds a header value for the given inputs. Used by tests and local tooling.
func SignatureHeader(secret, requestID, dataID, ts string) string {
	return fmt.Sprintf("ts=%s,v1=%s", ts, Sign(secret, manifest(dataID, requestID, ts)))
}

func manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		fmt.Fprintf(&b, "id:%s;", strings.ToLower(dataID))
	}
	if requestID != "" {
		fmt.Fprintf(&b, "request-id:%s;", requestID)
	}
	fmt.Fprintf(&b, "ts:%s;", ts)
	return b.String()
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}

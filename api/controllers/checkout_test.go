package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clubemecanico/courses-backend/api/middleware"
	checkoutsvc "github.com/clubemecanico/courses-backend/internal/checkout"
	"github.com/clubemecanico/courses-backend/internal/orders"
	"github.com/clubemecanico/courses-backend/pkg/enums"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
)

type stubCheckoutService struct {
	order *orders.OrderDTO
	err   error
	last  checkoutsvc.CreateOrderInput
}

func (s *stubCheckoutService) CreateOrder(ctx context.Context, input checkoutsvc.CreateOrderInput) (*orders.OrderDTO, error) {
	s.last = input
	return s.order, s.err
}

func TestCheckoutCreatesOrder(t *testing.T) {
	url := "https://www.mercadopago.com.br/checkout/v1/redirect?pref_id=1"
	svc := &stubCheckoutService{order: &orders.OrderDTO{
		ID:          1,
		OrderNumber: "PED-20260301120000-ABC123",
		Status:      enums.OrderStatusPending,
		Total:       decimal.RequireFromString("72.00"),
		CheckoutURL: &url,
	}}
	handler := Checkout(svc, nil)

	body := strings.NewReader(`{"couponCode":"  bemvindo10 ","paymentMethod":"pix"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", body)
	req = req.WithContext(middleware.WithUserID(req.Context(), 7))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.last.UserID != 7 || svc.last.CouponCode != "bemvindo10" || svc.last.PaymentMethod != "pix" {
		t.Fatalf("unexpected input %+v", svc.last)
	}

	var envelope struct {
		Data orders.OrderDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.CheckoutURL == nil || *envelope.Data.CheckoutURL != url {
		t.Fatalf("expected checkout url, got %+v", envelope.Data.CheckoutURL)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	handler := Checkout(&stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), 7))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "cart is empty") {
		t.Fatalf("expected empty cart message, got %s", resp.Body.String())
	}
}

func TestCheckoutGatewayFailure(t *testing.T) {
	handler := Checkout(&stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeDependency, "create checkout")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), 7))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestCheckoutRejectsUnknownFields(t *testing.T) {
	handler := Checkout(&stubCheckoutService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"cartId":1}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), 7))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutRequiresUser(t *testing.T) {
	handler := Checkout(&stubCheckoutService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

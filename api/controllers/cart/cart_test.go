package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clubemecanico/courses-backend/api/middleware"
	cartsvc "github.com/clubemecanico/courses-backend/internal/cart"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
)

type stubCartService struct {
	view      *cartsvc.View
	entry     *cartsvc.EntryDTO
	err       error
	lastAdd   cartsvc.AddEntryInput
	removedID int64
}

func (s *stubCartService) List(ctx context.Context, userID int64) (*cartsvc.View, error) {
	return s.view, s.err
}

func (s *stubCartService) AddEntry(ctx context.Context, input cartsvc.AddEntryInput) (*cartsvc.EntryDTO, error) {
	s.lastAdd = input
	return s.entry, s.err
}

func (s *stubCartService) RemoveEntry(ctx context.Context, userID, entryID int64) error {
	s.removedID = entryID
	return s.err
}

func (s *stubCartService) GetCartEntries(ctx context.Context, userID int64) ([]cartsvc.Line, error) {
	return nil, s.err
}

func (s *stubCartService) ClearCart(ctx context.Context, userID int64) error {
	return s.err
}

func withUser(req *http.Request, userID int64) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func TestCartFetchSuccess(t *testing.T) {
	view := &cartsvc.View{
		Entries:  []cartsvc.EntryDTO{{ID: 1, CourseID: 10, CourseName: "Injeção Eletrônica", Price: decimal.RequireFromString("50.00")}},
		Subtotal: decimal.RequireFromString("50.00"),
	}
	handler := CartFetch(&stubCartService{view: view}, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), 7)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data cartsvc.View `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Entries) != 1 || !envelope.Data.Subtotal.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("unexpected cart %+v", envelope.Data)
	}
}

func TestCartFetchMissingUser(t *testing.T) {
	handler := CartFetch(&stubCartService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddPassesSession(t *testing.T) {
	svc := &stubCartService{entry: &cartsvc.EntryDTO{ID: 3, CourseID: 10}}
	handler := CartAdd(svc, nil)

	body := strings.NewReader(`{"courseId":10,"classSessionId":4}`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/cart", body), 7)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastAdd.UserID != 7 || svc.lastAdd.CourseID != 10 {
		t.Fatalf("unexpected input %+v", svc.lastAdd)
	}
	if svc.lastAdd.ClassSessionID == nil || *svc.lastAdd.ClassSessionID != 4 {
		t.Fatalf("expected session 4, got %v", svc.lastAdd.ClassSessionID)
	}
}

func TestCartAddRejectsMissingCourse(t *testing.T) {
	handler := CartAdd(&stubCartService{}, nil)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/cart", strings.NewReader(`{}`)), 7)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartAddDuplicate(t *testing.T) {
	handler := CartAdd(&stubCartService{err: pkgerrors.New(pkgerrors.CodeConflict, "course already in cart")}, nil)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/cart", strings.NewReader(`{"courseId":10}`)), 7)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestCartRemove(t *testing.T) {
	svc := &stubCartService{}
	router := chi.NewRouter()
	router.Delete("/api/v1/cart/{entryId}", CartRemove(svc, nil))

	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/cart/12", nil), 7)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}
	if svc.removedID != 12 {
		t.Fatalf("expected entry 12 removed, got %d", svc.removedID)
	}
}

func TestCartRemoveInvalidID(t *testing.T) {
	router := chi.NewRouter()
	router.Delete("/api/v1/cart/{entryId}", CartRemove(&stubCartService{}, nil))

	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/cart/abc", nil), 7)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

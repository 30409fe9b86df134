package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	orderdto "github.com/angelmondragon/storefront-backend/api/controllers/orders/dto"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubOrdersService struct {
	page       *pagination.Page[models.Order]
	order      *models.Order
	err        error
	lastParams pagination.Params
	lastActor  internalorders.Actor
}

func (s *stubOrdersService) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error) {
	s.lastParams = params
	s.lastActor = internalorders.Actor{UserID: userID}
	return s.page, s.err
}

func (s *stubOrdersService) Get(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*models.Order, error) {
	s.lastActor = actor
	return s.order, s.err
}

func (s *stubOrdersService) ListAll(ctx context.Context, params pagination.Params, filters internalorders.ListFilters) (*pagination.Page[models.Order], error) {
	s.lastParams = params
	return s.page, s.err
}

func (s *stubOrdersService) UpdateStatus(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	return s.order, s.err
}

func customerRequest(method, target string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, enums.UserRoleCustomer)
	return req.WithContext(ctx)
}

func withOrderID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListPassesPagination(t *testing.T) {
	userID := uuid.New()
	order := models.Order{
		ID:            uuid.New(),
		UserID:        userID,
		PaymentMethod: enums.PaymentMethodCard,
		Status:        enums.OrderStatusProcessing,
		AmountPaid:    decimal.RequireFromString("70.00"),
		LineItems: []models.OrderLineItem{
			{ID: uuid.New(), ProductID: uuid.New(), UnitPrice: decimal.RequireFromString("35.00"), Quantity: 2},
		},
	}
	svc := &stubOrdersService{page: &pagination.Page[models.Order]{Items: []models.Order{order}, NextCursor: "next"}}
	handler := List(svc, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, customerRequest(http.MethodGet, "/api/v1/orders?limit=5&cursor=abc", userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.lastParams.Limit != 5 || svc.lastParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.lastParams)
	}
	if svc.lastActor.UserID != userID {
		t.Fatalf("listed orders for wrong user")
	}
	var envelope struct {
		Data orderdto.OrderPage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.NextCursor != "next" || len(envelope.Data.Items) != 1 {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}
	if envelope.Data.Items[0].Items[0].Quantity != 2 {
		t.Fatalf("expected line items rendered")
	}
}

func TestListRejectsOversizedLimit(t *testing.T) {
	handler := List(&stubOrdersService{}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, customerRequest(http.MethodGet, "/api/v1/orders?limit=1000", uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailNotFound(t *testing.T) {
	handler := Detail(&stubOrdersService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}, nil)

	req := withOrderID(customerRequest(http.MethodGet, "/api/v1/orders/x", uuid.New()), uuid.NewString())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestDetailRejectsMalformedID(t *testing.T) {
	handler := Detail(&stubOrdersService{}, nil)

	req := withOrderID(customerRequest(http.MethodGet, "/api/v1/orders/x", uuid.New()), "not-a-uuid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailPassesActorRole(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrdersService{order: &models.Order{ID: uuid.New(), UserID: userID}}
	handler := Detail(svc, nil)

	req := withOrderID(customerRequest(http.MethodGet, "/api/v1/orders/x", userID), uuid.NewString())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastActor.UserID != userID || svc.lastActor.Role != enums.UserRoleCustomer {
		t.Fatalf("unexpected actor %+v", svc.lastActor)
	}
}

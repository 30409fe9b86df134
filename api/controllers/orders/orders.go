// Package orders serves the customer order history endpoints and the
// request helpers the admin order handlers share.
package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	orderdto "github.com/angelmondragon/storefront-backend/api/controllers/orders/dto"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func errNoService() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")
}

// List pages through the caller's own orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errNoService())
			return
		}
		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := PageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := svc.ListForUser(ctx, actor.UserID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderdto.NewOrderPage(page))
	}
}

// Detail renders one order. Another customer's order reads as not found.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errNoService())
			return
		}
		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithOrderID(ctx, orderID.String())

		order, err := svc.Get(ctx, actor, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderdto.NewOrder(order))
	}
}

// PageParams reads ?limit= (1..MaxLimit, default DefaultLimit) and the
// opaque ?cursor=. Cursor decoding is left to the service.
func PageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}

// ActorFromRequest reads the identity placed on the context by Auth.
func ActorFromRequest(r *http.Request) (internalorders.Actor, error) {
	ctx := r.Context()
	userID, ok := middleware.UserUUIDFromContext(ctx)
	if !ok || userID == uuid.Nil {
		return internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	role := enums.UserRole(middleware.RoleFromContext(ctx))
	return internalorders.Actor{UserID: userID, Role: role}, nil
}

package controllers

import (
	"net/http"

	"github.com/google/uuid"

	orderdto "github.com/angelmondragon/storefront-backend/api/controllers/orders/dto"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxShippingAddressLength = 500

type cartCheckoutRequest struct {
	CouponCode      string `json:"couponCode,omitempty" validate:"omitempty,max=12"`
	ShippingAddress string `json:"shippingAddress" validate:"required"`
}

type buyNowRequest struct {
	ProductID       uuid.UUID  `json:"productId" validate:"required"`
	VariantID       *uuid.UUID `json:"variantId,omitempty"`
	Quantity        int        `json:"quantity" validate:"gt=0"`
	CouponCode      string     `json:"couponCode,omitempty" validate:"omitempty,max=12"`
	ShippingAddress string     `json:"shippingAddress" validate:"required"`
}

// Checkout turns the caller's cart into an unpaid card order and returns the
// payment intent client secret.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckoutCart(r.Context(), userID, checkoutsvc.CartCheckoutInput{
			CouponCode:      payload.CouponCode,
			ShippingAddress: validators.SanitizeString(payload.ShippingAddress, maxShippingAddressLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// BuyNow prices a single product for the caller and returns a payment intent.
func BuyNow(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload buyNowRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.BuyNow(r.Context(), userID, checkoutsvc.BuyNowInput{
			ProductID:       payload.ProductID,
			VariantID:       payload.VariantID,
			Quantity:        payload.Quantity,
			CouponCode:      payload.CouponCode,
			ShippingAddress: validators.SanitizeString(payload.ShippingAddress, maxShippingAddressLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// PlaceCashOnDelivery creates a cash-on-delivery order from the caller's cart.
func PlaceCashOnDelivery(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.PlaceCashOnDelivery(r.Context(), userID, checkoutsvc.CartCheckoutInput{
			CouponCode:      payload.CouponCode,
			ShippingAddress: validators.SanitizeString(payload.ShippingAddress, maxShippingAddressLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, orderdto.NewOrder(order))
	}
}

func requireUser(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}
